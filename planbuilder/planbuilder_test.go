package planbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/scanparam"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

func testCtx() *engine.Context {
	ctx := engine.NewContext(engine.EngineArrow)
	ctx.Domains.Set("a", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 99)})
	ctx.Domains.Set("b", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 99)})
	return ctx
}

func iv32(lo, hi int64) boundary.Interval {
	i, err := boundary.NewInterval(value.NewInt(32, lo), value.NewInt(32, hi))
	if err != nil {
		panic(err)
	}
	return i
}

func cmpExpr(op, attr string, lit int64) expr.Expression {
	return expr.FunctionExpression{
		Op: op,
		Children: []expr.Expression{
			expr.Attribute{Name: attr, Kind: value.KindInt32},
			expr.Literal{Val: value.NewInt(32, lit)},
		},
		Kind: value.KindBool,
	}
}

// countOps walks op and returns how many nodes of the given Go type (by a
// predicate) it contains.
func countOps(root Op, match func(Op) bool) int {
	n := 0
	Walk(root, func(o Op) {
		if match(o) {
			n++
		}
	})
	return n
}

func TestBuildAggregationPlanDirectOnlyScenario(t *testing.T) {
	ctx := testCtx()
	s, err := schema.New([]schema.Attribute{
		{Name: "tuple_id", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
		{Name: "b", Kind: value.KindInt32},
	})
	require.NoError(t, err)
	rows := int64(1000)
	block := schema.BlockMeta{BlockID: 0, Schema: s, Boundary: boundary.NewBoundary().With("a", iv32(0, 99)).With("b", iv32(0, 99)), PartitionID: "part-0", RowCount: &rows}

	filter := expr.FunctionExpression{Op: "and", Kind: value.KindBool, Children: []expr.Expression{cmpExpr("ge", "a", 10), cmpExpr("le", "a", 20)}}
	measure := query.Measure{Name: "sum_b", Expr: expr.AggregateExpression{Op: "sum", Children: []expr.Expression{expr.Attribute{Name: "b", Kind: value.KindInt32}}, Kind: value.KindInt64}}
	q, err := query.New(ctx, s, filter, []query.Measure{measure})
	require.NoError(t, err)

	blockMeasures, blockFilters, err := scanparam.ClassifyRoles(ctx, q, []schema.BlockMeta{block})
	require.NoError(t, err)
	requests, err := scanparam.PostRequests(ctx, q, blockMeasures, blockFilters)
	require.NoError(t, err)
	result, err := scanparam.LowerAggregation(ctx, q, requests)
	require.NoError(t, err)
	require.Len(t, result.DirectParams, 1)
	require.Empty(t, result.ReconstructParams)

	plan, err := BuildAggregationPlan(ctx, q, result, AggregationPlanOptions{})
	require.NoError(t, err)

	readCount := countOps(plan, func(o Op) bool { _, ok := o.(*ReadOp); return ok })
	assert.Equal(t, 1, readCount)
	aggCount := countOps(plan, func(o Op) bool { _, ok := o.(*AggregateOp); return ok })
	assert.Equal(t, 1, aggCount, "direct-only path has exactly the final combine aggregate, no tuple-id reconstruct aggregate")

	names := plan.Schema().Names()
	assert.Contains(t, names, "sum_b")
}

func TestBuildAggregationPlanReconstructScenario(t *testing.T) {
	ctx := testCtx()
	sTidA, err := schema.New([]schema.Attribute{{Name: "tuple_id", Kind: value.KindInt64}, {Name: "a", Kind: value.KindInt32}})
	require.NoError(t, err)
	sTidB, err := schema.New([]schema.Attribute{{Name: "tuple_id", Kind: value.KindInt64}, {Name: "b", Kind: value.KindInt32}})
	require.NoError(t, err)

	rows := int64(1000)
	blockA := schema.BlockMeta{BlockID: 0, Schema: sTidA, Boundary: boundary.NewBoundary().With("a", iv32(0, 99)), PartitionID: "p", RowCount: &rows}
	blockB := schema.BlockMeta{BlockID: 1, Schema: sTidB, Boundary: boundary.NewBoundary().With("a", iv32(0, 99)), PartitionID: "p", RowCount: &rows}

	filter := cmpExpr("lt", "a", 50)
	sumAB := query.Measure{Name: "sum_ab", Expr: expr.AggregateExpression{
		Op: "sum",
		Children: []expr.Expression{
			expr.FunctionExpression{Op: "add", Kind: value.KindInt32, Children: []expr.Expression{
				expr.Attribute{Name: "a", Kind: value.KindInt32},
				expr.Attribute{Name: "b", Kind: value.KindInt32},
			}},
		},
		Kind: value.KindInt64,
	}}
	fullSchema, err := schema.New([]schema.Attribute{{Name: "tuple_id", Kind: value.KindInt64}, {Name: "a", Kind: value.KindInt32}, {Name: "b", Kind: value.KindInt32}})
	require.NoError(t, err)
	q, err := query.New(ctx, fullSchema, filter, []query.Measure{sumAB})
	require.NoError(t, err)

	blockMeasures, blockFilters, err := scanparam.ClassifyRoles(ctx, q, []schema.BlockMeta{blockA, blockB})
	require.NoError(t, err)
	requests, err := scanparam.PostRequests(ctx, q, blockMeasures, blockFilters)
	require.NoError(t, err)
	result, err := scanparam.LowerAggregation(ctx, q, requests)
	require.NoError(t, err)
	require.Len(t, result.ReconstructParams, 2)

	plan, err := BuildAggregationPlan(ctx, q, result, AggregationPlanOptions{})
	require.NoError(t, err)

	readCount := countOps(plan, func(o Op) bool { _, ok := o.(*ReadOp); return ok })
	assert.Equal(t, 2, readCount)
	tupleAggCount := countOps(plan, func(o Op) bool {
		a, ok := o.(*AggregateOp)
		return ok && len(a.GroupKey) == 1 && a.GroupKey[0] == colTupleID
	})
	assert.Equal(t, 1, tupleAggCount, "exactly one tuple-id reconstruct aggregate groups the unioned reconstruct reads")

	assert.Contains(t, plan.Schema().Names(), "sum_ab")
}

func TestBuildAggregationPlanParallelOptionBuildsPlan(t *testing.T) {
	ctx := testCtx()
	s, err := schema.New([]schema.Attribute{{Name: "tuple_id", Kind: value.KindInt64}, {Name: "a", Kind: value.KindInt32}})
	require.NoError(t, err)
	rows := int64(1000)
	blockA := schema.BlockMeta{BlockID: 0, Schema: s, Boundary: boundary.NewBoundary().With("a", iv32(0, 49)), PartitionID: "p", RowCount: &rows}
	blockB := schema.BlockMeta{BlockID: 1, Schema: s, Boundary: boundary.NewBoundary().With("a", iv32(50, 99)), PartitionID: "p", RowCount: &rows}

	filter := cmpExpr("ge", "a", 0)
	measure := query.Measure{Name: "sum_a", Expr: expr.AggregateExpression{Op: "sum", Children: []expr.Expression{expr.Attribute{Name: "a", Kind: value.KindInt32}}, Kind: value.KindInt64}}
	q, err := query.New(ctx, s, filter, []query.Measure{measure})
	require.NoError(t, err)

	blockMeasures, blockFilters, err := scanparam.ClassifyRoles(ctx, q, []schema.BlockMeta{blockA, blockB})
	require.NoError(t, err)
	requests, err := scanparam.PostRequests(ctx, q, blockMeasures, blockFilters)
	require.NoError(t, err)
	result, err := scanparam.LowerAggregation(ctx, q, requests)
	require.NoError(t, err)

	plan, err := BuildAggregationPlan(ctx, q, result, AggregationPlanOptions{Parallel: len(result.ReconstructParams) > 0})
	require.NoError(t, err)
	_ = plan
}
