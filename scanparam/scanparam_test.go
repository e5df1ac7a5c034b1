package scanparam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

func iv32(lo, hi int64) boundary.Interval {
	i, err := boundary.NewInterval(value.NewInt(32, lo), value.NewInt(32, hi))
	if err != nil {
		panic(err)
	}
	return i
}

func testCtx() *engine.Context {
	ctx := engine.NewContext(engine.EngineArrow)
	ctx.Domains.Set("a", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 99)})
	ctx.Domains.Set("b", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 99)})
	return ctx
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

// scenario 1 from spec.md §8: single block covering the query.
func TestScenarioSingleBlockCoversQuery(t *testing.T) {
	ctx := testCtx()
	s, err := schema.New([]schema.Attribute{
		{Name: "tid", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
		{Name: "b", Kind: value.KindInt32},
	})
	require.NoError(t, err)

	rows := int64(1000)
	block := schema.BlockMeta{
		BlockID:     0,
		Schema:      s,
		Boundary:    boundary.NewBoundary().With("a", iv32(0, 99)).With("b", iv32(0, 99)),
		PartitionID: "part-0",
		RowCount:    &rows,
	}

	filter := expr.FunctionExpression{
		Op:   "and",
		Kind: value.KindBool,
		Children: []expr.Expression{
			cmpExpr("ge", "a", 10),
			cmpExpr("le", "a", 20),
		},
	}
	measure := query.Measure{Name: "sum_b", Expr: expr.AggregateExpression{
		Op:       "sum",
		Children: []expr.Expression{expr.Attribute{Name: "b", Kind: value.KindInt32}},
		Kind:     value.KindInt64,
	}}
	q, err := query.New(ctx, s, filter, []query.Measure{measure})
	require.NoError(t, err)

	blockMeasures, blockFilters, err := ClassifyRoles(ctx, q, []schema.BlockMeta{block})
	require.NoError(t, err)
	require.Len(t, blockMeasures, 1)
	require.Len(t, blockFilters, 1)

	requests, err := PostRequests(ctx, q, blockMeasures, blockFilters)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	result, err := LowerAggregation(ctx, q, requests)
	require.NoError(t, err)
	assert.Len(t, result.DirectParams, 1, "the block's boundary is a SUPERSET of the query's, not a clean SUBSET, so the filter on 'a' still needs a residual check, but the measure on 'b' is entirely local")
	assert.Empty(t, result.ReconstructParams)
}

func TestClassifyRolesExcludesDisjointBlocks(t *testing.T) {
	ctx := testCtx()
	s, err := schema.New([]schema.Attribute{{Name: "a", Kind: value.KindInt32}})
	require.NoError(t, err)
	rows := int64(10)
	block := schema.BlockMeta{
		BlockID:  0,
		Schema:   s,
		Boundary: boundary.NewBoundary().With("a", iv32(500, 600)),
		RowCount: &rows,
	}
	filter := cmpExpr("eq", "a", 1)
	measure := query.Measure{Name: "sum_a", Expr: expr.AggregateExpression{
		Op: "sum", Children: []expr.Expression{expr.Attribute{Name: "a", Kind: value.KindInt32}}, Kind: value.KindInt64,
	}}
	q, err := query.New(ctx, s, filter, []query.Measure{measure})
	require.NoError(t, err)

	blockMeasures, blockFilters, err := ClassifyRoles(ctx, q, []schema.BlockMeta{block})
	require.NoError(t, err)
	assert.Empty(t, blockMeasures)
	assert.Empty(t, blockFilters)
}

func TestGroupMeasureBlocksBySubgraphConnectedComponents(t *testing.T) {
	ctx := testCtx()
	sA, _ := schema.New([]schema.Attribute{{Name: "a", Kind: value.KindInt32}})
	filter := cmpExpr("ge", "a", 0)
	measure := query.Measure{Name: "m", Expr: expr.AggregateExpression{Op: "sum", Children: []expr.Expression{expr.Attribute{Name: "a", Kind: value.KindInt32}}, Kind: value.KindInt64}}
	q, err := query.New(ctx, sA, filter, []query.Measure{measure})
	require.NoError(t, err)

	b0 := schema.BlockMeta{BlockID: 0, Schema: sA, Boundary: boundary.NewBoundary().With("a", iv32(0, 10))}
	b1 := schema.BlockMeta{BlockID: 1, Schema: sA, Boundary: boundary.NewBoundary().With("a", iv32(5, 15))}
	b2 := schema.BlockMeta{BlockID: 2, Schema: sA, Boundary: boundary.NewBoundary().With("a", iv32(90, 99))}

	groups, err := groupMeasureBlocksBySubgraph(ctx, q, []schema.BlockMeta{b0, b1, b2})
	require.NoError(t, err)
	require.Len(t, groups, 2, "b0 and b1 overlap and form one component, b2 is isolated")
}
