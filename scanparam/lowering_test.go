package scanparam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// scenario 2 from spec.md §8: two disjoint-column blocks over the same row
// range, requiring reconstruction.
func TestScenarioTwoColumnDisjointBlocksReconstruct(t *testing.T) {
	ctx := testCtx()
	sTidA, err := schema.New([]schema.Attribute{
		{Name: "tuple_id", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
	})
	require.NoError(t, err)
	sTidB, err := schema.New([]schema.Attribute{
		{Name: "tuple_id", Kind: value.KindInt64},
		{Name: "b", Kind: value.KindInt32},
	})
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

	fullSchema, err := schema.New([]schema.Attribute{
		{Name: "tuple_id", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
		{Name: "b", Kind: value.KindInt32},
	})
	require.NoError(t, err)
	q, err := query.New(ctx, fullSchema, filter, []query.Measure{sumAB})
	require.NoError(t, err)

	blocks := []schema.BlockMeta{blockA, blockB}
	blockMeasures, blockFilters, err := ClassifyRoles(ctx, q, blocks)
	require.NoError(t, err)
	require.Len(t, blockMeasures, 2)

	requests, err := PostRequests(ctx, q, blockMeasures, blockFilters)
	require.NoError(t, err)

	result, err := LowerAggregation(ctx, q, requests)
	require.NoError(t, err)
	assert.Len(t, result.ReconstructParams, 2, "neither block carries both 'a' and 'b', so both need reconstruction to compute sum(a+b)")
	assert.Empty(t, result.DirectParams)

	for _, sp := range result.ReconstructParams {
		_, hasTuple := sp.ReadAttributes["tuple_id"]
		assert.True(t, hasTuple)
	}
}

func TestBuildReconstructParamDropsBlockBoundaryEqualInterval(t *testing.T) {
	ctx := testCtx()
	s, err := schema.New([]schema.Attribute{{Name: "a", Kind: value.KindInt32}})
	require.NoError(t, err)
	rows := int64(10)
	block := schema.BlockMeta{BlockID: 0, Schema: s, Boundary: boundary.NewBoundary().With("a", iv32(0, 99)), PartitionID: "p", RowCount: &rows}

	req := newRawRequest(block)
	req.FilterRequestedFilters = []boundary.Boundary{boundary.NewBoundary().With("a", iv32(0, 99))}

	filter := cmpExpr("ge", "a", 0)
	q, err := query.New(ctx, s, filter, nil)
	require.NoError(t, err)

	sp, err := buildReconstructParam(ctx, q, req)
	require.NoError(t, err)
	assert.False(t, sp.HasPostReadFilter, "a post-read filter that exactly restates the block's own boundary is implicit and must be dropped")
}
