package partitioner

import (
	"math/rand"
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
	ctx.Domains.Set("a", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 999)})
	ctx.Domains.Set("b", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 999)})
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

func rangeFilter(attr string, lo, hi int64) expr.Expression {
	return expr.FunctionExpression{
		Op:   "and",
		Kind: value.KindBool,
		Children: []expr.Expression{
			cmpExpr("ge", attr, lo),
			cmpExpr("le", attr, hi),
		},
	}
}

func testSplitSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.Attribute{
		{Name: "tuple_id", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
		{Name: "b", Kind: value.KindInt32},
	})
	require.NoError(t, err)
	return s
}

func testMeasure() query.Measure {
	return query.Measure{Name: "sum_b", Expr: expr.AggregateExpression{
		Op:       "sum",
		Children: []expr.Expression{expr.Attribute{Name: "b", Kind: value.KindInt32}},
		Kind:     value.KindInt64,
	}}
}

// TestHorizontalPartitionSplitsOnQueryBoundary checks that a block much
// larger than any single training query's filter range gets split down
// until every leaf satisfies the row-count stop condition.
func TestHorizontalPartitionSplitsOnQueryBoundary(t *testing.T) {
	ctx := testCtx()
	s := testSplitSchema(t)
	rows := int64(1000)
	block := schema.BlockMeta{
		Schema:   s,
		Boundary: boundary.NewBoundary().With("a", iv32(0, 999)).With("b", iv32(0, 999)),
		RowCount: &rows,
	}

	var queries []query.Query
	for _, lo := range []int64{0, 100, 200, 300, 400, 500, 600, 700, 800, 900} {
		q, err := query.New(ctx, s, rangeFilter("a", lo, lo+50), []query.Measure{testMeasure()})
		require.NoError(t, err)
		queries = append(queries, q)
	}

	sp := NewSplitter(ctx, rand.New(rand.NewSource(1)), MinRowCount(100))
	blocks, err := sp.HorizontalPartition(block, queries)
	require.NoError(t, err)

	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		assert.NotNil(t, b.RowCount)
	}
}

// TestHorizontalPartitionStopsImmediatelyOnSmallBlock checks the trivial
// case: a block already below the stop threshold is returned unsplit.
func TestHorizontalPartitionStopsImmediatelyOnSmallBlock(t *testing.T) {
	ctx := testCtx()
	s := testSplitSchema(t)
	rows := int64(10)
	block := schema.BlockMeta{
		Schema:   s,
		Boundary: boundary.NewBoundary().With("a", iv32(0, 999)).With("b", iv32(0, 999)),
		RowCount: &rows,
	}
	q, err := query.New(ctx, s, rangeFilter("a", 0, 50), []query.Measure{testMeasure()})
	require.NoError(t, err)

	sp := NewSplitter(ctx, rand.New(rand.NewSource(1)), MinRowCount(100))
	blocks, err := sp.HorizontalPartition(block, []query.Query{q})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, block.Boundary, blocks[0].Boundary)
}

// TestWeightedDrawRespectsWeights checks that a heavily weighted attribute
// is chosen far more often than an unweighted one, without ever selecting
// an attribute carrying zero weight when a positive-weight one exists.
func TestWeightedDrawRespectsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	weights := map[string]int{"a": 95, "b": 5}
	names := []string{"a", "b"}

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		counts[weightedDraw(rng, names, weights, 100)]++
	}
	assert.Greater(t, counts["a"], counts["b"])
	assert.Greater(t, counts["a"], 800)
}

// TestResizeBlockFallsBackToDomainMidpoint checks that when no attribute has
// been split yet (splitCount empty), resizeBlock falls back to iterating the
// registry's full domain list and still manages to shrink the block.
func TestResizeBlockFallsBackToDomainMidpoint(t *testing.T) {
	ctx := testCtx()
	rows := int64(1000)
	block := schema.BlockMeta{
		Boundary: boundary.NewBoundary().With("a", iv32(0, 999)),
		RowCount: &rows,
	}

	sp := NewSplitter(ctx, rand.New(rand.NewSource(3)), MinRowCount(100))
	blocks, err := sp.resizeBlock(block)
	require.NoError(t, err)
	require.Greater(t, len(blocks), 1)
}

// TestHorizontalPartitionAlignsSplitOnQueryBoundary checks that
// endpoint-driven splitting actually snaps a child boundary onto one of the
// training query's own filter endpoints (spec.md §4.7) rather than landing
// one unit off it, which is what a reversed Low/High <-> PointSide pairing
// would produce.
func TestHorizontalPartitionAlignsSplitOnQueryBoundary(t *testing.T) {
	ctx := testCtx()
	s := testSplitSchema(t)
	rows := int64(1000)
	block := schema.BlockMeta{
		Schema:   s,
		Boundary: boundary.NewBoundary().With("a", iv32(0, 999)),
		RowCount: &rows,
	}

	q, err := query.New(ctx, s, rangeFilter("a", 100, 199), []query.Measure{testMeasure()})
	require.NoError(t, err)

	sp := NewSplitter(ctx, rand.New(rand.NewSource(1)), MinRowCount(100))
	blocks, err := sp.HorizontalPartition(block, []query.Query{q})
	require.NoError(t, err)
	require.Greater(t, len(blocks), 1)

	lowAligned := false
	highAligned := false
	for _, b := range blocks {
		iv, ok := b.Boundary.Intervals["a"]
		require.True(t, ok)
		if iv.Low.AsInt() == 100 {
			lowAligned = true
		}
		if iv.High.AsInt() == 199 {
			highAligned = true
		}
	}
	assert.True(t, lowAligned || highAligned, "expected some leaf boundary to align exactly with the query filter's low (100) or high (199) endpoint, got %+v", blocks)
}

func TestEstimateIOSizeSkipsDisjointQueries(t *testing.T) {
	ctx := testCtx()
	s := testSplitSchema(t)
	rows := int64(1000)
	block := schema.BlockMeta{
		Schema:   s,
		Boundary: boundary.NewBoundary().With("a", iv32(0, 10)),
		RowCount: &rows,
	}
	q, err := query.New(ctx, s, rangeFilter("a", 500, 600), []query.Measure{testMeasure()})
	require.NoError(t, err)

	size, intersecting, err := estimateIOSize(ctx, block, []query.Query{q})
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	assert.Empty(t, intersecting)
}
