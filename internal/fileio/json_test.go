package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestJSONSchemaReaderRoundTrips(t *testing.T) {
	path := writeTemp(t, "schema.json", `{
		"attributes": [
			{"name": "tid", "kind": "int64"},
			{"name": "a", "kind": "int32"},
			{"name": "b", "kind": "decimal"}
		]
	}`)

	s, err := JSONSchemaReader{Path: path}.ReadSchema()
	require.NoError(t, err)
	assert.Equal(t, []string{"tid", "a", "b"}, s.Names())
	attr, _, ok := s.ByName("b")
	require.True(t, ok)
	assert.Equal(t, value.KindDecimal, attr.Kind)
}

func TestJSONSchemaReaderRejectsUnknownKind(t *testing.T) {
	path := writeTemp(t, "schema.json", `{"attributes": [{"name": "a", "kind": "bogus"}]}`)
	_, err := JSONSchemaReader{Path: path}.ReadSchema()
	assert.Error(t, err)
}

func TestJSONRangeReaderRoundTrips(t *testing.T) {
	path := writeTemp(t, "ranges.json", `{
		"ranges": [
			{"attribute": "a", "min": {"kind": "int", "int": 0, "bit_size": 32}, "max": {"kind": "int", "int": 99, "bit_size": 32}}
		]
	}`)

	ranges, err := JSONRangeReader{Path: path}.ReadRanges()
	require.NoError(t, err)
	require.Contains(t, ranges, "a")
	assert.Equal(t, int64(0), ranges["a"].Min.AsInt())
	assert.Equal(t, int64(99), ranges["a"].Max.AsInt())
}

func TestJSONRangeReaderReadsOptionalRootRowCount(t *testing.T) {
	path := writeTemp(t, "ranges.json", `{
		"ranges": [{"attribute": "a", "min": {"kind": "int", "int": 0, "bit_size": 32}, "max": {"kind": "int", "int": 99, "bit_size": 32}}],
		"row_count": 1000
	}`)
	rows, err := JSONRangeReader{Path: path}.ReadRootRowCount()
	require.NoError(t, err)
	require.NotNil(t, rows)
	assert.Equal(t, int64(1000), *rows)
}

func TestJSONRangeReaderRootRowCountNilWhenAbsent(t *testing.T) {
	path := writeTemp(t, "ranges.json", `{"ranges": []}`)
	rows, err := JSONRangeReader{Path: path}.ReadRootRowCount()
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.Attribute{
		{Name: "tid", Kind: value.KindInt64},
		{Name: "a", Kind: value.KindInt32},
	})
	require.NoError(t, err)
	return s
}

func TestJSONPartitionRoundTripsThroughWriterAndReader(t *testing.T) {
	s := testSchema(t)
	rows := int64(500)
	pm := schema.NewPartitionMeta("part-0.parquet")
	iv, err := boundary.NewInterval(value.NewInt(32, 0), value.NewInt(32, 99))
	require.NoError(t, err)
	pm.Append(schema.BlockMeta{
		Schema:       s,
		Boundary:     boundary.NewBoundary().With("a", iv),
		RowCount:     &rows,
		SplitHistory: []string{"a"},
	})

	dir := t.TempDir()
	w := JSONPartitionWriter{
		PartitionPath: filepath.Join(dir, "partitions.json"),
		ReadablePath:  filepath.Join(dir, "partitions_readable.txt"),
	}
	require.NoError(t, w.WritePartition([]*schema.PartitionMeta{pm}))
	require.NoError(t, w.WriteReadable("1 block, 500 rows"))

	readBack, err := os.ReadFile(w.ReadablePath)
	require.NoError(t, err)
	assert.Equal(t, "1 block, 500 rows", string(readBack))

	got, err := JSONPartitionReader{Path: w.PartitionPath}.ReadPartitions(s)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Blocks, 1)
	block := got[0].Blocks[0]
	assert.Equal(t, []string{"a"}, block.SplitHistory)
	require.NotNil(t, block.RowCount)
	assert.Equal(t, int64(500), *block.RowCount)
	iv, ok := block.Boundary.Intervals["a"]
	require.True(t, ok)
	assert.Equal(t, int64(0), iv.Low.AsInt())
	assert.Equal(t, int64(99), iv.High.AsInt())
}

func TestJSONQueryReaderBuildsFilterBoundary(t *testing.T) {
	s := testSchema(t)
	ctx := engine.NewContext(engine.EngineArrow)
	ctx.Domains.Set("a", engine.DomainRange{Min: value.NewInt(32, 0), Max: value.NewInt(32, 999)})

	path := writeTemp(t, "queries.json", `{
		"queries": [
			{
				"filter": {
					"type": "function",
					"op": "and",
					"kind": "bool",
					"children": [
						{
							"type": "function",
							"op": "gt",
							"kind": "bool",
							"children": [
								{"type": "attribute", "name": "a", "kind": "int32"},
								{"type": "literal", "val": {"kind": "int", "int": 10, "bit_size": 32}}
							]
						},
						{
							"type": "function",
							"op": "lt",
							"kind": "bool",
							"children": [
								{"type": "attribute", "name": "a", "kind": "int32"},
								{"type": "literal", "val": {"kind": "int", "int": 50, "bit_size": 32}}
							]
						}
					]
				},
				"measures": [
					{
						"name": "sum_a",
						"expr": {
							"type": "aggregate",
							"op": "sum",
							"kind": "int64",
							"children": [
								{"type": "attribute", "name": "a", "kind": "int32"}
							]
						}
					}
				]
			}
		]
	}`)

	queries, err := JSONQueryReader{Path: path}.ReadQueries(ctx, s)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	q := queries[0]
	require.Len(t, q.Measures, 1)
	assert.Equal(t, "sum_a", q.Measures[0].Name)
	assert.Equal(t, "sum", q.Measures[0].AggregateOp())
	iv, ok := q.FilterBoundary.Intervals["a"]
	require.True(t, ok)
	assert.Equal(t, int64(11), iv.Low.AsInt())
	assert.Equal(t, int64(49), iv.High.AsInt())
}

func TestJSONQueryReaderRejectsUnknownExpressionType(t *testing.T) {
	s := testSchema(t)
	ctx := engine.NewContext(engine.EngineArrow)
	path := writeTemp(t, "queries.json", `{"queries": [{"filter": {"type": "bogus"}, "measures": []}]}`)
	_, err := JSONQueryReader{Path: path}.ReadQueries(ctx, s)
	assert.Error(t, err)
}

func TestFakesAndCodecSatisfyInterfaces(t *testing.T) {
	var _ SchemaReader = MemSchemaReader{}
	var _ RangeReader = MemRangeReader{}
	var _ PartitionReader = MemPartitionReader{}
	var _ QueryReader = MemQueryReader{}
	var _ PlanWriter = NewMemPlanWriter()
	var _ PartitionWriter = &MemPartitionWriter{}

	var _ SchemaReader = JSONSchemaReader{}
	var _ RangeReader = JSONRangeReader{}
	var _ PartitionReader = JSONPartitionReader{}
	var _ QueryReader = JSONQueryReader{}
	var _ PartitionWriter = JSONPartitionWriter{}
	var _ RootRowCountReader = JSONRangeReader{}
	var _ RootRowCountReader = MemRangeReader{}
}
