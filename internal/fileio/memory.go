package fileio

import (
	"strings"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/planbuilder"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

// MemSchemaReader wraps an already-built Schema, for tests and for callers
// that construct one programmatically instead of reading a file.
type MemSchemaReader struct{ Schema schema.Schema }

func (r MemSchemaReader) ReadSchema() (schema.Schema, error) { return r.Schema, nil }

// MemRangeReader wraps a pre-populated domain map and an optional root row
// count (RootRowCountReader).
type MemRangeReader struct {
	Ranges   map[string]engine.DomainRange
	RowCount *int64
}

func (r MemRangeReader) ReadRanges() (map[string]engine.DomainRange, error) { return r.Ranges, nil }

func (r MemRangeReader) ReadRootRowCount() (*int64, error) { return r.RowCount, nil }

// MemPartitionReader wraps pre-built partitions.
type MemPartitionReader struct{ Partitions []*schema.PartitionMeta }

func (r MemPartitionReader) ReadPartitions(schema.Schema) ([]*schema.PartitionMeta, error) {
	return r.Partitions, nil
}

// MemQueryReader wraps pre-built queries.
type MemQueryReader struct{ Queries []query.Query }

func (r MemQueryReader) ReadQueries(*engine.Context, schema.Schema) ([]query.Query, error) {
	return r.Queries, nil
}

// MemPlanWriter captures each emitted plan's text dump in memory, in
// emission order, for tests to assert against without touching a
// filesystem.
type MemPlanWriter struct {
	Names []string
	Plans map[string]string
}

func NewMemPlanWriter() *MemPlanWriter {
	return &MemPlanWriter{Plans: map[string]string{}}
}

func (w *MemPlanWriter) WritePlan(name string, op planbuilder.Op) error {
	var b strings.Builder
	writePlanTree(&b, op, 0)
	w.Names = append(w.Names, name)
	w.Plans[name] = b.String()
	return nil
}

// MemPartitionWriter captures the partitioner's two outputs in memory.
type MemPartitionWriter struct {
	Partitions []*schema.PartitionMeta
	Readable   string
}

func (w *MemPartitionWriter) WritePartition(partitions []*schema.PartitionMeta) error {
	w.Partitions = partitions
	return nil
}

func (w *MemPartitionWriter) WriteReadable(report string) error {
	w.Readable = report
	return nil
}
