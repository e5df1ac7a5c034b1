// Package fileio defines the narrow interfaces hierplan's core (components
// A-J) uses to reach its four external collaborators (spec.md §6): the
// schema file, the table-range file, the partition file, and the query
// file, plus the two outputs (emitted plans, partition + readable report).
// No component outside this package and cmd/ ever imports an encoding
// package directly — grounded on the teacher's own layering, where
// datalog/storage.Store and storage.Iterator are the only interfaces
// datalog/executor depends on, with every concrete backend (badger, the
// in-memory test store) living behind them.
//
// The bit-exact wire format of any of these files is explicitly out of
// scope (spec.md §1, SPEC_FULL.md Non-goals): hierplan defines its own,
// JSON-backed interchange for schema/range/partition/query files (see
// json.go) and its own plain-text plan dump (see text.go), not a
// reproduction of any external format.
package fileio

import (
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/planbuilder"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

// SchemaReader loads the table schema: attribute names, kinds, and optional
// byte-size hints (spec.md §6's schema file).
type SchemaReader interface {
	ReadSchema() (schema.Schema, error)
}

// RangeReader loads the table-wide min/max domain per attribute (spec.md
// §6's range file), used to populate an engine.Registry before any boundary
// comparison runs.
type RangeReader interface {
	ReadRanges() (map[string]engine.DomainRange, error)
}

// RootRowCountReader is an optional capability a RangeReader may also
// implement: the partitioner needs a seed row count for the root table
// block (to estimate every split's child row counts proportionally),
// which a pure min/max range cannot express. cmd/partitioner calls it
// directly on its JSONRangeReader; cmd/planproducer does not use it.
type RootRowCountReader interface {
	ReadRootRowCount() (*int64, error)
}

// PartitionReader loads the partition file: one or more PartitionMeta
// records, each an opaque path plus its blocks.
type PartitionReader interface {
	ReadPartitions(s schema.Schema) ([]*schema.PartitionMeta, error)
}

// QueryReader loads the query file: one or more parsed Query records,
// already carrying their derived FilterBoundary (component F, spec.md §3).
type QueryReader interface {
	ReadQueries(ctx *engine.Context, s schema.Schema) ([]query.Query, error)
}

// PlanWriter emits one built operator tree per query, named by the caller
// (spec.md §6: "q0", "q1", ...).
type PlanWriter interface {
	WritePlan(name string, op planbuilder.Op) error
}

// PartitionWriter emits the partitioner's two outputs: the partition file
// (one PartitionMeta record per output partition, mirroring what
// PartitionReader reads back) and a human-readable companion report
// (spec.md §6's "_readable" suffix).
type PartitionWriter interface {
	WritePartition(partitions []*schema.PartitionMeta) error
	WriteReadable(report string) error
}
