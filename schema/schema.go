// Package schema implements the ordered attribute list (Schema), the
// per-block metadata record (BlockMeta) and the partition-level container
// of blocks (PartitionMeta) — spec.md §3 / component E.
//
// Grounded on _examples/original_source/substrait_producer/metadata/
// {schema,boundary}.{h,cpp} for the BlockMeta relationship/estimateRowNum
// contracts, and on the teacher's preference for explicit, non-owning back
// references (compare datalog's Datom/Keyword layering, which never lets a
// child type own or cycle back to its container) for BlockMeta's pointer to
// its containing PartitionMeta.
package schema

import (
	"fmt"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/value"
)

// Attribute describes one column: its name, scalar kind, and an optional
// fixed-binary byte-size hint (0 means "not fixed binary / not specified").
type Attribute struct {
	Name     string
	Kind     value.Kind
	ByteSize int
}

// Schema is an ordered, name-unique attribute list, indexable by name or
// position. Per the attribute-ordering Open Question (spec.md §9), this is
// the order-preserving container every downstream component must use
// instead of a bare map: a slice holding insertion order, plus a name index
// for O(1) lookup.
type Schema struct {
	attrs []Attribute
	index map[string]int
}

// New builds a Schema from attrs in the given order, rejecting duplicate
// names.
func New(attrs []Attribute) (Schema, error) {
	index := make(map[string]int, len(attrs))
	for i, a := range attrs {
		if _, dup := index[a.Name]; dup {
			return Schema{}, hierr.Wrap(hierr.ErrInvariantViolation, fmt.Sprintf("duplicate attribute name %q", a.Name))
		}
		index[a.Name] = i
	}
	cp := make([]Attribute, len(attrs))
	copy(cp, attrs)
	return Schema{attrs: cp, index: index}, nil
}

func (s Schema) Len() int { return len(s.attrs) }

// At returns the attribute at position i, in schema order.
func (s Schema) At(i int) Attribute { return s.attrs[i] }

// ByName returns the attribute and its position, by name.
func (s Schema) ByName(name string) (Attribute, int, bool) {
	i, ok := s.index[name]
	if !ok {
		return Attribute{}, 0, false
	}
	return s.attrs[i], i, true
}

// Names returns attribute names in schema order — the canonical iteration
// order for anything that must walk "all attributes" deterministically.
func (s Schema) Names() []string {
	out := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		out[i] = a.Name
	}
	return out
}

// Contains reports whether name is a member of the schema.
func (s Schema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Project returns the sub-schema containing only names, preserving s's
// original relative order (not the order of names).
func (s Schema) Project(names map[string]struct{}) Schema {
	var kept []Attribute
	for _, a := range s.attrs {
		if _, ok := names[a.Name]; ok {
			kept = append(kept, a)
		}
	}
	out, _ := New(kept)
	return out
}

// BitPositions returns, for each name present in both s and names, its
// position in s — the index space every schema-relative bitmap
// (read_attributes, project_attributes, ...) is defined over.
func (s Schema) BitPositions(names map[string]struct{}) []uint {
	var out []uint
	for i, a := range s.attrs {
		if _, ok := names[a.Name]; ok {
			out = append(out, uint(i))
		}
	}
	return out
}

// BlockMeta is one physical block: a column-group subset of the table
// schema, a value-range subset of the table domain, an optional row-count
// estimate, and a non-owning back-pointer (by id) to its containing
// partition. Block ids are unique within a partition, never globally.
type BlockMeta struct {
	BlockID     int
	Schema      Schema
	Boundary    boundary.Boundary
	PartitionID string // PartitionMeta.Path; non-owning handle, not a pointer.
	RowCount    *int64 // nil means "unknown, must be estimated".

	// SplitHistory records, in order, the attributes a horizontal split
	// divided this block on to produce it from its root table block.
	// Diagnostic only (not consulted by Relationship/EstimateRowNum); the
	// horizontal partitioner also reads it back to weight its
	// resize-fallback attribute draw toward attributes already split along
	// this path.
	SplitHistory []string
}

// Relationship delegates to the block's boundary, since two blocks' set
// relation for scan-parameter classification purposes is exactly their
// boundary relation (spec.md §4.1/§4.3 operate purely on boundaries; schema
// overlap is handled separately by the scan-parameter role classifier).
func (b BlockMeta) Relationship(ctx *engine.Context, other BlockMeta) (boundary.Relation, error) {
	return b.Boundary.Relationship(ctx, other.Boundary)
}

// EstimateRowNum estimates how many of the block's rows fall inside target:
// all RowCount rows when the block's boundary is EQUAL to or a SUBSET of
// target, none when they are DISJOINT, and otherwise RowCount times the
// product, over every attribute either boundary constrains, of the block
// interval's IntersectionRatio with target's interval (independence
// assumption; an attribute one side leaves unconstrained takes the
// registered domain range). It returns an error when RowCount is nil.
func (b BlockMeta) EstimateRowNum(ctx *engine.Context, target boundary.Boundary) (float64, error) {
	if b.RowCount == nil {
		return 0, hierr.Wrap(hierr.ErrInvariantViolation, "EstimateRowNum requires a known block row count")
	}
	rows := float64(*b.RowCount)
	rel, err := b.Boundary.Relationship(ctx, target)
	if err != nil {
		return 0, err
	}
	switch rel {
	case boundary.RelEqual, boundary.RelSubset:
		return rows, nil
	case boundary.RelDisjoint:
		return 0, nil
	}

	ratio := 1.0
	attrs := unionAttrNames(b.Boundary, target)
	for _, attr := range attrs {
		selfIv, err := resolveInterval(ctx, b.Boundary, attr)
		if err != nil {
			return 0, err
		}
		targetIv, err := resolveInterval(ctx, target, attr)
		if err != nil {
			return 0, err
		}
		r, err := selfIv.IntersectionRatio(targetIv)
		if err != nil {
			return 0, err
		}
		ratio *= r
	}
	return rows * ratio, nil
}

func unionAttrNames(a, b boundary.Boundary) []string {
	seen := map[string]struct{}{}
	for k := range a.Intervals {
		seen[k] = struct{}{}
	}
	for k := range b.Intervals {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

func resolveInterval(ctx *engine.Context, b boundary.Boundary, attr string) (boundary.Interval, error) {
	if iv, ok := b.Intervals[attr]; ok {
		return iv, nil
	}
	rng, err := ctx.Domains.FullDomain(attr)
	if err != nil {
		return boundary.Interval{}, err
	}
	return boundary.Interval{Low: rng.Min, High: rng.Max}, nil
}

// Split divides b on attribute attr at point, returning two BlockMeta
// records identical to b (same schema, same row count halved proportionally
// by the resulting boundary's share) except for their Boundary and BlockID,
// which the caller must assign from the owning PartitionMeta.
func (b BlockMeta) Split(ctx *engine.Context, attr string, point value.Value, pointSide boundary.PointSide) (ok bool, left, right BlockMeta, err error) {
	splitOK, leftB, rightB, err := b.Boundary.SplitOn(ctx, attr, boundary.Interval{Low: point, High: point}, pointSide)
	if err != nil || !splitOK {
		return splitOK, BlockMeta{}, BlockMeta{}, err
	}
	history := append(append([]string{}, b.SplitHistory...), attr)
	left = BlockMeta{Schema: b.Schema, Boundary: leftB, PartitionID: b.PartitionID, SplitHistory: history}
	right = BlockMeta{Schema: b.Schema, Boundary: rightB, PartitionID: b.PartitionID, SplitHistory: history}
	if b.RowCount != nil {
		leftRows, err := left.estimateShareOf(ctx, b)
		if err != nil {
			return false, BlockMeta{}, BlockMeta{}, err
		}
		rightRows := *b.RowCount - leftRows
		left.RowCount = &leftRows
		right.RowCount = &rightRows
	}
	return true, left, right, nil
}

func (b BlockMeta) estimateShareOf(ctx *engine.Context, parent BlockMeta) (int64, error) {
	rows, err := parent.EstimateRowNum(ctx, b.Boundary)
	if err != nil {
		return 0, err
	}
	return int64(rows), nil
}

// PartitionMeta is an ordered vector of blocks stored under one opaque file
// path. Appending a block assigns it a fresh, partition-unique id.
type PartitionMeta struct {
	Path   string
	Blocks []BlockMeta
	nextID int
}

func NewPartitionMeta(path string) *PartitionMeta {
	return &PartitionMeta{Path: path}
}

// Append assigns block a fresh BlockID and PartitionID and adds it.
func (p *PartitionMeta) Append(block BlockMeta) BlockMeta {
	block.BlockID = p.nextID
	block.PartitionID = p.Path
	p.nextID++
	p.Blocks = append(p.Blocks, block)
	return block
}

// ByID returns the block with the given id within this partition.
func (p *PartitionMeta) ByID(id int) (BlockMeta, bool) {
	for _, b := range p.Blocks {
		if b.BlockID == id {
			return b, true
		}
	}
	return BlockMeta{}, false
}
