package boundary

import (
	"sort"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/hierr"
)

// Boundary is a conjunction of per-attribute closed intervals: a hyper
// rectangle over the schema's attribute space. An attribute absent from
// Intervals is implicitly the full domain range registered in the
// engine.Context (spec.md §4.1).
//
// Grounded on substrait_producer/metadata/boundary.cpp's Boundary class,
// whose relationship/intersect/split operate attribute-by-attribute and fall
// back to the table-wide min/max when an attribute is missing from one side.
type Boundary struct {
	Intervals map[string]Interval
}

func NewBoundary() Boundary {
	return Boundary{Intervals: make(map[string]Interval)}
}

func (b Boundary) Clone() Boundary {
	out := make(map[string]Interval, len(b.Intervals))
	for k, v := range b.Intervals {
		out[k] = v.Clone()
	}
	return Boundary{Intervals: out}
}

func (b Boundary) With(attr string, iv Interval) Boundary {
	clone := b.Clone()
	clone.Intervals[attr] = iv
	return clone
}

// attributeUnion returns the sorted union of attribute names across two
// boundaries, so every comparison walks attributes in a deterministic order
// (spec.md §9's attribute-ordering open question applies equally here: never
// range over a map without sorting first).
func attributeUnion(a, b Boundary) []string {
	seen := make(map[string]struct{}, len(a.Intervals)+len(b.Intervals))
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
	sort.Strings(out)
	return out
}

func (b Boundary) resolve(ctx *engine.Context, attr string) (Interval, error) {
	if iv, ok := b.Intervals[attr]; ok {
		return iv, nil
	}
	rng, err := ctx.Domains.FullDomain(attr)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Low: rng.Min, High: rng.Max}, nil
}

// Relationship combines the per-attribute relationships of every attribute
// appearing in either boundary: any DISJOINT attribute makes the whole
// boundary pair DISJOINT; otherwise the weakest of EQUAL/SUBSET/SUPERSET
// dominates to INTERSECT as soon as attributes disagree (spec.md §4.1).
func (b Boundary) Relationship(ctx *engine.Context, other Boundary) (Relation, error) {
	attrs := attributeUnion(b, other)
	overall := RelEqual
	for _, attr := range attrs {
		selfIv, err := b.resolve(ctx, attr)
		if err != nil {
			return 0, err
		}
		otherIv, err := other.resolve(ctx, attr)
		if err != nil {
			return 0, err
		}
		rel, err := selfIv.Relationship(otherIv)
		if err != nil {
			return 0, err
		}
		if rel == RelDisjoint {
			return RelDisjoint, nil
		}
		overall = combine(overall, rel)
	}
	return overall, nil
}

// combine folds one more attribute's relationship into the running overall
// relationship of a boundary pair: EQUAL is the identity, a lone SUBSET or
// SUPERSET carries through unanimously, and any disagreement collapses to
// INTERSECT.
func combine(overall, rel Relation) Relation {
	if rel == RelEqual {
		return overall
	}
	if overall == RelEqual {
		return rel
	}
	if overall == rel {
		return overall
	}
	return RelIntersect
}

// Intersect returns the per-attribute intersection. Precondition: the two
// boundaries are not DISJOINT.
func (b Boundary) Intersect(ctx *engine.Context, other Boundary) (Boundary, error) {
	attrs := attributeUnion(b, other)
	out := NewBoundary()
	for _, attr := range attrs {
		selfIv, err := b.resolve(ctx, attr)
		if err != nil {
			return Boundary{}, err
		}
		otherIv, err := other.resolve(ctx, attr)
		if err != nil {
			return Boundary{}, err
		}
		inter, err := selfIv.Intersect(otherIv)
		if err != nil {
			return Boundary{}, hierr.Wrap(hierr.ErrInvariantViolation, "Intersect called on disjoint boundaries")
		}
		out.Intervals[attr] = inter
	}
	return out, nil
}

// SplitOn splits b on attribute attr at point, returning two boundaries
// identical to b except for attr's interval.
func (b Boundary) SplitOn(ctx *engine.Context, attr string, point Interval, pointSide PointSide) (ok bool, left, right Boundary, err error) {
	iv, err := b.resolve(ctx, attr)
	if err != nil {
		return false, Boundary{}, Boundary{}, err
	}
	ok, leftIv, rightIv, err := iv.Split(point.Low, pointSide)
	if err != nil || !ok {
		return ok, Boundary{}, Boundary{}, err
	}
	left = b.With(attr, leftIv)
	right = b.With(attr, rightIv)
	return true, left, right, nil
}

// UnionBoundaries returns the smallest boundary covering every input
// boundary, attribute by attribute; attributes missing from some inputs are
// filled from the domain registry before unioning.
func UnionBoundaries(ctx *engine.Context, boundaries []Boundary) (Boundary, error) {
	if len(boundaries) == 0 {
		return Boundary{}, hierr.Wrap(hierr.ErrInvariantViolation, "Union requires at least one boundary")
	}
	attrSet := make(map[string]struct{})
	for _, b := range boundaries {
		for k := range b.Intervals {
			attrSet[k] = struct{}{}
		}
	}
	attrs := make([]string, 0, len(attrSet))
	for k := range attrSet {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	out := NewBoundary()
	for _, attr := range attrs {
		ivs := make([]Interval, 0, len(boundaries))
		for _, b := range boundaries {
			iv, err := b.resolve(ctx, attr)
			if err != nil {
				return Boundary{}, err
			}
			ivs = append(ivs, iv)
		}
		unioned, uerr := Union(ivs)
		if uerr != nil {
			return Boundary{}, uerr
		}
		out.Intervals[attr] = unioned
	}
	return out, nil
}
