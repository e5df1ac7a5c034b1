package boundary

import (
	"container/heap"
	"sort"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/value"
)

// DefaultMaxIntervals is K, the per-attribute interval cap (spec.md §4.1),
// overridable by callers that need a different fan-out budget.
const DefaultMaxIntervals = 5

// ComplexBoundary maps each attribute to a non-empty, pairwise-disjoint
// vector of intervals: a per-attribute DNF-like disjunction, conjoined
// across attributes. It is what a block's post-read filter boundary becomes
// once more than one request contributes intervals to the same attribute.
//
// Grounded on substrait_producer/metadata/complex_boundary.cpp's
// ComplexBoundary, which unions overlapping/touching intervals eagerly and
// then greedily merges the cheapest remaining pair until each attribute is
// at or under K intervals.
type ComplexBoundary struct {
	Intervals map[string][]Interval
	MaxPerAttr int
}

func NewComplexBoundary() ComplexBoundary {
	return ComplexBoundary{Intervals: make(map[string][]Interval), MaxPerAttr: DefaultMaxIntervals}
}

// FromBoundaries builds a ComplexBoundary from a set of plain boundaries:
// per attribute, collect every contributing interval (missing attributes
// fall back to the domain's full range), union those that overlap or touch,
// then MergeStep down to maxPerAttr using the nearest-pair extra-length cost.
func FromBoundaries(ctx *engine.Context, boundaries []Boundary, maxPerAttr int) (ComplexBoundary, error) {
	if maxPerAttr <= 0 {
		maxPerAttr = DefaultMaxIntervals
	}
	if len(boundaries) == 0 {
		return ComplexBoundary{}, hierr.Wrap(hierr.ErrInvariantViolation, "FromBoundaries requires at least one boundary")
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

	cb := ComplexBoundary{Intervals: make(map[string][]Interval, len(attrs)), MaxPerAttr: maxPerAttr}
	for _, attr := range attrs {
		ivs := make([]Interval, 0, len(boundaries))
		for _, b := range boundaries {
			iv, err := b.resolve(ctx, attr)
			if err != nil {
				return ComplexBoundary{}, err
			}
			ivs = append(ivs, iv)
		}
		merged, err := coalesceTouching(ivs)
		if err != nil {
			return ComplexBoundary{}, err
		}
		for len(merged) > maxPerAttr {
			merged, err = MergeStep(merged)
			if err != nil {
				return ComplexBoundary{}, err
			}
		}
		cb.Intervals[attr] = merged
	}
	return cb, nil
}

// coalesceTouching repeatedly unions any two intervals that overlap or
// touch, leaving a pairwise-DISJOINT, sorted-by-Low vector.
func coalesceTouching(ivs []Interval) ([]Interval, error) {
	working := append([]Interval(nil), ivs...)
	for {
		merged := false
		for i := 0; i < len(working); i++ {
			for j := i + 1; j < len(working); j++ {
				touch, err := working[i].Touches(working[j])
				if err != nil {
					return nil, err
				}
				if !touch {
					continue
				}
				u, err := Union([]Interval{working[i], working[j]})
				if err != nil {
					return nil, err
				}
				working[i] = u
				working = append(working[:j], working[j+1:]...)
				merged = true
				break
			}
			if merged {
				break
			}
		}
		if !merged {
			break
		}
	}
	var sortErr error
	sort.Slice(working, func(i, j int) bool {
		c, err := value.Compare(working[i].Low, working[j].Low)
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return working, nil
}

// pairCost is one candidate merge in the priority queue: merging intervals
// at indices a and b costs extraLength(a, b) = len(union) - len(a) - len(b).
type pairCost struct {
	a, b      int
	extraCost int64
}

type pairHeap []pairCost

func (h pairHeap) Len() int            { return len(h) }
func (h pairHeap) Less(i, j int) bool  { return h[i].extraCost < h[j].extraCost }
func (h pairHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x interface{}) { *h = append(*h, x.(pairCost)) }
func (h *pairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeStep performs a single nearest-pair merge: it finds the two
// currently-disjoint intervals whose union has the smallest "extra length"
// (length of union minus the sum of the two lengths) and replaces them with
// their union, returning a vector one element shorter. Exposed as its own
// function, rather than folded into the K-interval loop, so the merge
// heuristic is independently testable.
func MergeStep(ivs []Interval) ([]Interval, error) {
	if len(ivs) < 2 {
		return ivs, nil
	}
	pq := make(pairHeap, 0, len(ivs)*(len(ivs)-1)/2)
	for i := 0; i < len(ivs); i++ {
		for j := i + 1; j < len(ivs); j++ {
			cost, err := extraLength(ivs[i], ivs[j])
			if err != nil {
				return nil, err
			}
			pq = append(pq, pairCost{a: i, b: j, extraCost: cost})
		}
	}
	heap.Init(&pq)
	best := heap.Pop(&pq).(pairCost)

	u, err := Union([]Interval{ivs[best.a], ivs[best.b]})
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(ivs)-1)
	out = append(out, u)
	for i, iv := range ivs {
		if i == best.a || i == best.b {
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}

// extraLength is the merge cost used by MergeStep's priority queue: the
// width (High - Low) of the union of a and b minus their two individual
// widths. It is 1 for adjacent intervals such as [0,9] and [10,19], and
// negative for overlapping ones ([0,10] and [5,15] give -5).
func extraLength(a, b Interval) (int64, error) {
	u, err := Union([]Interval{a, b})
	if err != nil {
		return 0, err
	}
	uLen, err := u.length()
	if err != nil {
		return 0, err
	}
	aLen, err := a.length()
	if err != nil {
		return 0, err
	}
	bLen, err := b.length()
	if err != nil {
		return 0, err
	}
	return uLen - aLen - bLen, nil
}

// RelationToInterval implements spec.md §4.1's relation of a per-attribute
// interval vector C to a plain interval p: all-DISJOINT -> DISJOINT; a
// single interval EQUAL p -> EQUAL; all SUBSET -> SUBSET; any SUPERSET, or
// any EQUAL when |C|>1, -> SUPERSET; else INTERSECT.
func RelationToInterval(c []Interval, p Interval) (Relation, error) {
	if len(c) == 0 {
		return 0, hierr.Wrap(hierr.ErrInvariantViolation, "RelationToInterval requires a non-empty interval vector")
	}
	allDisjoint := true
	allSubset := true
	anySuperset := false
	anyEqual := false
	for _, iv := range c {
		rel, err := iv.Relationship(p)
		if err != nil {
			return 0, err
		}
		if rel != RelDisjoint {
			allDisjoint = false
		}
		if rel != RelSubset {
			allSubset = false
		}
		if rel == RelSuperset {
			anySuperset = true
		}
		if rel == RelEqual {
			anyEqual = true
		}
	}
	if allDisjoint {
		return RelDisjoint, nil
	}
	if len(c) == 1 && anyEqual {
		return RelEqual, nil
	}
	if anySuperset || (anyEqual && len(c) > 1) {
		return RelSuperset, nil
	}
	if allSubset {
		return RelSubset, nil
	}
	return RelIntersect, nil
}
