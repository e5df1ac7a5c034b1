// Package boundary implements the interval/boundary/complex-boundary
// algebra: per-attribute closed intervals, their conjunction across
// attributes (Boundary), and the per-attribute disjunction used for
// post-read filters (ComplexBoundary).
//
// Grounded on _examples/original_source/substrait_producer/metadata/
// {interval,boundary,complex_boundary}.cpp for exact semantics, expressed in
// the teacher's idiom of small, independently testable value-type methods
// (compare datalog.CompareValues / Keyword.Compare in datalog/compare.go,
// datalog/types.go).
package boundary

import (
	"fmt"

	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/value"
)

// Relation is the set-relationship between two intervals or boundaries.
type Relation int

const (
	RelEqual Relation = iota
	RelSubset
	RelSuperset
	RelIntersect
	RelDisjoint
)

func (r Relation) String() string {
	switch r {
	case RelEqual:
		return "EQUAL"
	case RelSubset:
		return "SUBSET"
	case RelSuperset:
		return "SUPERSET"
	case RelIntersect:
		return "INTERSECT"
	case RelDisjoint:
		return "DISJOINT"
	default:
		return "UNKNOWN"
	}
}

// PointSide selects which child interval a split point belongs to.
type PointSide int

const (
	PointLeft PointSide = iota
	PointRight
)

// Interval is a closed [Low, High] range over values of one Kind.
type Interval struct {
	Low  value.Value
	High value.Value
}

// NewInterval constructs a closed interval, requiring Low <= High.
func NewInterval(low, high value.Value) (Interval, error) {
	c, err := value.Compare(low, high)
	if err != nil {
		return Interval{}, err
	}
	if c > 0 {
		return Interval{}, hierr.Wrap(hierr.ErrInvariantViolation, "interval low must not exceed high")
	}
	return Interval{Low: low, High: high}, nil
}

func (iv Interval) Clone() Interval {
	return Interval{Low: iv.Low.Clone(), High: iv.High.Clone()}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s]", iv.Low, iv.High)
}

// Relationship implements spec.md §4.1: maxLow=max(a.low,b.low),
// minHigh=min(a.high,b.high); maxLow>minHigh => DISJOINT; otherwise compare
// endpoints.
func (iv Interval) Relationship(other Interval) (Relation, error) {
	lowCmp, err := value.Compare(iv.Low, other.Low)
	if err != nil {
		return 0, err
	}
	highCmp, err := value.Compare(iv.High, other.High)
	if err != nil {
		return 0, err
	}

	maxLow := iv.Low
	if lowCmp < 0 {
		maxLow = other.Low
	}
	minHigh := iv.High
	if highCmp > 0 {
		minHigh = other.High
	}
	c, err := value.Compare(maxLow, minHigh)
	if err != nil {
		return 0, err
	}
	if c > 0 {
		return RelDisjoint, nil
	}

	switch {
	case lowCmp == 0 && highCmp == 0:
		return RelEqual, nil
	case lowCmp >= 0 && highCmp <= 0:
		return RelSubset, nil
	case lowCmp <= 0 && highCmp >= 0:
		return RelSuperset, nil
	default:
		return RelIntersect, nil
	}
}

// Intersect returns the geometric intersection. Precondition: iv and other
// are not DISJOINT; callers must check Relationship first.
func (iv Interval) Intersect(other Interval) (Interval, error) {
	lowCmp, err := value.Compare(iv.Low, other.Low)
	if err != nil {
		return Interval{}, err
	}
	highCmp, err := value.Compare(iv.High, other.High)
	if err != nil {
		return Interval{}, err
	}
	low := iv.Low
	if lowCmp < 0 {
		low = other.Low
	}
	high := iv.High
	if highCmp > 0 {
		high = other.High
	}
	c, err := value.Compare(low, high)
	if err != nil {
		return Interval{}, err
	}
	if c > 0 {
		return Interval{}, hierr.Wrap(hierr.ErrInvariantViolation, "Intersect called on disjoint intervals")
	}
	return Interval{Low: low, High: high}, nil
}

// length returns High - Low as a signed int64; undefined for kinds without
// Sub (strings, bools) per the data model.
func (iv Interval) length() (int64, error) {
	return value.Sub(iv.High, iv.Low)
}

// IntersectionRatio returns length(iv ∩ other) / length(iv), in (0, 1].
// Precondition: the intersection is non-degenerate (not DISJOINT).
func (iv Interval) IntersectionRatio(other Interval) (float64, error) {
	rel, err := iv.Relationship(other)
	if err != nil {
		return 0, err
	}
	if rel == RelDisjoint {
		return 0, hierr.Wrap(hierr.ErrInvariantViolation, "IntersectionRatio called on disjoint intervals")
	}
	inter, err := iv.Intersect(other)
	if err != nil {
		return 0, err
	}
	interLen, err := inter.length()
	if err != nil {
		return 0, err
	}
	selfLen, err := iv.length()
	if err != nil {
		return 0, err
	}
	if selfLen == 0 {
		return 1, nil
	}
	ratio := float64(interLen) / float64(selfLen)
	if ratio <= 0 {
		ratio = 1.0 / float64(selfLen+1)
	}
	return ratio, nil
}

// Split divides iv into two intervals at point. If point lies outside
// [Low, High], or exactly on the endpoint that would make one side empty,
// Split reports ok=false. pointSide selects which side keeps point itself:
// PointRight -> ([Low, point.prev], [point, High]); PointLeft (i.e. the
// point belongs to the first interval) -> ([Low, point], [point.next, High]).
func (iv Interval) Split(point value.Value, pointSide PointSide) (ok bool, left, right Interval, err error) {
	lowCmp, err := value.Compare(point, iv.Low)
	if err != nil {
		return false, Interval{}, Interval{}, err
	}
	highCmp, err := value.Compare(point, iv.High)
	if err != nil {
		return false, Interval{}, Interval{}, err
	}
	if lowCmp < 0 || highCmp > 0 {
		return false, Interval{}, Interval{}, nil
	}

	if pointSide == PointRight {
		if lowCmp == 0 {
			// point == Low: the left side would be empty.
			return false, Interval{}, Interval{}, nil
		}
		prevPoint, err := value.Prev(point)
		if err != nil {
			return false, Interval{}, Interval{}, err
		}
		left = Interval{Low: iv.Low, High: prevPoint}
		right = Interval{Low: point, High: iv.High}
		return true, left, right, nil
	}

	// PointLeft: point belongs to the first interval.
	if highCmp == 0 {
		// point == High: the right side would be empty.
		return false, Interval{}, Interval{}, nil
	}
	nextPoint, err := value.Next(point)
	if err != nil {
		return false, Interval{}, Interval{}, err
	}
	left = Interval{Low: iv.Low, High: point}
	right = Interval{Low: nextPoint, High: iv.High}
	return true, left, right, nil
}

// Union returns the interval spanning min-of-lows to max-of-highs across
// intervals; it may cover gaps between them.
func Union(intervals []Interval) (Interval, error) {
	if len(intervals) == 0 {
		return Interval{}, hierr.Wrap(hierr.ErrInvariantViolation, "Union requires at least one interval")
	}
	low := intervals[0].Low
	high := intervals[0].High
	for _, iv := range intervals[1:] {
		c, err := value.Compare(iv.Low, low)
		if err != nil {
			return Interval{}, err
		}
		if c < 0 {
			low = iv.Low
		}
		c, err = value.Compare(iv.High, high)
		if err != nil {
			return Interval{}, err
		}
		if c > 0 {
			high = iv.High
		}
	}
	return Interval{Low: low, High: high}, nil
}

// Touches reports whether iv and other overlap or are adjacent (disjoint but
// with no value between their nearest endpoints, i.e. Distance <= 2), which
// is what ComplexBoundary construction treats as "mergeable by touching".
func (iv Interval) Touches(other Interval) (bool, error) {
	rel, err := iv.Relationship(other)
	if err != nil {
		return false, err
	}
	if rel != RelDisjoint {
		return true, nil
	}
	// Determine ordering so we measure the gap between the adjacent ends.
	c, err := value.Compare(iv.High, other.Low)
	if err != nil {
		return false, err
	}
	var a, b value.Value
	if c < 0 {
		a, b = iv.High, other.Low
	} else {
		a, b = other.High, iv.Low
	}
	d, err := value.Distance(a, b)
	if err != nil {
		return false, err
	}
	return d <= 2, nil
}
