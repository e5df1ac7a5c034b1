// horizontal.go implements spec.md §4.7: recursive binary splitting of one
// block against a set of training queries, grounded on
// substrait_producer/partitioner/horizontal_partitioner.cpp.
package partitioner

import (
	"math/rand"
	"sort"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// StopCondition reports whether a block is too small to split further.
type StopCondition func(schema.BlockMeta) bool

// MinRowCount is the usual stop condition: refuse to split a block whose
// estimated row count has already dropped below min.
func MinRowCount(min int64) StopCondition {
	return func(b schema.BlockMeta) bool {
		return b.RowCount != nil && *b.RowCount < min
	}
}

const sampleQueryCount = 30

// Splitter holds the state the recursive horizontal split needs across
// calls: the domain registry (for the last-resort resize fallback), an
// injected random source, and the stop condition. The RNG is a constructor
// parameter rather than a package-level source so callers (and tests) can
// pin reproducible sequences without hierplan assuming any particular
// seeding policy — the resolution of spec.md §9's weight-proportional
// sampling Open Question.
type Splitter struct {
	ctx  *engine.Context
	rng  *rand.Rand
	stop StopCondition
}

func NewSplitter(ctx *engine.Context, rng *rand.Rand, stop StopCondition) *Splitter {
	return &Splitter{ctx: ctx, rng: rng, stop: stop}
}

// splitNode carries, alongside a candidate block, the subset of queries
// still relevant to it. The per-attribute split counts the resize fallback
// needs are read back from block.SplitHistory rather than threaded
// separately.
type splitNode struct {
	block   schema.BlockMeta
	queries []query.Query
}

// HorizontalPartition recursively splits block against queries until every
// leaf satisfies the splitter's stop condition.
func (s *Splitter) HorizontalPartition(block schema.BlockMeta, queries []query.Query) ([]schema.BlockMeta, error) {
	return s.horizontalPartition(splitNode{block: block, queries: queries})
}

func (s *Splitter) horizontalPartition(node splitNode) ([]schema.BlockMeta, error) {
	if s.stop(node.block) {
		return []schema.BlockMeta{node.block}, nil
	}

	sample, err := sampleQueries(s.rng, s.ctx, node.block, node.queries, sampleQueryCount)
	if err != nil {
		return nil, err
	}

	found := false
	var minCost int64
	var bestLeft, bestRight splitNode

	for _, q := range sample {
		for _, attr := range sortedIntervalAttrs(q) {
			iv := q.FilterBoundary.Intervals[attr]
			attempts := [2]struct {
				point value.Value
				side  boundary.PointSide
			}{
				{iv.Low, boundary.PointRight},
				{iv.High, boundary.PointLeft},
			}
			for _, attempt := range attempts {
				ok, left, right, err := node.block.Split(s.ctx, attr, attempt.point, attempt.side)
				if err != nil {
					return nil, err
				}
				if !ok || s.stop(left) || s.stop(right) {
					continue
				}
				cost1, q1, err := estimateIOSize(s.ctx, left, node.queries)
				if err != nil {
					return nil, err
				}
				cost2, q2, err := estimateIOSize(s.ctx, right, node.queries)
				if err != nil {
					return nil, err
				}
				cost := cost1 + cost2
				if !found || cost < minCost {
					found = true
					minCost = cost
					bestLeft = splitNode{block: left, queries: q1}
					bestRight = splitNode{block: right, queries: q2}
				}
			}
		}
	}

	if !found {
		return s.resizeBlock(node.block)
	}

	leftBlocks, err := s.horizontalPartition(bestLeft)
	if err != nil {
		return nil, err
	}
	rightBlocks, err := s.horizontalPartition(bestRight)
	if err != nil {
		return nil, err
	}
	return append(leftBlocks, rightBlocks...), nil
}

// resizeBlock implements the fallback path once no predicate-driven split
// improved on the block as-is: a weighted-random attribute pick (weighted
// by how often each attribute has already been split along this path),
// falling back to every min/max-registered attribute in turn.
func (s *Splitter) resizeBlock(block schema.BlockMeta) ([]schema.BlockMeta, error) {
	if s.stop(block) {
		return []schema.BlockMeta{block}, nil
	}

	candidates, err := s.weightedResizeAttempt(block)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates, err = s.fallbackResizeAttempt(block)
		if err != nil {
			return nil, err
		}
	}
	if candidates == nil {
		return []schema.BlockMeta{block}, nil
	}

	var out []schema.BlockMeta
	for _, c := range candidates {
		sub, err := s.resizeBlock(c)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// weightedResizeAttempt implements the cumulative-weight draw over every
// attribute split so far along this path (never breaking out of the
// candidate attribute set early; every attribute gets a turn in some
// order before the draw gives up). The weights come straight from
// block.SplitHistory, the record block.Split accumulates on every prior
// split along this recursive path.
func (s *Splitter) weightedResizeAttempt(block schema.BlockMeta) ([]schema.BlockMeta, error) {
	splitCount := splitCountsFromHistory(block.SplitHistory)
	sum := 0
	for _, c := range splitCount {
		sum += c
	}
	if sum == 0 {
		return nil, nil
	}

	names := sortedStringKeys(splitCount)
	checked := map[string]struct{}{}
	for len(checked) < len(names) {
		attr := weightedDraw(s.rng, names, splitCount, sum)
		if _, already := checked[attr]; already {
			continue
		}
		checked[attr] = struct{}{}

		iv, ok := block.Boundary.Intervals[attr]
		if !ok {
			continue
		}
		mid, err := value.Midpoint(iv.Low, iv.High, 0.5)
		if err != nil {
			return nil, err
		}
		ok, left, right, err := block.Split(s.ctx, attr, mid, boundary.PointRight)
		if err != nil {
			return nil, err
		}
		if !ok || s.stop(left) || s.stop(right) {
			continue
		}
		return []schema.BlockMeta{left, right}, nil
	}
	return nil, nil
}

// fallbackResizeAttempt is the last resort: try every attribute with a
// registered domain range, midpoint split, stopping at the first one that
// produces two non-undersized children.
func (s *Splitter) fallbackResizeAttempt(block schema.BlockMeta) ([]schema.BlockMeta, error) {
	attrs := append([]string{}, s.ctx.Domains.Attributes()...)
	sort.Strings(attrs)

	for _, attr := range attrs {
		var low, high value.Value
		if iv, ok := block.Boundary.Intervals[attr]; ok {
			low, high = iv.Low, iv.High
		} else {
			rng, err := s.ctx.Domains.FullDomain(attr)
			if err != nil {
				continue
			}
			low, high = rng.Min, rng.Max
		}
		mid, err := value.Midpoint(low, high, 0.5)
		if err != nil {
			continue
		}
		ok, left, right, err := block.Split(s.ctx, attr, mid, boundary.PointRight)
		if err != nil {
			return nil, err
		}
		if !ok || s.stop(left) || s.stop(right) {
			continue
		}
		return []schema.BlockMeta{left, right}, nil
	}
	return nil, nil
}

func weightedDraw(rng *rand.Rand, names []string, weights map[string]int, sum int) string {
	r := rng.Intn(sum)
	for _, name := range names {
		r -= weights[name]
		if r < 0 {
			return name
		}
	}
	return names[len(names)-1]
}

// splitCountsFromHistory tallies how many times each attribute appears in
// history, the resize fallback's sampling weight per attribute.
func splitCountsFromHistory(history []string) map[string]int {
	out := make(map[string]int, len(history))
	for _, attr := range history {
		out[attr]++
	}
	return out
}

// estimateIOSize returns the summed I/O size of every query in queries that
// is not DISJOINT from block (restricted to each query's own referenced
// attributes), along with the subset of queries that intersected it.
func estimateIOSize(ctx *engine.Context, block schema.BlockMeta, queries []query.Query) (int64, []query.Query, error) {
	var size int64
	var intersecting []query.Query
	for _, q := range queries {
		attrs := allReferencedAttributeNames(q)
		rel, err := restrictedRelationship(ctx, block, q, attrs)
		if err != nil {
			return 0, nil, err
		}
		if rel == boundary.RelDisjoint {
			continue
		}
		intersecting = append(intersecting, q)
		rows, err := block.EstimateRowNum(ctx, q.FilterBoundary)
		if err != nil {
			return 0, nil, err
		}
		size += int64(rows * float64(attrSetBytes(block.Schema, attrs)))
	}
	return size, intersecting, nil
}

// restrictedRelationship compares block's boundary against q's filter
// boundary, considering only the attributes in attrs — the original's
// block->relationship(filterBoundary, attrs).
func restrictedRelationship(ctx *engine.Context, block schema.BlockMeta, q query.Query, attrs map[string]struct{}) (boundary.Relation, error) {
	return restrictBoundary(block.Boundary, attrs).Relationship(ctx, restrictBoundary(q.FilterBoundary, attrs))
}

func restrictBoundary(b boundary.Boundary, attrs map[string]struct{}) boundary.Boundary {
	out := boundary.NewBoundary()
	for a := range attrs {
		if iv, ok := b.Intervals[a]; ok {
			out = out.With(a, iv)
		}
	}
	return out
}

// sampleQueries picks up to maxNum of the queries that actually intersect
// block, uniformly at random, without replacement.
func sampleQueries(rng *rand.Rand, ctx *engine.Context, block schema.BlockMeta, queries []query.Query, maxNum int) ([]query.Query, error) {
	_, intersecting, err := estimateIOSize(ctx, block, queries)
	if err != nil {
		return nil, err
	}
	if maxNum >= len(intersecting) {
		return intersecting, nil
	}
	picked := map[int]struct{}{}
	sample := make([]query.Query, 0, maxNum)
	for len(sample) < maxNum {
		id := rng.Intn(len(intersecting))
		if _, ok := picked[id]; ok {
			continue
		}
		picked[id] = struct{}{}
		sample = append(sample, intersecting[id])
	}
	return sample, nil
}

// sortedIntervalAttrs gives the candidate-split search a deterministic
// iteration order over what would otherwise be a map-keyed filter boundary,
// per spec.md §9's attribute-ordering Open Question.
func sortedIntervalAttrs(q query.Query) []string {
	out := make([]string, 0, len(q.FilterBoundary.Intervals))
	for a := range q.FilterBoundary.Intervals {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
