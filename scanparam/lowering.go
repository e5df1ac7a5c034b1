package scanparam

import (
	"sort"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

// AggregationResult is the aggregation-reconstruction lowering's output:
// exactly one of DirectParams/ReconstructParams is expected to be non-empty
// in the baseline path (spec.md §4.5), though the richer path may use both.
type AggregationResult struct {
	DirectParams      []ScanParameter
	ReconstructParams []ScanParameter
}

// LowerAggregation implements spec.md §4.3's aggregation-reconstruction
// lowering: measure-blocks that pass all predicates locally become direct
// scans; blocks that cannot become reconstruct scans reading the union of
// their requested attributes plus tuple_id.
func LowerAggregation(ctx *engine.Context, q query.Query, requests map[int]*RawRequest) (AggregationResult, error) {
	var result AggregationResult

	for _, blockID := range sortedRequestIDs(requests) {
		req := requests[blockID]

		// The block passes every predicate locally when posting recorded no
		// remote filter_requested or measure_requested attributes on its
		// request: either the block's boundary already lay inside the
		// query's (passedFilterAttributes covers everything), or every
		// attribute the convergence boundary touched was already present in
		// the block's own schema (extraCheckFilterAttributes), and every
		// measure's attributes are in the block too. This is read before
		// Finalize, which drops requested attributes the block lacks.
		passesLocally := len(req.FilterRequestedAttributes) == 0 && len(req.MeasureRequestedAttributes) == 0
		if err := Finalize(ctx, q, req); err != nil {
			return AggregationResult{}, err
		}

		if passesLocally {
			sp := newScanParameter(req.Block.PartitionID)
			sp.Blocks = []schema.BlockMeta{req.Block}
			sp.BlockIDs = []int{req.Block.BlockID}
			for a := range req.ExtraCheckFilterAttributes {
				sp.ReadAttributes[a] = struct{}{}
			}
			for mi := range req.PossibleMeasures {
				for a := range q.Measures[mi].ReferencedAttributes() {
					sp.ReadAttributes[a] = struct{}{}
				}
				sp.DirectMeasures[mi] = struct{}{}
			}
			for a := range sp.ReadAttributes {
				sp.ProjectAttributes[a] = struct{}{}
			}
			if err := sp.checkInvariants(); err != nil {
				return AggregationResult{}, err
			}
			result.DirectParams = append(result.DirectParams, sp)
			continue
		}

		sp, err := buildReconstructParam(ctx, q, req)
		if err != nil {
			return AggregationResult{}, err
		}
		result.ReconstructParams = append(result.ReconstructParams, sp)
	}
	return result, nil
}

// buildReconstructParam reads the union of req's requested attributes plus
// tuple_id, projecting the same set, with a post-read filter derived from
// every request made on this block clamped to the block's own boundary
// (intervals equal to the block's boundary are dropped as implicit).
func buildReconstructParam(ctx *engine.Context, q query.Query, req *RawRequest) (ScanParameter, error) {
	sp := newScanParameter(req.Block.PartitionID)
	sp.Blocks = []schema.BlockMeta{req.Block}
	sp.BlockIDs = []int{req.Block.BlockID}
	sp.ReadAttributes["tuple_id"] = struct{}{}

	for a := range req.FilterRequestedAttributes {
		sp.ReadAttributes[a] = struct{}{}
	}
	for a := range req.MeasureRequestedAttributes {
		sp.ReadAttributes[a] = struct{}{}
	}
	for a := range req.ExtraCheckFilterAttributes {
		sp.ReadAttributes[a] = struct{}{}
	}
	for mi, m := range q.Measures {
		allPresent := true
		for a := range m.ReferencedAttributes() {
			if !req.Block.Schema.Contains(a) {
				allPresent = false
				break
			}
		}
		if allPresent {
			for a := range m.ReferencedAttributes() {
				sp.ReadAttributes[a] = struct{}{}
			}
			sp.PossibleMeasures[mi] = struct{}{}
		}
	}
	for a := range sp.ReadAttributes {
		sp.ProjectAttributes[a] = struct{}{}
	}

	var contributing []boundary.Boundary
	contributing = append(contributing, req.FilterRequestedFilters...)
	contributing = append(contributing, req.MeasureRequestedFilters...)
	if len(contributing) > 0 {
		cb, err := boundary.FromBoundaries(ctx, contributing, boundary.DefaultMaxIntervals)
		if err != nil {
			return ScanParameter{}, err
		}
		// Drop any attribute whose interval vector is just the block's own
		// boundary restated — it is implicit in the read and needs no
		// post-read re-check.
		for attr, ivs := range cb.Intervals {
			if blockIv, ok := req.Block.Boundary.Intervals[attr]; ok && len(ivs) == 1 {
				rel, err := ivs[0].Relationship(blockIv)
				if err == nil && rel == boundary.RelEqual {
					delete(cb.Intervals, attr)
				}
			}
		}
		if len(cb.Intervals) > 0 {
			sp.PostReadFilter = cb
			sp.HasPostReadFilter = true
		}
	}

	if err := sp.checkInvariants(); err != nil {
		return ScanParameter{}, err
	}
	return sp, nil
}

// CountConjuncts approximates the number of top-level conjuncts in q's
// filter by the number of distinct attributes its filter boundary
// constrains — one per boundary-extractable conjunct, which is the shape
// the system assumes for query filters (spec.md §4.2). The plan builder's
// final filter (spec.md §4.6) compares this against bitmap_count(passed_preds).
func CountConjuncts(q query.Query) int {
	count := len(q.FilterBoundary.Intervals)
	if count == 0 {
		return 1
	}
	return count
}

func sortedRequestIDs(requests map[int]*RawRequest) []int {
	out := make([]int, 0, len(requests))
	for id := range requests {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// JoinResult is the join-reconstruction lowering's output (spec.md §4.3).
type JoinResult struct {
	DirectParams        []ScanParameter
	ReconstructFilter   []ScanParameter
	ReconstructMeasures [][]ScanParameter // one slice per connected-component subgraph.
}

// LowerJoin implements the join-reconstruction lowering: direct_params as
// above, recons_filter_params reading only filter-predicate attributes plus
// tuple_id, and recons_measure_params grouped into connected components of
// the block-intersection graph via depth-first traversal.
func LowerJoin(ctx *engine.Context, q query.Query, requests map[int]*RawRequest, blockFilters []schema.BlockMeta) (JoinResult, error) {
	var result JoinResult

	var measureBlocks []schema.BlockMeta
	measureBlockIndex := map[int]*RawRequest{}

	for _, blockID := range sortedRequestIDs(requests) {
		req := requests[blockID]
		// Same test as LowerAggregation, read before Finalize drops the
		// requested attributes the block lacks.
		passesLocally := len(req.FilterRequestedAttributes) == 0 && len(req.MeasureRequestedAttributes) == 0
		if err := Finalize(ctx, q, req); err != nil {
			return JoinResult{}, err
		}
		if passesLocally {
			sp := newScanParameter(req.Block.PartitionID)
			sp.Blocks = []schema.BlockMeta{req.Block}
			sp.BlockIDs = []int{req.Block.BlockID}
			for a := range req.ExtraCheckFilterAttributes {
				sp.ReadAttributes[a] = struct{}{}
				sp.ProjectAttributes[a] = struct{}{}
			}
			result.DirectParams = append(result.DirectParams, sp)
			continue
		}
		measureBlocks = append(measureBlocks, req.Block)
		measureBlockIndex[req.Block.BlockID] = req
	}

	for _, b := range blockFilters {
		if _, hasMeasureReq := measureBlockIndex[b.BlockID]; hasMeasureReq {
			continue // already handled as a measure-participating block.
		}
		sp := newScanParameter(b.PartitionID)
		sp.Blocks = []schema.BlockMeta{b}
		sp.BlockIDs = []int{b.BlockID}
		sp.ReadAttributes["tuple_id"] = struct{}{}
		sp.ProjectAttributes["tuple_id"] = struct{}{}
		for name := range q.Filter.Attributes() {
			if b.Schema.Contains(name) {
				sp.ReadAttributes[name] = struct{}{}
				sp.ProjectAttributes[name] = struct{}{}
			}
		}
		result.ReconstructFilter = append(result.ReconstructFilter, sp)
	}

	groups, err := groupMeasureBlocksBySubgraph(ctx, q, measureBlocks)
	if err != nil {
		return JoinResult{}, err
	}
	for _, group := range groups {
		var sps []ScanParameter
		for _, b := range group {
			req := measureBlockIndex[b.BlockID]
			sp, err := buildReconstructParam(ctx, q, req)
			if err != nil {
				return JoinResult{}, err
			}
			sps = append(sps, sp)
		}
		result.ReconstructMeasures = append(result.ReconstructMeasures, sps)
	}
	return result, nil
}

// groupMeasureBlocksBySubgraph builds an undirected graph over measure
// blocks with an edge when two blocks' boundaries intersect under the query
// filter, then returns one group per connected component, found via an
// explicit-stack depth-first traversal (grounded on the teacher's
// clause_phasing.go non-recursive graph walk).
func groupMeasureBlocksBySubgraph(ctx *engine.Context, q query.Query, blocks []schema.BlockMeta) ([][]schema.BlockMeta, error) {
	n := len(blocks)
	adjacency := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			bi, err := blocks[i].Boundary.Intersect(ctx, q.FilterBoundary)
			if err != nil {
				continue
			}
			bj, err := blocks[j].Boundary.Intersect(ctx, q.FilterBoundary)
			if err != nil {
				continue
			}
			rel, err := bi.Relationship(ctx, bj)
			if err != nil {
				return nil, err
			}
			if rel != boundary.RelDisjoint {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}

	visited := make([]bool, n)
	var groups [][]schema.BlockMeta
	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		var component []schema.BlockMeta
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, blocks[cur])
			for _, next := range adjacency[cur] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		groups = append(groups, component)
	}
	return groups, nil
}
