// Package scanparam implements the scan-parameter core (spec.md §4.3,
// component G): role classification of blocks against a query, RawRequest
// posting and finalization, and the two scan-parameter lowering strategies
// (aggregation-reconstruction and join-reconstruction).
//
// Grounded on the teacher's predicate-classification idiom in
// datalog/executor/predicate_classifier.go's ClassifyAndConvert (splitting a
// predicate set into storage-pushable vs must-re-check buckets) and on
// datalog/constraints/time_constraints.go's StorageConstraint interface for
// the posted-filter abstraction. Subgraph traversal over the
// block-intersection graph uses an explicit stack, mirroring
// datalog/planner/clause_phasing.go's non-recursive graph walk.
package scanparam

import (
	"sort"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

// ScanParameter is the central record a plan's read nodes are built from.
type ScanParameter struct {
	FilePath          string
	BlockIDs          []int
	Blocks            []schema.BlockMeta
	PostReadFilter    boundary.ComplexBoundary
	HasPostReadFilter bool
	ReadAttributes    map[string]struct{}
	ProjectAttributes map[string]struct{}
	DirectMeasures    map[int]struct{} // measure index -> evaluated directly here.
	PossibleMeasures  map[int]struct{}
	PassedPreds       map[int]struct{} // conjunct index -> satisfied by this block alone.
}

func newScanParameter(path string) ScanParameter {
	return ScanParameter{
		FilePath:          path,
		ReadAttributes:    map[string]struct{}{},
		ProjectAttributes: map[string]struct{}{},
		DirectMeasures:    map[int]struct{}{},
		PossibleMeasures:  map[int]struct{}{},
		PassedPreds:       map[int]struct{}{},
	}
}

// Invariant checks: ReadAttributes must be a superset of ProjectAttributes,
// and every block referenced must share FilePath. Called defensively at the
// end of finalization.
func (sp ScanParameter) checkInvariants() error {
	for a := range sp.ProjectAttributes {
		if _, ok := sp.ReadAttributes[a]; !ok {
			return hierr.Wrap(hierr.ErrInvariantViolation, "project_attributes is not a subset of read_attributes")
		}
	}
	for _, b := range sp.Blocks {
		if b.PartitionID != sp.FilePath {
			return hierr.Wrap(hierr.ErrInvariantViolation, "scan parameter references a block from a different file")
		}
	}
	return nil
}

// RawRequest accumulates, per block, what its scan will need to read before
// finalization narrows that down to what the block can actually supply.
type RawRequest struct {
	Block schema.BlockMeta

	FilterRequestedAttributes  map[string]struct{}
	MeasureRequestedAttributes map[string]struct{}
	FilterRequestedFilters     []boundary.Boundary
	MeasureRequestedFilters    []boundary.Boundary

	PassedFilterAttributes     map[string]struct{}
	ExtraCheckFilterAttributes map[string]struct{}

	PossibleMeasures map[int]struct{} // measure index -> all its attributes are in the block.
}

func newRawRequest(b schema.BlockMeta) *RawRequest {
	return &RawRequest{
		Block:                      b,
		FilterRequestedAttributes:  map[string]struct{}{},
		MeasureRequestedAttributes: map[string]struct{}{},
		PassedFilterAttributes:     map[string]struct{}{},
		ExtraCheckFilterAttributes: map[string]struct{}{},
		PossibleMeasures:           map[int]struct{}{},
	}
}

// ClassifyRoles implements spec.md §4.3's role classification: block_measures
// are blocks whose schema intersects the union of measure attributes;
// block_filters are blocks whose schema intersects the query's filter
// attributes. Both sets are restricted to blocks whose boundary actually
// intersects the query filter boundary (blocks outside the query's range
// contribute nothing).
func ClassifyRoles(ctx *engine.Context, q query.Query, blocks []schema.BlockMeta) (blockMeasures, blockFilters []schema.BlockMeta, err error) {
	measureAttrs := map[string]struct{}{}
	for _, m := range q.Measures {
		for a := range m.ReferencedAttributes() {
			measureAttrs[a] = struct{}{}
		}
	}
	filterAttrs := q.Filter.Attributes()

	for _, b := range blocks {
		rel, err := b.Boundary.Relationship(ctx, q.FilterBoundary)
		if err != nil {
			return nil, nil, err
		}
		if rel == boundary.RelDisjoint {
			continue
		}
		if schemaIntersects(b.Schema, measureAttrs) {
			blockMeasures = append(blockMeasures, b)
		}
		if schemaIntersects(b.Schema, filterAttrs) {
			blockFilters = append(blockFilters, b)
		}
	}
	return blockMeasures, blockFilters, nil
}

func schemaIntersects(s schema.Schema, attrs map[string]struct{}) bool {
	for a := range attrs {
		if s.Contains(a) {
			return true
		}
	}
	return false
}

// PostRequests implements the posting algorithm for every block_measures
// block b: blocks fully inside the query's boundary need nothing extra;
// blocks that only intersect contribute a convergence boundary, split into
// local/remote attributes, with remote attributes posted to other blocks
// that can supply them.
func PostRequests(ctx *engine.Context, q query.Query, blockMeasures, blockFilters []schema.BlockMeta) (map[int]*RawRequest, error) {
	requests := map[int]*RawRequest{}
	ensure := func(b schema.BlockMeta) *RawRequest {
		if r, ok := requests[b.BlockID]; ok {
			return r
		}
		r := newRawRequest(b)
		requests[b.BlockID] = r
		return r
	}

	queryFilterAttrs := q.Filter.Attributes()

	for _, b := range blockMeasures {
		req := ensure(b)
		rel, err := b.Boundary.Relationship(ctx, q.FilterBoundary)
		if err != nil {
			return nil, err
		}
		if rel == boundary.RelSubset || rel == boundary.RelEqual {
			for a := range queryFilterAttrs {
				req.PassedFilterAttributes[a] = struct{}{}
			}
		} else {
			conv, err := convergenceBoundary(ctx, q.FilterBoundary, b.Boundary)
			if err != nil {
				return nil, err
			}
			local, remote := splitLocalRemote(conv, b.Schema)
			for a := range local {
				req.ExtraCheckFilterAttributes[a] = struct{}{}
			}
			for a, iv := range remote {
				posted := postToCoveringBlock(ctx, a, iv, b, blockFilters, req)
				_ = posted
			}
		}

		for mi, m := range q.Measures {
			missing := missingMeasureAttrs(b.Schema, m)
			if len(missing) == 0 {
				req.PossibleMeasures[mi] = struct{}{}
				continue
			}
			for a := range missing {
				postMeasureRequest(ctx, a, b, blockMeasures, req)
			}
		}
	}
	return requests, nil
}

// convergenceBoundary returns, per attribute, the intervals in
// queryBoundary ∩ blockBoundary that differ from blockBoundary's own
// interval on that attribute — the portion of the query's range this block
// does not already fully cover.
func convergenceBoundary(ctx *engine.Context, queryBoundary, blockBoundary boundary.Boundary) (boundary.Boundary, error) {
	inter, err := queryBoundary.Intersect(ctx, blockBoundary)
	if err != nil {
		return boundary.Boundary{}, err
	}
	out := boundary.NewBoundary()
	for attr, iv := range inter.Intervals {
		blockIv, ok := blockBoundary.Intervals[attr]
		if !ok {
			out.Intervals[attr] = iv
			continue
		}
		rel, err := iv.Relationship(blockIv)
		if err != nil {
			return boundary.Boundary{}, err
		}
		if rel != boundary.RelEqual {
			out.Intervals[attr] = iv
		}
	}
	return out, nil
}

func splitLocalRemote(conv boundary.Boundary, s schema.Schema) (local, remote map[string]boundary.Interval) {
	local = map[string]boundary.Interval{}
	remote = map[string]boundary.Interval{}
	for attr, iv := range conv.Intervals {
		if s.Contains(attr) {
			local[attr] = iv
		} else {
			remote[attr] = iv
		}
	}
	return local, remote
}

// postToCoveringBlock finds another block whose boundary still intersects
// the requesting block's region and whose schema covers attr, and records a
// filter_requested entry on it. Returns true if a covering block was found.
func postToCoveringBlock(ctx *engine.Context, attr string, iv boundary.Interval, requester schema.BlockMeta, candidates []schema.BlockMeta, requesterReq *RawRequest) bool {
	found := false
	for _, cand := range candidates {
		if cand.BlockID == requester.BlockID || !cand.Schema.Contains(attr) {
			continue
		}
		rel, err := cand.Boundary.Relationship(ctx, requester.Boundary)
		if err != nil || rel == boundary.RelDisjoint {
			continue
		}
		requesterReq.FilterRequestedAttributes[attr] = struct{}{}
		b := boundary.NewBoundary().With(attr, iv)
		requesterReq.FilterRequestedFilters = append(requesterReq.FilterRequestedFilters, b)
		found = true
	}
	return found
}

func missingMeasureAttrs(s schema.Schema, m query.Measure) map[string]struct{} {
	missing := map[string]struct{}{}
	for a := range m.ReferencedAttributes() {
		if !s.Contains(a) {
			missing[a] = struct{}{}
		}
	}
	return missing
}

func postMeasureRequest(ctx *engine.Context, attr string, requester schema.BlockMeta, candidates []schema.BlockMeta, requesterReq *RawRequest) {
	for _, cand := range candidates {
		if cand.BlockID == requester.BlockID || !cand.Schema.Contains(attr) {
			continue
		}
		rel, err := cand.Boundary.Relationship(ctx, requester.Boundary)
		if err != nil || rel == boundary.RelDisjoint {
			continue
		}
		requesterReq.MeasureRequestedAttributes[attr] = struct{}{}
	}
}

// Finalize narrows a RawRequest to what its block can actually supply:
// requested attributes and check-attributes not present in the block are
// dropped, and every requested boundary is intersected with
// block.boundary ∩ query.boundary.
func Finalize(ctx *engine.Context, q query.Query, req *RawRequest) error {
	clamp, err := req.Block.Boundary.Intersect(ctx, q.FilterBoundary)
	if err != nil {
		// Disjoint after narrowing: nothing survives, clear everything.
		req.FilterRequestedAttributes = map[string]struct{}{}
		req.MeasureRequestedAttributes = map[string]struct{}{}
		req.FilterRequestedFilters = nil
		req.MeasureRequestedFilters = nil
		return nil
	}
	for a := range req.FilterRequestedAttributes {
		if !req.Block.Schema.Contains(a) {
			delete(req.FilterRequestedAttributes, a)
		}
	}
	for a := range req.MeasureRequestedAttributes {
		if !req.Block.Schema.Contains(a) {
			delete(req.MeasureRequestedAttributes, a)
		}
	}
	for a := range req.ExtraCheckFilterAttributes {
		if !req.Block.Schema.Contains(a) {
			delete(req.ExtraCheckFilterAttributes, a)
		}
	}
	for i, b := range req.FilterRequestedFilters {
		clamped, err := b.Intersect(ctx, clamp)
		if err == nil {
			req.FilterRequestedFilters[i] = clamped
		}
	}
	for i, b := range req.MeasureRequestedFilters {
		clamped, err := b.Intersect(ctx, clamp)
		if err == nil {
			req.MeasureRequestedFilters[i] = clamped
		}
	}
	return nil
}

// sortedKeys returns a map's keys in sorted order.
func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
