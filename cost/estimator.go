package cost

import (
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/scanparam"
)

// defaultByteSize is used for any attribute whose schema entry does not
// carry a byte-size hint (spec.md §6's schema file marks byte-size hints
// optional).
const defaultByteSize = 8

// Estimate is the cost estimator's output for one query's lowered scan
// parameters.
type Estimate struct {
	IOBytes                int64
	IOTimeSeconds          float64
	ReconstructionTuples   int64
	ValidCells             int64
	TotalCells             int64
	AggregationTimeSeconds float64
	TotalTimeSeconds       float64
}

// Dedup implements the supplemented "dedup direct-vs-reconstruct reads on
// the same block" step of spec.md §4.9: when two scan parameters reference
// the same block and one's read-attribute set is a superset of the
// other's, only the superset one is kept, since reading it already
// supplies everything the subsumed one would. Grounded on
// substrait_producer/produce_plan/produce_scan_parameter.cpp, where the
// richer "aggregate" reconstruct-type path can produce both a direct and a
// reconstruct scan parameter touching the same block.
func Dedup(params []scanparam.ScanParameter) []scanparam.ScanParameter {
	// A block is identified by its file and its id within that file.
	type blockKey struct {
		path string
		id   int
	}
	byBlock := map[blockKey][]scanparam.ScanParameter{}
	var order []blockKey
	for _, sp := range params {
		for _, id := range sp.BlockIDs {
			k := blockKey{path: sp.FilePath, id: id}
			if _, seen := byBlock[k]; !seen {
				order = append(order, k)
			}
			byBlock[k] = append(byBlock[k], sp)
		}
	}
	out := make([]scanparam.ScanParameter, 0, len(params))
	for _, k := range order {
		group := byBlock[k]
		for i, sp := range group {
			subsumed := false
			for j, other := range group {
				if i == j || !isSupersetAttrs(other.ReadAttributes, sp.ReadAttributes) {
					continue
				}
				// other reads everything sp reads; of two equal sets the earlier one stays.
				if j < i || !isSupersetAttrs(sp.ReadAttributes, other.ReadAttributes) {
					subsumed = true
					break
				}
			}
			if !subsumed {
				out = append(out, sp)
			}
		}
	}
	return out
}

func isSupersetAttrs(a, b map[string]struct{}) bool {
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

func rowSizeBytes(sp scanparam.ScanParameter) int64 {
	if len(sp.Blocks) == 0 {
		return 0
	}
	s := sp.Blocks[0].Schema
	var total int64
	for a := range sp.ReadAttributes {
		if attr, _, ok := s.ByName(a); ok && attr.ByteSize > 0 {
			total += int64(attr.ByteSize)
		} else {
			total += defaultByteSize
		}
	}
	return total
}

func estimatedRowsForParam(ctx *engine.Context, q query.Query, sp scanparam.ScanParameter) (float64, error) {
	if len(sp.Blocks) == 0 {
		return 0, nil
	}
	return sp.Blocks[0].EstimateRowNum(ctx, q.FilterBoundary)
}

// EstimateAggregationPlan implements spec.md §4.9's estimator over an
// aggregation-reconstruction lowering: IO is summed over the deduplicated
// read set; reconstruction tuples are the sum of estimated block-row-counts
// under each reconstruct param's filter boundary; valid cells are
// (projected-attribute count - 1) × estimated rows, summed per
// reconstruct param; total cells are (union-of-projected-attributes - 1) ×
// reconstruction tuples.
func EstimateAggregationPlan(ctx *engine.Context, q query.Query, result scanparam.AggregationResult, timing ReconstructionTiming) (Estimate, error) {
	all := append(append([]scanparam.ScanParameter{}, result.DirectParams...), result.ReconstructParams...)
	deduped := Dedup(all)

	var ioBytes int64
	for _, sp := range deduped {
		rows, err := estimatedRowsForParam(ctx, q, sp)
		if err != nil {
			return Estimate{}, err
		}
		ioBytes += int64(float64(rowSizeBytes(sp)) * rows)
	}

	var reconTuples, validCells float64
	unionAttrs := map[string]struct{}{}
	for _, sp := range result.ReconstructParams {
		rows, err := estimatedRowsForParam(ctx, q, sp)
		if err != nil {
			return Estimate{}, err
		}
		reconTuples += rows
		if len(sp.ProjectAttributes) > 0 {
			validCells += float64(len(sp.ProjectAttributes)-1) * rows
		}
		for a := range sp.ProjectAttributes {
			unionAttrs[a] = struct{}{}
		}
	}
	var totalCells float64
	if len(unionAttrs) > 0 {
		totalCells = float64(len(unionAttrs)-1) * reconTuples
	}

	ioTime := PredictIOTime(ioBytes)
	aggTime := PredictAggregationTime(timing.Coefficients(), int64(reconTuples), int64(totalCells), int64(validCells))

	return Estimate{
		IOBytes:                ioBytes,
		IOTimeSeconds:          ioTime,
		ReconstructionTuples:   int64(reconTuples),
		ValidCells:             int64(validCells),
		TotalCells:             int64(totalCells),
		AggregationTimeSeconds: aggTime,
		TotalTimeSeconds:       ioTime + aggTime,
	}, nil
}

// EstimateJoinPlan applies the same cost accounting to a join-reconstruction
// lowering: IO over the deduplicated union of direct, filter-only, and
// measure scan parameters; reconstruction tuples/valid/total cells computed
// over every measure scan parameter (each contributes one block's worth of
// reconstructed attributes, same as the aggregation path, since the join
// only changes how those blocks are combined, not the per-block accounting).
func EstimateJoinPlan(ctx *engine.Context, q query.Query, result scanparam.JoinResult, timing ReconstructionTiming) (Estimate, error) {
	all := append([]scanparam.ScanParameter{}, result.DirectParams...)
	all = append(all, result.ReconstructFilter...)
	var measureParams []scanparam.ScanParameter
	for _, group := range result.ReconstructMeasures {
		measureParams = append(measureParams, group...)
	}
	all = append(all, measureParams...)
	deduped := Dedup(all)

	var ioBytes int64
	for _, sp := range deduped {
		rows, err := estimatedRowsForParam(ctx, q, sp)
		if err != nil {
			return Estimate{}, err
		}
		ioBytes += int64(float64(rowSizeBytes(sp)) * rows)
	}

	var reconTuples, validCells float64
	unionAttrs := map[string]struct{}{}
	for _, sp := range measureParams {
		rows, err := estimatedRowsForParam(ctx, q, sp)
		if err != nil {
			return Estimate{}, err
		}
		reconTuples += rows
		if len(sp.ProjectAttributes) > 0 {
			validCells += float64(len(sp.ProjectAttributes)-1) * rows
		}
		for a := range sp.ProjectAttributes {
			unionAttrs[a] = struct{}{}
		}
	}
	var totalCells float64
	if len(unionAttrs) > 0 {
		totalCells = float64(len(unionAttrs)-1) * reconTuples
	}

	ioTime := PredictIOTime(ioBytes)
	aggTime := PredictAggregationTime(timing.Coefficients(), int64(reconTuples), int64(totalCells), int64(validCells))

	return Estimate{
		IOBytes:                ioBytes,
		IOTimeSeconds:          ioTime,
		ReconstructionTuples:   int64(reconTuples),
		ValidCells:             int64(validCells),
		TotalCells:             int64(totalCells),
		AggregationTimeSeconds: aggTime,
		TotalTimeSeconds:       ioTime + aggTime,
	}, nil
}
