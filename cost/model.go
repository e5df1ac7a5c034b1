// Package cost implements the two analytical cost models of spec.md §4.9
// (I/O time, aggregation time) and an Estimator that consumes a query's
// lowered scan parameters (component G) to produce a total estimated cost.
//
// Grounded on substrait_producer/partitioner/model.{h,cpp} for the
// coefficient shapes (I/O is linear in megabytes; aggregation time is a
// three-term linear model in insert/total/valid cell counts, with distinct
// coefficient triples for early vs late reconstruction) and on the
// teacher's pattern of threading a Statistics/PlannerOptions value through
// the planner explicitly (datalog/planner/planner.go) rather than reaching
// for package-level calibration constants.
package cost

// IOCoefficient is bytes x IOCoefficient = seconds (spec.md §4.9's
// `bytes × c0`), expressed per megabyte to match the calibration the
// original partitioner shipped.
const IOCoefficient = 0.0111

const bytesPerMB = 1024 * 1024

// AggregationCoefficients is the three-term linear model's coefficient
// triple: insertCoeff, totalCellsCoeff, validCellsCoeff.
type AggregationCoefficients struct {
	InsertCoeff     float64
	TotalCellsCoeff float64
	ValidCellsCoeff float64
}

// ReconstructionTiming distinguishes early reconstruction (reconstruct
// immediately after each block's read, before any join/union) from late
// reconstruction (defer reconstruction until the final aggregate), per
// spec.md §4.8's hierarchical-partitioner "hierarchical-early" /
// "hierarchical-late" variants.
type ReconstructionTiming int

const (
	ReconstructEarly ReconstructionTiming = iota
	ReconstructLate
)

// Coefficients returns the calibrated triple for t, numerically identical
// to the original's predictAggTimeEarly/predictAggTimeLate.
func (t ReconstructionTiming) Coefficients() AggregationCoefficients {
	if t == ReconstructLate {
		return AggregationCoefficients{InsertCoeff: 0.7224, TotalCellsCoeff: 0.01, ValidCellsCoeff: 0.011}
	}
	return AggregationCoefficients{InsertCoeff: 0.3172, TotalCellsCoeff: 0.00419, ValidCellsCoeff: 0.0263}
}

// PredictIOTime returns the estimated I/O time in seconds for ioBytes of
// reads, equivalent to the original's predictIOTime.
func PredictIOTime(ioBytes int64) float64 {
	sizeMB := float64(ioBytes) / bytesPerMB
	return sizeMB * IOCoefficient
}

// PredictAggregationTime returns the estimated aggregation time in seconds
// for insertNum inserts over a hash table of totalCells cells, validCells
// of which hold real data, under coefficient triple c.
func PredictAggregationTime(c AggregationCoefficients, insertNum, totalCells, validCells int64) float64 {
	insertM := float64(insertNum) / bytesPerMB
	totalM := float64(totalCells) / bytesPerMB
	validM := float64(validCells) / bytesPerMB
	return insertM*c.InsertCoeff + totalM*c.TotalCellsCoeff + validM*c.ValidCellsCoeff
}
