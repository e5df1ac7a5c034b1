package cost

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Report renders an Estimate into the terse, humane line cmd/planproducer
// prints to stderr for each query, grounded on
// the teacher's own CLI (cmd/datalog/main.go) formatting sizes/durations
// for terminal users rather than dumping raw numbers. Byte and row counts
// go through go-humanize; seconds are few enough digits that a plain
// fixed-precision format reads better than humanize's large-number
// comma-grouping.
func Report(e Estimate) string {
	return fmt.Sprintf(
		"io=%s (%.3fs) recon_tuples=%s valid_cells=%s total_cells=%s agg=%.3fs total=%.3fs",
		humanize.Bytes(uint64(e.IOBytes)),
		e.IOTimeSeconds,
		humanize.Comma(e.ReconstructionTuples),
		humanize.Comma(e.ValidCells),
		humanize.Comma(e.TotalCells),
		e.AggregationTimeSeconds,
		e.TotalTimeSeconds,
	)
}
