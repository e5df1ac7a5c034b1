// Command partitioner reads a schema, table-wide domain ranges, and a
// training/validation/test query workload, then proposes a physical block
// layout and writes it out as a partition file plus a human-readable
// companion report (spec.md §6).
//
// Grounded on the teacher's cmd/datalog/main.go for the flag/Usage/
// log.Fatalf CLI shape, and on datalog/executor/table_formatter.go for the
// olekukonko/tablewriter usage the readable report renders with.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/cost"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/internal/fileio"
	"github.com/hierplan/hierplan/partitioner"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

const defaultMinRowCount = 1024 * 1024 // 1 Mi, spec.md §4.7's example recursion floor.

func main() {
	var schemaPath, rangePath, trainQueryPath, validateQueryPath, testQueryPath, partitionPath, layoutType string
	var minRowCount int64
	var engineName string

	flag.StringVar(&schemaPath, "schema_path", "", "schema file path (required)")
	flag.StringVar(&rangePath, "table_range", "", "table domain-range file path (required)")
	flag.StringVar(&trainQueryPath, "query_path", "", "training query file path (required)")
	flag.StringVar(&validateQueryPath, "validate_query_path", "", "validation query file path (required)")
	flag.StringVar(&testQueryPath, "test_query_path", "", "held-out test query file path (optional, reported but not optimized against)")
	flag.StringVar(&partitionPath, "partition_path", "", "output partition file path (required)")
	flag.StringVar(&layoutType, "type", "hierarchical-early", "layout search: horizontal, hierarchical-early, or hierarchical-late")
	flag.Int64Var(&minRowCount, "min_row_count", defaultMinRowCount, "stop recursing once a block's row count drops below this")
	flag.StringVar(&engineName, "engine", "arrow", "target engine: arrow or velox")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -schema_path FILE -table_range FILE -query_path FILE -validate_query_path FILE -partition_path FILE [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Searches for a physical block layout minimizing estimated cost over the\n")
		fmt.Fprintf(os.Stderr, "training queries, validated against -validate_query_path, and writes the\n")
		fmt.Fprintf(os.Stderr, "result to -partition_path plus a '_readable' text companion.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -schema_path t.schema.json -table_range t.ranges.json -query_path t.train.json -validate_query_path t.validate.json -partition_path t.partitions.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s ... -type horizontal -min_row_count 500000\n", os.Args[0])
	}
	flag.Parse()

	if schemaPath == "" || rangePath == "" || trainQueryPath == "" || validateQueryPath == "" || partitionPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch layoutType {
	case "horizontal", "hierarchical-early", "hierarchical-late":
	default:
		log.Fatalf("partitioner: unknown -type %q, want horizontal, hierarchical-early, or hierarchical-late", layoutType)
	}

	variant, err := engine.ParseEngineVariant(engineName)
	if err != nil {
		log.Fatalf("partitioner: %v", err)
	}
	ctx := engine.NewContext(variant)

	rangeReader := fileio.JSONRangeReader{Path: rangePath}
	ranges, err := rangeReader.ReadRanges()
	if err != nil {
		log.Fatalf("partitioner: reading ranges: %v", err)
	}
	for attr, rng := range ranges {
		ctx.Domains.Set(attr, rng)
	}
	rootRowCount, err := rangeReader.ReadRootRowCount()
	if err != nil {
		log.Fatalf("partitioner: reading root row count: %v", err)
	}

	s, err := fileio.JSONSchemaReader{Path: schemaPath}.ReadSchema()
	if err != nil {
		log.Fatalf("partitioner: reading schema: %v", err)
	}

	root, err := buildRootBlock(ctx, s, rootRowCount)
	if err != nil {
		log.Fatalf("partitioner: building root block: %v", err)
	}

	trainQueries, err := fileio.JSONQueryReader{Path: trainQueryPath}.ReadQueries(ctx, s)
	if err != nil {
		log.Fatalf("partitioner: reading training queries: %v", err)
	}
	validateQueries, err := fileio.JSONQueryReader{Path: validateQueryPath}.ReadQueries(ctx, s)
	if err != nil {
		log.Fatalf("partitioner: reading validation queries: %v", err)
	}
	var testQueries []query.Query
	if testQueryPath != "" {
		testQueries, err = fileio.JSONQueryReader{Path: testQueryPath}.ReadQueries(ctx, s)
		if err != nil {
			log.Fatalf("partitioner: reading test queries: %v", err)
		}
	}

	splitter := partitioner.NewSplitter(ctx, rand.New(rand.NewSource(time.Now().UnixNano())), partitioner.MinRowCount(minRowCount))

	blocks, trainCost, err := runLayoutSearch(layoutType, splitter, ctx, root, trainQueries, validateQueries)
	if err != nil {
		log.Fatalf("partitioner: %v", err)
	}

	partitionPathDir := strings.TrimSuffix(partitionPath, ".json")
	writer := fileio.JSONPartitionWriter{
		PartitionPath: partitionPath,
		ReadablePath:  partitionPathDir + "_readable",
	}

	if err := writer.WritePartition(toPartitionMetas(blocks)); err != nil {
		log.Fatalf("partitioner: %v", err)
	}

	report := renderReadableReport(layoutType, blocks, trainCost, validateQueries, testQueries)
	if err := writer.WriteReadable(report); err != nil {
		log.Fatalf("partitioner: %v", err)
	}

	fmt.Fprintf(os.Stderr, "partitioner: wrote %d blocks, training cost %.3fs\n", len(blocks), trainCost)
}

// buildRootBlock assembles the single unpartitioned block spanning the full
// schema and every registered domain range, optionally seeded with a row
// count (spec.md §6's "root bounds" input).
func buildRootBlock(ctx *engine.Context, s schema.Schema, rowCount *int64) (schema.BlockMeta, error) {
	bnd := boundary.NewBoundary()
	for _, attr := range s.Names() {
		rng, err := ctx.Domains.FullDomain(attr)
		if err != nil {
			continue // no registered range for this attribute; left unbounded.
		}
		iv, err := boundary.NewInterval(rng.Min, rng.Max)
		if err != nil {
			return schema.BlockMeta{}, fmt.Errorf("building root interval for %q: %w", attr, err)
		}
		bnd = bnd.With(attr, iv)
	}
	return schema.BlockMeta{Schema: s, Boundary: bnd, RowCount: rowCount}, nil
}

// toPartitionMetas turns the splitter's flat block list into one
// PartitionMeta per output partition file. The hierarchical searches already
// give every leaf block its own PartitionID via assignPartitionIDs; the plain
// horizontal search does not, so a block arriving with no PartitionID yet
// gets the same "<index>.parquet" naming applied here instead. Either way
// this builds PartitionMeta directly rather than through Append, which would
// overwrite every block's PartitionID with a single shared path.
func toPartitionMetas(blocks []schema.BlockMeta) []*schema.PartitionMeta {
	out := make([]*schema.PartitionMeta, len(blocks))
	for i, b := range blocks {
		if b.PartitionID == "" {
			b.PartitionID = fmt.Sprintf("%d.parquet", i)
		}
		out[i] = &schema.PartitionMeta{Path: b.PartitionID, Blocks: []schema.BlockMeta{b}}
	}
	return out
}

func runLayoutSearch(layoutType string, splitter *partitioner.Splitter, ctx *engine.Context, root schema.BlockMeta, trainQueries, validateQueries []query.Query) ([]schema.BlockMeta, float64, error) {
	switch layoutType {
	case "horizontal":
		blocks, err := splitter.HorizontalPartition(root, trainQueries)
		if err != nil {
			return nil, 0, fmt.Errorf("horizontal partition: %w", err)
		}
		return blocks, 0, nil
	case "hierarchical-late":
		hp := partitioner.NewHierarchicalPartitioner(ctx, splitter, cost.ReconstructLate)
		return hp.Partition(root, trainQueries, validateQueries)
	default:
		hp := partitioner.NewHierarchicalPartitioner(ctx, splitter, cost.ReconstructEarly)
		return hp.Partition(root, trainQueries, validateQueries)
	}
}

func renderReadableReport(layoutType string, blocks []schema.BlockMeta, trainCost float64, validateQueries, testQueries []query.Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "layout: %s\n", layoutType)
	fmt.Fprintf(&b, "blocks: %d\n", len(blocks))
	fmt.Fprintf(&b, "training cost: %.3fs\n", trainCost)
	fmt.Fprintf(&b, "validation queries: %d\n", len(validateQueries))
	fmt.Fprintf(&b, "test queries: %d\n\n", len(testQueries))

	table := tablewriter.NewTable(&b)
	table.Header([]string{"block", "partition", "attributes", "rows", "split history"})
	for _, blk := range blocks {
		rows := "unknown"
		if blk.RowCount != nil {
			rows = fmt.Sprintf("%d", *blk.RowCount)
		}
		table.Append([]string{
			fmt.Sprintf("%d", blk.BlockID),
			blk.PartitionID,
			strings.Join(blk.Schema.Names(), ","),
			rows,
			strings.Join(blk.SplitHistory, ">"),
		})
	}
	table.Render()
	return b.String()
}
