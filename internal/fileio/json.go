// json.go is hierplan's own, admittedly minimal interchange representation
// for the four input files named in spec.md §6 (schema, range, partition,
// query) and for the partition writer's binary-named-but-here-JSON output.
// It is not a reproduction of any external wire format — spec.md §1
// explicitly keeps the real interchange format's bit-exact shape out of
// scope, so this codec only needs to be internally consistent.
//
// Supported value kinds are the ones a hand-authored input file would
// plausibly carry: integers, decimals, booleans, and strings. KindEnumString
// and KindFixedBinary are intern-state-bearing or binary-blob kinds that
// never arrive from an external file in this module's own pipeline (they
// are produced internally, by the vocabulary loader and by the plan
// builder's bitmap literals respectively) so the codec rejects them rather
// than inventing an encoding no producer would ever emit.
package fileio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

type wireValue struct {
	Kind     string `json:"kind"`
	Int      int64  `json:"int,omitempty"`
	BitSize  int    `json:"bit_size,omitempty"`
	Mantissa int64  `json:"mantissa,omitempty"`
	Exponent int32  `json:"exponent,omitempty"`
	Bool     bool   `json:"bool,omitempty"`
	Str      string `json:"str,omitempty"`
}

func encodeValue(v value.Value) (wireValue, error) {
	switch v.Kind() {
	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64:
		bits := v.IntBitWidth()
		if bits == 0 {
			bits = 64
		}
		return wireValue{Kind: "int", Int: v.AsInt(), BitSize: bits}, nil
	case value.KindDecimal:
		d := v.AsDecimal()
		return wireValue{Kind: "decimal", Mantissa: d.Mantissa, Exponent: d.Exponent}, nil
	case value.KindBool:
		return wireValue{Kind: "bool", Bool: v.AsBool()}, nil
	case value.KindString:
		return wireValue{Kind: "string", Str: v.AsString()}, nil
	default:
		return wireValue{}, hierr.Wrap(hierr.ErrUnsupportedOperation, fmt.Sprintf("fileio: cannot encode value kind %s to JSON", v.Kind()))
	}
}

func decodeValue(w wireValue) (value.Value, error) {
	switch w.Kind {
	case "int":
		bits := w.BitSize
		if bits == 0 {
			bits = 64
		}
		return value.NewInt(bits, w.Int), nil
	case "decimal":
		return value.NewDecimal(w.Mantissa, w.Exponent), nil
	case "bool":
		return value.NewBool(w.Bool), nil
	case "string":
		return value.NewString(w.Str), nil
	default:
		return value.Value{}, hierr.Wrap(hierr.ErrInputMalformed, fmt.Sprintf("fileio: unknown value kind %q", w.Kind))
	}
}

type wireAttribute struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	ByteSize int    `json:"byte_size,omitempty"`
}

func kindName(k value.Kind) string { return k.String() }

func parseKind(s string) (value.Kind, error) {
	for _, k := range []value.Kind{
		value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64,
		value.KindDecimal, value.KindBool, value.KindEnumString, value.KindString, value.KindFixedBinary,
	} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, hierr.Wrap(hierr.ErrInputMalformed, fmt.Sprintf("fileio: unknown attribute kind %q", s))
}

// --- schema file ---

type wireSchema struct {
	Attributes []wireAttribute `json:"attributes"`
}

// JSONSchemaReader reads a schema file holding a flat, ordered attribute
// list.
type JSONSchemaReader struct{ Path string }

func (r JSONSchemaReader) ReadSchema() (schema.Schema, error) {
	var w wireSchema
	if err := readJSON(r.Path, &w); err != nil {
		return schema.Schema{}, err
	}
	attrs := make([]schema.Attribute, len(w.Attributes))
	for i, wa := range w.Attributes {
		k, err := parseKind(wa.Kind)
		if err != nil {
			return schema.Schema{}, err
		}
		attrs[i] = schema.Attribute{Name: wa.Name, Kind: k, ByteSize: wa.ByteSize}
	}
	return schema.New(attrs)
}

// --- range file ---

type wireRange struct {
	Attribute string    `json:"attribute"`
	Min       wireValue `json:"min"`
	Max       wireValue `json:"max"`
}

type wireRanges struct {
	Ranges []wireRange `json:"ranges"`
	// RowCount, when present, seeds the root table block's row count — the
	// one piece of the partitioner's "root block description" (spec.md §6)
	// that a pure min/max range cannot express. Optional because
	// planproducer's pipeline never needs a row count; only the partitioner
	// does, through ReadRootRowCount.
	RowCount *int64 `json:"row_count,omitempty"`
}

// JSONRangeReader reads the table-range file: one min/max pair per
// attribute, describing the root block's full boundary (spec.md §6), plus
// an optional row count consumed only by the partitioner.
type JSONRangeReader struct{ Path string }

func (r JSONRangeReader) ReadRanges() (map[string]engine.DomainRange, error) {
	w, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]engine.DomainRange, len(w.Ranges))
	for _, wr := range w.Ranges {
		min, err := decodeValue(wr.Min)
		if err != nil {
			return nil, err
		}
		max, err := decodeValue(wr.Max)
		if err != nil {
			return nil, err
		}
		out[wr.Attribute] = engine.DomainRange{Min: min, Max: max}
	}
	return out, nil
}

// ReadRootRowCount returns the range file's optional row_count, or nil if
// the file does not specify one. Implements RootRowCountReader.
func (r JSONRangeReader) ReadRootRowCount() (*int64, error) {
	w, err := r.read()
	if err != nil {
		return nil, err
	}
	return w.RowCount, nil
}

func (r JSONRangeReader) read() (wireRanges, error) {
	var w wireRanges
	if err := readJSON(r.Path, &w); err != nil {
		return wireRanges{}, err
	}
	return w, nil
}

// --- partition file ---

type wireInterval struct {
	Attribute string    `json:"attribute"`
	Low       wireValue `json:"low"`
	High      wireValue `json:"high"`
}

type wireBlock struct {
	BlockID      int            `json:"block_id"`
	Attributes   []string       `json:"attributes"`
	Boundary     []wireInterval `json:"boundary"`
	RowCount     *int64         `json:"row_count,omitempty"`
	SplitHistory []string       `json:"split_history,omitempty"`
}

type wirePartition struct {
	Path   string      `json:"path"`
	Blocks []wireBlock `json:"blocks"`
}

type wirePartitions struct {
	Partitions []wirePartition `json:"partitions"`
}

// JSONPartitionReader reads the partition file: a list of partition
// records, each with a relative path and its blocks (spec.md §6).
type JSONPartitionReader struct{ Path string }

func (r JSONPartitionReader) ReadPartitions(s schema.Schema) ([]*schema.PartitionMeta, error) {
	var w wirePartitions
	if err := readJSON(r.Path, &w); err != nil {
		return nil, err
	}
	out := make([]*schema.PartitionMeta, 0, len(w.Partitions))
	for _, wp := range w.Partitions {
		pm := schema.NewPartitionMeta(wp.Path)
		for _, wb := range wp.Blocks {
			proj := make(map[string]struct{}, len(wb.Attributes))
			for _, a := range wb.Attributes {
				proj[a] = struct{}{}
			}
			bnd := boundary.NewBoundary()
			for _, wi := range wb.Boundary {
				low, err := decodeValue(wi.Low)
				if err != nil {
					return nil, err
				}
				high, err := decodeValue(wi.High)
				if err != nil {
					return nil, err
				}
				iv, err := boundary.NewInterval(low, high)
				if err != nil {
					return nil, err
				}
				bnd = bnd.With(wi.Attribute, iv)
			}
			pm.Append(schema.BlockMeta{
				Schema:       s.Project(proj),
				Boundary:     bnd,
				RowCount:     wb.RowCount,
				SplitHistory: wb.SplitHistory,
			})
		}
		out = append(out, pm)
	}
	return out, nil
}

func encodePartition(pm *schema.PartitionMeta) wirePartition {
	wp := wirePartition{Path: pm.Path}
	for _, b := range pm.Blocks {
		wb := wireBlock{BlockID: b.BlockID, Attributes: b.Schema.Names(), RowCount: b.RowCount, SplitHistory: b.SplitHistory}
		for attr, iv := range b.Boundary.Intervals {
			lowW, err := encodeValue(iv.Low)
			if err != nil {
				continue
			}
			highW, err := encodeValue(iv.High)
			if err != nil {
				continue
			}
			wb.Boundary = append(wb.Boundary, wireInterval{Attribute: attr, Low: lowW, High: highW})
		}
		wp.Blocks = append(wp.Blocks, wb)
	}
	return wp
}

// JSONPartitionWriter emits the partitioner's output partition as JSON and
// its human-readable companion as plain text, the two outputs named in
// spec.md §6 ("a partition file ... plus a text companion with suffix
// _readable").
type JSONPartitionWriter struct {
	PartitionPath string
	ReadablePath  string
}

func (w JSONPartitionWriter) WritePartition(partitions []*schema.PartitionMeta) error {
	out := wirePartitions{Partitions: make([]wirePartition, len(partitions))}
	for i, pm := range partitions {
		out.Partitions[i] = encodePartition(pm)
	}
	return writeJSON(w.PartitionPath, out)
}

func (w JSONPartitionWriter) WriteReadable(report string) error {
	if err := os.WriteFile(w.ReadablePath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("fileio: writing readable report %q: %w", w.ReadablePath, err)
	}
	return nil
}

// --- query file ---

type wireExpr struct {
	Type     string     `json:"type"` // "attribute" | "literal" | "function" | "aggregate" | "if"
	Name     string     `json:"name,omitempty"`
	Op       string     `json:"op,omitempty"`
	Kind     string     `json:"kind,omitempty"`
	Val      *wireValue `json:"val,omitempty"`
	Children []wireExpr `json:"children,omitempty"`
	If       *wireExpr  `json:"if,omitempty"`
	Then     *wireExpr  `json:"then,omitempty"`
	Else     *wireExpr  `json:"else,omitempty"`
}

func decodeExpr(w wireExpr) (expr.Expression, error) {
	switch w.Type {
	case "attribute":
		k, err := parseKind(w.Kind)
		if err != nil {
			return nil, err
		}
		return expr.Attribute{Name: w.Name, Kind: k}, nil
	case "literal":
		if w.Val == nil {
			return nil, hierr.Wrap(hierr.ErrInputMalformed, "fileio: literal expression missing val")
		}
		v, err := decodeValue(*w.Val)
		if err != nil {
			return nil, err
		}
		return expr.Literal{Name: w.Name, Val: v}, nil
	case "function":
		children, err := decodeExprs(w.Children)
		if err != nil {
			return nil, err
		}
		k, err := parseKind(w.Kind)
		if err != nil {
			return nil, err
		}
		return expr.FunctionExpression{Name: w.Name, Op: w.Op, Children: children, Kind: k}, nil
	case "aggregate":
		children, err := decodeExprs(w.Children)
		if err != nil {
			return nil, err
		}
		k, err := parseKind(w.Kind)
		if err != nil {
			return nil, err
		}
		return expr.AggregateExpression{Name: w.Name, Op: w.Op, Children: children, Kind: k}, nil
	case "if":
		if w.If == nil || w.Then == nil || w.Else == nil {
			return nil, hierr.Wrap(hierr.ErrInputMalformed, "fileio: if expression missing a branch")
		}
		ifE, err := decodeExpr(*w.If)
		if err != nil {
			return nil, err
		}
		thenE, err := decodeExpr(*w.Then)
		if err != nil {
			return nil, err
		}
		elseE, err := decodeExpr(*w.Else)
		if err != nil {
			return nil, err
		}
		return expr.IfFunctionExpression{If: ifE, Then: thenE, Else: elseE}, nil
	default:
		return nil, hierr.Wrap(hierr.ErrInputMalformed, fmt.Sprintf("fileio: unknown expression type %q", w.Type))
	}
}

func decodeExprs(ws []wireExpr) ([]expr.Expression, error) {
	out := make([]expr.Expression, len(ws))
	for i, w := range ws {
		e, err := decodeExpr(w)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

type wireMeasure struct {
	Name string   `json:"name"`
	Expr wireExpr `json:"expr"`
}

type wireQuery struct {
	Filter   wireExpr      `json:"filter"`
	Measures []wireMeasure `json:"measures"`
}

type wireQueries struct {
	Queries []wireQuery `json:"queries"`
}

// JSONQueryReader reads the query file: a plan-shaped record per query
// (conjunctive filter plus an ordered measure list), deriving each query's
// FilterBoundary on load via query.New (spec.md §6).
type JSONQueryReader struct{ Path string }

func (r JSONQueryReader) ReadQueries(ctx *engine.Context, s schema.Schema) ([]query.Query, error) {
	var w wireQueries
	if err := readJSON(r.Path, &w); err != nil {
		return nil, err
	}
	out := make([]query.Query, 0, len(w.Queries))
	for _, wq := range w.Queries {
		filter, err := decodeExpr(wq.Filter)
		if err != nil {
			return nil, err
		}
		measures := make([]query.Measure, len(wq.Measures))
		for i, wm := range wq.Measures {
			e, err := decodeExpr(wm.Expr)
			if err != nil {
				return nil, err
			}
			measures[i] = query.Measure{Name: wm.Name, Expr: e}
		}
		q, err := query.New(ctx, s, filter, measures)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// --- shared JSON helpers ---

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return hierr.Wrap(hierr.ErrNotFound, fmt.Sprintf("fileio: opening %q: %v", path, err))
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(v); err != nil {
		return hierr.Wrap(hierr.ErrInputMalformed, fmt.Sprintf("fileio: decoding %q: %v", path, err))
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fileio: creating %q: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("fileio: encoding %q: %w", path, err)
	}
	return nil
}

var _ = kindName // retained for symmetry with parseKind; kindName has no caller.
