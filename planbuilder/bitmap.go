package planbuilder

import (
	"sort"

	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// Bitmap column names shared by every reconstruction-plan node, matching
// spec.md §4.5's three auxiliary columns.
const (
	colTupleID          = "tuple_id"
	colValidAttributes  = "valid_attributes"
	colPassedPreds      = "passed_preds"
	colDirectMeasures   = "direct_measures"
)

// bitmapLiteral builds the project-time literal fixed-binary column for a
// set of bit positions out of total, per spec.md §4.5's "literal
// fixed-binary bitmap" construction.
func bitmapLiteral(set map[int]struct{}, total int) expr.Expression {
	bm := value.NewBitmap(uint(total))
	for i := range set {
		bm = bm.Set(uint(i))
	}
	return expr.Literal{Val: bm.AsFixedBinary()}
}

// bitmapLiteralNames is bitmapLiteral over a subset of a table schema's
// attributes, used for the valid_attributes column (present = the attributes
// this block's project step actually supplies). Bit i always means "the
// attribute at position i in tableSchema", per spec.md's "bitmap over the
// table schema" contract, so the same position means the same attribute
// across every scan parameter and every join/aggregate level that merges
// their bitmaps together.
func bitmapLiteralNames(present map[string]struct{}, tableSchema schema.Schema) expr.Expression {
	set := map[int]struct{}{}
	for _, pos := range tableSchema.BitPositions(present) {
		set[int(pos)] = struct{}{}
	}
	return bitmapLiteral(set, tableSchema.Len())
}

// validAttributeBit returns a's position in q's table schema, the same
// index bitmapLiteralNames used when setting its valid_attributes bit. It
// returns -1 for an attribute the table schema doesn't carry.
func validAttributeBit(q query.Query, a string) int {
	if _, pos, ok := q.Schema.ByName(a); ok {
		return pos
	}
	return -1
}

// bitmapGet builds the bitmap_get(col, i) scalar call.
func bitmapGet(col string, i int) expr.Expression {
	return expr.FunctionExpression{
		Op:   "bitmap_get",
		Kind: value.KindBool,
		Children: []expr.Expression{
			expr.Attribute{Name: col, Kind: value.KindFixedBinary},
			expr.Literal{Val: value.NewInt(32, int64(i))},
		},
	}
}

// bitmapOr builds the bitmap_or(left, right) aggregate-measure call used to
// merge three bitmap columns across reconstruct reads contributing to the
// same tuple.
func bitmapOr(col string, kind value.Kind) expr.AggregateExpression {
	return expr.AggregateExpression{
		Op:   "bitmap_or",
		Kind: kind,
		Children: []expr.Expression{
			expr.Attribute{Name: col, Kind: value.KindFixedBinary},
		},
	}
}

// bitmapOrScalar builds the merge-projection's bitmap_or_scalar(left, right)
// call used between join levels (spec.md §4.6) rather than across aggregate
// groups.
func bitmapOrScalar(left, right expr.Expression) expr.Expression {
	return expr.FunctionExpression{
		Op:       "bitmap_or_scalar",
		Kind:     value.KindFixedBinary,
		Children: []expr.Expression{left, right},
	}
}

// sortedStrings returns s sorted, never mutating the input.
func sortedStrings(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// reconstructExpr builds the reconstruct(col) "take any non-null" aggregate
// call for one data column during the tuple-id aggregate step.
func reconstructExpr(name string, kind value.Kind) expr.AggregateExpression {
	return expr.AggregateExpression{
		Op:   "reconstruct",
		Kind: kind,
		Children: []expr.Expression{
			expr.Attribute{Name: name, Kind: kind},
		},
	}
}
