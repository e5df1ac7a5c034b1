// Package query implements the Query record (spec.md §3 / component F): a
// reference to the table schema, a boolean filter expression tree, and an
// ordered list of aggregate measures, with the filter boundary and each
// measure's referenced-attribute set derived on construction.
//
// Grounded directly on the teacher's query.Query / query.Predicate /
// query.Comparison shape (datalog/query/types.go, datalog/query/predicate.go):
// hierplan keeps the same Find -> Measures, Where -> Filter layering and the
// same optimizer-hint idea (datalog's RequiredSymbols / CanPushToStorage)
// repurposed here as ReferencedAttributes / IsBoundaryExtractable.
package query

import (
	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// ComparisonOp is one of the boundary-extractable comparison operators.
type ComparisonOp int

const (
	OpLT ComparisonOp = iota
	OpLE
	OpEQ
	OpGE
	OpGT
)

// Measure is one aggregate output column: a name and the aggregate
// expression that computes it.
type Measure struct {
	Name string
	Expr expr.Expression
}

// ReferencedAttributes returns the set of attribute names m.Expr reads,
// mirroring datalog.FindElement's RequiredSymbols hint repurposed for the
// columnar domain.
func (m Measure) ReferencedAttributes() map[string]struct{} {
	return m.Expr.Attributes()
}

// ScalarExpr returns the per-row expression a measure evaluates before
// aggregation: an AggregateExpression's sole child, or m.Expr itself for any
// other shape. The plan builder's reconstruction path (spec.md §4.5) needs
// this to compute a measure's value per reconstructed tuple; the aggregate
// reduction (sum, count, ...) is applied afterward, once, by the top-level
// combine aggregate.
func (m Measure) ScalarExpr() expr.Expression {
	if agg, ok := m.Expr.(expr.AggregateExpression); ok && len(agg.Children) > 0 {
		return agg.Children[0]
	}
	return m.Expr
}

// AggregateOp returns the reduction function name (sum/count/min/max/...) a
// measure applies across the rows it has been computed over, or "identity"
// if m.Expr is not an AggregateExpression.
func (m Measure) AggregateOp() string {
	if agg, ok := m.Expr.(expr.AggregateExpression); ok {
		return agg.Op
	}
	return "identity"
}

// Query is the top-level, parsed query: which schema it runs against, its
// boolean filter tree, and its ordered measures.
type Query struct {
	Schema   schema.Schema
	Filter   expr.Expression
	Measures []Measure

	// FilterBoundary is derived on construction: the per-attribute interval
	// obtained by extracting conjuncts of the top-level "and" tree that
	// match `attr <op> literal` (or the literal-first mirror), intersecting
	// repeated clauses on the same attribute.
	FilterBoundary boundary.Boundary
}

// New builds a Query and derives its FilterBoundary from filter's top-level
// conjunction, per spec.md §3.
func New(ctx *engine.Context, s schema.Schema, filter expr.Expression, measures []Measure) (Query, error) {
	fb, err := DeriveFilterBoundary(ctx, filter)
	if err != nil {
		return Query{}, err
	}
	return Query{Schema: s, Filter: filter, Measures: measures, FilterBoundary: fb}, nil
}

// DeriveFilterBoundary extracts the filter boundary of a top-level
// conjunction: every conjunct shaped `attr <op> literal` (or the mirror)
// with op in {<,<=,=,>=,>} narrows that attribute's interval; conflicting
// clauses on the same attribute intersect. Conjuncts of any other shape
// (an "or", a function call over two attributes, ...) contribute nothing
// to the boundary and are left for the residual post-read filter.
func DeriveFilterBoundary(ctx *engine.Context, filter expr.Expression) (boundary.Boundary, error) {
	out := boundary.NewBoundary()
	if filter == nil {
		return out, nil
	}
	conjuncts := flattenConjuncts(filter)
	for _, c := range conjuncts {
		attrName, op, lit, ok := matchComparison(c)
		if !ok {
			continue
		}
		iv, ok := comparisonToInterval(ctx, attrName, op, lit)
		if !ok {
			continue
		}
		existing, has := out.Intervals[attrName]
		if !has {
			out.Intervals[attrName] = iv
			continue
		}
		inter, err := existing.Intersect(iv)
		if err != nil {
			return boundary.Boundary{}, hierr.Wrap(hierr.ErrInvariantViolation, "conflicting filter clauses produce an empty interval for attribute "+attrName)
		}
		out.Intervals[attrName] = inter
	}
	return out, nil
}

// flattenConjuncts returns filter's top-level "and" conjuncts via
// GetSubExpressions (nested "and" nodes are flattened; any other child, a
// comparison or an "or", is one conjunct), or filter itself as a single
// conjunct when its root is not an "and".
func flattenConjuncts(filter expr.Expression) []expr.Expression {
	f, ok := filter.(expr.FunctionExpression)
	if !ok || f.Op != "and" {
		return []expr.Expression{filter}
	}
	return f.GetSubExpressions("and")
}

// matchComparison recognizes `attr <op> literal` or `literal <op> attr`.
func matchComparison(e expr.Expression) (attrName string, op ComparisonOp, lit value.Value, ok bool) {
	f, isFunc := e.(expr.FunctionExpression)
	if !isFunc || len(f.Children) != 2 {
		return "", 0, value.Value{}, false
	}
	cmpOp, known := comparisonOps[f.Op]
	if !known {
		return "", 0, value.Value{}, false
	}
	if a, isAttr := f.Children[0].(expr.Attribute); isAttr {
		if l, isLit := f.Children[1].(expr.Literal); isLit {
			return a.Name, cmpOp, l.Val, true
		}
	}
	if l, isLit := f.Children[0].(expr.Literal); isLit {
		if a, isAttr := f.Children[1].(expr.Attribute); isAttr {
			return a.Name, mirror(cmpOp), l.Val, true
		}
	}
	return "", 0, value.Value{}, false
}

var comparisonOps = map[string]ComparisonOp{
	"lt": OpLT,
	"le": OpLE,
	"eq": OpEQ,
	"ge": OpGE,
	"gt": OpGT,
}

// mirror swaps an operator's operand order: `5 < attr` becomes `attr > 5`.
func mirror(op ComparisonOp) ComparisonOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLE:
		return OpGE
	case OpGT:
		return OpLT
	case OpGE:
		return OpLE
	default:
		return op
	}
}

// comparisonToInterval turns `attr op literal` into the interval it implies
// on attr, using the domain's full range to fill in the open side.
func comparisonToInterval(ctx *engine.Context, attrName string, op ComparisonOp, lit value.Value) (boundary.Interval, bool) {
	rng, err := ctx.Domains.FullDomain(attrName)
	if err != nil {
		return boundary.Interval{}, false
	}
	switch op {
	case OpEQ:
		return boundary.Interval{Low: lit, High: lit}, true
	case OpGE:
		return boundary.Interval{Low: lit, High: rng.Max}, true
	case OpGT:
		next, err := value.Next(lit)
		if err != nil {
			return boundary.Interval{}, false
		}
		return boundary.Interval{Low: next, High: rng.Max}, true
	case OpLE:
		return boundary.Interval{Low: rng.Min, High: lit}, true
	case OpLT:
		prev, err := value.Prev(lit)
		if err != nil {
			return boundary.Interval{}, false
		}
		return boundary.Interval{Low: rng.Min, High: prev}, true
	default:
		return boundary.Interval{}, false
	}
}

// IsBoundaryExtractable reports whether e is a shape DeriveFilterBoundary
// can turn into an interval constraint (used by the scan-parameter core to
// decide which conjuncts still need runtime evaluation after pushdown).
func IsBoundaryExtractable(e expr.Expression) bool {
	_, _, _, ok := matchComparison(e)
	return ok
}
