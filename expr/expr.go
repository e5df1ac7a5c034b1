// Package expr implements the scalar/aggregate expression tree (spec.md
// §4.2): a closed sum type over Attribute, Literal, FunctionExpression,
// IfFunctionExpression and AggregateExpression, each supporting clone,
// attribute collection, structural equality, and type inspection.
//
// Grounded on the teacher's closed-sum-type idiom for query.Clause /
// query.Term / query.FindElement (datalog/query/types.go,
// datalog/query/predicate.go): an interface with an unexported marker method
// plus a type switch at every consumer, rather than a class hierarchy.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/value"
)

// Expression is the closed sum type. isExpression is unexported so only this
// package's variants can implement it.
type Expression interface {
	isExpression()
	Clone() Expression
	Attributes() map[string]struct{}
	Equal(other Expression) bool
	Type() value.Kind
	Emit() string
}

// Attribute references a schema column by name.
type Attribute struct {
	Name string
	Kind value.Kind
	Size int // optional fixed-binary width; 0 means unset.
}

func (Attribute) isExpression() {}

func (a Attribute) Clone() Expression { return Attribute{Name: a.Name, Kind: a.Kind, Size: a.Size} }

func (a Attribute) Attributes() map[string]struct{} {
	return map[string]struct{}{a.Name: {}}
}

func (a Attribute) Equal(other Expression) bool {
	o, ok := other.(Attribute)
	return ok && o.Name == a.Name && o.Kind == a.Kind && o.Size == a.Size
}

func (a Attribute) Type() value.Kind { return a.Kind }

func (a Attribute) Emit() string { return a.Name }

// Literal wraps a constant value.Value.
type Literal struct {
	Name string // human-readable label, not used for equality.
	Val  value.Value
}

func (Literal) isExpression() {}

func (l Literal) Clone() Expression { return Literal{Name: l.Name, Val: l.Val.Clone()} }

func (l Literal) Attributes() map[string]struct{} { return map[string]struct{}{} }

func (l Literal) Equal(other Expression) bool {
	o, ok := other.(Literal)
	return ok && value.Equal(l.Val, o.Val)
}

func (l Literal) Type() value.Kind { return l.Val.Kind() }

func (l Literal) Emit() string { return l.Val.String() }

// NullLiteral is a typed absent value — the "null literal of the right
// type" the reconstruction plan emits for a column a block does not carry
// (spec.md §4.5). Kept distinct from Literal because value.Value has no
// null representation of its own (component A deliberately keeps every
// Value a concrete scalar); NullLiteral is the expression tree's own
// encoding of absence, resolved only at emission time.
type NullLiteral struct {
	Kind value.Kind
}

func (NullLiteral) isExpression() {}

func (n NullLiteral) Clone() Expression { return NullLiteral{Kind: n.Kind} }

func (n NullLiteral) Attributes() map[string]struct{} { return map[string]struct{}{} }

func (n NullLiteral) Equal(other Expression) bool {
	o, ok := other.(NullLiteral)
	return ok && o.Kind == n.Kind
}

func (n NullLiteral) Type() value.Kind { return n.Kind }

func (n NullLiteral) Emit() string { return fmt.Sprintf("null(%s)", n.Kind) }

// FunctionExpression is a scalar function call over child expressions.
type FunctionExpression struct {
	Name     string
	Op       string
	Children []Expression
	Kind     value.Kind
	Nullable bool
	Anchor   engine.FunctionAnchor
}

func (FunctionExpression) isExpression() {}

func (f FunctionExpression) Clone() Expression {
	children := make([]Expression, len(f.Children))
	for i, c := range f.Children {
		children[i] = c.Clone()
	}
	return FunctionExpression{Name: f.Name, Op: f.Op, Children: children, Kind: f.Kind, Nullable: f.Nullable, Anchor: f.Anchor}
}

func (f FunctionExpression) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, c := range f.Children {
		for a := range c.Attributes() {
			out[a] = struct{}{}
		}
	}
	return out
}

func (f FunctionExpression) Equal(other Expression) bool {
	o, ok := other.(FunctionExpression)
	if !ok || o.Op != f.Op || o.Kind != f.Kind || o.Nullable != f.Nullable || len(o.Children) != len(f.Children) {
		return false
	}
	for i := range f.Children {
		if !f.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func (f FunctionExpression) Type() value.Kind { return f.Kind }

func (f FunctionExpression) Emit() string {
	parts := make([]string, len(f.Children))
	for i, c := range f.Children {
		parts[i] = c.Emit()
	}
	return fmt.Sprintf("%s(%s)", f.Op, strings.Join(parts, ", "))
}

// IsAndOnly reports whether f and every non-leaf descendant uses op andOp:
// a right-leaning conjunction tree built entirely from andOp nodes.
func (f FunctionExpression) IsAndOnly(andOp string) bool {
	if f.Op != andOp {
		return false
	}
	for _, c := range f.Children {
		if child, ok := c.(FunctionExpression); ok {
			if !child.IsAndOnly(andOp) {
				return false
			}
		}
	}
	return true
}

// GetSubExpressions flattens an IsAndOnly tree into its conjunct leaves, in
// left-to-right order.
func (f FunctionExpression) GetSubExpressions(andOp string) []Expression {
	if f.Op != andOp {
		return []Expression{f}
	}
	var out []Expression
	for _, c := range f.Children {
		if child, ok := c.(FunctionExpression); ok && child.Op == andOp {
			out = append(out, child.GetSubExpressions(andOp)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// IfFunctionExpression is a FunctionExpression whose op is always
// "if_then_else"; it is modelled as its own variant because its three
// children have fixed semantic roles rather than being a flat argument list.
type IfFunctionExpression struct {
	If   Expression
	Then Expression
	Else Expression
}

func (IfFunctionExpression) isExpression() {}

func (i IfFunctionExpression) Clone() Expression {
	return IfFunctionExpression{If: i.If.Clone(), Then: i.Then.Clone(), Else: i.Else.Clone()}
}

func (i IfFunctionExpression) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range []Expression{i.If, i.Then, i.Else} {
		for a := range e.Attributes() {
			out[a] = struct{}{}
		}
	}
	return out
}

func (i IfFunctionExpression) Equal(other Expression) bool {
	o, ok := other.(IfFunctionExpression)
	return ok && i.If.Equal(o.If) && i.Then.Equal(o.Then) && i.Else.Equal(o.Else)
}

func (i IfFunctionExpression) Type() value.Kind { return i.Then.Type() }

func (i IfFunctionExpression) Emit() string {
	return fmt.Sprintf("if_then_else(%s, %s, %s)", i.If.Emit(), i.Then.Emit(), i.Else.Emit())
}

// AggregateExpression is an aggregate function call (sum/count/min/max/...)
// evaluated across the rows a block or mini-table contributes.
type AggregateExpression struct {
	Name     string
	Op       string
	Children []Expression
	Kind     value.Kind
	Nullable bool
	Anchor   engine.FunctionAnchor
}

func (AggregateExpression) isExpression() {}

func (a AggregateExpression) Clone() Expression {
	children := make([]Expression, len(a.Children))
	for i, c := range a.Children {
		children[i] = c.Clone()
	}
	return AggregateExpression{Name: a.Name, Op: a.Op, Children: children, Kind: a.Kind, Nullable: a.Nullable, Anchor: a.Anchor}
}

func (a AggregateExpression) Attributes() map[string]struct{} {
	out := map[string]struct{}{}
	for _, c := range a.Children {
		for attr := range c.Attributes() {
			out[attr] = struct{}{}
		}
	}
	return out
}

func (a AggregateExpression) Equal(other Expression) bool {
	o, ok := other.(AggregateExpression)
	if !ok || o.Op != a.Op || o.Kind != a.Kind || o.Nullable != a.Nullable || len(o.Children) != len(a.Children) {
		return false
	}
	for i := range a.Children {
		if !a.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func (a AggregateExpression) Type() value.Kind { return a.Kind }

func (a AggregateExpression) Emit() string {
	parts := make([]string, len(a.Children))
	for i, c := range a.Children {
		parts[i] = c.Emit()
	}
	return fmt.Sprintf("%s(%s)", a.Op, strings.Join(parts, ", "))
}

// ConnectExpression builds a right-leaning and/or tree from exprs using op,
// padding a lone singleton with the identity literal (true for "and", false
// for "or") so the result is always a binary operator node, even for a
// one-element input. Panics only on a programmer error (empty exprs), which
// every caller in this module prevents by construction.
func ConnectExpression(name string, op string, exprs []Expression, nullable bool) Expression {
	if len(exprs) == 0 {
		panic("ConnectExpression requires at least one expression")
	}
	identity := identityLiteral(op)
	working := exprs
	if len(working) == 1 {
		working = []Expression{working[0], identity}
	}
	// Right-leaning: fold from the end so the rightmost pair is innermost.
	acc := working[len(working)-1]
	for i := len(working) - 2; i >= 0; i-- {
		acc = FunctionExpression{
			Name:     name,
			Op:       op,
			Children: []Expression{working[i], acc},
			Kind:     value.KindBool,
			Nullable: nullable,
		}
	}
	return acc
}

func identityLiteral(op string) Expression {
	if op == "or" {
		return Literal{Name: "false", Val: value.NewBool(false)}
	}
	return Literal{Name: "true", Val: value.NewBool(true)}
}

// SortedAttributes returns a's attribute set as a deterministic, sorted
// slice — every caller that needs to walk an expression's referenced
// attributes in a stable order (bitmap construction, plan-column ordering)
// goes through this rather than ranging a map directly.
func SortedAttributes(e Expression) []string {
	set := e.Attributes()
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// RequireType checks that an expression's Type matches want, returning a
// TypeMismatch error otherwise; used at plan-emission boundaries.
func RequireType(e Expression, want value.Kind) error {
	if e.Type() != want {
		return hierr.Wrap(hierr.ErrTypeMismatch, fmt.Sprintf("expected %s, got %s", want, e.Type()))
	}
	return nil
}
