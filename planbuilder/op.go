// Package planbuilder assembles the physical-operator tree (spec.md §4.4)
// from a query and its lowered scan parameters (component G). The tree
// itself is engine-agnostic: a process-wide engine.EngineVariant selects
// each primitive's physical lowering, which this package does not concern
// itself with — it only ever emits primitive nodes by name.
//
// Grounded on the node-chain Op interface from Sneller's plan package
// (_examples/other_examples/0af2b23c_SnellerInc-sneller__plan-plan.go.go):
// a Nonterminal embedding a single From Op, walked/rewritten recursively.
// hierplan's Op additionally exposes multi-input nodes (UnionAll, join)
// through the same Inputs() contract rather than Sneller's single-parent
// chain, since spec.md's
// reconstruction plans fan multiple reads into one union or join.
package planbuilder

import (
	"fmt"

	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/schema"
)

// Op is one node of the physical plan tree. Every node knows its own output
// schema and can be walked/rewritten; nodes with a single upstream input
// embed Nonterminal, nodes with several embed MultiInput.
type Op interface {
	fmt.Stringer
	Inputs() []Op
	Schema() schema.Schema
	Walk(fn func(Op))
}

// Nonterminal is embedded by every single-input primitive (filter, project,
// aggregate, exchange).
type Nonterminal struct {
	From Op
}

func (n *Nonterminal) Inputs() []Op {
	if n.From == nil {
		return nil
	}
	return []Op{n.From}
}

// MultiInput is embedded by primitives that fan in more than one upstream
// operator (unionAll, equalJoin).
type MultiInput struct {
	From []Op
}

func (m *MultiInput) Inputs() []Op {
	return m.From
}

// Walk visits op and every operator reachable from it, depth-first,
// upstream-first (inputs before op itself) — the order the plan builder's
// own construction proceeds in, so a caller walking a freshly built tree
// sees reads before the operators that consume them.
func Walk(op Op, fn func(Op)) {
	if op == nil {
		return
	}
	for _, in := range op.Inputs() {
		Walk(in, fn)
	}
	fn(op)
}

// ReadOp is the read(path, blockIds, baseSchema) primitive (spec.md §4.4):
// it emits rows of baseSchema from the blocks listed in BlockIDs. The
// builder records the block_id restriction on the read node only; it adds
// no block_id filter above the read.
type ReadOp struct {
	Path       string
	BlockIDs   []int
	BaseSchema schema.Schema
}

func (r *ReadOp) Inputs() []Op            { return nil }
func (r *ReadOp) Schema() schema.Schema   { return r.BaseSchema }
func (r *ReadOp) Walk(fn func(Op))        { Walk(r, fn) }
func (r *ReadOp) String() string {
	return fmt.Sprintf("read(%s, blocks=%v)", r.Path, r.BlockIDs)
}

// FilterOp applies Expr to From's rows, passing through its schema
// unchanged.
type FilterOp struct {
	Nonterminal
	Expr       expr.Expression
	OutSchema  schema.Schema
}

func (f *FilterOp) Schema() schema.Schema { return f.OutSchema }
func (f *FilterOp) Walk(fn func(Op))      { Walk(f, fn) }
func (f *FilterOp) String() string        { return fmt.Sprintf("filter(%s)", f.Expr.Emit()) }

// ProjectOp replaces From's output schema with the evaluation of Exprs,
// named by Names in the same order.
type ProjectOp struct {
	Nonterminal
	Names     []string
	Exprs     []expr.Expression
	OutSchema schema.Schema
}

func (p *ProjectOp) Schema() schema.Schema { return p.OutSchema }
func (p *ProjectOp) Walk(fn func(Op))      { Walk(p, fn) }
func (p *ProjectOp) String() string        { return fmt.Sprintf("project(%v)", p.Names) }

// UnionAllOp concatenates all inputs, which must share OutSchema.
type UnionAllOp struct {
	MultiInput
	OutSchema schema.Schema
}

func (u *UnionAllOp) Schema() schema.Schema { return u.OutSchema }
func (u *UnionAllOp) Walk(fn func(Op))      { Walk(u, fn) }
func (u *UnionAllOp) String() string        { return fmt.Sprintf("unionAll(%d inputs)", len(u.From)) }

// ExchangeOp redistributes rows across workers by hashing ScatterKeys. It is
// optional on engines that lack a shuffle primitive — BuildAggregationPlan
// only inserts it when the caller asks for the parallel-partition variant
// (spec.md §4.5).
type ExchangeOp struct {
	Nonterminal
	ScatterKeys []string
	OutSchema   schema.Schema
}

func (e *ExchangeOp) Schema() schema.Schema { return e.OutSchema }
func (e *ExchangeOp) Walk(fn func(Op))      { Walk(e, fn) }
func (e *ExchangeOp) String() string        { return fmt.Sprintf("exchange(%v)", e.ScatterKeys) }

// AggregateMeasure names one output column of an AggregateOp and the
// expression computing it (a reconstruct()/bitmap_or()/sum()/... call over
// From's rows within a group).
type AggregateMeasure struct {
	Name string
	Expr expr.Expression
}

// AggregateOp groups From's rows by GroupKey (nil means "one group, the
// whole relation") and evaluates Measures per group.
type AggregateOp struct {
	Nonterminal
	GroupKey  []string
	Measures  []AggregateMeasure
	OutSchema schema.Schema
}

func (a *AggregateOp) Schema() schema.Schema { return a.OutSchema }
func (a *AggregateOp) Walk(fn func(Op))      { Walk(a, fn) }
func (a *AggregateOp) String() string {
	return fmt.Sprintf("aggregate(group=%v, measures=%d)", a.GroupKey, len(a.Measures))
}

// JoinType distinguishes the equal-join variants the builder needs.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinFullOuter
)

// EqualJoinOp is the equalJoin(rel, left, right, leftKey, rightKey, type)
// primitive (spec.md §4.4): it prefixes left columns with "left_" and right
// columns with "right_", and records, for every original column, the
// position it lands at in the joined output (LeftPositions/RightPositions)
// so the merge-projection step built on top can find them without
// re-deriving the naming convention.
type EqualJoinOp struct {
	MultiInput // From[0] = left, From[1] = right
	LeftKey        string
	RightKey       string
	Type           JoinType
	OutSchema      schema.Schema
	LeftPositions  map[string]int
	RightPositions map[string]int
}

func (j *EqualJoinOp) Left() Op             { return j.From[0] }
func (j *EqualJoinOp) Right() Op            { return j.From[1] }
func (j *EqualJoinOp) Schema() schema.Schema { return j.OutSchema }
func (j *EqualJoinOp) Walk(fn func(Op))      { Walk(j, fn) }
func (j *EqualJoinOp) String() string {
	return fmt.Sprintf("equalJoin(%s = %s)", j.LeftKey, j.RightKey)
}
