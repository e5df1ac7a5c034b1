package planbuilder

import (
	"fmt"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/scanparam"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// AggregationPlanOptions controls the optional parallel-partition variant of
// the aggregation-reconstruction plan (spec.md §4.5).
type AggregationPlanOptions struct {
	// Parallel wraps the tuple-id aggregate in an exchange hashed on
	// tuple_id, with a following unionAll downstream, so the aggregate can
	// be split across worker partitions by tuple-id range.
	Parallel bool
}

// BuildAggregationPlan implements spec.md §4.5: it lowers an
// AggregationResult (component G's output) into the reconstruct-path +
// direct-path + combine operator tree.
func BuildAggregationPlan(ctx *engine.Context, q query.Query, result scanparam.AggregationResult, opts AggregationPlanOptions) (Op, error) {
	union := unionReadAttributes(result.ReconstructParams)

	var reconstructOutput Op
	if len(result.ReconstructParams) > 0 {
		var projects []Op
		for _, sp := range result.ReconstructParams {
			p, err := buildReconstructProject(q, sp, union)
			if err != nil {
				return nil, err
			}
			projects = append(projects, p)
		}
		unioned := unionAllOf(projects)
		aggregated := aggregateByTupleID(q, unioned, union)
		var after Op = aggregated
		if opts.Parallel {
			after = wrapExchangeUnion(aggregated, []string{colTupleID})
		}
		filtered, err := applyGuardedPredicateFilter(q, after)
		if err != nil {
			return nil, err
		}
		reconstructOutput = projectGuardedMeasures(q, filtered, true)
	}

	var directOutput Op
	if len(result.DirectParams) > 0 {
		var projects []Op
		for _, sp := range result.DirectParams {
			projects = append(projects, buildDirectProject(q, sp))
		}
		unioned := unionAllOf(projects)
		directOutput = projectGuardedMeasures(q, unioned, false)
	}

	var combined Op
	switch {
	case reconstructOutput != nil && directOutput != nil:
		combined = unionAllOf([]Op{reconstructOutput, directOutput})
	case reconstructOutput != nil:
		combined = reconstructOutput
	case directOutput != nil:
		combined = directOutput
	default:
		return nil, fmt.Errorf("aggregation plan has neither reconstruct nor direct params")
	}

	return finalCombineAggregate(q, combined), nil
}

// unionReadAttributes returns the deterministic union of every reconstruct
// param's read attributes, excluding tuple_id (spec.md §4.5's "union of
// requested columns").
func unionReadAttributes(params []scanparam.ScanParameter) []string {
	set := map[string]struct{}{}
	for _, sp := range params {
		for a := range sp.ReadAttributes {
			if a != colTupleID {
				set[a] = struct{}{}
			}
		}
	}
	return sortedStrings(set)
}

func attrKind(q query.Query, name string) value.Kind {
	if attr, _, ok := q.Schema.ByName(name); ok {
		return attr.Kind
	}
	return value.KindInt64
}

// buildReconstructProject emits read -> (optional post-read filter) ->
// project for one reconstruct scan parameter, producing tuple_id, the three
// bitmap columns, and every attribute in union (present or a typed null).
func buildReconstructProject(q query.Query, sp scanparam.ScanParameter, union []string) (Op, error) {
	if len(sp.Blocks) != 1 {
		return nil, fmt.Errorf("reconstruct scan parameter must reference exactly one block, got %d", len(sp.Blocks))
	}
	block := sp.Blocks[0]
	read := &ReadOp{Path: sp.FilePath, BlockIDs: sp.BlockIDs, BaseSchema: block.Schema}

	var from Op = read
	if sp.HasPostReadFilter {
		guard := postReadFilterExpr(sp)
		from = &FilterOp{Nonterminal: Nonterminal{From: read}, Expr: guard, OutSchema: block.Schema}
	}

	names := []string{colTupleID, colValidAttributes, colPassedPreds, colDirectMeasures}
	exprs := []expr.Expression{
		expr.Attribute{Name: colTupleID, Kind: value.KindInt64},
		bitmapLiteralNames(sp.ProjectAttributes, q.Schema),
		bitmapLiteral(sp.PassedPreds, len(q.FilterBoundary.Intervals)),
		bitmapLiteral(sp.DirectMeasures, len(q.Measures)),
	}
	attrs := []schema.Attribute{
		{Name: colTupleID, Kind: value.KindInt64},
		{Name: colValidAttributes, Kind: value.KindFixedBinary},
		{Name: colPassedPreds, Kind: value.KindFixedBinary},
		{Name: colDirectMeasures, Kind: value.KindFixedBinary},
	}
	for _, a := range union {
		names = append(names, a)
		attrs = append(attrs, schema.Attribute{Name: a, Kind: attrKind(q, a)})
		if _, present := sp.ReadAttributes[a]; present && block.Schema.Contains(a) {
			exprs = append(exprs, expr.Attribute{Name: a, Kind: attrKind(q, a)})
		} else {
			exprs = append(exprs, expr.NullLiteral{Kind: attrKind(q, a)})
		}
	}
	outSchema, err := schema.New(attrs)
	if err != nil {
		return nil, err
	}
	return &ProjectOp{Nonterminal: Nonterminal{From: from}, Names: names, Exprs: exprs, OutSchema: outSchema}, nil
}

// postReadFilterExpr turns a ScanParameter's ComplexBoundary post-read
// filter into a boolean expression tree: a conjunction of
// `attr in [lo,hi] or attr in [lo2,hi2] or ...` per constrained attribute.
func postReadFilterExpr(sp scanparam.ScanParameter) expr.Expression {
	attrs := sortedStrings(intervalKeys(sp))
	var conjuncts []expr.Expression
	for _, a := range attrs {
		ivs := sp.PostReadFilter.Intervals[a]
		var disjuncts []expr.Expression
		for _, iv := range ivs {
			disjuncts = append(disjuncts, expr.FunctionExpression{
				Op:   "and",
				Kind: value.KindBool,
				Children: []expr.Expression{
					expr.FunctionExpression{Op: "ge", Kind: value.KindBool, Children: []expr.Expression{expr.Attribute{Name: a, Kind: iv.Low.Kind()}, expr.Literal{Val: iv.Low}}},
					expr.FunctionExpression{Op: "le", Kind: value.KindBool, Children: []expr.Expression{expr.Attribute{Name: a, Kind: iv.High.Kind()}, expr.Literal{Val: iv.High}}},
				},
			})
		}
		if len(disjuncts) > 0 {
			conjuncts = append(conjuncts, expr.ConnectExpression("", "or", disjuncts, false))
		}
	}
	if len(conjuncts) == 0 {
		return expr.Literal{Val: value.NewBool(true)}
	}
	return expr.ConnectExpression("", "and", conjuncts, false)
}

func intervalKeys(sp scanparam.ScanParameter) map[string]struct{} {
	out := map[string]struct{}{}
	for a := range sp.PostReadFilter.Intervals {
		out[a] = struct{}{}
	}
	return out
}

func unionAllOf(ops []Op) Op {
	if len(ops) == 1 {
		return ops[0]
	}
	return &UnionAllOp{MultiInput: MultiInput{From: ops}, OutSchema: ops[0].Schema()}
}

// aggregateByTupleID groups reconstruct rows by tuple_id, OR-ing the three
// bitmap columns and taking reconstruct() of every data column.
func aggregateByTupleID(q query.Query, from Op, union []string) Op {
	measures := []AggregateMeasure{
		{Name: colValidAttributes, Expr: bitmapOr(colValidAttributes, value.KindFixedBinary)},
		{Name: colPassedPreds, Expr: bitmapOr(colPassedPreds, value.KindFixedBinary)},
		{Name: colDirectMeasures, Expr: bitmapOr(colDirectMeasures, value.KindFixedBinary)},
	}
	attrs := []schema.Attribute{
		{Name: colTupleID, Kind: value.KindInt64},
		{Name: colValidAttributes, Kind: value.KindFixedBinary},
		{Name: colPassedPreds, Kind: value.KindFixedBinary},
		{Name: colDirectMeasures, Kind: value.KindFixedBinary},
	}
	for _, a := range union {
		measures = append(measures, AggregateMeasure{Name: a, Expr: reconstructExpr(a, attrKind(q, a))})
		attrs = append(attrs, schema.Attribute{Name: a, Kind: attrKind(q, a)})
	}
	outSchema, _ := schema.New(attrs)
	return &AggregateOp{Nonterminal: Nonterminal{From: from}, GroupKey: []string{colTupleID}, Measures: measures, OutSchema: outSchema}
}

func wrapExchangeUnion(from Op, scatterKeys []string) Op {
	ex := &ExchangeOp{Nonterminal: Nonterminal{From: from}, ScatterKeys: scatterKeys, OutSchema: from.Schema()}
	return &UnionAllOp{MultiInput: MultiInput{From: []Op{ex}}, OutSchema: from.Schema()}
}

// applyGuardedPredicateFilter wraps from in a filter re-checking every
// top-level conjunct attribute not already reflected in passed_preds, per
// spec.md §4.5: `if bitmap_get(passed_preds, i) then true else (if
// bitmap_get(valid_attributes, off(a)) then p else false)`.
func applyGuardedPredicateFilter(q query.Query, from Op) (Op, error) {
	conjunctAttrs := sortedStrings(boundaryAttrSet(q))
	if len(conjunctAttrs) == 0 {
		return from, nil
	}
	var guards []expr.Expression
	for i, a := range conjunctAttrs {
		off := validAttributeBit(q, a)
		predicate := attributeInBoundaryExpr(q, a)
		guarded := expr.IfFunctionExpression{
			If:   bitmapGet(colPassedPreds, i),
			Then: expr.Literal{Val: value.NewBool(true)},
			Else: expr.IfFunctionExpression{
				If:   bitmapGet(colValidAttributes, off),
				Then: predicate,
				Else: expr.Literal{Val: value.NewBool(false)},
			},
		}
		guards = append(guards, guarded)
	}
	filterExpr := expr.ConnectExpression("", "and", guards, false)
	return &FilterOp{Nonterminal: Nonterminal{From: from}, Expr: filterExpr, OutSchema: from.Schema()}, nil
}

func boundaryAttrSet(q query.Query) map[string]struct{} {
	out := map[string]struct{}{}
	for a := range q.FilterBoundary.Intervals {
		out[a] = struct{}{}
	}
	return out
}

// attributeInBoundaryExpr rebuilds a single comparison predicate for
// attribute a from q's filter boundary interval, used as the residual check
// a reconstructed tuple must still pass.
func attributeInBoundaryExpr(q query.Query, a string) expr.Expression {
	iv, ok := q.FilterBoundary.Intervals[a]
	if !ok {
		return expr.Literal{Val: value.NewBool(true)}
	}
	return expr.FunctionExpression{
		Op:   "and",
		Kind: value.KindBool,
		Children: []expr.Expression{
			expr.FunctionExpression{Op: "ge", Kind: value.KindBool, Children: []expr.Expression{expr.Attribute{Name: a, Kind: iv.Low.Kind()}, expr.Literal{Val: iv.Low}}},
			expr.FunctionExpression{Op: "le", Kind: value.KindBool, Children: []expr.Expression{expr.Attribute{Name: a, Kind: iv.High.Kind()}, expr.Literal{Val: iv.High}}},
		},
	}
}

// projectGuardedMeasures emits one column per query measure: for the
// reconstruct side, guarded by direct_measures=false and every referenced
// attribute's valid_attributes bit; for the direct side, guarded by
// direct_measures=true, per spec.md §4.5.
func projectGuardedMeasures(q query.Query, from Op, reconstructSide bool) Op {
	names := make([]string, 0, len(q.Measures))
	exprs := make([]expr.Expression, 0, len(q.Measures))
	attrs := make([]schema.Attribute, 0, len(q.Measures))
	for mi, m := range q.Measures {
		directBit := bitmapGet(colDirectMeasures, mi)
		scalar := m.ScalarExpr()
		var guard expr.Expression
		if reconstructSide {
			allValid := allAttributesValidExpr(q, scalar)
			notDirect := expr.FunctionExpression{Op: "not", Kind: value.KindBool, Children: []expr.Expression{directBit}}
			cond := expr.FunctionExpression{Op: "and", Kind: value.KindBool, Children: []expr.Expression{notDirect, allValid}}
			guard = expr.IfFunctionExpression{If: cond, Then: scalar, Else: expr.NullLiteral{Kind: scalar.Type()}}
		} else {
			guard = expr.IfFunctionExpression{If: directBit, Then: scalar, Else: expr.NullLiteral{Kind: scalar.Type()}}
		}
		names = append(names, m.Name)
		exprs = append(exprs, guard)
		attrs = append(attrs, schema.Attribute{Name: m.Name, Kind: scalar.Type()})
	}
	outSchema, _ := schema.New(attrs)
	return &ProjectOp{Nonterminal: Nonterminal{From: from}, Names: names, Exprs: exprs, OutSchema: outSchema}
}

func allAttributesValidExpr(q query.Query, scalar expr.Expression) expr.Expression {
	attrs := expr.SortedAttributes(scalar)
	if len(attrs) == 0 {
		return expr.Literal{Val: value.NewBool(true)}
	}
	var checks []expr.Expression
	for _, a := range attrs {
		off := validAttributeBit(q, a)
		if off < 0 {
			continue
		}
		checks = append(checks, bitmapGet(colValidAttributes, off))
	}
	if len(checks) == 0 {
		return expr.Literal{Val: value.NewBool(true)}
	}
	return expr.ConnectExpression("", "and", checks, false)
}

// buildDirectProject emits read -> project for one direct scan parameter: a
// direct_measures literal plus every read attribute.
func buildDirectProject(q query.Query, sp scanparam.ScanParameter) Op {
	block := sp.Blocks[0]
	read := &ReadOp{Path: sp.FilePath, BlockIDs: sp.BlockIDs, BaseSchema: block.Schema}

	names := []string{colDirectMeasures}
	exprs := []expr.Expression{bitmapLiteral(sp.DirectMeasures, len(q.Measures))}
	attrs := []schema.Attribute{{Name: colDirectMeasures, Kind: value.KindFixedBinary}}
	for _, a := range sortedStrings(sp.ReadAttributes) {
		names = append(names, a)
		exprs = append(exprs, expr.Attribute{Name: a, Kind: attrKind(q, a)})
		attrs = append(attrs, schema.Attribute{Name: a, Kind: attrKind(q, a)})
	}
	outSchema, _ := schema.New(attrs)
	return &ProjectOp{Nonterminal: Nonterminal{From: read}, Names: names, Exprs: exprs, OutSchema: outSchema}
}

// finalCombineAggregate applies the user-supplied aggregation function to
// each measure column over the combined reconstruct+direct output, with no
// group key (a single scalar row per measure), per spec.md §4.5's last
// step.
func finalCombineAggregate(q query.Query, from Op) Op {
	measures := make([]AggregateMeasure, 0, len(q.Measures))
	attrs := make([]schema.Attribute, 0, len(q.Measures))
	for _, m := range q.Measures {
		measures = append(measures, AggregateMeasure{
			Name: m.Name,
			Expr: expr.FunctionExpression{Op: m.AggregateOp(), Kind: m.Expr.Type(), Children: []expr.Expression{expr.Attribute{Name: m.Name, Kind: m.ScalarExpr().Type()}}},
		})
		attrs = append(attrs, schema.Attribute{Name: m.Name, Kind: m.Expr.Type()})
	}
	outSchema, _ := schema.New(attrs)
	return &AggregateOp{Nonterminal: Nonterminal{From: from}, GroupKey: nil, Measures: measures, OutSchema: outSchema}
}
