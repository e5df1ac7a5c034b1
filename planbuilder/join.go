package planbuilder

import (
	"fmt"
	"sort"

	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/expr"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/scanparam"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// joinParticipant is one scan parameter in the active set the greedy
// left-deep join builder consumes, annotated with the non-tuple_id
// attributes it carries and an estimated row count for the
// most-tuples-first ordering heuristic (spec.md §4.6 step 1).
type joinParticipant struct {
	sp       scanparam.ScanParameter
	attrs    map[string]struct{}
	rowCount int64
}

func newJoinParticipant(sp scanparam.ScanParameter) joinParticipant {
	attrs := map[string]struct{}{}
	for a := range sp.ReadAttributes {
		if a != colTupleID {
			attrs[a] = struct{}{}
		}
	}
	var rows int64
	if len(sp.Blocks) == 1 && sp.Blocks[0].RowCount != nil {
		rows = *sp.Blocks[0].RowCount
	}
	return joinParticipant{sp: sp, attrs: attrs, rowCount: rows}
}

// BuildJoinPlan implements spec.md §4.6: mini-tables of reads unioned by
// shared attribute, a greedy left-deep join sequence picking the
// largest-total-row-count attribute first, a merge projection between join
// levels, a filter-validation wrapper, and the final passed-preds-count
// filter plus measure projection.
func BuildJoinPlan(ctx *engine.Context, q query.Query, result scanparam.JoinResult) (Op, error) {
	union := joinUnionAttributes(result)

	var groupRoots []Op
	for gi, group := range result.ReconstructMeasures {
		participants := make([]joinParticipant, 0, len(group))
		for _, sp := range group {
			participants = append(participants, newJoinParticipant(sp))
		}
		if gi == 0 {
			for _, sp := range result.ReconstructFilter {
				participants = append(participants, newJoinParticipant(sp))
			}
		}
		root, err := buildGreedyJoinTree(q, participants, union, nil)
		if err != nil {
			return nil, fmt.Errorf("join group %d: %w", gi, err)
		}
		groupRoots = append(groupRoots, root)
	}
	if len(groupRoots) == 0 && len(result.ReconstructFilter) > 0 {
		participants := make([]joinParticipant, 0, len(result.ReconstructFilter))
		for _, sp := range result.ReconstructFilter {
			participants = append(participants, newJoinParticipant(sp))
		}
		root, err := buildGreedyJoinTree(q, participants, union, nil)
		if err != nil {
			return nil, err
		}
		groupRoots = append(groupRoots, root)
	}

	var reconstructOutput Op
	if len(groupRoots) > 0 {
		merged := unionAllOf(groupRoots)
		finalFiltered := applyFinalConjunctCountFilter(q, merged)
		reconstructOutput = projectGuardedMeasures(q, finalFiltered, true)
	}

	var directOutput Op
	if len(result.DirectParams) > 0 {
		var projects []Op
		for _, sp := range result.DirectParams {
			projects = append(projects, buildDirectProject(q, sp))
		}
		directOutput = projectGuardedMeasures(q, unionAllOf(projects), false)
	}

	switch {
	case reconstructOutput != nil && directOutput != nil:
		return finalCombineAggregate(q, unionAllOf([]Op{reconstructOutput, directOutput})), nil
	case reconstructOutput != nil:
		return finalCombineAggregate(q, reconstructOutput), nil
	case directOutput != nil:
		return finalCombineAggregate(q, directOutput), nil
	default:
		return nil, fmt.Errorf("join plan has no scan parameters to build from")
	}
}

func joinUnionAttributes(result scanparam.JoinResult) []string {
	set := map[string]struct{}{}
	for _, group := range result.ReconstructMeasures {
		for _, sp := range group {
			for a := range sp.ReadAttributes {
				if a != colTupleID {
					set[a] = struct{}{}
				}
			}
		}
	}
	for _, sp := range result.ReconstructFilter {
		for a := range sp.ReadAttributes {
			if a != colTupleID {
				set[a] = struct{}{}
			}
		}
	}
	return sortedStrings(set)
}

// buildGreedyJoinTree implements the recursive construction of spec.md
// §4.6's "Join sequence": it repeatedly peels off the participants carrying
// the attribute with the largest aggregate row count into a flat left
// mini-table and recurses on the rest for the right side, terminating in a
// single mini-table once no attribute would split the active set further.
func buildGreedyJoinTree(q query.Query, participants []joinParticipant, union []string, finished []string) (Op, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("empty join participant set")
	}
	if len(participants) == 1 {
		return buildMiniTable(q, participants, union)
	}

	attrTotals := map[string]int64{}
	for _, p := range participants {
		for a := range p.attrs {
			attrTotals[a] += p.rowCount
		}
	}
	pick, ok := pickLargestAttribute(attrTotals)
	if !ok {
		return buildMiniTable(q, participants, union)
	}

	var left, right []joinParticipant
	for _, p := range participants {
		if _, ok := p.attrs[pick]; ok {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	if len(right) == 0 {
		return buildMiniTable(q, participants, union)
	}

	leftOp, err := buildMiniTable(q, left, union)
	if err != nil {
		return nil, err
	}
	rightOp, err := buildGreedyJoinTree(q, right, union, append(finished, pick))
	if err != nil {
		return nil, err
	}

	join, err := buildEqualJoin(leftOp, rightOp)
	if err != nil {
		return nil, err
	}
	merged := mergeJoinOutputs(q, join, union)
	return applyFilterValidationWrapper(q, merged, finished), nil
}

// pickLargestAttribute returns the attribute with the largest total row
// count, breaking ties lexicographically for determinism.
func pickLargestAttribute(totals map[string]int64) (string, bool) {
	if len(totals) == 0 {
		return "", false
	}
	names := make([]string, 0, len(totals))
	for a := range totals {
		names = append(names, a)
	}
	sort.Strings(names)
	best := names[0]
	for _, a := range names[1:] {
		if totals[a] > totals[best] {
			best = a
		}
	}
	return best, true
}

func buildMiniTable(q query.Query, participants []joinParticipant, union []string) (Op, error) {
	var projects []Op
	for _, p := range participants {
		proj, err := buildReconstructProject(q, p.sp, union)
		if err != nil {
			return nil, err
		}
		projects = append(projects, proj)
	}
	return unionAllOf(projects), nil
}

// buildEqualJoin builds the full-outer equalJoin(tuple_id) primitive of
// spec.md §4.4, prefixing every left/right column per the convention the
// merge projection relies on.
func buildEqualJoin(left, right Op) (*EqualJoinOp, error) {
	var attrs []schema.Attribute
	leftPos := map[string]int{}
	rightPos := map[string]int{}
	for _, a := range left.Schema().Names() {
		la, _, _ := left.Schema().ByName(a)
		attrs = append(attrs, schema.Attribute{Name: "left_" + a, Kind: la.Kind})
		leftPos[a] = len(attrs) - 1
	}
	for _, a := range right.Schema().Names() {
		ra, _, _ := right.Schema().ByName(a)
		attrs = append(attrs, schema.Attribute{Name: "right_" + a, Kind: ra.Kind})
		rightPos[a] = len(attrs) - 1
	}
	outSchema, err := schema.New(attrs)
	if err != nil {
		return nil, err
	}
	return &EqualJoinOp{
		MultiInput:     MultiInput{From: []Op{left, right}},
		LeftKey:        colTupleID,
		RightKey:       colTupleID,
		Type:           JoinFullOuter,
		OutSchema:      outSchema,
		LeftPositions:  leftPos,
		RightPositions: rightPos,
	}, nil
}

// mergeJoinOutputs implements spec.md §4.6's "Merging join outputs": the
// three bitmap columns merge via bitmap_or_scalar; tuple_id coalesces
// left-then-right (a full outer join may null either side); every data
// attribute prefers the left value when its valid_attributes bit is set,
// else the right value — since every mini-table this builder constructs
// carries the full attribute union (nulled where absent), this one rule
// covers both the "on both sides" and "on only one side" cases from the
// spec prose.
func mergeJoinOutputs(q query.Query, join *EqualJoinOp, union []string) Op {
	names := []string{colTupleID, colValidAttributes, colPassedPreds, colDirectMeasures}
	exprs := []expr.Expression{
		expr.FunctionExpression{Op: "coalesce", Kind: value.KindInt64, Children: []expr.Expression{
			expr.Attribute{Name: "left_" + colTupleID, Kind: value.KindInt64},
			expr.Attribute{Name: "right_" + colTupleID, Kind: value.KindInt64},
		}},
		bitmapOrScalar(expr.Attribute{Name: "left_" + colValidAttributes, Kind: value.KindFixedBinary}, expr.Attribute{Name: "right_" + colValidAttributes, Kind: value.KindFixedBinary}),
		bitmapOrScalar(expr.Attribute{Name: "left_" + colPassedPreds, Kind: value.KindFixedBinary}, expr.Attribute{Name: "right_" + colPassedPreds, Kind: value.KindFixedBinary}),
		bitmapOrScalar(expr.Attribute{Name: "left_" + colDirectMeasures, Kind: value.KindFixedBinary}, expr.Attribute{Name: "right_" + colDirectMeasures, Kind: value.KindFixedBinary}),
	}
	attrs := []schema.Attribute{
		{Name: colTupleID, Kind: value.KindInt64},
		{Name: colValidAttributes, Kind: value.KindFixedBinary},
		{Name: colPassedPreds, Kind: value.KindFixedBinary},
		{Name: colDirectMeasures, Kind: value.KindFixedBinary},
	}
	for _, a := range union {
		kind := attrKind(q, a)
		off := validAttributeBit(q, a)
		names = append(names, a)
		exprs = append(exprs, expr.IfFunctionExpression{
			If:   bitmapGet("left_"+colValidAttributes, off),
			Then: expr.Attribute{Name: "left_" + a, Kind: kind},
			Else: expr.Attribute{Name: "right_" + a, Kind: kind},
		})
		attrs = append(attrs, schema.Attribute{Name: a, Kind: kind})
	}
	outSchema, _ := schema.New(attrs)
	return &ProjectOp{Nonterminal: Nonterminal{From: join}, Names: names, Exprs: exprs, OutSchema: outSchema}
}

// applyFilterValidationWrapper implements the (a) half of spec.md §4.6's
// filter-validation wrapper: attributes that must be valid because an
// already-finished ancestor block carries them are required valid via
// bitmap_get(valid_attributes, i). The (b) "expect_same" all-or-nothing
// check needs a reference-set annotation component G does not currently
// track on ScanParameter (see DESIGN.md); only (a) is implemented.
func applyFilterValidationWrapper(q query.Query, merged Op, finished []string) Op {
	if len(finished) == 0 {
		return merged
	}
	var checks []expr.Expression
	for _, a := range finished {
		off := validAttributeBit(q, a)
		if off < 0 {
			continue
		}
		checks = append(checks, bitmapGet(colValidAttributes, off))
	}
	if len(checks) == 0 {
		return merged
	}
	filterExpr := expr.ConnectExpression("", "and", checks, false)
	return &FilterOp{Nonterminal: Nonterminal{From: merged}, Expr: filterExpr, OutSchema: merged.Schema()}
}

// applyFinalConjunctCountFilter implements spec.md §4.6's final filter: rows
// whose bitmap_count(passed_preds) is less than the query's top-level
// conjunct count are dropped.
func applyFinalConjunctCountFilter(q query.Query, from Op) Op {
	condition := expr.FunctionExpression{
		Op:   "ge",
		Kind: value.KindBool,
		Children: []expr.Expression{
			expr.FunctionExpression{Op: "bitmap_count", Kind: value.KindInt64, Children: []expr.Expression{
				expr.Attribute{Name: colPassedPreds, Kind: value.KindFixedBinary},
			}},
			expr.Literal{Val: value.NewInt(64, int64(scanparam.CountConjuncts(q)))},
		},
	}
	return &FilterOp{Nonterminal: Nonterminal{From: from}, Expr: condition, OutSchema: from.Schema()}
}
