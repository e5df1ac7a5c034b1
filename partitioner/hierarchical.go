// hierarchical.go implements spec.md §4.8: unit column groups, per-group
// horizontal partitioning, candidate-merge search scored against a
// validation query set, and a greedy accept-best-merge loop, grounded on
// substrait_producer/partitioner/hierarchical_partitioner.cpp.
//
// The original threads a ParameterFunction/aggModel pair of C function
// pointers through every call so the same partitioner binary could be
// relinked against different scan-parameter/cost-model implementations.
// hierplan has exactly one production pipeline (component G's
// aggregation-reconstruction lowering feeding component I's cost
// estimator — the original's own comment on partitionColumnGroups says
// "assume using agg reconstruction"), so evaluateCost below calls those
// packages directly instead of carrying the indirection forward.
package partitioner

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hierplan/hierplan/boundary"
	"github.com/hierplan/hierplan/cost"
	"github.com/hierplan/hierplan/engine"
	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/scanparam"
	"github.com/hierplan/hierplan/schema"
	"github.com/hierplan/hierplan/value"
)

// columnGroup is a candidate column group: a synthetic block spanning the
// table's full boundary and row count but only a subset of its schema, plus
// the bitmap of which training queries access it. Grouping and merging
// operate on *columnGroup so the per-group partition cache can key on
// pointer identity, matching the original's shared_ptr<BlockMeta> map key.
type columnGroup struct {
	Block   schema.BlockMeta
	Pattern value.Bitmap
}

// columnBlocks splits table into unit column groups: columns accessed by
// the same set of queries, in the same role (filter vs. project), become
// one group (spec.md §4.8).
func columnBlocks(table schema.BlockMeta, queries []query.Query) ([]*columnGroup, error) {
	if _, _, ok := table.Schema.ByName(tupleIDAttr); !ok {
		return nil, fmt.Errorf("columnBlocks: table schema is missing %q", tupleIDAttr)
	}

	filterAttrsPerQuery := make([]map[string]struct{}, len(queries))
	projectAttrsPerQuery := make([]map[string]struct{}, len(queries))
	filterUnion := map[string]struct{}{}
	for i, q := range queries {
		filterAttrsPerQuery[i] = filterAttributeNames(q)
		projectAttrsPerQuery[i] = projectOnlyAttributeNames(q)
		for a := range filterAttrsPerQuery[i] {
			filterUnion[a] = struct{}{}
		}
	}

	type pattern struct {
		attrs   []string
		bitmap  value.Bitmap
	}
	var roleGroups [2][]pattern // 0 = filter role, 1 = project role

	for _, name := range table.Schema.Names() {
		if name == tupleIDAttr {
			continue
		}
		role := 1
		if _, isFilterAttr := filterUnion[name]; isFilterAttr {
			role = 0
		}
		bm := value.NewBitmap(uint(len(queries)))
		for i := range queries {
			attrs := projectAttrsPerQuery[i]
			if role == 0 {
				attrs = filterAttrsPerQuery[i]
			}
			if _, ok := attrs[name]; ok {
				bm = bm.Set(uint(i))
			}
		}
		placed := false
		for gi := range roleGroups[role] {
			if roleGroups[role][gi].bitmap.Equal(bm) {
				roleGroups[role][gi].attrs = append(roleGroups[role][gi].attrs, name)
				placed = true
				break
			}
		}
		if !placed {
			roleGroups[role] = append(roleGroups[role], pattern{attrs: []string{name}, bitmap: bm})
		}
	}

	var out []*columnGroup
	for role := 0; role < 2; role++ {
		for _, p := range roleGroups[role] {
			names := map[string]struct{}{tupleIDAttr: {}}
			for _, a := range p.attrs {
				names[a] = struct{}{}
			}
			groupSchema := table.Schema.Project(names)
			out = append(out, &columnGroup{
				Block: schema.BlockMeta{
					Schema:      groupSchema,
					Boundary:    table.Boundary,
					PartitionID: table.PartitionID,
					RowCount:    table.RowCount,
				},
				Pattern: p.bitmap,
			})
		}
	}
	return out, nil
}

// groupCache memoizes horizontal-partition results per column group, keyed
// by pointer identity (a merged group is a fresh pointer, so it never
// collides with a pre-merge entry) and guarded by a mutex since multiple
// goroutines evaluate distinct groups concurrently.
type groupCache struct {
	mu    sync.Mutex
	byPtr map[*columnGroup][]schema.BlockMeta
}

func newGroupCache() *groupCache {
	return &groupCache{byPtr: map[*columnGroup][]schema.BlockMeta{}}
}

func (c *groupCache) get(g *columnGroup) ([]schema.BlockMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byPtr[g]
	return v, ok
}

func (c *groupCache) put(g *columnGroup, blocks []schema.BlockMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPtr[g] = blocks
}

// HierarchicalPartitioner drives the unit-column-group merge search.
type HierarchicalPartitioner struct {
	ctx      *engine.Context
	splitter *Splitter
	timing   cost.ReconstructionTiming
	workers  int
}

func NewHierarchicalPartitioner(ctx *engine.Context, splitter *Splitter, timing cost.ReconstructionTiming) *HierarchicalPartitioner {
	return &HierarchicalPartitioner{ctx: ctx, splitter: splitter, timing: timing, workers: WorkerCount()}
}

// Partition runs the full hierarchical search starting from table's unit
// column groups, returning the final block layout and its estimated total
// validation cost.
func (h *HierarchicalPartitioner) Partition(table schema.BlockMeta, trainQueries, validateQueries []query.Query) ([]schema.BlockMeta, float64, error) {
	groups, err := columnBlocks(table, trainQueries)
	if err != nil {
		return nil, 0, err
	}
	return h.partitionGroups(groups, trainQueries, validateQueries)
}

func (h *HierarchicalPartitioner) partitionGroups(groups []*columnGroup, trainQueries, validateQueries []query.Query) ([]schema.BlockMeta, float64, error) {
	cache := newGroupCache()
	blocks, totalCost, err := h.partitionColumnGroups(groups, trainQueries, validateQueries, cache, h.workers)
	if err != nil {
		return nil, 0, err
	}

	pairs := candidatePairs(groups, trainQueries)
	if len(pairs) == 0 {
		pruned, err := pruneUnreachable(h.ctx, blocks, validateQueries)
		return pruned, totalCost, err
	}

	type trial struct {
		groups []*columnGroup
		cost   float64
	}
	trials, err := ParallelMap(h.workers, pairs, func(p [2]int) (trial, error) {
		_, merged, err := mergeGroups(groups, p[0], p[1])
		if err != nil {
			return trial{}, err
		}
		// one worker per trial: the outer ParallelMap over pairs already
		// saturates the pool, and the cache already holds every unmerged
		// group's result.
		_, c, err := h.partitionColumnGroups(merged, trainQueries, validateQueries, cache, 1)
		if err != nil {
			return trial{}, err
		}
		return trial{groups: merged, cost: c}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	bestCost := math.Inf(1)
	var bestGroups []*columnGroup
	for _, t := range trials {
		if t.cost < bestCost {
			bestCost = t.cost
			bestGroups = t.groups
		}
	}
	if bestGroups == nil {
		pruned, err := pruneUnreachable(h.ctx, blocks, validateQueries)
		return pruned, totalCost, err
	}

	mergedBlocks, mergedCost, err := h.partitionGroups(bestGroups, trainQueries, validateQueries)
	if err != nil {
		return nil, 0, err
	}
	if mergedCost < totalCost {
		return mergedBlocks, mergedCost, nil
	}
	pruned, err := pruneUnreachable(h.ctx, blocks, validateQueries)
	return pruned, totalCost, err
}

// partitionColumnGroups horizontally partitions every group (consulting and
// populating cache) and estimates the summed validation cost of the
// resulting layout.
func (h *HierarchicalPartitioner) partitionColumnGroups(groups []*columnGroup, trainQueries, validateQueries []query.Query, cache *groupCache, workers int) ([]schema.BlockMeta, float64, error) {
	partitioned, err := ParallelMap(workers, groups, func(g *columnGroup) ([]schema.BlockMeta, error) {
		if cached, ok := cache.get(g); ok {
			return cached, nil
		}
		subset := queriesForPattern(trainQueries, g.Pattern)
		blocks, err := h.splitter.HorizontalPartition(g.Block, subset)
		if err != nil {
			return nil, err
		}
		cache.put(g, blocks)
		return blocks, nil
	})
	if err != nil {
		return nil, 0, err
	}

	var allBlocks []schema.BlockMeta
	for _, bs := range partitioned {
		allBlocks = append(allBlocks, bs...)
	}
	allBlocks = assignPartitionIDs(allBlocks)

	costs, err := ParallelMap(workers, validateQueries, func(q query.Query) (float64, error) {
		return evaluateCost(h.ctx, q, allBlocks, h.timing)
	})
	if err != nil {
		return nil, 0, err
	}
	var total float64
	for _, c := range costs {
		total += c
	}
	return allBlocks, total, nil
}

func queriesForPattern(queries []query.Query, pattern value.Bitmap) []query.Query {
	var out []query.Query
	pattern.EachSet(func(pos uint) {
		if int(pos) < len(queries) {
			out = append(out, queries[int(pos)])
		}
	})
	return out
}

// assignPartitionIDs gives every leaf block its own partition file, one
// block per partition, matching the original's "pid++) + \".parquet\"".
func assignPartitionIDs(blocks []schema.BlockMeta) []schema.BlockMeta {
	out := make([]schema.BlockMeta, len(blocks))
	for i, b := range blocks {
		b.PartitionID = fmt.Sprintf("%d.parquet", i)
		b.BlockID = 0
		out[i] = b
	}
	return out
}

// evaluateCost runs the aggregation-reconstruction lowering (components G
// and I) for q against blocks and returns its estimated total time.
func evaluateCost(ctx *engine.Context, q query.Query, blocks []schema.BlockMeta, timing cost.ReconstructionTiming) (float64, error) {
	measureBlocks, filterBlocks, err := scanparam.ClassifyRoles(ctx, q, blocks)
	if err != nil {
		return 0, err
	}
	requests, err := scanparam.PostRequests(ctx, q, measureBlocks, filterBlocks)
	if err != nil {
		return 0, err
	}
	result, err := scanparam.LowerAggregation(ctx, q, requests)
	if err != nil {
		return 0, err
	}
	est, err := cost.EstimateAggregationPlan(ctx, q, result, timing)
	if err != nil {
		return 0, err
	}
	return est.TotalTimeSeconds, nil
}

// candidatePairs returns the column-group index pairs worth trying to
// merge: every pair jointly used by some query's filter-and-project
// attributes (or, failing that, every pair with overlapping access
// patterns at all), Jaccard-sampled down to 1000 when there are more
// pairs than that.
func candidatePairs(groups []*columnGroup, trainQueries []query.Query) [][2]int {
	pairs := pairColumnGroupsWithoutUniqueAccess(groups, trainQueries)
	if len(pairs) > 1000 {
		pairs = pairColumnGroupsSample(groups, 1000, trainQueries)
	}
	return pairs
}

func pairColumnGroupsWithoutUniqueAccess(groups []*columnGroup, trainQueries []query.Query) [][2]int {
	filterUnion := map[string]struct{}{}
	var distinctAttrSets []map[string]struct{}
	for _, q := range trainQueries {
		for a := range filterAttributeNames(q) {
			filterUnion[a] = struct{}{}
		}
		all := allReferencedAttributeNames(q)
		if !containsSet(distinctAttrSets, all) {
			distinctAttrSets = append(distinctAttrSets, all)
		}
	}

	var kept []int
	for i, g := range groups {
		attrs := schemaAttrNamesExceptTupleID(g.Block.Schema)
		count := 0
		for _, qa := range distinctAttrSets {
			if intersects(attrs, qa) {
				count++
			}
		}
		if count > 1 || intersects(attrs, filterUnion) {
			kept = append(kept, i)
		}
	}

	pairs := pairsAmongOverlapping(groups, kept)
	if len(pairs) == 0 {
		all := make([]int, len(groups))
		for i := range groups {
			all[i] = i
		}
		pairs = pairsAmongOverlapping(groups, all)
	}
	return pairs
}

func pairsAmongOverlapping(groups []*columnGroup, idxs []int) [][2]int {
	var out [][2]int
	for a := 0; a < len(idxs); a++ {
		for b := a + 1; b < len(idxs); b++ {
			i, j := idxs[a], idxs[b]
			if value.And(groups[i].Pattern, groups[j].Pattern).Count() == 0 {
				continue
			}
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

type groupPairKey struct{ i, j int }

// pairColumnGroupsSample scores every not-already-co-accessed pair by the
// Jaccard similarity of its two access-pattern bitmaps and keeps the top
// num, plus every pair directly co-accessed by some query's filter and
// project attributes (which always survive, regardless of num).
func pairColumnGroupsSample(groups []*columnGroup, num int, trainQueries []query.Query) [][2]int {
	groupOf := map[string]int{}
	for i, g := range groups {
		for _, name := range g.Block.Schema.Names() {
			if name == tupleIDAttr {
				continue
			}
			groupOf[name] = i
		}
	}

	preseeded := map[groupPairKey]struct{}{}
	for _, q := range trainQueries {
		filterAttrs := filterAttributeNames(q)
		allAttrs := allReferencedAttributeNames(q)
		for fa := range filterAttrs {
			i, okI := groupOf[fa]
			if !okI {
				continue
			}
			for pa := range allAttrs {
				j, okJ := groupOf[pa]
				if !okJ || i == j {
					continue
				}
				preseeded[orderedGroupPair(i, j)] = struct{}{}
			}
		}
	}

	type scored struct {
		pair  groupPairKey
		score float64
	}
	var candidates []scored
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			key := groupPairKey{i, j}
			if _, skip := preseeded[key]; skip {
				continue
			}
			and := value.And(groups[i].Pattern, groups[j].Pattern).Count()
			or := value.Or(groups[i].Pattern, groups[j].Pattern).Count()
			if or == 0 {
				continue
			}
			candidates = append(candidates, scored{pair: key, score: float64(and) / float64(or)})
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].pair.i != candidates[b].pair.i {
			return candidates[a].pair.i < candidates[b].pair.i
		}
		return candidates[a].pair.j < candidates[b].pair.j
	})
	if len(candidates) > num {
		candidates = candidates[:num]
	}

	out := make([][2]int, 0, len(preseeded)+len(candidates))
	for p := range preseeded {
		out = append(out, [2]int{p.i, p.j})
	}
	for _, c := range candidates {
		out = append(out, [2]int{c.pair.i, c.pair.j})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a][0] != out[b][0] {
			return out[a][0] < out[b][0]
		}
		return out[a][1] < out[b][1]
	})
	return out
}

func orderedGroupPair(i, j int) groupPairKey {
	if i > j {
		i, j = j, i
	}
	return groupPairKey{i, j}
}

// mergeGroups combines groups[i] and groups[j] into one new group (schema
// union, pattern bitmap OR'd) and returns the resulting group list — every
// other group unchanged, plus the merged one appended.
func mergeGroups(groups []*columnGroup, i, j int) (*columnGroup, []*columnGroup, error) {
	mergedSchema, err := mergeSchemas(groups[i].Block.Schema, groups[j].Block.Schema)
	if err != nil {
		return nil, nil, err
	}
	merged := &columnGroup{
		Block: schema.BlockMeta{
			Schema:      mergedSchema,
			Boundary:    groups[i].Block.Boundary,
			PartitionID: groups[i].Block.PartitionID,
			RowCount:    groups[i].Block.RowCount,
		},
		Pattern: value.Or(groups[i].Pattern, groups[j].Pattern),
	}

	rest := make([]*columnGroup, 0, len(groups)-1)
	for k, g := range groups {
		if k == i || k == j {
			continue
		}
		rest = append(rest, g)
	}
	rest = append(rest, merged)
	return merged, rest, nil
}

func mergeSchemas(a, b schema.Schema) (schema.Schema, error) {
	attrs := make([]schema.Attribute, 0, a.Len()+b.Len())
	seen := map[string]struct{}{}
	for _, name := range a.Names() {
		attr, _, _ := a.ByName(name)
		attrs = append(attrs, attr)
		seen[name] = struct{}{}
	}
	for _, name := range b.Names() {
		if _, dup := seen[name]; dup {
			continue
		}
		attr, _, _ := b.ByName(name)
		attrs = append(attrs, attr)
	}
	return schema.New(attrs)
}

// pruneUnreachable drops every block that no validation query's filter
// boundary can ever intersect (spec.md §4.8's final pruning pass).
func pruneUnreachable(ctx *engine.Context, blocks []schema.BlockMeta, queries []query.Query) ([]schema.BlockMeta, error) {
	var out []schema.BlockMeta
	for _, b := range blocks {
		reachable := false
		for _, q := range queries {
			rel, err := b.Boundary.Relationship(ctx, q.FilterBoundary)
			if err != nil {
				return nil, err
			}
			if rel != boundary.RelDisjoint {
				reachable = true
				break
			}
		}
		if reachable {
			out = append(out, b)
		}
	}
	return out, nil
}
