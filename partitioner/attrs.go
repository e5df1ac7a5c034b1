package partitioner

import (
	"sort"

	"github.com/hierplan/hierplan/query"
	"github.com/hierplan/hierplan/schema"
)

const tupleIDAttr = "tuple_id"

// defaultAttrByteSize mirrors cost.defaultByteSize: used for any attribute
// whose schema entry carries no byte-size hint.
const defaultAttrByteSize = 8

// filterAttributeNames returns the attributes q's filter boundary
// constrains.
func filterAttributeNames(q query.Query) map[string]struct{} {
	out := make(map[string]struct{}, len(q.FilterBoundary.Intervals))
	for a := range q.FilterBoundary.Intervals {
		out[a] = struct{}{}
	}
	return out
}

// allReferencedAttributeNames is the union of q's filter attributes and
// every measure's referenced attributes — the original's
// getAllReferredAttributes().
func allReferencedAttributeNames(q query.Query) map[string]struct{} {
	out := filterAttributeNames(q)
	for _, m := range q.Measures {
		for a := range m.ReferencedAttributes() {
			out[a] = struct{}{}
		}
	}
	return out
}

// projectOnlyAttributeNames is allReferencedAttributeNames minus the filter
// attributes, matching columnBlocks's project_attr role (spec.md §4.8).
func projectOnlyAttributeNames(q query.Query) map[string]struct{} {
	all := allReferencedAttributeNames(q)
	filt := filterAttributeNames(q)
	out := make(map[string]struct{}, len(all))
	for a := range all {
		if _, isFilter := filt[a]; !isFilter {
			out[a] = struct{}{}
		}
	}
	return out
}

func schemaAttrNamesExceptTupleID(s schema.Schema) map[string]struct{} {
	out := make(map[string]struct{}, s.Len())
	for _, name := range s.Names() {
		if name == tupleIDAttr {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func intersects(a, b map[string]struct{}) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func containsSet(sets []map[string]struct{}, s map[string]struct{}) bool {
	for _, existing := range sets {
		if setEqual(existing, s) {
			return true
		}
	}
	return false
}

func attrSetBytes(s schema.Schema, attrs map[string]struct{}) int64 {
	var total int64
	for a := range attrs {
		if attr, _, ok := s.ByName(a); ok && attr.ByteSize > 0 {
			total += int64(attr.ByteSize)
		} else {
			total += defaultAttrByteSize
		}
	}
	return total
}

func sortedStringKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
