package value

import "sync"

// Vocabulary is the shared, insertion-ordered string table that backs
// KindEnumString values: each distinct string is assigned the next integer
// index the first time it is seen, and that index is what gets compared and
// stored from then on.
//
// Grounded directly on the teacher's datalog.KeywordIntern
// (datalog/intern.go): a sync.Map fast path for concurrent lookups, with the
// slow path taking a short critical section to assign a fresh index. The
// teacher interns to avoid repeated allocation of identical Keyword structs;
// hierplan interns for the same reason the columnar store does — so that an
// enum-string column's values can be compared and hashed as plain integers.
type Vocabulary struct {
	mu     sync.Mutex
	lookup sync.Map // map[string]int
	order  []string
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{}
}

// Intern returns the stable index for s, assigning one if s has not been
// seen before.
func (v *Vocabulary) Intern(s string) int {
	if idx, ok := v.lookup.Load(s); ok {
		return idx.(int)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx, ok := v.lookup.Load(s); ok {
		return idx.(int)
	}
	idx := len(v.order)
	v.order = append(v.order, s)
	v.lookup.Store(s, idx)
	return idx
}

// Lookup returns the string for an index without creating a new entry.
func (v *Vocabulary) Lookup(idx int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx < 0 || idx >= len(v.order) {
		return "", false
	}
	return v.order[idx], true
}

// Len reports the number of distinct strings interned so far.
func (v *Vocabulary) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.order)
}
