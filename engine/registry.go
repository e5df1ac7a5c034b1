// Package engine holds the process-wide, read-mostly state that the plan
// builder and boundary algebra need but that must never become a package
// level global: the per-attribute domain (min/max) registry, the scalar
// function-name registry, and the target-engine selector (arrow/velox).
//
// Grounded on the teacher's pattern of threading a Statistics/PlannerOptions
// value through the planner explicitly (datalog/planner/planner.go's
// NewPlanner(stats, options)) rather than reaching for package-level
// mutable state, and on query.FunctionRegistry (datalog/query/function_registry.go)
// for the name -> descriptor anchor idea. Per spec.md §5 and §9, callers must
// build and populate a Context once from parsed inputs and then only read it.
package engine

import (
	"fmt"
	"sync"

	"github.com/hierplan/hierplan/hierr"
	"github.com/hierplan/hierplan/value"
)

// DomainRange is the table-wide min/max bound for one attribute, used to
// fill in missing attributes when two boundaries are compared (spec.md
// §4.1, Boundary.relationship).
type DomainRange struct {
	Min value.Value
	Max value.Value
}

// Registry is the min/max domain registry, initialised once from the table
// range file and read by every boundary comparison thereafter.
type Registry struct {
	mu     sync.RWMutex
	ranges map[string]DomainRange
}

func NewRegistry() *Registry {
	return &Registry{ranges: make(map[string]DomainRange)}
}

// Set installs the full-domain range for attribute name. Called only during
// loading, before any concurrent reads begin.
func (r *Registry) Set(name string, rng DomainRange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges[name] = rng
}

// FullDomain returns the implicit full-domain range for a missing attribute.
func (r *Registry) FullDomain(name string) (DomainRange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rng, ok := r.ranges[name]
	if !ok {
		return DomainRange{}, hierr.Wrap(hierr.ErrNotFound, fmt.Sprintf("no domain range registered for attribute %q", name))
	}
	return rng, nil
}

// Attributes returns every attribute with a registered range, used by the
// horizontal splitter's last-resort resize fallback (spec.md §4.7) which
// iterates "all min/max-registered attributes".
func (r *Registry) Attributes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ranges))
	for k := range r.ranges {
		out = append(out, k)
	}
	return out
}

// FunctionAnchor is the numeric id a scalar/aggregate function name resolves
// to. The bit-exact URIs that back these anchors in the real wire format are
// explicitly out of scope (spec.md §1); hierplan only needs a stable,
// process-wide mapping so two expressions referencing "the same function"
// compare equal.
type FunctionAnchor int

// FunctionRegistry resolves function names to anchors, lazily assigning a
// fresh anchor to a name the first time it is seen — mirroring
// query.FunctionRegistry's name -> descriptor resolution in the teacher,
// simplified because hierplan does not need argument-arity overload
// resolution, only identity.
type FunctionRegistry struct {
	mu      sync.Mutex
	anchors map[string]FunctionAnchor
	next    FunctionAnchor
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{anchors: make(map[string]FunctionAnchor)}
}

func (f *FunctionRegistry) Resolve(name string) FunctionAnchor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.anchors[name]; ok {
		return a
	}
	a := f.next
	f.next++
	f.anchors[name] = a
	return a
}

// EngineVariant selects which physical primitive lowering the plan builder
// targets (spec.md §4.4/§6).
type EngineVariant int

const (
	EngineArrow EngineVariant = iota
	EngineVelox
)

func ParseEngineVariant(s string) (EngineVariant, error) {
	switch s {
	case "arrow":
		return EngineArrow, nil
	case "velox":
		return EngineVelox, nil
	default:
		return 0, hierr.Wrap(hierr.ErrInputMalformed, fmt.Sprintf("unknown engine variant %q", s))
	}
}

func (e EngineVariant) String() string {
	if e == EngineVelox {
		return "velox"
	}
	return "arrow"
}

// Context bundles the three pieces of process-wide state. It is built once
// at startup (CLI main) and passed explicitly to every component that needs
// it; nothing in hierplan reads package-level mutable globals.
type Context struct {
	Domains   *Registry
	Functions *FunctionRegistry
	Engine    EngineVariant
	Vocab     *value.Vocabulary
}

func NewContext(engineVariant EngineVariant) *Context {
	return &Context{
		Domains:   NewRegistry(),
		Functions: NewFunctionRegistry(),
		Engine:    engineVariant,
		Vocab:     value.NewVocabulary(),
	}
}
