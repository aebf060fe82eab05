// Package registry is the catalog of macro definitions, keyed by macro kind
// and name.
package registry

import (
	"go/token"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Kind identifies the syntactic shape that triggers a macro
type Kind int

const (
	// KindExpression macros replace a call expression
	KindExpression Kind = iota
	// KindAttribute macros rewrite a declaration carrying a //sugar: directive
	KindAttribute
	// KindTaggedTemplate macros replace a call taking one raw string template
	KindTaggedTemplate
	// KindDerive macros add declarations derived from a type's structure
	KindDerive
	// KindLabeledBlock macros replace a labeled statement
	KindLabeledBlock
	// KindType macros replace a generic-looking type expression
	KindType
)

// Kinds lists every kind in declaration order
var Kinds = []Kind{KindExpression, KindAttribute, KindTaggedTemplate, KindDerive, KindLabeledBlock, KindType}

func (k Kind) String() string {
	switch k {
	case KindExpression:
		return "expression"
	case KindAttribute:
		return "attribute"
	case KindTaggedTemplate:
		return "taggedTemplate"
	case KindDerive:
		return "derive"
	case KindLabeledBlock:
		return "labeledBlock"
	case KindType:
		return "type"
	}
	return "unknown"
}

// Registry maps (kind, name) to a definition. Re-registering a name replaces
// the previous definition, which is how tests and plugins override built-ins.
type Registry struct {
	mu   sync.RWMutex
	defs map[Kind]map[string]*Definition
}

// New creates an empty registry
func New() *Registry {
	r := &Registry{}
	r.Clear()
	return r
}

// Register adds def, returning the definition it replaced, if any
func (r *Registry) Register(def *Definition) (*Definition, error) {
	if def == nil {
		return nil, errors.New("cannot register a nil macro definition")
	}
	if def.Name == "" {
		return nil, errors.Newf("%s macro has no name", def.Kind)
	}
	if def.Expand == nil {
		return nil, errors.Newf("%s macro %q has no expand function", def.Kind, def.Name)
	}
	if def.Kind != KindAttribute && !token.IsIdentifier(def.Name) {
		return nil, errors.Newf("%s macro name %q is not a Go identifier", def.Kind, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.defs[def.Kind]
	if !ok {
		return nil, errors.Newf("unknown macro kind %d", int(def.Kind))
	}
	previous := byName[def.Name]
	byName[def.Name] = def
	return previous, nil
}

// MustRegister is Register for package initialisation, panicking on error
func (r *Registry) MustRegister(defs ...*Definition) {
	for _, def := range defs {
		if _, err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition registered for kind and name
func (r *Registry) Get(kind Kind, name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[kind][name]
	return def, ok
}

// Has reports whether name is registered under any of the given kinds
func (r *Registry) Has(name string, kinds ...Kind) bool {
	for _, k := range kinds {
		if _, ok := r.Get(k, name); ok {
			return true
		}
	}
	return false
}

// All returns the sorted names registered for kind
func (r *Registry) All(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs[kind]))
	for name := range r.defs[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of kind sorted by name
func (r *Registry) Definitions(kind Kind) []*Definition {
	names := r.All(kind)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(names))
	for _, name := range names {
		out = append(out, r.defs[kind][name])
	}
	return out
}

// Len returns the total number of definitions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byName := range r.defs {
		n += len(byName)
	}
	return n
}

// Clear removes every definition
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs = make(map[Kind]map[string]*Definition, len(Kinds))
	for _, k := range Kinds {
		r.defs[k] = make(map[string]*Definition)
	}
}
