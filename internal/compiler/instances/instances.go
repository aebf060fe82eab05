// Package instances holds the typeclass, instance and implicit-parameter
// tables shared by the macros of one compilation.
package instances

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TypeclassPackage is the import path of the runtime typeclass package that
// built-in and derived instances reference.
const TypeclassPackage = "github.com/conduit-lang/sugar/pkg/typeclass"

// Typeclass is a named abstraction parameterised over types
type Typeclass struct {
	Name string
	// TypeParams is the number of type parameters the typeclass takes
	TypeParams int
	Methods    []string
	// Package is the import path declaring the typeclass, empty when local
	Package string
	Builtin bool
}

// Instance is a concrete implementation of a typeclass for one type. Expr is
// the Go expression that evaluates to the instance; qualifiers in it name the
// last element of each path in Imports.
type Instance struct {
	Typeclass string
	ForType   string
	Name      string
	Expr      string
	Imports   []string
	Derived   bool
	Builtin   bool
	// Origin is "file:line" of the declaration that registered the instance
	Origin string
}

// String renders the instance as TC[Type]
func (i *Instance) String() string {
	return fmt.Sprintf("%s[%s]", i.Typeclass, i.ForType)
}

// ResolutionError reports that no instance exists for a typeclass and type
type ResolutionError struct {
	Param     string
	Typeclass string
	Type      string
}

func (e *ResolutionError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("cannot resolve implicit parameter %s: no instance of %s for type %s", e.Param, e.Typeclass, e.Type)
	}
	return fmt.Sprintf("no instance of %s for type %s", e.Typeclass, e.Type)
}

type instanceKey struct {
	typeclass string
	forType   string
}

// Registry is the instance registry. One registry is shared by every file of
// a compilation so that instances declared in one file resolve in the next.
type Registry struct {
	mu          sync.RWMutex
	typeclasses map[string]*Typeclass
	instances   map[instanceKey]*Instance
	implicits   map[string]*ImplicitFunc
	summons     int
}

// New creates a registry seeded with the built-in typeclasses and instances
func New() *Registry {
	r := NewEmpty()
	seedBuiltins(r)
	return r
}

// NewEmpty creates a registry with no typeclasses or instances
func NewEmpty() *Registry {
	return &Registry{
		typeclasses: make(map[string]*Typeclass),
		instances:   make(map[instanceKey]*Instance),
		implicits:   make(map[string]*ImplicitFunc),
	}
}

// RegisterTypeclass adds or replaces a typeclass
func (r *Registry) RegisterTypeclass(tc Typeclass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeclasses[tc.Name] = &tc
}

// Typeclass returns the typeclass registered under name
func (r *Registry) Typeclass(name string) (*Typeclass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.typeclasses[name]
	return tc, ok
}

// IsTypeclass reports whether name is a registered typeclass
func (r *Registry) IsTypeclass(name string) bool {
	_, ok := r.Typeclass(name)
	return ok
}

// Typeclasses returns the registered typeclass names, sorted
func (r *Registry) Typeclasses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.typeclasses))
	for name := range r.typeclasses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterInstance adds inst, replacing any instance for the same typeclass
// and type. The replaced instance is returned.
func (r *Registry) RegisterInstance(inst Instance) *Instance {
	inst.ForType = NormalizeType(inst.ForType)
	if inst.Expr == "" {
		inst.Expr = inst.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey{inst.Typeclass, inst.ForType}
	previous := r.instances[key]
	r.instances[key] = &inst
	return previous
}

// Lookup finds an instance without counting it as a resolution
func (r *Registry) Lookup(typeclass, typ string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[instanceKey{typeclass, NormalizeType(typ)}]
	return inst, ok
}

// Summon resolves the instance of typeclass for typ. Every call counts as one
// resolution, hit or miss.
func (r *Registry) Summon(typeclass, typ string) (*Instance, error) {
	r.mu.Lock()
	r.summons++
	r.mu.Unlock()

	inst, ok := r.Lookup(typeclass, typ)
	if !ok {
		return nil, &ResolutionError{Typeclass: typeclass, Type: NormalizeType(typ)}
	}
	return inst, nil
}

// SummonCount returns how many resolutions Summon has performed
func (r *Registry) SummonCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summons
}

// Instances returns the instances of typeclass sorted by type
func (r *Registry) Instances(typeclass string) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Instance
	for key, inst := range r.instances {
		if key.typeclass == typeclass {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ForType < out[j].ForType })
	return out
}

// Reset drops everything registered since construction and re-seeds the
// built-ins.
func (r *Registry) Reset() {
	r.Clear()
	seedBuiltins(r)
}

// Clear removes every typeclass, instance and implicit function
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.typeclasses = make(map[string]*Typeclass)
	r.instances = make(map[instanceKey]*Instance)
	r.implicits = make(map[string]*ImplicitFunc)
	r.summons = 0
}

// NormalizeType maps aliases to the type they denote so that rune and int32
// share instances.
func NormalizeType(typ string) string {
	typ = strings.TrimSpace(typ)
	switch typ {
	case "rune":
		return "int32"
	case "byte":
		return "uint8"
	case "interface{}":
		return "any"
	}
	return typ
}
