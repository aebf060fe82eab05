package instances

import "go/ast"

// Param is one declared function parameter
type Param struct {
	Name string
	Type ast.Expr
}

// ImplicitParam is a parameter filled in at call sites when omitted
type ImplicitParam struct {
	// Index is the parameter's position in the flattened parameter list
	Index     int
	Name      string
	Typeclass string
	// TypeArgs are the typeclass type arguments as declared, e.g. A in Show[A]
	TypeArgs []ast.Expr
}

// ImplicitFunc is the signature of a function with implicit parameters
type ImplicitFunc struct {
	Name       string
	TypeParams []string
	Params     []Param
	Implicits  []ImplicitParam
	// File is where the function is declared
	File string
}

// Explicit returns the number of leading parameters callers must pass
func (f *ImplicitFunc) Explicit() int {
	return len(f.Params) - len(f.Implicits)
}

// IsTypeParam reports whether name is one of the function's type parameters
func (f *ImplicitFunc) IsTypeParam(name string) bool {
	for _, tp := range f.TypeParams {
		if tp == name {
			return true
		}
	}
	return false
}

// MarkImplicit records fn's implicit parameters, replacing earlier entries
func (r *Registry) MarkImplicit(fn *ImplicitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.implicits[fn.Name] = fn
}

// Implicits returns the implicit signature registered for name
func (r *Registry) Implicits(name string) (*ImplicitFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.implicits[name]
	return fn, ok
}

// HasImplicits reports whether any function has implicit parameters
func (r *Registry) HasImplicits() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.implicits) > 0
}
