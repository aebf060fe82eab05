// Package hygiene generates collision-free identifiers for macro output.
//
// A Context keeps a stack of scopes. Inside a scope, mangling the same base
// name always yields the same identifier, so a macro can refer to "its" temp
// variable several times. Identifiers encode the scope id and a per-scope
// serial number, which makes them unique across scopes.
package hygiene

import (
	"fmt"
	"go/ast"
	"strings"
	"unicode"
)

// Prefix starts every mangled identifier. User code is not expected to declare
// names beginning with a double underscore.
const Prefix = "__"

type scope struct {
	id      int
	names   map[string]string
	counter int
}

// Context is a per-compilation hygiene scope stack. It is not safe for
// concurrent use; one transformation owns it at a time.
type Context struct {
	stack       []*scope
	nextScopeID int
	topLevel    int
	escapes     int
}

// New creates an empty hygiene context
func New() *Context {
	return &Context{nextScopeID: 1}
}

// WithScope pushes a fresh scope, runs fn and pops the scope on every exit
// path, including a panic inside fn.
func (c *Context) WithScope(fn func() error) error {
	c.push()
	defer c.pop()
	return fn()
}

func (c *Context) push() {
	c.stack = append(c.stack, &scope{
		id:    c.nextScopeID,
		names: make(map[string]string),
	})
	c.nextScopeID++
}

func (c *Context) pop() {
	if len(c.stack) == 0 {
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
}

// MangleName returns a unique identifier derived from base. Within one scope
// the result is stable for the same base. Outside any scope every call returns
// a new name because there is no scope to cache against.
//
// The cache is keyed by the raw base; sanitizing may map several bases to the
// same fragment, and the scope id and serial keep their names apart.
func (c *Context) MangleName(base string) string {
	if len(c.stack) == 0 {
		name := fmt.Sprintf("%s%s_g%d", Prefix, sanitize(base), c.topLevel)
		c.topLevel++
		return name
	}

	s := c.stack[len(c.stack)-1]
	if name, ok := s.names[base]; ok {
		return name
	}
	name := fmt.Sprintf("%s%s_s%d_%d", Prefix, sanitize(base), s.id, s.counter)
	s.counter++
	s.names[base] = name
	return name
}

// CreateIdentifier returns a hygienic identifier node for base
func (c *Context) CreateIdentifier(base string) *ast.Ident {
	return ast.NewIdent(c.MangleName(base))
}

// CreateUnhygienicIdentifier returns base unchanged as an identifier. Macros
// use it to bind names user code must see, such as derived method names. Each
// call is counted as an unhygienic escape for the audit log.
func (c *Context) CreateUnhygienicIdentifier(base string) *ast.Ident {
	c.escapes++
	return ast.NewIdent(base)
}

// IsInScope reports whether at least one scope is active
func (c *Context) IsInScope() bool {
	return len(c.stack) > 0
}

// ScopeDepth returns the number of active scopes
func (c *Context) ScopeDepth() int {
	return len(c.stack)
}

// UnhygienicEscapes returns the number of unhygienic identifiers created so far
func (c *Context) UnhygienicEscapes() int {
	return c.escapes
}

// Reset clears all scopes and counters
func (c *Context) Reset() {
	c.stack = nil
	c.nextScopeID = 1
	c.topLevel = 0
	c.escapes = 0
}

// IsMangled reports whether name looks like a name produced by MangleName
func IsMangled(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// sanitize keeps the base a valid Go identifier fragment
func sanitize(base string) string {
	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), "_")
	if out == "" {
		return "tmp"
	}
	return out
}
