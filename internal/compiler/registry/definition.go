package registry

import (
	"go/ast"
	"go/token"
)

// ExpandFunc rewrites one marker node. args holds the call arguments for
// expression macros, the interpolated expressions for templates, the parsed
// directive arguments for attributes and the type arguments for type macros.
type ExpandFunc func(ctx MacroContext, node ast.Node, args []ast.Expr) (Result, error)

// Definition is an immutable macro definition. Build one with a Define*
// constructor and register it; never mutate it afterwards.
type Definition struct {
	Name        string
	Kind        Kind
	Description string
	// Args documents the expected arguments for tooling
	Args []string
	// Continuations names labels consumed together with a labeled block macro
	Continuations []string
	// Cacheable macros are pure: the same original text always expands to the
	// same output and expanding has no side effects.
	Cacheable bool
	// Evaluating macros run compile-time evaluation under the timeout budget
	Evaluating bool
	// SourcePackage is the import path of the package providing the macro
	SourcePackage string
	Expand        ExpandFunc
}

// Option configures a definition at construction time
type Option func(*Definition)

// WithDescription sets the description shown by tooling
func WithDescription(desc string) Option {
	return func(d *Definition) { d.Description = desc }
}

// WithArgs documents the macro's arguments
func WithArgs(args ...string) Option {
	return func(d *Definition) { d.Args = args }
}

// WithContinuations names labels that continue a labeled block macro
func WithContinuations(labels ...string) Option {
	return func(d *Definition) { d.Continuations = labels }
}

// Cacheable marks the macro as pure
func Cacheable() Option {
	return func(d *Definition) { d.Cacheable = true }
}

// Evaluating marks the macro as doing compile-time evaluation
func Evaluating() Option {
	return func(d *Definition) { d.Evaluating = true }
}

// FromPackage records the import path providing the macro
func FromPackage(path string) Option {
	return func(d *Definition) { d.SourcePackage = path }
}

func define(kind Kind, name string, expand ExpandFunc, opts []Option) *Definition {
	d := &Definition{Name: name, Kind: kind, Expand: expand}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefineExpressionMacro defines a macro triggered by name(args...)
func DefineExpressionMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindExpression, name, expand, opts)
}

// DefineAttributeMacro defines a macro triggered by //sugar:name on a declaration
func DefineAttributeMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindAttribute, name, expand, opts)
}

// DefineTaggedTemplateMacro defines a macro triggered by name(`template`)
func DefineTaggedTemplateMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindTaggedTemplate, name, expand, opts)
}

// DefineDeriveMacro defines a macro triggered by //sugar:derive name
func DefineDeriveMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindDerive, name, expand, opts)
}

// DefineLabeledBlockMacro defines a macro triggered by name: statement
func DefineLabeledBlockMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindLabeledBlock, name, expand, opts)
}

// DefineTypeMacro defines a macro triggered by name[T...] in a type position
func DefineTypeMacro(name string, expand ExpandFunc, opts ...Option) *Definition {
	return define(KindType, name, expand, opts)
}

// Result is what an expansion produces. Which field is used depends on the
// kind: Expr for expression, template and type macros, Stmts for labeled
// blocks (and expression macros in statement position), Decls for attribute
// and derive macros.
type Result struct {
	Expr  ast.Expr
	Stmts []ast.Stmt
	Decls []ast.Decl
	// KeepOriginal keeps the annotated declaration and places Decls after it
	KeepOriginal bool
}

// ExprResult wraps a replacement expression
func ExprResult(e ast.Expr) Result {
	return Result{Expr: e}
}

// StmtsResult wraps replacement statements
func StmtsResult(stmts ...ast.Stmt) Result {
	if stmts == nil {
		stmts = []ast.Stmt{}
	}
	return Result{Stmts: stmts}
}

// DeclsResult replaces the annotated declaration with decls
func DeclsResult(decls ...ast.Decl) Result {
	if decls == nil {
		decls = []ast.Decl{}
	}
	return Result{Decls: decls}
}

// AppendDecls keeps the annotated declaration and adds decls after it
func AppendDecls(decls ...ast.Decl) Result {
	return Result{Decls: decls, KeepOriginal: true}
}

// Empty reports whether the result carries no replacement at all
func (r Result) Empty() bool {
	return r.Expr == nil && r.Stmts == nil && r.Decls == nil && !r.KeepOriginal
}

// Directive is one //sugar:name args... line attached to a declaration
type Directive struct {
	Name string
	Args []string
	Raw  string
	Pos  token.Pos
}

// Annotated is the node handed to attribute macros: the declaration plus the
// directive that selected it.
type Annotated struct {
	Decl      ast.Decl
	Directive Directive
}

// Pos implements ast.Node
func (a *Annotated) Pos() token.Pos { return a.Decl.Pos() }

// End implements ast.Node
func (a *Annotated) End() token.Pos { return a.Decl.End() }

// Derived is the node handed to derive macros
type Derived struct {
	Decl *ast.GenDecl
	Spec *ast.TypeSpec
}

// Pos implements ast.Node
func (d *Derived) Pos() token.Pos { return d.Spec.Pos() }

// End implements ast.Node
func (d *Derived) End() token.Pos { return d.Spec.End() }

// Template is the node handed to tagged template macros. Strings has one more
// element than Exprs; the template is Strings[0] Exprs[0] Strings[1] ...
type Template struct {
	Call    *ast.CallExpr
	Strings []string
	Exprs   []ast.Expr
}

// Pos implements ast.Node
func (t *Template) Pos() token.Pos { return t.Call.Pos() }

// End implements ast.Node
func (t *Template) End() token.Pos { return t.Call.End() }

// LabeledBlock is the node handed to labeled block macros, including any
// continuation statements that followed it.
type LabeledBlock struct {
	Stmt          *ast.LabeledStmt
	Continuations []*ast.LabeledStmt
}

// Pos implements ast.Node
func (l *LabeledBlock) Pos() token.Pos { return l.Stmt.Pos() }

// End implements ast.Node
func (l *LabeledBlock) End() token.Pos {
	if n := len(l.Continuations); n > 0 {
		return l.Continuations[n-1].End()
	}
	return l.Stmt.End()
}

// Continuation returns the continuation labeled name, if present
func (l *LabeledBlock) Continuation(name string) (*ast.LabeledStmt, bool) {
	for _, c := range l.Continuations {
		if c.Label.Name == name {
			return c, true
		}
	}
	return nil, false
}

// TypeArgs returns the explicit type arguments of a call such as
// summon[Show[int]]()
func TypeArgs(call *ast.CallExpr) []ast.Expr {
	switch fun := call.Fun.(type) {
	case *ast.IndexExpr:
		return []ast.Expr{fun.Index}
	case *ast.IndexListExpr:
		return fun.Indices
	}
	return nil
}

// CalleeName returns the identifier a call-shaped marker is named by, or ""
func CalleeName(call *ast.CallExpr) *ast.Ident {
	fun := call.Fun
	switch f := fun.(type) {
	case *ast.IndexExpr:
		fun = f.X
	case *ast.IndexListExpr:
		fun = f.X
	}
	id, _ := fun.(*ast.Ident)
	return id
}
