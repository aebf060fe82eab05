package transform

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	pathpkg "path"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/astutil"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/hygiene"
	"github.com/conduit-lang/sugar/internal/compiler/instances"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// macroContext is the registry.MacroContext of one expand call
type macroContext struct {
	ctx  context.Context
	fs   *fileState
	def  *registry.Definition
	node ast.Node

	// mu serializes the evaluating goroutine's access to file state with the
	// transformer. detached is set once an evaluating macro ran out of time;
	// from then on nothing it does reaches the file.
	mu       sync.Mutex
	detached bool
}

var _ registry.MacroContext = (*macroContext)(nil)

// errDetached is returned to a macro that keeps running after its budget
var errDetached = errors.New("macro evaluation was abandoned")

func (m *macroContext) detach() {
	m.mu.Lock()
	m.detached = true
	m.mu.Unlock()
}

// live runs fn under the lock unless the evaluation was abandoned
func (m *macroContext) live(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached {
		return false
	}
	fn()
	return true
}

func (m *macroContext) Context() context.Context { return m.ctx }
func (m *macroContext) Fset() *token.FileSet      { return m.fs.fset }
func (m *macroContext) File() *ast.File           { return m.fs.file }
func (m *macroContext) FileName() string          { return m.fs.fileName }
func (m *macroContext) TypesInfo() *types.Info    { return m.fs.info }
func (m *macroContext) Logger() *zap.Logger       { return m.fs.logger.With(zap.String("macro", m.def.Name)) }
func (m *macroContext) Debug() bool               { return m.fs.t.config.Debug }

func (m *macroContext) Instances() *instances.Registry { return m.fs.t.instances }

// Hygiene returns the shared context, or a private one once detached
func (m *macroContext) Hygiene() *hygiene.Context {
	h := hygiene.New()
	m.live(func() { h = m.fs.t.hygiene })
	return h
}

func (m *macroContext) TypeOf(e ast.Expr) types.Type {
	if m.fs.info == nil || e == nil {
		return nil
	}
	return m.fs.info.TypeOf(e)
}

func (m *macroContext) Source(n ast.Node) (src string) {
	m.live(func() { src = m.fs.sourceOf(n) })
	return src
}

func (m *macroContext) Print(n ast.Node) (out string) {
	m.live(func() { out = m.fs.printNode(n) })
	return out
}

func (m *macroContext) ParseExpr(src string) (ast.Expr, error) {
	return parseExpr(src)
}

func (m *macroContext) ParseStatements(src string) ([]ast.Stmt, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "", "package p\nfunc _() {\n"+src+"\n}", 0)
	if err != nil {
		return nil, errors.Wrap(err, "parse statements")
	}
	body := f.Decls[0].(*ast.FuncDecl).Body
	stripPositions(body)
	if body.List == nil {
		return []ast.Stmt{}, nil
	}
	return body.List, nil
}

// ParseDecls parses top-level declarations. Imports among them are added to
// the file instead of being returned.
func (m *macroContext) ParseDecls(src string) ([]ast.Decl, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "", "package p\n"+src, 0)
	if err != nil {
		return nil, errors.Wrap(err, "parse declarations")
	}
	decls := make([]ast.Decl, 0, len(f.Decls))
	var imports []*ast.ImportSpec
	for _, d := range f.Decls {
		if gd, ok := d.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			for _, spec := range gd.Specs {
				imports = append(imports, spec.(*ast.ImportSpec))
			}
			continue
		}
		stripPositions(d)
		decls = append(decls, d)
	}
	if len(imports) == 0 {
		return decls, nil
	}

	ok := m.live(func() {
		for _, is := range imports {
			path, _ := strconv.Unquote(is.Path.Value)
			if is.Name != nil {
				astutil.AddNamedImport(m.fs.fset, m.fs.file, is.Name.Name, path)
				m.fs.changed = true
			} else {
				m.fs.addImport(path)
			}
		}
	})
	if !ok {
		return nil, errDetached
	}
	return decls, nil
}

func (m *macroContext) GenerateUniqueName(base string) *ast.Ident {
	id := ast.NewIdent("_")
	m.live(func() { id = m.fs.t.hygiene.CreateIdentifier(base) })
	return id
}

func (m *macroContext) Resolve(typeclass, typ string) (expr ast.Expr, err error) {
	inst, err := m.fs.t.instances.Summon(typeclass, typ)
	if err != nil {
		return nil, err
	}
	if !m.live(func() { expr, err = m.fs.splice(inst) }) {
		return nil, errDetached
	}
	return expr, err
}

func (m *macroContext) AddImport(path string) string {
	name := pathpkg.Base(path)
	m.live(func() { name = m.fs.addImport(path) })
	return name
}

func (m *macroContext) ReportError(n ast.Node, format string, args ...interface{}) {
	m.Report(n, cerrors.Errorf(cerrors.SourceLocation{}, m.def.Name, format, args...))
}

func (m *macroContext) ReportWarning(n ast.Node, format string, args ...interface{}) {
	m.Report(n, cerrors.Warningf(cerrors.SourceLocation{}, m.def.Name, format, args...))
}

func (m *macroContext) Report(n ast.Node, d *cerrors.CompilerError) {
	if d == nil {
		return
	}
	if n == nil {
		n = m.node
	}
	m.live(func() {
		if d.Location == (cerrors.SourceLocation{}) {
			d.Location = m.fs.location(m.fs.originOf(n))
		}
		if d.Macro == "" {
			d.Macro = m.def.Name
		}
		m.fs.report(d)
	})
}

func parseExpr(src string) (ast.Expr, error) {
	expr, err := parser.ParseExprFrom(token.NewFileSet(), "", src, 0)
	if err != nil {
		return nil, err
	}
	stripPositions(expr)
	return expr, nil
}

// splice turns a summoned instance into an expression for this file,
// importing what it references under a free local name
func (fs *fileState) splice(inst *instances.Instance) (ast.Expr, error) {
	expr, err := parseExpr(inst.Expr)
	if err != nil {
		return nil, errors.Wrapf(err, "instance %s", inst)
	}
	for _, path := range inst.Imports {
		base := pathpkg.Base(path)
		name := fs.addImport(path)
		if name == base || name == "" {
			continue
		}
		ast.Inspect(expr, func(n ast.Node) bool {
			if sel, ok := n.(*ast.SelectorExpr); ok {
				if id, ok := sel.X.(*ast.Ident); ok && id.Name == base {
					id.Name = name
				}
			}
			return true
		})
	}
	return expr, nil
}

// addImport makes path available in the file and returns its local name.
// An existing import is reused; a name clash gets a hygienic alias.
func (fs *fileState) addImport(path string) string {
	base := pathpkg.Base(path)
	taken := fs.declared[base]
	for _, imp := range fs.file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		local := pathpkg.Base(p)
		if imp.Name != nil {
			local = imp.Name.Name
		}
		if p == path && local != "_" && local != "." {
			return local
		}
		if local == base {
			taken = true
		}
	}

	fs.changed = true
	if !taken {
		astutil.AddImport(fs.fset, fs.file, path)
		return base
	}
	alias := fs.t.hygiene.MangleName(base)
	astutil.AddNamedImport(fs.fset, fs.file, alias, path)
	return alias
}
