// Package implicits fills in omitted implicit arguments at call sites. An
// implicit parameter is resolved from the enclosing function's own implicit
// parameters when one has the same typeclass and type, and summoned from the
// instance registry otherwise.
package implicits

import (
	"go/ast"
	"go/token"
	"go/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/conduit-lang/sugar/internal/compiler/instances"
)

// Splicer turns a summoned instance into an expression for the current file,
// adding whatever imports the expression needs.
type Splicer func(inst *instances.Instance) (ast.Expr, error)

// Failure is an implicit argument that could not be resolved
type Failure struct {
	Call  *ast.CallExpr
	Param string
	Err   error
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Engine resolves implicit parameters against one instance registry
type Engine struct {
	registry *instances.Registry
	logger   *zap.Logger
}

// New creates an engine over reg. A nil logger disables logging.
func New(reg *instances.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{registry: reg, logger: logger}
}

// CollectFunc determines the implicit parameters of decl and records them in
// the registry. With no names every typeclass-shaped parameter is implicit;
// otherwise exactly the named ones are. Implicit parameters must come last.
func (e *Engine) CollectFunc(decl *ast.FuncDecl, fileName string, names []string) (*instances.ImplicitFunc, error) {
	if decl.Recv != nil {
		return nil, errors.Newf("implicits: method %s is not supported, use a function", decl.Name.Name)
	}

	fn := &instances.ImplicitFunc{Name: decl.Name.Name, File: fileName}
	if decl.Type.TypeParams != nil {
		for _, field := range decl.Type.TypeParams.List {
			for _, n := range field.Names {
				fn.TypeParams = append(fn.TypeParams, n.Name)
			}
		}
	}

	for _, field := range decl.Type.Params.List {
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			return nil, errors.Newf("implicits: variadic function %s is not supported", fn.Name)
		}
		if len(field.Names) == 0 {
			fn.Params = append(fn.Params, instances.Param{Type: field.Type})
			continue
		}
		for _, n := range field.Names {
			fn.Params = append(fn.Params, instances.Param{Name: n.Name, Type: field.Type})
		}
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	for i, p := range fn.Params {
		tc, args, shaped := e.typeclassShape(p.Type)
		if len(wanted) > 0 {
			if !wanted[p.Name] {
				continue
			}
			delete(wanted, p.Name)
			if !shaped {
				return nil, errors.Newf("implicits: parameter %s of %s is not a typeclass", p.Name, fn.Name)
			}
		} else if !shaped {
			continue
		}
		fn.Implicits = append(fn.Implicits, instances.ImplicitParam{
			Index:     i,
			Name:      p.Name,
			Typeclass: tc,
			TypeArgs:  args,
		})
	}

	for n := range wanted {
		return nil, errors.Newf("implicits: %s has no parameter %s", fn.Name, n)
	}
	if len(fn.Implicits) == 0 {
		return nil, errors.Newf("implicits: %s has no typeclass parameters", fn.Name)
	}
	for i, ip := range fn.Implicits {
		if ip.Index != fn.Explicit()+i {
			return nil, errors.Newf("implicits: implicit parameter %s of %s must follow every explicit parameter", ip.Name, fn.Name)
		}
	}

	e.registry.MarkImplicit(fn)
	e.logger.Debug("collected implicit parameters",
		zap.String("func", fn.Name),
		zap.Int("implicits", len(fn.Implicits)))
	return fn, nil
}

// typeclassShape matches TC, TC[A] and pkg.TC[A, B] against registered
// typeclasses
func (e *Engine) typeclassShape(expr ast.Expr) (string, []ast.Expr, bool) {
	var base ast.Expr
	var args []ast.Expr
	switch t := expr.(type) {
	case *ast.IndexExpr:
		base, args = t.X, []ast.Expr{t.Index}
	case *ast.IndexListExpr:
		base, args = t.X, t.Indices
	default:
		base = expr
	}

	var name string
	switch b := base.(type) {
	case *ast.Ident:
		name = b.Name
	case *ast.SelectorExpr:
		name = b.Sel.Name
	default:
		return "", nil, false
	}

	tc, ok := e.registry.Typeclass(name)
	if !ok || tc.TypeParams != len(args) {
		return "", nil, false
	}
	return name, args, true
}

// Options are the per-file inputs of RewriteFile
type Options struct {
	// Info is best-effort type information; nil falls back to syntax
	Info *types.Info
	// Package is the package being rewritten, used to qualify type names
	Package *types.Package
	Splice  Splicer
	// OnComplete is called for every call that received implicit arguments
	OnComplete func(call *ast.CallExpr)
}

// RewriteFile appends missing implicit arguments to every call of a function
// with implicit parameters. Calls that cannot be completed are left as they
// are and reported.
func (e *Engine) RewriteFile(file *ast.File, opts Options) []*Failure {
	if !e.registry.HasImplicits() {
		return nil
	}
	if opts.Splice == nil {
		opts.Splice = parseInstance
	}

	r := &rewriter{engine: e, opts: opts}
	for _, decl := range file.Decls {
		s := &scope{}
		if fd, ok := decl.(*ast.FuncDecl); ok {
			s = r.funcScope(fd)
		}
		r.walk(decl, s)
	}
	return r.failures
}

type rewriter struct {
	engine   *Engine
	opts     Options
	failures []*Failure
}

// funcScope makes the implicit parameters of fd available as evidence to
// the calls in its body
func (r *rewriter) funcScope(fd *ast.FuncDecl) *scope {
	s := &scope{params: paramTypes(fd.Type)}
	fn, ok := r.engine.registry.Implicits(fd.Name.Name)
	if !ok || fd.Recv != nil {
		return s
	}

	identity := map[string]types.Type{}
	for _, tp := range fn.TypeParams {
		identity[tp] = placeholder(tp)
	}
	for _, ip := range fn.Implicits {
		key, err := r.typeclassKey(ip, fn, identity)
		if err != nil || ip.Name == "" || ip.Name == "_" {
			continue
		}
		s.evidence = append(s.evidence, evidence{
			typeclass: ip.Typeclass,
			key:       key,
			expr:      func() ast.Expr { return ast.NewIdent(ip.Name) },
		})
	}
	return s
}

func (r *rewriter) walk(root ast.Node, s *scope) {
	stack := []*scope{s}
	pushed := make(map[ast.Node]bool)

	astutil.Apply(root, func(c *astutil.Cursor) bool {
		cur := stack[len(stack)-1]
		switch n := c.Node().(type) {
		case *ast.FuncLit:
			stack = append(stack, &scope{parent: cur, params: paramTypes(n.Type)})
			pushed[n] = true
		case *ast.CallExpr:
			if frame := r.rewriteCall(n, cur); frame != nil {
				stack = append(stack, frame)
				pushed[n] = true
			}
		}
		return true
	}, func(c *astutil.Cursor) bool {
		if n := c.Node(); pushed[n] {
			delete(pushed, n)
			stack = stack[:len(stack)-1]
		}
		return true
	})
}

// rewriteCall completes call if it targets an implicit function. It returns
// a scope carrying explicitly passed implicit arguments for the calls nested
// in call's arguments, or nil.
func (r *rewriter) rewriteCall(call *ast.CallExpr, s *scope) *scope {
	name, typeArgs := calleeName(call.Fun)
	if name == "" || call.Ellipsis.IsValid() {
		return nil
	}
	fn, ok := r.engine.registry.Implicits(name)
	if !ok {
		return nil
	}
	if obj := r.objectOf(call.Fun); obj != nil && obj.Pkg() != nil && obj.Parent() != obj.Pkg().Scope() {
		// shadowed by a local
		return nil
	}

	explicit := fn.Explicit()
	n := len(call.Args)
	if n < explicit || n > len(fn.Params) {
		return nil
	}

	bindings := make(map[string]types.Type)
	for i, ta := range typeArgs {
		if i < len(fn.TypeParams) {
			bindings[fn.TypeParams[i]] = r.typeOfTypeExpr(ta, s)
		}
	}
	for j := 0; j < explicit; j++ {
		if t := r.argType(call.Args[j], s); t != nil {
			unify(fn.Params[j].Type, t, fn, bindings)
		}
	}

	var frame *scope
	for j := explicit; j < n; j++ {
		ip := fn.Implicits[j-explicit]
		key, err := r.typeclassKey(ip, fn, bindings)
		if err != nil {
			continue
		}
		if frame == nil {
			frame = &scope{parent: s}
		}
		arg := call.Args[j]
		frame.evidence = append(frame.evidence, evidence{
			typeclass: ip.Typeclass,
			key:       key,
			expr:      func() ast.Expr { return arg },
		})
	}

	// resolved arguments are kept aside so a failing parameter leaves the
	// call as written
	added := make([]ast.Expr, 0, len(fn.Params)-n)
	for j := n; j < len(fn.Params); j++ {
		ip := fn.Implicits[j-explicit]
		key, err := r.typeclassKey(ip, fn, bindings)
		if err != nil {
			r.fail(call, ip, key)
			return frame
		}

		if expr, ok := s.lookup(ip.Typeclass, key); ok {
			added = append(added, expr)
			r.engine.logger.Debug("propagated implicit",
				zap.String("func", fn.Name),
				zap.String("param", ip.Name),
				zap.String("instance", ip.Typeclass+"["+key+"]"))
			continue
		}

		inst, err := r.engine.registry.Summon(ip.Typeclass, key)
		if err != nil {
			r.fail(call, ip, key)
			return frame
		}
		expr, err := r.opts.Splice(inst)
		if err != nil {
			r.failures = append(r.failures, &Failure{Call: call, Param: ip.Name, Err: err})
			return frame
		}
		added = append(added, expr)
		r.engine.logger.Debug("summoned implicit",
			zap.String("func", fn.Name),
			zap.String("param", ip.Name),
			zap.String("instance", inst.String()))
	}
	if len(added) == 0 {
		return frame
	}

	call.Args = append(call.Args, added...)
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(call)
	}
	// the appended arguments have no positions; a positioned closing paren
	// would make the printer break the list with a trailing comma
	call.Rparen = token.NoPos
	return frame
}

func (r *rewriter) fail(call *ast.CallExpr, ip instances.ImplicitParam, key string) {
	r.failures = append(r.failures, &Failure{
		Call:  call,
		Param: ip.Name,
		Err: &instances.ResolutionError{
			Param:     ip.Name,
			Typeclass: ip.Typeclass,
			Type:      key,
		},
	})
}

func (r *rewriter) objectOf(fun ast.Expr) types.Object {
	if r.opts.Info == nil {
		return nil
	}
	name, _ := calleeIdent(fun)
	if name == nil {
		return nil
	}
	return r.opts.Info.Uses[name]
}

func calleeIdent(fun ast.Expr) (*ast.Ident, []ast.Expr) {
	switch f := fun.(type) {
	case *ast.Ident:
		return f, nil
	case *ast.IndexExpr:
		if id, ok := f.X.(*ast.Ident); ok {
			return id, []ast.Expr{f.Index}
		}
	case *ast.IndexListExpr:
		if id, ok := f.X.(*ast.Ident); ok {
			return id, f.Indices
		}
	case *ast.ParenExpr:
		return calleeIdent(f.X)
	}
	return nil, nil
}

func calleeName(fun ast.Expr) (string, []ast.Expr) {
	id, args := calleeIdent(fun)
	if id == nil {
		return "", nil
	}
	return id.Name, args
}

// evidence is an instance expression available without summoning
type evidence struct {
	typeclass string
	key       string
	expr      func() ast.Expr
}

// scope is one level of the propagation environment
type scope struct {
	parent   *scope
	evidence []evidence
	// params maps parameter names to their declared types for inference
	// without type information
	params map[string]ast.Expr
}

func (s *scope) lookup(typeclass, key string) (ast.Expr, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		for _, ev := range cur.evidence {
			if ev.typeclass == typeclass && instances.NormalizeType(ev.key) == instances.NormalizeType(key) {
				return ev.expr(), true
			}
		}
	}
	return nil, false
}

func (s *scope) paramType(name string) (ast.Expr, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if t, ok := cur.params[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func paramTypes(ft *ast.FuncType) map[string]ast.Expr {
	params := make(map[string]ast.Expr)
	if ft == nil || ft.Params == nil {
		return params
	}
	for _, field := range ft.Params.List {
		for _, n := range field.Names {
			params[n.Name] = field.Type
		}
	}
	return params
}

func parseInstance(inst *instances.Instance) (ast.Expr, error) {
	expr, err := parseExpr(inst.Expr)
	if err != nil {
		return nil, errors.Wrapf(err, "instance %s", inst)
	}
	return expr, nil
}

func placeholder(name string) types.Type {
	obj := types.NewTypeName(token.NoPos, nil, name, nil)
	return types.NewNamed(obj, types.NewStruct(nil, nil), nil)
}
