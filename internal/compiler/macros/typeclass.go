package macros

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/implicits"
	"github.com/conduit-lang/sugar/internal/compiler/instances"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// typeclassAttr registers a generic interface as a typeclass:
//
//	//sugar:typeclass
//	type Show[A any] interface{ Show(a A) string }
func typeclassAttr(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	a, ok := node.(*registry.Annotated)
	if !ok {
		return registry.Result{}, errors.Newf("typeclass: unexpected %T", node)
	}
	ts, err := typeSpecOf(a)
	if err != nil {
		return registry.Result{}, errors.Wrap(err, "typeclass")
	}
	iface, ok := ts.Type.(*ast.InterfaceType)
	if !ok {
		return registry.Result{}, errors.Newf("typeclass: %s is not an interface type", ts.Name.Name)
	}
	params := 0
	if ts.TypeParams != nil {
		params = ts.TypeParams.NumFields()
	}
	if params == 0 {
		return registry.Result{}, errors.Newf("typeclass: %s needs at least one type parameter", ts.Name.Name)
	}

	tc := instances.Typeclass{Name: ts.Name.Name, TypeParams: params}
	for _, m := range iface.Methods.List {
		for _, n := range m.Names {
			tc.Methods = append(tc.Methods, n.Name)
		}
	}
	ctx.Instances().RegisterTypeclass(tc)
	ctx.Logger().Debug("registered typeclass",
		zap.String("typeclass", tc.Name),
		zap.Int("params", params))
	return registry.AppendDecls(), nil
}

// instanceAttr registers a package-level variable, or a function without
// parameters, as an instance. The typeclass and type come from the
// directive, or from the declared type when the directive has none:
//
//	//sugar:instance Show Point
//	var showPoint = typeclass.ShowFunc[Point](...)
//
//	//sugar:instance
//	var ShowPoint Show[Point] = showPoint{}
func instanceAttr(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	a, ok := node.(*registry.Annotated)
	if !ok {
		return registry.Result{}, errors.Newf("instance: unexpected %T", node)
	}

	var name, expr string
	var declared ast.Expr
	switch d := a.Decl.(type) {
	case *ast.GenDecl:
		vs, err := valueSpecOf(d, a.Directive)
		if err != nil {
			return registry.Result{}, errors.Wrap(err, "instance")
		}
		name, expr, declared = vs.Names[0].Name, vs.Names[0].Name, vs.Type
	case *ast.FuncDecl:
		if d.Recv != nil || d.Type.Params.NumFields() != 0 || d.Type.Results.NumFields() != 1 {
			return registry.Result{}, errors.Newf("instance: %s must be a function without parameters returning the instance", d.Name.Name)
		}
		name, expr, declared = d.Name.Name, d.Name.Name+"()", d.Type.Results.List[0].Type
	}

	var tc, typ string
	switch len(args) {
	case 0:
		if declared == nil {
			return registry.Result{}, errors.Newf("instance: %s has no declared type; name the typeclass and type", name)
		}
		if tc, typ, ok = typeclassApplication(declared); !ok {
			return registry.Result{}, errors.Newf("instance: %s is not a typeclass type", types.ExprString(declared))
		}
	case 2:
		tc, typ = types.ExprString(args[0]), types.ExprString(args[1])
	default:
		return registry.Result{}, errors.New("instance takes a typeclass and a type, as in //sugar:instance Show Point")
	}
	if !ctx.Instances().IsTypeclass(tc) {
		return registry.Result{}, errors.Newf("instance: %s is not a typeclass", tc)
	}

	inst := instances.Instance{
		Typeclass: tc,
		ForType:   typ,
		Name:      name,
		Expr:      expr,
		Origin:    origin(ctx, a.Decl),
	}
	if prev := ctx.Instances().RegisterInstance(inst); prev != nil && !prev.Builtin && prev.Origin != inst.Origin {
		ctx.Report(a.Decl, cerrors.NewDuplicateInstance(cerrors.SourceLocation{}, tc, instances.NormalizeType(typ), prev.Name, name))
	}
	return registry.AppendDecls(), nil
}

// implicitsAttr marks the typeclass parameters of a function as implicit,
// all of them or only the ones named
func implicitsAttr(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	a, ok := node.(*registry.Annotated)
	if !ok {
		return registry.Result{}, errors.Newf("implicits: unexpected %T", node)
	}
	fd, ok := a.Decl.(*ast.FuncDecl)
	if !ok {
		return registry.Result{}, errors.New("implicits must annotate a function")
	}
	names := make([]string, 0, len(args))
	for _, arg := range args {
		id, ok := arg.(*ast.Ident)
		if !ok {
			return registry.Result{}, errors.Newf("implicits: %s is not a parameter name", types.ExprString(arg))
		}
		names = append(names, id.Name)
	}
	if _, err := implicits.New(ctx.Instances(), ctx.Logger()).CollectFunc(fd, ctx.FileName(), names); err != nil {
		return registry.Result{}, err
	}
	return registry.AppendDecls(), nil
}

func typeSpecOf(a *registry.Annotated) (*ast.TypeSpec, error) {
	gd, ok := a.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.TYPE {
		return nil, errors.New("not a type declaration")
	}
	spec, err := specOf(gd, a.Directive)
	if err != nil {
		return nil, err
	}
	return spec.(*ast.TypeSpec), nil
}

func valueSpecOf(gd *ast.GenDecl, dir registry.Directive) (*ast.ValueSpec, error) {
	if gd.Tok != token.VAR && gd.Tok != token.CONST {
		return nil, errors.New("not a variable declaration")
	}
	spec, err := specOf(gd, dir)
	if err != nil {
		return nil, err
	}
	vs := spec.(*ast.ValueSpec)
	if len(vs.Names) != 1 {
		return nil, errors.New("annotate a declaration of exactly one name")
	}
	return vs, nil
}

// specOf picks the spec a directive belongs to: the only spec, or the one
// whose doc comment holds the directive
func specOf(gd *ast.GenDecl, dir registry.Directive) (ast.Spec, error) {
	if len(gd.Specs) == 1 {
		return gd.Specs[0], nil
	}
	for _, s := range gd.Specs {
		var doc *ast.CommentGroup
		switch s := s.(type) {
		case *ast.TypeSpec:
			doc = s.Doc
		case *ast.ValueSpec:
			doc = s.Doc
		}
		if doc != nil && doc.Pos() <= dir.Pos && dir.Pos < doc.End() {
			return s, nil
		}
	}
	return nil, errors.New("annotate a single spec of a grouped declaration")
}

// origin renders where n was declared as file:line
func origin(ctx registry.MacroContext, n ast.Node) string {
	if n == nil || !n.Pos().IsValid() {
		return ctx.FileName()
	}
	return fmt.Sprintf("%s:%d", ctx.FileName(), ctx.Fset().Position(n.Pos()).Line)
}
