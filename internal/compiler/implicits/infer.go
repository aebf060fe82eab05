package implicits

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/conduit-lang/sugar/internal/compiler/instances"
)

// argType infers the type of a call argument, preferring type information
// and falling back to literal syntax and the parameters in scope
func (r *rewriter) argType(arg ast.Expr, s *scope) types.Type {
	if info := r.opts.Info; info != nil {
		if tv, ok := info.Types[arg]; ok && tv.Type != nil && tv.Type != types.Typ[types.Invalid] {
			return types.Default(tv.Type)
		}
	}

	switch a := arg.(type) {
	case *ast.ParenExpr:
		return r.argType(a.X, s)
	case *ast.BasicLit:
		switch a.Kind {
		case token.INT:
			return types.Typ[types.Int]
		case token.FLOAT:
			return types.Typ[types.Float64]
		case token.IMAG:
			return types.Typ[types.Complex128]
		case token.CHAR:
			return types.Universe.Lookup("rune").Type()
		case token.STRING:
			return types.Typ[types.String]
		}
	case *ast.Ident:
		if a.Name == "true" || a.Name == "false" {
			return types.Typ[types.Bool]
		}
		if t, ok := s.paramType(a.Name); ok {
			return r.typeOfTypeExpr(t, s)
		}
	case *ast.CompositeLit:
		if a.Type != nil {
			return r.typeOfTypeExpr(a.Type, s)
		}
	case *ast.UnaryExpr:
		if a.Op == token.AND {
			if inner := r.argType(a.X, s); inner != nil {
				return types.NewPointer(inner)
			}
		}
	case *ast.CallExpr:
		// conversions to basic types
		if id, ok := a.Fun.(*ast.Ident); ok && len(a.Args) == 1 {
			if tn, ok := types.Universe.Lookup(id.Name).(*types.TypeName); ok {
				return tn.Type()
			}
		}
	}
	return nil
}

// typeOfTypeExpr converts a syntactic type into a types.Type. Names the
// universe does not know become placeholders that print as written.
func (r *rewriter) typeOfTypeExpr(expr ast.Expr, s *scope) types.Type {
	if info := r.opts.Info; info != nil {
		if tv, ok := info.Types[expr]; ok && tv.IsType() && tv.Type != types.Typ[types.Invalid] {
			return tv.Type
		}
	}

	switch t := expr.(type) {
	case *ast.Ident:
		if tn, ok := types.Universe.Lookup(t.Name).(*types.TypeName); ok {
			return tn.Type()
		}
		return placeholder(t.Name)
	case *ast.ParenExpr:
		return r.typeOfTypeExpr(t.X, s)
	case *ast.StarExpr:
		return types.NewPointer(r.typeOfTypeExpr(t.X, s))
	case *ast.ArrayType:
		elem := r.typeOfTypeExpr(t.Elt, s)
		if t.Len == nil {
			return types.NewSlice(elem)
		}
		if lit, ok := t.Len.(*ast.BasicLit); ok && lit.Kind == token.INT {
			if n, err := strconv.ParseInt(lit.Value, 0, 64); err == nil {
				return types.NewArray(elem, n)
			}
		}
	case *ast.MapType:
		return types.NewMap(r.typeOfTypeExpr(t.Key, s), r.typeOfTypeExpr(t.Value, s))
	case *ast.ChanType:
		dir := types.SendRecv
		switch t.Dir {
		case ast.SEND:
			dir = types.SendOnly
		case ast.RECV:
			dir = types.RecvOnly
		}
		return types.NewChan(dir, r.typeOfTypeExpr(t.Value, s))
	}
	return placeholder(types.ExprString(expr))
}

// unify binds fn's type parameters by matching the declared parameter type
// against an argument type. The first binding of a type parameter wins.
func unify(param ast.Expr, arg types.Type, fn *instances.ImplicitFunc, bindings map[string]types.Type) {
	if arg == nil {
		return
	}
	arg = types.Unalias(arg)

	switch p := param.(type) {
	case *ast.Ident:
		if fn.IsTypeParam(p.Name) {
			if _, bound := bindings[p.Name]; !bound {
				bindings[p.Name] = types.Default(arg)
			}
		}
	case *ast.ParenExpr:
		unify(p.X, arg, fn, bindings)
	case *ast.StarExpr:
		if ptr, ok := arg.Underlying().(*types.Pointer); ok {
			unify(p.X, ptr.Elem(), fn, bindings)
		}
	case *ast.ArrayType:
		switch a := arg.Underlying().(type) {
		case *types.Slice:
			if p.Len == nil {
				unify(p.Elt, a.Elem(), fn, bindings)
			}
		case *types.Array:
			if p.Len != nil {
				unify(p.Elt, a.Elem(), fn, bindings)
			}
		}
	case *ast.MapType:
		if m, ok := arg.Underlying().(*types.Map); ok {
			unify(p.Key, m.Key(), fn, bindings)
			unify(p.Value, m.Elem(), fn, bindings)
		}
	case *ast.ChanType:
		if c, ok := arg.Underlying().(*types.Chan); ok {
			unify(p.Value, c.Elem(), fn, bindings)
		}
	case *ast.IndexExpr:
		unifyTypeArgs([]ast.Expr{p.Index}, arg, fn, bindings)
	case *ast.IndexListExpr:
		unifyTypeArgs(p.Indices, arg, fn, bindings)
	}
}

func unifyTypeArgs(params []ast.Expr, arg types.Type, fn *instances.ImplicitFunc, bindings map[string]types.Type) {
	named, ok := arg.(*types.Named)
	if !ok {
		return
	}
	targs := named.TypeArgs()
	for i, p := range params {
		if targs != nil && i < targs.Len() {
			unify(p, targs.At(i), fn, bindings)
		}
	}
}

// typeclassKey renders the concrete type arguments of an implicit
// parameter, e.g. "int" for Show[A] with A bound to int. An unbound type
// parameter is an error; the key then carries the parameter's name.
func (r *rewriter) typeclassKey(ip instances.ImplicitParam, fn *instances.ImplicitFunc, bindings map[string]types.Type) (string, error) {
	parts := make([]string, len(ip.TypeArgs))
	var firstErr error
	for i, ta := range ip.TypeArgs {
		s, err := r.typeKey(ta, fn, bindings)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), firstErr
}

func (r *rewriter) typeKey(expr ast.Expr, fn *instances.ImplicitFunc, bindings map[string]types.Type) (string, error) {
	switch t := expr.(type) {
	case *ast.Ident:
		if fn.IsTypeParam(t.Name) {
			b, ok := bindings[t.Name]
			if !ok {
				return t.Name, errors.Newf("cannot infer type parameter %s of %s", t.Name, fn.Name)
			}
			return r.typeString(b), nil
		}
		return t.Name, nil
	case *ast.ParenExpr:
		return r.typeKey(t.X, fn, bindings)
	case *ast.StarExpr:
		inner, err := r.typeKey(t.X, fn, bindings)
		return "*" + inner, err
	case *ast.ArrayType:
		elem, err := r.typeKey(t.Elt, fn, bindings)
		if t.Len == nil {
			return "[]" + elem, err
		}
		return "[" + types.ExprString(t.Len) + "]" + elem, err
	case *ast.MapType:
		k, err1 := r.typeKey(t.Key, fn, bindings)
		v, err2 := r.typeKey(t.Value, fn, bindings)
		return "map[" + k + "]" + v, errors.CombineErrors(err1, err2)
	case *ast.IndexExpr:
		return r.typeKeyInstance(t.X, []ast.Expr{t.Index}, fn, bindings)
	case *ast.IndexListExpr:
		return r.typeKeyInstance(t.X, t.Indices, fn, bindings)
	}
	return types.ExprString(expr), nil
}

func (r *rewriter) typeKeyInstance(base ast.Expr, args []ast.Expr, fn *instances.ImplicitFunc, bindings map[string]types.Type) (string, error) {
	parts := make([]string, len(args))
	var err error
	for i, a := range args {
		var e error
		parts[i], e = r.typeKey(a, fn, bindings)
		err = errors.CombineErrors(err, e)
	}
	return types.ExprString(base) + "[" + strings.Join(parts, ", ") + "]", err
}

// typeString renders t the way it is written in the rewritten package:
// local names unqualified, imported names by package name
func (r *rewriter) typeString(t types.Type) string {
	return types.TypeString(t, func(p *types.Package) string {
		if p == nil || p == r.opts.Package {
			return ""
		}
		return p.Name()
	})
}

func parseExpr(src string) (ast.Expr, error) {
	return parser.ParseExprFrom(token.NewFileSet(), "", src, 0)
}
