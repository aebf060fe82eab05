package macros

import (
	"bytes"
	"encoding/json"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

func oneArg(name string, args []ast.Expr) (ast.Expr, error) {
	if len(args) != 1 {
		return nil, errors.Newf("%s takes exactly one argument, got %d", name, len(args))
	}
	return args[0], nil
}

func stringify(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	arg, err := oneArg("stringify", args)
	if err != nil {
		return registry.Result{}, err
	}
	return registry.ExprResult(stringLit(ctx.Source(arg))), nil
}

// comptime replaces a constant expression with its value. The type
// checker's value is used when it has one; otherwise the expression is
// evaluated on its own, where only the universe scope is visible.
func comptime(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	arg, err := oneArg("comptime", args)
	if err != nil {
		return registry.Result{}, err
	}

	var tv types.TypeAndValue
	if info := ctx.TypesInfo(); info != nil {
		tv = info.Types[arg]
	}
	if tv.Value == nil {
		src := ctx.Source(arg)
		tv, err = types.Eval(token.NewFileSet(), nil, token.NoPos, src)
		if err != nil {
			return registry.Result{}, errors.Wrapf(err, "comptime %s", src)
		}
	}
	if err := ctx.Context().Err(); err != nil {
		return registry.Result{}, err
	}
	if tv.Value == nil {
		return registry.Result{}, errors.Newf("comptime: %s is not a constant expression", ctx.Source(arg))
	}

	expr, err := constantExpr(tv.Value)
	if err != nil {
		return registry.Result{}, err
	}
	if basic, ok := tv.Type.(*types.Basic); ok && basic.Info()&types.IsUntyped == 0 && !isDefault(basic) {
		expr = &ast.CallExpr{Fun: ast.NewIdent(basic.Name()), Args: []ast.Expr{expr}}
	}
	return registry.ExprResult(expr), nil
}

// isDefault reports whether b is the type an untyped constant of its kind
// defaults to, so that the literal alone has the same type
func isDefault(b *types.Basic) bool {
	switch b.Kind() {
	case types.Int, types.Float64, types.String, types.Bool:
		return true
	}
	return false
}

func constantExpr(v constant.Value) (ast.Expr, error) {
	switch v.Kind() {
	case constant.Bool:
		return ast.NewIdent(strconv.FormatBool(constant.BoolVal(v))), nil
	case constant.String:
		return stringLit(constant.StringVal(v)), nil
	case constant.Int:
		return &ast.BasicLit{Kind: token.INT, Value: v.ExactString()}, nil
	case constant.Float:
		f, _ := constant.Float64Val(v)
		if math.IsInf(f, 0) || (f == 0 && constant.Sign(v) != 0) {
			return nil, errors.Newf("comptime: %s is out of float64 range", v.ExactString())
		}
		return floatLit(f), nil
	}
	return nil, errors.Newf("comptime: cannot emit a %s constant", v.Kind())
}

func stringLit(s string) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

// floatLit formats f so that it stays a floating-point constant
func floatLit(f float64) *ast.BasicLit {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return &ast.BasicLit{Kind: token.FLOAT, Value: s}
}

// includePath returns the file named by a string literal argument,
// relative to the directory of the file being expanded
func includePath(ctx registry.MacroContext, name string, args []ast.Expr) (string, error) {
	arg, err := oneArg(name, args)
	if err != nil {
		return "", err
	}
	lit, ok := arg.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", errors.Newf("%s needs a string literal path", name)
	}
	path, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", errors.Wrapf(err, "%s path", name)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(ctx.FileName()), path)
	}
	return path, nil
}

func includeStr(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	path, err := includePath(ctx, "includeStr", args)
	if err != nil {
		return registry.Result{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return registry.Result{}, errors.Wrap(err, "includeStr")
	}
	return registry.ExprResult(stringLit(string(data))), nil
}

type decoder struct {
	name   string
	decode func(data []byte) (interface{}, error)
}

var decodeJSON = decoder{name: "includeJSON", decode: func(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	err := dec.Decode(&v)
	return v, err
}}

var decodeYAML = decoder{name: "includeYAML", decode: func(data []byte) (interface{}, error) {
	var v interface{}
	err := yaml.Unmarshal(data, &v)
	return v, err
}}

// includeData embeds a data file as a literal of nested map[string]any,
// []any and basic values. Map keys are emitted sorted.
func includeData(d decoder) registry.ExpandFunc {
	return func(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
		path, err := includePath(ctx, d.name, args)
		if err != nil {
			return registry.Result{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return registry.Result{}, errors.Wrap(err, d.name)
		}
		v, err := d.decode(data)
		if err != nil {
			return registry.Result{}, errors.Wrapf(err, "%s %s", d.name, filepath.Base(path))
		}
		expr, err := dataExpr(v)
		if err != nil {
			return registry.Result{}, errors.Wrapf(err, "%s %s", d.name, filepath.Base(path))
		}
		return registry.ExprResult(expr), nil
	}
}

func dataExpr(v interface{}) (ast.Expr, error) {
	switch v := v.(type) {
	case nil:
		return ast.NewIdent("nil"), nil
	case bool:
		return ast.NewIdent(strconv.FormatBool(v)), nil
	case string:
		return stringLit(v), nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return &ast.BasicLit{Kind: token.INT, Value: v.String()}, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "number %s", v)
		}
		return floatLit(f), nil
	case int:
		return &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(v)}, nil
	case int64:
		return &ast.BasicLit{Kind: token.INT, Value: strconv.FormatInt(v, 10)}, nil
	case uint64:
		return &ast.BasicLit{Kind: token.INT, Value: strconv.FormatUint(v, 10)}, nil
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, errors.Newf("%v has no constant form", v)
		}
		return floatLit(v), nil
	case []interface{}:
		lit := &ast.CompositeLit{Type: &ast.ArrayType{Elt: ast.NewIdent("any")}}
		for _, e := range v {
			expr, err := dataExpr(e)
			if err != nil {
				return nil, err
			}
			lit.Elts = append(lit.Elts, expr)
		}
		return lit, nil
	case map[string]interface{}:
		return mapExpr(v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, errors.Newf("map key %v is not a string", k)
			}
			m[ks] = e
		}
		return mapExpr(m)
	}
	return nil, errors.Newf("unsupported value of type %T", v)
}

func mapExpr(m map[string]interface{}) (ast.Expr, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lit := &ast.CompositeLit{Type: &ast.MapType{Key: ast.NewIdent("string"), Value: ast.NewIdent("any")}}
	for _, k := range keys {
		val, err := dataExpr(m[k])
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", k)
		}
		lit.Elts = append(lit.Elts, &ast.KeyValueExpr{Key: stringLit(k), Value: val})
	}
	return lit, nil
}

// summon resolves summon[TC[T]]() to the instance expression
func summon(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	call, ok := node.(*ast.CallExpr)
	if !ok {
		return registry.Result{}, errors.Newf("summon: unexpected %T", node)
	}
	targs := registry.TypeArgs(call)
	if len(targs) != 1 || len(args) != 0 {
		return registry.Result{}, errors.New("summon takes one type argument and no arguments, as in summon[Show[int]]()")
	}
	tc, typ, ok := typeclassApplication(targs[0])
	if !ok {
		return registry.Result{}, errors.Newf("summon: %s is not a typeclass application", ctx.Source(targs[0]))
	}
	expr, err := ctx.Resolve(tc, typ)
	if err != nil {
		return registry.Result{}, err
	}
	return registry.ExprResult(expr), nil
}

// typeclassApplication splits TC[T] or pkg.TC[A, B] into the typeclass name
// and its type arguments
func typeclassApplication(e ast.Expr) (string, string, bool) {
	var base ast.Expr
	var targs []ast.Expr
	switch t := e.(type) {
	case *ast.IndexExpr:
		base, targs = t.X, []ast.Expr{t.Index}
	case *ast.IndexListExpr:
		base, targs = t.X, t.Indices
	default:
		return "", "", false
	}

	var name string
	switch b := base.(type) {
	case *ast.Ident:
		name = b.Name
	case *ast.SelectorExpr:
		name = b.Sel.Name
	default:
		return "", "", false
	}
	parts := make([]string, len(targs))
	for i, a := range targs {
		parts[i] = types.ExprString(a)
	}
	return name, strings.Join(parts, ", "), true
}
