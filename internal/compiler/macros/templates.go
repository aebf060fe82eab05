package macros

import (
	"go/ast"
	"go/token"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// fstr turns fstr(`total: ${n} items`) into fmt.Sprintf("total: %v items", n).
// A template without interpolations stays a plain string literal.
func fstr(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	tmpl, ok := node.(*registry.Template)
	if !ok {
		return registry.Result{}, errors.Newf("fstr: unexpected %T", node)
	}
	if len(tmpl.Exprs) == 0 {
		return registry.ExprResult(stringLit(strings.Join(tmpl.Strings, ""))), nil
	}

	var format strings.Builder
	for i, s := range tmpl.Strings {
		format.WriteString(strings.ReplaceAll(s, "%", "%%"))
		if i < len(tmpl.Exprs) {
			format.WriteString("%v")
		}
	}
	fmtPkg := ctx.AddImport("fmt")
	return registry.ExprResult(&ast.CallExpr{
		Fun:  &ast.SelectorExpr{X: ast.NewIdent(fmtPkg), Sel: ast.NewIdent("Sprintf")},
		Args: append([]ast.Expr{stringLit(format.String())}, tmpl.Exprs...),
	}), nil
}

// regex compiles its pattern at expansion time so that a bad pattern is a
// diagnostic instead of a panic at startup
func regex(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	tmpl, ok := node.(*registry.Template)
	if !ok {
		return registry.Result{}, errors.Newf("regex: unexpected %T", node)
	}
	if len(tmpl.Exprs) != 0 {
		return registry.Result{}, errors.New("regex patterns cannot interpolate expressions")
	}
	pattern := tmpl.Strings[0]
	if _, err := regexp.Compile(pattern); err != nil {
		return registry.Result{}, errors.Wrapf(err, "invalid pattern %q", pattern)
	}

	lit := &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(pattern)}
	if strconv.CanBackquote(pattern) {
		lit.Value = "`" + pattern + "`"
	}
	re := ctx.AddImport("regexp")
	return registry.ExprResult(&ast.CallExpr{
		Fun:  &ast.SelectorExpr{X: ast.NewIdent(re), Sel: ast.NewIdent("MustCompile")},
		Args: []ast.Expr{lit},
	}), nil
}
