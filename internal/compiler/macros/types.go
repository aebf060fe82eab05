package macros

import (
	"go/ast"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

func nullable(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	t, err := oneArg("Nullable", args)
	if err != nil {
		return registry.Result{}, err
	}
	return registry.ExprResult(&ast.StarExpr{X: t}), nil
}

func readonly(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	t, err := oneArg("Readonly", args)
	if err != nil {
		return registry.Result{}, err
	}
	return registry.ExprResult(t), nil
}
