package macros

import (
	"fmt"
	"go/ast"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

func labeledBlock(name string, node ast.Node) (*registry.LabeledBlock, error) {
	lb, ok := node.(*registry.LabeledBlock)
	if !ok {
		return nil, errors.Newf("%s: unexpected %T", name, node)
	}
	return lb, nil
}

func bodyOf(s ast.Stmt) []ast.Stmt {
	if b, ok := s.(*ast.BlockStmt); ok {
		return b.List
	}
	return []ast.Stmt{s}
}

// timed wraps the block with a clock and logs the elapsed time when the
// block falls through its end. Returning from inside the block skips the log.
func timed(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	lb, err := labeledBlock("timed", node)
	if err != nil {
		return registry.Result{}, err
	}

	start := ctx.GenerateUniqueName("start").Name
	timePkg := ctx.AddImport("time")
	logPkg := ctx.AddImport("log")
	where := filepath.Base(ctx.FileName())
	if lb.Pos().IsValid() {
		where = fmt.Sprintf("%s:%d", where, ctx.Fset().Position(lb.Pos()).Line)
	}

	head, err := ctx.ParseStatements(fmt.Sprintf("%s := %s.Now()", start, timePkg))
	if err != nil {
		return registry.Result{}, err
	}
	tail, err := ctx.ParseStatements(fmt.Sprintf("%s.Printf(%q, %s.Since(%s))",
		logPkg, "timed block at "+where+" took %s", timePkg, start))
	if err != nil {
		return registry.Result{}, err
	}

	list := append(head, bodyOf(lb.Stmt.Stmt)...)
	list = append(list, tail...)
	return registry.StmtsResult(&ast.BlockStmt{List: list}), nil
}

// debugOnly keeps its block in debug builds. Otherwise the block of a
// following release: label is kept instead, if there is one.
func debugOnly(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	lb, err := labeledBlock("debugOnly", node)
	if err != nil {
		return registry.Result{}, err
	}
	if ctx.Debug() {
		return registry.StmtsResult(lb.Stmt.Stmt), nil
	}
	if release, ok := lb.Continuation("release"); ok {
		return registry.StmtsResult(release.Stmt), nil
	}
	return registry.StmtsResult(), nil
}
