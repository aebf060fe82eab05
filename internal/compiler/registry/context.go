package registry

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"

	"go.uber.org/zap"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/hygiene"
	"github.com/conduit-lang/sugar/internal/compiler/instances"
)

// MacroContext is what an expand function sees of the compilation. Node
// factories parse Go source into nodes without positions; diagnostics are
// reported against the marker's original location.
type MacroContext interface {
	// Context carries the evaluation deadline for Evaluating macros
	Context() context.Context

	Fset() *token.FileSet
	File() *ast.File
	FileName() string
	// TypesInfo is the best-effort type information of the pre-expansion file
	TypesInfo() *types.Info
	// TypeOf returns the type of e, or nil when e is synthetic or untyped
	TypeOf(e ast.Expr) types.Type

	// Source returns the original text of n, or its printed form if synthetic
	Source(n ast.Node) string
	// Print formats n as Go source
	Print(n ast.Node) string

	ParseExpr(src string) (ast.Expr, error)
	ParseStatements(src string) ([]ast.Stmt, error)
	ParseDecls(src string) ([]ast.Decl, error)

	// GenerateUniqueName returns a hygienic identifier derived from base
	GenerateUniqueName(base string) *ast.Ident
	Hygiene() *hygiene.Context

	Instances() *instances.Registry
	// Resolve summons the instance of typeclass for the given type and returns
	// the expression that references it, adding any import it needs.
	Resolve(typeclass, typ string) (ast.Expr, error)
	// AddImport ensures path is imported and returns the name to qualify it with
	AddImport(path string) string

	ReportError(n ast.Node, format string, args ...interface{})
	ReportWarning(n ast.Node, format string, args ...interface{})
	// Report adds a structured diagnostic; a zero location is filled in from n
	Report(n ast.Node, d *cerrors.CompilerError)

	Logger() *zap.Logger
	Debug() bool
}
