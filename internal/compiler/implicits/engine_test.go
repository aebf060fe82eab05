package implicits

import (
	"bytes"
	"errors"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/sugar/internal/compiler/instances"
)

type fixture struct {
	fset   *token.FileSet
	file   *ast.File
	reg    *instances.Registry
	engine *Engine
}

func setup(t *testing.T, src string, implicitFuncs ...string) *fixture {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	require.NoError(t, err)

	reg := instances.NewEmpty()
	reg.RegisterTypeclass(instances.Typeclass{Name: "Show", TypeParams: 1})
	reg.RegisterTypeclass(instances.Typeclass{Name: "Eq", TypeParams: 1})
	reg.RegisterInstance(instances.Instance{Typeclass: "Show", ForType: "int", Name: "showInt"})
	reg.RegisterInstance(instances.Instance{Typeclass: "Show", ForType: "string", Name: "showString"})
	reg.RegisterInstance(instances.Instance{Typeclass: "Eq", ForType: "int", Name: "eqInt"})

	engine := New(reg, nil)
	for _, name := range implicitFuncs {
		decl := findFunc(t, file, name)
		_, err := engine.CollectFunc(decl, "p.go", nil)
		require.NoError(t, err, name)
	}
	return &fixture{fset: fset, file: file, reg: reg, engine: engine}
}

func findFunc(t *testing.T, file *ast.File, name string) *ast.FuncDecl {
	t.Helper()
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Name.Name == name {
			return fd
		}
	}
	t.Fatalf("no func %s", name)
	return nil
}

func (f *fixture) print(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, format.Node(&buf, f.fset, f.file))
	return buf.String()
}

const propagationSrc = `package p

type Show[A any] interface{ Show(a A) string }

func inner[A any](a A, S Show[A]) string { return S.Show(a) }

func outer[A any](a A, S Show[A]) string { return inner(a) }

var r = outer(42)
`

func TestRewriteFile_PropagatesInsteadOfSummoning(t *testing.T) {
	f := setup(t, propagationSrc, "inner", "outer")

	failures := f.engine.RewriteFile(f.file, Options{})
	require.Empty(t, failures)

	out := f.print(t)
	assert.Contains(t, out, "return inner(a, S)")
	assert.Contains(t, out, "var r = outer(42, showInt)")
	// the outer call site is the only resolution; inner reuses S
	assert.Equal(t, 1, f.reg.SummonCount())
}

func TestRewriteFile_WithTypeInfo(t *testing.T) {
	src := propagationSrc + "\nvar s = \"x\"\nvar q = outer(s)\n"
	f := setup(t, src, "inner", "outer")

	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{Error: func(error) {}}
	pkg, _ := conf.Check("p", f.fset, []*ast.File{f.file}, info)

	failures := f.engine.RewriteFile(f.file, Options{Info: info, Package: pkg})
	require.Empty(t, failures)

	out := f.print(t)
	assert.Contains(t, out, "return inner(a, S)")
	assert.Contains(t, out, "var q = outer(s, showString)")
	assert.Equal(t, 2, f.reg.SummonCount())
}

func TestRewriteFile_ExplicitOverride(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func inner[A any](a A, S Show[A]) string { return S.Show(a) }

func pair[A any](a A, b string, S Show[A]) string { return b }

var custom Show[int]

var r = inner(1, custom)

var p2 = pair(1, inner(2), custom)
`
	f := setup(t, src, "inner", "pair")

	failures := f.engine.RewriteFile(f.file, Options{})
	require.Empty(t, failures)

	out := f.print(t)
	assert.Contains(t, out, "var r = inner(1, custom)")
	// the explicit instance also serves the nested call in pair's arguments
	assert.Contains(t, out, "var p2 = pair(1, inner(2, custom), custom)")
	assert.Equal(t, 0, f.reg.SummonCount())
}

func TestRewriteFile_ResolutionFailure(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

type Point struct{ X int }

func describe[A any](a A, S Show[A]) string { return S.Show(a) }

var r = describe(Point{X: 1})
`
	f := setup(t, src, "describe")

	failures := f.engine.RewriteFile(f.file, Options{})
	require.Len(t, failures, 1)

	var resErr *instances.ResolutionError
	require.True(t, errors.As(failures[0], &resErr))
	assert.Equal(t, "S", resErr.Param)
	assert.Equal(t, "Show", resErr.Typeclass)
	assert.Equal(t, "Point", resErr.Type)
	assert.Contains(t, f.print(t), "var r = describe(Point{X: 1})", "failed calls are left as written")
}

func TestRewriteFile_LaterFailureKeepsCallAsWritten(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }
type Eq[A any] interface{ Equals(x, y A) bool }

func both[A any](a A, S Show[A], E Eq[A]) string { return "" }

var r = both("x")
`
	f := setup(t, src, "both")

	// Show[string] resolves, Eq[string] does not
	failures := f.engine.RewriteFile(f.file, Options{})
	require.Len(t, failures, 1)

	var resErr *instances.ResolutionError
	require.True(t, errors.As(failures[0], &resErr))
	assert.Equal(t, "E", resErr.Param)
	assert.Equal(t, "Eq", resErr.Typeclass)

	out := f.print(t)
	assert.Contains(t, out, `var r = both("x")`)
	assert.NotContains(t, out, "showString")
}

func TestRewriteFile_NoTrailingComma(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func describe[A any](a A, S Show[A]) string { return "" }

var r = describe(1) // one
`
	f := setup(t, src, "describe")
	require.Empty(t, f.engine.RewriteFile(f.file, Options{}))

	out := f.print(t)
	assert.Contains(t, out, "var r = describe(1, showInt)")
	assert.NotContains(t, out, ",\n)")
	assert.Contains(t, out, "// one")
}

func TestRewriteFile_DeclarationOrder(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }
type Eq[A any] interface{ Equals(x, y A) bool }

func both[A any](a A, E Eq[A], S Show[A]) string { return "" }

var r = both(1)
`
	f := setup(t, src, "both")
	require.Empty(t, f.engine.RewriteFile(f.file, Options{}))
	assert.Contains(t, f.print(t), "var r = both(1, eqInt, showInt)")
}

func TestRewriteFile_PartiallyExplicit(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }
type Eq[A any] interface{ Equals(x, y A) bool }

func both[A any](a A, E Eq[A], S Show[A]) string { return "" }

var myEq Eq[int]

var r = both(1, myEq)
`
	f := setup(t, src, "both")
	require.Empty(t, f.engine.RewriteFile(f.file, Options{}))
	assert.Contains(t, f.print(t), "var r = both(1, myEq, showInt)")
	assert.Equal(t, 1, f.reg.SummonCount())
}

func TestRewriteFile_ExplicitInstantiation(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func zero[A any](S Show[A]) string { return "" }

var r = zero[string]()
`
	f := setup(t, src, "zero")
	require.Empty(t, f.engine.RewriteFile(f.file, Options{}))
	assert.Contains(t, f.print(t), "var r = zero[string](showString)")
}

func TestRewriteFile_UninferableTypeParameter(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func zero[A any](S Show[A]) string { return "" }

var r = zero()
`
	f := setup(t, src, "zero")
	failures := f.engine.RewriteFile(f.file, Options{})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "implicit parameter S")
	assert.Equal(t, 0, f.reg.SummonCount())
}

func TestCollectFunc(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func named[A any](a A, S Show[A], T Show[A]) {}

func notTrailing[A any](S Show[A], a A) {}

func (r recv) method(S Show[int]) {}

func variadic(xs ...int) {}

func plain(a int) {}
`
	f := setup(t, src)

	fn, err := f.engine.CollectFunc(findFunc(t, f.file, "named"), "p.go", []string{"T"})
	require.NoError(t, err)
	require.Len(t, fn.Implicits, 1)
	assert.Equal(t, "T", fn.Implicits[0].Name)
	assert.Equal(t, 2, fn.Explicit())

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "named"), "p.go", []string{"a"})
	assert.ErrorContains(t, err, "not a typeclass")

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "named"), "p.go", []string{"missing"})
	assert.ErrorContains(t, err, "no parameter missing")

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "notTrailing"), "p.go", nil)
	assert.ErrorContains(t, err, "must follow")

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "method"), "p.go", nil)
	assert.ErrorContains(t, err, "method")

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "variadic"), "p.go", nil)
	assert.ErrorContains(t, err, "variadic")

	_, err = f.engine.CollectFunc(findFunc(t, f.file, "plain"), "p.go", nil)
	assert.ErrorContains(t, err, "no typeclass parameters")
}

func TestRewriteFile_ShadowedByLocal(t *testing.T) {
	src := `package p

type Show[A any] interface{ Show(a A) string }

func describe[A any](a A, S Show[A]) string { return "" }

func use() string {
	describe := func(a int) string { return "" }
	return describe(1)
}
`
	f := setup(t, src, "describe")
	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	pkg, _ := (&types.Config{Error: func(error) {}}).Check("p", f.fset, []*ast.File{f.file}, info)

	require.Empty(t, f.engine.RewriteFile(f.file, Options{Info: info, Package: pkg}))
	assert.True(t, strings.Contains(f.print(t), "return describe(1)\n"))
}
