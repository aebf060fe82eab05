package instances

import (
	"errors"
	"go/ast"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsBuiltins(t *testing.T) {
	r := New()

	for _, tc := range []string{"Eq", "Ord", "Show", "Hash"} {
		assert.True(t, r.IsTypeclass(tc), tc)
	}

	inst, ok := r.Lookup("Show", "int")
	require.True(t, ok)
	assert.Equal(t, "typeclass.ShowFmt[int]()", inst.Expr)
	assert.True(t, inst.Builtin)
	assert.Equal(t, []string{TypeclassPackage}, inst.Imports)

	inst, ok = r.Lookup("Show", "string")
	require.True(t, ok)
	assert.Equal(t, "typeclass.ShowString()", inst.Expr)

	inst, ok = r.Lookup("Ord", "bool")
	require.True(t, ok)
	assert.Equal(t, "typeclass.OrdBool()", inst.Expr)
}

func TestNormalizeType_Aliases(t *testing.T) {
	r := New()
	runeInst, ok := r.Lookup("Eq", "rune")
	require.True(t, ok)
	int32Inst, ok := r.Lookup("Eq", "int32")
	require.True(t, ok)
	assert.Same(t, runeInst, int32Inst)

	assert.Equal(t, "uint8", NormalizeType(" byte "))
	assert.Equal(t, "any", NormalizeType("interface{}"))
}

func TestSummon(t *testing.T) {
	r := NewEmpty()
	r.RegisterTypeclass(Typeclass{Name: "Show", TypeParams: 1})
	r.RegisterInstance(Instance{Typeclass: "Show", ForType: "Point", Name: "ShowPoint"})

	inst, err := r.Summon("Show", "Point")
	require.NoError(t, err)
	assert.Equal(t, "ShowPoint", inst.Expr, "Expr defaults to the instance name")
	assert.Equal(t, "Show[Point]", inst.String())
	assert.Equal(t, 1, r.SummonCount())

	_, err = r.Summon("Show", "Line")
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "Show", resErr.Typeclass)
	assert.Equal(t, "Line", resErr.Type)
	assert.Contains(t, err.Error(), "Show")
	assert.Contains(t, err.Error(), "Line")
	assert.Equal(t, 2, r.SummonCount())
}

func TestResolutionError_WithParam(t *testing.T) {
	err := &ResolutionError{Param: "S", Typeclass: "Show", Type: "Foo"}
	assert.Equal(t, "cannot resolve implicit parameter S: no instance of Show for type Foo", err.Error())
}

func TestRegisterInstance_LastWriterWins(t *testing.T) {
	r := NewEmpty()
	assert.Nil(t, r.RegisterInstance(Instance{Typeclass: "Eq", ForType: "T", Name: "first"}))

	prev := r.RegisterInstance(Instance{Typeclass: "Eq", ForType: "T", Name: "second"})
	require.NotNil(t, prev)
	assert.Equal(t, "first", prev.Name)

	inst, ok := r.Lookup("Eq", "T")
	require.True(t, ok)
	assert.Equal(t, "second", inst.Name)
}

func TestInstances_SortedByType(t *testing.T) {
	r := NewEmpty()
	r.RegisterInstance(Instance{Typeclass: "Eq", ForType: "b", Name: "eqB"})
	r.RegisterInstance(Instance{Typeclass: "Eq", ForType: "a", Name: "eqA"})
	r.RegisterInstance(Instance{Typeclass: "Show", ForType: "a", Name: "showA"})

	got := r.Instances("Eq")
	require.Len(t, got, 2)
	assert.Equal(t, "eqA", got[0].Name)
	assert.Equal(t, "eqB", got[1].Name)
}

func TestReset(t *testing.T) {
	r := New()
	r.RegisterTypeclass(Typeclass{Name: "Monoid", TypeParams: 1})
	r.RegisterInstance(Instance{Typeclass: "Monoid", ForType: "int", Name: "sumInt"})
	r.MarkImplicit(&ImplicitFunc{Name: "show"})
	_, _ = r.Summon("Eq", "int")

	r.Reset()
	assert.False(t, r.IsTypeclass("Monoid"))
	assert.True(t, r.IsTypeclass("Eq"))
	assert.False(t, r.HasImplicits())
	assert.Equal(t, 0, r.SummonCount())
	assert.Equal(t, []string{"Eq", "Hash", "Ord", "Show"}, r.Typeclasses())
}

func TestImplicitFunc(t *testing.T) {
	fn := &ImplicitFunc{
		Name:       "show",
		TypeParams: []string{"A"},
		Params: []Param{
			{Name: "a", Type: ast.NewIdent("A")},
			{Name: "S", Type: &ast.IndexExpr{X: ast.NewIdent("Show"), Index: ast.NewIdent("A")}},
		},
		Implicits: []ImplicitParam{{Index: 1, Name: "S", Typeclass: "Show", TypeArgs: []ast.Expr{ast.NewIdent("A")}}},
	}
	assert.Equal(t, 1, fn.Explicit())
	assert.True(t, fn.IsTypeParam("A"))
	assert.False(t, fn.IsTypeParam("B"))

	r := NewEmpty()
	r.MarkImplicit(fn)
	got, ok := r.Implicits("show")
	require.True(t, ok)
	assert.Same(t, fn, got)
	assert.True(t, r.HasImplicits())
}
