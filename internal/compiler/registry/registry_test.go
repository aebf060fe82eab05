package registry

import (
	"go/ast"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx MacroContext, node ast.Node, args []ast.Expr) (Result, error) {
	return Result{}, nil
}

func TestRegister_GetAndAll(t *testing.T) {
	r := New()
	_, err := r.Register(DefineExpressionMacro("double", noop, WithDescription("doubles"), Cacheable()))
	require.NoError(t, err)
	_, err = r.Register(DefineExpressionMacro("add", noop))
	require.NoError(t, err)
	_, err = r.Register(DefineLabeledBlockMacro("debugOnly", noop, WithContinuations("release")))
	require.NoError(t, err)

	def, ok := r.Get(KindExpression, "double")
	require.True(t, ok)
	assert.Equal(t, "doubles", def.Description)
	assert.True(t, def.Cacheable)

	_, ok = r.Get(KindAttribute, "double")
	assert.False(t, ok, "kinds are separate namespaces")

	assert.Equal(t, []string{"add", "double"}, r.All(KindExpression))
	assert.Equal(t, []string{"debugOnly"}, r.All(KindLabeledBlock))
	assert.Empty(t, r.All(KindType))
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Has("debugOnly", KindExpression, KindLabeledBlock))
}

func TestRegister_LastWriterWins(t *testing.T) {
	r := New()
	first := DefineExpressionMacro("m", noop, WithDescription("first"))
	second := DefineExpressionMacro("m", noop, WithDescription("second"))

	prev, err := r.Register(first)
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = r.Register(second)
	require.NoError(t, err)
	assert.Same(t, first, prev)

	def, _ := r.Get(KindExpression, "m")
	assert.Equal(t, "second", def.Description)
}

func TestRegister_Invalid(t *testing.T) {
	r := New()

	_, err := r.Register(nil)
	assert.Error(t, err)

	_, err = r.Register(DefineExpressionMacro("", noop))
	assert.Error(t, err)

	_, err = r.Register(DefineExpressionMacro("m", nil))
	assert.Error(t, err)

	_, err = r.Register(DefineExpressionMacro("not-an-ident", noop))
	assert.Error(t, err)

	assert.Panics(t, func() { r.MustRegister(DefineTypeMacro("1x", noop)) })
}

func TestClear(t *testing.T) {
	r := New()
	r.MustRegister(DefineTypeMacro("Nullable", noop), DefineDeriveMacro("Eq", noop))
	r.Clear()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(KindType, "Nullable")
	assert.False(t, ok)
}

func TestDefinitions_Sorted(t *testing.T) {
	r := New()
	r.MustRegister(DefineDeriveMacro("Show", noop), DefineDeriveMacro("Eq", noop))
	defs := r.Definitions(KindDerive)
	require.Len(t, defs, 2)
	assert.Equal(t, "Eq", defs[0].Name)
	assert.Equal(t, KindDerive, defs[0].Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "taggedTemplate", KindTaggedTemplate.String())
	assert.Equal(t, "labeledBlock", KindLabeledBlock.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestResultHelpers(t *testing.T) {
	assert.True(t, Result{}.Empty())
	assert.False(t, StmtsResult().Empty(), "an empty statement list removes the block")
	assert.False(t, DeclsResult().Empty())
	assert.True(t, AppendDecls().KeepOriginal)
	assert.NotNil(t, ExprResult(ast.NewIdent("x")).Expr)
}

func TestLabeledBlock_Continuation(t *testing.T) {
	lb := &LabeledBlock{
		Stmt: &ast.LabeledStmt{Label: ast.NewIdent("debugOnly"), Stmt: &ast.EmptyStmt{}},
		Continuations: []*ast.LabeledStmt{
			{Label: ast.NewIdent("release"), Stmt: &ast.EmptyStmt{}},
		},
	}
	c, ok := lb.Continuation("release")
	require.True(t, ok)
	assert.Equal(t, "release", c.Label.Name)

	_, ok = lb.Continuation("other")
	assert.False(t, ok)
}
