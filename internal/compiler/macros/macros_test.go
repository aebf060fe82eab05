package macros

import (
	"bytes"
	"encoding/json"
	"go/ast"
	"go/constant"
	"go/format"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

func printExpr(t *testing.T, e ast.Expr) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, format.Node(&buf, token.NewFileSet(), e))
	return buf.String()
}

func TestBuiltins_CoverEveryKind(t *testing.T) {
	reg := registry.New()
	RegisterBuiltins(reg)
	assert.Equal(t, len(Builtins()), reg.Len())

	for _, kind := range []registry.Kind{
		registry.KindExpression,
		registry.KindAttribute,
		registry.KindTaggedTemplate,
		registry.KindDerive,
		registry.KindLabeledBlock,
		registry.KindType,
	} {
		assert.NotEmpty(t, reg.All(kind), kind.String())
	}

	def, ok := reg.Get(registry.KindLabeledBlock, "debugOnly")
	require.True(t, ok)
	assert.Equal(t, []string{"release"}, def.Continuations)
	assert.Equal(t, Package, def.SourcePackage)

	comptimeDef, ok := reg.Get(registry.KindExpression, "comptime")
	require.True(t, ok)
	assert.True(t, comptimeDef.Evaluating)
	assert.False(t, comptimeDef.Cacheable)
}

func TestInstanceName(t *testing.T) {
	tests := []struct {
		typeclass, typ, want string
	}{
		{"Eq", "Point", "EqPoint"},
		{"Eq", "point", "eqPoint"},
		{"Generic", "pair", "genericPair"},
		{"Show", "Ünicode", "ShowÜnicode"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, instanceName(tt.typeclass, tt.typ))
	}
}

func TestTypeclassApplication(t *testing.T) {
	tests := []struct {
		src, tc, typ string
		ok           bool
	}{
		{"Show[int]", "Show", "int", true},
		{"typeclass.Eq[[]string]", "Eq", "[]string", true},
		{"Convert[int, string]", "Convert", "int, string", true},
		{"Show", "", "", false},
		{"f()[int]", "", "", false},
	}
	for _, tt := range tests {
		expr, err := parser.ParseExpr(tt.src)
		require.NoError(t, err, tt.src)
		tc, typ, ok := typeclassApplication(expr)
		assert.Equal(t, tt.ok, ok, tt.src)
		assert.Equal(t, tt.tc, tc, tt.src)
		assert.Equal(t, tt.typ, typ, tt.src)
	}
}

func TestConstantExpr(t *testing.T) {
	tests := []struct {
		value constant.Value
		want  string
	}{
		{constant.MakeInt64(1024), "1024"},
		{constant.MakeFloat64(2), "2.0"},
		{constant.MakeFloat64(0.25), "0.25"},
		{constant.MakeString("a\"b"), `"a\"b"`},
		{constant.MakeBool(true), "true"},
	}
	for _, tt := range tests {
		expr, err := constantExpr(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, printExpr(t, expr))
	}

	_, err := constantExpr(constant.MakeImag(constant.MakeInt64(1)))
	assert.Error(t, err)
}

func TestDataExpr(t *testing.T) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(`{"b": [1, 2.5, "x"], "a": {"ok": true, "none": null}}`)))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v))

	expr, err := dataExpr(v)
	require.NoError(t, err)
	assert.Equal(t,
		`map[string]any{"a": map[string]any{"none": nil, "ok": true}, "b": []any{1, 2.5, "x"}}`,
		printExpr(t, expr))

	_, err = dataExpr(map[interface{}]interface{}{1: "x"})
	assert.ErrorContains(t, err, "not a string")
}
