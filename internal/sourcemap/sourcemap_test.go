package sourcemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVLQ(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{-16, "hB"},
		{123, "2H"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeVLQ(tt.value), "EncodeVLQ(%d)", tt.value)
	}
}

func TestDecodeVLQ_RoundTrip(t *testing.T) {
	values := []int{0, 1, -1, 31, -32, 1024, -99999, 7}
	var encoded string
	for _, v := range values {
		encoded += EncodeVLQ(v)
	}
	decoded, err := DecodeVLQ(encoded)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestDecodeVLQ_Errors(t *testing.T) {
	_, err := DecodeVLQ("!")
	assert.Error(t, err)

	_, err = DecodeVLQ("g")
	assert.Error(t, err)
}

func TestBuilder_BuildAndDecode(t *testing.T) {
	b := NewBuilder("main.go")
	src := b.AddSource("main.go", "const x = macro();")
	b.AddMapping(0, 0, src, 0, 0)
	b.AddMapping(0, 10, src, 0, 10)
	b.AddMapping(0, 12, src, 0, 17)
	b.AddNamedMapping(2, 4, src, 1, 0, "macro")

	m := b.Build()
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, []string{"main.go"}, m.Sources)
	assert.Equal(t, []string{"macro"}, m.Names)
	assert.True(t, IsValidMappings(m.Mappings))

	segs, err := m.Decode()
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, Segment{GeneratedLine: 0, GeneratedColumn: 12, SourceLine: 0, SourceColumn: 17, NameIndex: -1}, segs[2])
	assert.Equal(t, 2, segs[3].GeneratedLine)
	assert.Equal(t, 0, segs[3].NameIndex)
}

func TestMap_OriginalPosition(t *testing.T) {
	b := NewBuilder("out.go")
	src := b.AddSource("in.go", "")
	b.AddMapping(0, 0, src, 0, 0)
	b.AddMapping(0, 10, src, 0, 10)
	b.AddMapping(0, 12, src, 0, 17)
	b.AddMapping(1, 0, src, 1, 0)
	m := b.Build()

	source, line, col, err := m.OriginalPosition(0, 13)
	require.NoError(t, err)
	assert.Equal(t, "in.go", source)
	assert.Equal(t, 0, line)
	assert.Equal(t, 18, col)

	_, line, col, err = m.OriginalPosition(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, line)
	assert.Equal(t, 3, col)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	b := NewBuilder("gen.go")
	src := b.AddSource("orig.go", "package p")
	b.AddMapping(0, 0, src, 4, 2)
	r.Register("gen.go", b.Build())

	m, ok := r.Get("gen.go")
	require.True(t, ok)
	assert.Equal(t, "gen.go", m.File)

	source, line, col, err := r.OriginalPosition("gen.go", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "orig.go", source)
	assert.Equal(t, 4, line)
	assert.Equal(t, 2, col)

	_, _, _, err = r.OriginalPosition("missing.go", 0, 0)
	assert.Error(t, err)
}

func TestRegistry_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder("a.go")
	src := b.AddSource("a.go", "")
	b.AddMapping(0, 0, src, 0, 0)
	require.NoError(t, b.Build().SaveToFile(filepath.Join(dir, "a.go.map")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))

	r := NewRegistry()
	require.NoError(t, r.LoadFromDirectory(dir))
	_, ok := r.Get("a.go")
	assert.True(t, ok)
}

func TestParse_RejectsVersion(t *testing.T) {
	_, err := Parse([]byte(`{"version":2,"sources":[],"names":[],"mappings":""}`))
	assert.Error(t, err)

	m, err := Parse([]byte(`{"version":3,"sources":["a"],"names":[],"mappings":"AAAA"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, m.Sources)
}
