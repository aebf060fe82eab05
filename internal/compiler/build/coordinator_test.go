package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/transform"
	"github.com/conduit-lang/sugar/internal/watch"
)

const prettySrc = `package p

//sugar:typeclass
type Pretty[A any] interface{ Pretty(a A) string }

type prettyInt struct{}

func (prettyInt) Pretty(a int) string { return "int" }

//sugar:instance Pretty int
var PrettyInt Pretty[int] = prettyInt{}

//sugar:implicits
func Render[A any](a A, P Pretty[A]) string { return P.Pretty(a) }
`

const useSrc = `package p

var out = Render(42)
`

func createTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newCoordinator() *Coordinator {
	return NewCoordinator(transform.NewDefault(transform.Config{}), nil)
}

func byPath(results []*FileResult) map[string]*FileResult {
	m := make(map[string]*FileResult, len(results))
	for _, r := range results {
		m[r.Path] = r
	}
	return m
}

func TestCoordinator_ProvidersFirst(t *testing.T) {
	dir := t.TempDir()
	// sorts before the file it depends on
	use := createTestFile(t, dir, "a_use.go", useSrc)
	pretty := createTestFile(t, dir, "pretty.go", prettySrc)

	c := newCoordinator()
	results, metrics, err := c.Build([]string{use, pretty})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, pretty, results[0].Path)
	assert.Equal(t, use, results[1].Path)
	for _, r := range results {
		assert.False(t, r.HasErrors(), "%s: %v", r.Path, r.Err)
	}

	out := results[1].Result
	assert.Contains(t, out.Code, "var out = Render(42, PrettyInt)")
	assert.Empty(t, out.Diagnostics.ByCode(cerrors.ErrUnknownMacro), "sibling declarations are not macros")

	assert.Equal(t, 2, metrics.TotalFiles)
	assert.Equal(t, 2, metrics.CacheMisses)
	assert.Equal(t, 0, metrics.CacheHits)
	assert.Equal(t, 2, metrics.FilesChanged)
	assert.Positive(t, metrics.Expansions)
}

func TestCoordinator_CachesUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	use := createTestFile(t, dir, "a_use.go", useSrc)
	pretty := createTestFile(t, dir, "pretty.go", prettySrc)
	other := createTestFile(t, dir, "other.go", "package p\n\nvar s = stringify(1 + 2)\n")

	c := newCoordinator()
	paths := []string{use, pretty, other}
	_, _, err := c.Build(paths)
	require.NoError(t, err)

	results, metrics, err := c.Build(paths)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.CacheHits)
	assert.Equal(t, 0, metrics.FilesExpanded)
	assert.InDelta(t, 100.0, metrics.CacheHitRate(), 0.001)
	for _, r := range results {
		assert.True(t, r.Cached)
	}

	// a provider change re-expands its dependents only
	createTestFile(t, dir, "pretty.go", prettySrc+"\nvar extra = 1\n")
	results, metrics, err = c.Build(paths)
	require.NoError(t, err)
	got := byPath(results)
	assert.False(t, got[pretty].Cached)
	assert.False(t, got[use].Cached)
	assert.True(t, got[other].Cached)
	assert.Equal(t, 2, metrics.FilesExpanded)
	assert.Contains(t, got[use].Result.Code, "Render(42, PrettyInt)")
	assert.Empty(t, got[pretty].Result.Diagnostics.ByCode(cerrors.ErrDuplicateInstance))
}

func TestCoordinator_InvalidateFile(t *testing.T) {
	dir := t.TempDir()
	use := createTestFile(t, dir, "a_use.go", useSrc)
	pretty := createTestFile(t, dir, "pretty.go", prettySrc)

	c := newCoordinator()
	_, _, err := c.Build([]string{use, pretty})
	require.NoError(t, err)

	assert.Equal(t, []string{pretty, use}, c.InvalidateFile(pretty))
	assert.Equal(t, []string{use}, c.InvalidateFile(use))
	assert.Equal(t, 0, c.GetCacheStats()["results"])
}

func TestCoordinator_Rebuild(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.go", "package p\n\nvar a = stringify(a + 1)\n")

	c := newCoordinator()
	_, _, err := c.Build([]string{a})
	require.NoError(t, err)

	b := createTestFile(t, dir, "b.go", "package p\n\nvar b = stringify(b)\n")
	results, metrics, err := c.Rebuild([]watch.Change{{Path: b}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, metrics.CacheHits)
	assert.Contains(t, byPath(results)[b].Result.Code, `var b = "b"`)

	require.NoError(t, os.Remove(a))
	results, _, err = c.Rebuild([]watch.Change{{Path: a, Removed: true}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b, results[0].Path)
}

func TestCoordinator_SiblingShadowsMacro(t *testing.T) {
	dir := t.TempDir()
	decl := createTestFile(t, dir, "decl.go", "package p\n\nfunc stringify(v int) string { return \"\" }\n")
	use := createTestFile(t, dir, "use.go", "package p\n\nvar s = stringify(1)\n")
	elsewhere := createTestFile(t, filepath.Join(dir, "sub"), "sub.go", "package sub\n\nvar s = stringify(1)\n")

	results, _, err := newCoordinator().Build([]string{decl, use, elsewhere})
	require.NoError(t, err)
	got := byPath(results)
	assert.False(t, got[use].Result.Changed)
	assert.Contains(t, got[elsewhere].Result.Code, `var s = "1"`)
}

func TestCoordinator_Failures(t *testing.T) {
	dir := t.TempDir()
	broken := createTestFile(t, dir, "broken.go", "package p\n\nfunc {\n")
	missing := filepath.Join(dir, "missing.go")

	results, metrics, err := newCoordinator().Build([]string{broken, missing})
	require.NoError(t, err)
	got := byPath(results)

	require.Error(t, got[missing].Err)
	assert.True(t, got[missing].HasErrors())
	require.NotNil(t, got[broken].Result)
	assert.Len(t, got[broken].Result.Diagnostics.ByCode(cerrors.ErrParseFailed), 1)
	assert.Equal(t, 2, metrics.Errors)
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	want := []string{
		createTestFile(t, dir, "a.go", "package p\n"),
		createTestFile(t, dir, "a_test.go", "package p\n"),
	}
	want = append(want, createTestFile(t, filepath.Join(dir, "nested"), "n.go", "package nested\n"))

	for _, skip := range []string{".hidden", "_examples", "testdata", "vendor"} {
		createTestFile(t, filepath.Join(dir, skip), "x.go", "package x\n")
	}
	createTestFile(t, dir, "notes.txt", "")
	createTestFile(t, dir, "_ignored.go", "package p\n")

	files, err := ScanDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, want, files)

	_, err = ScanDirectory(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
