package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the watcher's callback goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--no-color", "-C", t.TempDir()}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return execute(t, context.Background(), args...)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "sugar", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"version", "expand", "audit", "macros", "watch"} {
		assert.Contains(t, names, expected)
	}
	for _, flag := range []string{"dir", "verbose", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sugar version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: go")
}

func TestExpandCommand_PrintsCode(t *testing.T) {
	file := writeFile(t, t.TempDir(), "main.go", "package p\n\nvar s = stringify(1 + 2)\n")

	out, errOut, err := run(t, "expand", file)
	require.NoError(t, err)
	assert.Equal(t, "package p\n\nvar s = \"1 + 2\"\n", out)
	assert.Empty(t, errOut)
}

func TestExpandCommand_WritesOutput(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.go", "package p\n\nvar a = stringify(a)\n")
	writeFile(t, src, "b.go", "package p\n\nvar b = 1\n")
	gen := filepath.Join(t.TempDir(), "gen")

	out, _, err := run(t, "expand", src, "--output", gen, "--map")
	require.NoError(t, err)
	assert.Contains(t, out, "Expanded 2 file(s), 1 expansion(s)")

	code, err := os.ReadFile(filepath.Join(gen, "a.go"))
	require.NoError(t, err)
	assert.Contains(t, string(code), `var a = "a"`)
	assert.FileExists(t, filepath.Join(gen, "a.go.map"))
	assert.FileExists(t, filepath.Join(gen, "b.go"))
	assert.NoFileExists(t, filepath.Join(gen, "b.go.map"))
}

func TestExpandCommand_MapNeedsOutput(t *testing.T) {
	_, _, err := run(t, "expand", "--map")
	assert.ErrorContains(t, err, "--map needs --output")
}

func TestExpandCommand_JSON(t *testing.T) {
	file := writeFile(t, t.TempDir(), "id.go", "package p\n\n//sugar:derive Eq\ntype ID int\n")

	out, _, err := run(t, "expand", file, "--json")
	assert.ErrorContains(t, err, "expansion failed with 1 error(s)")

	var report struct {
		Files       int `json:"files"`
		Diagnostics []struct {
			Code     string `json:"code"`
			Severity string `json:"severity"`
			File     string `json:"file"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Files)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "MAC101", report.Diagnostics[0].Code)
	assert.Equal(t, file, report.Diagnostics[0].File)
}

func TestExpandCommand_LSP(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "id.go", "package p\n\n//sugar:derive Eq\ntype ID int\n")
	writeFile(t, dir, "ok.go", "package p\n\nvar s = stringify(x)\n")

	out, _, err := run(t, "expand", dir, "--lsp")
	assert.ErrorContains(t, err, "expansion failed with 1 error(s)")

	var params []struct {
		URI         string `json:"uri"`
		Diagnostics []struct {
			Severity int    `json:"severity"`
			Code     string `json:"code"`
			Source   string `json:"source"`
			Message  string `json:"message"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &params))
	require.Len(t, params, 2)

	byFile := make(map[string]int)
	for i, p := range params {
		assert.True(t, strings.HasPrefix(p.URI, "file://"), p.URI)
		byFile[filepath.Base(p.URI)] = i
	}
	got := params[byFile[filepath.Base(bad)]].Diagnostics
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Severity)
	assert.Equal(t, "MAC101", got[0].Code)
	assert.Equal(t, "sugar", got[0].Source)
	assert.Empty(t, params[byFile["ok.go"]].Diagnostics)
}

func TestExpandCommand_JSONAndLSPExclusive(t *testing.T) {
	_, _, err := run(t, "expand", "--json", "--lsp")
	assert.ErrorContains(t, err, "none of the others can be")
}

func TestExpandCommand_Diagnostics(t *testing.T) {
	file := writeFile(t, t.TempDir(), "main.go", "package p\n\nvar s = strinigfy(1)\n")

	_, errOut, err := run(t, "expand", file)
	require.NoError(t, err)
	assert.Contains(t, errOut, "[MAC001]")
	assert.Contains(t, errOut, "Did you mean 'stringify'?")
	assert.Contains(t, errOut, "0 error(s), 1 warning(s)")
}

func TestAuditCommand(t *testing.T) {
	file := writeFile(t, t.TempDir(), "main.go", "package p\n\nvar s = stringify(1 + 2)\n")

	out, _, err := run(t, "audit", file, "--json")
	require.NoError(t, err)

	var audit struct {
		Version         int `json:"version"`
		TotalExpansions int `json:"totalExpansions"`
		FlaggedCount    int `json:"flaggedCount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &audit))
	assert.Equal(t, 1, audit.Version)
	assert.Equal(t, 1, audit.TotalExpansions)
	assert.Equal(t, 0, audit.FlaggedCount)

	report := filepath.Join(t.TempDir(), "audit.txt")
	out, _, err = run(t, "audit", file, "--output", report, "--fail-on-flag")
	require.NoError(t, err)
	assert.Contains(t, out, "Audit written to")
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Total expansions: 1")
}

func TestMacrosCommand(t *testing.T) {
	out, _, err := run(t, "macros")
	require.NoError(t, err)
	assert.Contains(t, out, "Kind")
	for _, name := range []string{"stringify", "comptime", "fstr", "debugOnly", "Nullable", "Eq", "typeclass"} {
		assert.Contains(t, out, name)
	}

	out, _, err = run(t, "macros", "debugOnly")
	require.NoError(t, err)
	assert.Contains(t, out, "labeledBlock")
	assert.Contains(t, out, "release")

	_, _, err = run(t, "macros", "strinigfy")
	assert.ErrorContains(t, err, `no macro named "strinigfy", did you mean stringify?`)

	out, _, err = run(t, "macros", "--json")
	require.NoError(t, err)
	var m struct {
		Version int                        `json:"version"`
		Macros  map[string]json.RawMessage `json:"macros"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 1, m.Version)
	assert.Contains(t, m.Macros, "expression")
	assert.Contains(t, m.Macros, "derive")
}

func TestWatchCommand(t *testing.T) {
	src := t.TempDir()
	file := writeFile(t, src, "main.go", "package p\n\nvar s = stringify(1)\n")
	gen := filepath.Join(t.TempDir(), "gen")
	expanded := filepath.Join(gen, "main.go")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, ctx, "watch", src, "--output", gen, "--debounce", "20ms")
		done <- err
	}()

	read := func() string {
		data, _ := os.ReadFile(expanded)
		return string(data)
	}
	require.Eventually(t, func() bool { return strings.Contains(read(), `var s = "1"`) },
		5*time.Second, 20*time.Millisecond)

	// let the watcher settle before changing the file
	time.Sleep(100 * time.Millisecond)
	writeFile(t, src, filepath.Base(file), "package p\n\nvar s = stringify(2)\n")
	assert.Eventually(t, func() bool { return strings.Contains(read(), `var s = "2"`) },
		5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchCommand_NeedsOutput(t *testing.T) {
	_, _, err := run(t, "watch")
	assert.ErrorContains(t, err, "watch needs --output")
}
