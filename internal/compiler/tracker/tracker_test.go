package tracker

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/sugar/internal/sourcemap"
)

func record(file, macro string, start, end int, original, expanded string) ExpansionRecord {
	return ExpansionRecord{
		MacroName:    macro,
		File:         file,
		Line:         1,
		Column:       start,
		Start:        start,
		End:          end,
		OriginalText: original,
		ExpandedText: expanded,
	}
}

func TestRecordExpansion_FromNode(t *testing.T) {
	src := []byte("package p\n\nvar y = double(21)\n")
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	require.NoError(t, err)

	call := f.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec).Values[0]

	tr := New()
	rec := tr.RecordExpansion("double", fset, call, src, "p.go", "21 * 2", false)

	assert.Equal(t, "double", rec.MacroName)
	assert.Equal(t, "double(21)", rec.OriginalText)
	assert.Equal(t, 3, rec.Line)
	assert.Equal(t, 8, rec.Column)
	assert.Equal(t, 19, rec.Start)
	assert.Equal(t, 29, rec.End)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, 1, tr.Len())
}

func TestRecordExpansion_SyntheticNode(t *testing.T) {
	tr := New()
	rec := tr.RecordExpansion("inner", token.NewFileSet(), ast.NewIdent("x"), nil, "p.go", "1", true)
	assert.False(t, rec.HasSpan())
	assert.Equal(t, 1, tr.CacheHits())
}

func TestRecords_OrderAndFilter(t *testing.T) {
	tr := New()
	tr.Record(record("a.go", "m1", 0, 1, "x", "y"))
	tr.Record(record("b.go", "m2", 0, 1, "x", "y"))
	tr.Record(record("a.go", "m3", 2, 3, "x", "y"))

	all := tr.Records()
	require.Len(t, all, 3)
	assert.Equal(t, "m1", all[0].MacroName)
	assert.Equal(t, "m3", all[2].MacroName)

	a := tr.RecordsFor("a.go")
	require.Len(t, a, 2)
	assert.Equal(t, "m3", a[1].MacroName)

	tr.Clear()
	assert.Equal(t, 0, tr.Len())
}

func TestGenerateSourceMap_SingleExpansion(t *testing.T) {
	original := "const x = macro();"
	tr := New()
	tr.Record(record("main.go", "macro", 10, 17, "macro()", "42"))

	m := tr.GenerateSourceMap(original, "main.go")
	assert.Equal(t, 3, m.Version)
	require.Len(t, m.SourcesContent, 1)
	assert.Equal(t, original, m.SourcesContent[0])
	assert.Equal(t, []string{"main.go"}, m.Sources)
	assert.NotEmpty(t, m.Mappings)
	assert.True(t, sourcemap.IsValidMappings(m.Mappings))
	assert.Equal(t, "const x = 42;", tr.ApplyExpansions(original, "main.go"))

	segs, err := m.Decode()
	require.NoError(t, err)
	require.Len(t, segs, 3)
	// "42" starts at generated column 10 and comes from the macro call
	assert.Equal(t, 10, segs[1].GeneratedColumn)
	assert.Equal(t, 10, segs[1].SourceColumn)
	// the trailing ";" is generated column 12, original column 17
	assert.Equal(t, 12, segs[2].GeneratedColumn)
	assert.Equal(t, 17, segs[2].SourceColumn)
}

func TestGenerateSourceMap_SkipsNestedSpans(t *testing.T) {
	original := "v := outer(inner(1))"
	tr := New()
	// inner expands first, then outer over the span that contains it
	tr.Record(record("f.go", "inner", 11, 19, "inner(1)", "1+1"))
	tr.Record(record("f.go", "outer", 5, 20, "outer(inner(1))", "(1+1)*2"))
	// a re-scan record nested in outer's span
	tr.Record(record("f.go", "inner", 6, 14, "x", "y"))

	assert.Equal(t, "v := (1+1)*2", tr.ApplyExpansions(original, "f.go"))
}

func TestGenerateSourceMap_MultiLine(t *testing.T) {
	original := "a := m()\nb := 2\n"
	tr := New()
	tr.Record(record("f.go", "m", 5, 8, "m()", "func() int {\n\treturn 1\n}()"))

	m := tr.GenerateSourceMap(original, "f.go")
	segs, err := m.Decode()
	require.NoError(t, err)

	// "b := 2" ends up on generated line 3 and maps back to original line 1
	var found bool
	for _, s := range segs {
		if s.GeneratedLine == 3 && s.GeneratedColumn == 0 {
			found = true
			assert.Equal(t, 1, s.SourceLine)
			assert.Equal(t, 0, s.SourceColumn)
		}
	}
	assert.True(t, found, "expected a mapping for generated line 3")
}

func TestGenerateReport(t *testing.T) {
	tr := New()
	tr.Record(record("a.go", "double", 0, 10, "double(21)", "21 * 2"))
	rec := record("a.go", "double", 20, 30, "double(21)", "21 * 2")
	rec.FromCache = true
	tr.Record(rec)

	report := tr.GenerateReport()
	assert.Contains(t, report, "Total expansions: 2 (cache hits: 1)")
	assert.Contains(t, report, "double")
	assert.Contains(t, report, "(cached)")
	assert.Contains(t, report, "+ 21 * 2")
}

func TestToJSON(t *testing.T) {
	tr := New()
	tr.Record(record("a.go", "double", 0, 10, "double(21)", "21 * 2"))

	data, err := tr.ToJSON()
	require.NoError(t, err)

	var decoded struct {
		RunID           string            `json:"runId"`
		TotalExpansions int               `json:"totalExpansions"`
		Expansions      []ExpansionRecord `json:"expansions"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tr.RunID().String(), decoded.RunID)
	assert.Equal(t, 1, decoded.TotalExpansions)
	assert.Equal(t, "double(21)", decoded.Expansions[0].OriginalText)
}

func TestAudit_FlagsAndDeterminism(t *testing.T) {
	build := func() *Tracker {
		tr := New()
		r1 := record("b.go", "env", 0, 5, "env()", `os.Getenv("HOME")`)
		r1.Line = 7
		r1.SourcePackage = "example.com/macros"
		r2 := record("a.go", "safe", 0, 5, "x()", "1 + 2")
		r2.Line = 3
		r3 := record("a.go", "run", 10, 15, "run()", `exec.Command("ls").Run()`)
		r3.Line = 1
		r3.UnhygienicEscapes = 2
		tr.Record(r1)
		tr.Record(r2)
		tr.Record(r3)
		return tr
	}

	first, err := build().ToAuditJSON()
	require.NoError(t, err)
	second, err := build().ToAuditJSON()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.NotContains(t, string(first), "timestamp")

	audit := build().BuildAudit()
	assert.Equal(t, 1, audit.Version)
	assert.Equal(t, 3, audit.TotalExpansions)
	assert.Equal(t, 2, audit.FlaggedCount)

	a := audit.Files["a.go"].Expansions
	require.Len(t, a, 2)
	assert.Equal(t, "run", a[0].Macro)
	assert.Equal(t, []string{FlagSubprocess, FlagUnhygienicEscape}, a[0].Flags)
	assert.Empty(t, a[1].Flags)

	b := audit.Files["b.go"].Expansions
	require.Len(t, b, 1)
	assert.Equal(t, []string{FlagEnvAccess}, b[0].Flags)
	assert.Equal(t, "example.com/macros", b[0].Package)
}

func TestFlags(t *testing.T) {
	tests := []struct {
		expanded string
		want     []string
	}{
		{`p, _ := plugin.Open("x.so")`, []string{FlagDynamicImport}},
		{`reflect.ValueOf(f).Call(nil)`, []string{FlagDynamicCode}},
		{`os.LookupEnv("X")`, []string{FlagEnvAccess}},
		{`syscall.ForkExec("/bin/sh", nil, nil)`, []string{FlagSubprocess}},
		{`fmt.Println("hi")`, []string{}},
	}
	for _, tt := range tests {
		got := Flags(ExpansionRecord{ExpandedText: tt.expanded})
		assert.Equal(t, tt.want, got, tt.expanded)
	}
}

func TestGenerateAuditReport(t *testing.T) {
	tr := New()
	r := record("a.go", "env", 0, 5, "env()", `os.Getenv("HOME")`)
	r.Line = 4
	tr.Record(r)
	tr.Record(record("a.go", "safe", 6, 8, "x", "y"))

	report := tr.GenerateAuditReport()
	assert.Contains(t, report, "Flagged:          1")
	assert.Contains(t, report, "a.go:4 env (<local>)")
	assert.True(t, strings.Contains(report, FlagEnvAccess))
	assert.NotContains(t, report, " safe ")
}

func TestNewRecord_Shift(t *testing.T) {
	src := []byte("package main; const y = double(21)")
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "snippet.go", src, 0)
	require.NoError(t, err)

	call := f.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec).Values[0]
	rec := NewRecord("double", fset, call, src, "snippet.go", "21 * 2", false)
	rec.Shift(len("package main; "))

	assert.Equal(t, 1, rec.Line)
	assert.Equal(t, 10, rec.Column)
	assert.Equal(t, 10, rec.Start)
	assert.Equal(t, 20, rec.End)
	assert.Equal(t, "double(21)", rec.OriginalText)
}
