package errors

import (
	"encoding/json"
	"strings"
	"testing"

	"go.lsp.dev/protocol"
)

func TestErrorCodeUniqueness(t *testing.T) {
	codes := map[ErrorCode]bool{}
	all := []ErrorCode{
		ErrUnknownMacro, ErrUnknownAttribute, ErrUnknownDerive,
		ErrExpansionFailed, ErrExpansionPanic, ErrEvaluationTimeout, ErrMacroReported, ErrInvalidExpansion,
		ErrParseFailed, ErrMalformedDirective,
		ErrResolutionFailed, ErrDuplicateInstance,
		ErrDepthExceeded,
		ErrManifestLoad,
	}
	for _, code := range all {
		if codes[code] {
			t.Errorf("Duplicate error code %s", code)
		}
		codes[code] = true
		if !strings.HasPrefix(string(code), "MAC") {
			t.Errorf("Code %s should start with MAC", code)
		}
	}
}

func TestErrorJSONSerialization(t *testing.T) {
	loc := SourceLocation{Line: 10, Column: 5}
	err := NewResolutionFailed(loc, "S", "Show", "Point")

	jsonStr, jsonErr := err.ToJSON()
	if jsonErr != nil {
		t.Fatalf("Failed to serialize error to JSON: %v", jsonErr)
	}

	var parsed CompilerError
	if unmarshalErr := json.Unmarshal([]byte(jsonStr), &parsed); unmarshalErr != nil {
		t.Fatalf("Failed to parse error JSON: %v", unmarshalErr)
	}

	if parsed.Code != ErrResolutionFailed {
		t.Errorf("Expected code %s, got %s", ErrResolutionFailed, parsed.Code)
	}
	if parsed.Category != CategoryResolution {
		t.Errorf("Expected category %s, got %s", CategoryResolution, parsed.Category)
	}
	if parsed.Location.Line != 10 || parsed.Location.Column != 5 {
		t.Errorf("Expected 10:5, got %d:%d", parsed.Location.Line, parsed.Location.Column)
	}
	if parsed.Expected != "Show[Point]" {
		t.Errorf("Expected 'Show[Point]', got '%s'", parsed.Expected)
	}
	for _, want := range []string{"Show", "Point", "'S'"} {
		if !strings.Contains(parsed.Message, want) {
			t.Errorf("Message %q should mention %s", parsed.Message, want)
		}
	}
}

func TestErrorList_Counts(t *testing.T) {
	list := ErrorList{
		NewUnknownMacro(SourceLocation{Line: 1, Column: 1}, "expression", "nope"),
		NewExpansionFailed(SourceLocation{Line: 2, Column: 1}, "double", errString("boom")),
	}

	errs, warns, infos := list.ErrorCount()
	if errs != 1 || warns != 1 || infos != 0 {
		t.Errorf("ErrorCount() = %d, %d, %d", errs, warns, infos)
	}
	if !list.HasErrors() || !list.HasWarnings() {
		t.Error("expected both errors and warnings")
	}
	if got := list.ByCode(ErrUnknownMacro); len(got) != 1 {
		t.Errorf("ByCode returned %d diagnostics", len(got))
	}
}

func TestErrorList_Sort(t *testing.T) {
	list := ErrorList{
		NewUnknownMacro(SourceLocation{Line: 9, Column: 1}, "expression", "c").WithFile("b.go"),
		NewUnknownMacro(SourceLocation{Line: 3, Column: 4}, "expression", "b").WithFile("a.go"),
		NewUnknownMacro(SourceLocation{Line: 3, Column: 2}, "expression", "a").WithFile("a.go"),
	}
	list.Sort()

	if list[0].Macro != "a" || list[1].Macro != "b" || list[2].Macro != "c" {
		t.Errorf("unexpected order: %s %s %s", list[0].Macro, list[1].Macro, list[2].Macro)
	}
}

func TestFormatCompact(t *testing.T) {
	err := NewUnknownMacro(SourceLocation{Line: 3, Column: 11}, "expression", "notRegistered").WithFile("main.go")
	got := FormatCompact(err)
	want := "main.go:3:11: warning:"
	if !strings.HasPrefix(got, want) {
		t.Errorf("FormatCompact() = %q, want prefix %q", got, want)
	}
	if !strings.HasSuffix(got, "[MAC001]") {
		t.Errorf("FormatCompact() = %q, want code suffix", got)
	}
}

func TestFormatError_DepthChain(t *testing.T) {
	err := NewDepthExceeded(SourceLocation{Line: 1, Column: 1}, 4, []string{"loop", "loop", "loop"})
	out := err.Format()
	if !strings.Contains(out, "loop -> loop -> loop") {
		t.Errorf("formatted error should show the chain, got:\n%s", out)
	}
	if err.Macro != "loop" {
		t.Errorf("Macro = %q, want loop", err.Macro)
	}
}

func TestExtractContext(t *testing.T) {
	current, lines := ExtractContext("a\nb\nc", 2)
	if current != "b" {
		t.Errorf("current = %q", current)
	}
	if len(lines) != 3 || lines[0] != "a" || lines[2] != "c" {
		t.Errorf("lines = %v", lines)
	}
}

func TestToProtocol(t *testing.T) {
	list := ErrorList{
		NewDepthExceeded(SourceLocation{Line: 4, Column: 7}, 2, []string{"a", "b"}),
		NewUnknownMacro(SourceLocation{Line: 1, Column: 1}, "expression", "x"),
	}
	diags := list.ToProtocol()
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Range.Start.Line != 3 || diags[0].Range.Start.Character != 6 {
		t.Errorf("unexpected range %+v", diags[0].Range)
	}
	if diags[0].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v", diags[0].Severity)
	}
	if diags[1].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v", diags[1].Severity)
	}
	if diags[0].Source != "sugar" {
		t.Errorf("source = %q", diags[0].Source)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestFindSimilar(t *testing.T) {
	candidates := []string{"stringify", "summon", "comptime", "includeStr", "includeJSON"}

	tests := []struct {
		name string
		want []string
	}{
		{"strinigfy", []string{"stringify"}},
		{"Summon", []string{"summon"}},
		{"includeStrs", []string{"includeStr"}},
		{"includeJSN", []string{"includeJSON"}},
		{"frobnicate", []string{}},
		{"ab", []string{}},
		{"stringify", []string{}},
	}

	for _, tt := range tests {
		got := FindSimilar(tt.name, candidates)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("FindSimilar(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWithCandidates(t *testing.T) {
	e := NewUnknownDerive(SourceLocation{Line: 3, Column: 14}, "Shw", "Point").
		WithCandidates("Shw", []string{"Eq", "Hash", "Ord", "Show"})
	if e.Suggestion != "Did you mean 'Show'?" {
		t.Errorf("unexpected suggestion %q", e.Suggestion)
	}

	e = NewUnknownMacro(SourceLocation{Line: 1, Column: 1}, "expression", "frobnicate").
		WithCandidates("frobnicate", []string{"stringify"})
	if !strings.Contains(e.Suggestion, "Register the macro") {
		t.Errorf("default suggestion replaced: %q", e.Suggestion)
	}
}
