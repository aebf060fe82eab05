package tracker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// AuditVersion is the version field of the audit JSON document
const AuditVersion = 1

// Audit flags attached to suspicious expansions
const (
	FlagDynamicCode      = "dynamic-code"
	FlagEnvAccess        = "env-access"
	FlagDynamicImport    = "dynamic-import"
	FlagSubprocess       = "subprocess"
	FlagUnhygienicEscape = "unhygienic-escape"
)

var suspiciousPatterns = []struct {
	flag    string
	pattern *regexp.Regexp
}{
	{FlagDynamicCode, regexp.MustCompile(`\bplugin\.Lookup\b|\.MethodByName\(|\.(Call|CallSlice)\(|\bunsafe\.Pointer\b`)},
	{FlagEnvAccess, regexp.MustCompile(`\bos\.(Getenv|LookupEnv|Environ|Setenv|Unsetenv|ExpandEnv)\b|\bsyscall\.Getenv\b`)},
	{FlagDynamicImport, regexp.MustCompile(`\bplugin\.Open\b`)},
	{FlagSubprocess, regexp.MustCompile(`\bexec\.(Command|CommandContext)\b|\bos\.StartProcess\b|\bsyscall\.(Exec|ForkExec)\b`)},
}

// Flags returns the audit flags raised by one record, in fixed order
func Flags(r ExpansionRecord) []string {
	flags := []string{}
	for _, p := range suspiciousPatterns {
		if p.pattern.MatchString(r.ExpandedText) {
			flags = append(flags, p.flag)
		}
	}
	if r.UnhygienicEscapes > 0 {
		flags = append(flags, FlagUnhygienicEscape)
	}
	return flags
}

// AuditEntry is one expansion in the audit document
type AuditEntry struct {
	Macro             string   `json:"macro"`
	Package           string   `json:"package"`
	Line              int      `json:"line"`
	Original          string   `json:"original"`
	Expanded          string   `json:"expanded"`
	UnhygienicEscapes int      `json:"unhygienicEscapes"`
	Flags             []string `json:"flags"`
}

// AuditFile groups the audit entries of one source file
type AuditFile struct {
	Expansions []AuditEntry `json:"expansions"`
}

// Audit is the deterministic audit document. It carries no timestamps so that
// CI can diff it between runs.
type Audit struct {
	Version         int                  `json:"version"`
	TotalExpansions int                  `json:"totalExpansions"`
	FlaggedCount    int                  `json:"flaggedCount"`
	Files           map[string]AuditFile `json:"files"`
}

// BuildAudit assembles the audit document, sorted by file then line
func (t *Tracker) BuildAudit() *Audit {
	audit := &Audit{
		Version:         AuditVersion,
		TotalExpansions: len(t.records),
		Files:           make(map[string]AuditFile),
	}
	for _, file := range t.files() {
		var entries []AuditEntry
		for _, r := range sortedRecords(t.RecordsFor(file)) {
			flags := Flags(r)
			if len(flags) > 0 {
				audit.FlaggedCount++
			}
			entries = append(entries, AuditEntry{
				Macro:             r.MacroName,
				Package:           r.SourcePackage,
				Line:              r.Line,
				Original:          r.OriginalText,
				Expanded:          r.ExpandedText,
				UnhygienicEscapes: r.UnhygienicEscapes,
				Flags:             flags,
			})
		}
		audit.Files[file] = AuditFile{Expansions: entries}
	}
	return audit
}

// ToAuditJSON encodes the audit document. encoding/json sorts map keys, so
// the output is stable for identical logs.
func (t *Tracker) ToAuditJSON() ([]byte, error) {
	return json.MarshalIndent(t.BuildAudit(), "", "  ")
}

// GenerateAuditReport renders the audit as text, listing flagged expansions
// first
func (t *Tracker) GenerateAuditReport() string {
	audit := t.BuildAudit()

	var b strings.Builder
	fmt.Fprintf(&b, "Macro audit report\n")
	fmt.Fprintf(&b, "==================\n")
	fmt.Fprintf(&b, "Total expansions: %d\n", audit.TotalExpansions)
	fmt.Fprintf(&b, "Flagged:          %d\n", audit.FlaggedCount)

	for _, file := range t.files() {
		for _, e := range audit.Files[file].Expansions {
			if len(e.Flags) == 0 {
				continue
			}
			pkg := e.Package
			if pkg == "" {
				pkg = "<local>"
			}
			fmt.Fprintf(&b, "\n%s:%d %s (%s)\n", file, e.Line, e.Macro, pkg)
			fmt.Fprintf(&b, "  flags: %s\n", strings.Join(e.Flags, ", "))
			if e.UnhygienicEscapes > 0 {
				fmt.Fprintf(&b, "  unhygienic escapes: %d\n", e.UnhygienicEscapes)
			}
			fmt.Fprintf(&b, "  expanded: %s\n", oneLine(e.Expanded))
		}
	}
	return b.String()
}
