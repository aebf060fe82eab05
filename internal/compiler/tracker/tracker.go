// Package tracker records macro expansion events and derives reports, audit
// logs and source maps from them.
package tracker

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExpansionRecord is an immutable snapshot of one expansion event
type ExpansionRecord struct {
	MacroName string `json:"macroName"`
	File      string `json:"file"`
	// Line is 1-based, Column is 0-based
	Line   int `json:"line"`
	Column int `json:"column"`
	// Start and End are byte offsets of the original node; both are -1 for
	// expansions of synthetic nodes that have no original text span.
	Start             int       `json:"start"`
	End               int       `json:"end"`
	OriginalText      string    `json:"originalText"`
	ExpandedText      string    `json:"expandedText"`
	Timestamp         time.Time `json:"timestamp"`
	FromCache         bool      `json:"fromCache"`
	SourcePackage     string    `json:"sourcePackage,omitempty"`
	UnhygienicEscapes int       `json:"unhygienicEscapes,omitempty"`
}

// HasSpan reports whether the record maps onto a range of the original source
func (r ExpansionRecord) HasSpan() bool {
	return r.Start >= 0 && r.End >= r.Start
}

// Tracker is an append-only, call-ordered log of expansions. It is owned by one
// transformation at a time.
type Tracker struct {
	runID   uuid.UUID
	records []ExpansionRecord
	now     func() time.Time
}

// New creates an empty tracker with a fresh run id
func New() *Tracker {
	return &Tracker{
		runID: uuid.New(),
		now:   time.Now,
	}
}

// RunID identifies this tracker's log in JSON output
func (t *Tracker) RunID() uuid.UUID {
	return t.runID
}

// Record appends a fully populated record. A zero timestamp is filled in.
func (t *Tracker) Record(rec ExpansionRecord) ExpansionRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.now()
	}
	t.records = append(t.records, rec)
	return rec
}

// RecordExpansion derives position and original text from node and appends a
// record.
func (t *Tracker) RecordExpansion(macro string, fset *token.FileSet, node ast.Node, source []byte, fileName, expanded string, fromCache bool) ExpansionRecord {
	return t.Record(NewRecord(macro, fset, node, source, fileName, expanded, fromCache))
}

// NewRecord builds a record for node without appending it. source is the full
// file content the fset positions refer to; nodes without a valid position
// get no span.
func NewRecord(macro string, fset *token.FileSet, node ast.Node, source []byte, fileName, expanded string, fromCache bool) ExpansionRecord {
	rec := ExpansionRecord{
		MacroName:    macro,
		File:         fileName,
		Start:        -1,
		End:          -1,
		ExpandedText: expanded,
		FromCache:    fromCache,
	}
	if node != nil && node.Pos().IsValid() && node.End().IsValid() {
		tf := fset.File(node.Pos())
		if tf != nil {
			start := tf.Offset(node.Pos())
			end := tf.Offset(node.End())
			pos := fset.Position(node.Pos())
			rec.Line = pos.Line
			rec.Column = pos.Column - 1
			if start >= 0 && end <= len(source) && start <= end {
				rec.Start = start
				rec.End = end
				rec.OriginalText = string(source[start:end])
			}
		}
	}
	return rec
}

// Shift moves the record left by n bytes, for sources parsed behind a
// synthetic prefix of n bytes on their first line.
func (r *ExpansionRecord) Shift(n int) {
	if r.HasSpan() {
		r.Start -= n
		r.End -= n
	}
	if r.Line == 1 {
		r.Column -= n
	}
}

// Records returns a copy of all records in call order
func (t *Tracker) Records() []ExpansionRecord {
	return append([]ExpansionRecord(nil), t.records...)
}

// RecordsFor returns the records of one file in call order
func (t *Tracker) RecordsFor(file string) []ExpansionRecord {
	var out []ExpansionRecord
	for _, r := range t.records {
		if r.File == file {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of recorded expansions
func (t *Tracker) Len() int {
	return len(t.records)
}

// CacheHits returns how many recorded expansions were served from cache
func (t *Tracker) CacheHits() int {
	n := 0
	for _, r := range t.records {
		if r.FromCache {
			n++
		}
	}
	return n
}

// Clear empties the log between compilations
func (t *Tracker) Clear() {
	t.records = nil
}

// GenerateReport renders a human-readable summary grouped by file
func (t *Tracker) GenerateReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Macro expansion report\n")
	fmt.Fprintf(&b, "======================\n")
	fmt.Fprintf(&b, "Total expansions: %d (cache hits: %d)\n", len(t.records), t.CacheHits())

	byMacro := map[string]int{}
	for _, r := range t.records {
		byMacro[r.MacroName]++
	}
	if len(byMacro) > 0 {
		b.WriteString("\nBy macro:\n")
		for _, name := range sortedKeys(byMacro) {
			fmt.Fprintf(&b, "  %-20s %d\n", name, byMacro[name])
		}
	}

	for _, file := range t.files() {
		fmt.Fprintf(&b, "\n%s:\n", file)
		for _, r := range sortedRecords(t.RecordsFor(file)) {
			cached := ""
			if r.FromCache {
				cached = " (cached)"
			}
			fmt.Fprintf(&b, "  %d:%d %s%s\n", r.Line, r.Column, r.MacroName, cached)
			fmt.Fprintf(&b, "    - %s\n", oneLine(r.OriginalText))
			fmt.Fprintf(&b, "    + %s\n", oneLine(r.ExpandedText))
		}
	}
	return b.String()
}

type jsonLog struct {
	RunID           string            `json:"runId"`
	TotalExpansions int               `json:"totalExpansions"`
	CacheHits       int               `json:"cacheHits"`
	Expansions      []ExpansionRecord `json:"expansions"`
}

// ToJSON returns the full log, including timestamps, in call order
func (t *Tracker) ToJSON() ([]byte, error) {
	recs := t.Records()
	if recs == nil {
		recs = []ExpansionRecord{}
	}
	return json.MarshalIndent(jsonLog{
		RunID:           t.runID.String(),
		TotalExpansions: len(recs),
		CacheHits:       t.CacheHits(),
		Expansions:      recs,
	}, "", "  ")
}

func (t *Tracker) files() []string {
	seen := map[string]bool{}
	var files []string
	for _, r := range t.records {
		if !seen[r.File] {
			seen[r.File] = true
			files = append(files, r.File)
		}
	}
	sort.Strings(files)
	return files
}

func sortedRecords(recs []ExpansionRecord) []ExpansionRecord {
	out := append([]ExpansionRecord(nil), recs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 100 {
		return s[:97] + "..."
	}
	return s
}
