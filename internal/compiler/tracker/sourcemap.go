package tracker

import (
	"sort"
	"strings"

	"github.com/conduit-lang/sugar/internal/sourcemap"
)

// edit overwrites original[start:end] with text
type edit struct {
	start, end int
	text       string
	macro      string
}

// planEdits picks which records of a file can be replayed as text
// overwrites. Records are visited latest start first; a span nested inside
// an already-applied span is skipped, a span that encloses applied spans
// supersedes them, and a partial overlap is skipped.
func planEdits(records []ExpansionRecord, sourceLen int) []edit {
	candidates := make([]ExpansionRecord, 0, len(records))
	for _, r := range records {
		if r.HasSpan() && r.End <= sourceLen {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start > candidates[j].Start
		}
		// Same start: the wider span is the outer expansion, apply it first
		// so the inner one is recognised as nested.
		return candidates[i].End > candidates[j].End
	})

	var applied []edit
	for _, r := range candidates {
		nested, overlaps := false, false
		var kept []edit
		for _, a := range applied {
			switch {
			case r.Start >= a.start && r.End <= a.end:
				nested = true
			case r.Start <= a.start && r.End >= a.end:
				// superseded by the enclosing expansion
				continue
			case r.Start < a.end && a.start < r.End:
				overlaps = true
			}
			kept = append(kept, a)
		}
		if nested || overlaps {
			continue
		}
		applied = append(kept, edit{start: r.Start, end: r.End, text: r.ExpandedText, macro: r.MacroName})
	}

	sort.Slice(applied, func(i, j int) bool { return applied[i].start < applied[j].start })
	return applied
}

// ApplyExpansions replays the file's recorded expansions onto original and
// returns the rewritten text
func (t *Tracker) ApplyExpansions(original, fileName string) string {
	edits := planEdits(t.RecordsFor(fileName), len(original))
	var b strings.Builder
	pos := 0
	for _, e := range edits {
		b.WriteString(original[pos:e.start])
		b.WriteString(e.text)
		pos = e.end
	}
	b.WriteString(original[pos:])
	return b.String()
}

// GenerateSourceMap replays the file's expansions as overwrites against a
// copy of original and maps every line start and every overwrite boundary of
// the result back to the pre-expansion text.
func (t *Tracker) GenerateSourceMap(original, fileName string) *sourcemap.Map {
	edits := planEdits(t.RecordsFor(fileName), len(original))

	b := sourcemap.NewBuilder(fileName)
	src := b.AddSource(fileName, original)

	lineStarts := lineOffsets(original)
	toLineCol := func(offset int) (int, int) {
		i := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > offset }) - 1
		return i, offset - lineStarts[i]
	}

	genLine, genCol := 0, 0
	copyOriginal := func(from, to int) {
		if from >= to {
			return
		}
		line, col := toLineCol(from)
		b.AddMapping(genLine, genCol, src, line, col)
		for i := from; i < to; i++ {
			if original[i] == '\n' {
				genLine++
				genCol = 0
				if i+1 < to {
					l, c := toLineCol(i + 1)
					b.AddMapping(genLine, genCol, src, l, c)
				}
				continue
			}
			genCol++
		}
	}

	pos := 0
	for _, e := range edits {
		copyOriginal(pos, e.start)
		line, col := toLineCol(e.start)
		b.AddNamedMapping(genLine, genCol, src, line, col, e.macro)
		for i := 0; i < len(e.text); i++ {
			if e.text[i] == '\n' {
				genLine++
				genCol = 0
				if i+1 < len(e.text) {
					b.AddMapping(genLine, genCol, src, line, col)
				}
				continue
			}
			genCol++
		}
		pos = e.end
	}
	copyOriginal(pos, len(original))

	return b.Build()
}

func lineOffsets(s string) []int {
	offsets := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}
