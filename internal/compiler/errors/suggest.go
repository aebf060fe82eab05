package errors

import (
	"fmt"
	"sort"
	"strings"
)

// maxSuggestionDistance is the largest edit distance still offered as a
// spelling suggestion
const maxSuggestionDistance = 2

// FindSimilar returns the candidates within a small edit distance of name,
// closest first. Case is ignored.
func FindSimilar(name string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}
	var matches []match
	target := strings.ToLower(name)
	for _, c := range candidates {
		if c == name {
			continue
		}
		if d := levenshtein(target, strings.ToLower(c)); d <= maxSuggestionDistance && d < len(name) {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].value < matches[j].value
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.value
	}
	return out
}

// WithCandidates replaces the suggestion with the closest candidate to name,
// when one is close enough
func (e *CompilerError) WithCandidates(name string, candidates []string) *CompilerError {
	if similar := FindSimilar(name, candidates); len(similar) > 0 {
		e.Suggestion = fmt.Sprintf("Did you mean '%s'?", similar[0])
	}
	return e
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
