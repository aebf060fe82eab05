package errors

import (
	"fmt"
	"strings"
)

// FormatError returns a human-readable error message for terminal output
func FormatError(e *CompilerError) string {
	var b strings.Builder

	icon := severityIcon(e.Severity)

	file := e.File
	if file == "" {
		file = "<source>"
	}

	fmt.Fprintf(&b, "%s %s in %s [%s]\n", icon, categoryDisplayName(e.Category), file, e.Code)
	fmt.Fprintf(&b, "Line %d, Column %d:\n", e.Location.Line, e.Location.Column)

	if e.Context != nil && len(e.Context.SourceLines) > 0 {
		for i, line := range e.Context.SourceLines {
			lineNum := e.Location.Line - 1 + i
			if i == 1 {
				fmt.Fprintf(&b, "%s  %s ← %s\n", formatLineNumber(lineNum), line, e.Message)
			} else {
				fmt.Fprintf(&b, "%s  %s\n", formatLineNumber(lineNum), line)
			}
		}
	} else {
		fmt.Fprintf(&b, "  %s\n", e.Message)
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString("\n")
		if e.Expected != "" {
			fmt.Fprintf(&b, "  Expected: %s\n", e.Expected)
		}
		if e.Actual != "" {
			fmt.Fprintf(&b, "  Actual:   %s\n", e.Actual)
		}
	}

	if len(e.Chain) > 0 {
		fmt.Fprintf(&b, "\n  Expansion chain: %s\n", strings.Join(e.Chain, " -> "))
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", e.Suggestion)
	}

	return b.String()
}

// FormatErrorList returns a formatted string of all errors
func FormatErrorList(errors ErrorList) string {
	if len(errors) == 0 {
		return "no errors"
	}

	var b strings.Builder

	errCount, warnCount, infoCount := errors.ErrorCount()
	fmt.Fprintf(&b, "Expansion finished with %d error(s), %d warning(s), %d info\n\n",
		errCount, warnCount, infoCount)

	for i, err := range errors {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 80) + "\n\n")
		}
		b.WriteString(err.Format())
	}

	return b.String()
}

// FormatCompact returns a compact one-line error format
func FormatCompact(e *CompilerError) string {
	file := e.File
	if file == "" {
		file = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s [%s]",
		file, e.Location.Line, e.Location.Column,
		e.Severity, e.Message, e.Code)
}

// ExtractContext returns the line at lineNum (1-indexed) plus one line of
// context either side, in the shape WithContext expects.
func ExtractContext(source string, lineNum int) (string, []string) {
	lines := strings.Split(source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return "", nil
	}
	get := func(i int) string {
		if i < 1 || i > len(lines) {
			return ""
		}
		return lines[i-1]
	}
	return get(lineNum), []string{get(lineNum - 1), get(lineNum), get(lineNum + 1)}
}

func severityIcon(severity ErrorSeverity) string {
	switch severity {
	case SeverityError:
		return "❌"
	case SeverityWarning:
		return "⚠️ "
	case SeverityInfo:
		return "ℹ️ "
	default:
		return "❓"
	}
}

func categoryDisplayName(category ErrorCategory) string {
	switch category {
	case CategoryMacro:
		return "Unknown Macro"
	case CategoryExpansion:
		return "Expansion Error"
	case CategoryParse:
		return "Parse Error"
	case CategoryResolution:
		return "Resolution Error"
	case CategoryTermination:
		return "Non-terminating Expansion"
	case CategoryManifest:
		return "Manifest Warning"
	default:
		return "Macro Error"
	}
}

func formatLineNumber(lineNum int) string {
	return fmt.Sprintf("%3d |", lineNum)
}
