// Package errors provides structured diagnostics for the sugar macro expander.
// It defines error codes, categories, and formatting for both human-readable
// terminal output and machine-parseable JSON consumed by build tools.
package errors

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ErrorCode represents a unique diagnostic code
type ErrorCode string

// ErrorCategory represents the category of a diagnostic
type ErrorCategory string

const (
	// CategoryMacro represents unknown macro lookups (MAC001-099)
	CategoryMacro ErrorCategory = "macro"
	// CategoryExpansion represents failures inside a macro's expand function (MAC100-199)
	CategoryExpansion ErrorCategory = "expansion"
	// CategoryParse represents source that could not be parsed (MAC200-299)
	CategoryParse ErrorCategory = "parse"
	// CategoryResolution represents typeclass and implicit resolution errors (MAC300-399)
	CategoryResolution ErrorCategory = "resolution"
	// CategoryTermination represents non-terminating expansion (MAC400-499)
	CategoryTermination ErrorCategory = "termination"
	// CategoryManifest represents macro manifest problems (MAC500-599)
	CategoryManifest ErrorCategory = "manifest"
)

// ErrorSeverity indicates the severity level of a diagnostic
type ErrorSeverity string

const (
	// SeverityError aborts the build when surfaced by a build tool
	SeverityError ErrorSeverity = "error"
	// SeverityWarning suggests a potential issue
	SeverityWarning ErrorSeverity = "warning"
	// SeverityInfo is informational
	SeverityInfo ErrorSeverity = "info"
)

// SourceLocation is a position in the original (pre-expansion) source.
// Line and Column are 1-indexed.
type SourceLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// ErrorContext provides source code context for an error
type ErrorContext struct {
	// Current is the line of code where the error occurred
	Current string `json:"current"`
	// SourceLines is a snippet of source code (before, error line, after)
	SourceLines []string `json:"source_lines"`
}

// CompilerError represents a structured diagnostic attached to an original
// source position.
type CompilerError struct {
	// Code is the unique error code (e.g., "MAC001")
	Code ErrorCode `json:"code"`
	// Type is a machine-readable error type identifier
	Type string `json:"type"`
	// Category is the error category
	Category ErrorCategory `json:"category"`
	// Severity is the error severity level
	Severity ErrorSeverity `json:"severity"`
	// Message is the primary error message
	Message string `json:"message"`
	// Location is the source location of the error
	Location SourceLocation `json:"location"`
	// File is the source file name (optional)
	File string `json:"file,omitempty"`
	// Macro names the macro involved, when there is one
	Macro string `json:"macro,omitempty"`
	// Context provides source code context
	Context *ErrorContext `json:"context,omitempty"`
	// Expected describes what was expected (optional)
	Expected string `json:"expected,omitempty"`
	// Actual describes what was actually found (optional)
	Actual string `json:"actual,omitempty"`
	// Suggestion provides a hint for fixing the error (optional)
	Suggestion string `json:"suggestion,omitempty"`
	// Chain lists the macros being expanded when a depth bound was hit
	Chain []string `json:"chain,omitempty"`
}

// Error implements the error interface
func (e *CompilerError) Error() string {
	return FormatCompact(e)
}

// Format returns a human-readable error message for terminal output
func (e *CompilerError) Format() string {
	return FormatError(e)
}

// ToJSON returns the error as a JSON string
func (e *CompilerError) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithFile sets the source file name for the error
func (e *CompilerError) WithFile(file string) *CompilerError {
	e.File = file
	return e
}

// WithLocation replaces the source location
func (e *CompilerError) WithLocation(loc SourceLocation) *CompilerError {
	e.Location = loc
	return e
}

// WithMacro records the macro responsible for the diagnostic
func (e *CompilerError) WithMacro(name string) *CompilerError {
	e.Macro = name
	return e
}

// WithContext sets the source code context for the error
func (e *CompilerError) WithContext(current string, sourceLines []string) *CompilerError {
	e.Context = &ErrorContext{
		Current:     current,
		SourceLines: sourceLines,
	}
	return e
}

// WithExpected sets the expected value for the error
func (e *CompilerError) WithExpected(expected string) *CompilerError {
	e.Expected = expected
	return e
}

// WithActual sets the actual value for the error
func (e *CompilerError) WithActual(actual string) *CompilerError {
	e.Actual = actual
	return e
}

// WithSuggestion sets a suggestion for fixing the error
func (e *CompilerError) WithSuggestion(suggestion string) *CompilerError {
	e.Suggestion = suggestion
	return e
}

// WithSeverity overrides the severity, used to promote warnings to errors
func (e *CompilerError) WithSeverity(severity ErrorSeverity) *CompilerError {
	e.Severity = severity
	return e
}

// ErrorList is a collection of diagnostics
type ErrorList []*CompilerError

// Error implements the error interface
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors returns true if the list contains any errors (excludes warnings/info)
func (el ErrorList) HasErrors() bool {
	for _, err := range el {
		if err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if the list contains any warnings
func (el ErrorList) HasWarnings() bool {
	for _, err := range el {
		if err.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// ByCode returns the diagnostics carrying the given code
func (el ErrorList) ByCode(code ErrorCode) ErrorList {
	var out ErrorList
	for _, err := range el {
		if err.Code == code {
			out = append(out, err)
		}
	}
	return out
}

// Sort orders diagnostics by file, then position
func (el ErrorList) Sort() {
	sort.SliceStable(el, func(i, j int) bool {
		if el[i].File != el[j].File {
			return el[i].File < el[j].File
		}
		if el[i].Location.Line != el[j].Location.Line {
			return el[i].Location.Line < el[j].Location.Line
		}
		return el[i].Location.Column < el[j].Location.Column
	})
}

// ToJSON returns all errors as a JSON array
func (el ErrorList) ToJSON() (string, error) {
	if el == nil {
		el = ErrorList{}
	}
	bytes, err := json.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ErrorCount returns the number of errors by severity
func (el ErrorList) ErrorCount() (errors, warnings, info int) {
	for _, err := range el {
		switch err.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			info++
		}
	}
	return
}

// newError creates a new CompilerError with the given parameters
func newError(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	severity ErrorSeverity,
	message string,
	loc SourceLocation,
) *CompilerError {
	return &CompilerError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: severity,
		Message:  message,
		Location: loc,
	}
}

// Errorf builds an ad-hoc error-severity diagnostic for a macro. Macros use it
// through their context's ReportError.
func Errorf(loc SourceLocation, macro string, format string, args ...interface{}) *CompilerError {
	return newError(ErrMacroReported, "macro_reported", CategoryExpansion, SeverityError,
		fmt.Sprintf(format, args...), loc).WithMacro(macro)
}

// Warningf builds an ad-hoc warning diagnostic for a macro.
func Warningf(loc SourceLocation, macro string, format string, args ...interface{}) *CompilerError {
	return newError(ErrMacroReported, "macro_reported", CategoryExpansion, SeverityWarning,
		fmt.Sprintf(format, args...), loc).WithMacro(macro)
}
