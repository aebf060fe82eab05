package errors

import (
	"fmt"
	"strings"
)

// Macro lookup diagnostics (MAC001-099)
const (
	// ErrUnknownMacro indicates a call-shaped marker names no registered macro
	ErrUnknownMacro ErrorCode = "MAC001"
	// ErrUnknownAttribute indicates a //sugar: directive names no attribute macro
	ErrUnknownAttribute ErrorCode = "MAC002"
	// ErrUnknownDerive indicates a derive directive names no derive macro
	ErrUnknownDerive ErrorCode = "MAC003"
)

// Expansion diagnostics (MAC100-199)
const (
	// ErrExpansionFailed indicates a macro's expand function returned an error
	ErrExpansionFailed ErrorCode = "MAC101"
	// ErrExpansionPanic indicates a macro's expand function panicked
	ErrExpansionPanic ErrorCode = "MAC102"
	// ErrEvaluationTimeout indicates a compile-time evaluation ran past its budget
	ErrEvaluationTimeout ErrorCode = "MAC103"
	// ErrMacroReported is used for diagnostics a macro reports itself
	ErrMacroReported ErrorCode = "MAC104"
	// ErrInvalidExpansion indicates a macro returned a result of the wrong shape
	ErrInvalidExpansion ErrorCode = "MAC105"
)

// Parse diagnostics (MAC200-299)
const (
	// ErrParseFailed indicates the input source could not be parsed
	ErrParseFailed ErrorCode = "MAC201"
	// ErrMalformedDirective indicates a //sugar: directive could not be read
	ErrMalformedDirective ErrorCode = "MAC202"
)

// Resolution diagnostics (MAC300-399)
const (
	// ErrResolutionFailed indicates no instance exists for an implicit parameter
	ErrResolutionFailed ErrorCode = "MAC301"
	// ErrDuplicateInstance indicates an instance replaced another for the same pair
	ErrDuplicateInstance ErrorCode = "MAC302"
)

// Termination diagnostics (MAC400-499)
const (
	// ErrDepthExceeded indicates nested expansion ran past the configured bound
	ErrDepthExceeded ErrorCode = "MAC401"
)

// Manifest diagnostics (MAC500-599)
const (
	// ErrManifestLoad indicates a manifest could not be loaded; defaults are used
	ErrManifestLoad ErrorCode = "MAC501"
)

// NewUnknownMacro creates a MAC001 diagnostic
func NewUnknownMacro(loc SourceLocation, kind, name string) *CompilerError {
	return newError(
		ErrUnknownMacro,
		"unknown_macro",
		CategoryMacro,
		SeverityWarning,
		fmt.Sprintf("'%s' is not declared and no %s macro named '%s' is registered", name, kind, name),
		loc,
	).WithMacro(name).
		WithSuggestion("Register the macro, declare the function, or check the spelling")
}

// NewUnknownAttribute creates a MAC002 diagnostic
func NewUnknownAttribute(loc SourceLocation, name string) *CompilerError {
	return newError(
		ErrUnknownAttribute,
		"unknown_attribute",
		CategoryMacro,
		SeverityWarning,
		fmt.Sprintf("Unknown attribute macro '%s'", name),
		loc,
	).WithMacro(name)
}

// NewUnknownDerive creates a MAC003 diagnostic
func NewUnknownDerive(loc SourceLocation, name, typeName string) *CompilerError {
	return newError(
		ErrUnknownDerive,
		"unknown_derive",
		CategoryMacro,
		SeverityWarning,
		fmt.Sprintf("Cannot derive '%s' for '%s': no derive macro named '%s'", name, typeName, name),
		loc,
	).WithMacro(name)
}

// NewExpansionFailed creates a MAC101 diagnostic
func NewExpansionFailed(loc SourceLocation, macro string, cause error) *CompilerError {
	return newError(
		ErrExpansionFailed,
		"expansion_failed",
		CategoryExpansion,
		SeverityError,
		fmt.Sprintf("Macro '%s' failed to expand: %v", macro, cause),
		loc,
	).WithMacro(macro)
}

// NewExpansionPanic creates a MAC102 diagnostic
func NewExpansionPanic(loc SourceLocation, macro string, recovered interface{}) *CompilerError {
	return newError(
		ErrExpansionPanic,
		"expansion_panic",
		CategoryExpansion,
		SeverityError,
		fmt.Sprintf("Macro '%s' panicked during expansion: %v", macro, recovered),
		loc,
	).WithMacro(macro)
}

// NewEvaluationTimeout creates a MAC103 diagnostic
func NewEvaluationTimeout(loc SourceLocation, macro string, budgetMillis int) *CompilerError {
	return newError(
		ErrEvaluationTimeout,
		"evaluation_timeout",
		CategoryExpansion,
		SeverityError,
		fmt.Sprintf("Compile-time evaluation in '%s' exceeded %dms", macro, budgetMillis),
		loc,
	).WithMacro(macro).
		WithSuggestion("Raise the timeout option or simplify the evaluated expression")
}

// NewInvalidExpansion creates a MAC105 diagnostic
func NewInvalidExpansion(loc SourceLocation, macro, expected string) *CompilerError {
	return newError(
		ErrInvalidExpansion,
		"invalid_expansion",
		CategoryExpansion,
		SeverityError,
		fmt.Sprintf("Macro '%s' returned a result that cannot replace this node", macro),
		loc,
	).WithMacro(macro).WithExpected(expected)
}

// NewParseFailed creates a MAC201 diagnostic
func NewParseFailed(loc SourceLocation, cause error) *CompilerError {
	return newError(
		ErrParseFailed,
		"parse_failed",
		CategoryParse,
		SeverityError,
		fmt.Sprintf("Source could not be parsed: %v", cause),
		loc,
	)
}

// NewMalformedDirective creates a MAC202 diagnostic
func NewMalformedDirective(loc SourceLocation, text string) *CompilerError {
	return newError(
		ErrMalformedDirective,
		"malformed_directive",
		CategoryParse,
		SeverityWarning,
		fmt.Sprintf("Malformed directive '%s'", text),
		loc,
	).WithSuggestion("Directives have the form //sugar:name arg1 arg2")
}

// NewResolutionFailed creates a MAC301 diagnostic
func NewResolutionFailed(loc SourceLocation, param, typeclass, forType string) *CompilerError {
	return newError(
		ErrResolutionFailed,
		"resolution_failed",
		CategoryResolution,
		SeverityError,
		fmt.Sprintf("No instance of %s for type %s to fill implicit parameter '%s'", typeclass, forType, param),
		loc,
	).WithExpected(fmt.Sprintf("%s[%s]", typeclass, forType)).
		WithSuggestion(fmt.Sprintf("Declare one with //sugar:instance %s %s or pass the argument explicitly", typeclass, forType))
}

// NewDuplicateInstance creates a MAC302 diagnostic
func NewDuplicateInstance(loc SourceLocation, typeclass, forType, previous, replacement string) *CompilerError {
	return newError(
		ErrDuplicateInstance,
		"duplicate_instance",
		CategoryResolution,
		SeverityWarning,
		fmt.Sprintf("Instance %s for %s.%s replaces %s", replacement, typeclass, forType, previous),
		loc,
	)
}

// NewDepthExceeded creates a MAC401 diagnostic
func NewDepthExceeded(loc SourceLocation, limit int, chain []string) *CompilerError {
	e := newError(
		ErrDepthExceeded,
		"depth_exceeded",
		CategoryTermination,
		SeverityError,
		fmt.Sprintf("Macro expansion exceeded depth %d: %s", limit, strings.Join(chain, " -> ")),
		loc,
	).WithSuggestion("A macro probably expands to a call of itself; raise max_expansion_depth only if the recursion is intended")
	e.Chain = chain
	if len(chain) > 0 {
		e.Macro = chain[0]
	}
	return e
}

// NewManifestLoad creates a MAC501 diagnostic
func NewManifestLoad(file string, cause error) *CompilerError {
	return newError(
		ErrManifestLoad,
		"manifest_load",
		CategoryManifest,
		SeverityWarning,
		fmt.Sprintf("Macro manifest ignored, using built-in defaults: %v", cause),
		SourceLocation{Line: 1, Column: 1},
	).WithFile(file)
}

// NewManifestEntry creates a MAC501 diagnostic for a manifest entry naming
// a macro the registry does not have
func NewManifestEntry(file, kind, name string) *CompilerError {
	return newError(
		ErrManifestLoad,
		"manifest_entry",
		CategoryManifest,
		SeverityWarning,
		fmt.Sprintf("Manifest entry for %s macro '%s' has no registered implementation and is ignored", kind, name),
		SourceLocation{Line: 1, Column: 1},
	).WithFile(file).WithMacro(name)
}
