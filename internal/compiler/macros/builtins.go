// Package macros is the built-in macro library. It has one or more macros
// of every kind and is what `sugar expand` runs with.
package macros

import (
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// Package is the import path recorded as the source of the built-ins
const Package = "github.com/conduit-lang/sugar/internal/compiler/macros"

// Builtins returns fresh definitions of every built-in macro
func Builtins() []*registry.Definition {
	defs := []*registry.Definition{
		registry.DefineExpressionMacro("stringify", stringify,
			registry.WithDescription("Turns its argument into a string literal of its source"),
			registry.WithArgs("expr"),
			registry.Cacheable()),
		registry.DefineExpressionMacro("comptime", comptime,
			registry.WithDescription("Folds a constant expression at compile time"),
			registry.WithArgs("expr"),
			registry.Evaluating()),
		registry.DefineExpressionMacro("includeStr", includeStr,
			registry.WithDescription("Embeds a file, relative to the current file, as a string literal"),
			registry.WithArgs("path")),
		registry.DefineExpressionMacro("includeJSON", includeData(decodeJSON),
			registry.WithDescription("Embeds a JSON file as a Go composite literal"),
			registry.WithArgs("path")),
		registry.DefineExpressionMacro("includeYAML", includeData(decodeYAML),
			registry.WithDescription("Embeds a YAML file as a Go composite literal"),
			registry.WithArgs("path")),
		registry.DefineExpressionMacro("summon", summon,
			registry.WithDescription("Resolves a typeclass instance, as in summon[Show[int]]()"),
			registry.WithArgs("[TC[T]]")),

		registry.DefineAttributeMacro("typeclass", typeclassAttr,
			registry.WithDescription("Registers an interface type as a typeclass")),
		registry.DefineAttributeMacro("instance", instanceAttr,
			registry.WithDescription("Registers a variable or function as a typeclass instance"),
			registry.WithArgs("typeclass", "type")),
		registry.DefineAttributeMacro("implicits", implicitsAttr,
			registry.WithDescription("Marks typeclass parameters of a function as implicit"),
			registry.WithArgs("names...")),

		registry.DefineTaggedTemplateMacro("fstr", fstr,
			registry.WithDescription("String interpolation through fmt.Sprintf")),
		registry.DefineTaggedTemplateMacro("regex", regex,
			registry.WithDescription("A regular expression checked at compile time")),

		registry.DefineLabeledBlockMacro("timed", timed,
			registry.WithDescription("Logs how long the block took")),
		registry.DefineLabeledBlockMacro("debugOnly", debugOnly,
			registry.WithDescription("Keeps the block in debug builds, the release block otherwise"),
			registry.WithContinuations("release")),

		registry.DefineTypeMacro("Nullable", nullable,
			registry.WithDescription("Nullable[T] is *T"),
			registry.WithArgs("T"),
			registry.Cacheable()),
		registry.DefineTypeMacro("Readonly", readonly,
			registry.WithDescription("Readonly[T] is T; the marker documents intent"),
			registry.WithArgs("T"),
			registry.Cacheable()),
	}
	for _, d := range derivations {
		defs = append(defs, registry.DefineDeriveMacro(d.typeclass, d.expand,
			registry.WithDescription("Derives "+d.typeclass+" for a struct from its fields' instances, or for a sealed interface from its variants' instances")))
	}
	defs = append(defs, registry.DefineDeriveMacro("Generic", deriveGeneric,
		registry.WithDescription("Derives the generic product or sum representation of a type")))

	for _, d := range defs {
		d.SourcePackage = Package
	}
	return defs
}

// RegisterBuiltins registers every built-in macro in reg
func RegisterBuiltins(reg *registry.Registry) {
	reg.MustRegister(Builtins()...)
}
