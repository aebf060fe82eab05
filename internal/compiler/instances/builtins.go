package instances

import "fmt"

var builtinTypeclasses = []Typeclass{
	{Name: "Eq", TypeParams: 1, Methods: []string{"Equals"}},
	{Name: "Ord", TypeParams: 1, Methods: []string{"Equals", "Compare"}},
	{Name: "Show", TypeParams: 1, Methods: []string{"Show"}},
	{Name: "Hash", TypeParams: 1, Methods: []string{"Hash"}},
}

var numericTypes = []string{
	"int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
	"float32", "float64",
}

func seedBuiltins(r *Registry) {
	for _, tc := range builtinTypeclasses {
		tc.Package = TypeclassPackage
		tc.Builtin = true
		r.RegisterTypeclass(tc)
	}

	builtin := func(tc, typ, expr string) {
		r.RegisterInstance(Instance{
			Typeclass: tc,
			ForType:   typ,
			Name:      fmt.Sprintf("%s[%s]", tc, typ),
			Expr:      expr,
			Imports:   []string{TypeclassPackage},
			Builtin:   true,
			Origin:    "<builtin>",
		})
	}

	for _, typ := range append(numericTypes, "string") {
		builtin("Eq", typ, fmt.Sprintf("typeclass.EqComparable[%s]()", typ))
		builtin("Ord", typ, fmt.Sprintf("typeclass.OrdOrdered[%s]()", typ))
		builtin("Hash", typ, fmt.Sprintf("typeclass.HashOf[%s]()", typ))
		if typ != "string" {
			builtin("Show", typ, fmt.Sprintf("typeclass.ShowFmt[%s]()", typ))
		}
	}
	builtin("Show", "string", "typeclass.ShowString()")

	builtin("Eq", "bool", "typeclass.EqComparable[bool]()")
	builtin("Ord", "bool", "typeclass.OrdBool()")
	builtin("Show", "bool", "typeclass.ShowFmt[bool]()")
	builtin("Hash", "bool", "typeclass.HashOf[bool]()")
}
