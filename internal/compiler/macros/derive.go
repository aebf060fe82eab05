package macros

import (
	"fmt"
	"go/ast"
	"go/types"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/conduit-lang/sugar/internal/compiler/instances"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// derivation describes a typeclass derivable through the combinators in
// pkg/typeclass: from per-field instances for a struct, from per-variant
// instances for a sealed interface
type derivation struct {
	typeclass string
	product   string
	sum       string
	erase     string
	// named product combinators take the type name first
	named bool
}

var derivations = []derivation{
	{typeclass: "Eq", product: "EqProduct", sum: "EqSum", erase: "EraseEq"},
	{typeclass: "Ord", product: "OrdProduct", sum: "OrdSum", erase: "EraseOrd"},
	{typeclass: "Show", product: "ShowProduct", sum: "ShowSum", erase: "EraseShow", named: true},
	{typeclass: "Hash", product: "HashProduct", sum: "HashSum", erase: "EraseHash"},
}

type structField struct {
	name string
	typ  string
}

// product is a struct type seen as its ordered fields
type product struct {
	name   string
	fields []structField
}

func productOf(node ast.Node) (*product, error) {
	d, ok := node.(*registry.Derived)
	if !ok {
		return nil, errors.Newf("unexpected %T", node)
	}
	name := d.Spec.Name.Name
	if d.Spec.TypeParams != nil {
		return nil, errors.Newf("%s is generic; derive instances for its instantiations by hand", name)
	}
	st, ok := d.Spec.Type.(*ast.StructType)
	if !ok {
		return nil, errors.Newf("%s is neither a struct type nor a sealed interface", name)
	}

	p := &product{name: name}
	for _, f := range st.Fields.List {
		typ := types.ExprString(f.Type)
		if len(f.Names) == 0 {
			p.fields = append(p.fields, structField{name: embeddedName(f.Type), typ: typ})
			continue
		}
		for _, n := range f.Names {
			if n.Name == "_" {
				continue
			}
			p.fields = append(p.fields, structField{name: n.Name, typ: typ})
		}
	}
	return p, nil
}

// sum is a sealed interface seen as the types implementing it
type sum struct {
	name     string
	variants []string
}

// sumOf returns the sum type of node, or nil when it is not a sealed
// interface
func sumOf(ctx registry.MacroContext, node ast.Node) (*sum, error) {
	d, ok := node.(*registry.Derived)
	if !ok || len(registry.SealedMethods(d.Spec)) == 0 {
		return nil, nil
	}
	variants := registry.SumVariants(ctx.File(), d.Spec)
	if len(variants) == 0 {
		return nil, errors.Newf("no type in %s implements %s", ctx.FileName(), d.Spec.Name.Name)
	}
	return &sum{name: d.Spec.Name.Name, variants: variants}, nil
}

func embeddedName(t ast.Expr) string {
	switch t := t.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	}
	return types.ExprString(t)
}

// instanceName is the variable a derived instance is bound to: EqPoint for
// Point, eqPoint for point
func instanceName(typeclass, typ string) string {
	r, _ := utf8.DecodeRuneInString(typ)
	if unicode.IsUpper(r) {
		return typeclass + typ
	}
	first, size := utf8.DecodeRuneInString(typeclass)
	rest := []rune(typ)
	rest[0] = unicode.ToUpper(rest[0])
	return string(unicode.ToLower(first)) + typeclass[size:] + string(rest)
}

func checkFree(ctx registry.MacroContext, name string) error {
	for _, d := range ctx.File().Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.Name == name {
				return errors.Newf("%s is already declared", name)
			}
		case *ast.GenDecl:
			for _, s := range d.Specs {
				switch s := s.(type) {
				case *ast.TypeSpec:
					if s.Name.Name == name {
						return errors.Newf("%s is already declared", name)
					}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.Name == name {
							return errors.Newf("%s is already declared", name)
						}
					}
				}
			}
		}
	}
	return nil
}

// genericOf returns the Generic value for p: a derived Generic instance
// when there is one, a literal otherwise
func genericOf(ctx registry.MacroContext, tc string, p *product) string {
	if inst, ok := ctx.Instances().Lookup("Generic", p.name); ok {
		return inst.Expr
	}
	v := ctx.GenerateUniqueName("v").Name
	r := ctx.GenerateUniqueName("rep").Name

	names := make([]string, len(p.fields))
	values := make([]string, len(p.fields))
	inits := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = strconv.Quote(f.name)
		values[i] = v + "." + f.name
		inits[i] = fmt.Sprintf("%s: %s.Values[%d].(%s)", f.name, r, i, f.typ)
	}
	return fmt.Sprintf("%[1]s.Generic[%[2]s, %[1]s.Product]{"+
		"To: func(%[3]s %[2]s) %[1]s.Product { return %[1]s.Product{Names: []string{%[5]s}, Values: []any{%[6]s}} }, "+
		"From: func(%[4]s %[1]s.Product) %[2]s { return %[2]s{%[7]s} }}",
		tc, p.name, v, r,
		strings.Join(names, ", "), strings.Join(values, ", "), strings.Join(inits, ", "))
}

// sumGenericOf is genericOf for sum types: To switches over the variants in
// declaration order
func sumGenericOf(ctx registry.MacroContext, tc string, s *sum) string {
	if inst, ok := ctx.Instances().Lookup("Generic", s.name); ok {
		return inst.Expr
	}
	v := ctx.GenerateUniqueName("v").Name
	x := ctx.GenerateUniqueName("x").Name
	r := ctx.GenerateUniqueName("rep").Name

	cases := make([]string, len(s.variants))
	for i, variant := range s.variants {
		cases[i] = fmt.Sprintf("case %s: return %s.Sum{Tag: %q, Index: %d, Value: %s}", variant, tc, variant, i, x)
	}
	return fmt.Sprintf("%[1]s.Generic[%[2]s, %[1]s.Sum]{"+
		"To: func(%[3]s %[2]s) %[1]s.Sum { switch %[4]s := %[3]s.(type) { %[6]s }; return %[1]s.Sum{Index: -1} }, "+
		"From: func(%[5]s %[1]s.Sum) %[2]s { if %[5]s.IsNil() { return nil }; return %[5]s.Value.(%[2]s) }}",
		tc, s.name, v, x, r, strings.Join(cases, "; "))
}

func (d derivation) expandSum(ctx registry.MacroContext, node ast.Node, s *sum) (registry.Result, error) {
	name := instanceName(d.typeclass, s.name)
	if err := checkFree(ctx, name); err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s for %s", d.typeclass, s.name)
	}

	tc := ctx.AddImport(instances.TypeclassPackage)
	entries := make([]string, len(s.variants))
	for i, v := range s.variants {
		inst, err := ctx.Resolve(d.typeclass, v)
		if err != nil {
			return registry.Result{}, errors.Wrapf(err, "derive %s for %s: variant %s", d.typeclass, s.name, v)
		}
		entries[i] = fmt.Sprintf("%q: %s.%s(%s)", v, tc, d.erase, ctx.Print(inst))
	}

	src := fmt.Sprintf("var %s %s.%s[%s] = %s.%s[%s](%s, map[string]%s.%s[any]{%s})",
		name, tc, d.typeclass, s.name, tc, d.sum, s.name, sumGenericOf(ctx, tc, s),
		tc, d.typeclass, strings.Join(entries, ", "))
	decls, err := ctx.ParseDecls(src)
	if err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s for %s", d.typeclass, s.name)
	}

	ctx.Instances().RegisterInstance(instances.Instance{
		Typeclass: d.typeclass,
		ForType:   s.name,
		Name:      name,
		Derived:   true,
		Origin:    origin(ctx, node),
	})
	return registry.AppendDecls(decls...), nil
}

func (d derivation) expand(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	s, err := sumOf(ctx, node)
	if err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s", d.typeclass)
	}
	if s != nil {
		return d.expandSum(ctx, node, s)
	}

	p, err := productOf(node)
	if err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s", d.typeclass)
	}
	name := instanceName(d.typeclass, p.name)
	if err := checkFree(ctx, name); err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s for %s", d.typeclass, p.name)
	}

	tc := ctx.AddImport(instances.TypeclassPackage)
	callArgs := []string{genericOf(ctx, tc, p)}
	if d.named {
		callArgs = append([]string{strconv.Quote(p.name)}, callArgs...)
	}
	for _, f := range p.fields {
		inst, err := ctx.Resolve(d.typeclass, f.typ)
		if err != nil {
			return registry.Result{}, errors.Wrapf(err, "derive %s for %s: field %s", d.typeclass, p.name, f.name)
		}
		callArgs = append(callArgs, fmt.Sprintf("%s.%s(%s)", tc, d.erase, ctx.Print(inst)))
	}

	src := fmt.Sprintf("var %s %s.%s[%s] = %s.%s[%s](%s)",
		name, tc, d.typeclass, p.name, tc, d.product, p.name, strings.Join(callArgs, ", "))
	decls, err := ctx.ParseDecls(src)
	if err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive %s for %s", d.typeclass, p.name)
	}

	ctx.Instances().RegisterInstance(instances.Instance{
		Typeclass: d.typeclass,
		ForType:   p.name,
		Name:      name,
		Derived:   true,
		Origin:    origin(ctx, node),
	})
	return registry.AppendDecls(decls...), nil
}

// deriveGeneric binds the generic representation of a struct or sealed
// interface to a variable and registers it, so that later derives for the
// type reuse it
func deriveGeneric(ctx registry.MacroContext, node ast.Node, args []ast.Expr) (registry.Result, error) {
	s, err := sumOf(ctx, node)
	if err != nil {
		return registry.Result{}, errors.Wrap(err, "derive Generic")
	}
	var typeName string
	var generic func(tc string) string
	if s != nil {
		typeName = s.name
		generic = func(tc string) string { return sumGenericOf(ctx, tc, s) }
	} else {
		p, err := productOf(node)
		if err != nil {
			return registry.Result{}, errors.Wrap(err, "derive Generic")
		}
		typeName = p.name
		generic = func(tc string) string { return genericOf(ctx, tc, p) }
	}

	name := instanceName("Generic", typeName)
	if err := checkFree(ctx, name); err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive Generic for %s", typeName)
	}

	tc := ctx.AddImport(instances.TypeclassPackage)
	decls, err := ctx.ParseDecls(fmt.Sprintf("var %s = %s", name, generic(tc)))
	if err != nil {
		return registry.Result{}, errors.Wrapf(err, "derive Generic for %s", typeName)
	}
	ctx.Instances().RegisterInstance(instances.Instance{
		Typeclass: "Generic",
		ForType:   typeName,
		Name:      name,
		Derived:   true,
		Origin:    origin(ctx, node),
	})
	return registry.AppendDecls(decls...), nil
}
