package registry

import (
	"go/ast"
	"go/token"
)

// SealedMethods returns the method names of an interface made only of
// methods, or nil for any other type. Such an interface closes a sum type
// over the types of its package that implement it.
func SealedMethods(spec *ast.TypeSpec) []string {
	it, ok := spec.Type.(*ast.InterfaceType)
	if !ok || spec.TypeParams != nil || it.Methods == nil {
		return nil
	}
	var names []string
	for _, m := range it.Methods.List {
		if _, ok := m.Type.(*ast.FuncType); !ok || len(m.Names) == 0 {
			// embedded interfaces and type constraints
			return nil
		}
		for _, n := range m.Names {
			names = append(names, n.Name)
		}
	}
	return names
}

// SumVariants returns, in declaration order, the non-generic named types of
// file whose value receivers implement every method of the sealed interface
// spec. It returns nil when spec is not a sealed interface.
func SumVariants(file *ast.File, spec *ast.TypeSpec) []string {
	want := SealedMethods(spec)
	if len(want) == 0 {
		return nil
	}

	methods := make(map[string]map[string]bool)
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) != 1 {
			continue
		}
		recv, ok := fd.Recv.List[0].Type.(*ast.Ident)
		if !ok {
			continue
		}
		if methods[recv.Name] == nil {
			methods[recv.Name] = make(map[string]bool)
		}
		methods[recv.Name][fd.Name.Name] = true
	}

	var variants []string
	for _, d := range file.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, s := range gd.Specs {
			ts, ok := s.(*ast.TypeSpec)
			if !ok || ts.Name.Name == spec.Name.Name || ts.TypeParams != nil {
				continue
			}
			if _, ok := ts.Type.(*ast.InterfaceType); ok {
				continue
			}
			if hasAll(methods[ts.Name.Name], want) {
				variants = append(variants, ts.Name.Name)
			}
		}
	}
	return variants
}

func hasAll(set map[string]bool, names []string) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}
