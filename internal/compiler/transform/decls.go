package transform

import (
	"go/ast"
	"go/token"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// declEdit collects what the declaration phase does to one declaration
type declEdit struct {
	replaced    bool
	replacement []ast.Decl
	after       []ast.Decl
}

const priorities = 5

// expandDecls runs attribute and derive macros in priority order and
// rebuilds the declaration list from their results
func (fs *fileState) expandDecls() {
	if len(fs.sites) == 0 {
		return
	}
	fs.changed = true

	edits := make(map[ast.Decl]*declEdit)
	edit := func(d ast.Decl) *declEdit {
		e, ok := edits[d]
		if !ok {
			e = &declEdit{}
			edits[d] = e
		}
		return e
	}

	for p := 0; p < priorities; p++ {
		var group []directiveSite
		for _, site := range fs.sites {
			if priority(site.dir.Name) == p {
				group = append(group, site)
			}
		}
		if p == priority(deriveDirective) {
			fs.expandDerives(group, edit)
			continue
		}
		for _, site := range group {
			fs.expandAttribute(site, edit(site.decl))
		}
	}

	decls := make([]ast.Decl, 0, len(fs.file.Decls))
	for _, d := range fs.file.Decls {
		e, ok := edits[d]
		if !ok {
			decls = append(decls, d)
			continue
		}
		if e.replaced {
			decls = append(decls, e.replacement...)
		} else {
			decls = append(decls, d)
		}
		decls = append(decls, e.after...)
	}
	fs.file.Decls = decls

	// names declared by generated code are not macros
	for _, e := range edits {
		for _, d := range append(append([]ast.Decl(nil), e.replacement...), e.after...) {
			for _, name := range declNames(d) {
				fs.declared[name] = true
			}
		}
	}
}

func (fs *fileState) expandAttribute(site directiveSite, e *declEdit) {
	def, ok := fs.t.registry.Get(registry.KindAttribute, site.dir.Name)
	if !ok {
		fs.report(cerrors.NewUnknownAttribute(fs.location(site.dir.Pos), site.dir.Name).
			WithCandidates(site.dir.Name, append(fs.t.registry.All(registry.KindAttribute), deriveDirective)))
		return
	}
	args, ok := fs.directiveArgs(site.dir)
	if !ok {
		return
	}
	node := &registry.Annotated{Decl: site.decl, Directive: site.dir}
	fs.applyDecl(def, node, site.decl, args, e, false)
}

type deriveTarget struct {
	decl  *ast.GenDecl
	spec  *ast.TypeSpec
	names []string
	pos   token.Pos
}

// expandDerives runs the derive macros named by //sugar:derive directives.
// Types are visited so that a type is derived before the types whose fields
// mention it.
func (fs *fileState) expandDerives(sites []directiveSite, edit func(ast.Decl) *declEdit) {
	var targets []*deriveTarget
	bySpec := make(map[*ast.TypeSpec]*deriveTarget)

	for _, site := range sites {
		gd, ok := site.decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			fs.report(cerrors.Errorf(fs.location(site.dir.Pos), deriveDirective,
				"//sugar:derive must annotate a type declaration"))
			continue
		}
		var names []string
		for _, arg := range site.dir.Args {
			if !token.IsIdentifier(arg) {
				fs.report(cerrors.NewMalformedDirective(fs.location(site.dir.Pos), site.dir.Raw))
				names = nil
				break
			}
			names = append(names, arg)
		}
		if len(names) == 0 {
			continue
		}

		var specs []*ast.TypeSpec
		if ts, ok := site.spec.(*ast.TypeSpec); ok {
			specs = append(specs, ts)
		} else {
			for _, s := range gd.Specs {
				specs = append(specs, s.(*ast.TypeSpec))
			}
		}
		for _, ts := range specs {
			tg, ok := bySpec[ts]
			if !ok {
				tg = &deriveTarget{decl: gd, spec: ts, pos: site.dir.Pos}
				bySpec[ts] = tg
				targets = append(targets, tg)
			}
			tg.names = append(tg.names, names...)
		}
	}

	for _, tg := range orderTargets(fs.file, targets) {
		for _, name := range tg.names {
			def, ok := fs.t.registry.Get(registry.KindDerive, name)
			if !ok {
				fs.report(cerrors.NewUnknownDerive(fs.location(tg.pos), name, tg.spec.Name.Name).
					WithCandidates(name, fs.t.registry.All(registry.KindDerive)))
				continue
			}
			node := &registry.Derived{Decl: tg.decl, Spec: tg.spec}
			fs.applyDecl(def, node, node, nil, edit(tg.decl), true)
		}
	}
}

// orderTargets sorts targets so that every type comes after the annotated
// types its definition mentions, and a sum type after its variants. Cycles
// keep source order.
func orderTargets(file *ast.File, targets []*deriveTarget) []*deriveTarget {
	byName := make(map[string]*deriveTarget, len(targets))
	for _, tg := range targets {
		byName[tg.spec.Name.Name] = tg
	}

	var order []*deriveTarget
	state := make(map[*deriveTarget]int) // 1 visiting, 2 done
	var visit func(tg *deriveTarget)
	visit = func(tg *deriveTarget) {
		if state[tg] != 0 {
			return
		}
		state[tg] = 1
		for _, v := range registry.SumVariants(file, tg.spec) {
			if dep, ok := byName[v]; ok {
				visit(dep)
			}
		}
		ast.Inspect(tg.spec.Type, func(n ast.Node) bool {
			if id, ok := n.(*ast.Ident); ok {
				if dep, ok := byName[id.Name]; ok && dep != tg {
					visit(dep)
				}
			}
			return true
		})
		state[tg] = 2
		order = append(order, tg)
	}
	for _, tg := range targets {
		visit(tg)
	}
	return order
}

// applyDecl runs one declaration macro. Derive output always goes after the
// type; attribute output replaces the declaration unless it asks to keep it.
func (fs *fileState) applyDecl(def *registry.Definition, node, marker ast.Node, args []ast.Expr, e *declEdit, keep bool) {
	pos := fs.originOf(marker)
	fs.markers = append(fs.markers, pos)
	defer func() { fs.markers = fs.markers[:len(fs.markers)-1] }()

	out, ok := fs.expand(def, node, marker, args, shapeDecls)
	if !ok {
		return
	}
	res := out.res
	for _, d := range res.Decls {
		fs.inheritOrigin(d, pos)
	}

	original := declOf(marker)
	rec := fs.newRecord(def, original, false)
	rec.UnhygienicEscapes = out.escapes
	decls := res.Decls

	if keep || res.KeepOriginal || e.replaced {
		e.after = append(e.after, decls...)
		fs.records = append(fs.records, pendingRecord{rec: rec, text: func() string {
			if len(decls) == 0 {
				return fs.printNode(original)
			}
			return fs.printNode(original) + "\n\n" + fs.printDecls(decls)
		}})
	} else {
		e.replaced = true
		e.replacement = decls
		if original != nil {
			start := original.Pos()
			if doc := docOf(original); doc != nil {
				start = doc.Pos()
			}
			fs.removed = append(fs.removed, span{pos: start, end: original.End()})
		}
		fs.records = append(fs.records, pendingRecord{rec: rec, text: func() string {
			return fs.printDecls(decls)
		}})
	}

	fs.logger.Sugar().Debugf("expanded %s macro %s on %s", def.Kind, def.Name, fs.sourceName(marker))
}

func (fs *fileState) directiveArgs(dir registry.Directive) ([]ast.Expr, bool) {
	args := make([]ast.Expr, 0, len(dir.Args))
	for _, a := range dir.Args {
		expr, err := parseExpr(a)
		if err != nil {
			fs.report(cerrors.NewMalformedDirective(fs.location(dir.Pos), dir.Raw))
			return nil, false
		}
		args = append(args, expr)
	}
	return args, true
}

func declOf(n ast.Node) ast.Decl {
	switch v := n.(type) {
	case *registry.Derived:
		return v.Decl
	case *registry.Annotated:
		return v.Decl
	case ast.Decl:
		return v
	}
	return nil
}

func docOf(d ast.Decl) *ast.CommentGroup {
	switch d := d.(type) {
	case *ast.FuncDecl:
		return d.Doc
	case *ast.GenDecl:
		return d.Doc
	}
	return nil
}

// sourceName names the declaration a marker belongs to, for logging
func (fs *fileState) sourceName(marker ast.Node) string {
	if names := declNames(declOf(marker)); len(names) > 0 {
		return names[0]
	}
	return "<decl>"
}
