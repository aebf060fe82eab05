package transform

import (
	"go/ast"
	"strings"
	"unicode"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

const directivePrefix = "//sugar:"

// deriveDirective is dispatched by the transformer itself: each argument
// names a derive macro
const deriveDirective = "derive"

// directiveSite is one directive together with the declaration carrying it.
// spec is set when the directive sits on one spec of a grouped declaration.
type directiveSite struct {
	decl  ast.Decl
	spec  ast.Spec
	dir   registry.Directive
	order int
}

func isDirective(text string) bool {
	return strings.HasPrefix(text, directivePrefix)
}

// collectDirectives builds the directive side table in source order
func (fs *fileState) collectDirectives() {
	add := func(decl ast.Decl, spec ast.Spec, doc *ast.CommentGroup) {
		if doc == nil {
			return
		}
		for _, c := range doc.List {
			if !isDirective(c.Text) {
				continue
			}
			dir, ok := parseDirective(c)
			if !ok {
				fs.report(cerrors.NewMalformedDirective(fs.location(c.Pos()), c.Text))
				continue
			}
			fs.sites = append(fs.sites, directiveSite{decl: decl, spec: spec, dir: dir, order: len(fs.sites)})
		}
	}

	for _, d := range fs.file.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			add(d, nil, d.Doc)
		case *ast.GenDecl:
			add(d, nil, d.Doc)
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					add(d, s, s.Doc)
				case *ast.ValueSpec:
					add(d, s, s.Doc)
				}
			}
		}
	}
}

func parseDirective(c *ast.Comment) (registry.Directive, bool) {
	body := strings.TrimPrefix(c.Text, directivePrefix)
	name, rest, _ := strings.Cut(body, " ")
	name = strings.TrimSpace(name)
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return registry.Directive{}, false
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return registry.Directive{}, false
		}
	}
	args, ok := splitArgs(rest)
	if !ok {
		return registry.Directive{}, false
	}
	return registry.Directive{Name: name, Args: args, Raw: c.Text, Pos: c.Pos()}, true
}

// splitArgs splits directive arguments on spaces and commas outside
// brackets, so "Show, Pair[int, string]" is two arguments
func splitArgs(s string) ([]string, bool) {
	var args []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '[' || r == '(' || r == '{':
			depth++
			cur.WriteRune(r)
		case r == ']' || r == ')' || r == '}':
			depth--
			if depth < 0 {
				return nil, false
			}
			cur.WriteRune(r)
		case depth == 0 && (r == ',' || unicode.IsSpace(r)):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, false
	}
	flush()
	return args, true
}

// priority orders directives so that typeclasses exist before the implicit
// functions and instances that mention them, and instances exist before
// derived code summons them
func priority(name string) int {
	switch name {
	case "typeclass":
		return 0
	case "implicits":
		return 1
	case "instance":
		return 2
	case deriveDirective:
		return 3
	}
	return 4
}
