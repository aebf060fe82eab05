package transform

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
	"github.com/conduit-lang/sugar/internal/compiler/tracker"
)

// snippetHeader turns a declaration list without a package clause into a
// file. It shares the first line with the snippet so line numbers hold.
const snippetHeader = "package main; "

// pendingRecord is an expansion record whose expanded text may only be known
// once the rest of the file has been expanded
type pendingRecord struct {
	rec  tracker.ExpansionRecord
	text func() string
}

// fileState is everything one Transform call knows about its file
type fileState struct {
	t        *Transformer
	logger   *zap.Logger
	fset     *token.FileSet
	file     *ast.File
	fileName string
	src      []byte
	// header is the length of the synthetic package clause, 0 for full files
	header int

	info      *types.Info
	pkg       *types.Package
	declared  map[string]bool
	dotImport bool

	sites   []directiveSite
	origin  map[ast.Node]token.Pos
	markers []token.Pos
	removed []span
	done    map[ast.Node]bool
	warned  map[*ast.Ident]bool

	records []pendingRecord
	diags   cerrors.ErrorList
	changed bool
}

func (t *Transformer) parse(source, fileName string) (*fileState, *cerrors.CompilerError) {
	text := source
	header := 0
	if _, err := parser.ParseFile(token.NewFileSet(), fileName, source, parser.PackageClauseOnly); err != nil {
		text = snippetHeader + source
		header = len(snippetHeader)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, fileName, text, parser.ParseComments)
	if err != nil {
		loc := cerrors.SourceLocation{Line: 1, Column: 1}
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			loc.Line = list[0].Pos.Line
			loc.Column = list[0].Pos.Column
			loc.Offset = list[0].Pos.Offset - header
			if loc.Line == 1 {
				loc.Column -= header
			}
		}
		return nil, cerrors.NewParseFailed(loc, err).WithFile(fileName)
	}

	fs := &fileState{
		t:        t,
		logger:   t.logger.With(zap.String("file", fileName)),
		fset:     fset,
		file:     file,
		fileName: fileName,
		src:      []byte(text),
		header:   header,
		declared: make(map[string]bool),
		origin:   make(map[ast.Node]token.Pos),
		done:     make(map[ast.Node]bool),
		warned:   make(map[*ast.Ident]bool),
	}
	for name := range t.declared {
		fs.declared[name] = true
	}
	for _, imp := range file.Imports {
		if imp.Name != nil && imp.Name.Name == "." {
			fs.dotImport = true
		}
	}
	for _, d := range file.Decls {
		for _, name := range declNames(d) {
			fs.declared[name] = true
		}
	}
	return fs, nil
}

// typeCheck collects best-effort type information. Errors are expected:
// every marker is an undefined name until it is expanded.
func (fs *fileState) typeCheck() {
	fs.info = &types.Info{
		Types:     make(map[ast.Expr]types.TypeAndValue),
		Defs:      make(map[*ast.Ident]types.Object),
		Uses:      make(map[*ast.Ident]types.Object),
		Instances: make(map[*ast.Ident]types.Instance),
	}
	conf := types.Config{
		Importer: fs.t.config.Importer,
		Error:    func(error) {},
	}
	fs.pkg, _ = conf.Check(fs.file.Name.Name, fs.fset, []*ast.File{fs.file}, fs.info)
}

// declNames returns the top-level names a declaration introduces
func declNames(d ast.Decl) []string {
	var names []string
	switch d := d.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			names = append(names, d.Name.Name)
		}
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				names = append(names, s.Name.Name)
			case *ast.ValueSpec:
				for _, n := range s.Names {
					names = append(names, n.Name)
				}
			}
		}
	}
	return names
}

// location converts a position of the parsed text into the caller's
// coordinates, undoing the snippet header
func (fs *fileState) location(pos token.Pos) cerrors.SourceLocation {
	if !pos.IsValid() {
		return cerrors.SourceLocation{Line: 1, Column: 1}
	}
	p := fs.fset.Position(pos)
	loc := cerrors.SourceLocation{Line: p.Line, Column: p.Column, Offset: p.Offset - fs.header}
	if p.Line == 1 {
		loc.Column -= fs.header
	}
	return loc
}

func (fs *fileState) report(d *cerrors.CompilerError) {
	if d.File == "" {
		d.File = fs.fileName
	}
	fs.diags = append(fs.diags, d)
}

// newRecord snapshots marker in caller coordinates
func (fs *fileState) newRecord(def *registry.Definition, marker ast.Node, fromCache bool) tracker.ExpansionRecord {
	rec := tracker.NewRecord(def.Name, fs.fset, marker, fs.src, fs.fileName, "", fromCache)
	rec.Shift(fs.header)
	rec.SourcePackage = def.SourcePackage
	return rec
}

// sourceOf returns the original text of n, or its printed form when n is
// synthetic
func (fs *fileState) sourceOf(n ast.Node) string {
	if n != nil && n.Pos().IsValid() && n.End().IsValid() {
		if tf := fs.fset.File(n.Pos()); tf != nil {
			start, end := tf.Offset(n.Pos()), tf.Offset(n.End())
			if start >= 0 && end <= len(fs.src) && start <= end {
				return string(fs.src[start:end])
			}
		}
	}
	return fs.printNode(n)
}

// printNode formats n as Go source, unwrapping the marker node types
func (fs *fileState) printNode(n ast.Node) string {
	var target interface{} = n
	switch v := n.(type) {
	case nil:
		return ""
	case *registry.Annotated:
		target = v.Decl
	case *registry.Derived:
		target = v.Decl
	case *registry.Template:
		target = v.Call
	case *registry.LabeledBlock:
		stmts := []ast.Stmt{v.Stmt}
		for _, c := range v.Continuations {
			stmts = append(stmts, c)
		}
		target = stmts
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fs.fset, target); err != nil {
		if e, ok := n.(ast.Expr); ok {
			return types.ExprString(e)
		}
		return ""
	}
	return buf.String()
}

func (fs *fileState) printStmts(stmts []ast.Stmt) string {
	var buf bytes.Buffer
	if err := format.Node(&buf, fs.fset, stmts); err != nil {
		return ""
	}
	return buf.String()
}

func (fs *fileState) printDecls(decls []ast.Decl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, fs.printNode(d))
	}
	return strings.Join(parts, "\n\n")
}

// cleanComments drops comments that belonged to replaced code and every
// sugar directive, which has been consumed by now
func (fs *fileState) cleanComments() {
	var kept []*ast.CommentGroup
	for _, g := range fs.file.Comments {
		if fs.inRemoved(g.Pos()) {
			g.List = nil
			continue
		}
		list := make([]*ast.Comment, 0, len(g.List))
		for _, c := range g.List {
			if !isDirective(c.Text) {
				list = append(list, c)
			}
		}
		if len(list) > 0 && len(list) < len(g.List) {
			// move the kept lines down over the dropped ones so the group
			// still ends right above the declaration it documents
			slots := g.List[len(g.List)-len(list):]
			moved := make([]token.Pos, len(slots))
			for i, c := range slots {
				moved[i] = c.Slash
			}
			for i, c := range list {
				c.Slash = moved[i]
			}
		}
		g.List = list
		if len(g.List) > 0 {
			kept = append(kept, g)
		}
	}
	fs.file.Comments = kept

	dropEmpty := func(g **ast.CommentGroup) {
		if *g != nil && len((*g).List) == 0 {
			*g = nil
		}
	}
	for _, d := range fs.file.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			dropEmpty(&d.Doc)
		case *ast.GenDecl:
			dropEmpty(&d.Doc)
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					dropEmpty(&s.Doc)
					dropEmpty(&s.Comment)
				case *ast.ValueSpec:
					dropEmpty(&s.Doc)
					dropEmpty(&s.Comment)
				case *ast.ImportSpec:
					dropEmpty(&s.Doc)
					dropEmpty(&s.Comment)
				}
			}
		}
	}
	ast.Inspect(fs.file, func(n ast.Node) bool {
		if f, ok := n.(*ast.Field); ok {
			dropEmpty(&f.Doc)
			dropEmpty(&f.Comment)
		}
		return true
	})
}

func (fs *fileState) inRemoved(p token.Pos) bool {
	for _, s := range fs.removed {
		if s.contains(p) {
			return true
		}
	}
	return false
}

// print renders the rewritten file; snippets lose their synthetic header
func (fs *fileState) print() (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fs.fset, fs.file); err != nil {
		return "", err
	}
	out := buf.Bytes()
	if formatted, err := format.Source(out); err == nil {
		out = formatted
	}

	code := string(out)
	if fs.header > 0 {
		code = strings.TrimPrefix(code, "package main\n")
		code = strings.TrimLeft(code, "\n")
	}
	return code, nil
}
