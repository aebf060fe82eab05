package transform

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/astutil"

	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// shape is what a marker's position can hold
type shape int

const (
	shapeExpr shape = iota
	// shapeCall is the call of a go or defer statement
	shapeCall
	shapeExprOrStmts
	shapeStmts
	shapeDecls
)

func (s shape) String() string {
	switch s {
	case shapeExpr:
		return "an expression"
	case shapeCall:
		return "a call expression"
	case shapeExprOrStmts:
		return "an expression or statements"
	case shapeStmts:
		return "statements"
	case shapeDecls:
		return "declarations"
	}
	return "unknown"
}

func (s shape) accepts(res registry.Result) bool {
	switch s {
	case shapeExpr:
		return res.Expr != nil
	case shapeCall:
		_, ok := res.Expr.(*ast.CallExpr)
		return ok
	case shapeExprOrStmts:
		return res.Expr != nil || res.Stmts != nil
	case shapeStmts:
		return res.Stmts != nil
	case shapeDecls:
		return res.Decls != nil || res.KeepOriginal
	}
	return false
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

type timeoutError struct {
	budget time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("evaluation exceeded %s", e.budget)
}

// outcome is one successful call of a macro
type outcome struct {
	res       registry.Result
	fromCache bool
	escapes   int
}

// expandTree expands every marker under root and returns root, or its
// replacement when root itself was a marker. depth and chain describe the
// expansion that produced root; both are zero for the original file. A
// *DepthError aborts the walk.
func (fs *fileState) expandTree(root ast.Node, depth int, chain []string) (ast.Node, error) {
	var abort error
	result := astutil.Apply(root, func(c *astutil.Cursor) bool {
		n := c.Node()
		if abort != nil || n == nil || fs.done[n] {
			return false
		}

		switch n := n.(type) {
		case *ast.BlockStmt:
			n.List, abort = fs.expandStmtList(n.List, depth, chain)
		case *ast.CaseClause:
			n.Body, abort = fs.expandStmtList(n.Body, depth, chain)
		case *ast.CommClause:
			n.Body, abort = fs.expandStmtList(n.Body, depth, chain)
		case *ast.CallExpr:
			want := shapeExpr
			switch c.Parent().(type) {
			case *ast.GoStmt, *ast.DeferStmt:
				want = shapeCall
			}
			repl, handled, err := fs.expandCall(n, want, depth, chain)
			if err != nil {
				abort = err
				return false
			}
			if handled {
				if repl != nil {
					c.Replace(repl)
				}
				return false
			}
		case *ast.IndexExpr:
			repl, handled, err := fs.expandTypeMacro(n, n.X, []ast.Expr{n.Index}, depth, chain)
			if err != nil {
				abort = err
				return false
			}
			if handled {
				if repl != nil {
					c.Replace(repl)
				}
				return false
			}
		case *ast.IndexListExpr:
			repl, handled, err := fs.expandTypeMacro(n, n.X, n.Indices, depth, chain)
			if err != nil {
				abort = err
				return false
			}
			if handled {
				if repl != nil {
					c.Replace(repl)
				}
				return false
			}
		}
		return abort == nil
	}, nil)
	return result, abort
}

// expandStmtList handles the markers that need a statement list around
// them: labeled blocks with their continuations, and expression macros in
// statement position, which may expand to several statements
func (fs *fileState) expandStmtList(list []ast.Stmt, depth int, chain []string) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(list))
	for i := 0; i < len(list); i++ {
		stmt := list[i]
		if fs.done[stmt] {
			out = append(out, stmt)
			continue
		}

		switch s := stmt.(type) {
		case *ast.LabeledStmt:
			def, ok := fs.t.registry.Get(registry.KindLabeledBlock, s.Label.Name)
			if !ok {
				break
			}
			block := &registry.LabeledBlock{Stmt: s}
			j := i + 1
			for ; j < len(list); j++ {
				next, ok := list[j].(*ast.LabeledStmt)
				if !ok || !slices.Contains(def.Continuations, next.Label.Name) {
					break
				}
				block.Continuations = append(block.Continuations, next)
			}

			res, ok, err := fs.invoke(def, block, block, nil, shapeStmts, depth, chain)
			if err != nil {
				return list, err
			}
			if !ok {
				for _, frozen := range list[i:j] {
					fs.done[frozen] = true
				}
				out = append(out, list[i:j]...)
			} else {
				for _, r := range res.Stmts {
					fs.done[r] = true
				}
				out = append(out, res.Stmts...)
			}
			i = j - 1
			continue

		case *ast.ExprStmt:
			call, ok := s.X.(*ast.CallExpr)
			if !ok || fs.done[call] {
				break
			}
			id := registry.CalleeName(call)
			if id == nil || !fs.unresolved(id) {
				break
			}
			if templateLiteral(call) != nil && fs.t.registry.Has(id.Name, registry.KindTaggedTemplate) {
				break
			}
			def, ok := fs.t.registry.Get(registry.KindExpression, id.Name)
			if !ok {
				break
			}

			res, ok, err := fs.invoke(def, call, call, call.Args, shapeExprOrStmts, depth, chain)
			if err != nil {
				return list, err
			}
			if !ok {
				break
			}
			if res.Expr == nil {
				for _, r := range res.Stmts {
					fs.done[r] = true
				}
				out = append(out, res.Stmts...)
				continue
			}
			s.X = res.Expr
			fs.done[s] = true
		}
		out = append(out, stmt)
	}
	return out, nil
}

// expandCall expands a template or expression marker. handled reports that
// the walk must not descend into call: it was replaced by repl, or it failed
// and stays as written.
func (fs *fileState) expandCall(call *ast.CallExpr, want shape, depth int, chain []string) (repl ast.Expr, handled bool, err error) {
	id := registry.CalleeName(call)
	if id == nil || !fs.unresolved(id) {
		return nil, false, nil
	}

	if lit := templateLiteral(call); lit != nil {
		if def, ok := fs.t.registry.Get(registry.KindTaggedTemplate, id.Name); ok {
			tmpl, err := parseTemplate(lit.Value)
			if err != nil {
				loc := fs.location(fs.originOf(call))
				fs.report(cerrors.NewExpansionFailed(loc, def.Name, err))
				fs.done[call] = true
				return nil, true, nil
			}
			node := &registry.Template{Call: call, Strings: tmpl.strings, Exprs: tmpl.exprs}
			res, ok, err := fs.invoke(def, node, call, tmpl.exprs, want, depth, chain)
			if err != nil || !ok {
				return nil, true, err
			}
			return res.Expr, true, nil
		}
	}

	if def, ok := fs.t.registry.Get(registry.KindExpression, id.Name); ok {
		res, ok, err := fs.invoke(def, call, call, call.Args, want, depth, chain)
		if err != nil || !ok {
			return nil, true, err
		}
		return res.Expr, true, nil
	}

	fs.warnUnknown(id)
	return nil, false, nil
}

func (fs *fileState) expandTypeMacro(n, x ast.Expr, args []ast.Expr, depth int, chain []string) (ast.Expr, bool, error) {
	id, ok := x.(*ast.Ident)
	if !ok || !fs.unresolved(id) {
		return nil, false, nil
	}
	def, ok := fs.t.registry.Get(registry.KindType, id.Name)
	if !ok {
		return nil, false, nil
	}
	res, ok, err := fs.invoke(def, n, n, args, shapeExpr, depth, chain)
	if err != nil || !ok {
		return nil, true, err
	}
	return res.Expr, true, nil
}

// unresolved reports whether id may name a macro: nothing in the file or
// its package declares it
func (fs *fileState) unresolved(id *ast.Ident) bool {
	if fs.declared[id.Name] {
		return false
	}
	if fs.info != nil && fs.info.Uses[id] != nil {
		return false
	}
	return true
}

// warnUnknown reports a call of an undefined name. Only original code is
// checked; a dot import could declare anything, so those files are skipped.
func (fs *fileState) warnUnknown(id *ast.Ident) {
	if !id.Pos().IsValid() || fs.info == nil || fs.dotImport || fs.warned[id] {
		return
	}
	if types.Universe.Lookup(id.Name) != nil || fs.info.Defs[id] != nil {
		return
	}
	fs.warned[id] = true
	fs.report(cerrors.NewUnknownMacro(fs.location(id.Pos()), registry.KindExpression.String(), id.Name).
		WithCandidates(id.Name, fs.t.registry.All(registry.KindExpression)))
}

// invoke expands one marker, re-scans the output one level deeper and
// records the expansion. ok is false when the marker stays as written; the
// reason has been reported. Only a *DepthError is returned, and only to
// the levels below the outermost marker, which reports it.
func (fs *fileState) invoke(def *registry.Definition, node, marker ast.Node, args []ast.Expr, want shape, depth int, chain []string) (registry.Result, bool, error) {
	chain = append(chain[:len(chain):len(chain)], def.Name)
	limit := fs.t.config.MaxExpansionDepth
	if depth >= limit {
		return registry.Result{}, false, &DepthError{Limit: limit, Chain: chain}
	}

	pos := fs.originOf(marker)
	fs.markers = append(fs.markers, pos)
	defer func() { fs.markers = fs.markers[:len(fs.markers)-1] }()

	out, ok := fs.expand(def, node, marker, args, want)
	if !ok {
		fs.done[marker] = true
		return registry.Result{}, false, nil
	}

	mark := len(fs.records)
	rec := fs.newRecord(def, marker, out.fromCache)
	rec.UnhygienicEscapes = out.escapes
	fs.records = append(fs.records, pendingRecord{rec: rec})

	res := out.res
	var err error
	if res.Expr != nil {
		var n ast.Node
		if n, err = fs.expandTree(res.Expr, depth+1, chain); err == nil {
			res.Expr = n.(ast.Expr)
		}
	} else {
		block := &ast.BlockStmt{List: res.Stmts}
		_, err = fs.expandTree(block, depth+1, chain)
		res.Stmts = block.List
	}
	if err != nil {
		fs.records = fs.records[:mark]
		var depthErr *DepthError
		if depth == 0 && errors.As(err, &depthErr) {
			fs.report(cerrors.NewDepthExceeded(fs.location(pos), depthErr.Limit, depthErr.Chain))
			fs.done[marker] = true
			return registry.Result{}, false, nil
		}
		return registry.Result{}, false, err
	}

	if res.Expr != nil {
		fs.inheritOrigin(res.Expr, pos)
		expr := res.Expr
		fs.records[mark].text = func() string { return fs.printNode(expr) }
	} else {
		for _, s := range res.Stmts {
			fs.inheritOrigin(s, pos)
		}
		stmts := res.Stmts
		fs.records[mark].text = func() string { return fs.printStmts(stmts) }
	}
	if sp, ok := spanOf(marker); ok {
		fs.removed = append(fs.removed, sp)
	}
	fs.changed = true

	fs.logger.Debug("expanded macro",
		zap.String("macro", def.Name),
		zap.String("kind", def.Kind.String()),
		zap.Int("depth", depth),
		zap.Bool("cached", out.fromCache))
	return res, true, nil
}

// expand calls def once, through the expansion cache when def is pure, and
// checks the result fits the marker's position
func (fs *fileState) expand(def *registry.Definition, node, marker ast.Node, args []ast.Expr, want shape) (outcome, bool) {
	loc := fs.location(fs.originOf(marker))

	var key string
	if def.Cacheable && (want == shapeExpr || want == shapeCall || want == shapeExprOrStmts) {
		key = fs.t.hasher.ExpansionKey(def.Kind.String(), def.Name, fs.sourceOf(marker))
		if entry, hit := fs.t.cache.Get(key); hit {
			expr, err := parseExpr(entry.Text)
			if err == nil && want.accepts(registry.ExprResult(expr)) {
				return outcome{res: registry.ExprResult(expr), fromCache: true}, true
			}
			fs.t.cache.Invalidate(key)
		}
	}

	before := fs.t.hygiene.UnhygienicEscapes()
	res, err := fs.call(def, node, args)
	if err != nil {
		fs.report(fs.failure(def, loc, err))
		return outcome{}, false
	}
	if !want.accepts(res) {
		fs.report(cerrors.NewInvalidExpansion(loc, def.Name, want.String()))
		return outcome{}, false
	}
	if key != "" && res.Expr != nil {
		fs.t.cache.Set(key, def.Name, fs.printNode(res.Expr))
	}
	return outcome{res: res, escapes: fs.t.hygiene.UnhygienicEscapes() - before}, true
}

// call runs def.Expand inside a fresh hygiene scope. Panics become errors;
// evaluating macros are abandoned when their budget runs out.
func (fs *fileState) call(def *registry.Definition, node ast.Node, args []ast.Expr) (registry.Result, error) {
	ctx := context.Background()
	if def.Evaluating {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fs.t.config.Timeout)
		defer cancel()
	}
	mc := &macroContext{ctx: ctx, fs: fs, def: def, node: node}

	var res registry.Result
	err := fs.t.hygiene.WithScope(func() error {
		if !def.Evaluating {
			var err error
			res, err = protect(def, mc, node, args)
			return err
		}

		type result struct {
			res registry.Result
			err error
		}
		done := make(chan result, 1)
		go func() {
			r, err := protect(def, mc, node, args)
			done <- result{r, err}
		}()
		select {
		case r := <-done:
			res = r.res
			return r.err
		case <-ctx.Done():
			mc.detach()
			return &timeoutError{budget: fs.t.config.Timeout}
		}
	})
	return res, err
}

func protect(def *registry.Definition, ctx registry.MacroContext, node ast.Node, args []ast.Expr) (res registry.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return def.Expand(ctx, node, args)
}

// failure turns an expansion error into its diagnostic
func (fs *fileState) failure(def *registry.Definition, loc cerrors.SourceLocation, err error) *cerrors.CompilerError {
	var (
		pe *panicError
		te *timeoutError
		ce *cerrors.CompilerError
	)
	switch {
	case errors.As(err, &pe):
		return cerrors.NewExpansionPanic(loc, def.Name, pe.value)
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return cerrors.NewEvaluationTimeout(loc, def.Name, int(fs.t.config.Timeout.Milliseconds()))
	case errors.As(err, &ce):
		if ce.Location == (cerrors.SourceLocation{}) {
			ce.Location = loc
		}
		if ce.Macro == "" {
			ce.Macro = def.Name
		}
		return ce
	}
	return cerrors.NewExpansionFailed(loc, def.Name, err)
}

// templateLiteral returns the string literal of a call shaped like a
// tagged template, or nil
func templateLiteral(call *ast.CallExpr) *ast.BasicLit {
	if len(call.Args) != 1 || call.Ellipsis.IsValid() {
		return nil
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return nil
	}
	return lit
}

type template struct {
	strings []string
	exprs   []ast.Expr
}

// parseTemplate splits a template literal on ${expr} interpolations
func parseTemplate(lit string) (template, error) {
	text, err := strconv.Unquote(lit)
	if err != nil {
		return template{}, errors.Wrap(err, "template literal")
	}

	var t template
	var cur strings.Builder
	for i := 0; i < len(text); {
		if !strings.HasPrefix(text[i:], "${") {
			cur.WriteByte(text[i])
			i++
			continue
		}
		end := matchBrace(text, i+2)
		if end < 0 {
			return template{}, errors.Newf("unterminated ${ at offset %d", i)
		}
		src := strings.TrimSpace(text[i+2 : end])
		expr, err := parseExpr(src)
		if err != nil {
			return template{}, errors.Wrapf(err, "template expression %q", src)
		}
		t.strings = append(t.strings, cur.String())
		t.exprs = append(t.exprs, expr)
		cur.Reset()
		i = end + 1
	}
	t.strings = append(t.strings, cur.String())
	return t, nil
}

func matchBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
