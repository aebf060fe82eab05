// Package transform rewrites Go source by expanding macro markers: calls of
// undeclared names registered as macros, //sugar: directives on
// declarations, labeled blocks and generic-looking type expressions. It
// then completes calls of functions with implicit parameters.
package transform

import (
	"go/ast"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/compiler/cache"
	cerrors "github.com/conduit-lang/sugar/internal/compiler/errors"
	"github.com/conduit-lang/sugar/internal/compiler/hygiene"
	"github.com/conduit-lang/sugar/internal/compiler/implicits"
	"github.com/conduit-lang/sugar/internal/compiler/instances"
	"github.com/conduit-lang/sugar/internal/compiler/macros"
	"github.com/conduit-lang/sugar/internal/compiler/registry"
	"github.com/conduit-lang/sugar/internal/compiler/tracker"
	"github.com/conduit-lang/sugar/internal/manifest"
	"github.com/conduit-lang/sugar/internal/sourcemap"
)

// implicitsRecord names the expansion records of completed implicit calls
const implicitsRecord = "implicits"

// Result is the outcome of transforming one file
type Result struct {
	// Code is the expanded source, or the input unchanged when nothing was
	// expanded or the file could not be processed
	Code        string
	Map         *sourcemap.Map
	Diagnostics cerrors.ErrorList
	Records     []tracker.ExpansionRecord
	Changed     bool
}

// HasErrors reports whether a build tool should stop on this file
func (r *Result) HasErrors() bool {
	return r.Diagnostics.HasErrors()
}

// Transformer expands the files of one compilation in sequence. Registries,
// hygiene counters, the expansion cache and the tracker are shared by every
// file it transforms; it is not safe for concurrent use.
type Transformer struct {
	registry  *registry.Registry
	instances *instances.Registry
	implicits *implicits.Engine
	hygiene   *hygiene.Context
	tracker   *tracker.Tracker
	cache     *cache.ExpansionCache
	hasher    *cache.FileHasher
	config    Config
	logger    *zap.Logger
	declared  map[string]bool
}

// New creates a transformer over the given registries
func New(reg *registry.Registry, inst *instances.Registry, cfg Config) *Transformer {
	cfg = cfg.withDefaults()
	if inst == nil {
		inst = instances.New()
	}
	logger := cfg.Logger.Named("transform")
	return &Transformer{
		registry:  reg,
		instances: inst,
		implicits: implicits.New(inst, logger.Named("implicits")),
		hygiene:   hygiene.New(),
		tracker:   tracker.New(),
		cache:     cache.NewExpansionCache(),
		hasher:    cache.NewFileHasher(),
		config:    cfg,
		logger:    logger,
		declared:  make(map[string]bool),
	}
}

// NewDefault creates a transformer with the built-in macros and instances
func NewDefault(cfg Config) *Transformer {
	reg := registry.New()
	macros.RegisterBuiltins(reg)
	return New(reg, instances.New(), cfg)
}

// Transform expands one file with the built-in macros. Manifests found in
// cfg.MacroDirectories are validated first; their problems are reported
// with the file's diagnostics.
func Transform(source, fileName string, cfg Config) (*Result, error) {
	t := NewDefault(cfg)
	diags := t.LoadMacroDirectories()
	res, err := t.Transform(source, fileName)
	if err != nil {
		return nil, err
	}
	res.Diagnostics = append(diags, res.Diagnostics...)
	return res, nil
}

func (t *Transformer) Registry() *registry.Registry   { return t.registry }
func (t *Transformer) Instances() *instances.Registry { return t.instances }
func (t *Transformer) Tracker() *tracker.Tracker      { return t.tracker }
func (t *Transformer) Cache() *cache.ExpansionCache   { return t.cache }
func (t *Transformer) Hygiene() *hygiene.Context      { return t.hygiene }
func (t *Transformer) Config() Config                 { return t.config }

// Declare records names declared elsewhere in the package being expanded,
// so calls of them are neither expanded nor reported as unknown macros
func (t *Transformer) Declare(names ...string) {
	for _, n := range names {
		t.declared[n] = true
	}
}

// Undeclare forgets names recorded by Declare
func (t *Transformer) Undeclare(names ...string) {
	for _, n := range names {
		delete(t.declared, n)
	}
}

// Reset forgets everything learned from previous files
func (t *Transformer) Reset() {
	t.tracker.Clear()
	t.hygiene.Reset()
	t.cache.InvalidateAll()
	t.instances.Reset()
	t.declared = make(map[string]bool)
}

// LoadMacroDirectories validates the manifests of the configured macro
// directories against the registry
func (t *Transformer) LoadMacroDirectories() cerrors.ErrorList {
	if len(t.config.MacroDirectories) == 0 {
		return nil
	}
	m, diags := manifest.LoadDirectories(t.config.MacroDirectories, t.registry)
	t.logger.Debug("loaded macro directories",
		zap.Strings("directories", t.config.MacroDirectories),
		zap.Int("macros", m.Len()),
		zap.Int("diagnostics", len(diags)))
	return diags
}

// Transform expands the markers of one file. Failures are reported as
// diagnostics against the original source; the error is reserved for a
// transformer that cannot run at all.
func (t *Transformer) Transform(source, fileName string) (*Result, error) {
	if t.registry == nil {
		return nil, errors.New("transform: transformer has no macro registry")
	}
	start := time.Now()

	fs, perr := t.parse(source, fileName)
	if perr != nil {
		return &Result{Code: source, Diagnostics: cerrors.ErrorList{perr}}, nil
	}

	fs.typeCheck()
	fs.collectDirectives()
	fs.expandDecls()
	if _, err := fs.expandTree(fs.file, 0, nil); err != nil {
		// depth errors are reported by the outermost marker
		return nil, errors.Wrap(err, "transform")
	}
	fs.resolveImplicits()

	res := &Result{Code: source}
	for _, p := range fs.records {
		rec := p.rec
		if p.text != nil {
			rec.ExpandedText = p.text()
		}
		res.Records = append(res.Records, t.tracker.Record(rec))
	}

	if fs.changed {
		fs.cleanComments()
		code, err := fs.print()
		if err != nil {
			macro := ""
			if n := len(res.Records); n > 0 {
				macro = res.Records[n-1].MacroName
			}
			fs.report(cerrors.NewInvalidExpansion(cerrors.SourceLocation{Line: 1, Column: 1}, macro, "printable Go source").
				WithActual(err.Error()))
		} else {
			res.Code = code
			res.Changed = code != source
		}
	}

	if !t.config.DisableSourceMaps && res.Changed {
		local := tracker.New()
		for _, rec := range res.Records {
			local.Record(rec)
		}
		res.Map = local.GenerateSourceMap(source, fileName)
	}

	if t.config.WarningsAsErrors {
		for _, d := range fs.diags {
			if d.Severity == cerrors.SeverityWarning {
				d.Severity = cerrors.SeverityError
			}
		}
	}
	fs.diags.Sort()
	res.Diagnostics = fs.diags

	t.logger.Info("transformed file",
		zap.String("file", fileName),
		zap.Int("expansions", len(res.Records)),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// resolveImplicits completes calls of implicit functions, including calls
// produced by expansions
func (fs *fileState) resolveImplicits() {
	completed := &registry.Definition{Name: implicitsRecord}
	failures := fs.t.implicits.RewriteFile(fs.file, implicits.Options{
		Info:    fs.info,
		Package: fs.pkg,
		Splice:  fs.splice,
		OnComplete: func(call *ast.CallExpr) {
			fs.changed = true
			fs.records = append(fs.records, pendingRecord{
				rec:  fs.newRecord(completed, call, false),
				text: func() string { return fs.printNode(call) },
			})
		},
	})

	for _, f := range failures {
		loc := fs.location(fs.originOf(f.Call))
		var resErr *instances.ResolutionError
		if errors.As(f.Err, &resErr) {
			fs.report(cerrors.NewResolutionFailed(loc, resErr.Param, resErr.Typeclass, resErr.Type))
			continue
		}
		fs.report(cerrors.NewExpansionFailed(loc, implicitsRecord, f.Err))
	}
}
