// Package build expands the files of a source tree in dependency order and
// re-expands only what changed between runs.
package build

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/compiler/cache"
	"github.com/conduit-lang/sugar/internal/compiler/transform"
	"github.com/conduit-lang/sugar/internal/watch"
)

// Metrics describes one build
type Metrics struct {
	TotalFiles     int
	CacheHits      int
	CacheMisses    int
	FilesExpanded  int
	FilesChanged   int
	Expansions     int
	Errors         int
	Warnings       int
	ScanDuration   time.Duration
	ExpandDuration time.Duration
	TotalDuration  time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

// CacheHitRate returns the cache hit rate as a percentage
func (m *Metrics) CacheHitRate() float64 {
	if m.TotalFiles == 0 {
		return 0.0
	}
	return float64(m.CacheHits) / float64(m.TotalFiles) * 100.0
}

// FileResult is the outcome of expanding one file
type FileResult struct {
	Path   string
	Hash   string
	Result *transform.Result
	// Err is set when the file could not be read or transformed at all
	Err    error
	Cached bool
}

// HasErrors reports whether the file failed or has error diagnostics
func (r *FileResult) HasErrors() bool {
	return r.Err != nil || (r.Result != nil && r.Result.HasErrors())
}

type source struct {
	path    string
	content []byte
	hash    string
	file    *ast.File
	names   []string
}

// Coordinator runs a transformer over many files. Files declaring
// typeclasses, instances or implicit functions are expanded before the files
// using them, and a file is expanded again only when its content or one of
// its dependencies changed.
type Coordinator struct {
	transformer *transform.Transformer
	depGraph    *cache.DependencyGraph
	hasher      *cache.FileHasher
	results     map[string]*FileResult
	paths       []string
	metrics     *Metrics
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewCoordinator creates a coordinator around t
func NewCoordinator(t *transform.Transformer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		transformer: t,
		depGraph:    cache.NewDependencyGraph(),
		hasher:      cache.NewFileHasher(),
		results:     make(map[string]*FileResult),
		metrics:     &Metrics{},
		logger:      logger.Named("build"),
	}
}

// Build expands paths. Results come back in expansion order.
func (c *Coordinator) Build(paths []string) ([]*FileResult, *Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &Metrics{TotalFiles: len(paths), StartTime: time.Now()}
	c.metrics = m
	c.paths = append([]string(nil), paths...)

	sources, failed := c.scan(paths)
	m.ScanDuration = time.Since(m.StartTime)

	order := c.order(sources)
	results := make([]*FileResult, 0, len(paths))
	results = append(results, failed...)

	expanded := make(map[string]bool)
	expandStart := time.Now()
	for _, path := range order {
		res := c.expand(sources[path], sources, expanded)
		results = append(results, res)
	}
	m.ExpandDuration = time.Since(expandStart)

	for _, r := range results {
		if r.Err != nil {
			m.Errors++
			continue
		}
		if r.Cached {
			m.CacheHits++
		} else {
			m.CacheMisses++
			m.FilesExpanded++
		}
		if r.Result == nil {
			continue
		}
		if r.Result.Changed {
			m.FilesChanged++
		}
		m.Expansions += len(r.Result.Records)
		errs, warns, _ := r.Result.Diagnostics.ErrorCount()
		m.Errors += errs
		m.Warnings += warns
	}

	m.EndTime = time.Now()
	m.TotalDuration = m.EndTime.Sub(m.StartTime)
	c.logger.Info("build finished",
		zap.Int("files", m.TotalFiles),
		zap.Int("expanded", m.FilesExpanded),
		zap.Int("cache_hits", m.CacheHits),
		zap.Int("expansions", m.Expansions),
		zap.Duration("elapsed", m.TotalDuration))

	metrics := *m
	return results, &metrics, nil
}

// scan reads and parses every file and rebuilds the dependency edges
func (c *Coordinator) scan(paths []string) (map[string]*source, []*FileResult) {
	sources := make(map[string]*source, len(paths))
	var failed []*FileResult

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			failed = append(failed, &FileResult{Path: path, Err: errors.Wrap(err, "failed to read file")})
			continue
		}
		src := &source{path: path, content: content, hash: c.hasher.HashContent(content)}
		// unparsable files are still handed to the transformer, which reports them
		if f, err := parser.ParseFile(token.NewFileSet(), path, content, parser.ParseComments|parser.SkipObjectResolution); err == nil {
			src.file = f
			src.names = topLevelNames(f)
		}
		sources[path] = src
	}

	for path, src := range sources {
		c.depGraph.RemoveFile(path)
		if src.file != nil {
			c.depGraph.AddFile(path, cache.Provides(src.file))
		} else {
			c.depGraph.AddFile(path, nil)
		}
	}
	for path, src := range sources {
		if src.file != nil {
			c.depGraph.Link(path, src.file)
		}
	}
	return sources, failed
}

// order returns the scanned files providers first. A cycle is logged and the
// files are expanded by path.
func (c *Coordinator) order(sources map[string]*source) []string {
	var order []string
	all, err := c.depGraph.GetTopologicalOrder()
	if err != nil {
		c.logger.Warn("dependency cycle, expanding in path order", zap.Error(err))
		all = make([]string, 0, len(sources))
		for path := range sources {
			all = append(all, path)
		}
		sort.Strings(all)
	}
	for _, path := range all {
		if _, ok := sources[path]; ok {
			order = append(order, path)
		}
	}
	return order
}

// expand transforms one file unless its previous result is still valid
func (c *Coordinator) expand(src *source, sources map[string]*source, expanded map[string]bool) *FileResult {
	if prev, ok := c.results[src.path]; ok && prev.Hash == src.hash && prev.Err == nil {
		stale := false
		for _, dep := range c.depGraph.GetDependencies(src.path) {
			if expanded[dep] {
				stale = true
				break
			}
		}
		if !stale {
			c.logger.Debug("cache hit", zap.String("file", src.path))
			hit := *prev
			hit.Cached = true
			return &hit
		}
	}

	siblings := siblingNames(src.path, sources)
	c.transformer.Declare(siblings...)
	res, err := c.transformer.Transform(string(src.content), src.path)
	c.transformer.Undeclare(siblings...)

	expanded[src.path] = true
	out := &FileResult{Path: src.path, Hash: src.hash, Result: res}
	if err != nil {
		out.Err = errors.Wrapf(err, "expand %s", src.path)
		delete(c.results, src.path)
		return out
	}
	c.results[src.path] = out
	return out
}

// siblingNames returns the top-level names declared by the other files of
// the same package directory
func siblingNames(path string, sources map[string]*source) []string {
	dir := filepath.Dir(path)
	var names []string
	for other, src := range sources {
		if other == path || filepath.Dir(other) != dir {
			continue
		}
		names = append(names, src.names...)
	}
	return names
}

func topLevelNames(f *ast.File) []string {
	var names []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
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
	}
	return names
}

// InvalidateFile drops the results of a file and all its dependents and
// returns the invalidated paths
func (c *Coordinator) InvalidateFile(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidate(path)
}

func (c *Coordinator) invalidate(path string) []string {
	dependents := c.depGraph.GetTransitiveDependents(path)
	delete(c.results, path)
	for _, dep := range dependents {
		delete(c.results, dep)
	}
	return append([]string{path}, dependents...)
}

// Rebuild applies a batch of file changes and builds the known files again.
// Removed files leave the build; new files join it.
func (c *Coordinator) Rebuild(changes []watch.Change) ([]*FileResult, *Metrics, error) {
	c.mu.Lock()
	known := make(map[string]bool, len(c.paths))
	for _, p := range c.paths {
		known[p] = true
	}
	for _, ch := range changes {
		c.invalidate(ch.Path)
		if ch.Removed {
			c.depGraph.RemoveFile(ch.Path)
			delete(known, ch.Path)
			continue
		}
		known[ch.Path] = true
	}
	paths := make([]string, 0, len(known))
	for p := range known {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	c.mu.Unlock()

	return c.Build(paths)
}

// GetMetrics returns the metrics of the last build
func (c *Coordinator) GetMetrics() *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics := *c.metrics
	return &metrics
}

// GetCacheStats returns cache statistics
func (c *Coordinator) GetCacheStats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]interface{}{
		"results":        len(c.results),
		"dep_graph_size": c.depGraph.Size(),
		"expansions":     c.transformer.Cache().Size(),
	}
}

// Clear forgets every result and resets the transformer
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = make(map[string]*FileResult)
	c.depGraph.Clear()
	c.transformer.Reset()
	c.metrics = &Metrics{}
}

// ScanDirectory lists the Go files under dir. Directories the go tool
// ignores (hidden, _-prefixed, testdata, vendor) are skipped.
func ScanDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "testdata" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(name) == ".go" && !strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "_") {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", dir)
	}

	sort.Strings(files)
	return files, nil
}
