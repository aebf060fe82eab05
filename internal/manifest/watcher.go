package manifest

import (
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
	"github.com/conduit-lang/sugar/internal/watch"
)

// Watcher keeps the manifest of one file current. Writes reload it; removing
// or renaming the file, or a load failure, reverts to the defaults.
type Watcher struct {
	path     string
	reg      *registry.Registry
	logger   *zap.Logger
	onReload func(*Manifest)
	fw       *watch.FileWatcher

	mu      sync.RWMutex
	current *Manifest
}

// NewWatcher loads path, falling back to the defaults of reg, and prepares
// to watch it. onReload, when set, sees every new manifest.
func NewWatcher(path string, reg *registry.Registry, logger *zap.Logger, onReload func(*Manifest)) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		path:     path,
		reg:      reg,
		logger:   logger,
		onReload: onReload,
	}
	w.current = w.load()

	fw, err := watch.NewFileWatcher(watch.Options{
		Dirs:     []string{filepath.Dir(path)},
		Patterns: []string{filepath.Base(path)},
		Logger:   logger,
	}, w.handle)
	if err != nil {
		return nil, err
	}
	w.fw = fw
	return w, nil
}

// Start begins watching
func (w *Watcher) Start() error { return w.fw.Start() }

// Stop stops watching
func (w *Watcher) Stop() error { return w.fw.Stop() }

// Current returns the manifest in effect
func (w *Watcher) Current() *Manifest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) handle(changes []watch.Change) error {
	var m *Manifest
	for _, c := range changes {
		if filepath.Clean(c.Path) != filepath.Clean(w.path) {
			continue
		}
		if c.Removed {
			w.logger.Info("manifest removed, using defaults", zap.String("file", w.path))
			m = Defaults(w.reg)
		} else {
			m = w.load()
		}
	}
	if m == nil {
		return nil
	}

	w.mu.Lock()
	w.current = m
	w.mu.Unlock()
	if w.onReload != nil {
		w.onReload(m)
	}
	return nil
}

func (w *Watcher) load() *Manifest {
	defaults := Defaults(w.reg)
	custom, err := Load(w.path)
	if err != nil {
		w.logger.Warn("manifest not loaded, using defaults", zap.String("file", w.path), zap.Error(err))
		return defaults
	}
	for _, miss := range custom.prune(w.reg) {
		w.logger.Warn("manifest entry has no registered macro",
			zap.String("kind", miss[0]),
			zap.String("macro", miss[1]))
	}
	w.logger.Info("manifest loaded", zap.String("file", w.path), zap.Int("entries", custom.Len()))
	return Merge(defaults, custom)
}
