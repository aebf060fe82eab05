// Package watch turns file system notifications into debounced batches of
// changed files.
package watch

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a batch stays open after its last event
const DefaultDebounce = 100 * time.Millisecond

// Change is one file in a batch. Removed is set when the last event seen
// for the file removed or renamed it.
type Change struct {
	Path    string
	Removed bool
}

// FileWatcher monitors directories and reports changed files in batches
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	dirs      []string
	patterns  []string
	ignored   []string
	onChange  func([]Change) error
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// Options configures a FileWatcher
type Options struct {
	// Dirs are watched non-recursively; defaults to the current directory
	Dirs []string
	// Patterns select files by glob or *.ext; empty matches everything
	Patterns []string
	// Ignored are globs matched against base names
	Ignored  []string
	Debounce time.Duration
	Logger   *zap.Logger
}

// NewFileWatcher creates a watcher calling onChange with each batch
func NewFileWatcher(opts Options, onChange func([]Change) error) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Dirs) == 0 {
		opts.Dirs = []string{"."}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(opts.Debounce),
		dirs:      opts.Dirs,
		patterns:  opts.Patterns,
		ignored:   opts.Ignored,
		onChange:  onChange,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	fw.debouncer.SetCallback(func(changes []Change) {
		if err := fw.onChange(changes); err != nil {
			fw.logger.Warn("error handling file changes", zap.Error(err))
		}
	})

	return fw, nil
}

// Start begins watching the configured directories
func (fw *FileWatcher) Start() error {
	for _, dir := range fw.dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch directory %s", dir)
		}
		fw.logger.Debug("watching directory", zap.String("dir", dir))
	}

	fw.wg.Add(1)
	go fw.watch()

	return nil
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	select {
	case <-fw.stopChan:
		return nil
	default:
		close(fw.stopChan)
	}

	fw.wg.Wait()
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

// watch is the main event loop
func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldIgnore(event.Name) || !fw.matchesPattern(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				fw.logger.Debug("file changed", zap.String("file", event.Name))
				fw.debouncer.Add(Change{Path: event.Name})
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				fw.logger.Debug("file removed", zap.String("file", event.Name))
				fw.debouncer.Add(Change{Path: event.Name, Removed: true})
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

// shouldIgnore checks if a file path should be ignored
func (fw *FileWatcher) shouldIgnore(path string) bool {
	baseName := filepath.Base(path)
	if strings.HasPrefix(baseName, ".") {
		return true
	}

	for _, pattern := range fw.ignored {
		if matched, _ := filepath.Match(pattern, baseName); matched {
			return true
		}
	}

	return false
}

// matchesPattern checks if a file matches any of the watch patterns
func (fw *FileWatcher) matchesPattern(path string) bool {
	if len(fw.patterns) == 0 {
		return true
	}

	base := filepath.Base(path)
	for _, pattern := range fw.patterns {
		if strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[") {
			if strings.HasSuffix(base, pattern[1:]) {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}

// Debouncer collects changes and hands them over once no new change has
// arrived for its duration
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	changes  map[string]Change
	mutex    sync.Mutex
	callback func([]Change)
	stopChan chan struct{}
}

// NewDebouncer creates a new debouncer instance
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		changes:  make(map[string]Change),
		stopChan: make(chan struct{}),
	}
}

// Add records a change; a later change of the same file replaces it
func (d *Debouncer) Add(c Change) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	select {
	case <-d.stopChan:
		return
	default:
	}

	d.changes[c.Path] = c

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush triggers the callback with the accumulated changes, sorted by path
func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.changes) == 0 {
		d.mutex.Unlock()
		return
	}
	changes := make([]Change, 0, len(d.changes))
	for _, c := range d.changes {
		changes = append(changes, c)
	}
	d.changes = make(map[string]Change)
	callback := d.callback
	d.mutex.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	if callback != nil {
		callback(changes)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]Change)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop stops the debouncer; pending changes are dropped
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
}
