package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileWatcher_Start(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "shapes.go")
	if err := os.WriteFile(testFile, []byte("package shapes\n"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	var mu sync.Mutex
	var batches [][]Change

	watcher, err := NewFileWatcher(Options{
		Dirs:     []string{tmpDir},
		Patterns: []string{"*.go"},
		Debounce: 50 * time.Millisecond,
	}, func(changes []Change) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, changes)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(testFile, []byte("package shapes\n\nvar x = 1\n"), 0o644); err != nil {
		t.Fatalf("Failed to modify file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(batches) == 0 {
		t.Fatal("Expected changes to be detected")
	}
	for _, batch := range batches {
		for _, c := range batch {
			if filepath.Base(c.Path) != "shapes.go" {
				t.Errorf("unexpected change %s", c.Path)
			}
		}
	}
}

func TestFileWatcher_Removal(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "gone.macros.yaml")
	if err := os.WriteFile(testFile, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	changes := make(chan Change, 8)
	watcher, err := NewFileWatcher(Options{
		Dirs:     []string{tmpDir},
		Patterns: []string{"*.macros.yaml"},
		Debounce: 30 * time.Millisecond,
	}, func(batch []Change) error {
		for _, c := range batch {
			changes <- c
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()
	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(testFile); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	select {
	case c := <-changes:
		if !c.Removed {
			t.Errorf("expected a removal, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("removal was not reported")
	}
}

func TestDebouncer_Add(t *testing.T) {
	var mu sync.Mutex
	var called bool
	var changes []Change

	debouncer := NewDebouncer(50 * time.Millisecond)
	debouncer.SetCallback(func(c []Change) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		changes = c
	})

	debouncer.Add(Change{Path: "b.go"})
	debouncer.Add(Change{Path: "a.go"})
	debouncer.Add(Change{Path: "b.go", Removed: true})

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if !called {
		t.Fatal("Expected callback to be called")
	}
	if len(changes) != 2 {
		t.Fatalf("Expected 2 unique files, got %d", len(changes))
	}
	if changes[0].Path != "a.go" || changes[1].Path != "b.go" {
		t.Errorf("changes not sorted: %+v", changes)
	}
	if !changes[1].Removed {
		t.Error("the last change of a file should win")
	}
}

func TestDebouncer_MultipleFlushes(t *testing.T) {
	var mu sync.Mutex
	var callCount int

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(func([]Change) {
		mu.Lock()
		defer mu.Unlock()
		callCount++
	})

	debouncer.Add(Change{Path: "file1.go"})
	time.Sleep(80 * time.Millisecond)

	debouncer.Add(Change{Path: "file2.go"})
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if callCount != 2 {
		t.Errorf("Expected 2 callback calls, got %d", callCount)
	}
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	called := make(chan struct{}, 1)
	debouncer := NewDebouncer(20 * time.Millisecond)
	debouncer.SetCallback(func([]Change) { called <- struct{}{} })

	debouncer.Add(Change{Path: "x.go"})
	debouncer.Stop()
	debouncer.Add(Change{Path: "y.go"})

	select {
	case <-called:
		t.Error("callback ran after Stop")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestFileWatcher_ShouldIgnore(t *testing.T) {
	watcher := &FileWatcher{
		ignored: []string{"*.swp", "*_sugar.go"},
	}

	tests := []struct {
		path     string
		expected bool
	}{
		{"shapes.go", false},
		{"shapes.go.swp", true},
		{"shapes_sugar.go", true},
		{".hidden", true},
		{"dir/normal.go", false},
	}

	for _, tt := range tests {
		result := watcher.shouldIgnore(tt.path)
		if result != tt.expected {
			t.Errorf("shouldIgnore(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_MatchesPattern(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		expected bool
	}{
		{[]string{"*.go"}, "shapes.go", true},
		{[]string{"*.go"}, "shapes.txt", false},
		{[]string{"*.macros.json", "*.macros.yaml"}, "dir/extra.macros.yaml", true},
		{[]string{"*.macros.json"}, "extra.json", false},
		{[]string{"sugar.y?l"}, "sugar.yml", true},
		{[]string{}, "anything.txt", true},
	}

	for _, tt := range tests {
		watcher := &FileWatcher{patterns: tt.patterns}
		result := watcher.matchesPattern(tt.path)
		if result != tt.expected {
			t.Errorf("matchesPattern(%v, %q) = %v, expected %v",
				tt.patterns, tt.path, result, tt.expected)
		}
	}
}

func TestFileWatcher_Stop(t *testing.T) {
	watcher, err := NewFileWatcher(Options{Dirs: []string{t.TempDir()}}, func([]Change) error { return nil })
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}

func BenchmarkDebouncer_Add(b *testing.B) {
	debouncer := NewDebouncer(100 * time.Millisecond)
	debouncer.SetCallback(func([]Change) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		debouncer.Add(Change{Path: "file.go"})
	}
}
