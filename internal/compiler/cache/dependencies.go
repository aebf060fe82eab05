package cache

import (
	"go/ast"
	"sort"
	"strings"
	"sync"
)

// FileDependency represents a dependency between files
type FileDependency struct {
	Path       string   // The file path
	DependsOn  []string // Files this file depends on
	DependedBy []string // Files that depend on this file
	// Provides lists the typeclasses, instances, implicit functions and
	// derived types the file declares through //sugar: directives
	Provides []string
}

// DependencyGraph tracks which files must be expanded before which. A file
// that declares a typeclass, instance or implicit function is expanded before
// the files using it, so the instance registry is populated in time.
type DependencyGraph struct {
	nodes     map[string]*FileDependency
	providers map[string]string // provided name -> path
	mu        sync.RWMutex
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*FileDependency),
		providers: make(map[string]string),
	}
}

func (dg *DependencyGraph) node(path string) *FileDependency {
	n, exists := dg.nodes[path]
	if !exists {
		n = &FileDependency{
			Path:       path,
			DependsOn:  make([]string, 0),
			DependedBy: make([]string, 0),
		}
		dg.nodes[path] = n
	}
	return n
}

// AddFile adds a file and the names it provides to the graph
func (dg *DependencyGraph) AddFile(path string, provides []string) {
	dg.mu.Lock()
	defer dg.mu.Unlock()

	n := dg.node(path)
	for _, name := range n.Provides {
		if dg.providers[name] == path {
			delete(dg.providers, name)
		}
	}
	n.Provides = provides
	for _, name := range provides {
		dg.providers[name] = path
	}
}

// AddDependency adds a dependency relationship: from depends on to
func (dg *DependencyGraph) AddDependency(from, to string) {
	if from == to {
		return
	}

	dg.mu.Lock()
	defer dg.mu.Unlock()

	f, t := dg.node(from), dg.node(to)
	if !contains(f.DependsOn, to) {
		f.DependsOn = append(f.DependsOn, to)
	}
	if !contains(t.DependedBy, from) {
		t.DependedBy = append(t.DependedBy, from)
	}
}

// Provider returns the file that provides name
func (dg *DependencyGraph) Provider(name string) (string, bool) {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	path, ok := dg.providers[name]
	return path, ok
}

// GetDependencies returns the files that the given file depends on
func (dg *DependencyGraph) GetDependencies(path string) []string {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	if node, exists := dg.nodes[path]; exists {
		result := make([]string, len(node.DependsOn))
		copy(result, node.DependsOn)
		return result
	}
	return []string{}
}

// GetDependents returns the files that depend on the given file
func (dg *DependencyGraph) GetDependents(path string) []string {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	if node, exists := dg.nodes[path]; exists {
		result := make([]string, len(node.DependedBy))
		copy(result, node.DependedBy)
		return result
	}
	return []string{}
}

// GetTransitiveDependents returns all files that transitively depend on the given file
func (dg *DependencyGraph) GetTransitiveDependents(path string) []string {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	visited := map[string]bool{path: true}
	result := make([]string, 0)

	var visit func(string)
	visit = func(p string) {
		node, exists := dg.nodes[p]
		if !exists {
			return
		}
		for _, dependent := range node.DependedBy {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			result = append(result, dependent)
			visit(dependent)
		}
	}

	visit(path)
	sort.Strings(result)
	return result
}

// GetTopologicalOrder returns files in expansion order: providers first,
// ties broken by path so the order is stable between runs.
func (dg *DependencyGraph) GetTopologicalOrder() ([]string, error) {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	inDegree := make(map[string]int, len(dg.nodes))
	for path, node := range dg.nodes {
		inDegree[path] = len(node.DependsOn)
	}

	queue := make([]string, 0)
	for path, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, path)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(dg.nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for _, dependent := range dg.nodes[current].DependedBy {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(dg.nodes) {
		var cyclic []string
		for path, degree := range inDegree {
			if degree > 0 {
				cyclic = append(cyclic, path)
			}
		}
		sort.Strings(cyclic)
		return nil, &CycleError{
			Message: "circular dependency between files: " + strings.Join(cyclic, ", "),
			Files:   cyclic,
		}
	}

	return result, nil
}

// RemoveFile removes a file and its dependencies from the graph
func (dg *DependencyGraph) RemoveFile(path string) {
	dg.mu.Lock()
	defer dg.mu.Unlock()

	node, exists := dg.nodes[path]
	if !exists {
		return
	}
	for _, dependent := range node.DependedBy {
		if depNode, exists := dg.nodes[dependent]; exists {
			depNode.DependsOn = removeString(depNode.DependsOn, path)
		}
	}
	for _, dependency := range node.DependsOn {
		if depNode, exists := dg.nodes[dependency]; exists {
			depNode.DependedBy = removeString(depNode.DependedBy, path)
		}
	}
	for _, name := range node.Provides {
		if dg.providers[name] == path {
			delete(dg.providers, name)
		}
	}
	delete(dg.nodes, path)
}

// Clear removes all entries from the dependency graph
func (dg *DependencyGraph) Clear() {
	dg.mu.Lock()
	defer dg.mu.Unlock()

	dg.nodes = make(map[string]*FileDependency)
	dg.providers = make(map[string]string)
}

// Size returns the number of files in the graph
func (dg *DependencyGraph) Size() int {
	dg.mu.RLock()
	defer dg.mu.RUnlock()

	return len(dg.nodes)
}

// providingDirectives are the directives whose declaration other files can
// depend on
var providingDirectives = map[string]bool{
	"typeclass": true,
	"instance":  true,
	"implicits": true,
	"derive":    true,
}

// Provides returns the names a file declares through providing directives.
// Derived types provide the type name itself, since derived instances are
// registered under it.
func Provides(file *ast.File) []string {
	var names []string
	for _, decl := range file.Decls {
		var doc *ast.CommentGroup
		switch d := decl.(type) {
		case *ast.FuncDecl:
			doc = d.Doc
		case *ast.GenDecl:
			doc = d.Doc
		}
		if !hasProvidingDirective(doc) {
			continue
		}
		names = append(names, declNames(decl)...)
	}
	sort.Strings(names)
	return names
}

func hasProvidingDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		text, ok := strings.CutPrefix(c.Text, "//sugar:")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(text, " ")
		if providingDirectives[name] {
			return true
		}
	}
	return false
}

func declNames(decl ast.Decl) []string {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			return []string{d.Name.Name}
		}
	case *ast.GenDecl:
		var names []string
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
		return names
	}
	return nil
}

// BuildDependencies records what file provides and links it to the files
// providing the identifiers it uses. Providers must be added first; call
// Link again once every file has been added.
func (dg *DependencyGraph) BuildDependencies(path string, file *ast.File) {
	dg.AddFile(path, Provides(file))
	dg.Link(path, file)
}

// Link adds a dependency from path to every known provider of an
// identifier used in file
func (dg *DependencyGraph) Link(path string, file *ast.File) {
	seen := make(map[string]bool)
	ast.Inspect(file, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok || seen[ident.Name] {
			return true
		}
		seen[ident.Name] = true
		if provider, ok := dg.Provider(ident.Name); ok && provider != path {
			dg.AddDependency(path, provider)
		}
		return true
	})
}

// CycleError represents a circular dependency error
type CycleError struct {
	Message string
	Files   []string
}

func (e *CycleError) Error() string {
	return e.Message
}

// Helper functions
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func removeString(slice []string, item string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if s != item {
			result = append(result, s)
		}
	}
	return result
}
