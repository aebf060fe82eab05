// Package manifest describes the available macros for tools that do not
// link the registry, such as editors. A manifest lists macros by category;
// files found in macro directories are merged over the defaults generated
// from the registry.
package manifest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/sugar/internal/compiler/registry"
)

// Version is the only manifest version understood
const Version = 1

// Entry describes one macro
type Entry struct {
	Module        string   `json:"module" yaml:"module"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Args          []string `json:"args,omitempty" yaml:"args,omitempty"`
	Continuations []string `json:"continuations,omitempty" yaml:"continuations,omitempty"`
}

// Macros groups entries by category, keyed by macro name
type Macros struct {
	Expression     map[string]Entry `json:"expression,omitempty" yaml:"expression,omitempty"`
	Decorator      map[string]Entry `json:"decorator,omitempty" yaml:"decorator,omitempty"`
	TaggedTemplate map[string]Entry `json:"taggedTemplate,omitempty" yaml:"taggedTemplate,omitempty"`
	LabeledBlock   map[string]Entry `json:"labeledBlock,omitempty" yaml:"labeledBlock,omitempty"`
	Type           map[string]Entry `json:"type,omitempty" yaml:"type,omitempty"`
	Derive         map[string]Entry `json:"derive,omitempty" yaml:"derive,omitempty"`
	// ExtensionMethods are listed for editors only; Go has no counterpart
	ExtensionMethods map[string]Entry `json:"extensionMethods,omitempty" yaml:"extensionMethods,omitempty"`
}

// Manifest is a versioned set of macro descriptions
type Manifest struct {
	Version int    `json:"version" yaml:"version"`
	Macros  Macros `json:"macros" yaml:"macros"`
	// Source is the file the manifest came from, empty for defaults
	Source string `json:"-" yaml:"-"`
}

// category returns the entries of kind, creating the map when create is set
func (m *Macros) category(kind registry.Kind, create bool) map[string]Entry {
	var p *map[string]Entry
	switch kind {
	case registry.KindExpression:
		p = &m.Expression
	case registry.KindAttribute:
		p = &m.Decorator
	case registry.KindTaggedTemplate:
		p = &m.TaggedTemplate
	case registry.KindLabeledBlock:
		p = &m.LabeledBlock
	case registry.KindType:
		p = &m.Type
	case registry.KindDerive:
		p = &m.Derive
	default:
		return nil
	}
	if *p == nil && create {
		*p = make(map[string]Entry)
	}
	return *p
}

// Defaults describes every macro registered in reg
func Defaults(reg *registry.Registry) *Manifest {
	m := &Manifest{Version: Version}
	for _, kind := range registry.Kinds {
		for _, def := range reg.Definitions(kind) {
			m.Macros.category(kind, true)[def.Name] = Entry{
				Module:        def.SourcePackage,
				Description:   def.Description,
				Args:          def.Args,
				Continuations: def.Continuations,
			}
		}
	}
	return m
}

// Parse decodes a manifest. YAML is expected when the name ends in .yaml or
// .yml, JSON otherwise. Unknown keys are ignored.
func Parse(data []byte, name string) (*Manifest, error) {
	m := &Manifest{}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, m); err != nil {
			return nil, errors.Wrap(err, "invalid YAML manifest")
		}
	default:
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
			return nil, errors.Wrap(err, "invalid JSON manifest")
		}
	}
	if m.Version != Version {
		return nil, errors.WithHintf(
			errors.Newf("unsupported manifest version %d", m.Version),
			"set \"version\": %d", Version)
	}
	m.Source = name
	return m, nil
}

// Load reads and parses the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	return Parse(data, path)
}

// Merge returns defaults with custom's entries added; an entry in custom
// replaces the default of the same category and name
func Merge(defaults, custom *Manifest) *Manifest {
	out := &Manifest{Version: Version}
	for _, src := range []*Manifest{defaults, custom} {
		if src == nil {
			continue
		}
		for _, kind := range registry.Kinds {
			for name, e := range src.Macros.category(kind, false) {
				out.Macros.category(kind, true)[name] = e
			}
		}
		for name, e := range src.Macros.ExtensionMethods {
			if out.Macros.ExtensionMethods == nil {
				out.Macros.ExtensionMethods = make(map[string]Entry)
			}
			out.Macros.ExtensionMethods[name] = e
		}
	}
	return out
}

// Len returns the number of entries. A nil manifest is empty.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	n := len(m.Macros.ExtensionMethods)
	for _, kind := range registry.Kinds {
		n += len(m.Macros.category(kind, false))
	}
	return n
}

// Names returns the entry names of kind, sorted
func (m *Manifest) Names(kind registry.Kind) []string {
	if m == nil {
		return nil
	}
	entries := m.Macros.category(kind, false)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry looks up one macro
func (m *Manifest) Entry(kind registry.Kind, name string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.Macros.category(kind, false)[name]
	return e, ok
}

// prune drops the entries reg has no definition for and returns them as
// kind/name pairs
func (m *Manifest) prune(reg *registry.Registry) [][2]string {
	var missing [][2]string
	for _, kind := range registry.Kinds {
		entries := m.Macros.category(kind, false)
		for _, name := range m.Names(kind) {
			if _, ok := reg.Get(kind, name); !ok {
				missing = append(missing, [2]string{kind.String(), name})
				delete(entries, name)
			}
		}
	}
	return missing
}

// JSON encodes the manifest indented, with map keys sorted
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
