// Package sourcemap reads and writes version 3 source maps.
//
// Lines and columns in this package are 0-indexed, matching the encoding.
package sourcemap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Version is the only source map version produced and accepted
const Version = 3

// Map is a version 3 source map
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Segment is one decoded mapping. NameIndex is -1 when the segment carries no
// name.
type Segment struct {
	GeneratedLine   int
	GeneratedColumn int
	SourceIndex     int
	SourceLine      int
	SourceColumn    int
	NameIndex       int
}

// Builder accumulates segments and encodes them into a Map
type Builder struct {
	file     string
	sources  []string
	contents []string
	names    []string
	nameIdx  map[string]int
	segments []Segment
}

// NewBuilder creates a builder for a map describing generatedFile
func NewBuilder(generatedFile string) *Builder {
	return &Builder{
		file:    generatedFile,
		nameIdx: make(map[string]int),
	}
}

// AddSource registers a source file and returns its index
func (b *Builder) AddSource(name, content string) int {
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return len(b.sources) - 1
}

// AddMapping records that generated (line, col) comes from source (line, col)
func (b *Builder) AddMapping(genLine, genCol, source, srcLine, srcCol int) {
	b.segments = append(b.segments, Segment{
		GeneratedLine:   genLine,
		GeneratedColumn: genCol,
		SourceIndex:     source,
		SourceLine:      srcLine,
		SourceColumn:    srcCol,
		NameIndex:       -1,
	})
}

// AddNamedMapping is AddMapping with an original identifier name attached
func (b *Builder) AddNamedMapping(genLine, genCol, source, srcLine, srcCol int, name string) {
	idx, ok := b.nameIdx[name]
	if !ok {
		idx = len(b.names)
		b.names = append(b.names, name)
		b.nameIdx[name] = idx
	}
	b.segments = append(b.segments, Segment{
		GeneratedLine:   genLine,
		GeneratedColumn: genCol,
		SourceIndex:     source,
		SourceLine:      srcLine,
		SourceColumn:    srcCol,
		NameIndex:       idx,
	})
}

// Build encodes the accumulated segments
func (b *Builder) Build() *Map {
	segs := append([]Segment(nil), b.segments...)
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].GeneratedLine != segs[j].GeneratedLine {
			return segs[i].GeneratedLine < segs[j].GeneratedLine
		}
		return segs[i].GeneratedColumn < segs[j].GeneratedColumn
	})

	names := b.names
	if names == nil {
		names = []string{}
	}
	sources := b.sources
	if sources == nil {
		sources = []string{}
	}

	return &Map{
		Version:        Version,
		File:           b.file,
		Sources:        sources,
		SourcesContent: b.contents,
		Names:          names,
		Mappings:       encodeMappings(segs),
	}
}

func encodeMappings(segs []Segment) string {
	var sb strings.Builder
	line := 0
	prevSource, prevSrcLine, prevSrcCol, prevName := 0, 0, 0, 0
	prevGenCol := 0
	first := true

	for _, s := range segs {
		for line < s.GeneratedLine {
			sb.WriteByte(';')
			line++
			prevGenCol = 0
			first = true
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false

		sb.WriteString(EncodeVLQ(s.GeneratedColumn - prevGenCol))
		prevGenCol = s.GeneratedColumn
		sb.WriteString(EncodeVLQ(s.SourceIndex - prevSource))
		prevSource = s.SourceIndex
		sb.WriteString(EncodeVLQ(s.SourceLine - prevSrcLine))
		prevSrcLine = s.SourceLine
		sb.WriteString(EncodeVLQ(s.SourceColumn - prevSrcCol))
		prevSrcCol = s.SourceColumn
		if s.NameIndex >= 0 {
			sb.WriteString(EncodeVLQ(s.NameIndex - prevName))
			prevName = s.NameIndex
		}
	}
	return sb.String()
}

// Decode parses the mappings string of m into absolute segments
func (m *Map) Decode() ([]Segment, error) {
	var out []Segment
	source, srcLine, srcCol, name := 0, 0, 0, 0

	for lineNo, line := range strings.Split(m.Mappings, ";") {
		genCol := 0
		if line == "" {
			continue
		}
		for _, field := range strings.Split(line, ",") {
			if field == "" {
				continue
			}
			values, err := DecodeVLQ(field)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			if len(values) != 1 && len(values) != 4 && len(values) != 5 {
				return nil, errors.Newf("line %d: segment %q has %d fields", lineNo, field, len(values))
			}
			genCol += values[0]
			if len(values) == 1 {
				continue
			}
			source += values[1]
			srcLine += values[2]
			srcCol += values[3]
			seg := Segment{
				GeneratedLine:   lineNo,
				GeneratedColumn: genCol,
				SourceIndex:     source,
				SourceLine:      srcLine,
				SourceColumn:    srcCol,
				NameIndex:       -1,
			}
			if len(values) == 5 {
				name += values[4]
				seg.NameIndex = name
			}
			out = append(out, seg)
		}
	}
	return out, nil
}

// JSON encodes the map
func (m *Map) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SaveToFile writes the map as JSON
func (m *Map) SaveToFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal source map")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write source map")
	}
	return nil
}

// Parse decodes a JSON source map and checks its version
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "invalid source map")
	}
	if m.Version != Version {
		return nil, errors.Newf("unsupported source map version %d", m.Version)
	}
	return &m, nil
}

// Registry manages source maps keyed by the generated file they describe
type Registry struct {
	maps  map[string]*Map
	mutex sync.RWMutex
}

// NewRegistry creates a new source map registry
func NewRegistry() *Registry {
	return &Registry{
		maps: make(map[string]*Map),
	}
}

// LoadFromDirectory loads all *.map files from a directory
func (r *Registry) LoadFromDirectory(dir string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	files, err := filepath.Glob(filepath.Join(dir, "*.map"))
	if err != nil {
		return errors.Wrap(err, "failed to find source maps")
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to load source map %s", file)
		}
		m, err := Parse(data)
		if err != nil {
			return errors.Wrapf(err, "failed to load source map %s", file)
		}
		key := m.File
		if key == "" {
			key = strings.TrimSuffix(filepath.Base(file), ".map")
		}
		r.maps[key] = m
	}
	return nil
}

// Register stores m under the generated file name
func (r *Registry) Register(generatedFile string, m *Map) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.maps[generatedFile] = m
}

// Get returns the map for a generated file
func (r *Registry) Get(generatedFile string) (*Map, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, ok := r.maps[generatedFile]
	return m, ok
}

// OriginalPosition translates a generated position back to the original
// source. It picks the last segment at or before the column on the line, or
// the closest earlier line when the line has no segments.
func (r *Registry) OriginalPosition(generatedFile string, line, col int) (source string, srcLine, srcCol int, err error) {
	r.mutex.RLock()
	m, ok := r.maps[generatedFile]
	r.mutex.RUnlock()
	if !ok {
		return "", 0, 0, errors.Newf("no source map for %s", generatedFile)
	}
	return m.OriginalPosition(line, col)
}

// OriginalPosition is the per-map form of Registry.OriginalPosition
func (m *Map) OriginalPosition(line, col int) (string, int, int, error) {
	segs, err := m.Decode()
	if err != nil {
		return "", 0, 0, err
	}

	var best *Segment
	for i := range segs {
		s := &segs[i]
		if s.GeneratedLine > line || (s.GeneratedLine == line && s.GeneratedColumn > col) {
			break
		}
		best = s
	}
	if best == nil {
		return "", 0, 0, errors.Newf("no mapping found for %d:%d", line, col)
	}

	source := ""
	if best.SourceIndex < len(m.Sources) {
		source = m.Sources[best.SourceIndex]
	}
	srcCol := best.SourceColumn
	if best.GeneratedLine == line {
		srcCol += col - best.GeneratedColumn
	}
	return source, best.SourceLine, srcCol, nil
}
