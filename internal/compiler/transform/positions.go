package transform

import (
	"go/ast"
	"go/token"
	"reflect"
)

var posType = reflect.TypeOf(token.NoPos)

// stripPositions zeroes every token.Pos in the tree rooted at n. Nodes parsed
// from macro-provided text come from a throwaway file set; their positions
// would be misread against the file being transformed.
func stripPositions(n ast.Node) {
	if n == nil {
		return
	}
	ast.Inspect(n, func(node ast.Node) bool {
		if node == nil {
			return false
		}
		v := reflect.ValueOf(node)
		if v.Kind() != reflect.Ptr || v.IsNil() {
			return true
		}
		v = v.Elem()
		if v.Kind() != reflect.Struct {
			return true
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if f.Type() == posType && f.CanSet() {
				f.SetInt(0)
			}
		}
		return true
	})
}

// span is a half-open range of original positions
type span struct {
	pos, end token.Pos
}

func (s span) contains(p token.Pos) bool {
	return p >= s.pos && p < s.end
}

func spanOf(n ast.Node) (span, bool) {
	if n == nil || !n.Pos().IsValid() || !n.End().IsValid() {
		return span{}, false
	}
	return span{pos: n.Pos(), end: n.End()}, true
}

// inheritOrigin maps every synthetic node under n to pos, so diagnostics
// raised later against expansion output point at the marker that produced it
func (fs *fileState) inheritOrigin(n ast.Node, pos token.Pos) {
	if n == nil || !pos.IsValid() {
		return
	}
	ast.Inspect(n, func(node ast.Node) bool {
		if node == nil {
			return false
		}
		if !node.Pos().IsValid() {
			if _, ok := fs.origin[node]; !ok {
				fs.origin[node] = pos
			}
		}
		return true
	})
}

// originOf returns the original position a node should be reported at
func (fs *fileState) originOf(n ast.Node) token.Pos {
	if n == nil {
		return token.NoPos
	}
	if n.Pos().IsValid() {
		return n.Pos()
	}
	if p, ok := fs.origin[n]; ok {
		return p
	}
	if len(fs.markers) > 0 {
		return fs.markers[len(fs.markers)-1]
	}
	return token.NoPos
}
