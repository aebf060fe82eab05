package typeclass

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Product is the generic view of a struct: its field names and values in
// declaration order.
type Product struct {
	Names  []string
	Values []any
}

// Sum is the generic view of one variant of a closed set of types. Index is
// the variant's declaration order; a nil value has an empty Tag and Index -1.
type Sum struct {
	Tag   string
	Index int
	Value any
}

// IsNil reports whether s represents a nil value of the sum type
func (s Sum) IsNil() bool { return s.Tag == "" }

// Generic converts between a type and its generic representation
type Generic[T, Rep any] struct {
	To   func(T) Rep
	From func(Rep) T
}

// EraseEq lifts an Eq over A to one over any. The values handed to it must
// hold an A.
func EraseEq[A any](e Eq[A]) Eq[any] {
	return EqFunc[any](func(x, y any) bool { return e.Equals(x.(A), y.(A)) })
}

// EraseOrd lifts an Ord over A to one over any
func EraseOrd[A any](o Ord[A]) Ord[any] {
	return OrdFunc[any](func(x, y any) int { return o.Compare(x.(A), y.(A)) })
}

// EraseShow lifts a Show over A to one over any
func EraseShow[A any](s Show[A]) Show[any] {
	return ShowFunc[any](func(a any) string { return s.Show(a.(A)) })
}

// EraseHash lifts a Hash over A to one over any
func EraseHash[A any](h Hash[A]) Hash[any] {
	return HashFunc[any](func(a any) uint64 { return h.Hash(a.(A)) })
}

// EqProduct compares field by field, one instance per field
func EqProduct[T any](g Generic[T, Product], fields ...Eq[any]) Eq[T] {
	return EqFunc[T](func(x, y T) bool {
		px, py := g.To(x), g.To(y)
		for i, eq := range fields {
			if !eq.Equals(px.Values[i], py.Values[i]) {
				return false
			}
		}
		return true
	})
}

// OrdProduct orders lexicographically by field declaration order
func OrdProduct[T any](g Generic[T, Product], fields ...Ord[any]) Ord[T] {
	return OrdFunc[T](func(x, y T) int {
		px, py := g.To(x), g.To(y)
		for i, ord := range fields {
			if c := ord.Compare(px.Values[i], py.Values[i]); c != 0 {
				return c
			}
		}
		return 0
	})
}

// ShowProduct renders as Name{Field: value, ...}
func ShowProduct[T any](name string, g Generic[T, Product], fields ...Show[any]) Show[T] {
	return ShowFunc[T](func(v T) string {
		p := g.To(v)
		var b strings.Builder
		b.WriteString(name)
		b.WriteByte('{')
		for i, show := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Names[i])
			b.WriteString(": ")
			b.WriteString(show.Show(p.Values[i]))
		}
		b.WriteByte('}')
		return b.String()
	})
}

// HashProduct combines the field hashes in declaration order
func HashProduct[T any](g Generic[T, Product], fields ...Hash[any]) Hash[T] {
	return HashFunc[T](func(v T) uint64 {
		p := g.To(v)
		d := xxhash.New()
		var buf [8]byte
		for i, h := range fields {
			binary.LittleEndian.PutUint64(buf[:], h.Hash(p.Values[i]))
			_, _ = d.Write(buf[:])
		}
		return d.Sum64()
	})
}

// EqSum is equal when both values are the same variant and the variant's
// instance says so. Two nil values are equal.
func EqSum[T any](g Generic[T, Sum], variants map[string]Eq[any]) Eq[T] {
	return EqFunc[T](func(x, y T) bool {
		sx, sy := g.To(x), g.To(y)
		if sx.Tag != sy.Tag {
			return false
		}
		if sx.IsNil() {
			return true
		}
		return variant(variants, "Eq", sx.Tag).Equals(sx.Value, sy.Value)
	})
}

// OrdSum orders by variant declaration order first, then by the variant's
// instance. nil sorts before every variant.
func OrdSum[T any](g Generic[T, Sum], variants map[string]Ord[any]) Ord[T] {
	return OrdFunc[T](func(x, y T) int {
		sx, sy := g.To(x), g.To(y)
		if c := cmp.Compare(sx.Index, sy.Index); c != 0 || sx.IsNil() {
			return c
		}
		return variant(variants, "Ord", sx.Tag).Compare(sx.Value, sy.Value)
	})
}

// ShowSum renders the value with its variant's instance
func ShowSum[T any](g Generic[T, Sum], variants map[string]Show[any]) Show[T] {
	return ShowFunc[T](func(v T) string {
		s := g.To(v)
		if s.IsNil() {
			return "nil"
		}
		return variant(variants, "Show", s.Tag).Show(s.Value)
	})
}

// HashSum mixes the variant tag into the variant's hash, so equal payloads
// of different variants hash apart
func HashSum[T any](g Generic[T, Sum], variants map[string]Hash[any]) Hash[T] {
	return HashFunc[T](func(v T) uint64 {
		s := g.To(v)
		if s.IsNil() {
			return 0
		}
		d := xxhash.New()
		_, _ = d.WriteString(s.Tag)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], variant(variants, "Hash", s.Tag).Hash(s.Value))
		_, _ = d.Write(buf[:])
		return d.Sum64()
	})
}

func variant[I any](variants map[string]I, typeclass, tag string) I {
	inst, ok := variants[tag]
	if !ok {
		panic(fmt.Sprintf("typeclass: no %s instance for variant %s", typeclass, tag))
	}
	return inst
}
