// Package typeclass is the runtime side of typeclass macros: the interfaces
// that instances implement, instances for Go's basic types, and the generic
// combinators that derived instances are built from.
package typeclass

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Eq decides equality of two values
type Eq[A any] interface {
	Equals(x, y A) bool
}

// Ord is a total order consistent with its Eq
type Ord[A any] interface {
	Eq[A]
	Compare(x, y A) int
}

// Show renders a value for humans
type Show[A any] interface {
	Show(a A) string
}

// Hash digests a value; equal values hash equally
type Hash[A any] interface {
	Hash(a A) uint64
}

// EqFunc adapts a function to Eq
type EqFunc[A any] func(x, y A) bool

// Equals implements Eq
func (f EqFunc[A]) Equals(x, y A) bool { return f(x, y) }

// ShowFunc adapts a function to Show
type ShowFunc[A any] func(a A) string

// Show implements Show
func (f ShowFunc[A]) Show(a A) string { return f(a) }

// HashFunc adapts a function to Hash
type HashFunc[A any] func(a A) uint64

// Hash implements Hash
func (f HashFunc[A]) Hash(a A) uint64 { return f(a) }

// OrdFunc adapts a comparison to Ord; equality is Compare == 0
type OrdFunc[A any] func(x, y A) int

// Compare implements Ord
func (f OrdFunc[A]) Compare(x, y A) int { return f(x, y) }

// Equals implements Eq
func (f OrdFunc[A]) Equals(x, y A) bool { return f(x, y) == 0 }

// EqComparable is == for comparable types
func EqComparable[A comparable]() Eq[A] {
	return EqFunc[A](func(x, y A) bool { return x == y })
}

// OrdOrdered is the natural order of ordered types
func OrdOrdered[A cmp.Ordered]() Ord[A] {
	return OrdFunc[A](cmp.Compare[A])
}

// OrdBool orders false before true
func OrdBool() Ord[bool] {
	return OrdFunc[bool](func(x, y bool) int {
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	})
}

// ShowFmt renders with fmt's %v verb
func ShowFmt[A any]() Show[A] {
	return ShowFunc[A](func(a A) string { return fmt.Sprintf("%v", a) })
}

// ShowString renders strings quoted
func ShowString() Show[string] {
	return ShowFunc[string](strconv.Quote)
}

// HashOf hashes with xxhash. Basic types are hashed from their binary
// encoding, anything else from its %#v rendering.
func HashOf[A any]() Hash[A] {
	return HashFunc[A](func(a A) uint64 { return hashAny(a) })
}

func hashAny(v any) uint64 {
	var buf [8]byte
	switch x := v.(type) {
	case string:
		return xxhash.Sum64String(x)
	case []byte:
		return xxhash.Sum64(x)
	case bool:
		if x {
			buf[0] = 1
		}
		return xxhash.Sum64(buf[:1])
	case int:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case int8:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case int16:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case int32:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint8:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint16:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint32:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], x)
	case uintptr:
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
	case float32:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(normalizeFloat(float64(x))))
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(normalizeFloat(x)))
	default:
		return xxhash.Sum64String(fmt.Sprintf("%#v", v))
	}
	return xxhash.Sum64(buf[:])
}

// normalizeFloat folds -0 onto +0 so that values equal under == hash equally
func normalizeFloat(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}

// Summon is what an instance lookup looks like before expansion. Reaching it
// at run time means the file was compiled without running the expander.
func Summon[I any]() I {
	panic(fmt.Sprintf("typeclass: summon of %T reached at run time; run sugar expand on this package", (*I)(nil)))
}
