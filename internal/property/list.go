package property

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// List is a bounded homogeneous sequence. Elements 0..N-1 live in the inline
// region; elements N..M-1 live in a spill region allocated once at
// construction. A list never grows past M.
type List[T any] struct {
	Base
	inline   []T
	spill    []T
	n        int
	td       *schema.TypeDef
	onChange func(old, new []T)
}

// NewList declares a list with inline capacity n and maximum max (max >= n).
// It panics when T is not wire-safe or the capacities are inconsistent.
func NewList[T any](name string, n, max int, opts ...Option) *List[T] {
	t := reflect.TypeFor[T]()
	if !schema.IsWireSafe(t) {
		panic(fmt.Errorf("property %q: %w: %s", name, types.ErrNotWireSafe, t))
	}
	if n < 1 || max < n {
		panic(fmt.Errorf("property %q: %w: inline %d, max %d", name, types.ErrInvariant, n, max))
	}
	s := applyOptions(opts)
	elem, err := schema.Of(t)
	if err != nil {
		panic(fmt.Errorf("property %q: %w", name, err))
	}
	if elem.ID.IsBasic() && s.constraints != nil {
		elem = elem.WithConstraints(s.constraints)
	}
	return &List[T]{
		Base:   newBase(name, s),
		inline: make([]T, n),
		spill:  make([]T, max-n),
		td:     schema.ListOf(elem, s.container),
	}
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.n }

// Cap returns the maximum number of elements.
func (l *List[T]) Cap() int { return len(l.inline) + len(l.spill) }

// InlineCap returns the inline capacity.
func (l *List[T]) InlineCap() int { return len(l.inline) }

// Spilled reports whether elements currently occupy the spill region.
func (l *List[T]) Spilled() bool { return l.n > len(l.inline) }

// At returns element i.
func (l *List[T]) At(i int) (T, bool) {
	if i < 0 || i >= l.n {
		var zero T
		return zero, false
	}
	return l.at(i), true
}

func (l *List[T]) at(i int) T {
	if i < len(l.inline) {
		return l.inline[i]
	}
	return l.spill[i-len(l.inline)]
}

// Values returns a copy of the elements.
func (l *List[T]) Values() []T {
	out := make([]T, l.n)
	for i := range out {
		out[i] = l.at(i)
	}
	return out
}

// PushBack appends v. Returns ErrCapacityExceeded at the maximum.
func (l *List[T]) PushBack(v T) error {
	if l.n >= l.Cap() {
		return fmt.Errorf("%s: %w", l.name, types.ErrCapacityExceeded)
	}
	return l.apply(append(l.Values(), v))
}

// Set replaces element i.
func (l *List[T]) Set(i int, v T) error {
	if i < 0 || i >= l.n {
		return fmt.Errorf("%s[%d]: %w", l.name, i, types.ErrNotFound)
	}
	vals := l.Values()
	vals[i] = v
	return l.apply(vals)
}

// Pop removes and returns the last element.
func (l *List[T]) Pop() (T, error) {
	var zero T
	if l.n == 0 {
		return zero, fmt.Errorf("%s: %w", l.name, types.ErrNotFound)
	}
	vals := l.Values()
	last := vals[len(vals)-1]
	if err := l.apply(vals[:len(vals)-1]); err != nil {
		return zero, err
	}
	return last, nil
}

// Clear removes every element.
func (l *List[T]) Clear() error { return l.apply(nil) }

// Resize truncates or zero-extends to n elements.
func (l *List[T]) Resize(n int) error {
	if n < 0 || n > l.Cap() {
		return fmt.Errorf("%s: resize to %d: %w", l.name, n, types.ErrCapacityExceeded)
	}
	vals := l.Values()
	if n <= len(vals) {
		return l.apply(vals[:n])
	}
	return l.apply(append(vals, make([]T, n-len(vals))...))
}

// SetValues replaces every element.
func (l *List[T]) SetValues(vals []T) error {
	return l.apply(append([]T(nil), vals...))
}

// OnChange installs the change callback; nil clears it.
func (l *List[T]) OnChange(fn func(old, new []T)) { l.onChange = fn }

// apply validates vals, stores them and announces the change if the encoding
// differs.
func (l *List[T]) apply(vals []T) error {
	if len(vals) > l.Cap() {
		return fmt.Errorf("%s: %d elements: %w", l.name, len(vals), types.ErrCapacityExceeded)
	}
	if !l.valid(vals) {
		return fmt.Errorf("%s: %w", l.name, types.ErrValidation)
	}
	old := l.Values()
	if bytes.Equal(l.encodeValues(old), l.encodeValues(vals)) {
		return nil
	}
	l.store(vals)
	l.changed(l)
	if l.onChange != nil {
		l.onChange(old, l.Values())
	}
	return nil
}

func (l *List[T]) store(vals []T) {
	var zero T
	for i := 0; i < l.Cap(); i++ {
		v := zero
		if i < len(vals) {
			v = vals[i]
		}
		if i < len(l.inline) {
			l.inline[i] = v
		} else {
			l.spill[i-len(l.inline)] = v
		}
	}
	l.n = len(vals)
}

func (l *List[T]) valid(vals []T) bool {
	if !codec.Validate(l.td, reflect.ValueOf(vals)) {
		return false
	}
	if l.td.Container.Unique {
		seen := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			k := string(l.encodeElem(v))
			if _, dup := seen[k]; dup {
				return false
			}
			seen[k] = struct{}{}
		}
	}
	return true
}

func (l *List[T]) encodeElem(v T) []byte {
	rv := reflect.ValueOf(v)
	wb := wire.NewWriteBuffer(make([]byte, codec.Size(l.td.Elem, rv)))
	codec.Encode(wb, l.td.Elem, rv)
	return wb.Bytes()
}

func (l *List[T]) encodeValues(vals []T) []byte {
	rv := reflect.ValueOf(vals)
	wb := wire.NewWriteBuffer(make([]byte, codec.Size(l.td, rv)))
	codec.Encode(wb, l.td, rv)
	return wb.Bytes()
}

func (l *List[T]) TypeID() types.TypeID { return types.TypeList }
func (l *List[T]) TypeDef() *schema.TypeDef { return l.td }
func (l *List[T]) GoType() reflect.Type { return reflect.TypeFor[[]T]() }

func (l *List[T]) Size() int {
	return codec.Size(l.td, reflect.ValueOf(l.Values()))
}

func (l *List[T]) Encode(wb *wire.WriteBuffer) bool {
	if wb.WriteVarint(uint32(l.n)) == 0 {
		return false
	}
	for i := 0; i < l.n; i++ {
		if !codec.Encode(wb, l.td.Elem, reflect.ValueOf(l.at(i))) {
			return false
		}
	}
	return true
}

func (l *List[T]) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	var vals []T
	if err := codec.Decode(rb, l.td, reflect.ValueOf(&vals).Elem()); err != nil {
		rb.SetPosition(start)
		return err
	}
	if err := l.apply(vals); err != nil {
		rb.SetPosition(start)
		return err
	}
	return nil
}

func (l *List[T]) SetGeneric(in any) error {
	var vals []T
	if err := codec.FromGeneric(l.td, in, reflect.ValueOf(&vals).Elem()); err != nil {
		return fmt.Errorf("%s: %w", l.name, err)
	}
	return l.apply(vals)
}
