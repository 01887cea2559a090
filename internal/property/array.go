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

// Array holds a fixed-length Go array A such as [3]uint8. The wire form is
// the elements back to back with no length; constraints given with
// WithConstraints apply to every element.
type Array[A any] struct {
	Base
	value    A
	def      A
	td       *schema.TypeDef
	onChange func(old, new A)
}

// NewArray declares an array property. It panics when A is not an array of a
// wire-safe element type or when the default violates the constraints.
func NewArray[A any](name string, def A, opts ...Option) *Array[A] {
	t := reflect.TypeFor[A]()
	if t.Kind() != reflect.Array || t.Len() == 0 || !schema.IsWireSafe(t) {
		panic(fmt.Errorf("property %q: %w: %s", name, types.ErrNotWireSafe, t))
	}
	s := applyOptions(opts)
	td, err := schema.Of(t)
	if err != nil {
		panic(fmt.Errorf("property %q: %w", name, err))
	}
	if td.Elem.ID.IsBasic() && s.constraints != nil {
		td = schema.ArrayOf(td.Elem.WithConstraints(s.constraints), td.Len)
	}
	a := &Array[A]{Base: newBase(name, s), value: def, def: def, td: td}
	if !a.valid(def) {
		panic(fmt.Errorf("property %q: default: %w", name, types.ErrValidation))
	}
	return a
}

// Len returns the element count.
func (a *Array[A]) Len() int { return a.td.Len }

// Get returns a copy of the current value.
func (a *Array[A]) Get() A { return a.value }

// At returns element i.
func (a *Array[A]) At(i int) (any, bool) {
	if i < 0 || i >= a.td.Len {
		return nil, false
	}
	return reflect.ValueOf(a.value).Index(i).Interface(), true
}

// Set replaces the whole array.
func (a *Array[A]) Set(v A) error {
	if !a.valid(v) {
		return fmt.Errorf("%s: %w", a.name, types.ErrValidation)
	}
	a.commit(v)
	return nil
}

// Update edits a copy of the value and stores it if it stays valid.
func (a *Array[A]) Update(fn func(v *A)) error {
	v := a.value
	fn(&v)
	return a.Set(v)
}

// Reset restores the default value.
func (a *Array[A]) Reset() error { return a.Set(a.def) }

// OnChange installs the change callback; nil clears it.
func (a *Array[A]) OnChange(fn func(old, new A)) { a.onChange = fn }

func (a *Array[A]) commit(v A) {
	if bytes.Equal(a.encode(a.value), a.encode(v)) {
		return
	}
	old := a.value
	a.value = v
	a.changed(a)
	if a.onChange != nil {
		a.onChange(old, v)
	}
}

func (a *Array[A]) encode(v A) []byte {
	rv := reflect.ValueOf(v)
	wb := wire.NewWriteBuffer(make([]byte, codec.Size(a.td, rv)))
	codec.Encode(wb, a.td, rv)
	return wb.Bytes()
}

func (a *Array[A]) valid(v A) bool {
	return codec.Validate(a.td, reflect.ValueOf(v))
}

func (a *Array[A]) TypeID() types.TypeID { return types.TypeArray }
func (a *Array[A]) TypeDef() *schema.TypeDef { return a.td }
func (a *Array[A]) GoType() reflect.Type { return reflect.TypeFor[A]() }

func (a *Array[A]) Size() int {
	return codec.Size(a.td, reflect.ValueOf(a.value))
}

func (a *Array[A]) Encode(wb *wire.WriteBuffer) bool {
	return codec.Encode(wb, a.td, reflect.ValueOf(a.value))
}

func (a *Array[A]) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	var v A
	if err := codec.Decode(rb, a.td, reflect.ValueOf(&v).Elem()); err != nil {
		rb.SetPosition(start)
		return err
	}
	if !a.valid(v) {
		rb.SetPosition(start)
		return fmt.Errorf("%s: %w", a.name, types.ErrValidation)
	}
	a.commit(v)
	return nil
}

func (a *Array[A]) SetGeneric(in any) error {
	v := a.value
	if err := codec.FromGeneric(a.td, in, reflect.ValueOf(&v).Elem()); err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	return a.Set(v)
}
