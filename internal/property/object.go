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

// Object holds a wire-safe struct. Its fields are encoded back to back in
// declaration order.
type Object[S any] struct {
	Base
	value     S
	committed []byte
	td        *schema.TypeDef
	size      int
	onChange  func(old, new S)
}

// NewObject declares an object property. It panics with ErrNotWireSafe when S
// is not a struct of fixed-layout fields.
func NewObject[S any](name string, init S, opts ...Option) *Object[S] {
	t := reflect.TypeFor[S]()
	if t.Kind() != reflect.Struct || !schema.IsWireSafe(t) {
		panic(fmt.Errorf("property %q: %w: %s", name, types.ErrNotWireSafe, t))
	}
	td, err := schema.Describe(init)
	if err != nil {
		panic(fmt.Errorf("property %q: %w", name, err))
	}
	size, _ := td.FixedSize()
	o := &Object[S]{Base: newBase(name, applyOptions(opts)), value: init, td: td, size: size}
	if !o.valid(init) {
		panic(fmt.Errorf("property %q: initial value: %w", name, types.ErrValidation))
	}
	o.committed = o.encode(init)
	return o
}

// Get returns a copy of the current value.
func (o *Object[S]) Get() S { return o.value }

// Ptr exposes the struct for in-place edits; call Commit afterwards so the
// change is validated and announced.
func (o *Object[S]) Ptr() *S { return &o.value }

// Set replaces the whole value.
func (o *Object[S]) Set(v S) error {
	if !o.valid(v) {
		return fmt.Errorf("%s: %w", o.name, types.ErrValidation)
	}
	o.value = v
	o.commit()
	return nil
}

// Commit announces in-place edits made through Ptr or Field. An invalid edit
// is rolled back and reported as ErrValidation.
func (o *Object[S]) Commit() error {
	if !o.valid(o.value) {
		o.value = o.decodeCommitted()
		return fmt.Errorf("%s: %w", o.name, types.ErrValidation)
	}
	o.commit()
	return nil
}

// OnChange installs the change callback; nil clears it.
func (o *Object[S]) OnChange(fn func(old, new S)) { o.onChange = fn }

// FieldCount returns the number of fields of S.
func (o *Object[S]) FieldCount() int { return len(o.td.Fields) }

// Field returns a pointer to field i as any (e.g. *int32). Call Commit after
// writing through it.
func (o *Object[S]) Field(i int) (any, error) {
	return schema.FieldPtr(&o.value, i)
}

// ForEachField visits every field with its index, schema name and a pointer
// to it, until fn returns false.
func (o *Object[S]) ForEachField(fn func(i int, name string, ptr any) bool) {
	v := reflect.ValueOf(&o.value).Elem()
	for i, f := range o.td.Fields {
		if !fn(i, f.Name, v.Field(i).Addr().Interface()) {
			return
		}
	}
}

// FieldAs returns a typed pointer to field i of an object property.
func FieldAs[F any, S any](o *Object[S], i int) (*F, error) {
	ptr, err := o.Field(i)
	if err != nil {
		return nil, err
	}
	f, ok := ptr.(*F)
	if !ok {
		return nil, fmt.Errorf("%w: field %d is %T", types.ErrTypeMismatch, i, ptr)
	}
	return f, nil
}

// SetData replaces the value from its raw wire form; len(data) must equal the
// fixed wire size of S.
func (o *Object[S]) SetData(data []byte) error {
	if len(data) != o.size {
		return fmt.Errorf("%s: %d bytes, want %d: %w", o.name, len(data), o.size, types.ErrTypeMismatch)
	}
	return o.Decode(wire.NewReadBuffer(data))
}

func (o *Object[S]) commit() {
	enc := o.encode(o.value)
	if bytes.Equal(enc, o.committed) {
		return
	}
	old := o.decodeCommitted()
	o.committed = enc
	o.changed(o)
	if o.onChange != nil {
		o.onChange(old, o.value)
	}
}

func (o *Object[S]) encode(v S) []byte {
	wb := wire.NewWriteBuffer(make([]byte, o.size))
	codec.Encode(wb, o.td, reflect.ValueOf(v))
	return wb.Bytes()
}

// decodeCommitted rebuilds the last announced value. The current value is the
// template so that Value[T] fields keep their constraints.
func (o *Object[S]) decodeCommitted() S {
	v := o.value
	_ = codec.Decode(wire.NewReadBuffer(o.committed), o.td, reflect.ValueOf(&v).Elem())
	return v
}

func (o *Object[S]) valid(v S) bool {
	return codec.Validate(o.td, reflect.ValueOf(v))
}

func (o *Object[S]) TypeID() types.TypeID { return types.TypeObject }
func (o *Object[S]) TypeDef() *schema.TypeDef { return o.td }
func (o *Object[S]) GoType() reflect.Type { return reflect.TypeFor[S]() }
func (o *Object[S]) Size() int { return o.size }

func (o *Object[S]) Encode(wb *wire.WriteBuffer) bool {
	return wb.WriteBytes(o.encode(o.value))
}

func (o *Object[S]) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	v := o.value
	if err := codec.Decode(rb, o.td, reflect.ValueOf(&v).Elem()); err != nil {
		rb.SetPosition(start)
		return err
	}
	if !o.valid(v) {
		rb.SetPosition(start)
		return fmt.Errorf("%s: %w", o.name, types.ErrValidation)
	}
	o.value = v
	o.commit()
	return nil
}

func (o *Object[S]) SetGeneric(in any) error {
	v := o.value
	if err := codec.FromGeneric(o.td, in, reflect.ValueOf(&v).Elem()); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	return o.Set(v)
}
