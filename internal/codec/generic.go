// internal/codec/generic.go
package codec

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

/*
 * Schema-driven generic values.
 *
 * A peer that only has schema bytes decodes values into this representation:
 *   basic    -> Go builtin of the same width (bool, int8 ... float64)
 *   string   -> string
 *   bytes    -> []byte
 *   array    -> []any
 *   list     -> []any
 *   object   -> Object (ordered members)
 *   variant  -> Variant
 *   resource -> ResourceTable
 *
 * ToGeneric maps a typed Go value onto the same representation, so a typed
 * decode and a generic decode of the same bytes compare equal with
 * reflect.DeepEqual.
 */

// Member is one named field of a generic object.
type Member struct {
	Name  string
	Value any
}

// Object is a generic object value in declaration order.
type Object []Member

// Get returns the value of the first member called name.
func (o Object) Get(name string) (any, bool) {
	for _, m := range o {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Variant is a generic variant value.
type Variant struct {
	Index uint8
	Name  string
	Value any
}

// ResourceEntry is one live header of a resource table.
type ResourceEntry struct {
	ID       uint32
	Version  uint32
	BodySize uint32
	Header   any
}

// ResourceTable is the generic value of a resource property.
type ResourceTable struct {
	NextID  uint32
	Entries []ResourceEntry
}

// DecodeGeneric reads one value described by td.
func DecodeGeneric(rb *wire.ReadBuffer, td *schema.TypeDef) (any, error) {
	start := rb.Position()
	v, err := decodeGeneric(rb, td)
	if err != nil {
		rb.SetPosition(start)
		return nil, err
	}
	return v, nil
}

func decodeGeneric(rb *wire.ReadBuffer, td *schema.TypeDef) (any, error) {
	switch {
	case td.ID.IsBasic():
		return rb.ReadScalar(td.ID)

	case td.ID == types.TypeString:
		return rb.ReadString()

	case td.ID == types.TypeBytes:
		b, err := rb.ReadBlob()
		if err != nil {
			return nil, err
		}
		return bytes.Clone(b), nil

	case td.ID == types.TypeArray:
		return decodeElements(rb, td.Elem, td.Len)

	case td.ID == types.TypeList:
		n, err := rb.ReadVarint()
		if err != nil {
			return nil, err
		}
		if int(n) > rb.Remaining() {
			return nil, types.ErrBufferUnderflow
		}
		return decodeElements(rb, td.Elem, int(n))

	case td.ID == types.TypeObject:
		obj := make(Object, len(td.Fields))
		for i, f := range td.Fields {
			v, err := decodeGeneric(rb, f.Type)
			if err != nil {
				return nil, err
			}
			obj[i] = Member{Name: f.Name, Value: v}
		}
		return obj, nil

	case td.ID == types.TypeVariant:
		tag, err := rb.ReadU8()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(td.Fields) {
			return nil, fmt.Errorf("%w: variant tag %d of %d", types.ErrTypeMismatch, tag, len(td.Fields))
		}
		alt := td.Fields[tag]
		v, err := decodeGeneric(rb, alt.Type)
		if err != nil {
			return nil, err
		}
		return Variant{Index: tag, Name: alt.Name, Value: v}, nil

	case td.ID == types.TypeResource:
		return decodeResourceTable(rb, td)
	}
	return nil, fmt.Errorf("%w: unknown type id 0x%02x", types.ErrTypeMismatch, uint8(td.ID))
}

func decodeElements(rb *wire.ReadBuffer, elem *schema.TypeDef, n int) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := decodeGeneric(rb, elem)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeResourceTable(rb *wire.ReadBuffer, td *schema.TypeDef) (ResourceTable, error) {
	var t ResourceTable
	var err error
	if t.NextID, err = rb.ReadU32(); err != nil {
		return t, err
	}
	n, err := rb.ReadVarint()
	if err != nil {
		return t, err
	}
	if int(n) > rb.Remaining() {
		return t, types.ErrBufferUnderflow
	}
	t.Entries = make([]ResourceEntry, n)
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.ID, err = rb.ReadU32(); err != nil {
			return t, err
		}
		if e.Version, err = rb.ReadU32(); err != nil {
			return t, err
		}
		if e.BodySize, err = rb.ReadVarint(); err != nil {
			return t, err
		}
		if e.Header, err = decodeGeneric(rb, td.Header); err != nil {
			return t, err
		}
	}
	return t, nil
}

// EncodeGeneric writes a generic value described by td.
func EncodeGeneric(wb *wire.WriteBuffer, td *schema.TypeDef, v any) bool {
	switch {
	case td.ID.IsBasic():
		return wb.WriteScalar(td.ID, v)

	case td.ID == types.TypeString:
		s, ok := v.(string)
		return ok && wb.WriteString(s)

	case td.ID == types.TypeBytes:
		b, ok := v.([]byte)
		return ok && wb.WriteBlob(b)

	case td.ID == types.TypeArray || td.ID == types.TypeList:
		elems, ok := v.([]any)
		if !ok {
			return false
		}
		if td.ID == types.TypeArray && len(elems) != td.Len {
			return false
		}
		if td.ID == types.TypeList && wb.WriteVarint(uint32(len(elems))) == 0 {
			return false
		}
		for _, e := range elems {
			if !EncodeGeneric(wb, td.Elem, e) {
				return false
			}
		}
		return true

	case td.ID == types.TypeObject:
		obj, ok := v.(Object)
		if !ok || len(obj) != len(td.Fields) {
			return false
		}
		for i, f := range td.Fields {
			if !EncodeGeneric(wb, f.Type, obj[i].Value) {
				return false
			}
		}
		return true

	case td.ID == types.TypeVariant:
		vv, ok := v.(Variant)
		if !ok || int(vv.Index) >= len(td.Fields) {
			return false
		}
		return wb.WriteU8(vv.Index) && EncodeGeneric(wb, td.Fields[vv.Index].Type, vv.Value)

	case td.ID == types.TypeResource:
		rt, ok := v.(ResourceTable)
		if !ok || !wb.WriteU32(rt.NextID) || wb.WriteVarint(uint32(len(rt.Entries))) == 0 {
			return false
		}
		for _, e := range rt.Entries {
			if !wb.WriteU32(e.ID) || !wb.WriteU32(e.Version) || wb.WriteVarint(e.BodySize) == 0 {
				return false
			}
			if !EncodeGeneric(wb, td.Header, e.Header) {
				return false
			}
		}
		return true
	}
	return false
}

// ToGeneric maps a typed Go value onto the generic representation of td.
func ToGeneric(td *schema.TypeDef, v reflect.Value) any {
	if td.Wrapped {
		v = v.Field(0)
	}
	switch {
	case td.ID.IsBasic():
		return v.Convert(builtinType(td.ID)).Interface()
	case td.ID == types.TypeString:
		return v.String()
	case td.ID == types.TypeBytes:
		return bytes.Clone(v.Bytes())
	case td.ID == types.TypeArray || td.ID == types.TypeList:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = ToGeneric(td.Elem, v.Index(i))
		}
		return out
	case td.ID == types.TypeObject:
		obj := make(Object, len(td.Fields))
		for i, f := range td.Fields {
			obj[i] = Member{Name: f.Name, Value: ToGeneric(f.Type, v.Field(i))}
		}
		return obj
	}
	return nil
}

var builtinTypes = map[types.TypeID]reflect.Type{
	types.TypeBool:    reflect.TypeFor[bool](),
	types.TypeInt8:    reflect.TypeFor[int8](),
	types.TypeUint8:   reflect.TypeFor[uint8](),
	types.TypeInt16:   reflect.TypeFor[int16](),
	types.TypeUint16:  reflect.TypeFor[uint16](),
	types.TypeInt32:   reflect.TypeFor[int32](),
	types.TypeUint32:  reflect.TypeFor[uint32](),
	types.TypeInt64:   reflect.TypeFor[int64](),
	types.TypeUint64:  reflect.TypeFor[uint64](),
	types.TypeFloat32: reflect.TypeFor[float32](),
	types.TypeFloat64: reflect.TypeFor[float64](),
}

func builtinType(id types.TypeID) reflect.Type {
	return builtinTypes[id]
}
