// Package codec encodes and decodes values against schema type definitions.
//
// Typed values travel through reflection (Encode, Decode); values of unknown
// Go type travel through the generic representation (DecodeGeneric,
// EncodeGeneric). Both produce identical bytes for the same TypeDef.
package codec

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Encode writes v in the wire form described by td.
func Encode(wb *wire.WriteBuffer, td *schema.TypeDef, v reflect.Value) bool {
	if td.Wrapped {
		v = v.Field(0)
	}
	switch {
	case td.ID.IsBasic():
		return wb.WriteScalarValue(td.ID, v)

	case td.ID == types.TypeString:
		if v.Kind() != reflect.String {
			return false
		}
		return wb.WriteString(v.String())

	case td.ID == types.TypeBytes:
		if v.Kind() != reflect.Slice {
			return false
		}
		return wb.WriteBlob(v.Bytes())

	case td.ID == types.TypeArray:
		if v.Kind() != reflect.Array || v.Len() != td.Len {
			return false
		}
		for i := 0; i < td.Len; i++ {
			if !Encode(wb, td.Elem, v.Index(i)) {
				return false
			}
		}
		return true

	case td.ID == types.TypeList:
		if v.Kind() != reflect.Slice || wb.WriteVarint(uint32(v.Len())) == 0 {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if !Encode(wb, td.Elem, v.Index(i)) {
				return false
			}
		}
		return true

	case td.ID == types.TypeObject:
		if v.Kind() != reflect.Struct || v.NumField() != len(td.Fields) {
			return false
		}
		for i, f := range td.Fields {
			if !Encode(wb, f.Type, v.Field(i)) {
				return false
			}
		}
		return true
	}
	return false
}

// Decode reads a value described by td into the settable v. On error v may be
// partially written; callers decode into a scratch copy.
func Decode(rb *wire.ReadBuffer, td *schema.TypeDef, v reflect.Value) error {
	if td.Wrapped {
		v = v.Field(0)
	}
	switch {
	case td.ID.IsBasic():
		return rb.ReadScalarInto(td.ID, v)

	case td.ID == types.TypeString:
		if v.Kind() != reflect.String {
			return types.ErrTypeMismatch
		}
		s, err := rb.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil

	case td.ID == types.TypeBytes:
		if v.Kind() != reflect.Slice {
			return types.ErrTypeMismatch
		}
		b, err := rb.ReadBlob()
		if err != nil {
			return err
		}
		v.SetBytes(bytes.Clone(b))
		return nil

	case td.ID == types.TypeArray:
		if v.Kind() != reflect.Array || v.Len() != td.Len {
			return types.ErrTypeMismatch
		}
		for i := 0; i < td.Len; i++ {
			if err := Decode(rb, td.Elem, v.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case td.ID == types.TypeList:
		if v.Kind() != reflect.Slice {
			return types.ErrTypeMismatch
		}
		n, err := rb.ReadVarint()
		if err != nil {
			return err
		}
		if int(n) > rb.Remaining() {
			return types.ErrBufferUnderflow
		}
		s := reflect.MakeSlice(v.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := Decode(rb, td.Elem, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil

	case td.ID == types.TypeObject:
		if v.Kind() != reflect.Struct || v.NumField() != len(td.Fields) {
			return types.ErrTypeMismatch
		}
		for i, f := range td.Fields {
			if err := Decode(rb, f.Type, v.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: cannot decode %s by reflection", types.ErrTypeMismatch, td.ID)
}

// Size returns the number of bytes Encode writes for v.
func Size(td *schema.TypeDef, v reflect.Value) int {
	if n, ok := td.FixedSize(); ok {
		return n
	}
	switch td.ID {
	case types.TypeString:
		return wire.VarintSize(uint32(v.Len())) + v.Len()
	case types.TypeBytes:
		return wire.VarintSize(uint32(v.Len())) + v.Len()
	case types.TypeArray:
		n := 0
		for i := 0; i < v.Len(); i++ {
			n += Size(td.Elem, v.Index(i))
		}
		return n
	case types.TypeList:
		n := wire.VarintSize(uint32(v.Len()))
		for i := 0; i < v.Len(); i++ {
			n += Size(td.Elem, v.Index(i))
		}
		return n
	case types.TypeObject:
		n := 0
		for i, f := range td.Fields {
			n += Size(f.Type, v.Field(i))
		}
		return n
	}
	return 0
}

// Validate reports whether every constrained basic inside v satisfies its
// constraints and every list or string satisfies its length bounds.
func Validate(td *schema.TypeDef, v reflect.Value) bool {
	if td.Wrapped {
		v = v.Field(0)
	}
	switch {
	case td.ID.IsBasic():
		return td.Constraints == nil || td.Constraints.Validate(v.Interface())
	case td.ID == types.TypeString || td.ID == types.TypeBytes:
		return td.Container.CheckLength(v.Len())
	case td.ID == types.TypeArray || td.ID == types.TypeList:
		if td.ID == types.TypeList && !td.Container.CheckLength(v.Len()) {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if !Validate(td.Elem, v.Index(i)) {
				return false
			}
		}
		return true
	case td.ID == types.TypeObject:
		for i, f := range td.Fields {
			if !Validate(f.Type, v.Field(i)) {
				return false
			}
		}
		return true
	}
	return true
}

// Marshal encodes a typed value into a fresh slice.
func Marshal(td *schema.TypeDef, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	wb := wire.NewWriteBuffer(make([]byte, Size(td, rv)))
	if !Encode(wb, td, rv) {
		if err := wb.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %T does not match %s", types.ErrTypeMismatch, v, td)
	}
	return wb.Bytes(), nil
}

// Unmarshal decodes data into the value ptr points to. The whole input must be
// consumed.
func Unmarshal(data []byte, td *schema.TypeDef, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: Unmarshal needs a non-nil pointer", types.ErrTypeMismatch)
	}
	rb := wire.NewReadBuffer(data)
	scratch := reflect.New(rv.Elem().Type()).Elem()
	scratch.Set(rv.Elem())
	if err := Decode(rb, td, scratch); err != nil {
		return err
	}
	if rb.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", types.ErrTypeMismatch, rb.Remaining())
	}
	rv.Elem().Set(scratch)
	return nil
}
