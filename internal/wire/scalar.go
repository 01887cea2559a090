package wire

import (
	"reflect"

	"github.com/solatis/microproto/internal/types"
)

// WriteScalar writes v in the fixed wire form of a basic type id.
// v may be any Go value whose kind matches the id (named types included).
func (w *WriteBuffer) WriteScalar(id types.TypeID, v any) bool {
	switch x := v.(type) {
	case bool:
		if id == types.TypeBool {
			return w.WriteBool(x)
		}
	case int8:
		if id == types.TypeInt8 {
			return w.WriteU8(uint8(x))
		}
	case uint8:
		if id == types.TypeUint8 {
			return w.WriteU8(x)
		}
	case int16:
		if id == types.TypeInt16 {
			return w.WriteU16(uint16(x))
		}
	case uint16:
		if id == types.TypeUint16 {
			return w.WriteU16(x)
		}
	case int32:
		if id == types.TypeInt32 {
			return w.WriteU32(uint32(x))
		}
	case uint32:
		if id == types.TypeUint32 {
			return w.WriteU32(x)
		}
	case int64:
		if id == types.TypeInt64 {
			return w.WriteU64(uint64(x))
		}
	case uint64:
		if id == types.TypeUint64 {
			return w.WriteU64(x)
		}
	case float32:
		if id == types.TypeFloat32 {
			return w.WriteF32(x)
		}
	case float64:
		if id == types.TypeFloat64 {
			return w.WriteF64(x)
		}
	}
	return w.WriteScalarValue(id, reflect.ValueOf(v))
}

// WriteScalarValue is WriteScalar for a reflect.Value. It returns false when
// the value's kind does not match id.
func (w *WriteBuffer) WriteScalarValue(id types.TypeID, v reflect.Value) bool {
	if !v.IsValid() || KindTypeID(v.Kind()) != id {
		return false
	}
	switch id {
	case types.TypeBool:
		return w.WriteBool(v.Bool())
	case types.TypeInt8:
		return w.WriteU8(uint8(v.Int()))
	case types.TypeInt16:
		return w.WriteU16(uint16(v.Int()))
	case types.TypeInt32:
		return w.WriteU32(uint32(v.Int()))
	case types.TypeInt64:
		return w.WriteU64(uint64(v.Int()))
	case types.TypeUint8:
		return w.WriteU8(uint8(v.Uint()))
	case types.TypeUint16:
		return w.WriteU16(uint16(v.Uint()))
	case types.TypeUint32:
		return w.WriteU32(uint32(v.Uint()))
	case types.TypeUint64:
		return w.WriteU64(v.Uint())
	case types.TypeFloat32:
		return w.WriteF32(float32(v.Float()))
	case types.TypeFloat64:
		return w.WriteF64(v.Float())
	}
	return false
}

// ReadScalar reads a basic type and returns it as the matching Go builtin
// (bool, int8 ... uint64, float32, float64).
func (r *ReadBuffer) ReadScalar(id types.TypeID) (any, error) {
	switch id {
	case types.TypeBool:
		return r.ReadBool()
	case types.TypeInt8:
		v, err := r.ReadU8()
		return int8(v), err
	case types.TypeUint8:
		return r.ReadU8()
	case types.TypeInt16:
		v, err := r.ReadU16()
		return int16(v), err
	case types.TypeUint16:
		return r.ReadU16()
	case types.TypeInt32:
		v, err := r.ReadU32()
		return int32(v), err
	case types.TypeUint32:
		return r.ReadU32()
	case types.TypeInt64:
		v, err := r.ReadU64()
		return int64(v), err
	case types.TypeUint64:
		return r.ReadU64()
	case types.TypeFloat32:
		return r.ReadF32()
	case types.TypeFloat64:
		return r.ReadF64()
	}
	return nil, types.ErrTypeMismatch
}

// ReadScalarInto reads a basic type into a settable reflect.Value of the
// matching kind.
func (r *ReadBuffer) ReadScalarInto(id types.TypeID, dst reflect.Value) error {
	if KindTypeID(dst.Kind()) != id {
		return types.ErrTypeMismatch
	}
	x, err := r.ReadScalar(id)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(x).Convert(dst.Type()))
	return nil
}

// KindTypeID maps a reflect kind to its basic wire type, TypeInvalid when the
// kind has no fixed-size wire form. int and uint are platform sized and
// deliberately unmapped.
func KindTypeID(k reflect.Kind) types.TypeID {
	switch k {
	case reflect.Bool:
		return types.TypeBool
	case reflect.Int8:
		return types.TypeInt8
	case reflect.Uint8:
		return types.TypeUint8
	case reflect.Int16:
		return types.TypeInt16
	case reflect.Uint16:
		return types.TypeUint16
	case reflect.Int32:
		return types.TypeInt32
	case reflect.Uint32:
		return types.TypeUint32
	case reflect.Int64:
		return types.TypeInt64
	case reflect.Uint64:
		return types.TypeUint64
	case reflect.Float32:
		return types.TypeFloat32
	case reflect.Float64:
		return types.TypeFloat64
	}
	return types.TypeInvalid
}
