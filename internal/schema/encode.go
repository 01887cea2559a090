package schema

import (
	"fmt"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// EncodeTypeDef writes the schema bytes of t:
//
//	basic:    type_id constraints_byte [bounds]
//	string:   type_id container_byte [lengths]
//	array:    type_id varint(count) elem
//	list:     type_id container_byte [lengths] elem
//	object:   type_id varint(count) { varint(name_len) name field }*
//	variant:  type_id varint(count) { varint(name_len) name alternative }*
//	resource: type_id header body
func EncodeTypeDef(wb *wire.WriteBuffer, t *TypeDef) bool {
	if !wb.WriteU8(uint8(t.ID)) {
		return false
	}
	switch t.ID {
	case types.TypeString, types.TypeBytes:
		return t.Container.Encode(wb)

	case types.TypeArray:
		return wb.WriteVarint(uint32(t.Len)) > 0 && EncodeTypeDef(wb, t.Elem)

	case types.TypeList:
		return t.Container.Encode(wb) && EncodeTypeDef(wb, t.Elem)

	case types.TypeObject, types.TypeVariant:
		if wb.WriteVarint(uint32(len(t.Fields))) == 0 {
			return false
		}
		for _, f := range t.Fields {
			if !wb.WriteString(f.Name) || !EncodeTypeDef(wb, f.Type) {
				return false
			}
		}
		return true

	case types.TypeResource:
		return EncodeTypeDef(wb, t.Header) && EncodeTypeDef(wb, t.Body)
	}

	if t.Constraints == nil {
		return wb.WriteU8(0)
	}
	return wb.WriteU8(t.Constraints.Flags()) && t.Constraints.EncodeBounds(wb, t.ID)
}

// Marshal returns the schema bytes of t.
func Marshal(t *TypeDef) ([]byte, error) {
	for size := 256; size <= maxSchemaSize; size *= 2 {
		wb := wire.NewWriteBuffer(make([]byte, size))
		if EncodeTypeDef(wb, t) {
			return wb.Bytes(), nil
		}
		if wb.Ok() {
			return nil, fmt.Errorf("%w: constraints do not match %s", types.ErrTypeMismatch, t)
		}
	}
	return nil, types.ErrBufferOverflow
}

const maxSchemaSize = 64 * 1024

// DecodeTypeDef parses schema bytes produced by EncodeTypeDef.
func DecodeTypeDef(rb *wire.ReadBuffer) (*TypeDef, error) {
	start := rb.Position()
	t, err := decodeTypeDef(rb, 0)
	if err != nil {
		rb.SetPosition(start)
		return nil, err
	}
	return t, nil
}

func decodeTypeDef(rb *wire.ReadBuffer, depth int) (*TypeDef, error) {
	if depth > types.MaxPathDepth {
		return nil, fmt.Errorf("%w: schema nests too deeply", types.ErrTypeMismatch)
	}
	b, err := rb.ReadU8()
	if err != nil {
		return nil, err
	}
	t := &TypeDef{ID: types.TypeID(b)}

	switch {
	case t.ID.IsBasic():
		t.Constraints, err = decodeBounds(rb, t.ID)
		return t, err

	case t.ID == types.TypeString || t.ID == types.TypeBytes:
		t.Container, err = decodeContainer(rb)
		return t, err

	case t.ID == types.TypeArray:
		n, err := rb.ReadVarint()
		if err != nil {
			return nil, err
		}
		t.Len = int(n)
		t.Elem, err = decodeTypeDef(rb, depth+1)
		return t, err

	case t.ID == types.TypeList:
		if t.Container, err = decodeContainer(rb); err != nil {
			return nil, err
		}
		t.Elem, err = decodeTypeDef(rb, depth+1)
		return t, err

	case t.ID == types.TypeObject || t.ID == types.TypeVariant:
		n, err := rb.ReadVarint()
		if err != nil {
			return nil, err
		}
		// every field needs at least a name length and a type id
		if int(n) > rb.Remaining()/2 {
			return nil, types.ErrBufferUnderflow
		}
		if t.ID == types.TypeVariant && n > types.MaxVariantTypes {
			return nil, fmt.Errorf("%w: %d variant alternatives", types.ErrTypeMismatch, n)
		}
		t.Fields = make([]Field, n)
		for i := range t.Fields {
			name, err := rb.ReadString()
			if err != nil {
				return nil, err
			}
			ft, err := decodeTypeDef(rb, depth+1)
			if err != nil {
				return nil, err
			}
			t.Fields[i] = Field{Name: name, Type: ft}
		}
		return t, nil

	case t.ID == types.TypeResource:
		if t.Header, err = decodeTypeDef(rb, depth+1); err != nil {
			return nil, err
		}
		t.Body, err = decodeTypeDef(rb, depth+1)
		return t, err
	}

	return nil, fmt.Errorf("%w: unknown type id 0x%02x", types.ErrTypeMismatch, b)
}
