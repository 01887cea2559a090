package property

import (
	"fmt"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// EncodeProperty writes the value encoding of p.
func EncodeProperty(wb *wire.WriteBuffer, p Property) bool {
	return p.Encode(wb)
}

// DecodeProperty reads the value encoding of p and applies it. On error p is
// unchanged and rb is where it was.
func DecodeProperty(rb *wire.ReadBuffer, p Property) error {
	if err := p.Decode(rb); err != nil {
		return fmt.Errorf("decode %s: %w", p.Name(), err)
	}
	return nil
}

// Marshal returns the value encoding of p.
func Marshal(p Property) ([]byte, error) {
	wb := wire.NewWriteBuffer(make([]byte, p.Size()))
	if !p.Encode(wb) {
		if err := wb.Err(); err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.Name(), err)
		}
		return nil, fmt.Errorf("encode %s: %w", p.Name(), types.ErrTypeMismatch)
	}
	return wb.Bytes(), nil
}

// Unmarshal applies a complete value encoding to p. Trailing bytes are a
// type mismatch and leave p unchanged.
func Unmarshal(p Property, data []byte) error {
	check := wire.NewReadBuffer(data)
	if _, err := codec.DecodeGeneric(check, p.TypeDef()); err != nil {
		return fmt.Errorf("decode %s: %w", p.Name(), err)
	}
	if check.Remaining() != 0 {
		return fmt.Errorf("decode %s: %d trailing bytes: %w", p.Name(), check.Remaining(), types.ErrTypeMismatch)
	}
	return DecodeProperty(wire.NewReadBuffer(data), p)
}

// Generic returns the current value of p in the generic representation, as a
// peer holding only the schema would decode it.
func Generic(p Property) (any, error) {
	data, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	return codec.DecodeGeneric(wire.NewReadBuffer(data), p.TypeDef())
}

// SetText assigns a property from a text argument. Only basic, string and
// bytes properties have a text form.
func SetText(p Property, text string) error {
	v, err := codec.CoerceText(p.TypeDef(), text)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	return p.SetGeneric(v)
}
