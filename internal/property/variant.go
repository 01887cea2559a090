package property

import (
	"bytes"
	"fmt"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Alternative is one member of a variant: a name and a basic type.
type Alternative struct {
	Name        string
	Type        types.TypeID
	Constraints schema.Constraints
}

// Variant holds exactly one of a fixed set of alternatives. The wire form is
// the 1-byte alternative index followed by that alternative's value.
type Variant struct {
	Base
	td         *schema.TypeDef
	maxPayload int
	current    codec.Variant
	onChange   func(old, new codec.Variant)
}

// NewVariant declares a variant property. The initial value is the zero of
// the first alternative. It panics when there are no alternatives, more than
// MaxVariantTypes, a non-basic type, a duplicate name or a payload above
// maxPayload.
func NewVariant(name string, maxPayload int, alts []Alternative, opts ...Option) *Variant {
	if len(alts) == 0 || len(alts) > types.MaxVariantTypes {
		panic(fmt.Errorf("property %q: %w: %d alternatives", name, types.ErrInvariant, len(alts)))
	}
	s := applyOptions(opts)
	fields := make([]schema.Field, len(alts))
	seen := make(map[string]bool, len(alts))
	for i, a := range alts {
		if !a.Type.IsBasic() || a.Type.Size() > maxPayload || seen[a.Name] {
			panic(fmt.Errorf("property %q: %w: alternative %q (%s)", name, types.ErrInvariant, a.Name, a.Type))
		}
		seen[a.Name] = true
		c := a.Constraints
		if c == nil {
			c = s.constraints
		}
		fields[i] = schema.Field{Name: a.Name, Type: &schema.TypeDef{ID: a.Type, Constraints: c}}
	}
	td := schema.VariantOf(fields...)
	zero, _ := codec.CoerceScalar(alts[0].Type, 0)
	return &Variant{
		Base:       newBase(name, s),
		td:         td,
		maxPayload: maxPayload,
		current:    codec.Variant{Index: 0, Name: alts[0].Name, Value: zero},
	}
}

// TypeCount returns the number of alternatives.
func (v *Variant) TypeCount() int { return len(v.td.Fields) }

// TypeIndex returns the index of the active alternative.
func (v *Variant) TypeIndex() int { return int(v.current.Index) }

// TypeName returns the name of the active alternative.
func (v *Variant) TypeName() string { return v.current.Name }

// FindType returns the index of the alternative called name, or TypeCount()
// when there is none.
func (v *Variant) FindType(name string) int { return v.td.FieldIndex(name) }

// Is reports whether the active alternative is called name.
func (v *Variant) Is(name string) bool { return v.current.Name == name }

// Value returns the active value as the Go builtin of its type.
func (v *Variant) Value() any { return v.current.Value }

// Current returns the active alternative and value.
func (v *Variant) Current() codec.Variant { return v.current }

// MaxPayload returns the largest payload size any alternative may have.
func (v *Variant) MaxPayload() int { return v.maxPayload }

// Set activates alternative index with value x. x is coerced to the
// alternative's type, so Set(0, 42) works for a uint8 alternative.
func (v *Variant) Set(index int, x any) error {
	if index < 0 || index >= len(v.td.Fields) {
		return fmt.Errorf("%s: alternative %d: %w", v.name, index, types.ErrNotFound)
	}
	alt := v.td.Fields[index]
	val, err := codec.CoerceScalar(alt.Type.ID, x)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", v.name, alt.Name, err)
	}
	return v.apply(codec.Variant{Index: uint8(index), Name: alt.Name, Value: val})
}

// SetByName activates the alternative called name.
func (v *Variant) SetByName(name string, x any) error {
	i := v.FindType(name)
	if i == v.TypeCount() {
		return fmt.Errorf("%s: alternative %q: %w", v.name, name, types.ErrNotFound)
	}
	return v.Set(i, x)
}

// SetData replaces the value from its exact wire framing: tag byte plus the
// alternative's bytes, nothing more.
func (v *Variant) SetData(data []byte) error {
	rb := wire.NewReadBuffer(data)
	x, err := codec.DecodeGeneric(rb, v.td)
	if err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	if rb.Remaining() != 0 {
		return fmt.Errorf("%s: %d trailing bytes: %w", v.name, rb.Remaining(), types.ErrTypeMismatch)
	}
	return v.apply(x.(codec.Variant))
}

// OnChange installs the change callback; nil clears it.
func (v *Variant) OnChange(fn func(old, new codec.Variant)) { v.onChange = fn }

// VariantGet returns the active value when it has type U.
func VariantGet[U any](v *Variant) (U, bool) {
	u, ok := v.current.Value.(U)
	return u, ok
}

func (v *Variant) apply(next codec.Variant) error {
	alt := v.td.Fields[next.Index].Type
	if alt.Constraints != nil && !alt.Constraints.Validate(next.Value) {
		return fmt.Errorf("%s.%s = %v: %w", v.name, next.Name, next.Value, types.ErrValidation)
	}
	if bytes.Equal(v.encode(v.current), v.encode(next)) {
		return nil
	}
	old := v.current
	v.current = next
	v.changed(v)
	if v.onChange != nil {
		v.onChange(old, next)
	}
	return nil
}

func (v *Variant) encode(x codec.Variant) []byte {
	wb := wire.NewWriteBuffer(make([]byte, 1+v.maxPayload))
	codec.EncodeGeneric(wb, v.td, x)
	return wb.Bytes()
}

func (v *Variant) TypeID() types.TypeID { return types.TypeVariant }
func (v *Variant) TypeDef() *schema.TypeDef { return v.td }

func (v *Variant) Size() int {
	return 1 + v.td.Fields[v.current.Index].Type.ID.Size()
}

func (v *Variant) Encode(wb *wire.WriteBuffer) bool {
	return codec.EncodeGeneric(wb, v.td, v.current)
}

func (v *Variant) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	x, err := codec.DecodeGeneric(rb, v.td)
	if err != nil {
		return err
	}
	if err := v.apply(x.(codec.Variant)); err != nil {
		rb.SetPosition(start)
		return err
	}
	return nil
}

// SetGeneric accepts a codec.Variant, {"type": name, "value": x} or a
// single-key map {name: x}.
func (v *Variant) SetGeneric(in any) error {
	switch x := in.(type) {
	case codec.Variant:
		return v.Set(int(x.Index), x.Value)
	case map[string]any:
		if name, ok := x["type"].(string); ok {
			return v.SetByName(name, x["value"])
		}
		if len(x) == 1 {
			for name, val := range x {
				return v.SetByName(name, val)
			}
		}
	}
	return fmt.Errorf("%s: %w", v.name, types.ErrCoercionFailed)
}
