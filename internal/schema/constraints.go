// internal/schema/constraints.go
package schema

import (
	"math"
	"reflect"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

/*
 * Value and container constraints.
 *
 * A basic type definition is followed on the wire by a constraints byte:
 *   bit0 min, bit1 max, bit2 step, bit3 one-of
 * and then, in that order, min, max and step in the type's wire form and for
 * one-of a varint count plus that many values.
 *
 * Lists, strings and bytes carry a container constraints byte instead:
 *   bit0 min length, bit1 max length, bit2 unique elements
 * followed by the present lengths as varints.
 *
 * Range[T] is the typed form attached to property.Scalar[T] and Value[T]. Bounds is
 * the untyped form produced by DecodeTypeDef; it validates through float64
 * comparison.
 */

// Constraint flag bits.
const (
	FlagMin   uint8 = 0x01
	FlagMax   uint8 = 0x02
	FlagStep  uint8 = 0x04
	FlagOneOf uint8 = 0x08
)

// Container constraint flag bits.
const (
	FlagMinLength uint8 = 0x01
	FlagMaxLength uint8 = 0x02
	FlagUnique    uint8 = 0x04
)

// Constraints restrict the values a basic type may take.
type Constraints interface {
	// Flags returns the constraints byte.
	Flags() uint8
	// EncodeBounds writes the values announced by Flags in the wire form of id.
	EncodeBounds(wb *wire.WriteBuffer, id types.TypeID) bool
	// Validate reports whether v satisfies every constraint.
	Validate(v any) bool
}

// Number is the set of Go types with a fixed-size numeric wire form.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Scalar is the set of Go types a property.Scalar[T] can hold.
type Scalar interface {
	Number | ~bool | ~string
}

// Range is a typed set of numeric constraints.
type Range[T Number] struct {
	Min, Max, Step T
	OneOf          []T
	flags          uint8
}

// Between returns a Range with both bounds set.
func Between[T Number](min, max T) Range[T] {
	return Range[T]{Min: min, Max: max, flags: FlagMin | FlagMax}
}

// AtLeast returns a Range with only a lower bound.
func AtLeast[T Number](min T) Range[T] {
	return Range[T]{Min: min, flags: FlagMin}
}

// AtMost returns a Range with only an upper bound.
func AtMost[T Number](max T) Range[T] {
	return Range[T]{Max: max, flags: FlagMax}
}

// OneOf returns a Range that admits only the listed values.
func OneOf[T Number](values ...T) Range[T] {
	return Range[T]{OneOf: values, flags: FlagOneOf}
}

// WithStep adds a step constraint relative to Min (or 0 without Min).
func (r Range[T]) WithStep(step T) Range[T] {
	r.Step = step
	r.flags |= FlagStep
	return r
}

// Flags implements Constraints.
func (r Range[T]) Flags() uint8 { return r.flags }

// EncodeBounds implements Constraints.
func (r Range[T]) EncodeBounds(wb *wire.WriteBuffer, id types.TypeID) bool {
	if r.flags&FlagMin != 0 && !wb.WriteScalar(id, r.Min) {
		return false
	}
	if r.flags&FlagMax != 0 && !wb.WriteScalar(id, r.Max) {
		return false
	}
	if r.flags&FlagStep != 0 && !wb.WriteScalar(id, r.Step) {
		return false
	}
	if r.flags&FlagOneOf != 0 {
		if wb.WriteVarint(uint32(len(r.OneOf))) == 0 {
			return false
		}
		for _, v := range r.OneOf {
			if !wb.WriteScalar(id, v) {
				return false
			}
		}
	}
	return true
}

// Validate implements Constraints. Values of another Go type never validate.
func (r Range[T]) Validate(v any) bool {
	x, ok := v.(T)
	if !ok {
		return false
	}
	return r.Check(x)
}

// Check validates a typed value.
func (r Range[T]) Check(x T) bool {
	if r.flags&FlagMin != 0 && x < r.Min {
		return false
	}
	if r.flags&FlagMax != 0 && x > r.Max {
		return false
	}
	if r.flags&FlagStep != 0 && !onStep(float64(x), float64(r.base()), float64(r.Step)) {
		return false
	}
	if r.flags&FlagOneOf != 0 {
		for _, v := range r.OneOf {
			if v == x {
				return true
			}
		}
		return false
	}
	return true
}

func (r Range[T]) base() T {
	if r.flags&FlagMin != 0 {
		return r.Min
	}
	var zero T
	return zero
}

// onStep reports whether x lies on the grid base + k*step.
func onStep(x, base, step float64) bool {
	if step == 0 {
		return true
	}
	rem := math.Abs(math.Remainder(x-base, step))
	return rem <= 1e-9*math.Abs(step)
}

// Bounds is the untyped constraint set decoded from a schema. Values hold the
// Go builtin matching the type id.
type Bounds struct {
	Min, Max, Step any
	OneOf          []any
	flags          uint8
}

// Flags implements Constraints.
func (b Bounds) Flags() uint8 { return b.flags }

// EncodeBounds implements Constraints.
func (b Bounds) EncodeBounds(wb *wire.WriteBuffer, id types.TypeID) bool {
	if b.flags&FlagMin != 0 && !wb.WriteScalar(id, b.Min) {
		return false
	}
	if b.flags&FlagMax != 0 && !wb.WriteScalar(id, b.Max) {
		return false
	}
	if b.flags&FlagStep != 0 && !wb.WriteScalar(id, b.Step) {
		return false
	}
	if b.flags&FlagOneOf != 0 {
		if wb.WriteVarint(uint32(len(b.OneOf))) == 0 {
			return false
		}
		for _, v := range b.OneOf {
			if !wb.WriteScalar(id, v) {
				return false
			}
		}
	}
	return true
}

// Validate implements Constraints using numeric comparison.
func (b Bounds) Validate(v any) bool {
	x, ok := toFloat64(v)
	if !ok {
		return b.flags == 0
	}
	if b.flags&FlagMin != 0 && compareNumeric(x, b.Min) < 0 {
		return false
	}
	if b.flags&FlagMax != 0 && compareNumeric(x, b.Max) > 0 {
		return false
	}
	if b.flags&FlagStep != 0 {
		step, _ := toFloat64(b.Step)
		base := 0.0
		if b.flags&FlagMin != 0 {
			base, _ = toFloat64(b.Min)
		}
		if !onStep(x, base, step) {
			return false
		}
	}
	if b.flags&FlagOneOf != 0 {
		for _, o := range b.OneOf {
			if compareNumeric(x, o) == 0 {
				return true
			}
		}
		return false
	}
	return true
}

func decodeBounds(rb *wire.ReadBuffer, id types.TypeID) (Constraints, error) {
	flags, err := rb.ReadU8()
	if err != nil {
		return nil, err
	}
	if flags == 0 {
		return nil, nil
	}
	if !id.IsBasic() {
		return nil, types.ErrTypeMismatch
	}
	b := Bounds{flags: flags}
	if flags&FlagMin != 0 {
		if b.Min, err = rb.ReadScalar(id); err != nil {
			return nil, err
		}
	}
	if flags&FlagMax != 0 {
		if b.Max, err = rb.ReadScalar(id); err != nil {
			return nil, err
		}
	}
	if flags&FlagStep != 0 {
		if b.Step, err = rb.ReadScalar(id); err != nil {
			return nil, err
		}
	}
	if flags&FlagOneOf != 0 {
		n, err := rb.ReadVarint()
		if err != nil {
			return nil, err
		}
		if int(n)*id.Size() > rb.Remaining() {
			return nil, types.ErrBufferUnderflow
		}
		b.OneOf = make([]any, n)
		for i := range b.OneOf {
			if b.OneOf[i], err = rb.ReadScalar(id); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// Returns 0 for incomparable values.
func compareNumeric(a float64, b any) int {
	nb, ok := toFloat64(b)
	if !ok {
		return 0
	}
	switch {
	case a < nb:
		return -1
	case a > nb:
		return 1
	default:
		return 0
	}
}

// toFloat64 converts any bool-free numeric value to float64.
func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return float64(rv.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// Container restricts the length and uniqueness of lists, strings and bytes.
type Container struct {
	MinLength uint32
	MaxLength uint32
	Unique    bool
	flags     uint8
}

// LengthBetween returns container constraints with both length bounds.
func LengthBetween(min, max uint32) Container {
	return Container{MinLength: min, MaxLength: max, flags: FlagMinLength | FlagMaxLength}
}

// MaxLen returns container constraints with only an upper length bound.
func MaxLen(max uint32) Container {
	return Container{MaxLength: max, flags: FlagMaxLength}
}

// UniqueElements returns c with the unique flag set.
func (c Container) UniqueElements() Container {
	c.Unique = true
	c.flags |= FlagUnique
	return c
}

// Flags returns the container constraints byte.
func (c Container) Flags() uint8 { return c.flags }

// CheckLength reports whether n satisfies the length bounds.
func (c Container) CheckLength(n int) bool {
	if c.flags&FlagMinLength != 0 && n < int(c.MinLength) {
		return false
	}
	if c.flags&FlagMaxLength != 0 && n > int(c.MaxLength) {
		return false
	}
	return true
}

// Encode writes the flags byte and present lengths.
func (c Container) Encode(wb *wire.WriteBuffer) bool {
	if !wb.WriteU8(c.flags) {
		return false
	}
	if c.flags&FlagMinLength != 0 && wb.WriteVarint(c.MinLength) == 0 {
		return false
	}
	if c.flags&FlagMaxLength != 0 && wb.WriteVarint(c.MaxLength) == 0 {
		return false
	}
	return true
}

func decodeContainer(rb *wire.ReadBuffer) (Container, error) {
	flags, err := rb.ReadU8()
	if err != nil {
		return Container{}, err
	}
	c := Container{flags: flags, Unique: flags&FlagUnique != 0}
	if flags&FlagMinLength != 0 {
		if c.MinLength, err = rb.ReadVarint(); err != nil {
			return Container{}, err
		}
	}
	if flags&FlagMaxLength != 0 {
		if c.MaxLength, err = rb.ReadVarint(); err != nil {
			return Container{}, err
		}
	}
	return c, nil
}

// BoundsOf returns c in its untyped form. The conversion goes through the
// wire encoding, so every Constraints implementation is supported.
func BoundsOf(c Constraints, id types.TypeID) (Bounds, error) {
	if b, ok := c.(Bounds); ok {
		return b, nil
	}
	if c == nil || c.Flags() == 0 {
		return Bounds{}, nil
	}
	for size := 64; size <= 1<<20; size *= 2 {
		wb := wire.NewWriteBuffer(make([]byte, size))
		if !wb.WriteU8(c.Flags()) || !c.EncodeBounds(wb, id) {
			continue
		}
		decoded, err := decodeBounds(wire.NewReadBuffer(wb.Bytes()), id)
		if err != nil {
			return Bounds{}, err
		}
		b, _ := decoded.(Bounds)
		return b, nil
	}
	return Bounds{}, types.ErrBufferOverflow
}
