package property

import (
	"fmt"
	"math"
	"reflect"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Scalar holds a single scalar or string value.
type Scalar[T schema.Scalar] struct {
	Base
	value    T
	def      T
	td       *schema.TypeDef
	onChange func(old, new T)
}

// New declares a scalar property with a default value. It panics when T has
// no wire form (int, uint) or when the default violates the constraints.
func New[T schema.Scalar](name string, def T, opts ...Option) *Scalar[T] {
	s := applyOptions(opts)
	td, err := schema.For[T]()
	if err != nil {
		panic(fmt.Errorf("property %q: %w", name, err))
	}
	switch {
	case td.ID.IsBasic() && s.constraints != nil:
		td = td.WithConstraints(s.constraints)
	case td.ID == types.TypeString:
		cp := *td
		cp.Container = s.container
		td = &cp
	}
	p := &Scalar[T]{Base: newBase(name, s), value: def, def: def, td: td}
	if !p.valid(def) {
		panic(fmt.Errorf("property %q: default %v: %w", name, def, types.ErrValidation))
	}
	return p
}

// Get returns the current value.
func (p *Scalar[T]) Get() T { return p.value }

// Default returns the declared default.
func (p *Scalar[T]) Default() T { return p.def }

// Set stores v. Returns ErrValidation when v violates the constraints.
// Storing the current value is a no-op.
func (p *Scalar[T]) Set(v T) error {
	if !p.valid(v) {
		return fmt.Errorf("%s = %v: %w", p.name, v, types.ErrValidation)
	}
	p.commit(v)
	return nil
}

// Reset restores the default value.
func (p *Scalar[T]) Reset() error { return p.Set(p.def) }

// OnChange installs the change callback; nil clears it.
func (p *Scalar[T]) OnChange(fn func(old, new T)) { p.onChange = fn }

func (p *Scalar[T]) commit(v T) {
	if same(p.value, v) {
		return
	}
	old := p.value
	p.value = v
	p.changed(p)
	if p.onChange != nil {
		p.onChange(old, v)
	}
}

// same compares scalars the way their encodings compare: floats by bit
// pattern, so -0 differs from +0 and identical NaNs are equal.
func same[T schema.Scalar](a, b T) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Float32:
		return math.Float32bits(float32(va.Float())) == math.Float32bits(float32(vb.Float()))
	case reflect.Float64:
		return math.Float64bits(va.Float()) == math.Float64bits(vb.Float())
	}
	return a == b
}

func (p *Scalar[T]) valid(v T) bool {
	return codec.Validate(p.td, reflect.ValueOf(v))
}

func (p *Scalar[T]) TypeID() types.TypeID { return p.td.ID }
func (p *Scalar[T]) TypeDef() *schema.TypeDef { return p.td }
func (p *Scalar[T]) GoType() reflect.Type { return reflect.TypeFor[T]() }

func (p *Scalar[T]) Size() int {
	return codec.Size(p.td, reflect.ValueOf(p.value))
}

func (p *Scalar[T]) Encode(wb *wire.WriteBuffer) bool {
	return codec.Encode(wb, p.td, reflect.ValueOf(p.value))
}

func (p *Scalar[T]) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	var v T
	if err := codec.Decode(rb, p.td, reflect.ValueOf(&v).Elem()); err != nil {
		rb.SetPosition(start)
		return err
	}
	if !p.valid(v) {
		rb.SetPosition(start)
		return fmt.Errorf("%s: %w", p.name, types.ErrValidation)
	}
	p.commit(v)
	return nil
}

func (p *Scalar[T]) SetGeneric(in any) error {
	var v T
	if err := codec.FromGeneric(p.td, in, reflect.ValueOf(&v).Elem()); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return p.Set(v)
}
