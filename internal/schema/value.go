package schema

// Value wraps a basic field of an object so that it carries constraints into
// the schema. It is wire-safe whenever T is and encodes exactly like T.
type Value[T Number] struct {
	V     T
	rules Range[T]
}

// NewValue returns a wrapped value with constraints.
func NewValue[T Number](v T, r Range[T]) Value[T] {
	return Value[T]{V: v, rules: r}
}

// Get returns the wrapped value.
func (v Value[T]) Get() T { return v.V }

// Set stores x when it satisfies the constraints and reports whether it did.
func (v *Value[T]) Set(x T) bool {
	if !v.rules.Check(x) {
		return false
	}
	v.V = x
	return true
}

// Valid reports whether the current value satisfies the constraints.
func (v Value[T]) Valid() bool { return v.rules.Check(v.V) }

// Constraints returns the constraint set for schema encoding.
func (v Value[T]) Constraints() Constraints {
	if v.rules.flags == 0 {
		return nil
	}
	return v.rules
}

func (Value[T]) valueWrapper() {}

// wrapper is implemented by every Value[T] instantiation.
type wrapper interface {
	valueWrapper()
	Constraints() Constraints
}
