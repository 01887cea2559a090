// internal/schema/reflect.go
package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

/*
 * Reflection over Go types.
 *
 * Go structs map to OBJECT, fixed arrays to ARRAY, slices to LIST ([]byte to
 * BYTES), strings to STRING and sized numeric kinds to their basic ids.
 * Platform-sized int/uint, maps, pointers, channels and interfaces have no
 * wire form.
 *
 * Field names come from a table registered with RegisterFieldNames, falling
 * back to `mp:"name"` struct tags. Without either, fields are positional and
 * their schema names are empty.
 *
 * Results of Of are cached per type. Describe walks a live value so that
 * per-instance Value[T] constraints reach the schema.
 */

var (
	namesMu    sync.RWMutex
	fieldNames = map[reflect.Type][]string{}

	cacheMu sync.Mutex
	cache   = map[reflect.Type]*TypeDef{}

	wrapperType = reflect.TypeOf((*wrapper)(nil)).Elem()
)

// RegisterFieldNames records the ordered field names of struct S.
// The count must equal the number of fields.
func RegisterFieldNames[S any](names ...string) error {
	t := reflect.TypeFor[S]()
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s is not a struct", types.ErrUnsupportedType, t)
	}
	if len(names) != t.NumField() {
		return fmt.Errorf("%w: %s has %d fields, got %d names", types.ErrInvariant, t, t.NumField(), len(names))
	}

	namesMu.Lock()
	fieldNames[t] = append([]string(nil), names...)
	namesMu.Unlock()

	// nested definitions may embed the old names
	cacheMu.Lock()
	clear(cache)
	cacheMu.Unlock()
	return nil
}

// MustRegisterFieldNames is RegisterFieldNames that panics on error.
func MustRegisterFieldNames[S any](names ...string) {
	if err := RegisterFieldNames[S](names...); err != nil {
		panic(err)
	}
}

// FieldNames returns the schema names of a struct's fields, empty strings for
// unnamed ones.
func FieldNames(t reflect.Type) []string {
	namesMu.RLock()
	names, ok := fieldNames[t]
	namesMu.RUnlock()
	if ok {
		return names
	}
	out := make([]string, t.NumField())
	for i := range out {
		out[i] = t.Field(i).Tag.Get("mp")
	}
	return out
}

// FieldCount returns the number of fields of struct type S.
func FieldCount[S any]() int {
	return reflect.TypeFor[S]().NumField()
}

// FieldPtr projects a pointer to struct onto a pointer to its i-th field.
func FieldPtr(ptr any, i int) (any, error) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a pointer to struct", types.ErrTypeMismatch, ptr)
	}
	s := v.Elem()
	if i < 0 || i >= s.NumField() {
		return nil, fmt.Errorf("%w: field %d of %s", types.ErrNotFound, i, s.Type())
	}
	return s.Field(i).Addr().Interface(), nil
}

// Of returns the type definition of t without instance constraints.
func Of(t reflect.Type) (*TypeDef, error) {
	cacheMu.Lock()
	td, ok := cache[t]
	cacheMu.Unlock()
	if ok {
		return td, nil
	}
	td, err := build(t, reflect.Value{}, 0)
	if err != nil {
		return nil, err
	}
	cacheMu.Lock()
	cache[t] = td
	cacheMu.Unlock()
	return td, nil
}

// For returns the type definition of T.
func For[T any]() (*TypeDef, error) {
	return Of(reflect.TypeFor[T]())
}

// Describe returns the type definition of a live value, including the
// constraints carried by its Value[T] fields. Array elements contribute the
// constraints of element 0.
func Describe(v any) (*TypeDef, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil value", types.ErrUnsupportedType)
	}
	return build(rv.Type(), rv, 0)
}

func build(t reflect.Type, v reflect.Value, depth int) (*TypeDef, error) {
	if depth > types.MaxPathDepth {
		return nil, fmt.Errorf("%w: %s nests too deeply", types.ErrUnsupportedType, t)
	}
	if id := wire.KindTypeID(t.Kind()); id != types.TypeInvalid {
		return Basic(id), nil
	}

	switch t.Kind() {
	case reflect.String:
		return StringDef(), nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return BytesDef(), nil
		}
		elem, err := build(t.Elem(), reflect.Value{}, depth+1)
		if err != nil {
			return nil, err
		}
		return ListOf(elem, Container{}), nil

	case reflect.Array:
		var ev reflect.Value
		if v.IsValid() && v.Len() > 0 {
			ev = v.Index(0)
		}
		elem, err := build(t.Elem(), ev, depth+1)
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem, t.Len()), nil

	case reflect.Struct:
		if t.Implements(wrapperType) {
			id := wire.KindTypeID(t.Field(0).Type.Kind())
			td := &TypeDef{ID: id, Wrapped: true}
			if v.IsValid() {
				td.Constraints = v.Interface().(wrapper).Constraints()
			}
			return td, nil
		}

		names := FieldNames(t)
		fields := make([]Field, t.NumField())
		for i := range fields {
			sf := t.Field(i)
			if !sf.IsExported() {
				return nil, fmt.Errorf("%w: %s.%s is unexported", types.ErrUnsupportedType, t, sf.Name)
			}
			var fv reflect.Value
			if v.IsValid() {
				fv = v.Field(i)
			}
			ft, err := build(sf.Type, fv, depth+1)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: names[i], Type: ft}
		}
		return ObjectOf(fields...), nil
	}

	return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedType, t)
}

// IsWireSafe reports whether t has a fixed layout with no owning members:
// a sized numeric or bool, a fixed array of wire-safe elements, a struct of
// exported wire-safe fields, or a Value[T] wrapper.
func IsWireSafe(t reflect.Type) bool {
	return wireSafe(t, 0)
}

// WireSafe reports whether T is wire-safe.
func WireSafe[T any]() bool {
	return IsWireSafe(reflect.TypeFor[T]())
}

func wireSafe(t reflect.Type, depth int) bool {
	if depth > types.MaxPathDepth {
		return false
	}
	if wire.KindTypeID(t.Kind()) != types.TypeInvalid {
		return true
	}
	switch t.Kind() {
	case reflect.Array:
		return wireSafe(t.Elem(), depth+1)
	case reflect.Struct:
		if t.Implements(wrapperType) {
			return true
		}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() || !wireSafe(sf.Type, depth+1) {
				return false
			}
		}
		return true
	}
	return false
}
