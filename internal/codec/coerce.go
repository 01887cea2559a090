// internal/codec/coerce.go
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
)

/*
 * Coercion of loosely typed input into wire values.
 *
 * Text commands ("limitLeds 300"), CLI arguments and JSON request bodies
 * arrive without the precision of the wire types. Coercion maps them onto a
 * basic type id and returns the matching Go builtin:
 *
 *   - integers: strict. Accepts integral numbers and numeric strings within
 *     the type's range. Rejects fractions, booleans and overflow.
 *   - floats:   accepts any finite number or numeric string.
 *   - bool:     accepts bools, 0/1 and true/false/on/off/yes/no strings.
 *
 * Whitespace around strings is trimmed; whitespace-only strings fail.
 */

// CoerceScalar converts v to the Go builtin of the basic type id.
// Returns ErrCoercionFailed for impossible coercions.
func CoerceScalar(id types.TypeID, v any) (any, error) {
	if v == nil {
		return nil, types.ErrCoercionFailed
	}
	switch {
	case id == types.TypeBool:
		return coerceBool(v)
	case id.IsInteger():
		return coerceInteger(id, v)
	case id == types.TypeFloat32 || id == types.TypeFloat64:
		f, err := coerceFloat(v)
		if err != nil {
			return nil, err
		}
		if id == types.TypeFloat32 {
			if math.Abs(f) > math.MaxFloat32 {
				return nil, types.ErrCoercionFailed
			}
			return float32(f), nil
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s is not a basic type", types.ErrCoercionFailed, id)
}

// CoerceText converts a text argument to the generic value of td.
// Only basic types, strings and bytes have a text form.
func CoerceText(td *schema.TypeDef, text string) (any, error) {
	switch {
	case td.ID.IsBasic():
		return CoerceScalar(td.ID, text)
	case td.ID == types.TypeString:
		return text, nil
	case td.ID == types.TypeBytes:
		return []byte(text), nil
	}
	return nil, fmt.Errorf("%w: %s has no text form", types.ErrCoercionFailed, td)
}

func coerceBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "on", "yes", "1":
			return true, nil
		case "false", "off", "no", "0":
			return false, nil
		}
		return false, types.ErrCoercionFailed
	}
	f, err := coerceFloat(v)
	if err != nil {
		return false, err
	}
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, types.ErrCoercionFailed
}

// coerceFloat converts numbers and numeric strings to float64.
// Booleans are rejected.
func coerceFloat(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		n = strings.TrimSpace(n)
		if n == "" {
			return 0, types.ErrCoercionFailed
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, types.ErrCoercionFailed
		}
		return f, nil
	case json.Number:
		return coerceFloat(string(n))
	case bool:
		return 0, types.ErrCoercionFailed
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, types.ErrCoercionFailed
}

func coerceInteger(id types.TypeID, v any) (any, error) {
	bits := id.Size() * 8
	target := builtinType(id)

	// exact paths first so 64-bit values keep their precision
	var s string
	switch n := v.(type) {
	case string:
		s = strings.TrimSpace(n)
	case json.Number:
		s = string(n)
	}
	if s != "" {
		if id.IsSigned() {
			if i, err := strconv.ParseInt(s, 10, bits); err == nil {
				return reflect.ValueOf(i).Convert(target).Interface(), nil
			}
		} else if u, err := strconv.ParseUint(s, 10, bits); err == nil {
			return reflect.ValueOf(u).Convert(target).Interface(), nil
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if id.IsSigned() {
			if reflect.Zero(target).OverflowInt(i) {
				return nil, types.ErrCoercionFailed
			}
		} else if i < 0 || reflect.Zero(target).OverflowUint(uint64(i)) {
			return nil, types.ErrCoercionFailed
		}
		return rv.Convert(target).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if id.IsSigned() {
			if u > math.MaxInt64 || reflect.Zero(target).OverflowInt(int64(u)) {
				return nil, types.ErrCoercionFailed
			}
		} else if reflect.Zero(target).OverflowUint(u) {
			return nil, types.ErrCoercionFailed
		}
		return rv.Convert(target).Interface(), nil
	}

	f, err := coerceFloat(v)
	if err != nil {
		return nil, err
	}
	if f != math.Trunc(f) {
		return nil, types.ErrCoercionFailed
	}
	if id.IsSigned() {
		if f < math.MinInt64 || f >= math.MaxInt64 || reflect.Zero(target).OverflowInt(int64(f)) {
			return nil, types.ErrCoercionFailed
		}
		return reflect.ValueOf(int64(f)).Convert(target).Interface(), nil
	}
	if f < 0 || f >= math.MaxUint64 || reflect.Zero(target).OverflowUint(uint64(f)) {
		return nil, types.ErrCoercionFailed
	}
	return reflect.ValueOf(uint64(f)).Convert(target).Interface(), nil
}

// FromGeneric stores loosely typed input (JSON-decoded or generic values)
// into the settable dst described by td. Objects accept either a name-keyed
// map or a positional slice.
func FromGeneric(td *schema.TypeDef, in any, dst reflect.Value) error {
	if td.Wrapped {
		dst = dst.Field(0)
	}
	switch {
	case td.ID.IsBasic():
		x, err := CoerceScalar(td.ID, in)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(x).Convert(dst.Type()))
		return nil

	case td.ID == types.TypeString:
		s, ok := in.(string)
		if !ok {
			return types.ErrCoercionFailed
		}
		dst.SetString(s)
		return nil

	case td.ID == types.TypeBytes:
		switch b := in.(type) {
		case []byte:
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		case string:
			dst.SetBytes([]byte(b))
			return nil
		}
		return types.ErrCoercionFailed

	case td.ID == types.TypeArray || td.ID == types.TypeList:
		elems, ok := in.([]any)
		if !ok {
			return types.ErrCoercionFailed
		}
		if td.ID == types.TypeArray {
			if len(elems) != td.Len {
				return fmt.Errorf("%w: want %d elements, got %d", types.ErrCoercionFailed, td.Len, len(elems))
			}
		} else {
			dst.Set(reflect.MakeSlice(dst.Type(), len(elems), len(elems)))
		}
		for i, e := range elems {
			if err := FromGeneric(td.Elem, e, dst.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case td.ID == types.TypeObject:
		switch o := in.(type) {
		case map[string]any:
			for i, f := range td.Fields {
				v, ok := o[f.Name]
				if !ok || f.Name == "" {
					continue
				}
				if err := FromGeneric(f.Type, v, dst.Field(i)); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
			}
			return nil
		case []any:
			if len(o) != len(td.Fields) {
				return types.ErrCoercionFailed
			}
			for i, f := range td.Fields {
				if err := FromGeneric(f.Type, o[i], dst.Field(i)); err != nil {
					return err
				}
			}
			return nil
		case Object:
			for i, f := range td.Fields {
				if i < len(o) {
					if err := FromGeneric(f.Type, o[i].Value, dst.Field(i)); err != nil {
						return err
					}
				}
			}
			return nil
		}
		return types.ErrCoercionFailed
	}
	return fmt.Errorf("%w: cannot coerce into %s", types.ErrCoercionFailed, td)
}

// ToJSON converts a generic value into plain JSON-friendly data: objects with
// names become maps, unnamed objects and variants become slices and maps.
func ToJSON(v any) any {
	switch x := v.(type) {
	case Object:
		named := len(x) > 0
		for _, m := range x {
			if m.Name == "" {
				named = false
			}
		}
		if !named {
			out := make([]any, len(x))
			for i, m := range x {
				out[i] = ToJSON(m.Value)
			}
			return out
		}
		out := make(map[string]any, len(x))
		for _, m := range x {
			out[m.Name] = ToJSON(m.Value)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToJSON(e)
		}
		return out
	case Variant:
		return map[string]any{"type": x.Name, "index": x.Index, "value": ToJSON(x.Value)}
	case ResourceTable:
		entries := make([]any, len(x.Entries))
		for i, e := range x.Entries {
			entries[i] = map[string]any{
				"id": e.ID, "version": e.Version, "bodySize": e.BodySize, "header": ToJSON(e.Header),
			}
		}
		return map[string]any{"nextId": x.NextID, "resources": entries}
	}
	return v
}
