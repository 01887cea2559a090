package web

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
)

const draft = "https://json-schema.org/draft/2020-12/schema"

// PropertySchema returns the JSON Schema of the REST form of p's value.
//
// Properties backed by a Go type start from the reflected schema of that
// type, so struct tags contribute titles and descriptions. The wire type
// definition is authoritative: leaves are rebuilt from it and carry its
// numeric and length constraints.
func PropertySchema(p property.Property) (map[string]any, error) {
	out := map[string]any{}
	if t, ok := p.(property.Typed); ok {
		reflected, err := reflectSchema(t.GoType())
		if err != nil {
			return nil, fmt.Errorf("schema of %s: %w", p.Name(), err)
		}
		out = reflected
	}
	out, err := annotate(out, p.TypeDef())
	if err != nil {
		return nil, fmt.Errorf("schema of %s: %w", p.Name(), err)
	}
	out["$schema"] = draft
	out["title"] = p.Name()
	if d := p.Description(); d != "" {
		out["description"] = d
	}
	if p.Flags().Has(property.FlagReadOnly) {
		out["readOnly"] = true
	}
	return out, nil
}

func reflectSchema(t reflect.Type) (map[string]any, error) {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	data, err := json.Marshal(r.ReflectFromType(t))
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// annotate merges the definition of td into a reflected schema. Named
// objects keep the reflected skeleton; everything else is generated.
func annotate(s map[string]any, td *schema.TypeDef) (map[string]any, error) {
	if td.ID != types.TypeObject || !named(td) {
		return generate(td)
	}
	props, ok := s["properties"].(map[string]any)
	if !ok {
		return generate(td)
	}
	for _, f := range td.Fields {
		sub, _ := props[f.Name].(map[string]any)
		var err error
		if sub == nil {
			props[f.Name], err = generate(f.Type)
		} else {
			props[f.Name], err = annotate(sub, f.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	s["type"] = "object"
	return s, nil
}

func named(td *schema.TypeDef) bool {
	for _, f := range td.Fields {
		if f.Name == "" {
			return false
		}
	}
	return len(td.Fields) > 0
}

// generate builds the schema of td from the type definition alone.
func generate(td *schema.TypeDef) (map[string]any, error) {
	switch {
	case td.ID == types.TypeBool:
		return map[string]any{"type": "boolean"}, nil

	case td.ID.IsBasic():
		s := map[string]any{"type": "number"}
		if td.ID.IsInteger() {
			s["type"] = "integer"
			s["minimum"], s["maximum"] = integerRange(td.ID)
		}
		b, err := schema.BoundsOf(td.Constraints, td.ID)
		if err != nil {
			return nil, err
		}
		applyBounds(s, b)
		return s, nil

	case td.ID == types.TypeString:
		s := map[string]any{"type": "string"}
		applyLength(s, td.Container, "minLength", "maxLength")
		return s, nil

	case td.ID == types.TypeBytes:
		s := map[string]any{"type": "string", "contentEncoding": "base64"}
		applyLength(s, td.Container, "minLength", "maxLength")
		return s, nil

	case td.ID == types.TypeArray || td.ID == types.TypeList:
		items, err := generate(td.Elem)
		if err != nil {
			return nil, err
		}
		s := map[string]any{"type": "array", "items": items}
		if td.ID == types.TypeArray {
			s["minItems"], s["maxItems"] = td.Len, td.Len
		} else {
			applyLength(s, td.Container, "minItems", "maxItems")
			if td.Container.Unique {
				s["uniqueItems"] = true
			}
		}
		return s, nil

	case td.ID == types.TypeObject && named(td):
		props := make(map[string]any, len(td.Fields))
		required := make([]string, 0, len(td.Fields))
		for _, f := range td.Fields {
			sub, err := generate(f.Type)
			if err != nil {
				return nil, err
			}
			props[f.Name] = sub
			required = append(required, f.Name)
		}
		return map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		}, nil

	case td.ID == types.TypeObject:
		items := make([]any, len(td.Fields))
		for i, f := range td.Fields {
			sub, err := generate(f.Type)
			if err != nil {
				return nil, err
			}
			items[i] = sub
		}
		return map[string]any{
			"type":        "array",
			"prefixItems": items,
			"minItems":    len(items),
			"maxItems":    len(items),
		}, nil

	case td.ID == types.TypeVariant:
		alts := make([]any, len(td.Fields))
		for i, f := range td.Fields {
			value, err := generate(f.Type)
			if err != nil {
				return nil, err
			}
			alts[i] = map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":  map[string]any{"const": f.Name},
					"index": map[string]any{"const": i},
					"value": value,
				},
				"required": []string{"type", "value"},
			}
		}
		return map[string]any{"oneOf": alts}, nil

	case td.ID == types.TypeResource:
		header, err := generate(td.Header)
		if err != nil {
			return nil, err
		}
		u32 := map[string]any{"type": "integer", "minimum": 0, "maximum": uint64(math.MaxUint32)}
		return map[string]any{
			"type":     "object",
			"readOnly": true,
			"properties": map[string]any{
				"nextId": u32,
				"resources": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":       u32,
							"version":  u32,
							"bodySize": u32,
							"header":   header,
						},
					},
				},
			},
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", td, types.ErrUnsupportedType)
}

func integerRange(id types.TypeID) (any, any) {
	bits := id.Size() * 8
	if id.IsSigned() {
		return int64(-1) << (bits - 1), int64(1)<<(bits-1) - 1
	}
	return 0, uint64(math.MaxUint64) >> (64 - bits)
}

func applyBounds(s map[string]any, b schema.Bounds) {
	flags := b.Flags()
	if flags&schema.FlagMin != 0 {
		s["minimum"] = b.Min
	}
	if flags&schema.FlagMax != 0 {
		s["maximum"] = b.Max
	}
	if flags&schema.FlagStep != 0 {
		// JSON Schema steps are anchored at zero
		if flags&schema.FlagMin == 0 || reflect.ValueOf(b.Min).IsZero() {
			s["multipleOf"] = b.Step
		}
	}
	if flags&schema.FlagOneOf != 0 {
		s["enum"] = b.OneOf
	}
}

func applyLength(s map[string]any, c schema.Container, minKey, maxKey string) {
	if c.Flags()&schema.FlagMinLength != 0 {
		s[minKey] = c.MinLength
	}
	if c.Flags()&schema.FlagMaxLength != 0 {
		s[maxKey] = c.MaxLength
	}
}
