// Package schema describes wire layouts.
//
// A TypeDef tree is built once per Go type by reflection (Of, Describe) or
// parsed from schema bytes sent by a peer (DecodeTypeDef). Both forms encode
// to identical bytes with EncodeTypeDef, which is what lets a generic decoder
// read values it has never seen the Go type of.
package schema

import (
	"fmt"
	"strings"

	"github.com/solatis/microproto/internal/types"
)

// TypeDef is the wire layout of one type.
type TypeDef struct {
	ID types.TypeID

	// Constraints apply to basic types. Nil means none.
	Constraints Constraints

	// Container applies to lists, strings and bytes.
	Container Container

	// Elem is the element type of arrays and lists; Len is the array length.
	Elem *TypeDef
	Len  int

	// Fields are object fields in declaration order, or variant alternatives.
	Fields []Field

	// Header and Body describe a resource.
	Header *TypeDef
	Body   *TypeDef

	// Wrapped marks a basic type held in a Value[T] wrapper on the Go side.
	// It never reaches the wire.
	Wrapped bool
}

// Field is a named member of an object or a variant alternative.
// Name is empty when the author registered no names.
type Field struct {
	Name string
	Type *TypeDef
}

// Basic returns the definition of a fixed-size scalar.
func Basic(id types.TypeID) *TypeDef {
	return &TypeDef{ID: id}
}

// StringDef returns the definition of a length-prefixed UTF-8 string.
func StringDef() *TypeDef {
	return &TypeDef{ID: types.TypeString}
}

// BytesDef returns the definition of a length-prefixed byte string.
func BytesDef() *TypeDef {
	return &TypeDef{ID: types.TypeBytes}
}

// ArrayOf returns the definition of a fixed-length homogeneous array.
func ArrayOf(elem *TypeDef, n int) *TypeDef {
	return &TypeDef{ID: types.TypeArray, Elem: elem, Len: n}
}

// ListOf returns the definition of a variable-length homogeneous list.
func ListOf(elem *TypeDef, c Container) *TypeDef {
	return &TypeDef{ID: types.TypeList, Elem: elem, Container: c}
}

// ObjectOf returns the definition of an aggregate.
func ObjectOf(fields ...Field) *TypeDef {
	return &TypeDef{ID: types.TypeObject, Fields: fields}
}

// VariantOf returns the definition of a tagged union.
func VariantOf(alternatives ...Field) *TypeDef {
	return &TypeDef{ID: types.TypeVariant, Fields: alternatives}
}

// ResourceOf returns the definition of a resource table.
func ResourceOf(header, body *TypeDef) *TypeDef {
	return &TypeDef{ID: types.TypeResource, Header: header, Body: body}
}

// WithConstraints returns a copy of t carrying c.
func (t *TypeDef) WithConstraints(c Constraints) *TypeDef {
	cp := *t
	cp.Constraints = c
	return &cp
}

// FixedSize returns the wire size of t when it does not depend on the value.
func (t *TypeDef) FixedSize() (int, bool) {
	switch {
	case t.ID.IsBasic():
		return t.ID.Size(), true
	case t.ID == types.TypeArray:
		n, ok := t.Elem.FixedSize()
		return n * t.Len, ok
	case t.ID == types.TypeObject:
		total := 0
		for _, f := range t.Fields {
			n, ok := f.Type.FixedSize()
			if !ok {
				return 0, false
			}
			total += n
		}
		return total, true
	}
	return 0, false
}

// FieldIndex returns the index of the field or alternative called name, or
// len(Fields) when absent.
func (t *TypeDef) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return len(t.Fields)
}

// String renders a compact human-readable form, e.g. "object{x:int32,y:int32}".
func (t *TypeDef) String() string {
	var sb strings.Builder
	t.format(&sb)
	return sb.String()
}

func (t *TypeDef) format(sb *strings.Builder) {
	switch t.ID {
	case types.TypeArray:
		t.Elem.format(sb)
		fmt.Fprintf(sb, "[%d]", t.Len)
	case types.TypeList:
		sb.WriteString("list<")
		t.Elem.format(sb)
		sb.WriteString(">")
	case types.TypeObject, types.TypeVariant:
		sb.WriteString(t.ID.String())
		sb.WriteString("{")
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(",")
			}
			if f.Name != "" {
				sb.WriteString(f.Name)
				sb.WriteString(":")
			}
			f.Type.format(sb)
		}
		sb.WriteString("}")
	case types.TypeResource:
		sb.WriteString("resource<")
		t.Header.format(sb)
		sb.WriteString(",")
		t.Body.format(sb)
		sb.WriteString(">")
	default:
		sb.WriteString(t.ID.String())
	}
}
