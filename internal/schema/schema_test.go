package schema

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

type namedPoint struct {
	X int32
	Y int32
}

type unnamedPoint struct {
	X int32
	Y int32
}

type taggedColor struct {
	R uint8 `mp:"r"`
	G uint8 `mp:"g"`
	B uint8 `mp:"b"`
}

type nested struct {
	Field1 uint8
	Field2 taggedColor
}

type level struct {
	Value Value[uint8]
}

type withString struct {
	Name string
}

type withSlice struct {
	Items []uint8
}

type withPointer struct {
	P *int32
}

type withHidden struct {
	A int32
	b int32
}

func init() {
	MustRegisterFieldNames[namedPoint]("x", "y")
}

func encode(t *testing.T, td *TypeDef) []byte {
	t.Helper()
	out, err := Marshal(td)
	if err != nil {
		t.Fatalf("Marshal(%s) error = %v", td, err)
	}
	return out
}

func TestEncodeTypeDef(t *testing.T) {
	tests := []struct {
		name string
		td   func() (*TypeDef, error)
		want []byte
	}{
		{
			name: "named object",
			td:   For[namedPoint],
			want: []byte{0x22, 0x02, 0x01, 'x', 0x04, 0x00, 0x01, 'y', 0x04, 0x00},
		},
		{
			name: "unnamed object",
			td:   For[unnamedPoint],
			want: []byte{0x22, 0x02, 0x00, 0x04, 0x00, 0x00, 0x04, 0x00},
		},
		{
			name: "tag names",
			td:   For[taggedColor],
			want: []byte{0x22, 0x03, 0x01, 'r', 0x03, 0x00, 0x01, 'g', 0x03, 0x00, 0x01, 'b', 0x03, 0x00},
		},
		{
			name: "nested object has no trailing constraints byte",
			td:   For[nested],
			want: []byte{
				0x22, 0x02,
				0x00, 0x03, 0x00,
				0x00, 0x22, 0x03, 0x01, 'r', 0x03, 0x00, 0x01, 'g', 0x03, 0x00, 0x01, 'b', 0x03, 0x00,
			},
		},
		{
			name: "array",
			td:   For[[3]uint8],
			want: []byte{0x20, 0x03, 0x03, 0x00},
		},
		{
			name: "list",
			td:   For[[]int32],
			want: []byte{0x21, 0x00, 0x04, 0x00},
		},
		{
			name: "bytes",
			td:   For[[]byte],
			want: []byte{0x11, 0x00},
		},
		{
			name: "string",
			td:   For[string],
			want: []byte{0x10, 0x00},
		},
		{
			name: "constrained value",
			td: func() (*TypeDef, error) {
				return Describe(NewValue[uint8](50, Between[uint8](0, 100)))
			},
			want: []byte{0x03, 0x03, 0x00, 0x64},
		},
		{
			name: "constrained field inside object",
			td: func() (*TypeDef, error) {
				return Describe(level{Value: NewValue[uint8](1, AtMost[uint8](9).WithStep(3))})
			},
			want: []byte{0x22, 0x01, 0x00, 0x03, 0x06, 0x09, 0x03},
		},
		{
			name: "one of",
			td: func() (*TypeDef, error) {
				return Basic(types.TypeInt16).WithConstraints(OneOf[int16](1, -1)), nil
			},
			want: []byte{0x06, 0x08, 0x02, 0x01, 0x00, 0xFF, 0xFF},
		},
		{
			name: "variant",
			td: func() (*TypeDef, error) {
				return VariantOf(
					Field{Name: "value", Type: Basic(types.TypeUint8)},
					Field{Name: "error", Type: Basic(types.TypeInt32)},
				), nil
			},
			want: []byte{0x23, 0x02, 0x05, 'v', 'a', 'l', 'u', 'e', 0x03, 0x00, 0x05, 'e', 'r', 'r', 'o', 'r', 0x04, 0x00},
		},
		{
			name: "resource",
			td: func() (*TypeDef, error) {
				return ResourceOf(ArrayOf(Basic(types.TypeUint8), 16), BytesDef()), nil
			},
			want: []byte{0x24, 0x20, 0x10, 0x03, 0x00, 0x11, 0x00},
		},
		{
			name: "list with container constraints",
			td: func() (*TypeDef, error) {
				return ListOf(Basic(types.TypeUint8), LengthBetween(1, 300).UniqueElements()), nil
			},
			want: []byte{0x21, 0x07, 0x01, 0xAC, 0x02, 0x03, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td, err := tt.td()
			if err != nil {
				t.Fatalf("type definition error = %v", err)
			}
			got := encode(t, td)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("EncodeTypeDef() = % x, want % x", got, tt.want)
			}

			// decoding and re-encoding must reproduce the bytes
			rb := wire.NewReadBuffer(got)
			back, err := DecodeTypeDef(rb)
			if err != nil {
				t.Fatalf("DecodeTypeDef() error = %v", err)
			}
			if rb.Remaining() != 0 {
				t.Errorf("DecodeTypeDef() left %d bytes", rb.Remaining())
			}
			if again := encode(t, back); !bytes.Equal(again, got) {
				t.Errorf("re-encoded = % x, want % x", again, got)
			}
		})
	}
}

func TestDecodeTypeDefErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "unknown id", data: []byte{0x7E}},
		{name: "missing constraints byte", data: []byte{0x04}},
		{name: "truncated bound", data: []byte{0x04, 0x01, 0x00}},
		{name: "object count too large", data: []byte{0x22, 0x7F, 0x00}},
		{name: "array missing elem", data: []byte{0x20, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := wire.NewReadBuffer(tt.data)
			if _, err := DecodeTypeDef(rb); err == nil {
				t.Fatal("DecodeTypeDef() error = nil, want error")
			}
			if rb.Position() != 0 {
				t.Errorf("Position() = %d after failure, want 0", rb.Position())
			}
		})
	}
}

func TestIsWireSafe(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want bool
	}{
		{name: "uint8", typ: reflect.TypeFor[uint8](), want: true},
		{name: "float64", typ: reflect.TypeFor[float64](), want: true},
		{name: "bool", typ: reflect.TypeFor[bool](), want: true},
		{name: "int is platform sized", typ: reflect.TypeFor[int](), want: false},
		{name: "array of uint8", typ: reflect.TypeFor[[4]uint8](), want: true},
		{name: "array of structs", typ: reflect.TypeFor[[2]namedPoint](), want: true},
		{name: "struct", typ: reflect.TypeFor[namedPoint](), want: true},
		{name: "nested struct", typ: reflect.TypeFor[nested](), want: true},
		{name: "value wrapper field", typ: reflect.TypeFor[level](), want: true},
		{name: "string", typ: reflect.TypeFor[string](), want: false},
		{name: "struct with string", typ: reflect.TypeFor[withString](), want: false},
		{name: "struct with slice", typ: reflect.TypeFor[withSlice](), want: false},
		{name: "struct with pointer", typ: reflect.TypeFor[withPointer](), want: false},
		{name: "struct with unexported field", typ: reflect.TypeFor[withHidden](), want: false},
		{name: "map", typ: reflect.TypeFor[map[string]int32](), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWireSafe(tt.typ); got != tt.want {
				t.Errorf("IsWireSafe(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestRegisterFieldNames(t *testing.T) {
	type pair struct{ A, B uint16 }

	if err := RegisterFieldNames[pair]("a"); !errors.Is(err, types.ErrInvariant) {
		t.Errorf("RegisterFieldNames() with too few names error = %v, want ErrInvariant", err)
	}
	if err := RegisterFieldNames[int32]("a"); !errors.Is(err, types.ErrUnsupportedType) {
		t.Errorf("RegisterFieldNames[int32]() error = %v, want ErrUnsupportedType", err)
	}

	before, err := For[pair]()
	if err != nil {
		t.Fatalf("For() error = %v", err)
	}
	if before.Fields[0].Name != "" {
		t.Fatalf("unregistered name = %q, want empty", before.Fields[0].Name)
	}

	if err := RegisterFieldNames[pair]("first", "second"); err != nil {
		t.Fatalf("RegisterFieldNames() error = %v", err)
	}
	after, err := For[pair]()
	if err != nil {
		t.Fatalf("For() error = %v", err)
	}
	if after.Fields[0].Name != "first" || after.Fields[1].Name != "second" {
		t.Errorf("names = %q, %q, want first, second", after.Fields[0].Name, after.Fields[1].Name)
	}
}

func TestFieldPtr(t *testing.T) {
	p := namedPoint{X: 1, Y: 2}
	f, err := FieldPtr(&p, 1)
	if err != nil {
		t.Fatalf("FieldPtr() error = %v", err)
	}
	*f.(*int32) = 42
	if p.Y != 42 {
		t.Errorf("Y = %d after write through projection, want 42", p.Y)
	}
	if FieldCount[namedPoint]() != 2 {
		t.Errorf("FieldCount() = %d, want 2", FieldCount[namedPoint]())
	}
	if _, err := FieldPtr(&p, 2); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("FieldPtr(2) error = %v, want ErrNotFound", err)
	}
	if _, err := FieldPtr(p, 0); !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("FieldPtr(non-pointer) error = %v, want ErrTypeMismatch", err)
	}
}

func TestUnsupportedTypes(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeFor[int](),
		reflect.TypeFor[map[string]uint8](),
		reflect.TypeFor[*int32](),
		reflect.TypeFor[withHidden](),
	} {
		if _, err := Of(typ); !errors.Is(err, types.ErrUnsupportedType) {
			t.Errorf("Of(%s) error = %v, want ErrUnsupportedType", typ, err)
		}
	}
}

func TestFixedSize(t *testing.T) {
	tests := []struct {
		name   string
		td     func() (*TypeDef, error)
		want   int
		wantOK bool
	}{
		{name: "point", td: For[namedPoint], want: 8, wantOK: true},
		{name: "nested", td: For[nested], want: 4, wantOK: true},
		{name: "array", td: For[[4]uint16], want: 8, wantOK: true},
		{name: "list", td: For[[]uint8], wantOK: false},
		{name: "string", td: For[string], wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td, err := tt.td()
			if err != nil {
				t.Fatal(err)
			}
			got, ok := td.FixedSize()
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("FixedSize() = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
