package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

type position struct {
	X int32
	Y int32
}

type rgb struct {
	R, G, B uint8
}

type fixture struct {
	On     bool
	Level  schema.Value[uint8]
	Temp   int16
	Count  uint32
	Offset int64
	Gain   float32
	Ratio  float64
	Origin position
	Colors [2]rgb
}

type dynamic struct {
	Name   string
	Blob   []byte
	Points []position
}

func init() {
	schema.MustRegisterFieldNames[position]("x", "y")
	schema.MustRegisterFieldNames[rgb]("r", "g", "b")
	schema.MustRegisterFieldNames[fixture]("on", "level", "temp", "count", "offset", "gain", "ratio", "origin", "colors")
}

func mustDef[T any](t *testing.T) *schema.TypeDef {
	t.Helper()
	td, err := schema.For[T]()
	if err != nil {
		t.Fatalf("schema.For() error = %v", err)
	}
	return td
}

func TestEncodeObject(t *testing.T) {
	td := mustDef[position](t)
	got, err := Marshal(td, position{X: 100, Y: 200})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := []byte{0x64, 0x00, 0x00, 0x00, 0xC8, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("Marshal() = % x, want % x", got, want)
	}

	var back position
	if err := Unmarshal(want, td, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != (position{X: 100, Y: 200}) {
		t.Errorf("Unmarshal() = %+v, want {100 200}", back)
	}
}

func TestEncodeDynamic(t *testing.T) {
	td := mustDef[dynamic](t)
	in := dynamic{Name: "hi", Blob: []byte{0xAA}, Points: []position{{X: 1, Y: -1}}}
	got, err := Marshal(td, in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := []byte{
		0x02, 'h', 'i',
		0x01, 0xAA,
		0x01, 0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Marshal() = % x, want % x", got, want)
	}
	if Size(td, reflect.ValueOf(in)) != len(want) {
		t.Errorf("Size() = %d, want %d", Size(td, reflect.ValueOf(in)), len(want))
	}

	var back dynamic
	if err := Unmarshal(got, td, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(back, in) {
		t.Errorf("Unmarshal() = %+v, want %+v", back, in)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	td := mustDef[position](t)
	orig := position{X: 7, Y: 8}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "short", data: []byte{0x01, 0x00, 0x00}, wantErr: types.ErrBufferUnderflow},
		{name: "trailing", data: make([]byte, 9), wantErr: types.ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := orig
			if err := Unmarshal(tt.data, td, &p); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Unmarshal() error = %v, want %v", err, tt.wantErr)
			}
			if p != orig {
				t.Errorf("failed Unmarshal modified target: %+v", p)
			}
		})
	}

	// a list count larger than the input is rejected before allocating
	var d []int32
	if err := Unmarshal([]byte{0xFF, 0xFF, 0x03}, mustDef[[]int32](t), &d); !errors.Is(err, types.ErrBufferUnderflow) {
		t.Errorf("Unmarshal(huge list) error = %v, want ErrBufferUnderflow", err)
	}
}

func TestValidate(t *testing.T) {
	f := fixture{Level: schema.NewValue[uint8](10, schema.Between[uint8](0, 50))}
	td, err := schema.Describe(f)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if !Validate(td, reflect.ValueOf(f)) {
		t.Error("Validate() = false for value inside range")
	}
	f.Level.V = 51
	if Validate(td, reflect.ValueOf(f)) {
		t.Error("Validate() = true for value outside range")
	}
}

func genFixture() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(), gen.UInt8(), gen.Int16(), gen.UInt32(), gen.Int64(),
		gen.Float32(), gen.Float64(), gen.Int32(), gen.Int32(),
		gen.SliceOfN(6, gen.UInt8()),
	).Map(func(v []any) fixture {
		c := v[9].([]uint8)
		return fixture{
			On:     v[0].(bool),
			Level:  schema.NewValue[uint8](v[1].(uint8), schema.Range[uint8]{}),
			Temp:   v[2].(int16),
			Count:  v[3].(uint32),
			Offset: v[4].(int64),
			Gain:   v[5].(float32),
			Ratio:  v[6].(float64),
			Origin: position{X: v[7].(int32), Y: v[8].(int32)},
			Colors: [2]rgb{{c[0], c[1], c[2]}, {c[3], c[4], c[5]}},
		}
	})
}

// TestRoundTrip verifies decode(encode(v)) reproduces v byte-for-byte and
// consumes exactly the encoded length.
func TestRoundTrip(t *testing.T) {
	td := mustDef[fixture](t)
	size, _ := td.FixedSize()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("typed round trip", prop.ForAll(
		func(in fixture) bool {
			wb := wire.NewWriteBuffer(make([]byte, size))
			if !Encode(wb, td, reflect.ValueOf(in)) || wb.Position() != size {
				return false
			}
			var out fixture
			rb := wire.NewReadBuffer(wb.Bytes())
			if err := Decode(rb, td, reflect.ValueOf(&out).Elem()); err != nil {
				return false
			}
			again := wire.NewWriteBuffer(make([]byte, size))
			Encode(again, td, reflect.ValueOf(out))
			return rb.Position() == size && bytes.Equal(wb.Bytes(), again.Bytes())
		},
		genFixture(),
	))

	properties.TestingRun(t)
}

// TestGenericMatchesTyped verifies that the schema bytes alone let a generic
// decoder reproduce the typed decoder's view of a value.
func TestGenericMatchesTyped(t *testing.T) {
	td := mustDef[fixture](t)
	schemaBytes, err := schema.Marshal(td)
	if err != nil {
		t.Fatalf("schema.Marshal() error = %v", err)
	}
	peerDef, err := schema.DecodeTypeDef(wire.NewReadBuffer(schemaBytes))
	if err != nil {
		t.Fatalf("DecodeTypeDef() error = %v", err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("generic decode equals typed view", prop.ForAll(
		func(in fixture) bool {
			data, err := Marshal(td, in)
			if err != nil {
				return false
			}
			rb := wire.NewReadBuffer(data)
			generic, err := DecodeGeneric(rb, peerDef)
			if err != nil || rb.Remaining() != 0 {
				return false
			}
			var typed fixture
			if err := Unmarshal(data, td, &typed); err != nil {
				return false
			}
			if !reflect.DeepEqual(generic, ToGeneric(td, reflect.ValueOf(typed))) {
				return false
			}

			// and the generic value encodes back to the same bytes
			wb := wire.NewWriteBuffer(make([]byte, len(data)))
			return EncodeGeneric(wb, peerDef, generic) && bytes.Equal(wb.Bytes(), data)
		},
		genFixture(),
	))

	properties.TestingRun(t)
}

// TestBoundedEncode verifies encoding into a short buffer fails without
// touching memory past its capacity.
func TestBoundedEncode(t *testing.T) {
	td := mustDef[dynamic](t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("short buffers overflow cleanly", prop.ForAll(
		func(name string, blob []byte, capacity int) bool {
			in := dynamic{Name: name, Blob: blob, Points: []position{{1, 2}}}
			required := Size(td, reflect.ValueOf(in))
			mem := bytes.Repeat([]byte{0x5A}, capacity+16)
			wb := wire.NewWriteBuffer(mem[:capacity])
			ok := Encode(wb, td, reflect.ValueOf(in))
			if ok != (required <= capacity) {
				return false
			}
			if !ok && wb.Ok() {
				return false
			}
			for _, b := range mem[capacity:] {
				if b != 0x5A {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}

func TestDecodeGenericVariantAndResource(t *testing.T) {
	variant := schema.VariantOf(
		schema.Field{Name: "value", Type: schema.Basic(types.TypeUint8)},
		schema.Field{Name: "error", Type: schema.Basic(types.TypeInt32)},
	)
	got, err := DecodeGeneric(wire.NewReadBuffer([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}), variant)
	if err != nil {
		t.Fatalf("DecodeGeneric(variant) error = %v", err)
	}
	if want := (Variant{Index: 1, Name: "error", Value: int32(-1)}); !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeGeneric(variant) = %#v, want %#v", got, want)
	}
	if _, err := DecodeGeneric(wire.NewReadBuffer([]byte{0x02, 0x00}), variant); !errors.Is(err, types.ErrTypeMismatch) {
		t.Errorf("DecodeGeneric(bad tag) error = %v, want ErrTypeMismatch", err)
	}

	res := schema.ResourceOf(schema.ArrayOf(schema.Basic(types.TypeUint8), 2), schema.BytesDef())
	data := []byte{
		0x03, 0x00, 0x00, 0x00, // next id
		0x01,                   // count
		0x02, 0x00, 0x00, 0x00, // id
		0x05, 0x00, 0x00, 0x00, // version
		0x0A,       // body size
		'o', 'k', // header
	}
	got, err = DecodeGeneric(wire.NewReadBuffer(data), res)
	if err != nil {
		t.Fatalf("DecodeGeneric(resource) error = %v", err)
	}
	want := ResourceTable{NextID: 3, Entries: []ResourceEntry{{ID: 2, Version: 5, BodySize: 10, Header: []any{uint8('o'), uint8('k')}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeGeneric(resource) = %#v, want %#v", got, want)
	}
}
