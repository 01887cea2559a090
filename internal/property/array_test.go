package property

import (
	"bytes"
	"errors"
	"testing"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

func TestArrayEncode(t *testing.T) {
	a := NewArray("color", [3]uint8{255, 128, 0})
	got, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := []byte{0xFF, 0x80, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("Marshal() = % x, want % x", got, want)
	}
	if a.Size() != 3 || a.Len() != 3 {
		t.Errorf("Size(), Len() = %d, %d, want 3, 3", a.Size(), a.Len())
	}

	back := NewArray("color2", [3]uint8{})
	if err := Unmarshal(back, got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Get() != a.Get() {
		t.Errorf("Get() = %v, want %v", back.Get(), a.Get())
	}
	if err := Unmarshal(back, []byte{1, 2}); err == nil {
		t.Error("Unmarshal(short) succeeded")
	}
}

func TestArraySchema(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		want []byte
	}{
		{
			name: "unconstrained",
			prop: NewArray("pos", [2]int16{}),
			want: []byte{byte(types.TypeArray), 0x02, byte(types.TypeInt16), 0x00},
		},
		{
			name: "element range",
			prop: NewArray("rgb", [3]uint8{}, WithConstraints(schema.Between[uint8](0, 200))),
			want: []byte{byte(types.TypeArray), 0x03, byte(types.TypeUint8), schema.FlagMin | schema.FlagMax, 0x00, 0xC8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := wire.NewWriteBuffer(make([]byte, 32))
			if !schema.EncodeTypeDef(wb, tt.prop.TypeDef()) {
				t.Fatal("EncodeTypeDef() = false")
			}
			if !bytes.Equal(wb.Bytes(), tt.want) {
				t.Errorf("EncodeTypeDef() = % x, want % x", wb.Bytes(), tt.want)
			}
		})
	}
}

func TestArrayElementConstraints(t *testing.T) {
	a := NewArray("rgb", [3]uint8{10, 20, 30}, WithConstraints(schema.Between[uint8](0, 200)))
	var calls int
	a.OnChange(func(old, new [3]uint8) { calls++ })

	if err := a.Set([3]uint8{1, 201, 3}); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("Set(out of range) error = %v, want %v", err, types.ErrValidation)
	}
	if a.Get() != [3]uint8{10, 20, 30} {
		t.Errorf("Get() after rejected write = %v", a.Get())
	}

	if err := a.Update(func(v *[3]uint8) { v[1] = 99 }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got, _ := a.At(1); got != uint8(99) {
		t.Errorf("At(1) = %v, want 99", got)
	}
	if err := a.Set(a.Get()); err != nil {
		t.Fatalf("Set(same) error = %v", err)
	}
	if calls != 1 {
		t.Errorf("callbacks = %d, want 1", calls)
	}

	if err := a.SetGeneric([]any{float64(1), float64(2), float64(3)}); err != nil {
		t.Fatalf("SetGeneric() error = %v", err)
	}
	if err := a.SetGeneric([]any{float64(1)}); !errors.Is(err, types.ErrCoercionFailed) {
		t.Errorf("SetGeneric(short) error = %v, want %v", err, types.ErrCoercionFailed)
	}
	if _, ok := a.At(3); ok {
		t.Error("At(3) ok = true")
	}
}

func TestNewArrayRejectsNonArray(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewArray([]uint8) did not panic")
		}
	}()
	NewArray("bad", []uint8{1})
}
