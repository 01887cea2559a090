package property

import (
	"bytes"
	"errors"
	"testing"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

func newStatus() *Variant {
	return NewVariant("status", 4, []Alternative{
		{Name: "value", Type: types.TypeUint8},
		{Name: "error", Type: types.TypeInt32},
	})
}

func TestVariantTag(t *testing.T) {
	tests := []struct {
		name string
		alt  string
		v    any
		want []byte
	}{
		{name: "value", alt: "value", v: 42, want: []byte{0x00, 0x2A}},
		{name: "error", alt: "error", v: -1, want: []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newStatus()
			if err := v.SetByName(tt.alt, tt.v); err != nil {
				t.Fatalf("SetByName() error = %v", err)
			}
			got, err := Marshal(v)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Marshal() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestVariantDecode(t *testing.T) {
	v := newStatus()
	if err := v.SetData([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	if v.TypeIndex() != 1 || !v.Is("error") {
		t.Errorf("TypeIndex() = %d, want 1", v.TypeIndex())
	}
	if got, ok := VariantGet[int32](v); !ok || got != -1 {
		t.Errorf("VariantGet[int32]() = %d, %v, want -1, true", got, ok)
	}
	if _, ok := VariantGet[uint8](v); ok {
		t.Error("VariantGet[uint8]() matched the int32 alternative")
	}

	bad := []struct {
		name string
		data []byte
	}{
		{name: "unknown tag", data: []byte{0x02, 0x00}},
		{name: "short payload", data: []byte{0x01, 0xFF}},
		{name: "trailing", data: []byte{0x00, 0x01, 0x02}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.SetData(tt.data); err == nil {
				t.Errorf("SetData(% x) error = nil, want error", tt.data)
			}
		})
	}
}

func TestVariantFindType(t *testing.T) {
	v := newStatus()
	if v.FindType("error") != 1 {
		t.Errorf("FindType(error) = %d, want 1", v.FindType("error"))
	}
	if v.FindType("missing") != v.TypeCount() {
		t.Errorf("FindType(missing) = %d, want %d", v.FindType("missing"), v.TypeCount())
	}
	if err := v.SetByName("missing", 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("SetByName(missing) error = %v, want ErrNotFound", err)
	}
	if err := v.Set(0, 300); !errors.Is(err, types.ErrCoercionFailed) {
		t.Errorf("Set(0, 300) error = %v, want ErrCoercionFailed", err)
	}
}

func TestVariantCallback(t *testing.T) {
	v := newStatus()
	var events []codec.Variant
	v.OnChange(func(old, new codec.Variant) { events = append(events, new) })

	_ = v.Set(0, 0) // initial value
	_ = v.Set(1, 0)
	_ = v.SetGeneric(map[string]any{"type": "value", "value": 7.0})
	_ = v.SetGeneric(map[string]any{"value": 7.0})

	if len(events) != 2 {
		t.Fatalf("callbacks = %v, want 2", events)
	}
	if events[1].Name != "value" || events[1].Value != uint8(7) {
		t.Errorf("last event = %+v, want value 7", events[1])
	}

	got, err := codec.DecodeGeneric(wire.NewReadBuffer([]byte{0x00, 0x07}), v.TypeDef())
	if err != nil {
		t.Fatalf("DecodeGeneric() error = %v", err)
	}
	if got != v.Current() {
		t.Errorf("DecodeGeneric() = %+v, want %+v", got, v.Current())
	}
}

func TestVariantRejectsOversizedAlternative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewVariant() did not panic on a payload above the maximum")
		}
	}()
	NewVariant("v", 2, []Alternative{{Name: "big", Type: types.TypeInt64}})
}
