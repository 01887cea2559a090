package property

import (
	"bytes"
	"errors"
	"testing"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
)

func TestListPushBackSpill(t *testing.T) {
	l := NewList[[3]uint8]("palette", 4, 16)
	for i := 0; i < 16; i++ {
		if err := l.PushBack([3]uint8{uint8(i), 0, 0}); err != nil {
			t.Fatalf("PushBack(%d) error = %v", i, err)
		}
		if got, want := l.Spilled(), i >= 4; got != want {
			t.Errorf("Spilled() after %d pushes = %v, want %v", i+1, got, want)
		}
	}
	if err := l.PushBack([3]uint8{}); !errors.Is(err, types.ErrCapacityExceeded) {
		t.Errorf("PushBack() at max error = %v, want ErrCapacityExceeded", err)
	}
	if l.Len() != 16 || l.Cap() != 16 || l.InlineCap() != 4 {
		t.Errorf("Len, Cap, InlineCap = %d, %d, %d, want 16, 16, 4", l.Len(), l.Cap(), l.InlineCap())
	}
	if v, ok := l.At(10); !ok || v[0] != 10 {
		t.Errorf("At(10) = %v, %v, want [10 0 0]", v, ok)
	}
	if _, ok := l.At(16); ok {
		t.Error("At(16) reported an element past the end")
	}
}

func TestListEncode(t *testing.T) {
	l := NewList[uint8]("l", 2, 4)
	_ = l.SetValues([]uint8{1, 2})
	got, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := []byte{0x02, 0x01, 0x02}; !bytes.Equal(got, want) {
		t.Errorf("Marshal() = % x, want % x", got, want)
	}

	back := NewList[uint8]("m", 2, 4)
	if err := Unmarshal(back, got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if vals := back.Values(); len(vals) != 2 || vals[1] != 2 {
		t.Errorf("Values() = %v, want [1 2]", vals)
	}

	tooMany := append([]byte{0x05}, 1, 2, 3, 4, 5)
	if err := Unmarshal(back, tooMany); !errors.Is(err, types.ErrCapacityExceeded) {
		t.Errorf("Unmarshal(5 elements) error = %v, want ErrCapacityExceeded", err)
	}
	if back.Len() != 2 {
		t.Errorf("Len() = %d after rejected decode, want 2", back.Len())
	}
}

func TestListOperations(t *testing.T) {
	l := NewList[int16]("l", 2, 8)
	var changes int
	l.OnChange(func(old, new []int16) { changes++ })

	steps := []struct {
		name  string
		op    func() error
		want  []int16
		calls int
	}{
		{name: "push", op: func() error { return l.PushBack(5) }, want: []int16{5}, calls: 1},
		{name: "resize", op: func() error { return l.Resize(3) }, want: []int16{5, 0, 0}, calls: 2},
		{name: "set", op: func() error { return l.Set(2, -1) }, want: []int16{5, 0, -1}, calls: 3},
		{name: "same set", op: func() error { return l.Set(2, -1) }, want: []int16{5, 0, -1}, calls: 3},
		{name: "pop", op: func() error { _, err := l.Pop(); return err }, want: []int16{5, 0}, calls: 4},
		{name: "clear", op: l.Clear, want: []int16{}, calls: 5},
		{name: "clear again", op: l.Clear, want: []int16{}, calls: 5},
	}

	for _, s := range steps {
		if err := s.op(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		got := l.Values()
		if len(got) != len(s.want) {
			t.Fatalf("%s: Values() = %v, want %v", s.name, got, s.want)
		}
		for i := range got {
			if got[i] != s.want[i] {
				t.Fatalf("%s: Values() = %v, want %v", s.name, got, s.want)
			}
		}
		if changes != s.calls {
			t.Errorf("%s: callbacks = %d, want %d", s.name, changes, s.calls)
		}
	}

	if _, err := l.Pop(); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Pop() on empty error = %v, want ErrNotFound", err)
	}
	if err := l.Set(0, 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Set(0) on empty error = %v, want ErrNotFound", err)
	}
}

func TestListConstraints(t *testing.T) {
	l := NewList[uint8]("ids", 2, 8,
		WithConstraints(schema.AtMost[uint8](100)),
		WithContainer(schema.MaxLen(4).UniqueElements()))

	tests := []struct {
		name    string
		vals    []uint8
		wantErr error
	}{
		{name: "ok", vals: []uint8{1, 2, 3}},
		{name: "duplicate", vals: []uint8{1, 1}, wantErr: types.ErrValidation},
		{name: "element range", vals: []uint8{101}, wantErr: types.ErrValidation},
		{name: "length", vals: []uint8{1, 2, 3, 4, 5}, wantErr: types.ErrValidation},
		{name: "over max", vals: []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}, wantErr: types.ErrCapacityExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.SetValues(tt.vals)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SetValues(%v) error = %v, want %v", tt.vals, err, tt.wantErr)
			}
		})
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
}

func TestListSetGeneric(t *testing.T) {
	l := NewList[[3]uint8]("palette", 4, 16)
	in := []any{[]any{255.0, 0.0, 0.0}, []any{0.0, 0.0, 255.0}}
	if err := l.SetGeneric(in); err != nil {
		t.Fatalf("SetGeneric() error = %v", err)
	}
	if v, _ := l.At(1); v != [3]uint8{0, 0, 255} {
		t.Errorf("At(1) = %v, want [0 0 255]", v)
	}
}
