package property

import (
	"errors"
	"testing"

	"github.com/solatis/microproto/internal/types"
)

type recorder struct {
	names []string
}

func (r *recorder) PropertyChanged(p Property) { r.names = append(r.names, p.Name()) }

func TestRegistryAssignsIDsInOrder(t *testing.T) {
	reg := NewRegistry()
	a := New[uint8]("a", 1)
	b := New[bool]("b", false)
	c := New[string]("c", "x")
	reg.MustRegister(a, b, c)

	for i, p := range []Property{a, b, c} {
		if got := p.ID(); got != types.PropertyID(i) {
			t.Errorf("%s.ID() = %d, want %d", p.Name(), got, i)
		}
		if got, ok := reg.Get(types.PropertyID(i)); !ok || got != p {
			t.Errorf("Get(%d) = %v, %v, want %s", i, got, ok, p.Name())
		}
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}

	var seen []string
	reg.Each(func(p Property) bool {
		seen = append(seen, p.Name())
		return true
	})
	if len(seen) != 3 || seen[0] != "a" || seen[2] != "c" {
		t.Errorf("Each() visited %v, want [a b c]", seen)
	}
	if _, ok := reg.Get(3); ok {
		t.Error("Get(3) found a property in a registry of 3")
	}
}

func TestRegistryRejects(t *testing.T) {
	tests := []struct {
		name    string
		prop    func() Property
		wantErr error
	}{
		{name: "empty name", prop: func() Property { return New[uint8]("", 0) }, wantErr: types.ErrInvalidName},
		{name: "too long", prop: func() Property { return New[uint8]("abcdefghijklmnop", 0) }, wantErr: types.ErrInvalidName},
		{name: "dash", prop: func() Property { return New[uint8]("led-count", 0) }, wantErr: types.ErrInvalidName},
		{name: "non ascii", prop: func() Property { return New[uint8]("grün", 0) }, wantErr: types.ErrInvalidName},
		{name: "duplicate", prop: func() Property { return New[int32]("taken", 0) }, wantErr: types.ErrDuplicateProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.MustRegister(New[uint8]("taken", 0))
			err := reg.Register(tt.prop())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
			if reg.Len() != 1 {
				t.Errorf("Len() = %d, want 1", reg.Len())
			}
		})
	}
}

func TestRegistrySameNameOtherLevel(t *testing.T) {
	reg := NewRegistry()
	local := New[uint8]("mode", 0)
	shared := New[uint8]("mode", 0, WithLevel(types.LevelShared))
	if err := reg.Register(local, shared); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if p, _ := reg.Lookup("mode"); p != local {
		t.Error("Lookup() did not prefer the local property")
	}
	if p, _ := reg.LookupLevel(types.LevelShared, "mode"); p != shared {
		t.Error("LookupLevel(shared) did not return the shared property")
	}
}

func TestRegistryPersistentNameAcrossLevels(t *testing.T) {
	tests := []struct {
		name    string
		local   []Option
		shared  []Option
		wantErr bool
	}{
		{name: "both persistent", local: []Option{Persistent()}, shared: []Option{Persistent()}, wantErr: true},
		{name: "only local persistent", local: []Option{Persistent()}},
		{name: "only shared persistent", shared: []Option{Persistent()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			local := New[uint8]("mode", 0, tt.local...)
			shared := New[uint8]("mode", 0, append(tt.shared, WithLevel(types.LevelShared))...)
			err := reg.Register(local, shared)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, types.ErrDuplicateProperty) {
				t.Errorf("Register() error = %v, want ErrDuplicateProperty", err)
			}
			if tt.wantErr && reg.Len() != 1 {
				t.Errorf("Len() = %d, want 1", reg.Len())
			}
		})
	}
}

func TestRegistryTwice(t *testing.T) {
	p := New[uint8]("once", 0)
	NewRegistry().MustRegister(p)
	if err := NewRegistry().Register(p); !errors.Is(err, types.ErrDuplicateProperty) {
		t.Errorf("Register() error = %v, want ErrDuplicateProperty", err)
	}
}

func TestObserverBeforeCallback(t *testing.T) {
	reg := NewRegistry()
	obs := &recorder{}
	reg.SetObserver(obs)
	p := New[uint8]("level", 0)
	reg.MustRegister(p)

	var observedFirst bool
	p.OnChange(func(old, new uint8) { observedFirst = len(obs.names) == 1 })
	if err := p.Set(7); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !observedFirst {
		t.Error("callback ran before the observer was told")
	}
}
