package property

import (
	"fmt"
	"sync"

	"github.com/solatis/microproto/internal/types"
)

// Registry is the set of declared properties. Each module registers its
// properties explicitly from its setup function; ids follow registration
// order and are stable for a given program.
type Registry struct {
	mu       sync.RWMutex
	props    []Property
	byName   map[levelName]Property
	// persistent properties share one storage namespace keyed by name
	stored   map[string]Property
	observer Observer
}

type levelName struct {
	level types.Level
	name  string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[levelName]Property),
		stored: make(map[string]Property),
	}
}

// Register appends properties in order. It fails on an invalid name, a
// duplicate (level, name), a persistent name already persisted at another
// level, a property already owned by a registry or id exhaustion; properties
// before the failing one stay registered.
func (r *Registry) Register(props ...Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range props {
		b := p.base()
		if err := ValidateName(b.name); err != nil {
			return err
		}
		if b.registered {
			return fmt.Errorf("%w: %q is already registered", types.ErrDuplicateProperty, b.name)
		}
		key := levelName{b.level, b.name}
		if _, dup := r.byName[key]; dup {
			return fmt.Errorf("%w: %s/%s", types.ErrDuplicateProperty, b.level, b.name)
		}
		persistent := b.flags.Has(FlagPersistent)
		if other, taken := r.stored[b.name]; persistent && taken {
			return fmt.Errorf("%w: %s/%s shares a storage key with %s/%s",
				types.ErrDuplicateProperty, b.level, b.name, other.Level(), b.name)
		}
		if len(r.props) > types.MaxPropertyID {
			return fmt.Errorf("%w: registry holds %d properties", types.ErrCapacityExceeded, len(r.props))
		}

		b.id = types.PropertyID(len(r.props))
		b.registered = true
		b.observer = r
		r.props = append(r.props, p)
		r.byName[key] = p
		if persistent {
			r.stored[b.name] = p
		}
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(props ...Property) {
	if err := r.Register(props...); err != nil {
		panic(err)
	}
}

// SetObserver installs the observer told about every effective change.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// PropertyChanged implements Observer by forwarding to the installed observer.
func (r *Registry) PropertyChanged(p Property) {
	r.mu.RLock()
	o := r.observer
	r.mu.RUnlock()
	if o != nil {
		o.PropertyChanged(p)
	}
}

// Get returns the property with the given wire id.
func (r *Registry) Get(id types.PropertyID) (Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.props) {
		return nil, false
	}
	return r.props[id], true
}

// Lookup finds a property by name at LevelLocal, falling back to other levels.
func (r *Registry) Lookup(name string) (Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range []types.Level{types.LevelLocal, types.LevelShared, types.LevelRemote} {
		if p, ok := r.byName[levelName{l, name}]; ok {
			return p, true
		}
	}
	return nil, false
}

// LookupLevel finds a property by (level, name).
func (r *Registry) LookupLevel(level types.Level, name string) (Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[levelName{level, name}]
	return p, ok
}

// All returns a snapshot of every property in registration order.
func (r *Registry) All() []Property {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Property(nil), r.props...)
}

// Each visits properties in registration order until fn returns false.
func (r *Registry) Each(fn func(Property) bool) {
	for _, p := range r.All() {
		if !fn(p) {
			return
		}
	}
}

// Len returns the number of registered properties.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.props)
}

// ValidateName checks that name is a 1..MaxNameLength byte identifier of
// ASCII letters, digits and underscores. Names double as storage keys.
func ValidateName(name string) error {
	if name == "" || len(name) > types.MaxNameLength {
		return fmt.Errorf("%w: %q must be 1-%d bytes", types.ErrInvalidName, name, types.MaxNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", types.ErrInvalidName, name, c)
		}
	}
	return nil
}
