// Package property implements typed, registered, observable value cells.
//
// Every property kind (Scalar[T], Array[A], Object[S], List[T], Variant,
// Resource) embeds Base and satisfies the Property interface, which is all
// the registry, the persistence layer and the transports need. Mutations are equality-gated
// on the wire encoding: a write that does not change the encoded bytes fires
// no callback and marks nothing dirty. An effective change first informs the
// registry's observer (which marks the property dirty) and then runs the
// property's single change callback, synchronously, before the mutator
// returns.
//
// Properties are not safe for concurrent use. The owning system serializes
// access.
package property

import (
	"reflect"

	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Property is the type-erased view of every property kind.
type Property interface {
	Name() string
	ID() types.PropertyID
	Level() types.Level
	Flags() Flags
	Group() uint8
	Description() string
	UI() UIHints

	// TypeID is the primitive type id; it never changes after construction.
	TypeID() types.TypeID
	// TypeDef is the full wire layout including constraints.
	TypeDef() *schema.TypeDef

	// Size is the wire size of the current value.
	Size() int
	// Encode writes the current value's wire form.
	Encode(wb *wire.WriteBuffer) bool
	// Decode replaces the value from its wire form. On error the value is
	// unchanged and the buffer position is restored.
	Decode(rb *wire.ReadBuffer) error
	// SetGeneric replaces the value from loosely typed input (JSON, text).
	SetGeneric(in any) error

	base() *Base
}

// Typed is implemented by properties backed by a single Go type.
type Typed interface {
	GoType() reflect.Type
}

// Observer is informed of every effective change, before the property's own
// callback runs.
type Observer interface {
	PropertyChanged(p Property)
}

// Flags are the boolean attributes of a property.
type Flags uint8

const (
	FlagPersistent Flags = 1 << iota
	FlagReadOnly
	FlagHidden
	FlagBLEExposed
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// settings collects construction options.
type settings struct {
	level       types.Level
	flags       Flags
	group       uint8
	description string
	ui          UIHints
	constraints schema.Constraints
	container   schema.Container
	header      *schema.TypeDef
	body        *schema.TypeDef
}

// Option configures a property at construction.
type Option func(*settings)

// Persistent stores the property and restores it at startup.
func Persistent() Option { return func(s *settings) { s.flags |= FlagPersistent } }

// ReadOnly rejects writes arriving from remote peers.
func ReadOnly() Option { return func(s *settings) { s.flags |= FlagReadOnly } }

// Hidden keeps the property out of schema sync and listings.
func Hidden() Option { return func(s *settings) { s.flags |= FlagHidden } }

// BLEExposed marks the property for the BLE bridge.
func BLEExposed() Option { return func(s *settings) { s.flags |= FlagBLEExposed } }

// WithLevel sets the scope hint (default LevelLocal).
func WithLevel(l types.Level) Option { return func(s *settings) { s.level = l } }

// WithGroup assigns a UI group id.
func WithGroup(g uint8) Option { return func(s *settings) { s.group = g } }

// WithDescription attaches a human-readable description.
func WithDescription(d string) Option { return func(s *settings) { s.description = d } }

// WithUIHints attaches presentation hints. It panics when the colour group
// exceeds MaxColorGroup or the unit or icon is longer than 255 bytes.
func WithUIHints(u UIHints) Option {
	if err := u.validate(); err != nil {
		panic(err)
	}
	return func(s *settings) { s.ui = u }
}

// WithConstraints attaches value constraints to a scalar property, to the
// elements of a list or to every alternative of a variant without its own.
func WithConstraints(c schema.Constraints) Option {
	return func(s *settings) { s.constraints = c }
}

// WithContainer attaches length constraints to a list or string property.
func WithContainer(c schema.Container) Option {
	return func(s *settings) { s.container = c }
}

// WithResourceTypes overrides the schema types of a resource's header and body.
func WithResourceTypes(header, body *schema.TypeDef) Option {
	return func(s *settings) { s.header, s.body = header, body }
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Base carries the descriptor shared by every property kind.
type Base struct {
	name        string
	id          types.PropertyID
	level       types.Level
	flags       Flags
	group       uint8
	description string
	ui          UIHints

	registered bool
	observer   Observer
}

func newBase(name string, s settings) Base {
	return Base{
		name:        name,
		level:       s.level,
		flags:       s.flags,
		group:       s.group,
		description: s.description,
		ui:          s.ui,
	}
}

func (b *Base) Name() string { return b.name }
func (b *Base) ID() types.PropertyID { return b.id }
func (b *Base) Level() types.Level { return b.level }
func (b *Base) Flags() Flags { return b.flags }
func (b *Base) Group() uint8 { return b.group }
func (b *Base) Description() string { return b.description }
func (b *Base) UI() UIHints { return b.ui }
func (b *Base) Persistent() bool { return b.flags.Has(FlagPersistent) }
func (b *Base) ReadOnly() bool { return b.flags.Has(FlagReadOnly) }
func (b *Base) Hidden() bool { return b.flags.Has(FlagHidden) }
func (b *Base) Registered() bool { return b.registered }
func (b *Base) base() *Base { return b }

// changed informs the observer; the caller runs its own callback afterwards.
func (b *Base) changed(self Property) {
	if b.observer != nil {
		b.observer.PropertyChanged(self)
	}
}
