// Package system drives persistence and change propagation for a registry.
//
// Every effective change marks the property changed and, when persistent,
// dirty with a timestamp. Loop saves dirty properties whose last change is
// older than the debounce window and hands the changed set to flush
// listeners. Saves happen only in Loop, Flush, FlushAll and SaveToStorage,
// never inside a mutator.
//
// Property values are not safe for concurrent use. Code outside the loop
// goroutine touches them only through Exec.
package system

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/microproto/internal/core/metrics"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/types"
)

const (
	DefaultDebounce     = time.Second
	DefaultLoopInterval = 10 * time.Millisecond

	shutdownFlushTimeout = 5 * time.Second
)

// FlushListener receives the properties changed since the previous call, in
// id order. It runs on the loop goroutine and must not call Exec.
type FlushListener func(changed []property.Property)

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger (default: disabled).
func WithLogger(l zerolog.Logger) Option { return func(s *System) { s.log = l } }

// WithMetrics records saves, loads and dirty counts.
func WithMetrics(m *metrics.Metrics) Option { return func(s *System) { s.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *System) { s.now = now } }

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option { return func(s *System) { s.debounce = d } }

// WithLoopInterval sets how often Run calls Loop.
func WithLoopInterval(d time.Duration) Option { return func(s *System) { s.interval = d } }

// System owns a registry's persistence and change fan-out.
type System struct {
	reg      *property.Registry
	store    *Storage
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	debounce time.Duration
	interval time.Duration

	mu        sync.Mutex
	loading   bool
	dirty     map[types.PropertyID]time.Time
	changed   map[types.PropertyID]struct{}
	listeners []FlushListener
}

// New returns a system for reg persisting into store. It installs itself as
// the registry's observer.
func New(reg *property.Registry, store *Storage, opts ...Option) *System {
	s := &System{
		reg:      reg,
		store:    store,
		log:      zerolog.Nop(),
		now:      time.Now,
		debounce: DefaultDebounce,
		interval: DefaultLoopInterval,
		dirty:    make(map[types.PropertyID]time.Time),
		changed:  make(map[types.PropertyID]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	reg.SetObserver(s)
	return s
}

// Registry returns the registry the system drives.
func (s *System) Registry() *property.Registry { return s.reg }

// Count returns the number of registered properties.
func (s *System) Count() int { return s.reg.Len() }

// AddFlushListener registers fn for change batches.
func (s *System) AddFlushListener(fn FlushListener) {
	s.listeners = append(s.listeners, fn)
}

// PropertyChanged implements property.Observer.
func (s *System) PropertyChanged(p property.Property) {
	if s.loading {
		return
	}
	s.metrics.Changed()
	s.changed[p.ID()] = struct{}{}
	if p.Flags().Has(property.FlagPersistent) {
		s.dirty[p.ID()] = s.now()
	}
}

// IsDirty reports whether p changed since its last successful save.
func (s *System) IsDirty(id types.PropertyID) bool {
	_, ok := s.dirty[id]
	return ok
}

// Init restores every persistent property from storage. Missing or corrupt
// values leave the default in place and are only logged.
func (s *System) Init(ctx context.Context) {
	n := s.LoadFromStorage(ctx)
	s.log.Info().Int("properties", s.Count()).Int("restored", n).Msg("property system initialized")
}

// LoadFromStorage loads every persistent property and returns how many were
// restored. Loads do not mark properties dirty or changed.
func (s *System) LoadFromStorage(ctx context.Context) int {
	s.loading = true
	defer func() { s.loading = false }()

	restored := 0
	for _, p := range s.persistent() {
		err := s.store.Load(ctx, p)
		switch {
		case err == nil:
			restored++
			s.metrics.Loaded("ok")
		case errors.Is(err, types.ErrNotFound):
			s.metrics.Loaded("missing")
		default:
			s.metrics.Loaded("error")
			s.log.Warn().Err(err).Str("property", p.Name()).Msg("stored value ignored")
		}
		delete(s.dirty, p.ID())
	}
	return restored
}

// Loop saves dirty properties idle for longer than the debounce window and
// notifies flush listeners of changes.
func (s *System) Loop(ctx context.Context) {
	now := s.now()
	for _, id := range s.dirtyIDs() {
		if now.Sub(s.dirty[id]) <= s.debounce {
			continue
		}
		if err := s.save(ctx, id); err != nil {
			// retry after another window
			s.dirty[id] = now
			s.log.Warn().Err(err).Uint16("id", uint16(id)).Msg("debounced save failed")
		}
	}
	s.metrics.SetDirty(len(s.dirty))
	s.notify()
}

// Flush saves one persistent property now, regardless of its age. Flushing a
// non-persistent property does nothing.
func (s *System) Flush(ctx context.Context, id types.PropertyID) error {
	p, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("flush %d: %w", id, types.ErrNotFound)
	}
	if !p.Flags().Has(property.FlagPersistent) {
		return nil
	}
	return s.save(ctx, id)
}

// FlushAll saves every dirty property now.
func (s *System) FlushAll(ctx context.Context) error {
	var errs []error
	for _, id := range s.dirtyIDs() {
		if err := s.save(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	s.metrics.SetDirty(len(s.dirty))
	return errors.Join(errs...)
}

// SaveToStorage saves every persistent property, dirty or not.
func (s *System) SaveToStorage(ctx context.Context) error {
	var errs []error
	for _, p := range s.persistent() {
		if err := s.save(ctx, p.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	s.metrics.SetDirty(len(s.dirty))
	return errors.Join(errs...)
}

// Erase removes the stored value of one property. The in-memory value is
// unchanged.
func (s *System) Erase(ctx context.Context, id types.PropertyID) error {
	p, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("erase %d: %w", id, types.ErrNotFound)
	}
	return s.store.Erase(ctx, p)
}

// EraseAll drops every stored value.
func (s *System) EraseAll(ctx context.Context) error {
	return s.store.EraseAll(ctx)
}

// Exec runs fn with exclusive access to property values.
func (s *System) Exec(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Run calls Loop every loop interval until ctx is done, then flushes what is
// still dirty.
func (s *System) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			defer cancel()
			s.mu.Lock()
			err := s.FlushAll(flushCtx)
			s.mu.Unlock()
			if err != nil {
				s.log.Error().Err(err).Msg("final flush failed")
			}
			return nil
		case <-ticker.C:
			_ = s.Exec(ctx, func() error {
				s.Loop(ctx)
				return nil
			})
		}
	}
}

func (s *System) save(ctx context.Context, id types.PropertyID) error {
	p, ok := s.reg.Get(id)
	if !ok {
		delete(s.dirty, id)
		return fmt.Errorf("save %d: %w", id, types.ErrNotFound)
	}
	err := s.store.Save(ctx, p)
	s.metrics.Saved(err == nil)
	if err != nil {
		return err
	}
	delete(s.dirty, id)
	s.log.Debug().Str("property", p.Name()).Msg("saved")
	return nil
}

func (s *System) notify() {
	if len(s.changed) == 0 {
		return
	}
	if len(s.listeners) == 0 {
		clear(s.changed)
		return
	}
	props := make([]property.Property, 0, len(s.changed))
	for _, id := range sortedIDs(s.changed) {
		if p, ok := s.reg.Get(id); ok {
			props = append(props, p)
		}
	}
	clear(s.changed)
	s.metrics.Flushed()
	for _, fn := range s.listeners {
		fn(props)
	}
}

func (s *System) persistent() []property.Property {
	var out []property.Property
	s.reg.Each(func(p property.Property) bool {
		if p.Flags().Has(property.FlagPersistent) {
			out = append(out, p)
		}
		return true
	})
	return out
}

func (s *System) dirtyIDs() []types.PropertyID {
	ids := make([]types.PropertyID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortedIDs(set map[types.PropertyID]struct{}) []types.PropertyID {
	ids := make([]types.PropertyID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
