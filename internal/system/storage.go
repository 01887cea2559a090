package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/types"
)

// KV is a namespaced byte store. Get returns an error wrapping
// types.ErrNotFound for a missing key; Delete of a missing key succeeds.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear drops every key of the namespace.
	Clear(ctx context.Context) error
}

// Storage persists property values in a KV. The key is the property name,
// which the registry keeps unique among persistent properties, and
// the value is the raw value encoding, without framing.
type Storage struct {
	kv KV
}

// NewStorage returns a property store over kv.
func NewStorage(kv KV) *Storage {
	return &Storage{kv: kv}
}

// Save writes the current value of p.
func (s *Storage) Save(ctx context.Context, p property.Property) error {
	data, err := property.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, p.Name(), data); err != nil {
		return fmt.Errorf("save %s: %w: %w", p.Name(), types.ErrIOFailure, err)
	}
	return nil
}

// Load restores p. A missing key returns an error wrapping ErrNotFound; bytes
// that do not decode completely leave p unchanged.
func (s *Storage) Load(ctx context.Context, p property.Property) error {
	data, err := s.kv.Get(ctx, p.Name())
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("load %s: %w", p.Name(), types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w: %w", p.Name(), types.ErrIOFailure, err)
	}
	return property.Unmarshal(p, data)
}

// Erase removes the stored value of p.
func (s *Storage) Erase(ctx context.Context, p property.Property) error {
	if err := s.kv.Delete(ctx, p.Name()); err != nil {
		return fmt.Errorf("erase %s: %w: %w", p.Name(), types.ErrIOFailure, err)
	}
	return nil
}

// EraseAll drops the namespace.
func (s *Storage) EraseAll(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("erase all: %w: %w", types.ErrIOFailure, err)
	}
	return nil
}
