package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/microproto/internal/core/db"
	"github.com/solatis/microproto/internal/types"
)

// SQLStore keeps property values in the properties table.
type SQLStore struct {
	q         *db.Queries
	namespace string
}

func NewSQLStore(q *db.Queries, namespace string) *SQLStore {
	return &SQLStore{q: q, namespace: namespace}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.q.GetContext(ctx, "get-property", &value, s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.q.ExecContext(ctx, "upsert-property", s.namespace, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, "delete-property", s.namespace, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, "delete-namespace", s.namespace); err != nil {
		return fmt.Errorf("clear %s: %w", s.namespace, err)
	}
	return nil
}

// StoredValue is one row of a namespace listing.
type StoredValue struct {
	Name      string    `db:"name"`
	Value     []byte    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// List returns every stored value of the namespace ordered by name.
func (s *SQLStore) List(ctx context.Context) ([]StoredValue, error) {
	var rows []StoredValue
	if err := s.q.SelectContext(ctx, "list-properties", &rows, s.namespace); err != nil {
		return nil, fmt.Errorf("list %s: %w", s.namespace, err)
	}
	return rows, nil
}

// SQLBlobStore keeps resource bodies in the resource_bodies table.
type SQLBlobStore struct {
	q         *db.Queries
	namespace string
}

func NewSQLBlobStore(q *db.Queries, namespace string) *SQLBlobStore {
	return &SQLBlobStore{q: q, namespace: namespace}
}

func (s *SQLBlobStore) PutBody(ctx context.Context, key string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	if _, err := s.q.ExecContext(ctx, "upsert-resource-body", s.namespace, key, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("put body %s: %w", key, err)
	}
	return nil
}

func (s *SQLBlobStore) GetBody(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.q.GetContext(ctx, "get-resource-body", &body, s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get body %s: %w", key, err)
	}
	return body, nil
}

func (s *SQLBlobStore) DeleteBody(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, "delete-resource-body", s.namespace, key); err != nil {
		return fmt.Errorf("delete body %s: %w", key, err)
	}
	return nil
}

// Clear drops every body of the namespace.
func (s *SQLBlobStore) Clear(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, "delete-resource-namespace", s.namespace); err != nil {
		return fmt.Errorf("clear bodies %s: %w", s.namespace, err)
	}
	return nil
}
