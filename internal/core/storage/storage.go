// Package storage implements the byte stores behind property persistence
// and resource bodies.
//
// Every backend scopes its keys by a namespace so that one database, Redis
// or Badger directory can hold several devices. KV backends satisfy
// system.KV; blob backends satisfy property.BlobStore. A missing key is
// reported as types.ErrNotFound.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/redis/go-redis/v9"

	"github.com/solatis/microproto/internal/core/db"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/system"
)

// DefaultNamespace is the namespace used when none is configured.
const DefaultNamespace = "microproto"

// Backend bundles a KV and a blob store opened from one URL. Queries is
// set for SQL URLs only.
type Backend struct {
	KV      system.KV
	Blobs   property.BlobStore
	Queries *db.Queries
	io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open connects to a storage URL:
//
//	memory://
//	sqlite://path/to/file.db, postgres://...
//	redis://host:6379/0
//	badger:///var/lib/microproto
//
// SQL URLs require migrated schemas (see db.MigrateUp).
func Open(ctx context.Context, rawURL, namespace string) (*Backend, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return &Backend{KV: NewMemoryKV(), Blobs: NewMemoryBlobs(), Closer: closerFunc(func() error { return nil })}, nil

	case "sqlite", "postgres", "postgresql":
		conn, err := db.Open(rawURL)
		if err != nil {
			return nil, err
		}
		q, err := db.LoadQueries(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &Backend{KV: NewSQLStore(q, namespace), Blobs: NewSQLBlobStore(q, namespace), Queries: q, Closer: conn}, nil

	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &Backend{KV: NewRedisStore(client, namespace), Blobs: NewRedisBlobStore(client, namespace), Closer: client}, nil

	case "badger":
		dir := u.Host + u.Path
		opts := badger.DefaultOptions(dir).WithLogger(nil)
		if dir == "" || strings.EqualFold(dir, "memory") {
			opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
		}
		bdb, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		return &Backend{KV: NewBadgerStore(bdb, namespace), Blobs: NewBadgerBlobStore(bdb, namespace), Closer: bdb}, nil
	}
	return nil, fmt.Errorf("unsupported storage scheme: %q", u.Scheme)
}
