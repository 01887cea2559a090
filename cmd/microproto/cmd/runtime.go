package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/solatis/microproto/internal/core/config"
	"github.com/solatis/microproto/internal/core/db"
	"github.com/solatis/microproto/internal/core/storage"
	"github.com/solatis/microproto/internal/device"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/system"
)

// runtime is the device property set bound to its configured storage.
type runtime struct {
	backend *storage.Backend
	blobs   *storage.Backend
	props   *device.Props
	sys     *system.System
	ctrl    *device.Controller
}

func isSQL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "sqlite", "postgres", "postgresql":
		return true
	}
	return false
}

// openRuntime opens storage, registers the device properties and restores
// stored values. SQL stores must be fully migrated.
func openRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...system.Option) (*runtime, error) {
	rt := &runtime{}
	var err error
	if rt.backend, err = openStorage(ctx, cfg.Storage.URL, cfg.Storage.Namespace); err != nil {
		return nil, err
	}
	blobs := rt.backend.Blobs
	if cfg.Storage.BlobURL != "" {
		if rt.blobs, err = openStorage(ctx, cfg.Storage.BlobURL, cfg.Storage.Namespace); err != nil {
			rt.backend.Close()
			return nil, err
		}
		blobs = rt.blobs.Blobs
	}

	rt.props = device.NewProps(blobs)
	reg := property.NewRegistry()
	if err := rt.props.Register(reg); err != nil {
		rt.Close()
		return nil, fmt.Errorf("register properties: %w", err)
	}

	opts = append([]system.Option{
		system.WithLogger(log),
		system.WithDebounce(cfg.System.DebounceWindow),
		system.WithLoopInterval(cfg.System.LoopInterval),
	}, opts...)
	rt.sys = system.New(reg, system.NewStorage(rt.backend.KV), opts...)
	rt.ctrl = device.NewController(rt.sys, rt.props, log)
	rt.sys.Init(ctx)
	return rt, nil
}

func openStorage(ctx context.Context, rawURL, namespace string) (*storage.Backend, error) {
	b, err := storage.Open(ctx, rawURL, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if b.Queries != nil {
		if err := requireMigrated(ctx, b.Queries); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func requireMigrated(ctx context.Context, q *db.Queries) error {
	status, err := db.MigrateStatus(ctx, q.DB())
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, m := range status {
		if !m.Applied {
			return fmt.Errorf("migration %s not applied - run 'microproto migrate up' first", m.ID)
		}
	}
	return nil
}

// Close flushes dirty properties and closes storage.
func (rt *runtime) Close() error {
	var errs []error
	if rt.sys != nil {
		errs = append(errs, rt.sys.Exec(context.Background(), func() error {
			return rt.sys.FlushAll(context.Background())
		}))
	}
	if rt.blobs != nil {
		errs = append(errs, rt.blobs.Close())
	}
	errs = append(errs, rt.backend.Close())
	return errors.Join(errs...)
}
