// Package backend builds the Dao a configuration asks for: the storage
// variant, then the optional cache and metrics layers around it.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/shelf/internal/boltstore"
	"github.com/roach88/shelf/internal/cachestore"
	"github.com/roach88/shelf/internal/config"
	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/filestore"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/kvdao"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/metrics"
	"github.com/roach88/shelf/internal/schema"
	"github.com/roach88/shelf/internal/sqlstore"
)

// Options carries the runtime collaborators configuration cannot name.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Generator, when set, replaces the one named by cfg.IDStrategy.
	Generator ident.Generator

	// Collectors receive metrics when cfg.Metrics is set. When nil, a set
	// registered with Registerer (or a fresh registry) is created.
	Collectors *metrics.Collectors
	Registerer prometheus.Registerer
}

// Open builds the store for s. The caller closes it with Close.
func Open(ctx context.Context, cfg *config.Config, s *schema.Schema, opts Options) (dao.Dao, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	gen := opts.Generator
	if gen == nil {
		var err error
		if gen, err = cfg.Generator(); err != nil {
			return nil, err
		}
	}
	policy := cfg.Policy()

	var (
		d   dao.Dao
		err error
	)
	switch cfg.Backend {
	case "memory":
		d = memstore.New(s, memstore.Options{Generator: gen, Policy: policy, Logger: opts.Logger})
	case "file":
		d, err = filestore.Open(ctx, cfg.Path, s, kvdao.Options{Generator: gen, Policy: policy, Logger: opts.Logger})
	case "bolt":
		d, err = boltstore.Open(ctx, cfg.Path, s, boltstore.Options{
			Options: kvdao.Options{Generator: gen, Policy: policy, Logger: opts.Logger},
		})
	case "sqlite":
		d, err = sqlstore.Open(ctx, cfg.Path, s, sqlstore.Options{Generator: gen, Policy: policy, Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache {
		cached, err := cachestore.Open(ctx, d, cachestore.Options{Policy: policy, Logger: opts.Logger})
		if err != nil {
			Close(d)
			return nil, err
		}
		d = cached
	}

	if cfg.Metrics {
		c := opts.Collectors
		if c == nil {
			reg := opts.Registerer
			if reg == nil {
				reg = prometheus.NewRegistry()
			}
			c = metrics.NewCollectors(reg)
		}
		d = metrics.Wrap(d, c)
	}
	return d, nil
}

// Close releases d's resources, if it holds any.
func Close(d dao.Dao) error {
	if c, ok := d.(dao.Closer); ok {
		return c.Close()
	}
	return nil
}
