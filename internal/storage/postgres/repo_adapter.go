package postgres

import (
	"context"

	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace it to avoid real connections.
var newRepository = func(ctx context.Context, cfg Config) (storage.Warehouse, error) {
	return NewRepository(ctx, cfg)
}

// configFor translates a storage.Config into a session Config for kind.
func configFor(kind string, cfg storage.Config) Config {
	switch kind {
	case "redshift":
		return Config{
			Kind:           kind,
			DSN:            cfg.DSN,
			Dialect:        dialect.Redshift{},
			SimpleProtocol: cfg.Options.Bool("simple_protocol", true),
		}
	default:
		return Config{
			Kind:           kind,
			DSN:            cfg.DSN,
			Dialect:        dialect.Postgres{},
			SimpleProtocol: cfg.Options.Bool("simple_protocol", false),
			ClientCopy:     true,
		}
	}
}

func init() {
	for _, kind := range []string{"postgres", "redshift"} {
		kind := kind
		storage.Register(kind, func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
			return newRepository(ctx, configFor(kind, cfg))
		})
	}
}
