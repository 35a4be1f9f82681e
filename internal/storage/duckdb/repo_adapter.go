package duckdb

import (
	"context"

	"dwh/internal/storage"
)

// newWarehouse is a test hook that points to NewWarehouse by default.
var newWarehouse = func(ctx context.Context, cfg Config) (storage.Warehouse, error) {
	return NewWarehouse(ctx, cfg)
}

func init() {
	storage.Register("duckdb", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		return newWarehouse(ctx, configFrom(cfg))
	})
}
