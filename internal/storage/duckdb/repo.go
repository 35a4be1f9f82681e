package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// NewWarehouse opens a DuckDB database on a single pinned connection.
// Secrets and loaded extensions are connection-scoped in practice, and an
// in-memory database must not be split across connections.
func NewWarehouse(ctx context.Context, cfg Config) (*storage.SQLSession, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}

	s, err := storage.NewSQLSession(ctx, "duckdb", dialect.DuckDB{}, db)
	if err != nil {
		return nil, err
	}

	var stmts []string
	for _, set := range cfg.Settings {
		stmts = append(stmts, "SET "+set)
	}
	if cfg.HTTPFS {
		stmts = append(stmts, "INSTALL httpfs", "LOAD httpfs", secretSQL(cfg.S3, cfg.Region))
	}
	for _, stmt := range stmts {
		if _, err := s.Exec(ctx, stmt); err != nil {
			s.Close()
			return nil, fmt.Errorf("duckdb: setup: %w", err)
		}
	}
	return s, nil
}
