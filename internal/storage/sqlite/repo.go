package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dwh/internal/dialect"
	"dwh/internal/storage"

	_ "modernc.org/sqlite"
)

// NewWarehouse opens a SQLite database and pins a single connection.
//
// A pinned connection matters for ":memory:" databases, which exist per
// connection, and for pragmas, which are connection state.
func NewWarehouse(ctx context.Context, cfg Config) (*storage.SQLSession, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	s, err := storage.NewSQLSession(ctx, "sqlite", dialect.SQLite{}, db)
	if err != nil {
		return nil, err
	}

	pragmas := append([]string{"foreign_keys = ON"}, cfg.Pragmas...)
	for _, p := range pragmas {
		stmt := "PRAGMA " + strings.TrimSuffix(p, ";")
		if _, err := s.Exec(ctx, stmt); err != nil {
			s.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", stmt, err)
		}
	}
	return s, nil
}
