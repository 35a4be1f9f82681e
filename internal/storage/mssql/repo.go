package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// NewWarehouse opens SQL Server and pins a single connection.
func NewWarehouse(ctx context.Context, cfg Config) (*storage.SQLSession, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: DSN must not be empty")
	}
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql: parse DSN: %w", err)
	}

	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}

	s, err := storage.NewSQLSession(ctx, "mssql", dialect.MSSQL{}, db)
	if err != nil {
		return nil, err
	}
	s.SetBulkCopy(bulkCopy(cfg.Bulk))
	return s, nil
}

// bulkCopy returns a CopyFrom path that feeds rows to mssql.CopyIn on the
// caller's transaction and flushes with a final argument-less Exec.
func bulkCopy(opts mssql.BulkOptions) storage.BulkCopyFunc {
	return func(ctx context.Context, r storage.SQLRunner, table string, columns []string, rows [][]any) (int64, error) {
		stmt, err := r.PrepareContext(ctx, mssql.CopyIn(dialect.MSSQLIdent(table), opts, columns...))
		if err != nil {
			return 0, fmt.Errorf("prepare bulk: %w", err)
		}
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("bulk row %d: %w", i, err)
			}
		}
		res, err := stmt.ExecContext(ctx)
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return 0, fmt.Errorf("bulk finalize: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		return n, nil
	}
}
