package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// maxPlaceholders is the server's limit on bind markers per statement.
const maxPlaceholders = 65535

// NewWarehouse opens MySQL and pins a single connection.
func NewWarehouse(ctx context.Context, cfg Config) (*storage.SQLSession, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	dsn, err := driverDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	s, err := storage.NewSQLSession(ctx, "mysql", dialect.MySQL{}, db)
	if err != nil {
		return nil, err
	}
	s.SetBulkCopy(bulkInsert(cfg.RowsPerInsert))
	return s, nil
}

// bulkInsert returns a CopyFrom path issuing one multi-row INSERT per chunk.
func bulkInsert(rowsPerInsert int) storage.BulkCopyFunc {
	return func(ctx context.Context, r storage.SQLRunner, table string, columns []string, rows [][]any) (int64, error) {
		per := chunkRows(len(columns), rowsPerInsert)
		var total int64
		for start := 0; start < len(rows); start += per {
			end := min(start+per, len(rows))
			chunk := rows[start:end]
			args := make([]any, 0, len(chunk)*len(columns))
			for _, row := range chunk {
				args = append(args, row...)
			}
			res, err := r.ExecContext(ctx, insertSQL(table, columns, len(chunk)), args...)
			if err != nil {
				return total, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return total, fmt.Errorf("rows affected: %w", err)
			}
			total += n
		}
		return total, nil
	}
}

// chunkRows returns how many rows of width cols fit one statement.
func chunkRows(cols, limit int) int {
	per := max(1, maxPlaceholders/max(1, cols))
	if limit > 0 && limit < per {
		return limit
	}
	return per
}

// insertSQL renders an INSERT of n rows into table.
func insertSQL(table string, columns []string, n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := make([]string, n)
	for i := range values {
		values[i] = row
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		dialect.MySQLIdent(table), dialect.QuoteList(dialect.MySQL{}, columns), strings.Join(values, ", "))
}
