package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dwh/internal/dialect"
)

// SQLRunner is the method set shared by *sql.Conn and *sql.Tx.
type SQLRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SQLSession is a Warehouse over database/sql pinned to one connection, so
// session state (pragmas, secrets, in-memory databases) survives between
// statements.
type SQLSession struct {
	kind string
	d    dialect.Dialect
	db   *sql.DB
	conn *sql.Conn
	inTx bool
	bulk BulkCopyFunc
}

// BulkCopyFunc inserts rows into table through an engine-specific path on r.
// Values have already been through the dialect's BindValue.
type BulkCopyFunc func(ctx context.Context, r SQLRunner, table string, columns []string, rows [][]any) (int64, error)

var _ Warehouse = (*SQLSession)(nil)

// NewSQLSession pins a connection from db. Closing the session closes db.
func NewSQLSession(ctx context.Context, kind string, d dialect.Dialect, db *sql.DB) (*SQLSession, error) {
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: acquire connection: %w", kind, err)
	}
	return &SQLSession{kind: kind, d: d, db: db, conn: conn}, nil
}

func (s *SQLSession) Kind() string             { return s.kind }
func (s *SQLSession) Dialect() dialect.Dialect { return s.d }

// SetBulkCopy routes CopyFrom through f instead of a prepared INSERT.
func (s *SQLSession) SetBulkCopy(f BulkCopyFunc) { s.bulk = f }

func (s *SQLSession) runner() sqlExec { return sqlExec{r: s.conn, d: s.d, kind: s.kind, bulk: s.bulk} }

func (s *SQLSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return s.runner().Exec(ctx, query, args...)
}

func (s *SQLSession) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return s.runner().Query(ctx, query, args...)
}

// CopyFrom outside a transaction wraps the batch in its own transaction.
func (s *SQLSession) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(ctx context.Context, tx Execer) error {
		var err error
		n, err = tx.CopyFrom(ctx, table, columns, rows)
		return err
	})
	return n, err
}

func (s *SQLSession) InTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) (err error) {
	if s.inTx {
		return fmt.Errorf("%s: nested transactions are not supported", s.kind)
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.kind, err)
	}
	s.inTx = true
	defer func() {
		s.inTx = false
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("%s: rollback: %w", s.kind, rbErr))
			}
		}
	}()

	if err = fn(ctx, sqlExec{r: tx, d: s.d, kind: s.kind, bulk: s.bulk}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.kind, err)
	}
	return nil
}

func (s *SQLSession) Close() error {
	err := s.conn.Close()
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// sqlExec implements Execer over a connection or transaction.
type sqlExec struct {
	r    SQLRunner
	d    dialect.Dialect
	kind string
	bulk BulkCopyFunc
}

func (e sqlExec) bind(args []any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = e.d.BindValue(a)
	}
	return out
}

func (e sqlExec) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.r.ExecContext(ctx, query, e.bind(args)...)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", e.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (e sqlExec) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rs, err := e.r.QueryContext(ctx, query, e.bind(args)...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", e.kind, err)
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: columns: %w", e.kind, err)
	}
	out := &Rows{Columns: cols}
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", e.kind, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", e.kind, err)
	}
	return out, nil
}

// CopyFrom inserts rows with the session's bulk path, or a prepared
// single-row INSERT when none is set. The caller owns the surrounding
// transaction.
func (e sqlExec) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: CopyFrom: columns must not be empty", e.kind)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if e.bulk != nil {
		bound := make([][]any, len(rows))
		for i, row := range rows {
			if len(row) != len(columns) {
				return 0, fmt.Errorf("%s: CopyFrom: row length %d != columns length %d", e.kind, len(row), len(columns))
			}
			bound[i] = e.bind(row)
		}
		n, err := e.bulk(ctx, e.r, table, columns, bound)
		if err != nil {
			return n, fmt.Errorf("%s: bulk copy into %s: %w", e.kind, table, err)
		}
		return n, nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = e.d.QuoteIdent(c)
		marks[i] = e.d.Placeholder(i + 1)
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.d.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	stmt, err := e.r.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, fmt.Errorf("%s: prepare insert: %w", e.kind, err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			return inserted, fmt.Errorf("%s: CopyFrom: row length %d != columns length %d", e.kind, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, e.bind(row)...); err != nil {
			return inserted, fmt.Errorf("%s: insert into %s: %w", e.kind, table, err)
		}
		inserted++
	}
	return inserted, nil
}
