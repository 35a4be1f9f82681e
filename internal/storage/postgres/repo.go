// Package postgres implements the "postgres" and "redshift" warehouse kinds
// on a single pgx v5 connection. Redshift speaks the Postgres wire protocol;
// it differs in dialect, uses the simple query protocol and has no COPY FROM
// STDIN, so its loads go through server-side COPY instead.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// Config holds connection settings for one session.
type Config struct {
	Kind    string // "postgres" or "redshift"
	DSN     string // postgres:// URL or key/value DSN
	Dialect dialect.Dialect

	// SimpleProtocol disables prepared statements; Redshift needs it.
	SimpleProtocol bool
	// ClientCopy enables COPY FROM STDIN for CopyFrom.
	ClientCopy bool
}

// pgQuerier is the method set shared by *pgx.Conn and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Repository is a storage.Warehouse over one pgx connection.
type Repository struct {
	cfg  Config
	conn *pgx.Conn
	inTx bool
}

var _ storage.Warehouse = (*Repository)(nil)

// NewRepository connects and verifies the session with a ping.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", cfg.Kind)
	}
	pcfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: parse DSN: %w", cfg.Kind, err)
	}
	if cfg.SimpleProtocol {
		pcfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	conn, err := pgx.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, describe(cfg.Kind+": connect", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, describe(cfg.Kind+": ping", err)
	}
	return &Repository{cfg: cfg, conn: conn}, nil
}

func (r *Repository) Kind() string             { return r.cfg.Kind }
func (r *Repository) Dialect() dialect.Dialect { return r.cfg.Dialect }

func (r *Repository) exec() pgExec { return pgExec{q: r.conn, cfg: r.cfg} }

func (r *Repository) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return r.exec().Exec(ctx, sql, args...)
}

func (r *Repository) Query(ctx context.Context, sql string, args ...any) (*storage.Rows, error) {
	return r.exec().Query(ctx, sql, args...)
}

func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return r.exec().CopyFrom(ctx, table, columns, rows)
}

func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Execer) error) (err error) {
	if r.inTx {
		return fmt.Errorf("%s: nested transactions are not supported", r.cfg.Kind)
	}
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return describe(r.cfg.Kind+": begin", err)
	}
	r.inTx = true
	defer func() {
		r.inTx = false
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, describe(r.cfg.Kind+": rollback", rbErr))
			}
		}
	}()

	if err = fn(ctx, pgExec{q: tx, cfg: r.cfg}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return describe(r.cfg.Kind+": commit", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.conn.Close(context.Background())
}

// pgExec implements storage.Execer over a connection or transaction.
type pgExec struct {
	q   pgQuerier
	cfg Config
}

func (e pgExec) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, describe(e.cfg.Kind+": exec", err)
	}
	return tag.RowsAffected(), nil
}

func (e pgExec) Query(ctx context.Context, sql string, args ...any) (*storage.Rows, error) {
	rows, err := e.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, describe(e.cfg.Kind+": query", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	out := &storage.Rows{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		out.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, describe(e.cfg.Kind+": values", err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, describe(e.cfg.Kind+": rows", err)
	}
	return out, nil
}

// CopyFrom streams rows with COPY FROM STDIN.
func (e pgExec) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if !e.cfg.ClientCopy {
		return 0, fmt.Errorf("%s: client-side COPY is not supported; load with server-side COPY", e.cfg.Kind)
	}
	n, err := e.q.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, describe(fmt.Sprintf("%s: copy into %s", e.cfg.Kind, table), err)
	}
	return n, nil
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// describe wraps err with op and, for server errors, the detail line that
// pgconn keeps out of Error().
func describe(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s: %w (detail: %s)", op, err, pgErr.Detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}
