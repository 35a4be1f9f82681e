// Package storage defines the warehouse session contract shared by every
// backend and a registry that lets callers open a backend by kind without
// importing it. Backends register themselves from init; import
// dwh/internal/storage/all to link them all in.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dwh/internal/config"
	"dwh/internal/dialect"
)

// Rows is a fully materialized query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Execer issues statements on a session or inside a transaction.
type Execer interface {
	// Exec runs a statement and returns the number of affected rows when
	// the driver reports it.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Query runs a statement and materializes every row.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)
	// CopyFrom bulk inserts rows aligned with columns into table.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Warehouse is a single session against a warehouse. Statements are issued
// one at a time; implementations are not safe for concurrent use.
type Warehouse interface {
	Execer
	Kind() string
	Dialect() dialect.Dialect
	// InTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error
	Close() error
}

// Config carries everything a backend needs to open a session.
type Config struct {
	Kind    string
	DSN     string
	Options config.Options
	S3      config.S3
	Region  string
}

// Factory opens a Warehouse.
type Factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a factory for kind, replacing any previous one.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Warehouse of cfg.Kind.
func New(ctx context.Context, cfg Config) (Warehouse, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// QueryInt runs a query returning a single numeric value.
func QueryInt(ctx context.Context, e Execer, sql string, args ...any) (int64, error) {
	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if len(rows.Values) != 1 || len(rows.Values[0]) != 1 {
		return 0, fmt.Errorf("storage: expected a single value, got %d rows", len(rows.Values))
	}
	return AsInt64(rows.Values[0][0])
}

// AsInt64 normalizes the integer representations drivers return.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("storage: value %v (%T) is not an integer", v, v)
}
