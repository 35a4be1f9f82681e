// Package dedup removes rows that repeat a natural key.
//
// The warehouse does not enforce uniqueness on staging tables (Redshift never
// does), so every load and derive step ends with a Sweep: rows are numbered
// within each key partition and everything after the first is deleted. The
// survivor is chosen by Policy and optional ordering expressions.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"dwh/internal/ddl"
	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// Policy selects the survivor within a key partition when OrderBy does not
// decide.
type Policy string

const (
	// Arbitrary leaves the choice to the engine.
	Arbitrary Policy = "arbitrary"
	// KeepFirst keeps the row with the lowest row id, i.e. the first loaded.
	KeepFirst Policy = "keep-first"
	// KeepLast keeps the row with the highest row id.
	KeepLast Policy = "keep-last"
)

// Sweep describes one dedup pass over a table.
type Sweep struct {
	Table string
	// Key columns, unquoted.
	Key []string
	// OrderBy holds rendered SQL ordering terms applied before the policy
	// tie-break, e.g. `"ts" DESC`.
	OrderBy []string
	// RowID is the rendered expression identifying physical rows.
	RowID  string
	Policy Policy
}

// ForTable builds the sweep on t's natural key using d's row identity.
func ForTable(t ddl.TableDef, d dialect.Dialect, p Policy) Sweep {
	return Sweep{Table: t.Name, Key: t.Unique, RowID: d.RowID(t), Policy: p}
}

// SQL renders the DELETE statement.
func (s Sweep) SQL(d dialect.Dialect) (string, error) {
	if s.Table == "" || len(s.Key) == 0 || s.RowID == "" {
		return "", fmt.Errorf("dedup: sweep needs a table, a key and a row id (table=%q key=%v rowid=%q)", s.Table, s.Key, s.RowID)
	}

	order := append([]string(nil), s.OrderBy...)
	switch s.Policy {
	case KeepFirst:
		order = append(order, s.RowID+" ASC")
	case KeepLast:
		order = append(order, s.RowID+" DESC")
	case Arbitrary, "":
	default:
		return "", fmt.Errorf("dedup: unknown policy %q", s.Policy)
	}

	if len(order) == 0 {
		if a := dialect.ArbitraryOrder(d); a != "" {
			order = []string{a}
		}
	}
	window := "PARTITION BY " + dialect.QuoteList(d, s.Key)
	if len(order) > 0 {
		window += " ORDER BY " + strings.Join(order, ", ")
	}
	table := d.QuoteIdent(s.Table)
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (\n"+
		"  SELECT dedup_rid FROM (\n"+
		"    SELECT %s AS dedup_rid, row_number() OVER (%s) AS rown FROM %s\n"+
		"  ) a WHERE rown > 1\n"+
		")", table, s.RowID, s.RowID, window, table), nil
}

// Run executes the sweep on x and returns the number of rows removed.
func (s Sweep) Run(ctx context.Context, x storage.Execer, d dialect.Dialect) (int64, error) {
	stmt, err := s.SQL(d)
	if err != nil {
		return 0, err
	}
	n, err := x.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("dedup %s: %w", s.Table, err)
	}
	return n, nil
}
