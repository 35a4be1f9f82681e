// Package validator runs a fixed battery of read-only queries against the
// star schema and reports what they return. Nothing is asserted: duplicate
// keys and dangling fact references come back as defects in the Report.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dwh/internal/config"
	"dwh/internal/ddl"
	"dwh/internal/dialect"
	"dwh/internal/schema"
	"dwh/internal/storage"
)

// DefectKind classifies a finding.
type DefectKind string

const (
	// DuplicateKey means a table holds more rows than distinct natural keys.
	DuplicateKey DefectKind = "duplicate_key"
	// Orphan means songplays reference a dimension row that does not exist.
	Orphan DefectKind = "orphan"
)

// Defect is a data-quality finding. It is reported, not returned as an error.
type Defect struct {
	Kind  DefectKind
	Table string
	// Ref is the referenced dimension for orphans.
	Ref   string
	Count int64
}

func (d Defect) String() string {
	switch d.Kind {
	case DuplicateKey:
		return fmt.Sprintf("%s: %d rows share a natural key with another row", d.Table, d.Count)
	case Orphan:
		return fmt.Sprintf("%s: %d rows reference a missing %s row", d.Table, d.Count, d.Ref)
	}
	return fmt.Sprintf("%s %s: %d", d.Kind, d.Table, d.Count)
}

// QueryResult is the output of one lookup query.
type QueryResult struct {
	Name    string
	Title   string
	SQL     string
	Columns []string
	Rows    [][]any
}

// TableCount compares a table's row count with its distinct natural keys.
type TableCount struct {
	Table    string
	Key      []string
	Rows     int64
	Distinct int64
}

// Duplicates is the number of surplus rows.
func (c TableCount) Duplicates() int64 { return c.Rows - c.Distinct }

// Report collects everything a run found.
type Report struct {
	Queries []QueryResult
	Counts  []TableCount
	Defects []Defect
}

// OK reports whether no defect was found.
func (r *Report) OK() bool { return len(r.Defects) == 0 }

// Count returns the counts for table.
func (r *Report) Count(table string) (TableCount, bool) {
	for _, c := range r.Counts {
		if c.Table == table {
			return c, true
		}
	}
	return TableCount{}, false
}

// Validator runs the battery.
type Validator struct {
	wh     storage.Warehouse
	cfg    config.Validation
	logger *slog.Logger
}

// New returns a Validator. Empty lookup values take the config defaults.
func New(wh storage.Warehouse, cfg config.Validation, logger *slog.Logger) *Validator {
	if cfg.SongTitle == "" {
		cfg.SongTitle = config.DefaultSongTitle
	}
	if cfg.UserFirstName == "" {
		cfg.UserFirstName = config.DefaultUserFirstName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{wh: wh, cfg: cfg, logger: logger}
}

type lookup struct {
	name, title string
	sql         func(d dialect.Dialect) string
	args        []any
}

func (v *Validator) lookups() []lookup {
	return []lookup{
		{
			name:  "song_listeners",
			title: fmt.Sprintf("Users who played %q", v.cfg.SongTitle),
			sql: func(d dialect.Dialect) string {
				return fmt.Sprintf(`SELECT u.%s, u.%s FROM %s sp
JOIN %s u ON u.%s = sp.%s
JOIN %s s ON s.%s = sp.%s
WHERE s.%s = %s
ORDER BY sp.%s, u.%s`,
					id(d, "first_name"), id(d, "last_name"), id(d, schema.Songplays),
					id(d, schema.Users), id(d, "user_id"), id(d, "user_id"),
					id(d, schema.Songs), id(d, "song_id"), id(d, "song_id"),
					id(d, "title"), d.Placeholder(1),
					id(d, "start_time"), id(d, "last_name"))
			},
			args: []any{v.cfg.SongTitle},
		},
		{
			name:  "paid_users",
			title: "Paid users (first 10 by first name)",
			sql: func(d dialect.Dialect) string {
				top, tail := dialect.Limit(d, 10)
				return fmt.Sprintf(`SELECT %s%s, %s FROM %s
WHERE %s = 'paid'
ORDER BY %s, %s%s`,
					top, id(d, "first_name"), id(d, "last_name"), id(d, schema.Users),
					id(d, "level"),
					id(d, "first_name"), id(d, "last_name"), tail)
			},
		},
		{
			name:  "last_access",
			title: fmt.Sprintf("Last access of %s", v.cfg.UserFirstName),
			sql: func(d dialect.Dialect) string {
				top, tail := dialect.Limit(d, 1)
				date := dialect.JoinText(d, "-", "t."+id(d, "day"), "t."+id(d, "month"), "t."+id(d, "year"))
				return fmt.Sprintf(`SELECT %s%s AS last_access_date
FROM %s sp
JOIN %s t ON t.%s = sp.%s
JOIN %s u ON u.%s = sp.%s
WHERE u.%s = %s
ORDER BY sp.%s DESC%s`,
					top, date,
					id(d, schema.Songplays),
					id(d, schema.Time), id(d, "start_time"), id(d, "start_time"),
					id(d, schema.Users), id(d, "user_id"), id(d, "user_id"),
					id(d, "first_name"), d.Placeholder(1),
					id(d, "start_time"), tail)
			},
			args: []any{v.cfg.UserFirstName},
		},
	}
}

func id(d dialect.Dialect, name string) string { return d.QuoteIdent(name) }

// Run executes every query. Query failures are errors; data findings are
// defects in the returned Report.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	d := v.wh.Dialect()
	rep := &Report{}

	for _, l := range v.lookups() {
		stmt := l.sql(d)
		rows, err := v.wh.Query(ctx, stmt, l.args...)
		if err != nil {
			return nil, fmt.Errorf("validator: %s: %w", l.name, err)
		}
		rep.Queries = append(rep.Queries, QueryResult{
			Name: l.name, Title: l.title, SQL: stmt, Columns: rows.Columns, Rows: rows.Values,
		})
		v.logger.Debug("validation query", "query", l.name, "rows", len(rows.Values))
	}

	for _, t := range schema.Tables() {
		c, err := v.countTable(ctx, d, t)
		if err != nil {
			return nil, err
		}
		rep.Counts = append(rep.Counts, c)
		if c.Duplicates() > 0 {
			rep.Defects = append(rep.Defects, Defect{Kind: DuplicateKey, Table: t.Name, Count: c.Duplicates()})
		}
	}

	for _, t := range schema.Tables() {
		for _, fk := range t.ForeignKeys {
			n, err := v.orphans(ctx, d, t, fk)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				rep.Defects = append(rep.Defects, Defect{Kind: Orphan, Table: t.Name, Ref: fk.RefTable, Count: n})
			}
		}
	}

	for _, df := range rep.Defects {
		v.logger.Warn("validation defect", "kind", df.Kind, "table", df.Table, "count", df.Count)
	}
	v.logger.Info("validation finished", "queries", len(rep.Queries), "tables", len(rep.Counts), "defects", len(rep.Defects))
	return rep, nil
}

// DistinctSQL counts the distinct natural keys of t. Composite keys go
// through a DISTINCT subquery so NULL components still count as a key.
func DistinctSQL(d dialect.Dialect, t ddl.TableDef) string {
	if len(t.Unique) == 1 {
		return fmt.Sprintf("SELECT count(DISTINCT %s) FROM %s", d.QuoteIdent(t.Unique[0]), d.QuoteIdent(t.Name))
	}
	return fmt.Sprintf("SELECT count(*) FROM (SELECT DISTINCT %s FROM %s) k",
		dialect.QuoteList(d, t.Unique), d.QuoteIdent(t.Name))
}

// OrphanSQL counts rows of t whose fk points at no row of the referenced
// table. Rows with a NULL reference are not orphans.
func OrphanSQL(d dialect.Dialect, t ddl.TableDef, fk ddl.ForeignKey) string {
	on := make([]string, len(fk.Columns))
	for i := range fk.Columns {
		on[i] = fmt.Sprintf("r.%s = c.%s", d.QuoteIdent(fk.RefColumns[i]), d.QuoteIdent(fk.Columns[i]))
	}
	return fmt.Sprintf("SELECT count(*) FROM %s c LEFT JOIN %s r ON %s WHERE r.%s IS NULL AND c.%s IS NOT NULL",
		d.QuoteIdent(t.Name), d.QuoteIdent(fk.RefTable), strings.Join(on, " AND "),
		d.QuoteIdent(fk.RefColumns[0]), d.QuoteIdent(fk.Columns[0]))
}

func (v *Validator) countTable(ctx context.Context, d dialect.Dialect, t ddl.TableDef) (TableCount, error) {
	c := TableCount{Table: t.Name, Key: t.Unique}
	total := "SELECT count(*) FROM " + d.QuoteIdent(t.Name)
	var err error
	if c.Rows, err = storage.QueryInt(ctx, v.wh, total); err != nil {
		return c, fmt.Errorf("validator: count %s: %w", t.Name, err)
	}
	if c.Distinct, err = storage.QueryInt(ctx, v.wh, DistinctSQL(d, t)); err != nil {
		return c, fmt.Errorf("validator: distinct %s: %w", t.Name, err)
	}
	return c, nil
}

func (v *Validator) orphans(ctx context.Context, d dialect.Dialect, t ddl.TableDef, fk ddl.ForeignKey) (int64, error) {
	n, err := storage.QueryInt(ctx, v.wh, OrphanSQL(d, t, fk))
	if err != nil {
		return 0, fmt.Errorf("validator: orphans %s -> %s: %w", t.Name, fk.RefTable, err)
	}
	return n, nil
}
