// Package transformer derives the star schema from the staging tables.
//
// Every run rebuilds the dimensions and the fact table from scratch: Reset
// empties them (facts first), each derivation inserts one row per natural
// key with a window over staging, and a sweep on the natural key follows as
// a guard. Each table is derived in its own transaction.
package transformer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dwh/internal/ddl"
	"dwh/internal/dedup"
	"dwh/internal/dialect"
	"dwh/internal/dwherr"
	"dwh/internal/schema"
	"dwh/internal/storage"
)

// Derivation builds one dimension or fact table.
type Derivation struct {
	Table ddl.TableDef
	// Fact marks the table derived after every dimension.
	Fact bool
	// Insert renders the INSERT ... SELECT populating Table.
	Insert func(d dialect.Dialect) string
	Policy dedup.Policy
}

// Derivations returns the derivations in run order: users, songs, artists,
// time, songplays.
func Derivations() []Derivation {
	return []Derivation{
		{Table: schema.MustTable(schema.Users), Insert: usersSQL, Policy: dedup.Arbitrary},
		{Table: schema.MustTable(schema.Songs), Insert: songsSQL, Policy: dedup.Arbitrary},
		{Table: schema.MustTable(schema.Artists), Insert: artistsSQL, Policy: dedup.Arbitrary},
		{Table: schema.MustTable(schema.Time), Insert: timeSQL, Policy: dedup.Arbitrary},
		{Table: schema.MustTable(schema.Songplays), Fact: true, Insert: songplaysSQL, Policy: dedup.KeepFirst},
	}
}

// Result reports one derived table.
type Result struct {
	Table    string
	Inserted int64
	Removed  int64
	Rows     int64
	Duration time.Duration
}

// Transformer runs derivations against a warehouse.
type Transformer struct {
	wh     storage.Warehouse
	steps  []Derivation
	logger *slog.Logger
}

// New returns a Transformer running Derivations.
func New(wh storage.Warehouse, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{wh: wh, steps: Derivations(), logger: logger}
}

// DeriveDimensions resets the derived tables and rebuilds every dimension.
func (t *Transformer) DeriveDimensions(ctx context.Context) ([]Result, error) {
	if err := t.Reset(ctx); err != nil {
		return nil, err
	}
	var out []Result
	for _, s := range t.steps {
		if s.Fact {
			continue
		}
		res, err := t.derive(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// DeriveFacts rebuilds songplays from staging. Dimensions must be derived
// first.
func (t *Transformer) DeriveFacts(ctx context.Context) (Result, error) {
	return t.DeriveTable(ctx, schema.Songplays)
}

// DeriveTable rebuilds a single derived table. The fact table is emptied
// first; dimensions rely on Reset having emptied them.
func (t *Transformer) DeriveTable(ctx context.Context, table string) (Result, error) {
	for _, s := range t.steps {
		if s.Table.Name == table {
			return t.derive(ctx, s)
		}
	}
	return Result{}, dwherr.Errorf(dwherr.KindDerivation, table, "no derivation for table")
}

// Reset empties the derived tables, referencing tables first. The fact
// table is cleared in its own transaction: DuckDB rejects deleting a
// dimension row in the same transaction that deleted its referencing rows.
func (t *Transformer) Reset(ctx context.Context) error {
	var facts, dims []ddl.TableDef
	for _, s := range t.steps {
		if s.Fact {
			facts = append(facts, s.Table)
		} else {
			dims = append(dims, s.Table)
		}
	}
	for _, group := range [][]ddl.TableDef{facts, dims} {
		if err := t.clear(ctx, group); err != nil {
			return err
		}
	}
	t.logger.Debug("derived tables cleared", "tables", len(facts)+len(dims))
	return nil
}

// clear deletes every row of defs in one transaction.
func (t *Transformer) clear(ctx context.Context, defs []ddl.TableDef) error {
	if len(defs) == 0 {
		return nil
	}
	order, err := schema.DropOrder(defs)
	if err != nil {
		return dwherr.Derivation("", "", err)
	}
	d := t.wh.Dialect()
	return t.wh.InTx(ctx, func(ctx context.Context, tx storage.Execer) error {
		for _, def := range order {
			stmt := "DELETE FROM " + d.QuoteIdent(def.Name)
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return dwherr.Derivation(def.Name, stmt, err)
			}
		}
		return nil
	})
}

func (t *Transformer) derive(ctx context.Context, s Derivation) (Result, error) {
	start := time.Now()
	d := t.wh.Dialect()
	name := s.Table.Name
	res := Result{Table: name}

	err := t.wh.InTx(ctx, func(ctx context.Context, tx storage.Execer) error {
		if s.Fact {
			stmt := "DELETE FROM " + d.QuoteIdent(name)
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return dwherr.Derivation(name, stmt, err)
			}
		}

		insert := s.Insert(d)
		n, err := tx.Exec(ctx, insert)
		if err != nil {
			return dwherr.Derivation(name, insert, err)
		}
		res.Inserted = n

		sweep := dedup.ForTable(s.Table, d, s.Policy)
		removed, err := sweep.Run(ctx, tx, d)
		if err != nil {
			stmt, _ := sweep.SQL(d)
			return dwherr.Derivation(name, stmt, err)
		}
		res.Removed = removed

		count := "SELECT count(*) FROM " + d.QuoteIdent(name)
		if res.Rows, err = storage.QueryInt(ctx, tx, count); err != nil {
			return dwherr.Derivation(name, count, err)
		}
		return nil
	})
	if err != nil {
		t.logger.Error("derivation failed", "table", name, "error", err)
		return Result{}, err
	}
	res.Duration = time.Since(start)
	t.logger.Info("table derived",
		"table", name,
		"inserted", res.Inserted,
		"removed", res.Removed,
		"rows", res.Rows,
		"duration", res.Duration.Truncate(time.Millisecond),
	)
	return res, nil
}

// latest renders an INSERT that keeps, per partition key, the first row of
// src under order. cols pairs each target column with its source expression.
func latest(d dialect.Dialect, target, src, where string, cols [][2]string, partition []string, order []string) string {
	targets := make([]string, len(cols))
	exprs := make([]string, len(cols))
	for i, c := range cols {
		targets[i] = d.QuoteIdent(c[0])
		exprs[i] = fmt.Sprintf("%s AS %s", c[1], d.QuoteIdent(c[0]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s)\n"+
		"SELECT %s\n"+
		"FROM (\n"+
		"  SELECT %s,\n"+
		"         row_number() OVER (PARTITION BY %s ORDER BY %s) AS rown\n"+
		"  FROM %s\n"+
		"  WHERE %s\n"+
		") src\n"+
		"WHERE rown = 1",
		d.QuoteIdent(target), strings.Join(targets, ", "),
		strings.Join(targets, ", "),
		strings.Join(exprs, ", "),
		strings.Join(partition, ", "), strings.Join(order, ", "),
		src,
		where)
}

func q(d dialect.Dialect, alias, col string) string { return alias + "." + d.QuoteIdent(col) }

func usersSQL(d dialect.Dialect) string {
	e := schema.MustTable(schema.StagingEvents)
	return latest(d, schema.Users,
		d.QuoteIdent(e.Name)+" e",
		fmt.Sprintf("%s = 'NextSong' AND %s IS NOT NULL", q(d, "e", "page"), q(d, "e", "user_id")),
		[][2]string{
			{"user_id", q(d, "e", "user_id")},
			{"first_name", q(d, "e", "first_name")},
			{"last_name", q(d, "e", "last_name")},
			{"gender", q(d, "e", "gender")},
			{"level", q(d, "e", "level")},
		},
		[]string{q(d, "e", "user_id")},
		[]string{dialect.NullsLast(d, q(d, "e", "ts"), true), "e." + d.RowID(e) + " DESC"},
	)
}

func songsSQL(d dialect.Dialect) string {
	s := schema.MustTable(schema.StagingSongs)
	return latest(d, schema.Songs,
		d.QuoteIdent(s.Name)+" s",
		q(d, "s", "song_id")+" IS NOT NULL",
		[][2]string{
			{"song_id", q(d, "s", "song_id")},
			{"title", q(d, "s", "title")},
			{"artist_id", q(d, "s", "artist_id")},
			{"year", q(d, "s", "year")},
			{"duration", q(d, "s", "duration")},
		},
		[]string{q(d, "s", "song_id")},
		[]string{"s." + d.RowID(s) + " ASC"},
	)
}

func artistsSQL(d dialect.Dialect) string {
	s := schema.MustTable(schema.StagingSongs)
	return latest(d, schema.Artists,
		d.QuoteIdent(s.Name)+" s",
		q(d, "s", "artist_id")+" IS NOT NULL",
		[][2]string{
			{"artist_id", q(d, "s", "artist_id")},
			{"name", q(d, "s", "artist_name")},
			{"location", q(d, "s", "artist_location")},
			{"latitude", q(d, "s", "artist_latitude")},
			{"longitude", q(d, "s", "artist_longitude")},
		},
		[]string{q(d, "s", "artist_id")},
		[]string{dialect.NullsLast(d, q(d, "s", "artist_name"), false), "s." + d.RowID(s) + " ASC"},
	)
}

func timeSQL(d dialect.Dialect) string {
	ts := d.QuoteIdent("ts")
	fields := []dialect.DateField{dialect.Hour, dialect.Day, dialect.Week, dialect.Month, dialect.Year, dialect.Weekday}
	cols := []string{d.QuoteIdent("start_time")}
	exprs := []string{ts}
	for _, f := range fields {
		cols = append(cols, d.QuoteIdent(string(f)))
		exprs = append(exprs, d.DatePart(f, ts))
	}
	return fmt.Sprintf("INSERT INTO %s (%s)\n"+
		"SELECT DISTINCT %s\n"+
		"FROM %s\n"+
		"WHERE %s = 'NextSong' AND %s IS NOT NULL",
		d.QuoteIdent(schema.Time), strings.Join(cols, ", "),
		strings.Join(exprs, ", "),
		d.QuoteIdent(schema.StagingEvents),
		d.QuoteIdent("page"), ts)
}

func songplaysSQL(d dialect.Dialect) string {
	e := schema.MustTable(schema.StagingEvents)
	s := schema.MustTable(schema.StagingSongs)
	src := fmt.Sprintf("%s e\n  JOIN %s s ON %s = %s AND %s = %s",
		d.QuoteIdent(e.Name), d.QuoteIdent(s.Name),
		q(d, "s", "artist_name"), q(d, "e", "artist"),
		q(d, "s", "title"), q(d, "e", "song"))
	where := strings.Join([]string{
		q(d, "e", "page") + " = 'NextSong'",
		q(d, "e", "ts") + " IS NOT NULL",
		q(d, "e", "user_id") + " IS NOT NULL",
		q(d, "e", "session_id") + " IS NOT NULL",
		q(d, "s", "song_id") + " IS NOT NULL",
		q(d, "s", "artist_id") + " IS NOT NULL",
	}, " AND ")
	return latest(d, schema.Songplays, src, where,
		[][2]string{
			{"start_time", q(d, "e", "ts")},
			{"user_id", q(d, "e", "user_id")},
			{"level", q(d, "e", "level")},
			{"song_id", q(d, "s", "song_id")},
			{"artist_id", q(d, "s", "artist_id")},
			{"session_id", q(d, "e", "session_id")},
			{"location", q(d, "e", "location")},
			{"user_agent", q(d, "e", "user_agent")},
		},
		[]string{q(d, "e", "ts"), q(d, "e", "user_id"), q(d, "e", "session_id")},
		[]string{"e." + d.RowID(e) + " ASC", "s." + d.RowID(s) + " ASC"},
	)
}
