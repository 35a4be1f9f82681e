// Package loader fills the staging tables from object storage.
//
// Each target is loaded in one transaction: the table is emptied, every
// source object is copied in and the natural-key sweep removes repeats. A
// malformed object aborts the transaction so a table is either fully
// reloaded or left as it was.
//
// Engines that read object storage themselves (dialect.ServerCopier) get a
// single COPY-like statement. Everything else is streamed through the
// process: a reader goroutine decodes objects into rows and the batch writer
// inserts them with the session's CopyFrom.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dwh/internal/config"
	"dwh/internal/datasource"
	"dwh/internal/ddl"
	"dwh/internal/dedup"
	"dwh/internal/dialect"
	"dwh/internal/dwherr"
	jsonparser "dwh/internal/parser/json"
	"dwh/internal/schema"
	"dwh/internal/storage"
)

// Target is one staging table and where its objects live.
type Target struct {
	Table ddl.TableDef
	// Source is an s3:// URI, file:// URI or local path.
	Source string
	// JSONPaths is the location of a JSONPaths document, or "auto".
	JSONPaths  string
	TimeFormat string
}

// StagingTargets returns the event and song targets described by src.
// Event timestamps are epoch milliseconds.
func StagingTargets(src config.Sources) []Target {
	return []Target{
		{
			Table:      schema.MustTable(schema.StagingEvents),
			Source:     src.LogData,
			JSONPaths:  src.LogJSONPath,
			TimeFormat: dialect.TimeFormatEpochMillis,
		},
		{
			Table:     schema.MustTable(schema.StagingSongs),
			Source:    src.SongData,
			JSONPaths: src.SongJSONPath,
		},
	}
}

// Options tune a Loader.
type Options struct {
	// IAMRole and Region are handed to server-side COPY.
	IAMRole string
	Region  string

	BatchSize     int
	ChannelBuffer int

	// Sources configures the object stores read by the client-side path.
	Sources datasource.Options
}

// Result reports one loaded table.
type Result struct {
	Table string
	// Loaded is the number of rows copied before the sweep.
	Loaded int64
	// Removed is the number of rows the sweep deleted.
	Removed int64
	// Rows is the final row count.
	Rows int64
	// SourceDuplicates counts source rows that repeated a natural key seen
	// earlier in the same load. Only the client-side path computes it.
	SourceDuplicates int64
	Objects          int
	Batches          int64
	Duration         time.Duration
}

// Loader loads staging targets into a warehouse.
type Loader struct {
	wh      storage.Warehouse
	targets []Target
	opts    Options
	logger  *slog.Logger
}

// New returns a Loader for targets. Zero batch settings take the config
// defaults.
func New(wh storage.Warehouse, targets []Target, opts Options, logger *slog.Logger) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.ChannelBuffer <= 0 {
		opts.ChannelBuffer = config.DefaultChannelBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{wh: wh, targets: targets, opts: opts, logger: logger}
}

// LoadStaging loads every target in order and stops at the first failure.
func (l *Loader) LoadStaging(ctx context.Context) ([]Result, error) {
	out := make([]Result, 0, len(l.targets))
	for _, t := range l.targets {
		res, err := l.LoadTable(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// LoadTable replaces the contents of t.Table with the objects under
// t.Source. Errors are *dwherr.Error of kind load.
func (l *Loader) LoadTable(ctx context.Context, t Target) (Result, error) {
	start := time.Now()
	name := t.Table.Name
	if strings.TrimSpace(t.Source) == "" {
		return Result{}, dwherr.Errorf(dwherr.KindLoad, name, "no source location")
	}

	var (
		res Result
		err error
	)
	if copier, ok := l.wh.Dialect().(dialect.ServerCopier); ok {
		res, err = l.serverLoad(ctx, t, copier)
	} else {
		res, err = l.clientLoad(ctx, t)
	}
	if err != nil {
		l.logger.Error("staging load failed", "table", name, "error", err)
		return Result{}, err
	}
	res.Table = name
	res.Duration = time.Since(start)

	l.logger.Info("staging table loaded",
		"table", name,
		"loaded", res.Loaded,
		"removed", res.Removed,
		"rows", res.Rows,
		"source_duplicates", res.SourceDuplicates,
		"objects", res.Objects,
		"duration", res.Duration.Truncate(time.Millisecond),
	)
	return res, nil
}

func (l *Loader) serverLoad(ctx context.Context, t Target, copier dialect.ServerCopier) (Result, error) {
	d := l.wh.Dialect()
	name := t.Table.Name
	spec := dialect.CopySpec{
		Table:      t.Table,
		Source:     strings.TrimSpace(t.Source),
		JSONPaths:  strings.TrimSpace(t.JSONPaths),
		TimeFormat: t.TimeFormat,
		IAMRole:    l.opts.IAMRole,
		Region:     l.opts.Region,
	}
	if im, ok := copier.(dialect.InlineMapper); ok && im.InlineMapping() && !spec.Auto() {
		m, err := l.readMapping(ctx, spec.JSONPaths)
		if err != nil {
			return Result{}, dwherr.Load(name, "", err)
		}
		spec.Mapping = m
	}
	copySQL, err := copier.CopySQL(spec)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}

	var res Result
	err = l.wh.InTx(ctx, func(ctx context.Context, tx storage.Execer) error {
		if err := emptyTable(ctx, tx, d, name); err != nil {
			return err
		}
		n, err := tx.Exec(ctx, copySQL)
		if err != nil {
			return dwherr.Load(name, copySQL, err)
		}
		res.Loaded = n
		return l.finish(ctx, tx, t.Table, &res)
	})
	return res, err
}

func (l *Loader) clientLoad(ctx context.Context, t Target) (Result, error) {
	d := l.wh.Dialect()
	name := t.Table.Name

	loc, err := datasource.ParseURI(t.Source)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}
	store, err := datasource.Open(ctx, loc, l.opts.Sources)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}
	objs, err := datasource.ListJSON(ctx, store, loc)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}

	mapping := jsonparser.AutoMapping
	if p := strings.TrimSpace(t.JSONPaths); p != "" && p != config.DefaultJSONPaths {
		if mapping, err = l.readMapping(ctx, p); err != nil {
			return Result{}, dwherr.Load(name, "", err)
		}
	}
	rm, err := jsonparser.NewRowMapper(t.Table.InsertColumns(), mapping, t.TimeFormat)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}
	cols := rm.Columns()
	keyIdx, err := columnIndexes(cols, t.Table.Unique)
	if err != nil {
		return Result{}, dwherr.Load(name, "", err)
	}

	res := Result{Objects: len(objs)}
	err = l.wh.InTx(ctx, func(ctx context.Context, tx storage.Execer) error {
		if err := emptyTable(ctx, tx, d, name); err != nil {
			return err
		}

		fp := dedup.NewFingerprints()
		rows := make(chan []any, l.opts.ChannelBuffer)
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(rows)
			for _, o := range objs {
				if err := streamObject(gctx, store, o, rm, rows); err != nil {
					return err
				}
			}
			return nil
		})

		var stats storage.BatchStats
		g.Go(func() error {
			key := make([]any, len(keyIdx))
			var err error
			stats, err = storage.LoadBatches(gctx, l.logger.With("table", name), cols, rows, l.opts.BatchSize,
				func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
					for _, row := range batch {
						for i, j := range keyIdx {
							key[i] = row[j]
						}
						fp.Add(key...)
					}
					return tx.CopyFrom(ctx, name, columns, batch)
				})
			return err
		})

		if err := g.Wait(); err != nil {
			return dwherr.Load(name, "", err)
		}
		res.Loaded = stats.Rows
		res.Batches = stats.Batches
		res.SourceDuplicates = fp.Duplicates()
		return l.finish(ctx, tx, t.Table, &res)
	})
	return res, err
}

// finish sweeps duplicates and counts what is left.
func (l *Loader) finish(ctx context.Context, tx storage.Execer, t ddl.TableDef, res *Result) error {
	d := l.wh.Dialect()
	sweep := dedup.ForTable(t, d, dedup.KeepFirst)
	removed, err := sweep.Run(ctx, tx, d)
	if err != nil {
		stmt, _ := sweep.SQL(d)
		return dwherr.Load(t.Name, stmt, err)
	}
	res.Removed = removed

	count := "SELECT count(*) FROM " + d.QuoteIdent(t.Name)
	n, err := storage.QueryInt(ctx, tx, count)
	if err != nil {
		return dwherr.Load(t.Name, count, err)
	}
	res.Rows = n
	return nil
}

// readMapping fetches and parses the JSONPaths document at uri.
func (l *Loader) readMapping(ctx context.Context, uri string) (jsonparser.Mapping, error) {
	loc, err := datasource.ParseURI(uri)
	if err != nil {
		return jsonparser.Mapping{}, err
	}
	store, err := datasource.Open(ctx, loc, l.opts.Sources)
	if err != nil {
		return jsonparser.Mapping{}, err
	}
	b, err := datasource.ReadObject(ctx, store, loc.Prefix)
	if err != nil {
		return jsonparser.Mapping{}, err
	}
	m, err := jsonparser.ParseJSONPaths(bytes.NewReader(b))
	if err != nil {
		return jsonparser.Mapping{}, fmt.Errorf("%s: %w", uri, err)
	}
	return m, nil
}

func streamObject(ctx context.Context, store datasource.Store, o datasource.Object, rm *jsonparser.RowMapper, out chan<- []any) error {
	rc, err := store.Open(ctx, o.Key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := jsonparser.StreamRows(ctx, rc, rm, jsonparser.Options{}, out); err != nil {
		return fmt.Errorf("%s: %w", o.Key, err)
	}
	return nil
}

func emptyTable(ctx context.Context, tx storage.Execer, d dialect.Dialect, table string) error {
	stmt := "DELETE FROM " + d.QuoteIdent(table)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return dwherr.Load(table, stmt, err)
	}
	return nil
}

func columnIndexes(cols, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = -1
		for j, c := range cols {
			if c == n {
				out[i] = j
				break
			}
		}
		if out[i] < 0 {
			return nil, fmt.Errorf("key column %s is not loaded", n)
		}
	}
	return out, nil
}
