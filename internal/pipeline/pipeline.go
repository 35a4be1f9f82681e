// Package pipeline wires the schema manager, loader, transformer and
// validator into one plan and runs it stage by stage against a single
// warehouse session.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dwh/internal/config"
	"dwh/internal/datasource"
	"dwh/internal/dwherr"
	"dwh/internal/loader"
	"dwh/internal/metrics"
	"dwh/internal/plan"
	"dwh/internal/report"
	"dwh/internal/schema"
	"dwh/internal/storage"
	"dwh/internal/transformer"
	"dwh/internal/validator"
)

// Step names used in the plan.
const (
	StepResetSchema  = "reset schema"
	StepResetDerived = "reset derived tables"
	StepValidate     = "validate"
)

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock used to time steps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithLogger sets the base logger. The runner adds job and run_id.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.base = l
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// Runner executes pipeline stages. It owns no goroutines and is not safe for
// concurrent use.
type Runner struct {
	cfg    config.Pipeline
	wh     storage.Warehouse
	clock  clockwork.Clock
	base   *slog.Logger
	logger *slog.Logger
	runID  string

	steps  []report.Step
	report *validator.Report
}

// Open connects to the warehouse described by cfg and returns a Runner that
// owns the session. Connection failures are dwherr connection errors.
func Open(ctx context.Context, cfg config.Pipeline, opts ...Option) (*Runner, error) {
	cfg.ApplyDefaults()
	wh, err := storage.New(ctx, StorageConfig(cfg))
	if err != nil {
		return nil, dwherr.Connection(err)
	}
	return New(wh, cfg, opts...), nil
}

// StorageConfig maps the pipeline config onto a backend config.
func StorageConfig(cfg config.Pipeline) storage.Config {
	return storage.Config{
		Kind:    cfg.Warehouse.Kind,
		DSN:     cfg.Warehouse.ConnString(),
		Options: cfg.Warehouse.Options,
		S3:      cfg.S3,
		Region:  cfg.Sources.Region,
	}
}

// New returns a Runner over an open warehouse session.
func New(wh storage.Warehouse, cfg config.Pipeline, opts ...Option) *Runner {
	cfg.ApplyDefaults()
	r := &Runner{
		cfg:   cfg,
		wh:    wh,
		clock: clockwork.NewRealClock(),
		base:  slog.Default(),
		runID: uuid.NewString(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.base.With("job", cfg.Job, "run_id", r.runID)
	return r
}

// RunID identifies this run in logs.
func (r *Runner) RunID() string { return r.runID }

// Steps returns a summary line for every step executed so far.
func (r *Runner) Steps() []report.Step { return append([]report.Step(nil), r.steps...) }

// Report returns the last validation report, or nil when validation has not
// run.
func (r *Runner) Report() *validator.Report { return r.report }

// Close closes the warehouse session.
func (r *Runner) Close() error { return r.wh.Close() }

// CreateTables drops and recreates every table.
func (r *Runner) CreateTables(ctx context.Context) error {
	return r.Execute(ctx, plan.Schema)
}

// ETL loads staging and rebuilds the star schema. Tables must exist.
func (r *Runner) ETL(ctx context.Context) error {
	return r.Execute(ctx, plan.Staging, plan.Dimension, plan.Fact)
}

// Analytics runs the validation queries and returns the report.
func (r *Runner) Analytics(ctx context.Context) (*validator.Report, error) {
	if err := r.Execute(ctx, plan.Validation); err != nil {
		return nil, err
	}
	return r.report, nil
}

// Run executes every stage in order.
func (r *Runner) Run(ctx context.Context) (*validator.Report, error) {
	if err := r.Execute(ctx, plan.Schema, plan.Staging, plan.Dimension, plan.Fact, plan.Validation); err != nil {
		return nil, err
	}
	return r.report, nil
}

// Execute runs the steps of Plan belonging to stages.
func (r *Runner) Execute(ctx context.Context, stages ...plan.Stage) error {
	return r.ExecutePlan(ctx, r.Plan().Only(stages...))
}

// ExecutePlan runs p in order and stops at the first failing step.
func (r *Runner) ExecutePlan(ctx context.Context, p *plan.Plan) error {
	steps, err := p.Order()
	if err != nil {
		return err
	}
	r.logger.Info("run started", "steps", len(steps), "warehouse", r.wh.Kind())
	runStart := r.clock.Now()

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := r.logger.With("stage", string(s.Stage), "step", s.Name)
		log.Debug("step started")

		start := r.clock.Now()
		out, err := s.Run(ctx)
		d := r.clock.Since(start)

		metrics.RecordStep(r.cfg.Job, string(s.Stage), s.Name, err, d)
		r.steps = append(r.steps, report.Step{
			Stage:    string(s.Stage),
			Name:     s.Name,
			Table:    s.Table,
			Rows:     out.Rows,
			Removed:  out.Removed,
			Duration: d,
			Err:      err,
		})
		if err != nil {
			log.Error("step failed", "error", err, "duration", d)
			return err
		}
		log.Info("step finished", "table", s.Table, "rows", out.Rows, "removed", out.Removed, "duration", d)
	}

	r.logger.Info("run finished", "steps", len(steps), "duration", r.clock.Since(runStart).Truncate(time.Millisecond))
	return nil
}

// Plan returns every step of a full run.
func (r *Runner) Plan() *plan.Plan {
	p := plan.New()

	mgr := schema.NewManager(r.wh, r.logger)
	p.Add(plan.Step{
		Name:  StepResetSchema,
		Stage: plan.Schema,
		Run: func(ctx context.Context) (plan.Outcome, error) {
			return plan.Outcome{}, mgr.Reset(ctx)
		},
	})

	ld := loader.New(r.wh, nil, r.loaderOptions(), r.logger)
	for _, t := range loader.StagingTargets(r.cfg.Sources) {
		p.Add(plan.Step{
			Name:  "load " + t.Table.Name,
			Stage: plan.Staging,
			Table: t.Table.Name,
			Run: func(ctx context.Context) (plan.Outcome, error) {
				res, err := ld.LoadTable(ctx, t)
				if err != nil {
					return plan.Outcome{}, err
				}
				metrics.RecordRows(r.cfg.Job, res.Table, metrics.RowsLoaded, res.Loaded)
				metrics.RecordRows(r.cfg.Job, res.Table, metrics.RowsRemoved, res.Removed)
				metrics.RecordRows(r.cfg.Job, res.Table, metrics.RowsSourceDuplicates, res.SourceDuplicates)
				metrics.RecordBatches(r.cfg.Job, res.Table, res.Batches)
				return plan.Outcome{Rows: res.Rows, Removed: res.Removed}, nil
			},
		})
	}

	tr := transformer.New(r.wh, r.logger)
	p.Add(plan.Step{
		Name:  StepResetDerived,
		Stage: plan.Dimension,
		Run: func(ctx context.Context) (plan.Outcome, error) {
			return plan.Outcome{}, tr.Reset(ctx)
		},
	})
	var dims []string
	for _, d := range transformer.Derivations() {
		name := "derive " + d.Table.Name
		stage, after := plan.Dimension, []string{StepResetDerived}
		if d.Fact {
			stage, after = plan.Fact, dims
		} else {
			dims = append(dims, name)
		}
		table := d.Table.Name
		p.Add(plan.Step{
			Name:  name,
			Stage: stage,
			Table: table,
			After: after,
			Run: func(ctx context.Context) (plan.Outcome, error) {
				res, err := tr.DeriveTable(ctx, table)
				if err != nil {
					return plan.Outcome{}, err
				}
				metrics.RecordRows(r.cfg.Job, table, metrics.RowsDerived, res.Rows)
				metrics.RecordRows(r.cfg.Job, table, metrics.RowsRemoved, res.Removed)
				return plan.Outcome{Rows: res.Rows, Removed: res.Removed}, nil
			},
		})
	}

	v := validator.New(r.wh, r.cfg.Validation, r.logger)
	p.Add(plan.Step{
		Name:  StepValidate,
		Stage: plan.Validation,
		Run: func(ctx context.Context) (plan.Outcome, error) {
			rep, err := v.Run(ctx)
			if err != nil {
				return plan.Outcome{}, err
			}
			r.report = rep
			var defects int64
			for _, df := range rep.Defects {
				metrics.RecordDefects(r.cfg.Job, df.Table, string(df.Kind), df.Count)
				defects += df.Count
			}
			return plan.Outcome{Rows: defects}, nil
		},
	})
	return p
}

func (r *Runner) loaderOptions() loader.Options {
	return loader.Options{
		IAMRole:       r.cfg.Sources.IAMRoleARN,
		Region:        r.cfg.Sources.Region,
		BatchSize:     r.cfg.Runtime.BatchSize,
		ChannelBuffer: r.cfg.Runtime.ChannelBuffer,
		Sources:       datasource.Options{S3: r.cfg.S3, Region: r.cfg.Sources.Region},
	}
}

// Failed returns the first failed step, if any.
func (r *Runner) Failed() (report.Step, bool) {
	for _, s := range r.steps {
		if s.Err != nil {
			return s, true
		}
	}
	return report.Step{}, false
}

// String describes the runner for logs.
func (r *Runner) String() string {
	return fmt.Sprintf("pipeline.Runner{job=%s run_id=%s warehouse=%s}", r.cfg.Job, r.runID, r.wh.Kind())
}
