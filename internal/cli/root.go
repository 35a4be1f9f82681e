// Package cli implements the dwh command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dwh/internal/config"
	_ "dwh/internal/datasource/all"
	"dwh/internal/dwherr"
	"dwh/internal/pipeline"
	"dwh/internal/report"
	_ "dwh/internal/storage/all"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// Run executes the command line in os.Args and maps the outcome to an exit
// code. SIGINT and SIGTERM cancel the run.
func Run() ExitCode {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

type globalFlags struct {
	configPath     string
	iniPath        string
	envFile        string
	verbose        bool
	validate       bool
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
}

// NewRootCmd builds the command tree. Reports go to stdout and logs to
// stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "dwh",
		Short:         "Load song play logs into a warehouse star schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	g.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "create-tables",
			Short: "Drop and recreate staging and star schema tables",
			Args:  cobra.NoArgs,
			RunE: g.withRunner(func(ctx context.Context, r *pipeline.Runner, _ *report.Printer) error {
				return r.CreateTables(ctx)
			}),
		},
		&cobra.Command{
			Use:   "etl",
			Short: "Load staging tables from the sources and rebuild the star schema",
			Args:  cobra.NoArgs,
			RunE: g.withRunner(func(ctx context.Context, r *pipeline.Runner, _ *report.Printer) error {
				return r.ETL(ctx)
			}),
		},
		&cobra.Command{
			Use:   "analytics",
			Short: "Run the validation queries and print the report",
			Args:  cobra.NoArgs,
			RunE: g.withRunner(func(ctx context.Context, r *pipeline.Runner, pr *report.Printer) error {
				rep, err := r.Analytics(ctx)
				if err != nil {
					return err
				}
				pr.Validation(rep)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "run",
			Short: "Create tables, load, derive and validate",
			Args:  cobra.NoArgs,
			RunE: g.withRunner(func(ctx context.Context, r *pipeline.Runner, pr *report.Printer) error {
				rep, err := r.Run(ctx)
				if err != nil {
					return err
				}
				pr.Validation(rep)
				return nil
			}),
		},
		newKindsCmd(),
	)
	return rootCmd
}

func (g *globalFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "configs/dwh.json", "pipeline config JSON path")
	fs.StringVar(&g.iniPath, "ini", "", "legacy dwh.cfg INI path; replaces --config when set")
	fs.StringVar(&g.envFile, "env-file", "", "dotenv file with overrides (default .env when present)")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "set debug logging level")
	fs.BoolVar(&g.validate, "validate", false, "validate the configuration and exit")
	fs.StringVar(&g.metricsBackend, "metrics-backend", envOr("METRICS_BACKEND", "none"), "metrics backend (pushgateway, datadog, none)")
	fs.StringVar(&g.pushgatewayURL, "pushgateway-url", envOr("PUSHGATEWAY_URL", "http://localhost:9091"), "Pushgateway base URL")
	fs.StringVar(&g.datadogAddr, "datadog-addr", envOr("DD_DOGSTATSD_ADDR", "127.0.0.1:8125"), "DogStatsD address")
}

type action func(ctx context.Context, r *pipeline.Runner, pr *report.Printer) error

// withRunner loads and lints the configuration, installs metrics, opens the
// warehouse and runs fn. A step summary is printed whether or not fn fails.
func (g *globalFlags) withRunner(fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logger := newLogger(cmd.ErrOrStderr(), g.verbose)

		cfg, err := loadConfig(g, os.LookupEnv)
		if err != nil {
			logger.Error("failed to load configuration", "error", err)
			return err
		}
		if err := lint(cfg, logger); err != nil {
			logger.Error("configuration is invalid", "error", err)
			return err
		}
		if g.validate {
			logger.Info("configuration is valid", "job", cfg.Job, "warehouse", cfg.Warehouse.Kind)
			return nil
		}
		logger.Debug("configuration loaded", "config", cfg.String())

		flush := setupMetrics(g, cfg.Job, logger)
		defer flush()

		ctx := cmd.Context()
		r, err := pipeline.Open(ctx, cfg, pipeline.WithLogger(logger))
		if err != nil {
			logger.Error("failed to connect to warehouse", "kind", cfg.Warehouse.Kind, "error", err)
			return err
		}
		defer func() {
			if err := r.Close(); err != nil {
				logger.Warn("failed to close warehouse session", "kind", cfg.Warehouse.Kind, "error", err)
			}
		}()

		pr := report.New(cmd.OutOrStdout())
		err = fn(ctx, r, pr)
		if steps := r.Steps(); len(steps) > 0 {
			pr.Summary(steps)
		}
		if err != nil {
			attrs := []any{"error", err}
			if stmt := dwherr.Statement(err); stmt != "" {
				attrs = append(attrs, "statement", stmt)
			}
			if errors.Is(err, context.Canceled) {
				logger.Warn("run interrupted", attrs...)
			} else {
				logger.Error("run failed", attrs...)
			}
			return err
		}
		return nil
	}
}

func lint(cfg config.Pipeline, logger *slog.Logger) error {
	issues := config.ValidatePipeline(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			logger.Warn("configuration warning", "path", iss.Path, "message", iss.Message)
		}
	}
	return config.Errors(issues)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
