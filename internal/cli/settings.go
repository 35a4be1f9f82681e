package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dwh/internal/config"
	"dwh/internal/metrics"
	"dwh/internal/metrics/datadog"
	"dwh/internal/metrics/prompush"
	"dwh/internal/storage"
)

const defaultEnvFile = ".env"

// loadConfig reads the pipeline file (JSON, or INI when --ini is set), then
// applies environment overrides. Variables from the dotenv file fill in
// only what the process environment leaves unset.
func loadConfig(g *globalFlags, lookup config.LookupFunc) (config.Pipeline, error) {
	var (
		p   config.Pipeline
		err error
	)
	if g.iniPath != "" {
		p, err = config.LoadINI(g.iniPath)
	} else {
		p, err = config.Load(g.configPath)
	}
	if err != nil {
		return p, err
	}

	dotenv, err := readEnvFile(g.envFile)
	if err != nil {
		return p, err
	}
	merged := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := config.ApplyEnv(&p, merged); err != nil {
		return p, err
	}
	p.ApplyDefaults()
	return p, nil
}

// readEnvFile parses path, or .env when path is empty. A missing default
// file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return env, nil
}

// setupMetrics installs the selected backend and returns a flush to defer.
// An unusable backend is logged and metrics stay disabled.
func setupMetrics(g *globalFlags, job string, logger *slog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch g.metricsBackend {
	case "", "none":
		logger.Debug("metrics disabled")
		return func() {}
	case "pushgateway":
		b, err = prompush.NewBackend(job, g.pushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       g.datadogAddr,
			Namespace:  "dwh.",
			GlobalTags: []string{"job:" + job},
		})
	default:
		logger.Warn("unknown metrics backend; metrics disabled", "backend", g.metricsBackend)
		return func() {}
	}
	if err != nil {
		logger.Warn("failed to init metrics backend; metrics disabled", "backend", g.metricsBackend, "error", err)
		return func() {}
	}

	logger.Debug("metrics enabled", "backend", g.metricsBackend, "job", job)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush failed", "backend", g.metricsBackend, "error", err)
		}
	}
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the warehouse kinds this binary supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, k := range storage.ListKinds() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
