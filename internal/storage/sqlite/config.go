// Package sqlite implements the "sqlite" warehouse kind on modernc.org/sqlite.
package sqlite

import (
	"strings"

	"dwh/internal/config"
)

// Config holds SQLite session configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:dwh.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// Pragmas are executed after connecting, e.g. "journal_mode = WAL".
	// foreign_keys is always enabled.
	Pragmas []string
}

// configFrom reads the sqlite-specific options bag.
func configFrom(dsn string, opts config.Options) Config {
	cfg := Config{DSN: strings.TrimSpace(dsn)}
	for _, p := range opts.StringSlice("pragmas") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Pragmas = append(cfg.Pragmas, p)
		}
	}
	return cfg
}
