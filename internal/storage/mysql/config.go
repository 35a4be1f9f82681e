// Package mysql implements the "mysql" warehouse kind on go-sql-driver/mysql.
// Loads go through multi-row INSERT statements sized to stay under the
// server's placeholder limit.
package mysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"dwh/internal/config"
)

// Config holds MySQL session configuration.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/dwh".
	DSN string

	// RowsPerInsert caps the rows of one INSERT; 0 fills the placeholder
	// limit.
	RowsPerInsert int
}

// configFrom reads the mysql options bag.
func configFrom(dsn string, opts config.Options) Config {
	return Config{
		DSN:           strings.TrimSpace(dsn),
		RowsPerInsert: opts.Int("rows_per_insert", 0),
	}
}

// driverDSN parses dsn and forces the settings the pipeline relies on:
// DATETIME columns scan into time.Time and are read and written as UTC.
func driverDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}
