// Package mssql implements the "mssql" warehouse kind on go-mssqldb. Staging
// loads stream rows through the TDS bulk copy API inside the load
// transaction; everything else runs as plain T-SQL.
package mssql

import (
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"dwh/internal/config"
)

// Config holds SQL Server session configuration.
type Config struct {
	// DSN is a sqlserver:// URL or an ADO-style connection string.
	DSN string

	// Bulk tunes the bulk copy used for CopyFrom.
	Bulk mssql.BulkOptions
}

// configFrom reads the mssql options bag.
func configFrom(dsn string, opts config.Options) Config {
	return Config{
		DSN: strings.TrimSpace(dsn),
		Bulk: mssql.BulkOptions{
			KeepNulls:    true,
			Tablock:      opts.Bool("tablock", false),
			RowsPerBatch: opts.Int("rows_per_batch", 0),
		},
	}
}
