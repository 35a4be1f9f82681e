// Package duckdb implements the "duckdb" warehouse kind. DuckDB reads
// newline-delimited JSON straight from local paths or, through httpfs and an
// S3 secret, from object storage, so loads run server-side like Redshift COPY.
package duckdb

import (
	"fmt"
	"strings"

	"dwh/internal/config"
	"dwh/internal/dialect"
	"dwh/internal/storage"
)

// Config holds DuckDB session configuration.
type Config struct {
	// Path is the database file; empty means an in-memory database.
	Path string

	// HTTPFS installs and loads the httpfs extension and creates the S3 secret.
	HTTPFS bool
	S3     config.S3
	Region string

	// Settings are applied with SET after connecting, e.g. "threads = 4".
	Settings []string
}

// configFrom reads the duckdb options bag. httpfs defaults to on whenever
// S3 settings are present.
func configFrom(cfg storage.Config) Config {
	s3Set := cfg.S3.Endpoint != "" || cfg.S3.AccessKeyID != ""
	out := Config{
		Path:   strings.TrimSpace(cfg.DSN),
		HTTPFS: cfg.Options.Bool("httpfs", s3Set),
		S3:     cfg.S3,
		Region: cfg.Region,
	}
	for _, s := range cfg.Options.StringSlice("settings") {
		if s = strings.TrimSpace(s); s != "" {
			out.Settings = append(out.Settings, s)
		}
	}
	return out
}

// secretSQL builds the CREATE SECRET statement for S3 access. Without static
// keys the default AWS credential chain is used.
func secretSQL(s3 config.S3, region string) string {
	var b strings.Builder
	b.WriteString("CREATE OR REPLACE SECRET dwh_s3 (TYPE s3")
	if s3.AccessKeyID != "" && s3.SecretAccessKey != "" {
		fmt.Fprintf(&b, ", KEY_ID %s, SECRET %s", dialect.QuoteLiteral(s3.AccessKeyID), dialect.QuoteLiteral(s3.SecretAccessKey))
		if s3.SessionToken != "" {
			fmt.Fprintf(&b, ", SESSION_TOKEN %s", dialect.QuoteLiteral(s3.SessionToken))
		}
	} else {
		b.WriteString(", PROVIDER credential_chain")
	}

	useSSL := true
	if s3.Endpoint != "" {
		// DuckDB wants host:port here.
		endpoint := s3.Endpoint
		if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
			endpoint, useSSL = rest, false
		}
		endpoint = strings.TrimPrefix(endpoint, "https://")
		fmt.Fprintf(&b, ", ENDPOINT %s", dialect.QuoteLiteral(strings.TrimSuffix(endpoint, "/")))
	}
	if region != "" {
		fmt.Fprintf(&b, ", REGION %s", dialect.QuoteLiteral(region))
	}
	style := "vhost"
	if s3.UsePathStyle {
		style = "path"
	}
	fmt.Fprintf(&b, ", URL_STYLE '%s', USE_SSL %t)", style, useSSL)
	return b.String()
}
