package config

import (
	"errors"
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into the
// config (e.g. "warehouse.kind", "sources.log_data").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// KnownKinds lists the warehouse kinds this binary ships with.
var KnownKinds = []string{"redshift", "postgres", "mssql", "mysql", "sqlite", "duckdb"}

// ValidatePipeline lints p without mutating it. Callers decide whether
// warnings are fatal; Errors collects the blocking ones.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateWarehouse(p.Warehouse)...)
	issues = append(issues, validateSources(p.Warehouse.Kind, p.Sources)...)
	issues = append(issues, validateS3(p.S3)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	return issues
}

// Errors joins the error-severity issues, or returns nil when there are none.
func Errors(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

func validateWarehouse(w Warehouse) []Issue {
	var issues []Issue
	kind := strings.TrimSpace(w.Kind)
	if kind == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  "warehouse.kind must not be empty",
		})
	}

	known := false
	for _, k := range KnownKinds {
		if k == kind {
			known = true
		}
	}
	if !known {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; ensure a matching backend is registered", kind),
		})
	}

	switch kind {
	case "redshift", "postgres", "mssql", "mysql":
		if w.DSN != "" {
			break
		}
		for _, f := range []struct{ path, v string }{
			{"warehouse.host", w.Host},
			{"warehouse.database", w.Database},
			{"warehouse.user", w.User},
		} {
			if strings.TrimSpace(f.v) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     f.path,
					Message:  fmt.Sprintf("%s requires %s when warehouse.dsn is empty", kind, f.path),
				})
			}
		}
		if w.Port < 0 || w.Port > 65535 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "warehouse.port",
				Message:  fmt.Sprintf("port %d is out of range", w.Port),
			})
		}
	case "sqlite":
		if w.ConnString() == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "warehouse.database",
				Message:  `sqlite requires a database path or ":memory:"`,
			})
		}
	case "duckdb":
		if w.ConnString() == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "warehouse.database",
				Message:  "no database path; duckdb will run in memory and nothing persists after the run",
			})
		}
	}
	return issues
}

func validateSources(kind string, s Sources) []Issue {
	var issues []Issue
	for _, f := range []struct{ path, v string }{
		{"sources.log_data", s.LogData},
		{"sources.song_data", s.SongData},
	} {
		if strings.TrimSpace(f.v) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     f.path,
				Message:  f.path + " must not be empty",
			})
			continue
		}
		if kind == "redshift" && !strings.HasPrefix(f.v, "s3://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     f.path,
				Message:  fmt.Sprintf("redshift COPY reads only from s3://, got %q", f.v),
			})
		}
	}

	if kind == "redshift" {
		if strings.TrimSpace(s.IAMRoleARN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sources.iam_role_arn",
				Message:  "redshift COPY requires an IAM role ARN",
			})
		} else if !strings.HasPrefix(s.IAMRoleARN, "arn:") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "sources.iam_role_arn",
				Message:  fmt.Sprintf("%q does not look like an ARN", s.IAMRoleARN),
			})
		}
		if strings.TrimSpace(s.Region) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "sources.region",
				Message:  "no region; COPY assumes the bucket is in the cluster's region",
			})
		}
	}
	return issues
}

func validateS3(s S3) []Issue {
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		return []Issue{{
			Severity: SeverityError,
			Path:     "s3.access_key_id",
			Message:  "access_key_id and secret_access_key must be set together",
		}}
	}
	return nil
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}
	return issues
}
