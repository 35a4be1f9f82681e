package config

import (
	"path/filepath"
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validRedshift() Pipeline {
	return Pipeline{
		Job: "songplays_dwh",
		Warehouse: Warehouse{
			Kind: "redshift", Host: "h", Port: 5439, Database: "dev", User: "awsuser",
		},
		Sources: Sources{
			LogData:    "s3://udacity-dend/log_data",
			SongData:   "s3://udacity-dend/song_data",
			IAMRoleARN: "arn:aws:iam::123456789012:role/dwhRole",
			Region:     "us-west-2",
		},
	}
}

func TestValidatePipeline_ValidRedshift(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validRedshift()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidatePipeline_MissingJob(t *testing.T) {
	t.Parallel()

	p := validRedshift()
	p.Job = " "
	if !hasIssue(t, ValidatePipeline(p), SeverityError, "job", "must not be empty") {
		t.Fatalf("expected job error")
	}
}

func TestValidatePipeline_Warehouse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		w    Warehouse
		sev  IssueSeverity
		path string
		msg  string
	}{
		{"empty kind", Warehouse{}, SeverityError, "warehouse.kind", "must not be empty"},
		{"unknown kind", Warehouse{Kind: "bigquery"}, SeverityWarning, "warehouse.kind", "unknown warehouse kind"},
		{"postgres no host", Warehouse{Kind: "postgres", Database: "d", User: "u"}, SeverityError, "warehouse.host", "requires warehouse.host"},
		{"bad port", Warehouse{Kind: "postgres", Host: "h", Database: "d", User: "u", Port: 70000}, SeverityError, "warehouse.port", "out of range"},
		{"mssql no database", Warehouse{Kind: "mssql", Host: "h", User: "sa"}, SeverityError, "warehouse.database", "mssql requires warehouse.database"},
		{"mysql no user", Warehouse{Kind: "mysql", Host: "h", Database: "d"}, SeverityError, "warehouse.user", "mysql requires warehouse.user"},
		{"sqlite no path", Warehouse{Kind: "sqlite"}, SeverityError, "warehouse.database", "sqlite requires"},
		{"duckdb in memory", Warehouse{Kind: "duckdb"}, SeverityWarning, "warehouse.database", "in memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validRedshift()
			p.Warehouse = tt.w
			p.Sources.LogData, p.Sources.SongData = "data/log", "data/song"
			if !hasIssue(t, ValidatePipeline(p), tt.sev, tt.path, tt.msg) {
				t.Fatalf("expected %s at %s containing %q, got %+v", tt.sev, tt.path, tt.msg, ValidatePipeline(p))
			}
		})
	}

	p := validRedshift()
	p.Warehouse = Warehouse{Kind: "postgres", DSN: "postgres://x"}
	p.Sources.IAMRoleARN = ""
	if issues := ValidatePipeline(p); len(issues) != 0 {
		t.Errorf("dsn should satisfy connection checks, got %+v", issues)
	}
}

func TestValidatePipeline_RedshiftSources(t *testing.T) {
	t.Parallel()

	p := validRedshift()
	p.Sources.LogData = "data/log_data"
	p.Sources.SongData = ""
	p.Sources.IAMRoleARN = ""
	p.Sources.Region = ""
	issues := ValidatePipeline(p)

	if !hasIssue(t, issues, SeverityError, "sources.log_data", "reads only from s3://") {
		t.Errorf("expected s3 scheme error, got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "sources.song_data", "must not be empty") {
		t.Errorf("expected song_data error")
	}
	if !hasIssue(t, issues, SeverityError, "sources.iam_role_arn", "requires an IAM role") {
		t.Errorf("expected iam role error")
	}
	if !hasIssue(t, issues, SeverityWarning, "sources.region", "no region") {
		t.Errorf("expected region warning")
	}

	p = validRedshift()
	p.Sources.IAMRoleARN = "dwhRole"
	if !hasIssue(t, ValidatePipeline(p), SeverityWarning, "sources.iam_role_arn", "does not look like an ARN") {
		t.Errorf("expected ARN warning")
	}
}

func TestValidatePipeline_S3AndRuntime(t *testing.T) {
	t.Parallel()

	p := validRedshift()
	p.S3.AccessKeyID = "AKIA"
	p.Runtime = Runtime{BatchSize: -1, ChannelBuffer: -1}
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "s3.access_key_id", "set together") {
		t.Errorf("expected s3 key pair error")
	}
	if !hasIssue(t, issues, SeverityError, "runtime.batch_size", "negative") {
		t.Errorf("expected batch_size error")
	}
	if !hasIssue(t, issues, SeverityError, "runtime.channel_buffer", "negative") {
		t.Errorf("expected channel_buffer error")
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	if Errors([]Issue{{Severity: SeverityWarning, Path: "x", Message: "m"}}) != nil {
		t.Fatalf("warnings alone must not produce an error")
	}
	err := Errors([]Issue{
		{Severity: SeverityError, Path: "job", Message: "empty"},
		{Severity: SeverityWarning, Path: "x", Message: "m"},
	})
	if err == nil || !strings.Contains(err.Error(), "error at job: empty") || strings.Contains(err.Error(), "warning") {
		t.Fatalf("Errors() = %v", err)
	}
}

func TestShippedConfigsAreValid(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "configs", "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range paths {
		if filepath.Base(path) == "log_json_path.json" {
			continue
		}
		t.Run(filepath.Base(path), func(t *testing.T) {
			p, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			p.ApplyDefaults()
			if err := Errors(ValidatePipeline(p)); err != nil {
				t.Fatalf("ValidatePipeline: %v", err)
			}
		})
	}
}
