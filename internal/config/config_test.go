package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Pipeline decoding
// -----------------------------------------------------------------------------

func TestPipeline_Decode(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "songplays_dwh",
	  "warehouse": {
	    "kind": "redshift", "host": "dwh.example.com", "port": 5439,
	    "database": "dev", "user": "awsuser", "password": "pw", "sslmode": "require"
	  },
	  "sources": {
	    "log_data": "s3://udacity-dend/log_data",
	    "log_jsonpath": "s3://udacity-dend/log_json_path.json",
	    "song_data": "s3://udacity-dend/song_data",
	    "iam_role_arn": "arn:aws:iam::123456789012:role/dwhRole",
	    "region": "us-west-2"
	  },
	  "s3": { "endpoint": "http://localhost:9000", "use_path_style": true },
	  "runtime": { "batch_size": 100 },
	  "validation": { "song_title": "Intro" }
	}`

	var p Pipeline
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Job != "songplays_dwh" || p.Warehouse.Kind != "redshift" || p.Warehouse.Port != 5439 {
		t.Fatalf("unexpected top-level fields: %+v", p)
	}
	if p.Sources.LogJSONPath != "s3://udacity-dend/log_json_path.json" {
		t.Errorf("LogJSONPath = %q", p.Sources.LogJSONPath)
	}
	if !p.S3.UsePathStyle || p.Runtime.BatchSize != 100 || p.Validation.SongTitle != "Intro" {
		t.Errorf("unexpected nested fields: %+v", p)
	}
	if p.Warehouse.Options == nil {
		t.Errorf("missing options should decode to an empty map")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	p := Pipeline{Warehouse: Warehouse{Kind: "redshift"}}
	p.ApplyDefaults()

	want := Pipeline{
		Job:        "dwh",
		Warehouse:  Warehouse{Kind: "redshift", Port: 5439},
		Sources:    Sources{LogJSONPath: "auto", SongJSONPath: "auto"},
		Runtime:    Runtime{BatchSize: DefaultBatchSize, ChannelBuffer: DefaultChannelBuffer},
		Validation: Validation{SongTitle: "Setanta matins", UserFirstName: "Aleena"},
	}
	if !reflect.DeepEqual(p, want) {
		t.Fatalf("ApplyDefaults:\n got %+v\nwant %+v", p, want)
	}

	// Explicit values are kept.
	q := Pipeline{Job: "j", Warehouse: Warehouse{Kind: "postgres", Port: 6543}, Runtime: Runtime{BatchSize: 7}}
	q.ApplyDefaults()
	if q.Job != "j" || q.Warehouse.Port != 6543 || q.Runtime.BatchSize != 7 {
		t.Errorf("explicit values overwritten: %+v", q)
	}
}

func TestWarehouse_ConnString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		w    Warehouse
		want string
	}{
		{"dsn wins", Warehouse{Kind: "postgres", DSN: "postgres://x", Host: "h"}, "postgres://x"},
		{
			"built from fields",
			Warehouse{Kind: "redshift", Host: "h", Port: 5439, Database: "dev", User: "u", Password: "p@ss", SSLMode: "require"},
			"postgres://u:p%40ss@h:5439/dev?sslmode=require",
		},
		{
			"mssql url",
			Warehouse{Kind: "mssql", Host: "h", Port: 1433, Database: "dwh", User: "sa", Password: "p w"},
			"sqlserver://sa:p%20w@h:1433?database=dwh",
		},
		{
			"mysql dsn",
			Warehouse{Kind: "mysql", Host: "h", Port: 3306, Database: "dwh", User: "u", Password: "p"},
			"u:p@tcp(h:3306)/dwh",
		},
		{"sqlite path", Warehouse{Kind: "sqlite", Database: "dwh.db"}, "dwh.db"},
		{"duckdb memory", Warehouse{Kind: "duckdb"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.ConnString(); got != tt.want {
				t.Errorf("ConnString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipeline_StringRedactsSecrets(t *testing.T) {
	t.Parallel()

	p := Pipeline{
		Warehouse: Warehouse{Password: "hunter2", DSN: "postgres://u:hunter2@h/db"},
		S3:        S3{AccessKeyID: "AKIA", SecretAccessKey: "hunter2"},
	}
	s := p.String()
	if strings.Contains(s, "hunter2") {
		t.Fatalf("String() leaked a secret: %s", s)
	}
	if !strings.Contains(s, "AKIA") {
		t.Errorf("String() dropped non-secret fields: %s", s)
	}
}

func TestRedactDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind, dsn string
	}{
		{"postgres", "postgres://u:hunter2@h/db"},
		{"postgres", "host=h user=u password=hunter2 dbname=db"},
		{"mssql", "server=h;user id=sa;Password=hunter2;database=dwh"},
		{"mssql", "sqlserver://sa:hunter2@h:1433?database=dwh"},
		{"mysql", "u:hunter2@tcp(h:3306)/dwh?parseTime=true"},
	}
	for _, tt := range tests {
		got := redactDSN(tt.kind, tt.dsn)
		if strings.Contains(got, "hunter2") {
			t.Errorf("redactDSN(%q, %q) = %q leaks the password", tt.kind, tt.dsn, got)
		}
		if !strings.Contains(got, "h") {
			t.Errorf("redactDSN(%q, %q) = %q dropped the host", tt.kind, tt.dsn, got)
		}
	}
}

// -----------------------------------------------------------------------------
// Options helpers
// -----------------------------------------------------------------------------

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	var o Options
	if err := json.Unmarshal([]byte(`{"s":"x","b":true,"n":3,"list":["a",1,"b"]}`), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.String("s", "d") != "x" || o.String("n", "d") != "d" {
		t.Errorf("String accessor wrong")
	}
	if !o.Bool("b", false) || o.Bool("s", true) != true {
		t.Errorf("Bool accessor wrong")
	}
	if o.Int("n", 0) != 3 || o.Int("missing", 9) != 9 {
		t.Errorf("Int accessor wrong")
	}
	if got := o.StringSlice("list"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("StringSlice = %v", got)
	}
	if o.StringSlice("s") != nil {
		t.Errorf("StringSlice on non-array should be nil")
	}

	var empty Options
	if err := json.Unmarshal([]byte(`null`), &empty); err != nil || empty == nil {
		t.Errorf("null should decode to empty Options, got %v, %v", empty, err)
	}
}

// -----------------------------------------------------------------------------
// Loaders
// -----------------------------------------------------------------------------

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "dwh.json", `{"job":"x","warehouse":{"kind":"sqlite","database":":memory:"}}`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Warehouse.Kind != "sqlite" || p.Warehouse.Database != ":memory:" {
		t.Errorf("unexpected pipeline: %+v", p)
	}

	bad := writeFile(t, "bad.json", `{"job":"x","warehose":{}}`)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Errorf("Load(typo) error = %v, want unknown field", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Load(missing) should fail")
	}
}

func TestLoadINI(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "dwh.cfg", `
[CLUSTER]
HOST=dwhcluster.abc.us-west-2.redshift.amazonaws.com
DB_NAME=dev
DB_USER=awsuser
DB_PASSWORD=Passw0rd
DB_PORT=5439

[IAM_ROLE]
ARN='arn:aws:iam::123456789012:role/dwhRole'

[S3]
LOG_DATA='s3://udacity-dend/log_data'
LOG_JSONPATH='s3://udacity-dend/log_json_path.json'
SONG_DATA='s3://udacity-dend/song_data'
`)
	p, err := LoadINI(path)
	if err != nil {
		t.Fatalf("LoadINI: %v", err)
	}
	want := Pipeline{
		Warehouse: Warehouse{
			Kind:     "redshift",
			Host:     "dwhcluster.abc.us-west-2.redshift.amazonaws.com",
			Port:     5439,
			Database: "dev",
			User:     "awsuser",
			Password: "Passw0rd",
		},
		Sources: Sources{
			LogData:     "s3://udacity-dend/log_data",
			LogJSONPath: "s3://udacity-dend/log_json_path.json",
			SongData:    "s3://udacity-dend/song_data",
			IAMRoleARN:  "arn:aws:iam::123456789012:role/dwhRole",
		},
	}
	if !reflect.DeepEqual(p, want) {
		t.Fatalf("LoadINI:\n got %+v\nwant %+v", p, want)
	}

	badPort := writeFile(t, "bad.cfg", "[CLUSTER]\nDB_PORT=abc\n")
	if _, err := LoadINI(badPort); err == nil || !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("LoadINI(bad port) error = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DWH_HOST":             "h2",
		"DWH_PORT":             "15439",
		"DWH_PASSWORD":         "secret",
		"DWH_IAM_ROLE_ARN":     "arn:aws:iam::1:role/r",
		"AWS_REGION":           "eu-west-1",
		"S3_ENDPOINT":          "http://minio:9000",
		"S3_ACCESS_KEY_ID":     "",
		"S3_SECRET_ACCESS_KEY": "k",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	p := Pipeline{Warehouse: Warehouse{Host: "h1", User: "u"}, S3: S3{AccessKeyID: "keep"}}
	if err := ApplyEnv(&p, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if p.Warehouse.Host != "h2" || p.Warehouse.Port != 15439 || p.Warehouse.User != "u" || p.Warehouse.Password != "secret" {
		t.Errorf("warehouse overrides wrong: %+v", p.Warehouse)
	}
	if p.Sources.IAMRoleARN != "arn:aws:iam::1:role/r" || p.Sources.Region != "eu-west-1" {
		t.Errorf("source overrides wrong: %+v", p.Sources)
	}
	if p.S3.Endpoint != "http://minio:9000" || p.S3.AccessKeyID != "keep" || p.S3.SecretAccessKey != "k" {
		t.Errorf("s3 overrides wrong: %+v", p.S3)
	}

	env["DWH_PORT"] = "x"
	if err := ApplyEnv(&p, lookup); err == nil {
		t.Errorf("ApplyEnv should reject a non-numeric port")
	}
}
