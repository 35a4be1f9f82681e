package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dwh/internal/config"
	"dwh/internal/ddl"
	"dwh/internal/dialect"
	"dwh/internal/storage"
)

func TestSecretSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		s3     config.S3
		region string
		want   string
	}{
		{
			name:   "credential chain",
			region: "us-west-2",
			want:   "CREATE OR REPLACE SECRET dwh_s3 (TYPE s3, PROVIDER credential_chain, REGION 'us-west-2', URL_STYLE 'vhost', USE_SSL true)",
		},
		{
			name: "static keys against minio",
			s3: config.S3{
				Endpoint:        "http://127.0.0.1:9000/",
				AccessKeyID:     "minio",
				SecretAccessKey: "it's",
				UsePathStyle:    true,
			},
			want: "CREATE OR REPLACE SECRET dwh_s3 (TYPE s3, KEY_ID 'minio', SECRET 'it''s', ENDPOINT '127.0.0.1:9000', URL_STYLE 'path', USE_SSL false)",
		},
		{
			name: "session token",
			s3:   config.S3{AccessKeyID: "a", SecretAccessKey: "b", SessionToken: "c", Endpoint: "https://s3.example.com"},
			want: "CREATE OR REPLACE SECRET dwh_s3 (TYPE s3, KEY_ID 'a', SECRET 'b', SESSION_TOKEN 'c', ENDPOINT 's3.example.com', URL_STYLE 'vhost', USE_SSL true)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, secretSQL(tt.s3, tt.region))
		})
	}
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := configFrom(storage.Config{DSN: " dwh.duckdb ", Options: config.Options{"settings": []any{"threads = 2", ""}}})
	require.Equal(t, "dwh.duckdb", cfg.Path)
	require.False(t, cfg.HTTPFS)
	require.Equal(t, []string{"threads = 2"}, cfg.Settings)

	cfg = configFrom(storage.Config{S3: config.S3{Endpoint: "http://minio:9000"}})
	require.True(t, cfg.HTTPFS, "httpfs defaults on with S3 settings")

	cfg = configFrom(storage.Config{S3: config.S3{Endpoint: "http://minio:9000"}, Options: config.Options{"httpfs": false}})
	require.False(t, cfg.HTTPFS)
}

func TestRegistrationUsesHook(t *testing.T) {
	orig := newWarehouse
	defer func() { newWarehouse = orig }()

	var got Config
	newWarehouse = func(ctx context.Context, cfg Config) (storage.Warehouse, error) {
		got = cfg
		return NewWarehouse(ctx, Config{})
	}
	wh, err := storage.New(context.Background(), storage.Config{Kind: "duckdb", DSN: "x.duckdb", Region: "eu-west-1"})
	require.NoError(t, err)
	defer wh.Close()

	require.Equal(t, "x.duckdb", got.Path)
	require.Equal(t, "eu-west-1", got.Region)
	require.Equal(t, "duckdb", wh.Kind())
}

// TestServerCopyFromLocalFiles runs the rendered CopySQL against NDJSON files
// on disk and checks blank handling, casting and epoch-millis timestamps.
func TestServerCopyFromLocalFiles(t *testing.T) {
	ctx := context.Background()
	s, err := NewWarehouse(ctx, Config{})
	require.NoError(t, err)
	defer s.Close()

	dir := t.TempDir()
	sub := filepath.Join(dir, "2018", "11")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.json"), []byte(
		`{"name":"Ann","level":"paid","ts":1541106106796,"len":12.5}`+"\n"+
			`{"name":"","level":"free","ts":1541106106797,"len":null}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "skip.txt"), []byte("not json"), 0o644))

	tbl := ddl.TableDef{
		Name: "stage",
		Columns: []ddl.ColumnDef{
			{Name: "name", Type: ddl.Text, Nullable: true},
			{Name: "level", Type: ddl.Text, Nullable: true},
			{Name: "ts", Type: ddl.Timestamp, Nullable: true},
			{Name: "len", Type: ddl.Decimal, Nullable: true},
		},
	}
	d := dialect.DuckDB{}
	stmts, err := d.CreateTable(tbl)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := s.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	copySQL, err := d.CopySQL(dialect.CopySpec{Table: tbl, Source: dir, TimeFormat: dialect.TimeFormatEpochMillis})
	require.NoError(t, err)
	n, err := s.Exec(ctx, copySQL)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	nulls, err := storage.QueryInt(ctx, s, `SELECT count(*) FROM "stage" WHERE "name" IS NULL AND "len" IS NULL`)
	require.NoError(t, err)
	require.EqualValues(t, 1, nulls)

	rows, err := s.Query(ctx, `SELECT "ts" FROM "stage" WHERE "level" = 'paid'`)
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	ts, ok := rows.Values[0][0].(time.Time)
	require.True(t, ok, "got %T", rows.Values[0][0])
	require.Equal(t, time.Date(2018, 11, 1, 21, 1, 46, 796_000_000, time.UTC), ts.UTC())
}
