package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dwh/internal/config"
	"dwh/internal/storage"
)

func TestAdapterRegistration(t *testing.T) {
	orig := newWarehouse
	defer func() { newWarehouse = orig }()

	var got Config
	newWarehouse = func(ctx context.Context, cfg Config) (storage.Warehouse, error) {
		got = cfg
		return nil, nil
	}

	_, err := storage.New(context.Background(), storage.Config{
		Kind:    "mysql",
		DSN:     " dwh:pw@tcp(localhost:3306)/dwh ",
		Options: config.Options{"rows_per_insert": 100},
	})
	require.NoError(t, err)
	require.Equal(t, Config{DSN: "dwh:pw@tcp(localhost:3306)/dwh", RowsPerInsert: 100}, got)
}

func TestDriverDSN(t *testing.T) {
	t.Parallel()

	dsn, err := driverDSN("dwh:pw@tcp(db:3306)/dwh?parseTime=false")
	require.NoError(t, err)
	require.Contains(t, dsn, "parseTime=true")
	require.Contains(t, dsn, "dwh:pw@tcp(db:3306)/dwh?")

	_, err = driverDSN("dwh:pw@tcp(db:3306)")
	require.ErrorContains(t, err, "parse DSN")

	_, err = NewWarehouse(context.Background(), Config{})
	require.ErrorContains(t, err, "DSN must not be empty")
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "INSERT INTO `staging_songs` (`song_id`, `year`) VALUES (?, ?), (?, ?), (?, ?)",
		insertSQL("staging_songs", []string{"song_id", "year"}, 3))
}

func TestChunkRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cols, limit int
		want        int
	}{
		{"fills placeholder limit", 18, 0, 3640},
		{"configured limit below cap", 18, 100, 100},
		{"configured limit above cap", 18, 10_000, 3640},
		{"single column", 1, 0, maxPlaceholders},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, chunkRows(tt.cols, tt.limit))
		})
	}
}

// execRecorder is a storage.SQLRunner that records ExecContext calls.
type execRecorder struct {
	storage.SQLRunner
	stmts []string
	args  [][]any
	fail  int
}

func (r *execRecorder) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.stmts = append(r.stmts, query)
	r.args = append(r.args, args)
	if r.fail == len(r.stmts) {
		return nil, errors.New("deadlock")
	}
	return driver.RowsAffected(len(args) / 2), nil
}

func TestBulkInsert_Chunks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rows := [][]any{{"a", 1}, {"b", 2}, {"c", 3}, {"d", nil}, {"e", 5}}

	rec := &execRecorder{}
	n, err := bulkInsert(2)(ctx, rec, "t", []string{"k", "v"}, rows)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
	require.Len(t, rec.stmts, 3)
	require.Equal(t, "INSERT INTO `t` (`k`, `v`) VALUES (?, ?), (?, ?)", rec.stmts[0])
	require.Equal(t, "INSERT INTO `t` (`k`, `v`) VALUES (?, ?)", rec.stmts[2])
	require.Equal(t, []any{"c", 3, "d", nil}, rec.args[1])

	rec = &execRecorder{fail: 2}
	n, err = bulkInsert(2)(ctx, rec, "t", []string{"k", "v"}, rows)
	require.ErrorContains(t, err, "insert rows 2-3: deadlock")
	require.EqualValues(t, 2, n)
}
