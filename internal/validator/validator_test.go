package validator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dwh/internal/config"
	"dwh/internal/dialect"
	"dwh/internal/schema"
	"dwh/internal/storage"
	"dwh/internal/storage/sqlite"
	"dwh/internal/transformer"
)

var t0 = time.Date(2018, 11, 1, 21, 1, 46, 796_000_000, time.UTC)

func seeded(t *testing.T) storage.Warehouse {
	t.Helper()
	ctx := context.Background()
	wh, err := sqlite.NewWarehouse(ctx, sqlite.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })
	require.NoError(t, schema.NewManager(wh, nil).Reset(ctx))

	cols := []string{"ts", "user_id", "session_id", "first_name", "last_name", "level", "page", "artist", "song"}
	_, err = wh.CopyFrom(ctx, schema.StagingEvents, cols, [][]any{
		{t0, 10, 1, "Aleena", "Kirby", "free", "NextSong", "Elena", "Setanta matins"},
		{t0.Add(26 * time.Hour), 10, 2, "Aleena", "Kirby", "paid", "NextSong", "Casual", "I Didn't Mean To"},
		{t0.Add(time.Hour), 11, 3, "Bob", "Ng", "paid", "NextSong", "Elena", "Setanta matins"},
		{t0.Add(2 * time.Hour), 12, 4, "Ann", "Lee", "paid", "Home", "", ""},
	})
	require.NoError(t, err)
	_, err = wh.CopyFrom(ctx, schema.StagingSongs, []string{"song_id", "title", "artist_id", "artist_name"}, [][]any{
		{"SOZCTXZ12AB0182364", "Setanta matins", "AR5KOSW1187FB35FF4", "Elena"},
		{"SOMZWCG12A8C13C480", "I Didn't Mean To", "ARD7TVE1187B99BFB1", "Casual"},
	})
	require.NoError(t, err)

	tr := transformer.New(wh, nil)
	_, err = tr.DeriveDimensions(ctx)
	require.NoError(t, err)
	_, err = tr.DeriveFacts(ctx)
	require.NoError(t, err)
	return wh
}

func TestRun_CleanWarehouse(t *testing.T) {
	t.Parallel()

	wh := seeded(t)
	rep, err := New(wh, config.Validation{}, nil).Run(context.Background())
	require.NoError(t, err)
	require.True(t, rep.OK(), "defects: %v", rep.Defects)

	require.Len(t, rep.Queries, 3)
	require.Equal(t, "song_listeners", rep.Queries[0].Name)
	require.Equal(t, [][]any{{"Aleena", "Kirby"}, {"Bob", "Ng"}}, rep.Queries[0].Rows)

	require.Equal(t, "paid_users", rep.Queries[1].Name)
	require.Equal(t, [][]any{{"Aleena", "Kirby"}, {"Bob", "Ng"}}, rep.Queries[1].Rows)

	require.Equal(t, "last_access", rep.Queries[2].Name)
	require.Equal(t, [][]any{{"2-11-2018"}}, rep.Queries[2].Rows)

	require.Len(t, rep.Counts, 7)
	c, ok := rep.Count(schema.StagingEvents)
	require.True(t, ok)
	require.EqualValues(t, 4, c.Rows)
	c, _ = rep.Count(schema.Songplays)
	require.EqualValues(t, 3, c.Rows)
	require.EqualValues(t, 3, c.Distinct)
	c, _ = rep.Count(schema.Users)
	require.EqualValues(t, 2, c.Rows)
}

func TestRun_ConfiguredLookups(t *testing.T) {
	t.Parallel()

	wh := seeded(t)
	rep, err := New(wh, config.Validation{SongTitle: "I Didn't Mean To", UserFirstName: "Bob"}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][]any{{"Aleena", "Kirby"}}, rep.Queries[0].Rows)
	require.Equal(t, [][]any{{"1-11-2018"}}, rep.Queries[2].Rows)
}

func TestRun_ReportsDuplicatesAndOrphans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	wh := seeded(t)

	// Staging keys are not enforced, so a repeated event lands.
	_, err := wh.CopyFrom(ctx, schema.StagingEvents, []string{"ts", "user_id", "session_id"}, [][]any{{t0, 10, 1}})
	require.NoError(t, err)

	_, err = wh.Exec(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = wh.Exec(ctx, `INSERT INTO songplays (start_time, user_id, song_id, artist_id, session_id) VALUES ('2018-11-30 00:00:00.000', 99, 'SOZCTXZ12AB0182364', 'AR5KOSW1187FB35FF4', 9)`)
	require.NoError(t, err)

	rep, err := New(wh, config.Validation{}, nil).Run(ctx)
	require.NoError(t, err, "defects are not errors")
	require.False(t, rep.OK())
	require.ElementsMatch(t, []Defect{
		{Kind: DuplicateKey, Table: schema.StagingEvents, Count: 1},
		{Kind: Orphan, Table: schema.Songplays, Ref: schema.Time, Count: 1},
		{Kind: Orphan, Table: schema.Songplays, Ref: schema.Users, Count: 1},
	}, rep.Defects)
	require.Equal(t, "songplays: 1 rows reference a missing users row", rep.Defects[2].String())
}

func TestSQLRendering(t *testing.T) {
	t.Parallel()

	d := dialect.Redshift{}
	require.Equal(t, `SELECT count(DISTINCT "user_id") FROM "users"`, DistinctSQL(d, schema.MustTable(schema.Users)))
	require.Equal(t, `SELECT count(*) FROM (SELECT DISTINCT "ts", "user_id", "session_id" FROM "staging_events") k`,
		DistinctSQL(d, schema.MustTable(schema.StagingEvents)))

	sp := schema.MustTable(schema.Songplays)
	require.Equal(t,
		`SELECT count(*) FROM "songplays" c LEFT JOIN "time" r ON r."start_time" = c."start_time" WHERE r."start_time" IS NULL AND c."start_time" IS NOT NULL`,
		OrphanSQL(d, sp, sp.ForeignKeys[0]))
}

func TestLookupSQL_Dialects(t *testing.T) {
	t.Parallel()

	v := New(nil, config.Validation{}, nil)
	render := func(d dialect.Dialect) map[string]string {
		out := map[string]string{}
		for _, l := range v.lookups() {
			out[l.name] = l.sql(d)
		}
		return out
	}

	pg := render(dialect.Postgres{})
	require.Contains(t, pg["song_listeners"], `WHERE s."title" = $1`)
	require.True(t, strings.HasSuffix(pg["paid_users"], "\nLIMIT 10"), pg["paid_users"])
	require.Contains(t, pg["last_access"], `CAST(t."day" AS VARCHAR) || '-' || CAST(t."month" AS VARCHAR)`)
	require.Contains(t, pg["last_access"], `JOIN "time" t ON t."start_time" = sp."start_time"`)

	ms := render(dialect.MSSQL{})
	require.True(t, strings.HasPrefix(ms["paid_users"], "SELECT TOP 10 [first_name], [last_name] FROM [users]"), ms["paid_users"])
	require.NotContains(t, ms["paid_users"], "LIMIT")
	require.True(t, strings.HasPrefix(ms["last_access"], "SELECT TOP 1 CONCAT(t.[day], '-', t.[month], '-', t.[year]) AS last_access_date"), ms["last_access"])
	require.Contains(t, ms["last_access"], "WHERE u.[first_name] = @p1")

	my := render(dialect.MySQL{})
	require.Contains(t, my["song_listeners"], "JOIN `songs` s ON s.`song_id` = sp.`song_id`")
	require.True(t, strings.HasSuffix(my["last_access"], "ORDER BY sp.`start_time` DESC\nLIMIT 1"), my["last_access"])
}
