// Package schema declares the warehouse tables and manages their lifecycle.
// One declaration per table drives DDL for every dialect, the create/drop
// order, the load column lists and the dedup keys.
package schema

import (
	"fmt"
	"slices"

	"dwh/internal/ddl"
)

// Table names.
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
	Songplays     = "songplays"
)

func col(name string, t ddl.Type) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, Type: t, Nullable: true}
}

func key(name string, t ddl.Type) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, Type: t}
}

// rowID is the surrogate identity used by dedup sweeps on engines without a
// native row id.
func rowID() ddl.ColumnDef {
	return ddl.ColumnDef{Name: "row_id", Type: ddl.BigInt, Identity: true, Surrogate: true}
}

var tables = []ddl.TableDef{
	{
		Name: StagingEvents,
		// Column order matches the JSONPaths document for the event log.
		Columns: []ddl.ColumnDef{
			rowID(),
			col("artist", ddl.Text),
			col("auth", ddl.Text),
			col("first_name", ddl.Text),
			col("gender", ddl.Text),
			col("item_in_session", ddl.Int),
			col("last_name", ddl.Text),
			col("length", ddl.Decimal),
			col("level", ddl.Text),
			col("location", ddl.Text),
			col("method", ddl.Text),
			col("page", ddl.Text),
			col("registration", ddl.Text),
			col("session_id", ddl.Int),
			col("song", ddl.Text),
			col("status", ddl.Int),
			col("ts", ddl.Timestamp),
			col("user_agent", ddl.Text),
			col("user_id", ddl.Int),
		},
		Unique:  []string{"ts", "user_id", "session_id"},
		RowID:   "row_id",
		Staging: true,
	},
	{
		Name: StagingSongs,
		Columns: []ddl.ColumnDef{
			rowID(),
			col("num_songs", ddl.Int),
			col("artist_id", ddl.Text),
			col("artist_latitude", ddl.Decimal),
			col("artist_longitude", ddl.Decimal),
			col("artist_location", ddl.Text),
			col("artist_name", ddl.Text),
			col("song_id", ddl.Text),
			col("title", ddl.Text),
			col("duration", ddl.Decimal),
			col("year", ddl.Int),
		},
		Unique:  []string{"artist_id", "song_id"},
		RowID:   "row_id",
		Staging: true,
	},
	{
		Name: Users,
		Columns: []ddl.ColumnDef{
			rowID(),
			key("user_id", ddl.Int),
			col("first_name", ddl.Text),
			col("last_name", ddl.Text),
			col("gender", ddl.Text),
			col("level", ddl.Text),
		},
		PrimaryKey: []string{"user_id"},
		Unique:     []string{"user_id"},
		RowID:      "row_id",
		DistKey:    "user_id",
		SortKey:    []string{"user_id"},
	},
	{
		Name: Songs,
		Columns: []ddl.ColumnDef{
			rowID(),
			key("song_id", ddl.Text),
			col("title", ddl.Text),
			col("artist_id", ddl.Text),
			col("year", ddl.Int),
			col("duration", ddl.Decimal),
		},
		PrimaryKey: []string{"song_id"},
		Unique:     []string{"song_id"},
		RowID:      "row_id",
		DistKey:    "song_id",
		SortKey:    []string{"song_id"},
	},
	{
		Name: Artists,
		Columns: []ddl.ColumnDef{
			rowID(),
			key("artist_id", ddl.Text),
			col("name", ddl.Text),
			col("location", ddl.Text),
			col("latitude", ddl.Decimal),
			col("longitude", ddl.Decimal),
		},
		PrimaryKey: []string{"artist_id"},
		Unique:     []string{"artist_id"},
		RowID:      "row_id",
		DistKey:    "artist_id",
		SortKey:    []string{"artist_id"},
	},
	{
		Name: Time,
		Columns: []ddl.ColumnDef{
			rowID(),
			key("start_time", ddl.Timestamp),
			col("hour", ddl.Int),
			col("day", ddl.Int),
			col("week", ddl.Int),
			col("month", ddl.Int),
			col("year", ddl.Int),
			col("weekday", ddl.Int),
		},
		PrimaryKey: []string{"start_time"},
		Unique:     []string{"start_time"},
		RowID:      "row_id",
		DistKey:    "start_time",
		SortKey:    []string{"start_time"},
	},
	{
		Name: Songplays,
		Columns: []ddl.ColumnDef{
			{Name: "songplay_id", Type: ddl.BigInt, Identity: true},
			key("start_time", ddl.Timestamp),
			key("user_id", ddl.Int),
			col("level", ddl.Text),
			key("song_id", ddl.Text),
			key("artist_id", ddl.Text),
			key("session_id", ddl.Int),
			col("location", ddl.Text),
			col("user_agent", ddl.Text),
		},
		PrimaryKey: []string{"songplay_id"},
		Unique:     []string{"start_time", "user_id", "session_id"},
		ForeignKeys: []ddl.ForeignKey{
			{Columns: []string{"start_time"}, RefTable: Time, RefColumns: []string{"start_time"}},
			{Columns: []string{"user_id"}, RefTable: Users, RefColumns: []string{"user_id"}},
			{Columns: []string{"song_id"}, RefTable: Songs, RefColumns: []string{"song_id"}},
			{Columns: []string{"artist_id"}, RefTable: Artists, RefColumns: []string{"artist_id"}},
		},
		RowID:   "songplay_id",
		DistKey: "user_id",
		SortKey: []string{"start_time"},
	},
}

// Tables returns every table in declaration order. The slice is a copy.
func Tables() []ddl.TableDef { return slices.Clone(tables) }

// Table returns the definition of name.
func Table(name string) (ddl.TableDef, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return ddl.TableDef{}, false
}

// MustTable is Table for names known at compile time.
func MustTable(name string) ddl.TableDef {
	t, ok := Table(name)
	if !ok {
		panic("schema: unknown table " + name)
	}
	return t
}

// CreateOrder sorts ts so every table follows the tables it references.
// Ties keep their input order. It fails on references to tables outside ts
// and on cycles.
func CreateOrder(ts []ddl.TableDef) ([]ddl.TableDef, error) {
	index := make(map[string]int, len(ts))
	for i, t := range ts {
		if _, dup := index[t.Name]; dup {
			return nil, fmt.Errorf("schema: table %s declared twice", t.Name)
		}
		index[t.Name] = i
	}

	indegree := make([]int, len(ts))
	dependents := make([][]int, len(ts))
	for i, t := range ts {
		for _, ref := range t.References() {
			j, ok := index[ref]
			if !ok {
				return nil, fmt.Errorf("schema: table %s references unknown table %s", t.Name, ref)
			}
			if j == i {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	out := make([]ddl.TableDef, 0, len(ts))
	done := make([]bool, len(ts))
	for len(out) < len(ts) {
		// Lowest ready index first keeps the order stable.
		next := -1
		for i := range ts {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, t := range ts {
				if !done[i] {
					stuck = append(stuck, t.Name)
				}
			}
			return nil, fmt.Errorf("schema: foreign key cycle among %v", stuck)
		}
		done[next] = true
		out = append(out, ts[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return out, nil
}

// DropOrder is CreateOrder reversed, so referencing tables go first.
func DropOrder(ts []ddl.TableDef) ([]ddl.TableDef, error) {
	out, err := CreateOrder(ts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
