package ddl

import (
	"strings"
	"testing"
)

// testFlavor is a minimal Flavor with switchable capabilities.
type testFlavor struct {
	enforce bool
	native  bool
}

func (testFlavor) QuoteIdent(name string) string { return `"` + name + `"` }
func (testFlavor) ColumnType(t Type) string      { return strings.ToUpper(string(t)) }
func (testFlavor) IdentityType(TableDef, ColumnDef) string {
	return "BIGINT IDENTITY(1,1)"
}
func (f testFlavor) NativeRowID() bool         { return f.native }
func (f testFlavor) EnforcesConstraints() bool { return f.enforce }
func (testFlavor) TableSuffix(t TableDef) string {
	if t.DistKey == "" {
		return ""
	}
	return "DISTKEY (" + t.DistKey + ")"
}

func stagingDef() TableDef {
	return TableDef{
		Name: "staging",
		Columns: []ColumnDef{
			{Name: "row_id", Identity: true, Surrogate: true},
			{Name: "k", Type: Int, Nullable: true},
			{Name: "v", Type: Text, Nullable: true},
		},
		Unique:  []string{"k"},
		RowID:   "row_id",
		Staging: true,
	}
}

// TestBuildCreateTableSQL verifies statement shape and the capability-driven
// rules for surrogate columns and natural keys. Table-driven so each flavor
// combination reads as one case.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		flavor      testFlavor
		wantSQL     string
		wantErr     bool
		errContains string
	}{
		{
			name:        "empty name returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", Type: Int}}},
			wantErr:     true,
			errContains: "table name must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{Name: "t"},
			wantErr:     true,
			errContains: "at least one column is required",
		},
		{
			name:        "column without type returns error",
			def:         TableDef{Name: "t", Columns: []ColumnDef{{Name: "id"}}},
			wantErr:     true,
			errContains: "missing type",
		},
		{
			name:   "staging keeps unique when not enforced",
			def:    stagingDef(),
			flavor: testFlavor{},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"staging\" (\n" +
				"  \"row_id\" BIGINT IDENTITY(1,1) NOT NULL,\n" +
				"  \"k\" INT,\n" +
				"  \"v\" TEXT,\n" +
				"  UNIQUE (\"k\")\n)",
		},
		{
			name:   "staging drops unique and surrogate on enforcing engine with rowid",
			def:    stagingDef(),
			flavor: testFlavor{enforce: true, native: true},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"staging\" (\n" +
				"  \"k\" INT,\n" +
				"  \"v\" TEXT\n)",
		},
		{
			name: "fact with keys and suffix",
			def: TableDef{
				Name: "facts",
				Columns: []ColumnDef{
					{Name: "id", Identity: true},
					{Name: "d", Type: Text, Default: "'x'"},
				},
				PrimaryKey:  []string{"id"},
				Unique:      []string{"d"},
				ForeignKeys: []ForeignKey{{Columns: []string{"d"}, RefTable: "dim", RefColumns: []string{"d"}}},
				DistKey:     "d",
			},
			flavor: testFlavor{enforce: true},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"facts\" (\n" +
				"  \"id\" BIGINT IDENTITY(1,1) NOT NULL,\n" +
				"  \"d\" TEXT DEFAULT 'x' NOT NULL,\n" +
				"  PRIMARY KEY (\"id\"),\n" +
				"  UNIQUE (\"d\"),\n" +
				"  FOREIGN KEY (\"d\") REFERENCES \"dim\" (\"d\")\n) DISTKEY (d)",
		},
		{
			name: "unique equal to primary key is skipped when enforced",
			def: TableDef{
				Name:       "dim",
				Columns:    []ColumnDef{{Name: "d", Type: Text}},
				PrimaryKey: []string{"d"},
				Unique:     []string{"d"},
			},
			flavor:  testFlavor{enforce: true},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"dim\" (\n  \"d\" TEXT NOT NULL,\n  PRIMARY KEY (\"d\")\n)",
		},
		{
			name: "malformed foreign key",
			def: TableDef{
				Name:        "f",
				Columns:     []ColumnDef{{Name: "a", Type: Int}},
				ForeignKeys: []ForeignKey{{Columns: []string{"a"}, RefTable: "x"}},
			},
			wantErr:     true,
			errContains: "malformed foreign key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(tt.def, tt.flavor)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil (sql=%q)", got)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tt.wantSQL)
			}
		})
	}
}

// hookFlavor adds every optional rendering hook to testFlavor.
type hookFlavor struct{ testFlavor }

func (hookFlavor) GuardCreate(t TableDef, create string) string {
	return "IF MISSING " + t.Name + " " + create
}
func (hookFlavor) KeyColumnType(t Type) string { return "KEY_" + strings.ToUpper(string(t)) }
func (hookFlavor) IndexIdentity() bool         { return true }

func TestBuildCreateTableSQL_Hooks(t *testing.T) {
	t.Parallel()

	got, err := BuildCreateTableSQL(stagingDef(), hookFlavor{testFlavor{enforce: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "IF MISSING staging CREATE TABLE \"staging\" (\n" +
		"  \"row_id\" BIGINT IDENTITY(1,1) NOT NULL,\n" +
		"  \"k\" KEY_INT,\n" +
		"  \"v\" TEXT,\n" +
		"  UNIQUE (\"row_id\")\n)"
	if got != want {
		t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, want)
	}

	// An identity leading the primary key is already indexed.
	def := TableDef{
		Name:       "facts",
		Columns:    []ColumnDef{{Name: "id", Identity: true}, {Name: "d", Type: Text}},
		PrimaryKey: []string{"id"},
	}
	got, err = BuildCreateTableSQL(def, hookFlavor{testFlavor{enforce: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "UNIQUE") {
		t.Fatalf("unexpected identity index: %q", got)
	}
}

func TestTableDefHelpers(t *testing.T) {
	t.Parallel()

	def := stagingDef()
	def.ForeignKeys = []ForeignKey{
		{Columns: []string{"k"}, RefTable: "a", RefColumns: []string{"k"}},
		{Columns: []string{"v"}, RefTable: "a", RefColumns: []string{"v"}},
	}

	if got := strings.Join(def.InsertColumnNames(), ","); got != "k,v" {
		t.Fatalf("InsertColumnNames = %q, want k,v", got)
	}
	if got := strings.Join(def.ColumnNames(), ","); got != "row_id,k,v" {
		t.Fatalf("ColumnNames = %q", got)
	}
	if refs := def.References(); len(refs) != 1 || refs[0] != "a" {
		t.Fatalf("References = %v, want [a]", refs)
	}
	if c, ok := def.Column("v"); !ok || c.Type != Text {
		t.Fatalf("Column(v) = %+v, %v", c, ok)
	}
	if _, ok := def.Column("missing"); ok {
		t.Fatal("Column(missing) reported ok")
	}
	if got := BuildDropTableSQL(def, testFlavor{}); got != `DROP TABLE IF EXISTS "staging"` {
		t.Fatalf("drop = %q", got)
	}
}
