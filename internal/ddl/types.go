package ddl

import "slices"

// Type is a logical column type. Dialects map it to a concrete SQL type.
type Type string

const (
	Text      Type = "text"
	Int       Type = "int"
	BigInt    Type = "bigint"
	Decimal   Type = "decimal"
	Timestamp Type = "timestamp"
)

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Type: logical type, mapped by the Flavor
//   - Nullable: whether NULL is allowed
//   - Identity: values are generated by the warehouse on insert
//   - Surrogate: the column only exists to identify physical rows; engines
//     with a native row id may omit it entirely
//   - Default: raw default expression
type ColumnDef struct {
	Name      string
	Type      Type
	Nullable  bool
	Identity  bool
	Surrogate bool
	Default   string
}

// ForeignKey declares that Columns reference RefColumns of table RefTable.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// TableDef holds a table name and its ordered columns plus the key metadata
// used for DDL rendering, load ordering and deduplication.
type TableDef struct {
	Name    string
	Columns []ColumnDef

	// PrimaryKey lists the primary key columns, if any.
	PrimaryKey []string
	// Unique is the natural key. Staging tables declare it but engines that
	// enforce constraints must not, so duplicates can land and be swept.
	Unique      []string
	ForeignKeys []ForeignKey

	// RowID names the column identifying a physical row for dedup sweeps.
	RowID string

	DistKey string
	SortKey []string

	// Staging marks raw landing tables.
	Staging bool
}

// Column returns the column named name.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns every column name in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// InsertColumns returns the columns a writer supplies values for, i.e. all
// columns except generated identities.
func (t TableDef) InsertColumns() []ColumnDef {
	out := make([]ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Identity {
			continue
		}
		out = append(out, c)
	}
	return out
}

// InsertColumnNames is InsertColumns projected to names.
func (t TableDef) InsertColumnNames() []string {
	cols := t.InsertColumns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// References returns the distinct tables this table points at.
func (t TableDef) References() []string {
	var out []string
	for _, fk := range t.ForeignKeys {
		if !slices.Contains(out, fk.RefTable) {
			out = append(out, fk.RefTable)
		}
	}
	return out
}
