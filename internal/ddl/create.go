// Package ddl defines a small, dialect-neutral model for warehouse tables and
// renders CREATE/DROP statements from that model through a Flavor.
//
// The model carries more than column lists: natural keys, foreign keys,
// row-identity columns and distribution hints all live on TableDef so that a
// single declaration drives DDL, load ordering and deduplication.
//
// Rendering rules that depend on the engine (identifier quoting, type
// names, identity columns, whether constraints are enforced) are delegated to
// the Flavor. Everything else is fixed here so that every dialect emits the
// same statement shape.
package ddl

import (
	"fmt"
	"slices"
	"strings"
)

// Flavor is the engine-specific part of DDL rendering.
type Flavor interface {
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// ColumnType maps a logical type to the engine's SQL type.
	ColumnType(t Type) string
	// IdentityType renders the type clause of a generated column.
	IdentityType(t TableDef, c ColumnDef) string
	// NativeRowID reports whether the engine exposes a physical row id, in
	// which case surrogate columns are not materialized.
	NativeRowID() bool
	// EnforcesConstraints reports whether UNIQUE/PRIMARY KEY are enforced.
	EnforcesConstraints() bool
	// TableSuffix returns text appended after the closing parenthesis.
	TableSuffix(t TableDef) string
}

// CreateGuard is implemented by flavors without CREATE TABLE IF NOT EXISTS.
// GuardCreate wraps a plain CREATE TABLE so it does nothing when t exists.
type CreateGuard interface {
	GuardCreate(t TableDef, create string) string
}

// KeyTyper is implemented by flavors whose unbounded types cannot be
// indexed. Key columns (primary, natural or foreign keys) use KeyColumnType.
type KeyTyper interface {
	KeyColumnType(t Type) string
}

// IdentityIndexer is implemented by flavors that require every generated
// column to lead an index. Identity columns outside the primary key get a
// UNIQUE constraint of their own.
type IdentityIndexer interface {
	IndexIdentity() bool
}

// BuildCreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement.
//
// Rules:
//
//   - t.Name must be non-empty and at least one column must be rendered.
//
//   - A column is rendered as:
//
//     <name> <type> [DEFAULT <Default>] [NOT NULL]
//
//   - Surrogate columns are skipped when the flavor has a native row id.
//
//   - The natural key (Unique) is rendered unless the engine enforces
//     constraints and the table is a staging table, or the key equals the
//     primary key.
//
//   - Foreign keys are always rendered. Engines that do not enforce them
//     treat them as planner hints.
//
//   - Flavors implementing CreateGuard, KeyTyper or IdentityIndexer adjust
//     the statement head, key column types and identity indexes.
func BuildCreateTableSQL(t TableDef, f Flavor) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: table %s: at least one column is required", name)
	}

	keys := keyColumns(t)
	kt, _ := f.(KeyTyper)
	parts := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+3)
	var indexed []string
	for _, c := range t.Columns {
		cname := strings.TrimSpace(c.Name)
		if cname == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", name)
		}
		if c.Surrogate && f.NativeRowID() {
			continue
		}

		var typ string
		switch {
		case c.Identity:
			typ = f.IdentityType(t, c)
			if len(t.PrimaryKey) == 0 || t.PrimaryKey[0] != c.Name {
				indexed = append(indexed, c.Name)
			}
		case c.Type == "":
			return "", fmt.Errorf("ddl: column %s.%s missing type", name, cname)
		case kt != nil && keys[c.Name]:
			typ = kt.KeyColumnType(c.Type)
		default:
			typ = f.ColumnType(c.Type)
		}

		var sb strings.Builder
		sb.WriteString(f.QuoteIdent(cname))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		parts = append(parts, sb.String())
	}

	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(f, t.PrimaryKey)))
	}
	if renderUnique(t, f) {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", quoteList(f, t.Unique)))
	}
	if ii, ok := f.(IdentityIndexer); ok && ii.IndexIdentity() {
		for _, c := range indexed {
			parts = append(parts, fmt.Sprintf("UNIQUE (%s)", f.QuoteIdent(c)))
		}
	}
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) {
			return "", fmt.Errorf("ddl: table %s: malformed foreign key to %s", name, fk.RefTable)
		}
		parts = append(parts, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteList(f, fk.Columns), f.QuoteIdent(fk.RefTable), quoteList(f, fk.RefColumns)))
	}

	guard, guarded := f.(CreateGuard)
	head := "CREATE TABLE IF NOT EXISTS "
	if guarded {
		head = "CREATE TABLE "
	}
	stmt := fmt.Sprintf("%s%s (\n  %s\n)", head, f.QuoteIdent(name), strings.Join(parts, ",\n  "))
	if sfx := strings.TrimSpace(f.TableSuffix(t)); sfx != "" {
		stmt += " " + sfx
	}
	if guarded {
		stmt = guard.GuardCreate(t, stmt)
	}
	return stmt, nil
}

// BuildDropTableSQL renders DROP TABLE IF EXISTS for t.
func BuildDropTableSQL(t TableDef, f Flavor) string {
	return "DROP TABLE IF EXISTS " + f.QuoteIdent(t.Name)
}

func renderUnique(t TableDef, f Flavor) bool {
	if len(t.Unique) == 0 {
		return false
	}
	if !f.EnforcesConstraints() {
		return true
	}
	return !t.Staging && !slices.Equal(t.Unique, t.PrimaryKey)
}

// keyColumns returns the columns taking part in any key of t.
func keyColumns(t TableDef) map[string]bool {
	out := map[string]bool{}
	for _, c := range t.PrimaryKey {
		out[c] = true
	}
	for _, c := range t.Unique {
		out[c] = true
	}
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			out[c] = true
		}
	}
	return out
}

func quoteList(f Flavor, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = f.QuoteIdent(c)
	}
	return strings.Join(out, ", ")
}
