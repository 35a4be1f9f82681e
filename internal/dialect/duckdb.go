package dialect

import (
	"fmt"
	"strings"

	"dwh/internal/ddl"
	jsonparser "dwh/internal/parser/json"
)

// DuckDB targets an embedded DuckDB database. Generated columns are backed
// by sequences, surrogate row ids use the rowid pseudo-column, and loads scan
// objects directly with read_ndjson_objects (httpfs for s3:// locations).
type DuckDB struct{ ansi }

var (
	_ ServerCopier = DuckDB{}
	_ InlineMapper = DuckDB{}
)

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "VARCHAR"
	case ddl.Int:
		return "INTEGER"
	case ddl.BigInt:
		return "BIGINT"
	case ddl.Decimal:
		return "DOUBLE"
	case ddl.Timestamp:
		return "TIMESTAMP"
	}
	return strings.ToUpper(string(t))
}

func sequenceName(t ddl.TableDef, c ddl.ColumnDef) string {
	return t.Name + "_" + c.Name + "_seq"
}

func (DuckDB) IdentityType(t ddl.TableDef, c ddl.ColumnDef) string {
	return fmt.Sprintf("BIGINT DEFAULT nextval(%s)", QuoteLiteral(sequenceName(t, c)))
}

func (DuckDB) InlineMapping() bool       { return true }
func (DuckDB) NativeRowID() bool         { return true }
func (DuckDB) EnforcesConstraints() bool { return true }
func (DuckDB) Placeholder(int) string    { return "?" }

func (DuckDB) RowID(t ddl.TableDef) string { return nativeRowID(t) }

// identities returns the generated columns that need a backing sequence.
func (d DuckDB) identities(t ddl.TableDef) []ddl.ColumnDef {
	var out []ddl.ColumnDef
	for _, c := range t.Columns {
		if c.Identity && !(c.Surrogate && d.NativeRowID()) {
			out = append(out, c)
		}
	}
	return out
}

func (d DuckDB) CreateTable(t ddl.TableDef) ([]string, error) {
	var stmts []string
	for _, c := range d.identities(t) {
		stmts = append(stmts, "CREATE SEQUENCE IF NOT EXISTS "+d.QuoteIdent(sequenceName(t, c)))
	}
	create, err := ddl.BuildCreateTableSQL(t, d)
	if err != nil {
		return nil, err
	}
	return append(stmts, create), nil
}

func (d DuckDB) DropTable(t ddl.TableDef) []string {
	stmts := []string{ddl.BuildDropTableSQL(t, d)}
	for _, c := range d.identities(t) {
		stmts = append(stmts, "DROP SEQUENCE IF EXISTS "+d.QuoteIdent(sequenceName(t, c)))
	}
	return stmts
}

// ScanGlob turns a source prefix into a glob matching every JSON object
// beneath it. Sources that already name a file or glob are returned as is.
func ScanGlob(source string) string {
	if strings.ContainsAny(source, "*?[") || strings.HasSuffix(source, ".json") {
		return source
	}
	return strings.TrimRight(source, "/") + "/**/*.json"
}

// CopySQL renders an INSERT ... SELECT over read_ndjson_objects. Each column
// is extracted by its JSONPaths expression (or its own name with auto),
// blank strings become NULL and values are cast to the column type.
func (d DuckDB) CopySQL(spec CopySpec) (string, error) {
	if strings.TrimSpace(spec.Source) == "" {
		return "", fmt.Errorf("duckdb: copy %s: source must not be empty", spec.Table.Name)
	}
	cols := spec.Table.InsertColumns()
	if !spec.Auto() && len(spec.Mapping.Paths) != len(cols) {
		return "", fmt.Errorf("duckdb: copy %s: jsonpaths has %d entries, table has %d columns",
			spec.Table.Name, len(spec.Mapping.Paths), len(cols))
	}

	exprs := make([]string, len(cols))
	for i, c := range cols {
		path := jsonparser.Path{Segments: []jsonparser.Segment{{Key: c.Name}}}
		if !spec.Auto() {
			path = spec.Mapping.Paths[i]
		}
		exprs[i] = d.extract(c, duckPath(path), spec.TimeFormat)
	}

	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM read_ndjson_objects(%s)",
		d.QuoteIdent(spec.Table.Name),
		QuoteList(d, spec.Table.InsertColumnNames()),
		strings.Join(exprs, ",\n       "),
		QuoteLiteral(ScanGlob(spec.Source))), nil
}

func (d DuckDB) extract(c ddl.ColumnDef, path, timeFormat string) string {
	raw := fmt.Sprintf("json_extract_string(json, %s)", QuoteLiteral(path))
	v := fmt.Sprintf("CASE WHEN trim(%s) = '' THEN NULL ELSE %s END", raw, raw)
	switch c.Type {
	case ddl.Text:
		return v
	case ddl.Timestamp:
		if timeFormat == TimeFormatEpochMillis {
			return fmt.Sprintf("epoch_ms(CAST(%s AS BIGINT))", v)
		}
		return fmt.Sprintf("CAST(%s AS TIMESTAMP)", v)
	default:
		return fmt.Sprintf("CAST(%s AS %s)", v, d.ColumnType(c.Type))
	}
}

// duckPath renders p in DuckDB JSON path syntax with every key quoted.
func duckPath(p jsonparser.Path) string {
	var sb strings.Builder
	sb.WriteByte('$')
	for _, s := range p.Segments {
		if s.IsIndex {
			fmt.Fprintf(&sb, "[%d]", s.Index)
			continue
		}
		sb.WriteString(`."`)
		sb.WriteString(strings.ReplaceAll(s.Key, `"`, `\"`))
		sb.WriteByte('"')
	}
	return sb.String()
}
