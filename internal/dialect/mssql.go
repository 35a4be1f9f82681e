package dialect

import (
	"fmt"
	"strings"
	"time"

	"dwh/internal/ddl"
)

// MSSQL targets Microsoft SQL Server. Identifiers are bracket-quoted, CREATE
// TABLE is guarded by OBJECT_ID and loads use the client bulk copy API.
type MSSQL struct{}

var (
	_ ddl.CreateGuard = MSSQL{}
	_ ddl.KeyTyper    = MSSQL{}
	_ NullOrderer     = MSSQL{}
	_ TopLimiter      = MSSQL{}
	_ Concatenator    = MSSQL{}
	_ WindowOrderer   = MSSQL{}
)

// MSSQLIdent brackets id, doubling embedded closing brackets.
func MSSQLIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func (MSSQL) Name() string                  { return "mssql" }
func (MSSQL) QuoteIdent(name string) string { return MSSQLIdent(name) }

func (MSSQL) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "NVARCHAR(MAX)"
	case ddl.Int:
		return "INT"
	case ddl.BigInt:
		return "BIGINT"
	case ddl.Decimal:
		return "FLOAT"
	case ddl.Timestamp:
		return "DATETIME2(3)"
	}
	return strings.ToUpper(string(t))
}

// KeyColumnType bounds text keys to the 900-byte index key limit.
func (d MSSQL) KeyColumnType(t ddl.Type) string {
	if t == ddl.Text {
		return "NVARCHAR(450)"
	}
	return d.ColumnType(t)
}

func (MSSQL) IdentityType(ddl.TableDef, ddl.ColumnDef) string { return "BIGINT IDENTITY(1,1)" }
func (MSSQL) NativeRowID() bool                               { return false }
func (MSSQL) EnforcesConstraints() bool                       { return true }
func (MSSQL) TableSuffix(ddl.TableDef) string                 { return "" }
func (MSSQL) Placeholder(n int) string                        { return fmt.Sprintf("@p%d", n) }

var mssqlParts = map[DateField]string{
	Hour:  "hour",
	Day:   "day",
	Week:  "iso_week",
	Month: "month",
	Year:  "year",
}

func (MSSQL) DatePart(field DateField, expr string) string {
	if field == Weekday {
		return fmt.Sprintf("((DATEPART(weekday, %s) + @@DATEFIRST - 1) %% 7)", expr)
	}
	return fmt.Sprintf("DATEPART(%s, %s)", mssqlParts[field], expr)
}

func (MSSQL) BindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func (MSSQL) RowID(t ddl.TableDef) string { return MSSQLIdent(t.RowID) }

func (MSSQL) GuardCreate(t ddl.TableDef, create string) string {
	return fmt.Sprintf("IF OBJECT_ID(N%s, N'U') IS NULL\nBEGIN\n%s;\nEND;",
		QuoteLiteral(MSSQLIdent(t.Name)), create)
}

func (d MSSQL) CreateTable(t ddl.TableDef) ([]string, error) { return createSingle(t, d) }

func (d MSSQL) DropTable(t ddl.TableDef) []string {
	return []string{ddl.BuildDropTableSQL(t, d)}
}

// OrderNullsLast relies on NULL sorting lowest.
func (MSSQL) OrderNullsLast(expr string, desc bool) string { return nullsLastLow(expr, desc) }

func (MSSQL) TopLimit() bool { return true }

func (MSSQL) Concat(parts ...string) string { return "CONCAT(" + strings.Join(parts, ", ") + ")" }

func (MSSQL) ArbitraryOrder() string { return "(SELECT NULL)" }

// nullsLastLow orders expr with NULLs last on engines where NULL sorts
// below every value.
func nullsLastLow(expr string, desc bool) string {
	if desc {
		return expr + " DESC"
	}
	return fmt.Sprintf("CASE WHEN %s IS NULL THEN 1 ELSE 0 END, %s ASC", expr, expr)
}
