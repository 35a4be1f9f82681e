package dialect

import (
	"fmt"
	"strings"
	"time"

	"dwh/internal/ddl"
)

// SQLiteTimeLayout is the text form timestamps are stored in. It sorts
// lexically and is understood by strftime.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000"

// SQLite targets SQLite for local runs and tests. Surrogate row ids map to
// the built-in rowid; an INTEGER primary key becomes a rowid alias and is
// assigned on insert.
type SQLite struct{}

func (SQLite) Name() string                  { return "sqlite" }
func (SQLite) QuoteIdent(name string) string { return QuoteIdent(name) }

func (SQLite) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "TEXT"
	case ddl.Int, ddl.BigInt:
		return "INTEGER"
	case ddl.Decimal:
		return "REAL"
	case ddl.Timestamp:
		return "TIMESTAMP"
	}
	return strings.ToUpper(string(t))
}

func (SQLite) IdentityType(ddl.TableDef, ddl.ColumnDef) string { return "INTEGER" }
func (SQLite) NativeRowID() bool                               { return true }
func (SQLite) EnforcesConstraints() bool                       { return true }
func (SQLite) TableSuffix(ddl.TableDef) string                 { return "" }
func (SQLite) Placeholder(int) string                          { return "?" }

var sqliteFormats = map[DateField]string{
	Hour:    "%H",
	Day:     "%d",
	Week:    "%V",
	Month:   "%m",
	Year:    "%Y",
	Weekday: "%w",
}

func (SQLite) DatePart(field DateField, expr string) string {
	return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", sqliteFormats[field], expr)
}

// BindValue stores timestamps as UTC text in SQLiteTimeLayout so that
// equality, DISTINCT and strftime agree on one representation.
func (SQLite) BindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(SQLiteTimeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(SQLiteTimeLayout)
	}
	return v
}

func (SQLite) RowID(t ddl.TableDef) string { return nativeRowID(t) }

func (d SQLite) CreateTable(t ddl.TableDef) ([]string, error) { return createSingle(t, d) }

func (d SQLite) DropTable(t ddl.TableDef) []string {
	return []string{ddl.BuildDropTableSQL(t, d)}
}
