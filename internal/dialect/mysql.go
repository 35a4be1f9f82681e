package dialect

import (
	"fmt"
	"strings"
	"time"

	"dwh/internal/ddl"
)

// MySQL targets MySQL 8 on InnoDB. Identifiers are backtick-quoted, text
// keys are bounded VARCHARs and loads use multi-row INSERTs.
type MySQL struct{}

var (
	_ ddl.KeyTyper        = MySQL{}
	_ ddl.IdentityIndexer = MySQL{}
	_ NullOrderer         = MySQL{}
	_ Concatenator        = MySQL{}
)

// MySQLIdent backtick-quotes id, doubling embedded backticks.
func MySQLIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func (MySQL) Name() string                  { return "mysql" }
func (MySQL) QuoteIdent(name string) string { return MySQLIdent(name) }

func (MySQL) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "TEXT"
	case ddl.Int:
		return "INT"
	case ddl.BigInt:
		return "BIGINT"
	case ddl.Decimal:
		return "DOUBLE"
	case ddl.Timestamp:
		return "DATETIME(3)"
	}
	return strings.ToUpper(string(t))
}

// KeyColumnType keeps text keys within InnoDB's index prefix limit.
func (d MySQL) KeyColumnType(t ddl.Type) string {
	if t == ddl.Text {
		return "VARCHAR(255)"
	}
	return d.ColumnType(t)
}

func (MySQL) IdentityType(ddl.TableDef, ddl.ColumnDef) string { return "BIGINT AUTO_INCREMENT" }
func (MySQL) IndexIdentity() bool                             { return true }
func (MySQL) NativeRowID() bool                               { return false }
func (MySQL) EnforcesConstraints() bool                       { return true }
func (MySQL) Placeholder(int) string                          { return "?" }

func (MySQL) TableSuffix(ddl.TableDef) string {
	return "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
}

func (MySQL) DatePart(field DateField, expr string) string {
	switch field {
	case Hour:
		return fmt.Sprintf("HOUR(%s)", expr)
	case Day:
		return fmt.Sprintf("DAYOFMONTH(%s)", expr)
	case Week:
		return fmt.Sprintf("WEEK(%s, 3)", expr)
	case Month:
		return fmt.Sprintf("MONTH(%s)", expr)
	case Year:
		return fmt.Sprintf("YEAR(%s)", expr)
	}
	return fmt.Sprintf("(DAYOFWEEK(%s) - 1)", expr)
}

func (MySQL) BindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func (MySQL) RowID(t ddl.TableDef) string { return MySQLIdent(t.RowID) }

func (d MySQL) CreateTable(t ddl.TableDef) ([]string, error) { return createSingle(t, d) }

func (d MySQL) DropTable(t ddl.TableDef) []string {
	return []string{ddl.BuildDropTableSQL(t, d)}
}

func (MySQL) OrderNullsLast(expr string, desc bool) string { return nullsLastLow(expr, desc) }

func (MySQL) Concat(parts ...string) string { return "CONCAT(" + strings.Join(parts, ", ") + ")" }
