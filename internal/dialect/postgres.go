package dialect

import (
	"fmt"
	"strings"

	"dwh/internal/ddl"
)

// Postgres targets PostgreSQL. It enforces constraints and has no native
// object-storage reader, so loads stream rows through COPY FROM STDIN.
type Postgres struct{ ansi }

func (Postgres) Name() string { return "postgres" }

func (Postgres) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "TEXT"
	case ddl.Int:
		return "INTEGER"
	case ddl.BigInt:
		return "BIGINT"
	case ddl.Decimal:
		return "DOUBLE PRECISION"
	case ddl.Timestamp:
		return "TIMESTAMP"
	}
	return strings.ToUpper(string(t))
}

func (Postgres) IdentityType(ddl.TableDef, ddl.ColumnDef) string {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY"
}

func (Postgres) NativeRowID() bool         { return false }
func (Postgres) EnforcesConstraints() bool { return true }
func (Postgres) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }

func (Postgres) RowID(t ddl.TableDef) string { return columnRowID(t) }

func (d Postgres) CreateTable(t ddl.TableDef) ([]string, error) { return createSingle(t, d) }

func (d Postgres) DropTable(t ddl.TableDef) []string {
	return []string{ddl.BuildDropTableSQL(t, d)}
}
