// Package dialect captures the SQL differences between the warehouse engines
// the pipeline can target. A Dialect renders DDL (via ddl.Flavor), date-part
// extraction, bind placeholders and row identities; engines that can pull
// objects from storage themselves additionally implement ServerCopier.
// Ordering, row limits and text concatenation go through the helpers in
// render.go, which dialects override with optional interfaces.
package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"dwh/internal/ddl"
)

// DateField names a component extracted from a timestamp.
type DateField string

const (
	Hour    DateField = "hour"
	Day     DateField = "day"
	Week    DateField = "week" // ISO week
	Month   DateField = "month"
	Year    DateField = "year"
	Weekday DateField = "weekday" // 0 = Sunday
)

// Dialect is the engine-specific SQL surface used by every component.
type Dialect interface {
	ddl.Flavor

	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// DatePart renders an integer-valued extraction of field from expr.
	DatePart(field DateField, expr string) string
	// BindValue converts a Go value into the form the driver should bind.
	BindValue(v any) any
	// RowID returns the expression identifying physical rows of t.
	RowID(t ddl.TableDef) string
	// CreateTable returns the statements creating t, in order.
	CreateTable(t ddl.TableDef) ([]string, error)
	// DropTable returns the statements dropping t, in order.
	DropTable(t ddl.TableDef) []string
}

var (
	mu       sync.RWMutex
	dialects = map[string]Dialect{}
)

// Register makes d available under name. Later registrations replace earlier ones.
func Register(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
	return d, nil
}

// Names lists registered dialects in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dialects))
	for n := range dialects {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("redshift", Redshift{})
	Register("postgres", Postgres{})
	Register("sqlite", SQLite{})
	Register("duckdb", DuckDB{})
	Register("mssql", MSSQL{})
	Register("mysql", MySQL{})
}

// QuoteIdent double-quotes id, doubling embedded quotes.
func QuoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// QuoteLiteral single-quotes s, doubling embedded quotes.
func QuoteLiteral(s string) string { return `'` + strings.ReplaceAll(s, `'`, `''`) + `'` }

// QuoteList quotes each identifier in cols with d and joins them.
func QuoteList(d Dialect, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.QuoteIdent(c)
	}
	return strings.Join(out, ", ")
}

// ansi carries the parts shared by the engines that speak EXTRACT and
// double-quoted identifiers.
type ansi struct{}

func (ansi) QuoteIdent(name string) string { return QuoteIdent(name) }

func (ansi) DatePart(field DateField, expr string) string {
	f := string(field)
	if field == Weekday {
		f = "dow"
	}
	return fmt.Sprintf("CAST(EXTRACT(%s FROM %s) AS INTEGER)", f, expr)
}

func (ansi) BindValue(v any) any { return v }

func (ansi) TableSuffix(ddl.TableDef) string { return "" }

// columnRowID uses the declared row id column.
func columnRowID(t ddl.TableDef) string { return QuoteIdent(t.RowID) }

// nativeRowID uses the engine's rowid pseudo-column for surrogate row ids.
func nativeRowID(t ddl.TableDef) string {
	if c, ok := t.Column(t.RowID); ok && !c.Surrogate {
		return QuoteIdent(t.RowID)
	}
	return "rowid"
}

func createSingle(t ddl.TableDef, f ddl.Flavor) ([]string, error) {
	stmt, err := ddl.BuildCreateTableSQL(t, f)
	if err != nil {
		return nil, err
	}
	return []string{stmt}, nil
}
