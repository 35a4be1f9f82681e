package dialect

import (
	"fmt"
	"strings"

	"dwh/internal/ddl"
)

// Redshift targets Amazon Redshift. Constraints are informational only, so
// natural keys are declared everywhere and deduplication relies on sweeps.
type Redshift struct{ ansi }

var _ ServerCopier = Redshift{}

func (Redshift) Name() string { return "redshift" }

func (Redshift) ColumnType(t ddl.Type) string {
	switch t {
	case ddl.Text:
		return "VARCHAR(MAX)"
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

func (Redshift) IdentityType(ddl.TableDef, ddl.ColumnDef) string { return "BIGINT IDENTITY(1,1)" }
func (Redshift) NativeRowID() bool                               { return false }
func (Redshift) EnforcesConstraints() bool                       { return false }

func (Redshift) TableSuffix(t ddl.TableDef) string {
	var parts []string
	if t.DistKey != "" {
		parts = append(parts, fmt.Sprintf("DISTKEY (%s)", QuoteIdent(t.DistKey)))
	}
	if len(t.SortKey) > 0 {
		keys := make([]string, len(t.SortKey))
		for i, k := range t.SortKey {
			keys[i] = QuoteIdent(k)
		}
		parts = append(parts, fmt.Sprintf("SORTKEY (%s)", strings.Join(keys, ", ")))
	}
	return strings.Join(parts, " ")
}

func (Redshift) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Redshift) RowID(t ddl.TableDef) string { return columnRowID(t) }

func (d Redshift) CreateTable(t ddl.TableDef) ([]string, error) { return createSingle(t, d) }

func (d Redshift) DropTable(t ddl.TableDef) []string {
	return []string{ddl.BuildDropTableSQL(t, d)}
}

// CopySQL renders a COPY statement that pulls JSON objects from S3:
//
//	COPY t (cols) FROM 's3://...' IAM_ROLE '...' REGION '...'
//	FORMAT AS JSON 'auto'|'s3://jsonpaths' [TIMEFORMAT '...']
//	BLANKSASNULL EMPTYASNULL
func (d Redshift) CopySQL(spec CopySpec) (string, error) {
	if strings.TrimSpace(spec.Source) == "" {
		return "", fmt.Errorf("redshift: copy %s: source must not be empty", spec.Table.Name)
	}
	if strings.TrimSpace(spec.IAMRole) == "" {
		return "", fmt.Errorf("redshift: copy %s: IAM role must not be empty", spec.Table.Name)
	}

	format := "auto"
	if !spec.Auto() {
		format = spec.JSONPaths
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "COPY %s (%s)\nFROM %s\nIAM_ROLE %s\n",
		d.QuoteIdent(spec.Table.Name),
		QuoteList(d, spec.Table.InsertColumnNames()),
		QuoteLiteral(spec.Source),
		QuoteLiteral(spec.IAMRole))
	if spec.Region != "" {
		fmt.Fprintf(&sb, "REGION %s\n", QuoteLiteral(spec.Region))
	}
	fmt.Fprintf(&sb, "FORMAT AS JSON %s\n", QuoteLiteral(format))
	if spec.TimeFormat != "" {
		fmt.Fprintf(&sb, "TIMEFORMAT %s\n", QuoteLiteral(spec.TimeFormat))
	}
	sb.WriteString("BLANKSASNULL EMPTYASNULL")
	return sb.String(), nil
}
