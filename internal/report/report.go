// Package report prints validation reports and run summaries as text tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dwh/internal/validator"
)

// Printer renders tables to an io.Writer. Counts are grouped by the
// printer's locale.
type Printer struct {
	w io.Writer
	p *message.Printer
}

// New returns a Printer for w using English number formatting.
func New(w io.Writer) *Printer {
	return NewWithLanguage(w, language.English)
}

// NewWithLanguage returns a Printer formatting numbers for tag.
func NewWithLanguage(w io.Writer, tag language.Tag) *Printer {
	return &Printer{w: w, p: message.NewPrinter(tag)}
}

func (pr *Printer) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(pr.w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	t.SetBorder(true)
	t.SetHeader(header)
	return t
}

func (pr *Printer) num(n int64) string { return pr.p.Sprintf("%d", n) }

// Validation prints every section of rep.
func (pr *Printer) Validation(rep *validator.Report) {
	for _, q := range rep.Queries {
		fmt.Fprintf(pr.w, "\n%s\n", q.Title)
		if len(q.Rows) == 0 {
			fmt.Fprintln(pr.w, "  (no rows)")
			continue
		}
		t := pr.table(q.Columns)
		for _, row := range q.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = cell(v)
			}
			t.Append(cells)
		}
		t.Render()
	}

	fmt.Fprintln(pr.w, "\nTable counts")
	t := pr.table([]string{"Table", "Key", "Rows", "Distinct keys", "Duplicates"})
	t.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, c := range rep.Counts {
		t.Append([]string{c.Table, strings.Join(c.Key, ", "), pr.num(c.Rows), pr.num(c.Distinct), pr.num(c.Duplicates())})
	}
	t.Render()

	if rep.OK() {
		fmt.Fprintln(pr.w, "\nNo defects found.")
		return
	}
	fmt.Fprintln(pr.w, "\nDefects")
	t = pr.table([]string{"Kind", "Table", "References", "Rows"})
	for _, d := range rep.Defects {
		t.Append([]string{string(d.Kind), d.Table, d.Ref, pr.num(d.Count)})
	}
	t.Render()
}

// Step is one line of a run summary.
type Step struct {
	Stage    string
	Name     string
	Table    string
	Rows     int64
	Removed  int64
	Duration time.Duration
	Err      error
}

// Summary prints one line per executed step.
func (pr *Printer) Summary(steps []Step) {
	t := pr.table([]string{"Stage", "Step", "Table", "Rows", "Removed", "Duration", "Status"})
	for _, s := range steps {
		status := "ok"
		if s.Err != nil {
			status = "failed"
		}
		t.Append([]string{
			s.Stage, s.Name, s.Table,
			pr.num(s.Rows), pr.num(s.Removed),
			s.Duration.Truncate(time.Millisecond).String(),
			status,
		})
	}
	t.Render()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.000")
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
