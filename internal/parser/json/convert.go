package json

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"dwh/internal/ddl"
)

// EpochMillis interprets timestamp fields as milliseconds since the epoch.
const EpochMillis = "epochmillisecs"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Convert coerces a decoded JSON value to the Go value bound for a column of
// type t. Blank and empty strings become nil. A value that cannot be
// represented in the column type is an error.
func Convert(v any, t ddl.Type, timeFormat string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		return convertString(x, t, timeFormat)
	case json.Number:
		return convertNumber(x, t, timeFormat)
	case float64:
		return convertNumber(json.Number(strconv.FormatFloat(x, 'f', -1, 64)), t, timeFormat)
	case int64:
		return convertNumber(json.Number(strconv.FormatInt(x, 10)), t, timeFormat)
	case int:
		return convertNumber(json.Number(strconv.Itoa(x)), t, timeFormat)
	case bool:
		switch t {
		case ddl.Text:
			return strconv.FormatBool(x), nil
		case ddl.Int, ddl.BigInt:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return nil, fmt.Errorf("cannot load boolean into %s column", t)
	case map[string]any, []any:
		if t != ddl.Text {
			return nil, fmt.Errorf("cannot load nested JSON into %s column", t)
		}
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

func convertString(s string, t ddl.Type, timeFormat string) (any, error) {
	switch t {
	case ddl.Text:
		return s, nil
	case ddl.Int, ddl.BigInt, ddl.Decimal:
		return convertNumber(json.Number(strings.TrimSpace(s)), t, timeFormat)
	case ddl.Timestamp:
		s = strings.TrimSpace(s)
		if timeFormat == EpochMillis {
			return convertNumber(json.Number(s), t, timeFormat)
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("invalid timestamp %q", s)
	}
	return nil, fmt.Errorf("unknown column type %q", t)
}

func convertNumber(n json.Number, t ddl.Type, timeFormat string) (any, error) {
	switch t {
	case ddl.Text:
		return n.String(), nil
	case ddl.Int, ddl.BigInt:
		return wholeNumber(n)
	case ddl.Decimal:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q", n)
		}
		return f, nil
	case ddl.Timestamp:
		if timeFormat != EpochMillis {
			return nil, fmt.Errorf("numeric timestamp %q without epoch time format", n)
		}
		ms, err := wholeNumber(n)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return nil, fmt.Errorf("unknown column type %q", t)
}

// wholeNumber accepts integers and floats without a fractional part, so
// 1541105830796.0 and "39" both load into integer columns.
func wholeNumber(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid integer %q", n)
	}
	return int64(f), nil
}

// RowMapper turns decoded objects into rows aligned with a table's insert
// columns.
type RowMapper struct {
	cols       []ddl.ColumnDef
	mapping    Mapping
	timeFormat string
	autoIndex  map[string]int
}

// NewRowMapper checks that a JSONPaths mapping covers exactly cols.
func NewRowMapper(cols []ddl.ColumnDef, m Mapping, timeFormat string) (*RowMapper, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("row mapper: no columns")
	}
	if !m.Auto && len(m.Paths) != len(cols) {
		return nil, fmt.Errorf("row mapper: jsonpaths has %d entries, table has %d columns", len(m.Paths), len(cols))
	}
	rm := &RowMapper{cols: cols, mapping: m, timeFormat: timeFormat}
	if m.Auto {
		rm.autoIndex = make(map[string]int, len(cols))
		for i, c := range cols {
			rm.autoIndex[autoKey(c.Name)] = i
		}
	}
	return rm, nil
}

// Columns returns the column names rows are aligned with.
func (rm *RowMapper) Columns() []string {
	out := make([]string, len(rm.cols))
	for i, c := range rm.cols {
		out[i] = c.Name
	}
	return out
}

// Map converts obj into a row. Missing fields load as NULL.
func (rm *RowMapper) Map(obj map[string]any) ([]any, error) {
	row := make([]any, len(rm.cols))
	if rm.mapping.Auto {
		for k, v := range obj {
			i, ok := rm.autoIndex[autoKey(k)]
			if !ok {
				continue
			}
			cv, err := Convert(v, rm.cols[i].Type, rm.timeFormat)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", rm.cols[i].Name, err)
			}
			row[i] = cv
		}
		return row, nil
	}
	for i, p := range rm.mapping.Paths {
		v, ok := p.Lookup(obj)
		if !ok {
			continue
		}
		cv, err := Convert(v, rm.cols[i].Type, rm.timeFormat)
		if err != nil {
			return nil, fmt.Errorf("column %s (%s): %w", rm.cols[i].Name, p.Expr, err)
		}
		row[i] = cv
	}
	return row, nil
}
