package json

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Segment is one step of a JSONPath: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed JSONPath expression such as $['artist'] or $.a[0].
type Path struct {
	Expr     string
	Segments []Segment
}

// Mapping maps staging columns to JSON values. With Auto, keys are matched
// to column names; otherwise Paths[i] feeds the i-th column.
type Mapping struct {
	Auto  bool
	Paths []Path
}

// AutoMapping matches keys to column names.
var AutoMapping = Mapping{Auto: true}

// ParseJSONPaths reads a JSONPaths document:
//
//	{"jsonpaths": ["$['artist']", "$['auth']", ...]}
func ParseJSONPaths(r io.Reader) (Mapping, error) {
	var doc struct {
		JSONPaths []string `json:"jsonpaths"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Mapping{}, fmt.Errorf("jsonpaths: decode: %w", err)
	}
	if len(doc.JSONPaths) == 0 {
		return Mapping{}, fmt.Errorf("jsonpaths: document has no \"jsonpaths\" entries")
	}
	m := Mapping{Paths: make([]Path, 0, len(doc.JSONPaths))}
	for i, expr := range doc.JSONPaths {
		p, err := ParsePath(expr)
		if err != nil {
			return Mapping{}, fmt.Errorf("jsonpaths[%d]: %w", i, err)
		}
		m.Paths = append(m.Paths, p)
	}
	return m, nil
}

// ParsePath parses the bracket and dot notation subset of JSONPath that
// warehouse COPY accepts. Wildcards and filters are rejected.
func ParsePath(expr string) (Path, error) {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, "$") {
		return Path{}, fmt.Errorf("path %q must start with $", expr)
	}
	p := Path{Expr: expr}
	i := 1
	for i < len(s) {
		switch s[i] {
		case '.':
			j := i + 1
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			key := s[i+1 : j]
			if key == "" || key == "*" {
				return Path{}, fmt.Errorf("path %q: empty or wildcard key at offset %d", expr, i)
			}
			p.Segments = append(p.Segments, Segment{Key: key})
			i = j
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("path %q: unterminated [", expr)
			}
			inner := strings.TrimSpace(s[i+1 : i+end])
			if n := len(inner); n >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[n-1] == inner[0] {
				p.Segments = append(p.Segments, Segment{Key: inner[1 : n-1]})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil || idx < 0 {
					return Path{}, fmt.Errorf("path %q: invalid subscript %q", expr, inner)
				}
				p.Segments = append(p.Segments, Segment{Index: idx, IsIndex: true})
			}
			i += end + 1
		default:
			return Path{}, fmt.Errorf("path %q: unexpected %q at offset %d", expr, s[i], i)
		}
	}
	if len(p.Segments) == 0 {
		return Path{}, fmt.Errorf("path %q selects the whole object", expr)
	}
	return p, nil
}

// Lookup walks obj along p. Missing keys and out-of-range indexes report
// false.
func (p Path) Lookup(obj map[string]any) (any, bool) {
	var cur any = obj
	for _, s := range p.Segments {
		if s.IsIndex {
			arr, ok := cur.([]any)
			if !ok || s.Index >= len(arr) {
				return nil, false
			}
			cur = arr[s.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// autoKey normalizes a key for auto matching. Only case is ignored, as with
// Redshift's 'auto': "firstName" does not match column first_name.
func autoKey(s string) string {
	return strings.ToLower(s)
}
