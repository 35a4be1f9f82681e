package dialect

import (
	"fmt"
	"strings"
)

// NullOrderer is implemented by dialects without NULLS FIRST/LAST.
type NullOrderer interface {
	OrderNullsLast(expr string, desc bool) string
}

// TopLimiter is implemented by dialects that cap results with SELECT TOP n
// instead of a trailing LIMIT.
type TopLimiter interface {
	TopLimit() bool
}

// Concatenator is implemented by dialects without the || operator.
type Concatenator interface {
	Concat(parts ...string) string
}

// WindowOrderer is implemented by dialects whose row_number() requires an
// ORDER BY even when any order will do.
type WindowOrderer interface {
	ArbitraryOrder() string
}

// NullsLast renders an ORDER BY item for expr that sorts NULLs after every
// value in either direction.
func NullsLast(d Dialect, expr string, desc bool) string {
	if no, ok := d.(NullOrderer); ok {
		return no.OrderNullsLast(expr, desc)
	}
	if desc {
		return expr + " DESC NULLS LAST"
	}
	return expr + " ASC NULLS LAST"
}

// Limit returns the select-list prefix and the trailing clause that cap a
// query at n rows. One of them is always empty.
func Limit(d Dialect, n int) (top, tail string) {
	if tl, ok := d.(TopLimiter); ok && tl.TopLimit() {
		return fmt.Sprintf("TOP %d ", n), ""
	}
	return "", fmt.Sprintf("\nLIMIT %d", n)
}

// JoinText renders exprs as text joined by the literal sep.
func JoinText(d Dialect, sep string, exprs ...string) string {
	lit := QuoteLiteral(sep)
	parts := make([]string, 0, 2*len(exprs))
	for i, e := range exprs {
		if i > 0 {
			parts = append(parts, lit)
		}
		parts = append(parts, e)
	}
	if c, ok := d.(Concatenator); ok {
		return c.Concat(parts...)
	}
	for i := 0; i < len(parts); i += 2 {
		parts[i] = "CAST(" + parts[i] + " AS VARCHAR)"
	}
	return strings.Join(parts, " || ")
}

// ArbitraryOrder returns the ORDER BY list for a row_number() whose order
// does not matter, or "" when the dialect allows omitting it.
func ArbitraryOrder(d Dialect) string {
	if wo, ok := d.(WindowOrderer); ok {
		return wo.ArbitraryOrder()
	}
	return ""
}
