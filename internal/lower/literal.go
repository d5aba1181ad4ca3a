package lower

import (
	"strconv"
	"strings"
)

// quoteString renders a text literal: single-quoted, internal quotes
// doubled. Both dialects share this form.
func quoteString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// quoteIdent renders a user identifier: double-quoted, internal double
// quotes doubled. The internal columns value, key and vals are written
// bare where the lowering names them, but field access on a grouped row
// resolves key and vals like any record field, so those reads do quote.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// formatNumber renders a numeric literal as canonical decimal text, never
// scientific notation.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
