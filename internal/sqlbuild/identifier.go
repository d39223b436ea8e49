// Package sqlbuild constructs SQL statements from resolved table/field
// data: deterministic INSERT/UPDATE with identifier whitelisting and value
// quoting, and LLM-assisted SELECT generation with a deterministic
// fallback. Every statement it produces is still subject to
// internal/sqlvalidate before execution.
package sqlbuild

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SafeIdent returns name unchanged and true if it matches
// [A-Za-z_][A-Za-z0-9_]*, else "" and false.
func SafeIdent(name string) (string, bool) {
	if identPattern.MatchString(name) {
		return name, true
	}
	return "", false
}

// SafeValue renders value as a SQL literal: numerics as-is, nil as NULL,
// and anything else as a single-quoted string with its outer quotes
// trimmed and inner single quotes doubled.
func SafeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		text := strings.TrimSpace(fmt.Sprintf("%v", v))
		text = strings.Trim(text, `'"`)
		text = strings.ReplaceAll(text, "'", "''")
		return "'" + text + "'"
	}
}
