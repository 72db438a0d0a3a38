package ingest

import (
	"fmt"
	"strings"
)

// DateLayout converts a mapping-style date format ("yyyy-MM-dd", "M/d/yy")
// into a Go reference layout. Mapping configs use the column-mapping token
// vocabulary rather than Go's reference date because that is what the stored
// per-account configs contain.
func DateLayout(format string) (string, error) {
	if strings.TrimSpace(format) == "" {
		return "", fmt.Errorf("date format cannot be empty")
	}

	var b strings.Builder
	hasYear, hasMonth, hasDay := false, false, false

	for i := 0; i < len(format); {
		rest := format[i:]
		switch {
		case strings.HasPrefix(rest, "yyyy"):
			b.WriteString("2006")
			hasYear = true
			i += 4
		case strings.HasPrefix(rest, "yy"):
			b.WriteString("06")
			hasYear = true
			i += 2
		case strings.HasPrefix(rest, "MM"):
			b.WriteString("01")
			hasMonth = true
			i += 2
		case rest[0] == 'M':
			b.WriteString("1")
			hasMonth = true
			i++
		case strings.HasPrefix(rest, "dd"):
			b.WriteString("02")
			hasDay = true
			i += 2
		case rest[0] == 'd':
			b.WriteString("2")
			hasDay = true
			i++
		default:
			b.WriteByte(format[i])
			i++
		}
	}

	if !hasYear || !hasMonth || !hasDay {
		return "", fmt.Errorf("date format %q must contain year, month, and day tokens", format)
	}
	return b.String(), nil
}
