package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCents parses a decimal amount string into signed integer cents without
// going through floating point. Accepts an optional leading sign, currency
// symbol, thousands separators, and accounting-style parenthesized negatives.
// Fractions beyond two decimal places round half away from zero.
func ParseCents(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	if s == "" {
		return 0, fmt.Errorf("invalid amount %q", orig)
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
		if strings.ContainsRune(fracPart, '.') {
			return 0, fmt.Errorf("invalid amount %q: multiple decimal points", orig)
		}
		// A bare "." carries no digits at all.
		if intPart == "" && fracPart == "" {
			return 0, fmt.Errorf("invalid amount %q", orig)
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, fmt.Errorf("invalid amount %q", orig)
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", orig, err)
	}

	// Take two fractional digits, then round half away from zero on the third.
	padded := fracPart + "00"
	frac, err := strconv.ParseInt(padded[:2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", orig, err)
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	cents := whole*100 + frac
	if negative {
		cents = -cents
	}
	return cents, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
