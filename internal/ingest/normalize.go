// Package ingest turns raw statement rows into canonical staged transactions.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// NormalizeRow maps one raw tabular row through a CSV mapping into a staged
// transaction. Failures never drop the row: the staged transaction carries
// IsValid=false and the reasons, so the user can see what was rejected. Only
// valid rows continue to classification and commit.
func NormalizeRow(row map[string]string, m domain.CsvMapping) domain.StagedTransaction {
	staged := domain.StagedTransaction{IsValid: true}

	fail := func(format string, args ...interface{}) {
		staged.IsValid = false
		staged.Errors = append(staged.Errors, fmt.Sprintf(format, args...))
	}

	// Date. A missing mapped column is always a validation failure, never a
	// silent default.
	rawDate, ok := row[m.DateColumn]
	if !ok {
		fail("missing date column %q", m.DateColumn)
	} else {
		layout, err := DateLayout(m.DateFormat)
		if err != nil {
			fail("bad date format: %v", err)
		} else if t, err := time.Parse(layout, strings.TrimSpace(rawDate)); err != nil {
			fail("unparseable date %q (format %s)", rawDate, m.DateFormat)
		} else {
			staged.Date = t.Format("2006-01-02")
		}
	}

	// Description.
	rawDesc, ok := row[m.DescriptionColumn]
	if !ok {
		fail("missing description column %q", m.DescriptionColumn)
	} else {
		staged.Description = strings.TrimSpace(rawDesc)
		if staged.Description == "" {
			fail("empty description")
		}
	}

	// Amount.
	switch m.AmountMode {
	case domain.AmountModeSigned:
		rawAmount, ok := row[m.AmountColumn]
		if !ok {
			fail("missing amount column %q", m.AmountColumn)
			break
		}
		cents, err := ParseCents(rawAmount)
		if err != nil {
			fail("unparseable amount %q: %v", rawAmount, err)
			break
		}
		staged.Amount = cents

	case domain.AmountModeSeparate:
		inflow, inOK := row[m.InflowColumn]
		outflow, outOK := row[m.OutflowColumn]
		if !inOK {
			fail("missing inflow column %q", m.InflowColumn)
		}
		if !outOK {
			fail("missing outflow column %q", m.OutflowColumn)
		}
		if !inOK || !outOK {
			break
		}

		inCents, err := parseOptionalCents(inflow)
		if err != nil {
			fail("unparseable inflow %q: %v", inflow, err)
			break
		}
		outCents, err := parseOptionalCents(outflow)
		if err != nil {
			fail("unparseable outflow %q: %v", outflow, err)
			break
		}

		// Exactly one side may carry the row's value.
		switch {
		case inCents != 0 && outCents != 0:
			fail("row has both inflow (%d) and outflow (%d)", inCents, outCents)
		case inCents == 0 && outCents == 0:
			fail("row has neither inflow nor outflow")
		case inCents != 0:
			staged.Amount = inCents
		default:
			staged.Amount = -outCents
		}

	default:
		fail("invalid amountMode %q", m.AmountMode)
	}

	return staged
}

// NormalizeRows stages every row of an export in order.
func NormalizeRows(rows []map[string]string, m domain.CsvMapping) []domain.StagedTransaction {
	staged := make([]domain.StagedTransaction, 0, len(rows))
	for _, row := range rows {
		staged = append(staged, NormalizeRow(row, m))
	}
	return staged
}

// parseOptionalCents treats blank cells as zero; separate-mode exports leave
// the unused side empty.
func parseOptionalCents(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return ParseCents(s)
}
