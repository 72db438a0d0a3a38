// Package dedup classifies staged transactions against account history, first
// by exact fingerprint membership, then by fuzzy re-import heuristics.
package dedup

import (
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
	"github.com/thetrev68/papas-books-sub000/internal/textmatch"
)

const (
	// DefaultWindowDays bounds the fuzzy date search. Re-imported statements
	// commonly shift a transaction a day or two between the pending and
	// posted snapshots.
	DefaultWindowDays = 3

	// DefaultSimilarityThreshold is the minimum description similarity for a
	// fuzzy duplicate.
	DefaultSimilarityThreshold = 0.7
)

// Config tunes the fuzzy matcher. The zero value selects the defaults.
type Config struct {
	WindowDays          int
	SimilarityThreshold float64
}

func (c Config) withDefaults() Config {
	if c.WindowDays == 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return c
}

// DetectExact classifies each processed transaction against a prefetched
// fingerprint → existing-transaction-id map scoped to the target account.
// A hit is a duplicate; everything else is provisionally new, pending the
// fuzzy pass. Invalid rows are never classified.
func DetectExact(txns []domain.ProcessedTransaction, existing map[string]string) []domain.ProcessedTransaction {
	out := make([]domain.ProcessedTransaction, len(txns))
	for i, txn := range txns {
		if !txn.IsValid {
			out[i] = txn
			continue
		}
		if id, ok := existing[txn.Fingerprint]; ok {
			txn.Status = domain.StatusDuplicate
			txn.MatchedTransactionID = id
		} else {
			txn.Status = domain.StatusNew
		}
		out[i] = txn
	}
	return out
}

// MatchFuzzy flags probable re-imports among transactions the exact pass left
// as new. A candidate matches an existing non-archived transaction when the
// dates fall within the window, the amounts are identical, and the
// descriptions are similar enough. Classification only: neither record is
// merged or mutated, and the final disposition stays a user decision.
func MatchFuzzy(txns []domain.ProcessedTransaction, existing []domain.Transaction, cfg Config) []domain.ProcessedTransaction {
	cfg = cfg.withDefaults()

	out := make([]domain.ProcessedTransaction, len(txns))
	for i, txn := range txns {
		if txn.IsValid && txn.Status == domain.StatusNew {
			if id, ok := findFuzzyMatch(txn, existing, cfg); ok {
				txn.Status = domain.StatusFuzzyDuplicate
				txn.MatchedTransactionID = id
			}
		}
		out[i] = txn
	}
	return out
}

// findFuzzyMatch returns the best-scoring candidate above the threshold.
// Ties keep the first candidate in input order so results are reproducible.
func findFuzzyMatch(txn domain.ProcessedTransaction, existing []domain.Transaction, cfg Config) (string, bool) {
	date, err := time.Parse("2006-01-02", txn.Date)
	if err != nil {
		return "", false
	}

	bestID := ""
	bestScore := 0.0
	for _, candidate := range existing {
		if candidate.IsArchived {
			continue
		}
		if candidate.Amount != txn.Amount {
			continue
		}
		candidateDate, err := time.Parse("2006-01-02", candidate.Date)
		if err != nil {
			continue
		}
		if !withinWindow(date, candidateDate, cfg.WindowDays) {
			continue
		}

		score := textmatch.Similarity(txn.Description, candidate.Description)
		if score >= cfg.SimilarityThreshold && score > bestScore {
			bestScore = score
			bestID = candidate.ID
		}
	}
	return bestID, bestID != ""
}

func withinWindow(a, b time.Time, days int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(days)*24*time.Hour
}
