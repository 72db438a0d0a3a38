// Package domain defines the core entities of the bookkeeping import pipeline.
package domain

import (
	"fmt"
	"time"
)

// AmountMode selects how the normalizer reads amounts from a statement row.
type AmountMode string

const (
	// AmountModeSigned reads a single signed decimal column.
	AmountModeSigned AmountMode = "signed"
	// AmountModeSeparate reads distinct inflow and outflow columns.
	AmountModeSeparate AmountMode = "separate"
)

// ImportStatus classifies a staged transaction against account history.
// Statuses are mutually exclusive and collectively exhaustive for valid rows.
type ImportStatus string

const (
	StatusNew            ImportStatus = "new"
	StatusDuplicate      ImportStatus = "duplicate"
	StatusFuzzyDuplicate ImportStatus = "fuzzy_duplicate"
)

// CsvMapping describes how a bank's CSV export maps onto transaction fields.
// Persisted per account so a mapping can be reused across imports.
type CsvMapping struct {
	DateColumn        string     `yaml:"dateColumn" firestore:"dateColumn" json:"dateColumn"`
	AmountColumn      string     `yaml:"amountColumn" firestore:"amountColumn" json:"amountColumn"`
	DescriptionColumn string     `yaml:"descriptionColumn" firestore:"descriptionColumn" json:"descriptionColumn"`
	DateFormat        string     `yaml:"dateFormat" firestore:"dateFormat" json:"dateFormat"`
	HasHeaderRow      bool       `yaml:"hasHeaderRow" firestore:"hasHeaderRow" json:"hasHeaderRow"`
	AmountMode        AmountMode `yaml:"amountMode" firestore:"amountMode" json:"amountMode"`
	InflowColumn      string     `yaml:"inflowColumn,omitempty" firestore:"inflowColumn" json:"inflowColumn,omitempty"`
	OutflowColumn     string     `yaml:"outflowColumn,omitempty" firestore:"outflowColumn" json:"outflowColumn,omitempty"`
}

// Validate checks that the mapping names every column its mode requires.
func (m *CsvMapping) Validate() error {
	if m.DateColumn == "" {
		return fmt.Errorf("mapping dateColumn cannot be empty")
	}
	if m.DescriptionColumn == "" {
		return fmt.Errorf("mapping descriptionColumn cannot be empty")
	}
	if m.DateFormat == "" {
		return fmt.Errorf("mapping dateFormat cannot be empty")
	}
	switch m.AmountMode {
	case AmountModeSigned:
		if m.AmountColumn == "" {
			return fmt.Errorf("mapping amountColumn is required in signed mode")
		}
	case AmountModeSeparate:
		if m.InflowColumn == "" || m.OutflowColumn == "" {
			return fmt.Errorf("mapping inflowColumn and outflowColumn are required in separate mode")
		}
	default:
		return fmt.Errorf("invalid amountMode %q (must be %q or %q)", m.AmountMode, AmountModeSigned, AmountModeSeparate)
	}
	return nil
}

// StagedTransaction is a normalized, not-yet-persisted statement row.
// Invalid rows are still staged so the user can see what was rejected;
// they are excluded from classification and commit.
type StagedTransaction struct {
	Date        string // YYYY-MM-DD
	Amount      int64  // signed integer cents
	Description string
	IsValid     bool
	Errors      []string
}

// ProcessedTransaction is a staged transaction after duplicate classification.
type ProcessedTransaction struct {
	StagedTransaction
	Fingerprint string
	Status      ImportStatus
	// MatchedTransactionID is set when Status is duplicate or fuzzy_duplicate.
	MatchedTransactionID string
}

// TransactionLine is one category allocation of a transaction's amount.
// A non-split transaction carries a single line equal to the full amount.
type TransactionLine struct {
	CategoryID string `firestore:"categoryId" json:"categoryId"`
	Amount     int64  `firestore:"amount" json:"amount"`
}

// Transaction is a committed ledger entry.
type Transaction struct {
	ID          string `firestore:"id" json:"id"`
	AccountID   string `firestore:"accountId" json:"accountId"`
	Date        string `firestore:"date" json:"date"` // YYYY-MM-DD
	Amount      int64  `firestore:"amount" json:"amount"`
	Payee       string `firestore:"payee" json:"payee"`
	Description string `firestore:"description" json:"description"`
	Fingerprint string `firestore:"fingerprint" json:"fingerprint"`
	// ImportBatchID links the transaction to the batch that created it, for undo.
	ImportBatchID string            `firestore:"importBatchId" json:"importBatchId"`
	Lines         []TransactionLine `firestore:"lines" json:"lines"`
	IsReviewed    bool              `firestore:"isReviewed" json:"isReviewed"`
	Reconciled    bool              `firestore:"reconciled" json:"reconciled"`
	IsArchived    bool              `firestore:"isArchived" json:"isArchived"`
	UpdatedAt     time.Time         `firestore:"updatedAt" json:"updatedAt"`
}

// Validate checks invariants that must hold for any persisted transaction.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if t.AccountID == "" {
		return fmt.Errorf("transaction accountId cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	if len(t.Fingerprint) != 64 {
		return fmt.Errorf("fingerprint must be a 64-char hex digest, got %d chars", len(t.Fingerprint))
	}
	if len(t.Lines) > 0 {
		var sum int64
		for _, line := range t.Lines {
			sum += line.Amount
		}
		if sum != t.Amount {
			return fmt.Errorf("split lines sum to %d, transaction amount is %d", sum, t.Amount)
		}
	}
	return nil
}

// IsSplit reports whether the transaction has more than one category allocation.
func (t *Transaction) IsSplit() bool {
	return len(t.Lines) > 1
}

// CategoryID returns the single allocation's category, or "" for splits and
// uncategorized transactions.
func (t *Transaction) CategoryID() string {
	if len(t.Lines) == 1 {
		return t.Lines[0].CategoryID
	}
	return ""
}

// ImportBatch is one atomic unit of committed import work.
// Immutable once created except for the undo flag.
type ImportBatch struct {
	ID             string     `firestore:"id" json:"id"`
	AccountID      string     `firestore:"accountId" json:"accountId"`
	FileName       string     `firestore:"fileName" json:"fileName"`
	ImportedAt     time.Time  `firestore:"importedAt" json:"importedAt"`
	TotalRows      int        `firestore:"totalRows" json:"totalRows"`
	ImportedCount  int        `firestore:"importedCount" json:"importedCount"`
	DuplicateCount int        `firestore:"duplicateCount" json:"duplicateCount"`
	ErrorCount     int        `firestore:"errorCount" json:"errorCount"`
	MappingSnap    CsvMapping `firestore:"csvMappingSnapshot" json:"csvMappingSnapshot"`
	IsUndone       bool       `firestore:"isUndone" json:"isUndone"`
}

// Validate checks invariants for a batch record.
func (b *ImportBatch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch ID cannot be empty")
	}
	if b.AccountID == "" {
		return fmt.Errorf("batch accountId cannot be empty")
	}
	if b.TotalRows < 0 || b.ImportedCount < 0 || b.DuplicateCount < 0 || b.ErrorCount < 0 {
		return fmt.Errorf("batch counts cannot be negative")
	}
	return nil
}

// Payee is a known counterparty used by the resolver for exact and fuzzy lookup.
type Payee struct {
	ID                string    `firestore:"id" json:"id"`
	Name              string    `firestore:"name" json:"name"`
	Aliases           []string  `firestore:"aliases" json:"aliases"`
	DefaultCategoryID string    `firestore:"defaultCategoryId" json:"defaultCategoryId"`
	UpdatedAt         time.Time `firestore:"updatedAt" json:"updatedAt"`
}
