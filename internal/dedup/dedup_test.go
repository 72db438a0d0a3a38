package dedup

import (
	"testing"
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
	"github.com/thetrev68/papas-books-sub000/internal/fingerprint"
)

func processed(date string, amount int64, desc string) domain.ProcessedTransaction {
	return domain.ProcessedTransaction{
		StagedTransaction: domain.StagedTransaction{
			Date:        date,
			Amount:      amount,
			Description: desc,
			IsValid:     true,
		},
		Fingerprint: fingerprint.Generate(date, amount, desc),
	}
}

func TestDetectExact(t *testing.T) {
	known := processed("2024-01-15", -1234, "POS PURCHASE STARBUCKS #123")
	fresh := processed("2024-01-16", -5600, "SHELL OIL 4417")

	existing := map[string]string{known.Fingerprint: "txn-42"}

	got := DetectExact([]domain.ProcessedTransaction{known, fresh}, existing)

	if got[0].Status != domain.StatusDuplicate {
		t.Errorf("known status = %q, want duplicate", got[0].Status)
	}
	if got[0].MatchedTransactionID != "txn-42" {
		t.Errorf("known match id = %q, want txn-42", got[0].MatchedTransactionID)
	}
	if got[1].Status != domain.StatusNew {
		t.Errorf("fresh status = %q, want new", got[1].Status)
	}
	if got[1].MatchedTransactionID != "" {
		t.Errorf("fresh match id = %q, want empty", got[1].MatchedTransactionID)
	}
}

func TestDetectExact_InvalidRowsExcluded(t *testing.T) {
	invalid := domain.ProcessedTransaction{
		StagedTransaction: domain.StagedTransaction{
			IsValid: false,
			Errors:  []string{"unparseable date"},
		},
	}

	got := DetectExact([]domain.ProcessedTransaction{invalid}, map[string]string{})
	if got[0].Status != "" {
		t.Errorf("invalid row status = %q, want unclassified", got[0].Status)
	}
}

func TestDetectExact_ReimportAllDuplicates(t *testing.T) {
	// Importing the same file twice: the second pass classifies 100% duplicate.
	batch := []domain.ProcessedTransaction{
		processed("2024-01-15", -1234, "POS PURCHASE STARBUCKS #123"),
		processed("2024-01-16", -5600, "SHELL OIL 4417"),
		processed("2024-01-17", 250000, "DIRECT DEPOSIT PAYROLL"),
	}

	existing := make(map[string]string)
	for i, txn := range batch {
		existing[txn.Fingerprint] = time.Now().Add(time.Duration(i)).String()
	}

	for i, txn := range DetectExact(batch, existing) {
		if txn.Status != domain.StatusDuplicate {
			t.Errorf("row %d status = %q, want duplicate", i, txn.Status)
		}
	}
}

func existingTxn(id, date string, amount int64, desc string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		AccountID:   "acct-1",
		Date:        date,
		Amount:      amount,
		Description: desc,
	}
}

func TestMatchFuzzy(t *testing.T) {
	existing := []domain.Transaction{
		existingTxn("txn-1", "2024-01-14", -1234, "STARBUCKS STORE #123 SEATTLE"),
		existingTxn("txn-2", "2024-01-20", -9900, "NETFLIX.COM"),
	}

	tests := []struct {
		name       string
		candidate  domain.ProcessedTransaction
		wantStatus domain.ImportStatus
		wantMatch  string
	}{
		{
			name:       "date drift within window",
			candidate:  withStatus(processed("2024-01-15", -1234, "STARBUCKS STORE #123"), domain.StatusNew),
			wantStatus: domain.StatusFuzzyDuplicate,
			wantMatch:  "txn-1",
		},
		{
			name:       "amount differs",
			candidate:  withStatus(processed("2024-01-15", -1235, "STARBUCKS STORE #123"), domain.StatusNew),
			wantStatus: domain.StatusNew,
		},
		{
			name:       "outside date window",
			candidate:  withStatus(processed("2024-01-25", -1234, "STARBUCKS STORE #123"), domain.StatusNew),
			wantStatus: domain.StatusNew,
		},
		{
			name:       "dissimilar description",
			candidate:  withStatus(processed("2024-01-14", -1234, "WHOLE FOODS MARKET"), domain.StatusNew),
			wantStatus: domain.StatusNew,
		},
		{
			name:       "exact duplicates skip the fuzzy pass",
			candidate:  withStatus(processed("2024-01-14", -1234, "STARBUCKS STORE #123 SEATTLE"), domain.StatusDuplicate),
			wantStatus: domain.StatusDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchFuzzy([]domain.ProcessedTransaction{tt.candidate}, existing, Config{})
			if got[0].Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got[0].Status, tt.wantStatus)
			}
			if tt.wantMatch != "" && got[0].MatchedTransactionID != tt.wantMatch {
				t.Errorf("match id = %q, want %q", got[0].MatchedTransactionID, tt.wantMatch)
			}
		})
	}
}

func TestMatchFuzzy_ArchivedExcluded(t *testing.T) {
	archived := existingTxn("txn-1", "2024-01-15", -1234, "STARBUCKS STORE #123")
	archived.IsArchived = true

	candidate := withStatus(processed("2024-01-15", -1234, "STARBUCKS STORE #123"), domain.StatusNew)

	got := MatchFuzzy([]domain.ProcessedTransaction{candidate}, []domain.Transaction{archived}, Config{})
	if got[0].Status != domain.StatusNew {
		t.Errorf("status = %q, want new (archived candidates excluded)", got[0].Status)
	}
}

func TestMatchFuzzy_BestMatchWins(t *testing.T) {
	existing := []domain.Transaction{
		existingTxn("weak", "2024-01-14", -1234, "STARBUCKS COFFEE COMPANY CARD PURCHASE"),
		existingTxn("strong", "2024-01-14", -1234, "STARBUCKS STORE #123"),
	}
	candidate := withStatus(processed("2024-01-15", -1234, "STARBUCKS STORE #123"), domain.StatusNew)

	got := MatchFuzzy([]domain.ProcessedTransaction{candidate}, existing, Config{})
	if got[0].MatchedTransactionID != "strong" {
		t.Errorf("match id = %q, want strong", got[0].MatchedTransactionID)
	}
}

func TestWithinWindow(t *testing.T) {
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		b    time.Time
		days int
		want bool
	}{
		{"same day", base, 3, true},
		{"three days later", base.AddDate(0, 0, 3), 3, true},
		{"three days earlier", base.AddDate(0, 0, -3), 3, true},
		{"four days later", base.AddDate(0, 0, 4), 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinWindow(base, tt.b, tt.days); got != tt.want {
				t.Errorf("withinWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func withStatus(txn domain.ProcessedTransaction, status domain.ImportStatus) domain.ProcessedTransaction {
	txn.Status = status
	return txn
}
