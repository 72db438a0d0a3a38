package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

type fakeStore struct {
	updated      []domain.Transaction
	updateErr    error
	usageCounts  map[string]int
	usageErr     error
	lastExpected time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{usageCounts: make(map[string]int)}
}

func (s *fakeStore) UpdateTransaction(_ context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error) {
	if s.updateErr != nil {
		return domain.Transaction{}, s.updateErr
	}
	s.lastExpected = expectedUpdatedAt
	txn.UpdatedAt = expectedUpdatedAt.Add(time.Second)
	s.updated = append(s.updated, txn)
	return txn, nil
}

func (s *fakeStore) IncrementRuleUsage(_ context.Context, ruleID string, _ time.Time) error {
	if s.usageErr != nil {
		return s.usageErr
	}
	s.usageCounts[ruleID]++
	return nil
}

func newTestApplicator(t *testing.T, store TransactionStore, ruleSet ...domain.Rule) *Applicator {
	t.Helper()
	if len(ruleSet) == 0 {
		ruleSet = []domain.Rule{mustRule(t, "coffee", "starbucks", domain.MatchTypeContains, "cat-dining", 10)}
	}
	engine, err := NewEngine(ruleSet)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return NewApplicator(engine, store)
}

func TestApply_CategorizesAndSetsPayee(t *testing.T) {
	store := newFakeStore()
	rule := mustRule(t, "coffee", "starbucks", domain.MatchTypeContains, "cat-dining", 10)
	rule.SuggestedPayee = "Starbucks"
	applicator := newTestApplicator(t, store, rule)

	txn := testTxn("POS PURCHASE STARBUCKS #123", -1234, "2024-01-15")
	result, err := applicator.Apply(context.Background(), txn, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !result.Applied {
		t.Fatalf("Apply() not applied, reason = %q", result.Reason)
	}
	if result.MatchedRuleID != "coffee" {
		t.Errorf("MatchedRuleID = %s, want coffee", result.MatchedRuleID)
	}
	if txn.CategoryID() != "cat-dining" {
		t.Errorf("category = %s, want cat-dining", txn.CategoryID())
	}
	if txn.Payee != "Starbucks" {
		t.Errorf("payee = %q, want Starbucks", txn.Payee)
	}
	if store.usageCounts["coffee"] != 1 {
		t.Errorf("usage count = %d, want 1", store.usageCounts["coffee"])
	}
}

func TestApply_CollapsesSplitToSingleLine(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	txn := testTxn("STARBUCKS", -1000, "2024-01-15")
	txn.Lines = []domain.TransactionLine{
		{CategoryID: "cat-a", Amount: -600},
		{CategoryID: "cat-b", Amount: -400},
	}

	result, err := applicator.Apply(context.Background(), txn, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !result.Applied {
		t.Fatalf("Apply() not applied, reason = %q", result.Reason)
	}
	if result.PreviousCategoryID != "cat-a" {
		t.Errorf("PreviousCategoryID = %s, want cat-a", result.PreviousCategoryID)
	}
	if len(txn.Lines) != 1 {
		t.Fatalf("lines = %d, want 1 (split must collapse)", len(txn.Lines))
	}
	if txn.Lines[0].Amount != txn.Amount {
		t.Errorf("line amount = %d, want full amount %d", txn.Lines[0].Amount, txn.Amount)
	}
}

func TestApply_ReconciledGuard(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	txn := testTxn("STARBUCKS", -1000, "2024-01-15")
	txn.Reconciled = true
	txn.Lines = []domain.TransactionLine{{CategoryID: "cat-old", Amount: -1000}}

	result, err := applicator.Apply(context.Background(), txn, ApplyOptions{OverrideReviewed: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Applied {
		t.Error("reconciled transaction must never be modified")
	}
	if result.Reason != ReasonReconciled {
		t.Errorf("reason = %q, want %q", result.Reason, ReasonReconciled)
	}
	if txn.CategoryID() != "cat-old" {
		t.Errorf("category changed to %s; reconciled transaction must be untouched", txn.CategoryID())
	}
	if len(store.updated) != 0 {
		t.Error("store must not be called for a reconciled transaction")
	}
}

func TestApply_ReviewedGuardAndOverride(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	txn := testTxn("STARBUCKS", -1000, "2024-01-15")
	txn.IsReviewed = true

	result, err := applicator.Apply(context.Background(), txn, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Applied {
		t.Error("reviewed transaction skipped by default")
	}

	result, err = applicator.Apply(context.Background(), txn, ApplyOptions{OverrideReviewed: true})
	if err != nil {
		t.Fatalf("Apply() with override error = %v", err)
	}
	if !result.Applied {
		t.Errorf("OverrideReviewed should apply; reason = %q", result.Reason)
	}
}

func TestApply_MarkReviewed(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	txn := testTxn("STARBUCKS", -1000, "2024-01-15")
	if _, err := applicator.Apply(context.Background(), txn, ApplyOptions{MarkReviewed: true}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !txn.IsReviewed {
		t.Error("MarkReviewed should set isReviewed")
	}
}

func TestApply_NoMatch(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	result, err := applicator.Apply(context.Background(), testTxn("WHOLE FOODS", -1000, "2024-01-15"), ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Applied {
		t.Error("no rule should match")
	}
	if result.Reason != "No matching rule" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestApply_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("backend unavailable")
	applicator := newTestApplicator(t, store)

	txn := testTxn("STARBUCKS", -1000, "2024-01-15")
	result, err := applicator.Apply(context.Background(), txn, ApplyOptions{})
	if err == nil {
		t.Fatal("Apply() expected store error")
	}
	if result.Applied {
		t.Error("failed update must not report applied")
	}
}

func TestApply_UsageIncrementFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	store.usageErr = errors.New("counter write failed")
	applicator := newTestApplicator(t, store)

	result, err := applicator.Apply(context.Background(), testTxn("STARBUCKS", -1000, "2024-01-15"), ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v; usage failure must be best-effort", err)
	}
	if !result.Applied {
		t.Errorf("Apply() not applied, reason = %q", result.Reason)
	}
}

func TestApplyBatch_Aggregation(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	reconciled := *testTxn("STARBUCKS", -500, "2024-01-16")
	reconciled.ID = "txn-2"
	reconciled.Reconciled = true
	noMatch := *testTxn("WHOLE FOODS", -2000, "2024-01-17")
	noMatch.ID = "txn-3"

	txns := []domain.Transaction{
		*testTxn("STARBUCKS #123", -1234, "2024-01-15"),
		reconciled,
		noMatch,
	}

	batch, err := applicator.ApplyBatch(context.Background(), txns, ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}
	if batch.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", batch.TotalTransactions)
	}
	if batch.AppliedCount != 1 {
		t.Errorf("AppliedCount = %d, want 1", batch.AppliedCount)
	}
	if batch.SkippedCount != 2 {
		t.Errorf("SkippedCount = %d, want 2", batch.SkippedCount)
	}
	if batch.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", batch.ErrorCount)
	}
	if len(batch.Results) != 3 {
		t.Errorf("Results = %d, want 3", len(batch.Results))
	}
}

func TestApplyBatch_ErrorsDoNotStopBatch(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("backend unavailable")
	applicator := newTestApplicator(t, store)

	txns := []domain.Transaction{
		*testTxn("STARBUCKS", -1000, "2024-01-15"),
		*testTxn("STARBUCKS", -2000, "2024-01-16"),
	}

	batch, err := applicator.ApplyBatch(context.Background(), txns, ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v; per-transaction failures must not abort", err)
	}
	if batch.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", batch.ErrorCount)
	}
}

func TestApplyBatch_Cancellation(t *testing.T) {
	store := newFakeStore()
	applicator := newTestApplicator(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	txns := []domain.Transaction{*testTxn("STARBUCKS", -1000, "2024-01-15")}
	batch, err := applicator.ApplyBatch(ctx, txns, ApplyOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ApplyBatch() error = %v, want context.Canceled", err)
	}
	if len(batch.Results) != 0 {
		t.Errorf("Results = %d, want 0 after immediate cancel", len(batch.Results))
	}
}
