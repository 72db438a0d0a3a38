package rules

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// ReasonReconciled is the skip reason for the reconciliation guard. Callers
// assert on it, so the wording is part of the contract.
const ReasonReconciled = "Transaction is reconciled"

// TransactionStore is the slice of the persistence layer the applicator
// needs: a compare-and-swap transaction update plus best-effort rule usage
// telemetry.
type TransactionStore interface {
	UpdateTransaction(ctx context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error)
	IncrementRuleUsage(ctx context.Context, ruleID string, usedAt time.Time) error
}

// ApplyOptions controls the applicator's guards and side effects.
type ApplyOptions struct {
	// OverrideReviewed lets a rule re-fire on an already-reviewed transaction.
	OverrideReviewed bool
	// MarkReviewed sets isReviewed on successful application.
	MarkReviewed bool
}

// ApplicationResult is the structured outcome for one transaction. Skips are
// outcomes, not errors.
type ApplicationResult struct {
	TransactionID      string `json:"transactionId"`
	Applied            bool   `json:"applied"`
	MatchedRuleID      string `json:"matchedRule,omitempty"`
	PreviousCategoryID string `json:"previousCategoryId,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// BatchResult aggregates per-transaction outcomes.
type BatchResult struct {
	TotalTransactions int                 `json:"totalTransactions"`
	AppliedCount      int                 `json:"appliedCount"`
	SkippedCount      int                 `json:"skippedCount"`
	ErrorCount        int                 `json:"errorCount"`
	Results           []ApplicationResult `json:"results"`
}

// Applicator resolves the best rule for a transaction and applies its
// effects through the store.
type Applicator struct {
	engine *Engine
	store  TransactionStore
}

// NewApplicator creates an applicator over an engine and a store.
func NewApplicator(engine *Engine, store TransactionStore) *Applicator {
	return &Applicator{engine: engine, store: store}
}

// Apply runs the engine against one transaction and persists the effect.
//
// Guards: a reconciled transaction is never modified; a reviewed transaction
// is skipped unless OverrideReviewed. On application the category allocation
// becomes a single line covering the full amount (an existing split
// collapses), the rule's suggested payee overwrites the payee when present,
// and usage counters update best-effort.
//
// The returned error is non-nil only for store failures; guard skips and
// no-match are reported through the result.
func (a *Applicator) Apply(ctx context.Context, txn *domain.Transaction, opts ApplyOptions) (ApplicationResult, error) {
	result := ApplicationResult{TransactionID: txn.ID}

	if txn.Reconciled {
		result.Reason = ReasonReconciled
		return result, nil
	}
	if txn.IsReviewed && !opts.OverrideReviewed {
		result.Reason = "Transaction is already reviewed"
		return result, nil
	}

	rule, ok := a.engine.Match(txn)
	if !ok {
		result.Reason = "No matching rule"
		return result, nil
	}
	result.MatchedRuleID = rule.ID
	result.PreviousCategoryID = txn.CategoryID()

	updated := *txn
	updated.Lines = []domain.TransactionLine{{CategoryID: rule.TargetCategory, Amount: updated.Amount}}
	if rule.SuggestedPayee != "" {
		updated.Payee = rule.SuggestedPayee
	}
	if opts.MarkReviewed {
		updated.IsReviewed = true
	}

	persisted, err := a.store.UpdateTransaction(ctx, updated, txn.UpdatedAt)
	if err != nil {
		result.Reason = fmt.Sprintf("update failed: %v", err)
		return result, err
	}
	*txn = persisted
	result.Applied = true

	// Usage counters are telemetry; a failed increment must not fail the
	// application.
	if err := a.store.IncrementRuleUsage(ctx, rule.ID, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to update usage stats for rule %s: %v\n", rule.ID, err)
	}

	return result, nil
}

// ApplyBatch processes transactions strictly sequentially. Sequential
// processing keeps usage-counter increments lost-update free and bounds load
// on the store. Cancellation is honored between transactions; per-transaction
// store failures are counted and recorded without stopping the batch.
func (a *Applicator) ApplyBatch(ctx context.Context, txns []domain.Transaction, opts ApplyOptions) (BatchResult, error) {
	batch := BatchResult{TotalTransactions: len(txns)}

	for i := range txns {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
		}

		result, err := a.Apply(ctx, &txns[i], opts)
		batch.Results = append(batch.Results, result)
		switch {
		case err != nil:
			batch.ErrorCount++
		case result.Applied:
			batch.AppliedCount++
		default:
			batch.SkippedCount++
		}
	}

	return batch, nil
}
