// Package store persists transactions, import batches, rules, and payees.
// Three implementations share one contract: Firestore for production, SQLite
// for local single-file ledgers, and an in-memory store for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentEdit is returned when an update's expected timestamp no
	// longer matches the stored entity.
	ErrConcurrentEdit = errors.New("transaction was modified by another session")

	// ErrBatchReconciled is returned when an undo would touch a transaction
	// that has since been reconciled.
	ErrBatchReconciled = errors.New("batch contains reconciled transactions")
)

// CommitResult reports what an atomic batch commit persisted.
type CommitResult struct {
	BatchID        string   `json:"batchId"`
	TransactionIDs []string `json:"transactionIds"`
}

// UndoResult reports the outcome of a batch undo.
type UndoResult struct {
	BatchID       string `json:"batchId"`
	ReversedCount int    `json:"reversedCount"`
	// AlreadyUndone is true when the batch was undone before this call;
	// the call is then a no-op.
	AlreadyUndone bool `json:"alreadyUndone"`
}

// Store is the persistence contract for the import pipeline.
//
// CommitBatch is all-or-nothing: the batch record and every transaction are
// written in a single atomic operation or not at all. UndoBatch is idempotent
// and refuses to reverse a batch containing reconciled transactions.
// UpdateTransaction is a compare-and-swap on updatedAt and returns
// ErrConcurrentEdit on mismatch.
type Store interface {
	// FingerprintsByAccount returns fingerprint → transaction ID for every
	// non-archived transaction of the account.
	FingerprintsByAccount(ctx context.Context, accountID string) (map[string]string, error)

	// TransactionsInRange returns the account's transactions with dates in
	// [startDate, endDate], inclusive, both YYYY-MM-DD.
	TransactionsInRange(ctx context.Context, accountID, startDate, endDate string) ([]domain.Transaction, error)

	CommitBatch(ctx context.Context, batch domain.ImportBatch, txns []domain.Transaction) (CommitResult, error)
	GetBatch(ctx context.Context, batchID string) (domain.ImportBatch, error)
	UndoBatch(ctx context.Context, batchID string) (UndoResult, error)

	UpdateTransaction(ctx context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error)
	IncrementRuleUsage(ctx context.Context, ruleID string, usedAt time.Time) error

	ListRules(ctx context.Context) ([]domain.Rule, error)
	ListPayees(ctx context.Context) ([]domain.Payee, error)

	Close() error
}
