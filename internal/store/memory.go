package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// Memory is an in-memory Store for tests and dry runs. Commit and undo are
// all-or-nothing under a single lock; CommitErr injects a commit failure so
// callers can exercise the atomicity contract.
type Memory struct {
	mu      sync.Mutex
	txns    map[string]domain.Transaction
	batches map[string]domain.ImportBatch
	rules   map[string]domain.Rule
	payees  map[string]domain.Payee

	// CommitErr, when set, fails the next CommitBatch before any write.
	CommitErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		txns:    make(map[string]domain.Transaction),
		batches: make(map[string]domain.ImportBatch),
		rules:   make(map[string]domain.Rule),
		payees:  make(map[string]domain.Payee),
	}
}

// PutTransaction inserts or replaces a transaction directly, bypassing the
// commit path. Test seeding only.
func (m *Memory) PutTransaction(txn domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[txn.ID] = txn
}

// PutRule inserts or replaces a rule.
func (m *Memory) PutRule(rule domain.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
}

// PutPayee inserts or replaces a payee.
func (m *Memory) PutPayee(p domain.Payee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payees[p.ID] = p
}

// GetTransaction returns a stored transaction by ID.
func (m *Memory) GetTransaction(id string) (domain.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	return txn, ok
}

func (m *Memory) FingerprintsByAccount(_ context.Context, accountID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fps := make(map[string]string)
	for _, txn := range m.txns {
		if txn.AccountID != accountID || txn.IsArchived {
			continue
		}
		fps[txn.Fingerprint] = txn.ID
	}
	return fps, nil
}

func (m *Memory) TransactionsInRange(_ context.Context, accountID, startDate, endDate string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, txn := range m.txns {
		if txn.AccountID != accountID {
			continue
		}
		if txn.Date < startDate || txn.Date > endDate {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (m *Memory) CommitBatch(_ context.Context, batch domain.ImportBatch, txns []domain.Transaction) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		err := m.CommitErr
		m.CommitErr = nil
		return CommitResult{}, err
	}
	if err := batch.Validate(); err != nil {
		return CommitResult{}, err
	}

	now := time.Now()
	result := CommitResult{BatchID: batch.ID}
	staged := make([]domain.Transaction, len(txns))
	for i, txn := range txns {
		if txn.ID == "" {
			txn.ID = uuid.NewString()
		}
		txn.ImportBatchID = batch.ID
		txn.UpdatedAt = now
		if err := txn.Validate(); err != nil {
			return CommitResult{}, err
		}
		staged[i] = txn
		result.TransactionIDs = append(result.TransactionIDs, txn.ID)
	}

	// All validation passed; now write everything.
	m.batches[batch.ID] = batch
	for _, txn := range staged {
		m.txns[txn.ID] = txn
	}
	return result, nil
}

func (m *Memory) GetBatch(_ context.Context, batchID string) (domain.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[batchID]
	if !ok {
		return domain.ImportBatch{}, ErrNotFound
	}
	return batch, nil
}

func (m *Memory) UndoBatch(_ context.Context, batchID string) (UndoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[batchID]
	if !ok {
		return UndoResult{}, ErrNotFound
	}
	if batch.IsUndone {
		return UndoResult{BatchID: batchID, AlreadyUndone: true}, nil
	}

	var members []string
	for id, txn := range m.txns {
		if txn.ImportBatchID != batchID {
			continue
		}
		if txn.Reconciled {
			return UndoResult{}, ErrBatchReconciled
		}
		members = append(members, id)
	}

	now := time.Now()
	for _, id := range members {
		txn := m.txns[id]
		if domain.DeletionPolicyFor(domain.EntityTransaction) == domain.DeleteHard {
			delete(m.txns, id)
			continue
		}
		txn.IsArchived = true
		txn.UpdatedAt = now
		m.txns[id] = txn
	}
	batch.IsUndone = true
	m.batches[batchID] = batch

	return UndoResult{BatchID: batchID, ReversedCount: len(members)}, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.txns[txn.ID]
	if !ok {
		return domain.Transaction{}, ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return domain.Transaction{}, ErrConcurrentEdit
	}
	if err := txn.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	txn.UpdatedAt = time.Now()
	m.txns[txn.ID] = txn
	return txn, nil
}

func (m *Memory) IncrementRuleUsage(_ context.Context, ruleID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[ruleID]
	if !ok {
		return ErrNotFound
	}
	rule.UseCount++
	rule.LastUsedAt = usedAt
	m.rules[ruleID] = rule
	return nil
}

func (m *Memory) ListRules(_ context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		out = append(out, rule)
	}
	// Map iteration order is random per call. Categorization must be
	// reproducible across imports, so always hand rules out in ID order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListPayees(_ context.Context) ([]domain.Payee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Payee, 0, len(m.payees))
	for _, p := range m.payees {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
