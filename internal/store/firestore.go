package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

const (
	collTransactions = "books-transactions"
	collBatches      = "books-import-batches"
	collRules        = "books-rules"
	collPayees       = "books-payees"
)

// Firestore persists the ledger in Cloud Firestore. Batch commit, undo, and
// transaction updates run inside Firestore transactions so the atomicity and
// compare-and-swap contracts hold under concurrent sessions.
type Firestore struct {
	client    *firestore.Client
	projectID string
}

// NewFirestore creates a Firestore-backed store for a project. credsPath may
// be empty, in which case Application Default Credentials are used.
func NewFirestore(ctx context.Context, projectID, credsPath string) (*Firestore, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Firestore{client: client, projectID: projectID}, nil
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func (s *Firestore) FingerprintsByAccount(ctx context.Context, accountID string) (map[string]string, error) {
	iter := s.client.Collection(collTransactions).
		Where("accountId", "==", accountID).
		Where("isArchived", "==", false).
		Documents(ctx)

	fps := make(map[string]string)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for account %s: %w", accountID, err)
		}

		var txn domain.Transaction
		if err := doc.DataTo(&txn); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		fps[txn.Fingerprint] = txn.ID
	}
	return fps, nil
}

func (s *Firestore) TransactionsInRange(ctx context.Context, accountID, startDate, endDate string) ([]domain.Transaction, error) {
	iter := s.client.Collection(collTransactions).
		Where("accountId", "==", accountID).
		Where("date", ">=", startDate).
		Where("date", "<=", endDate).
		OrderBy("date", firestore.Asc).
		Documents(ctx)

	var txns []domain.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for account %s: %w", accountID, err)
		}

		var txn domain.Transaction
		if err := doc.DataTo(&txn); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// CommitBatch writes the batch record and all transactions in one Firestore
// transaction. A partial write is impossible: either every document lands or
// the whole operation is rolled back.
func (s *Firestore) CommitBatch(ctx context.Context, batch domain.ImportBatch, txns []domain.Transaction) (CommitResult, error) {
	if err := batch.Validate(); err != nil {
		return CommitResult{}, fmt.Errorf("invalid batch: %w", err)
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
			return CommitResult{}, fmt.Errorf("invalid transaction: %w", err)
		}
		staged[i] = txn
		result.TransactionIDs = append(result.TransactionIDs, txn.ID)
	}

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(s.client.Collection(collBatches).Doc(batch.ID), batch); err != nil {
			return err
		}
		for _, txn := range staged {
			if err := tx.Set(s.client.Collection(collTransactions).Doc(txn.ID), txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to commit batch %s: %w", batch.ID, err)
	}
	return result, nil
}

func (s *Firestore) GetBatch(ctx context.Context, batchID string) (domain.ImportBatch, error) {
	doc, err := s.client.Collection(collBatches).Doc(batchID).Get(ctx)
	if err != nil {
		if doc != nil && !doc.Exists() {
			return domain.ImportBatch{}, ErrNotFound
		}
		return domain.ImportBatch{}, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}

	var batch domain.ImportBatch
	if err := doc.DataTo(&batch); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to parse batch: %w", err)
	}
	return batch, nil
}

// UndoBatch reverses a committed batch inside one Firestore transaction.
// Reads happen before writes per the Firestore transaction protocol: the
// batch record and every member transaction are loaded, the reconciliation
// guard runs, and only then are the archive writes issued.
func (s *Firestore) UndoBatch(ctx context.Context, batchID string) (UndoResult, error) {
	var result UndoResult

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		batchRef := s.client.Collection(collBatches).Doc(batchID)
		doc, err := tx.Get(batchRef)
		if err != nil {
			if doc != nil && !doc.Exists() {
				return ErrNotFound
			}
			return err
		}

		var batch domain.ImportBatch
		if err := doc.DataTo(&batch); err != nil {
			return fmt.Errorf("failed to parse batch: %w", err)
		}
		if batch.IsUndone {
			result = UndoResult{BatchID: batchID, AlreadyUndone: true}
			return nil
		}

		iter := tx.Documents(s.client.Collection(collTransactions).
			Where("importBatchId", "==", batchID))
		var members []domain.Transaction
		for {
			txnDoc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to iterate batch transactions: %w", err)
			}
			var txn domain.Transaction
			if err := txnDoc.DataTo(&txn); err != nil {
				return fmt.Errorf("failed to parse transaction: %w", err)
			}
			if txn.Reconciled {
				return ErrBatchReconciled
			}
			members = append(members, txn)
		}

		now := time.Now()
		for _, txn := range members {
			ref := s.client.Collection(collTransactions).Doc(txn.ID)
			if domain.DeletionPolicyFor(domain.EntityTransaction) == domain.DeleteHard {
				if err := tx.Delete(ref); err != nil {
					return err
				}
				continue
			}
			if err := tx.Update(ref, []firestore.Update{
				{Path: "isArchived", Value: true},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		if err := tx.Update(batchRef, []firestore.Update{
			{Path: "isUndone", Value: true},
		}); err != nil {
			return err
		}

		result = UndoResult{BatchID: batchID, ReversedCount: len(members)}
		return nil
	})
	if err != nil {
		return UndoResult{}, err
	}
	return result, nil
}

// UpdateTransaction replaces a transaction if its updatedAt still matches
// expectedUpdatedAt, implementing optimistic concurrency over a Firestore
// read-check-write transaction.
func (s *Firestore) UpdateTransaction(ctx context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error) {
	if err := txn.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}

	var updated domain.Transaction
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		ref := s.client.Collection(collTransactions).Doc(txn.ID)
		doc, err := tx.Get(ref)
		if err != nil {
			if doc != nil && !doc.Exists() {
				return ErrNotFound
			}
			return err
		}

		var current domain.Transaction
		if err := doc.DataTo(&current); err != nil {
			return fmt.Errorf("failed to parse transaction: %w", err)
		}
		if !current.UpdatedAt.Equal(expectedUpdatedAt) {
			return ErrConcurrentEdit
		}

		updated = txn
		updated.UpdatedAt = time.Now()
		return tx.Set(ref, updated)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return updated, nil
}

func (s *Firestore) IncrementRuleUsage(ctx context.Context, ruleID string, usedAt time.Time) error {
	ref := s.client.Collection(collRules).Doc(ruleID)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if doc != nil && !doc.Exists() {
				return ErrNotFound
			}
			return err
		}
		var rule domain.Rule
		if err := doc.DataTo(&rule); err != nil {
			return fmt.Errorf("failed to parse rule: %w", err)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "useCount", Value: rule.UseCount + 1},
			{Path: "lastUsedAt", Value: usedAt},
		})
	})
}

func (s *Firestore) ListRules(ctx context.Context) ([]domain.Rule, error) {
	iter := s.client.Collection(collRules).
		OrderBy("priority", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)

	var out []domain.Rule
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rules: %w", err)
		}
		var rule domain.Rule
		if err := doc.DataTo(&rule); err != nil {
			return nil, fmt.Errorf("failed to parse rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *Firestore) ListPayees(ctx context.Context) ([]domain.Payee, error) {
	iter := s.client.Collection(collPayees).Documents(ctx)

	var out []domain.Payee
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate payees: %w", err)
		}
		var p domain.Payee
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to parse payee: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
