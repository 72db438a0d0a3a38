package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// Schema is embedded so the binary stays self-contained.
//
//go:embed schema.sql
var schemaSQL string

// SQLite persists the ledger in a single local database file. Commit and
// undo run inside SQL transactions; the compare-and-swap update relies on a
// guarded UPDATE checking the stored timestamp.
type SQLite struct {
	db *sql.DB
}

// timeFormat is the canonical encoding for timestamps in SQLite columns.
// RFC 3339 with nanoseconds keeps string comparison consistent with time
// ordering and round-trips the compare-and-swap token exactly.
const timeFormat = time.RFC3339Nano

// NewSQLite opens (creating if needed) a SQLite-backed store at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite handles one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent pipeline passes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) FingerprintsByAccount(ctx context.Context, accountID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint FROM transactions WHERE account_id = ? AND is_archived = 0`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints for account %s: %w", accountID, err)
	}
	defer rows.Close()

	fps := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint row: %w", err)
		}
		fps[fp] = id
	}
	return fps, rows.Err()
}

func (s *SQLite) TransactionsInRange(ctx context.Context, accountID, startDate, endDate string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, date, amount, payee, description, fingerprint,
		        import_batch_id, lines, is_reviewed, reconciled, is_archived, updated_at
		   FROM transactions
		  WHERE account_id = ? AND date >= ? AND date <= ?
		  ORDER BY date`,
		accountID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (s *SQLite) CommitBatch(ctx context.Context, batch domain.ImportBatch, txns []domain.Transaction) (CommitResult, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	mappingJSON, err := json.Marshal(batch.MappingSnap)
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to encode mapping snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO import_batches
		        (id, account_id, file_name, imported_at, total_rows, imported_count,
		         duplicate_count, error_count, mapping_snap, is_undone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		batch.ID, batch.AccountID, batch.FileName, batch.ImportedAt.Format(timeFormat),
		batch.TotalRows, batch.ImportedCount, batch.DuplicateCount, batch.ErrorCount,
		string(mappingJSON)); err != nil {
		return CommitResult{}, fmt.Errorf("failed to insert batch %s: %w", batch.ID, err)
	}

	for _, txn := range staged {
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return CommitResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("failed to commit batch %s: %w", batch.ID, err)
	}
	return result, nil
}

func (s *SQLite) GetBatch(ctx context.Context, batchID string) (domain.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, file_name, imported_at, total_rows, imported_count,
		        duplicate_count, error_count, mapping_snap, is_undone
		   FROM import_batches WHERE id = ?`, batchID)
	return scanBatch(row)
}

func (s *SQLite) UndoBatch(ctx context.Context, batchID string) (UndoResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UndoResult{}, fmt.Errorf("failed to begin undo: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT is_undone FROM import_batches WHERE id = ?`, batchID)
	var isUndone bool
	if err := row.Scan(&isUndone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UndoResult{}, ErrNotFound
		}
		return UndoResult{}, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if isUndone {
		return UndoResult{BatchID: batchID, AlreadyUndone: true}, nil
	}

	var reconciledCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE import_batch_id = ? AND reconciled = 1`,
		batchID).Scan(&reconciledCount); err != nil {
		return UndoResult{}, fmt.Errorf("failed to check reconciliation: %w", err)
	}
	if reconciledCount > 0 {
		return UndoResult{}, ErrBatchReconciled
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET is_archived = 1, updated_at = ? WHERE import_batch_id = ?`,
		time.Now().Format(timeFormat), batchID)
	if err != nil {
		return UndoResult{}, fmt.Errorf("failed to archive batch transactions: %w", err)
	}
	reversed, err := res.RowsAffected()
	if err != nil {
		return UndoResult{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE import_batches SET is_undone = 1 WHERE id = ?`, batchID); err != nil {
		return UndoResult{}, fmt.Errorf("failed to mark batch undone: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return UndoResult{}, fmt.Errorf("failed to commit undo for batch %s: %w", batchID, err)
	}
	return UndoResult{BatchID: batchID, ReversedCount: int(reversed)}, nil
}

func (s *SQLite) UpdateTransaction(ctx context.Context, txn domain.Transaction, expectedUpdatedAt time.Time) (domain.Transaction, error) {
	if err := txn.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}

	linesJSON, err := json.Marshal(txn.Lines)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to encode lines: %w", err)
	}

	txn.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		    SET account_id = ?, date = ?, amount = ?, payee = ?, description = ?,
		        fingerprint = ?, lines = ?, is_reviewed = ?, reconciled = ?,
		        is_archived = ?, updated_at = ?
		  WHERE id = ? AND updated_at = ?`,
		txn.AccountID, txn.Date, txn.Amount, txn.Payee, txn.Description,
		txn.Fingerprint, string(linesJSON), txn.IsReviewed, txn.Reconciled,
		txn.IsArchived, txn.UpdatedAt.Format(timeFormat),
		txn.ID, expectedUpdatedAt.Format(timeFormat))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to update transaction %s: %w", txn.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Transaction{}, err
	}
	if affected == 0 {
		// Distinguish a stale timestamp from a missing row.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE id = ?`, txn.ID).Scan(&exists); err != nil {
			return domain.Transaction{}, err
		}
		if exists == 0 {
			return domain.Transaction{}, ErrNotFound
		}
		return domain.Transaction{}, ErrConcurrentEdit
	}
	return txn, nil
}

func (s *SQLite) IncrementRuleUsage(ctx context.Context, ruleID string, usedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage update: %w", err)
	}
	defer tx.Rollback()

	var payload string
	if err := tx.QueryRowContext(ctx,
		`SELECT payload FROM rules WHERE id = ?`, ruleID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load rule %s: %w", ruleID, err)
	}

	var rule domain.Rule
	if err := json.Unmarshal([]byte(payload), &rule); err != nil {
		return fmt.Errorf("failed to decode rule %s: %w", ruleID, err)
	}
	rule.UseCount++
	rule.LastUsedAt = usedAt

	updated, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", ruleID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rules SET payload = ?, use_count = ?, last_used_at = ? WHERE id = ?`,
		string(updated), rule.UseCount, usedAt.Format(timeFormat), ruleID); err != nil {
		return fmt.Errorf("failed to update rule %s: %w", ruleID, err)
	}
	return tx.Commit()
}

func (s *SQLite) ListRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM rules ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		var rule domain.Rule
		if err := json.Unmarshal([]byte(payload), &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *SQLite) ListPayees(ctx context.Context) ([]domain.Payee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM payees`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payees: %w", err)
	}
	defer rows.Close()

	var out []domain.Payee
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan payee row: %w", err)
		}
		var p domain.Payee
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode payee: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRule upserts a rule, keeping the queryable columns in sync with the
// JSON payload. Used when seeding a local database from a rules file.
func (s *SQLite) SaveRule(ctx context.Context, rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, payload, priority, use_count, last_used_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     payload = excluded.payload,
		     priority = excluded.priority`,
		rule.ID, string(payload), rule.Priority, rule.UseCount,
		rule.LastUsedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

// SavePayee upserts a payee.
func (s *SQLite) SavePayee(ctx context.Context, p domain.Payee) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payee %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO payees (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		p.ID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save payee %s: %w", p.ID, err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn domain.Transaction) error {
	linesJSON, err := json.Marshal(txn.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions
		        (id, account_id, date, amount, payee, description, fingerprint,
		         import_batch_id, lines, is_reviewed, reconciled, is_archived, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, txn.Date, txn.Amount, txn.Payee, txn.Description,
		txn.Fingerprint, txn.ImportBatchID, string(linesJSON), txn.IsReviewed,
		txn.Reconciled, txn.IsArchived, txn.UpdatedAt.Format(timeFormat)); err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var txn domain.Transaction
	var linesJSON, updatedAt string
	if err := row.Scan(&txn.ID, &txn.AccountID, &txn.Date, &txn.Amount, &txn.Payee,
		&txn.Description, &txn.Fingerprint, &txn.ImportBatchID, &linesJSON,
		&txn.IsReviewed, &txn.Reconciled, &txn.IsArchived, &updatedAt); err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to scan transaction row: %w", err)
	}
	if err := json.Unmarshal([]byte(linesJSON), &txn.Lines); err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to decode lines: %w", err)
	}
	ts, err := time.Parse(timeFormat, updatedAt)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	txn.UpdatedAt = ts
	return txn, nil
}

func scanBatch(row rowScanner) (domain.ImportBatch, error) {
	var batch domain.ImportBatch
	var importedAt, mappingJSON string
	if err := row.Scan(&batch.ID, &batch.AccountID, &batch.FileName, &importedAt,
		&batch.TotalRows, &batch.ImportedCount, &batch.DuplicateCount,
		&batch.ErrorCount, &mappingJSON, &batch.IsUndone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ImportBatch{}, ErrNotFound
		}
		return domain.ImportBatch{}, fmt.Errorf("failed to scan batch row: %w", err)
	}
	ts, err := time.Parse(timeFormat, importedAt)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	batch.ImportedAt = ts
	if err := json.Unmarshal([]byte(mappingJSON), &batch.MappingSnap); err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to decode mapping snapshot: %w", err)
	}
	return batch, nil
}
