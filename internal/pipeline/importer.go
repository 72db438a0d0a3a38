// Package pipeline orchestrates a statement import end to end: staging,
// fingerprinting, duplicate classification, the atomic batch commit, and the
// best-effort post-commit enhancement passes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thetrev68/papas-books-sub000/internal/dedup"
	"github.com/thetrev68/papas-books-sub000/internal/domain"
	"github.com/thetrev68/papas-books-sub000/internal/fingerprint"
	"github.com/thetrev68/papas-books-sub000/internal/payee"
	"github.com/thetrev68/papas-books-sub000/internal/rules"
	"github.com/thetrev68/papas-books-sub000/internal/store"
)

// Options configures one import run.
type Options struct {
	AccountID string
	FileName  string
	Mapping   domain.CsvMapping
	Dedup     dedup.Config

	// DryRun classifies and reports without committing anything.
	DryRun bool

	// ApplyRules runs the rule engine over the committed transactions.
	ApplyRules bool
	// MarkReviewed sets isReviewed when a rule applies.
	MarkReviewed bool
	// ResolvePayees runs payee inference over the committed transactions.
	ResolvePayees bool
}

// Summary counts the classification outcome of a run.
type Summary struct {
	Total           int `json:"total"`
	New             int `json:"new"`
	Duplicates      int `json:"duplicates"`
	FuzzyDuplicates int `json:"fuzzyDuplicates"`
	Invalid         int `json:"invalid"`
}

// PayeeSuggestion is a medium-confidence payee guess surfaced for the user.
// The pipeline never creates payees on its own.
type PayeeSuggestion struct {
	TransactionID string `json:"transactionId"`
	Description   string `json:"description"`
	SuggestedName string `json:"suggestedName"`
	Confidence    int    `json:"confidence"`
}

// Result is the full outcome of an import run.
type Result struct {
	Summary   Summary                       `json:"summary"`
	Processed []domain.ProcessedTransaction `json:"processed"`

	// Commit fields are zero when DryRun or when nothing was new.
	BatchID        string   `json:"batchId,omitempty"`
	TransactionIDs []string `json:"transactionIds,omitempty"`

	// Enhancement outcomes. Warnings carry post-commit pass failures; they
	// never affect the committed import.
	RulesApplied     int               `json:"rulesApplied"`
	PayeesResolved   int               `json:"payeesResolved"`
	PayeeSuggestions []PayeeSuggestion `json:"payeeSuggestions,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

// Importer drives the import pipeline against a store.
type Importer struct {
	store store.Store
}

// New creates an importer.
func New(s store.Store) *Importer {
	return &Importer{store: s}
}

// Classify fingerprints staged rows and classifies them against the account's
// history. Existing fingerprints are prefetched once per run and matched
// in memory, so classification cost does not scale with history size per row.
func (imp *Importer) Classify(ctx context.Context, accountID string, staged []domain.StagedTransaction, cfg dedup.Config) ([]domain.ProcessedTransaction, error) {
	processed := make([]domain.ProcessedTransaction, len(staged))
	for i, st := range staged {
		processed[i] = domain.ProcessedTransaction{StagedTransaction: st}
		if st.IsValid {
			processed[i].Fingerprint = fingerprint.Generate(st.Date, st.Amount, st.Description)
		}
	}

	existing, err := imp.store.FingerprintsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing fingerprints: %w", err)
	}
	processed = dedup.DetectExact(processed, existing)

	start, end, ok := dateRange(processed, cfg)
	if ok {
		history, err := imp.store.TransactionsInRange(ctx, accountID, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load transaction history: %w", err)
		}
		processed = dedup.MatchFuzzy(processed, history, cfg)
	}

	return processed, nil
}

// Run executes the whole pipeline: classify, commit the new subset
// atomically, then run the enhancement passes best-effort.
func (imp *Importer) Run(ctx context.Context, opts Options, staged []domain.StagedTransaction) (Result, error) {
	processed, err := imp.Classify(ctx, opts.AccountID, staged, opts.Dedup)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Summary:   summarize(processed),
		Processed: processed,
	}
	if opts.DryRun || result.Summary.New == 0 {
		return result, nil
	}

	commit, committed, err := imp.commitNew(ctx, opts, processed, result.Summary)
	if err != nil {
		return result, err
	}
	result.BatchID = commit.BatchID
	result.TransactionIDs = commit.TransactionIDs

	// Post-commit passes run after the atomic commit and are independently
	// best-effort: a failure is reported, never rolled back.
	if opts.ApplyRules {
		applied, err := imp.applyRules(ctx, committed, opts.MarkReviewed)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("rule pass failed: %v", err))
		}
		result.RulesApplied = applied
	}
	if opts.ResolvePayees {
		resolved, suggestions, err := imp.resolvePayees(ctx, committed)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("payee pass failed: %v", err))
		}
		result.PayeesResolved = resolved
		result.PayeeSuggestions = suggestions
	}

	return result, nil
}

// Undo reverses a committed batch. Safe to repeat; refuses batches containing
// reconciled transactions.
func (imp *Importer) Undo(ctx context.Context, batchID string) (store.UndoResult, error) {
	return imp.store.UndoBatch(ctx, batchID)
}

// commitNew builds the batch record and persists the new subset in one
// atomic store operation. Returns the committed transactions with their
// assigned IDs for the enhancement passes.
func (imp *Importer) commitNew(ctx context.Context, opts Options, processed []domain.ProcessedTransaction, summary Summary) (store.CommitResult, []domain.Transaction, error) {
	batch := domain.ImportBatch{
		ID:             uuid.NewString(),
		AccountID:      opts.AccountID,
		FileName:       opts.FileName,
		ImportedAt:     time.Now(),
		TotalRows:      summary.Total,
		ImportedCount:  summary.New,
		DuplicateCount: summary.Duplicates + summary.FuzzyDuplicates,
		ErrorCount:     summary.Invalid,
		MappingSnap:    opts.Mapping,
	}

	var txns []domain.Transaction
	for _, p := range processed {
		if !p.IsValid || p.Status != domain.StatusNew {
			continue
		}
		txns = append(txns, domain.Transaction{
			ID:          uuid.NewString(),
			AccountID:   opts.AccountID,
			Date:        p.Date,
			Amount:      p.Amount,
			Description: p.Description,
			Fingerprint: p.Fingerprint,
		})
	}

	commit, err := imp.store.CommitBatch(ctx, batch, txns)
	if err != nil {
		return store.CommitResult{}, nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	committed := make([]domain.Transaction, len(txns))
	for i, txn := range txns {
		txn.ID = commit.TransactionIDs[i]
		txn.ImportBatchID = commit.BatchID
		committed[i] = txn
	}
	// Reload for authoritative timestamps; the compare-and-swap updates in
	// the enhancement passes need the stored updatedAt.
	if len(committed) > 0 {
		start, end := committed[0].Date, committed[0].Date
		for _, txn := range committed {
			if txn.Date < start {
				start = txn.Date
			}
			if txn.Date > end {
				end = txn.Date
			}
		}
		stored, err := imp.store.TransactionsInRange(ctx, opts.AccountID, start, end)
		if err == nil {
			byID := make(map[string]domain.Transaction, len(stored))
			for _, txn := range stored {
				byID[txn.ID] = txn
			}
			for i := range committed {
				if txn, ok := byID[committed[i].ID]; ok {
					committed[i] = txn
				}
			}
		}
	}

	return commit, committed, nil
}

func (imp *Importer) applyRules(ctx context.Context, committed []domain.Transaction, markReviewed bool) (int, error) {
	ruleSet, err := imp.store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(ruleSet) == 0 {
		return 0, nil
	}
	engine, err := rules.NewEngine(ruleSet)
	if err != nil {
		return 0, fmt.Errorf("failed to build rule engine: %w", err)
	}

	applicator := rules.NewApplicator(engine, imp.store)
	batch, err := applicator.ApplyBatch(ctx, committed, rules.ApplyOptions{MarkReviewed: markReviewed})
	if err != nil {
		return batch.AppliedCount, err
	}
	if batch.ErrorCount > 0 {
		return batch.AppliedCount, fmt.Errorf("%d of %d rule applications failed", batch.ErrorCount, batch.TotalTransactions)
	}
	return batch.AppliedCount, nil
}

func (imp *Importer) resolvePayees(ctx context.Context, committed []domain.Transaction) (int, []PayeeSuggestion, error) {
	known, err := imp.store.ListPayees(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load payees: %w", err)
	}

	resolved := 0
	var suggestions []PayeeSuggestion
	for i := range committed {
		txn := &committed[i]
		if txn.Payee != "" {
			continue
		}

		guess := payee.Resolve(txn.Description, known)
		switch {
		case guess.Payee != nil && guess.Confidence >= payee.ConfidenceKnown:
			updated := *txn
			updated.Payee = guess.Payee.Name
			persisted, err := imp.store.UpdateTransaction(ctx, updated, txn.UpdatedAt)
			if err != nil {
				return resolved, suggestions, fmt.Errorf("failed to set payee on %s: %w", txn.ID, err)
			}
			*txn = persisted
			resolved++
		case guess.SuggestedName != "":
			suggestions = append(suggestions, PayeeSuggestion{
				TransactionID: txn.ID,
				Description:   txn.Description,
				SuggestedName: guess.SuggestedName,
				Confidence:    guess.Confidence,
			})
		}
	}
	return resolved, suggestions, nil
}

func summarize(processed []domain.ProcessedTransaction) Summary {
	s := Summary{Total: len(processed)}
	for _, p := range processed {
		if !p.IsValid {
			s.Invalid++
			continue
		}
		switch p.Status {
		case domain.StatusNew:
			s.New++
		case domain.StatusDuplicate:
			s.Duplicates++
		case domain.StatusFuzzyDuplicate:
			s.FuzzyDuplicates++
		}
	}
	return s
}

// dateRange computes the history window the fuzzy matcher needs: the span of
// the staged dates widened by the match window on both sides.
func dateRange(processed []domain.ProcessedTransaction, cfg dedup.Config) (string, string, bool) {
	var start, end string
	for _, p := range processed {
		if !p.IsValid || p.Status != domain.StatusNew {
			continue
		}
		if start == "" || p.Date < start {
			start = p.Date
		}
		if end == "" || p.Date > end {
			end = p.Date
		}
	}
	if start == "" {
		return "", "", false
	}

	window := cfg.WindowDays
	if window == 0 {
		window = dedup.DefaultWindowDays
	}
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return "", "", false
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return "", "", false
	}
	return startDate.AddDate(0, 0, -window).Format("2006-01-02"),
		endDate.AddDate(0, 0, window).Format("2006-01-02"), true
}
