package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/thetrev68/papas-books-sub000/internal/dedup"
	"github.com/thetrev68/papas-books-sub000/internal/domain"
	"github.com/thetrev68/papas-books-sub000/internal/ingest"
	"github.com/thetrev68/papas-books-sub000/internal/pipeline"
	"github.com/thetrev68/papas-books-sub000/internal/rules"
	"github.com/thetrev68/papas-books-sub000/internal/store"
	"github.com/thetrev68/papas-books-sub000/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	inputFile = flag.String("input", "", "Statement file to import, CSV or OFX/QFX (required unless -undo)")
	accountID = flag.String("account", "", "Target account ID (required)")
	mapping   = flag.String("mapping", "", "CSV column mapping file (YAML, required for CSV input)")
	dryRun    = flag.Bool("dry-run", false, "Classify and report without committing")
	verbose   = flag.Bool("verbose", false, "Show detailed logs")

	// Store selection
	projectID = flag.String("project", "", "Firestore project ID (uses Firestore when set)")
	credsFile = flag.String("creds", "", "Service account credentials file (Firestore)")
	dbFile    = flag.String("db", "books.db", "Local SQLite database file (used when -project is empty)")

	// Classification tuning
	windowDays = flag.Int("window", dedup.DefaultWindowDays, "Fuzzy match date window in days")
	similarity = flag.Float64("similarity", dedup.DefaultSimilarityThreshold, "Fuzzy match description similarity threshold")

	// Post-commit passes
	applyRules    = flag.Bool("apply-rules", true, "Run categorization rules after commit")
	markReviewed  = flag.Bool("mark-reviewed", false, "Mark transactions reviewed when a rule applies")
	resolvePayees = flag.Bool("resolve-payees", true, "Run payee inference after commit")
	rulesFile     = flag.String("rules", "", "Rules file (YAML); defaults to the embedded rule set for local databases")

	// Batch management
	undoBatch = flag.String("undo", "", "Undo a committed import batch by ID")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `booksimport - Bank statement importer for personal bookkeeping

Usage:
  booksimport [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import a CSV statement into a local database
  booksimport -input checking.csv -mapping chase.yaml -account acct-checking

  # Classify without committing
  booksimport -input checking.csv -mapping chase.yaml -account acct-checking -dry-run

  # Import an OFX download into Firestore
  booksimport -input checking.qfx -account acct-checking -project my-books

  # Undo a committed batch
  booksimport -undo 7f3a... -account acct-checking

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("booksimport version %s\n", version)
		os.Exit(0)
	}

	if *accountID == "" {
		fmt.Fprintf(os.Stderr, "Error: -account flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *inputFile == "" && *undoBatch == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	imp := pipeline.New(st)

	if *undoBatch != "" {
		return runUndo(ctx, imp)
	}
	return runImport(ctx, imp, st)
}

func runUndo(ctx context.Context, imp *pipeline.Importer) error {
	ui.Header("Undoing Import Batch")

	result, err := imp.Undo(ctx, *undoBatch)
	if err != nil {
		if errors.Is(err, store.ErrBatchReconciled) {
			return fmt.Errorf("batch %s contains reconciled transactions and cannot be undone", *undoBatch)
		}
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("batch %s not found", *undoBatch)
		}
		return fmt.Errorf("failed to undo batch %s: %w", *undoBatch, err)
	}

	if result.AlreadyUndone {
		ui.Info(fmt.Sprintf("Batch %s was already undone", result.BatchID))
		return nil
	}
	ui.Success(fmt.Sprintf("Reversed %d transactions from batch %s", result.ReversedCount, result.BatchID))
	return nil
}

func runImport(ctx context.Context, imp *pipeline.Importer, st store.Store) error {
	ui.Header("Importing Bank Statement")
	ui.Step(1, 3, "Reading statement")

	staged, csvMapping, err := readStatement(*inputFile)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Staged %d rows from %s", len(staged), filepath.Base(*inputFile)))

	if sqliteStore, ok := st.(*store.SQLite); ok && *applyRules {
		if err := seedRules(ctx, sqliteStore); err != nil {
			return err
		}
	}

	ui.Step(2, 3, "Classifying against account history")
	opts := pipeline.Options{
		AccountID: *accountID,
		FileName:  filepath.Base(*inputFile),
		Mapping:   csvMapping,
		Dedup: dedup.Config{
			WindowDays:          *windowDays,
			SimilarityThreshold: *similarity,
		},
		DryRun:        *dryRun,
		ApplyRules:    *applyRules,
		MarkReviewed:  *markReviewed,
		ResolvePayees: *resolvePayees,
	}

	result, err := imp.Run(ctx, opts, staged)
	if err != nil {
		return err
	}

	ui.Step(3, 3, "Summary")
	printSummary(result)
	return nil
}

// readStatement stages an input file, sniffing OFX by extension and header.
// CSV input needs a mapping file; OFX is self-describing.
func readStatement(path string) ([]domain.StagedTransaction, domain.CsvMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.CsvMapping{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, domain.CsvMapping{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, domain.CsvMapping{}, fmt.Errorf("failed to rewind %s: %w", path, err)
	}

	if ingest.IsOFXFile(path, header[:n]) {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Detected OFX input\n")
		}
		staged, err := ingest.ReadOFX(f)
		if err != nil {
			return nil, domain.CsvMapping{}, fmt.Errorf("failed to parse OFX file %s: %w", path, err)
		}
		return staged, domain.CsvMapping{}, nil
	}

	if *mapping == "" {
		return nil, domain.CsvMapping{}, fmt.Errorf("-mapping is required for CSV input")
	}
	csvMapping, err := loadMapping(*mapping)
	if err != nil {
		return nil, domain.CsvMapping{}, err
	}

	rows, err := ingest.ReadCSV(f, csvMapping.HasHeaderRow)
	if err != nil {
		return nil, domain.CsvMapping{}, fmt.Errorf("failed to read CSV file %s: %w", path, err)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Read %d CSV rows\n", len(rows))
	}
	return ingest.NormalizeRows(rows, csvMapping), csvMapping, nil
}

func loadMapping(path string) (domain.CsvMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CsvMapping{}, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	var m domain.CsvMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return domain.CsvMapping{}, fmt.Errorf("failed to parse mapping file %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return domain.CsvMapping{}, fmt.Errorf("invalid mapping file %s: %w", path, err)
	}
	return m, nil
}

// seedRules loads the rule set into a local database so the post-commit rule
// pass has something to work with. Firestore projects manage rules directly.
func seedRules(ctx context.Context, st *store.SQLite) error {
	existing, err := st.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(existing) > 0 && *rulesFile == "" {
		return nil
	}

	var ruleSet []domain.Rule
	if *rulesFile != "" {
		ruleSet, err = rules.LoadFromFile(*rulesFile)
		if err != nil {
			return fmt.Errorf("failed to load rules file: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded %d rules from %s\n", len(ruleSet), *rulesFile)
		}
	} else {
		ruleSet, err = rules.LoadEmbedded()
		if err != nil {
			return fmt.Errorf("failed to load embedded rules: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded %d embedded rules\n", len(ruleSet))
		}
	}

	for _, rule := range ruleSet {
		if err := st.SaveRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

func openStore(ctx context.Context) (store.Store, error) {
	if *projectID != "" {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Using Firestore project %s\n", *projectID)
		}
		return store.NewFirestore(ctx, *projectID, *credsFile)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Using local database %s\n", *dbFile)
	}
	return store.NewSQLite(ctx, *dbFile)
}

func printSummary(result pipeline.Result) {
	s := result.Summary
	ui.ImportTally(s.Total, s.New, s.Duplicates, s.FuzzyDuplicates, s.Invalid)

	if *verbose {
		for i, p := range result.Processed {
			switch {
			case !p.IsValid:
				fmt.Fprintf(os.Stderr, "  row %d: INVALID %v\n", i+1, p.Errors)
			case p.Status != domain.StatusNew:
				fmt.Fprintf(os.Stderr, "  row %d: %s of %s (%s %d %s)\n",
					i+1, p.Status, p.MatchedTransactionID, p.Date, p.Amount, p.Description)
			}
		}
	}

	if *dryRun {
		ui.Info("Dry run complete. Nothing was committed.")
		return
	}
	if result.BatchID == "" {
		ui.Info("Nothing new to import.")
		return
	}

	ui.Success(fmt.Sprintf("Committed batch %s with %d transactions", result.BatchID, len(result.TransactionIDs)))
	if result.RulesApplied > 0 {
		ui.Success(fmt.Sprintf("Categorized %d transactions by rule", result.RulesApplied))
	}
	if result.PayeesResolved > 0 {
		ui.Success(fmt.Sprintf("Resolved %d payees", result.PayeesResolved))
	}
	for _, suggestion := range result.PayeeSuggestions {
		ui.Info(fmt.Sprintf("Suggested payee %q for %q (confidence %d)",
			suggestion.SuggestedName, suggestion.Description, suggestion.Confidence))
	}
	for _, warning := range result.Warnings {
		ui.Warning(warning)
	}
}
