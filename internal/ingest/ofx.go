package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// IsOFXFile reports whether a path looks like an OFX/QFX export based on its
// extension and header markers.
func IsOFXFile(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// ReadOFX stages every bank and credit-card transaction from an OFX/QFX
// export. OFX carries typed dates and amounts, so rows arrive already valid;
// the staged form exists so downstream classification treats both sources
// identically.
func ReadOFX(r io.Reader) ([]domain.StagedTransaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file (%d bytes): %w", len(content), err)
	}

	var staged []domain.StagedTransaction

	for _, msg := range response.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected bank message type %T", msg)
		}
		if stmt.BankTranList == nil {
			continue
		}
		batch, err := stageOFXTransactions(stmt.BankTranList.Transactions)
		if err != nil {
			return nil, err
		}
		staged = append(staged, batch...)
	}

	for _, msg := range response.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected credit card message type %T", msg)
		}
		if stmt.BankTranList == nil {
			continue
		}
		batch, err := stageOFXTransactions(stmt.BankTranList.Transactions)
		if err != nil {
			return nil, err
		}
		staged = append(staged, batch...)
	}

	if len(response.Bank) == 0 && len(response.CreditCard) == 0 {
		return nil, fmt.Errorf("no supported statement type found in OFX file (bank: 0, creditcard: 0)")
	}

	return staged, nil
}

func stageOFXTransactions(txns []ofxgo.Transaction) ([]domain.StagedTransaction, error) {
	staged := make([]domain.StagedTransaction, 0, len(txns))
	for i, txn := range txns {
		cents, err := ratCents(txn.TrnAmt)
		if err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, txn.FiTID.String(), err)
		}

		description := strings.TrimSpace(txn.Name.String())
		memo := strings.TrimSpace(txn.Memo.String())
		if description == "" {
			description = memo
		} else if memo != "" && !strings.EqualFold(description, memo) {
			description = description + " " + memo
		}

		s := domain.StagedTransaction{
			Date:        txn.DtPosted.Format("2006-01-02"),
			Amount:      cents,
			Description: description,
			IsValid:     true,
		}
		if description == "" {
			s.IsValid = false
			s.Errors = append(s.Errors, "empty description")
		}
		staged = append(staged, s)
	}
	return staged, nil
}

// ratCents converts an exact OFX rational amount to integer cents.
// FloatString(2) rounds to nearest with ties away from zero, matching the
// CSV normalizer's rounding.
func ratCents(amount ofxgo.Amount) (int64, error) {
	return ParseCents(amount.FloatString(2))
}
