package ingest

import (
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
)

func TestIsOFXFile(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		want   bool
	}{
		{"qfx with sgml header", "statement.qfx", "OFXHEADER:100\nDATA:OFXSGML", true},
		{"ofx xml header", "export.ofx", `<?xml version="1.0"?><?OFX OFXHEADER="200"?>`, true},
		{"wrong extension", "statement.csv", "OFXHEADER:100", false},
		{"ofx extension without marker", "statement.ofx", "Date,Amount,Description", false},
		{"case insensitive extension", "STMT.OFX", "<OFX>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOFXFile(tt.path, []byte(tt.header)); got != tt.want {
				t.Errorf("IsOFXFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestStageOFXTransactions(t *testing.T) {
	amt := func(num, den int64) ofxgo.Amount {
		var a ofxgo.Amount
		a.SetFrac64(num, den)
		return a
	}
	date := ofxgo.Date{Time: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}

	txns := []ofxgo.Transaction{
		{
			FiTID:    ofxgo.String("fit-1"),
			DtPosted: date,
			TrnAmt:   amt(-1234, 100),
			Name:     ofxgo.String("STARBUCKS #123"),
		},
		{
			FiTID:    ofxgo.String("fit-2"),
			DtPosted: date,
			TrnAmt:   amt(250000, 100),
			Name:     ofxgo.String("PAYROLL"),
			Memo:     ofxgo.String("ACME CORP"),
		},
	}

	staged, err := stageOFXTransactions(txns)
	if err != nil {
		t.Fatalf("stageOFXTransactions() error = %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("staged %d transactions, want 2", len(staged))
	}

	if staged[0].Date != "2024-01-15" {
		t.Errorf("staged[0].Date = %q, want 2024-01-15", staged[0].Date)
	}
	if staged[0].Amount != -1234 {
		t.Errorf("staged[0].Amount = %d, want -1234", staged[0].Amount)
	}
	if !staged[0].IsValid {
		t.Errorf("staged[0] invalid: %v", staged[0].Errors)
	}

	// Memo is appended when it adds information.
	if staged[1].Description != "PAYROLL ACME CORP" {
		t.Errorf("staged[1].Description = %q, want %q", staged[1].Description, "PAYROLL ACME CORP")
	}
	if staged[1].Amount != 250000 {
		t.Errorf("staged[1].Amount = %d, want 250000", staged[1].Amount)
	}
}
