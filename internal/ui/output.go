// Package ui renders CLI progress and status output with color.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
)

// Header prints a banner for a pipeline phase.
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Printf("\n%s\n", line)
	green.Printf("%-60s\n", center(text, 60))
	green.Printf("%s\n\n", line)
}

// Step prints a numbered step indicator.
func Step(stepNum, totalSteps int, text string) {
	yellow.Printf("[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success line.
func Success(text string) {
	green.Printf("  → %s\n", text)
}

// Info prints a neutral status line.
func Info(text string) {
	fmt.Printf("  → %s\n", text)
}

// Warning prints a warning line.
func Warning(text string) {
	yellow.Printf("  ⚠ %s\n", text)
}

// Error prints an error message.
func Error(text string) {
	red.Printf("Error: %s\n", text)
}

// BlueText prints blue text.
func BlueText(text string) {
	blue.Println(text)
}

// YellowText prints yellow text.
func YellowText(text string) {
	yellow.Println(text)
}

// ImportTally prints the per-status row counts for a statement import.
// Zero buckets are dropped so a clean import reads as a single short line.
func ImportTally(total, fresh, duplicates, fuzzy, invalid int) {
	fmt.Printf("  → %s\n", tallyLine(total, fresh, duplicates, fuzzy, invalid))
}

func tallyLine(total, fresh, duplicates, fuzzy, invalid int) string {
	parts := []string{fmt.Sprintf("%d rows", total)}
	for _, bucket := range []struct {
		n     int
		label string
	}{
		{fresh, "new"},
		{duplicates, "duplicates"},
		{fuzzy, "fuzzy duplicates"},
		{invalid, "invalid"},
	} {
		if bucket.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", bucket.n, bucket.label))
		}
	}
	return strings.Join(parts, ", ")
}

func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
