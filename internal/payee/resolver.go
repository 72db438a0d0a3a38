// Package payee infers payees from noisy bank descriptions.
package payee

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
	"github.com/thetrev68/papas-books-sub000/internal/textmatch"
)

// Confidence tiers. Callers auto-apply only at ConfidenceKnown and surface
// ConfidenceSuggested as a suggestion for the user to confirm.
const (
	ConfidenceKnown     = 80
	ConfidenceSuggested = 60

	// matchThreshold is the token-overlap ratio required to treat a
	// description as a known payee.
	matchThreshold = 0.8

	// maxSuggestedTokens caps how much of a cleaned description becomes a
	// suggested merchant name.
	maxSuggestedTokens = 3
)

// Guess is the outcome of resolving one description. Payee is non-nil only
// for a known-payee match; SuggestedName is set only for a cleaned-name
// suggestion.
type Guess struct {
	Payee         *domain.Payee `json:"payee,omitempty"`
	SuggestedName string        `json:"suggestedName,omitempty"`
	Confidence    int           `json:"confidence"`
}

// noiseTokens are transaction-type prefixes and processor boilerplate that
// carry no merchant information.
var noiseTokens = map[string]struct{}{
	"pos":        {},
	"purchase":   {},
	"debit":      {},
	"credit":     {},
	"ach":        {},
	"check":      {},
	"chk":        {},
	"atm":        {},
	"withdrawal": {},
	"deposit":    {},
	"payment":    {},
	"pmt":        {},
	"online":     {},
	"transfer":   {},
	"recurring":  {},
	"card":       {},
	"visa":       {},
	"mastercard": {},
	"web":        {},
	"tst":        {},
	"sq":         {},
	"paypal":     {},
}

var titleCaser = cases.Title(language.English)

// Resolve matches a description against known payees, falling back to a
// cleaned-up name suggestion. The medium tier only suggests a name, it never
// creates a payee.
func Resolve(description string, payees []domain.Payee) Guess {
	tokens := textmatch.Tokenize(description)
	if len(tokens) == 0 {
		return Guess{}
	}

	if match := matchKnown(tokens, payees); match != nil {
		return Guess{Payee: match, Confidence: ConfidenceKnown}
	}

	if name := suggestName(tokens); name != "" {
		return Guess{SuggestedName: name, Confidence: ConfidenceSuggested}
	}

	return Guess{}
}

// matchKnown returns the payee whose name or alias best overlaps the
// description tokens, or nil when nothing clears the threshold.
func matchKnown(tokens []string, payees []domain.Payee) *domain.Payee {
	var best *domain.Payee
	var bestScore float64

	for i := range payees {
		names := append([]string{payees[i].Name}, payees[i].Aliases...)
		for _, name := range names {
			score := textmatch.TokenOverlap(tokens, textmatch.Tokenize(name))
			if score >= matchThreshold && score > bestScore {
				best = &payees[i]
				bestScore = score
			}
		}
	}
	return best
}

// suggestName strips banking noise and reference codes from the tokens and
// title-cases what remains into a candidate merchant name.
func suggestName(tokens []string) string {
	var kept []string
	for _, tok := range tokens {
		if _, noisy := noiseTokens[tok]; noisy {
			continue
		}
		if isReferenceCode(tok) {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxSuggestedTokens {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(kept, " "))
}

// isReferenceCode reports whether a token looks like a store code or
// reference number rather than a word: all digits, or letters with a digit
// majority ("4417", "st0082").
func isReferenceCode(tok string) bool {
	digits := 0
	for _, r := range tok {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	return digits*2 >= len([]rune(tok))
}
