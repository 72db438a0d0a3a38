package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MatchType defines how a rule keyword is tested against a description.
type MatchType string

const (
	MatchTypeContains   MatchType = "contains"
	MatchTypeExact      MatchType = "exact"
	MatchTypeStartsWith MatchType = "startsWith"
	MatchTypeRegex      MatchType = "regex"
)

var validMatchTypes = map[MatchType]struct{}{
	MatchTypeContains: {}, MatchTypeExact: {}, MatchTypeStartsWith: {}, MatchTypeRegex: {},
}

// ValidateMatchType checks if the match type is one of the supported kinds.
func ValidateMatchType(m MatchType) bool {
	_, ok := validMatchTypes[m]
	return ok
}

// ConditionKind discriminates structured rule conditions.
type ConditionKind string

const (
	// ConditionAmountRange bounds the transaction amount in cents (inclusive).
	ConditionAmountRange ConditionKind = "amountRange"
	// ConditionDateRange bounds the transaction date (inclusive, YYYY-MM-DD).
	ConditionDateRange ConditionKind = "dateRange"
	// ConditionMonths restricts matching to a set of calendar months (1-12).
	ConditionMonths ConditionKind = "months"
)

// RuleCondition is a tagged predicate attached to a rule. Only the fields for
// its Kind are meaningful; everything else is ignored. Conditions are validated
// at rule-creation time, not at match time.
type RuleCondition struct {
	Kind      ConditionKind `yaml:"kind" firestore:"kind" json:"kind"`
	MinAmount *int64        `yaml:"minAmount,omitempty" firestore:"minAmount" json:"minAmount,omitempty"`
	MaxAmount *int64        `yaml:"maxAmount,omitempty" firestore:"maxAmount" json:"maxAmount,omitempty"`
	StartDate string        `yaml:"startDate,omitempty" firestore:"startDate" json:"startDate,omitempty"`
	EndDate   string        `yaml:"endDate,omitempty" firestore:"endDate" json:"endDate,omitempty"`
	Months    []int         `yaml:"months,omitempty" firestore:"months" json:"months,omitempty"`
}

// Validate checks the condition's fields against its kind.
func (c *RuleCondition) Validate() error {
	switch c.Kind {
	case ConditionAmountRange:
		if c.MinAmount == nil && c.MaxAmount == nil {
			return fmt.Errorf("amountRange condition needs minAmount or maxAmount")
		}
		if c.MinAmount != nil && c.MaxAmount != nil && *c.MinAmount > *c.MaxAmount {
			return fmt.Errorf("amountRange minAmount %d exceeds maxAmount %d", *c.MinAmount, *c.MaxAmount)
		}
	case ConditionDateRange:
		if c.StartDate == "" && c.EndDate == "" {
			return fmt.Errorf("dateRange condition needs startDate or endDate")
		}
		for _, d := range []string{c.StartDate, c.EndDate} {
			if d == "" {
				continue
			}
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return fmt.Errorf("invalid condition date %q: %w", d, err)
			}
		}
		if c.StartDate != "" && c.EndDate != "" && c.EndDate < c.StartDate {
			return fmt.Errorf("dateRange endDate %s is before startDate %s", c.EndDate, c.StartDate)
		}
	case ConditionMonths:
		if len(c.Months) == 0 {
			return fmt.Errorf("months condition needs at least one month")
		}
		for _, m := range c.Months {
			if m < 1 || m > 12 {
				return fmt.Errorf("invalid month %d (must be 1-12)", m)
			}
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

// Matches evaluates the condition against an amount (cents) and date (YYYY-MM-DD).
// The date must already be validated; a malformed date fails the condition.
func (c *RuleCondition) Matches(amount int64, date string) bool {
	switch c.Kind {
	case ConditionAmountRange:
		if c.MinAmount != nil && amount < *c.MinAmount {
			return false
		}
		if c.MaxAmount != nil && amount > *c.MaxAmount {
			return false
		}
		return true
	case ConditionDateRange:
		if c.StartDate != "" && date < c.StartDate {
			return false
		}
		if c.EndDate != "" && date > c.EndDate {
			return false
		}
		return true
	case ConditionMonths:
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return false
		}
		for _, m := range c.Months {
			if int(t.Month()) == m {
				return true
			}
		}
		return false
	}
	return false
}

// Rule is a categorization rule. Higher Priority wins; ties are broken by
// stable input order in the evaluated set.
//
// Keyword is normalized to lowercase at write time so case-insensitive
// matching never has to fold it again; CaseSensitive rules keep RawKeyword.
type Rule struct {
	ID             string          `yaml:"id" firestore:"id" json:"id"`
	Keyword        string          `yaml:"keyword" firestore:"keyword" json:"keyword"`
	RawKeyword     string          `yaml:"rawKeyword,omitempty" firestore:"rawKeyword" json:"rawKeyword,omitempty"`
	MatchType      MatchType       `yaml:"matchType" firestore:"matchType" json:"matchType"`
	CaseSensitive  bool            `yaml:"caseSensitive" firestore:"caseSensitive" json:"caseSensitive"`
	TargetCategory string          `yaml:"targetCategoryId" firestore:"targetCategoryId" json:"targetCategoryId"`
	SuggestedPayee string          `yaml:"suggestedPayee,omitempty" firestore:"suggestedPayee" json:"suggestedPayee,omitempty"`
	Priority       int             `yaml:"priority" firestore:"priority" json:"priority"`
	Conditions     []RuleCondition `yaml:"conditions,omitempty" firestore:"conditions" json:"conditions,omitempty"`
	IsEnabled      bool            `yaml:"isEnabled" firestore:"isEnabled" json:"isEnabled"`
	UseCount       int             `yaml:"useCount" firestore:"useCount" json:"useCount"`
	LastUsedAt     time.Time       `yaml:"lastUsedAt,omitempty" firestore:"lastUsedAt" json:"lastUsedAt,omitempty"`
	UpdatedAt      time.Time       `yaml:"updatedAt,omitempty" firestore:"updatedAt" json:"updatedAt,omitempty"`
}

// NewRule creates a validated rule with the keyword normalized for matching.
func NewRule(id, keyword string, matchType MatchType, caseSensitive bool, targetCategory string, priority int) (*Rule, error) {
	r := &Rule{
		ID:             id,
		RawKeyword:     keyword,
		Keyword:        strings.ToLower(strings.TrimSpace(keyword)),
		MatchType:      matchType,
		CaseSensitive:  caseSensitive,
		TargetCategory: targetCategory,
		Priority:       priority,
		IsEnabled:      true,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks all rule invariants, including condition validity and, for
// regex rules, that the pattern compiles.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return fmt.Errorf("rule keyword cannot be empty")
	}
	if !ValidateMatchType(r.MatchType) {
		return fmt.Errorf("invalid matchType %q (must be contains, exact, startsWith, or regex)", r.MatchType)
	}
	if r.TargetCategory == "" {
		return fmt.Errorf("rule targetCategoryId cannot be empty")
	}
	if r.MatchType == MatchTypeRegex {
		if _, err := regexp.Compile(r.MatchKeyword()); err != nil {
			return fmt.Errorf("invalid regex keyword %q: %w", r.MatchKeyword(), err)
		}
	}
	for i, cond := range r.Conditions {
		if err := cond.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// MatchKeyword returns the keyword to test with: the raw form for
// case-sensitive rules, the lowercased form otherwise.
func (r *Rule) MatchKeyword() string {
	if r.CaseSensitive && r.RawKeyword != "" {
		return strings.TrimSpace(r.RawKeyword)
	}
	return r.Keyword
}
