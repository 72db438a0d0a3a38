// Package rules evaluates and applies priority-ordered categorization rules.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

// Engine matches transactions against an ordered rule set.
type Engine struct {
	rules []domain.Rule // sorted by priority, highest first
	// Regex rules compile once at construction; keyed by rule ID.
	compiled map[string]*regexp.Regexp
}

// NewEngine creates an engine from a rule set. Every rule is validated, then
// the set is stable-sorted by priority (highest first) so equal priorities
// keep their input order. Given the same rule set ordering, selection is
// deterministic and reproducible.
func NewEngine(ruleSet []domain.Rule) (*Engine, error) {
	compiled := make(map[string]*regexp.Regexp)
	for i, rule := range ruleSet {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
		if rule.MatchType == domain.MatchTypeRegex {
			pattern := rule.MatchKeyword()
			if !rule.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): invalid regex: %w", i, rule.ID, err)
			}
			compiled[rule.ID] = re
		}
	}

	sorted := make([]domain.Rule, len(ruleSet))
	copy(sorted, ruleSet)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Engine{rules: sorted, compiled: compiled}, nil
}

// Match returns the highest-priority enabled rule whose keyword test and
// structured conditions all pass against the transaction. Returns
// (zero, false) when nothing matches.
func (e *Engine) Match(txn *domain.Transaction) (domain.Rule, bool) {
	for _, rule := range e.rules {
		if !rule.IsEnabled {
			continue
		}
		if !e.keywordMatches(rule, txn.Description) {
			continue
		}
		if !conditionsMatch(rule, txn) {
			continue
		}
		return rule, true
	}
	return domain.Rule{}, false
}

func (e *Engine) keywordMatches(rule domain.Rule, description string) bool {
	keyword := rule.MatchKeyword()
	desc := strings.TrimSpace(description)
	if !rule.CaseSensitive {
		desc = strings.ToLower(desc)
	}

	switch rule.MatchType {
	case domain.MatchTypeContains:
		return strings.Contains(desc, keyword)
	case domain.MatchTypeExact:
		return desc == keyword
	case domain.MatchTypeStartsWith:
		return strings.HasPrefix(desc, keyword)
	case domain.MatchTypeRegex:
		re, ok := e.compiled[rule.ID]
		if !ok {
			return false
		}
		return re.MatchString(strings.TrimSpace(description))
	}
	return false
}

func conditionsMatch(rule domain.Rule, txn *domain.Transaction) bool {
	for _, cond := range rule.Conditions {
		if !cond.Matches(txn.Amount, txn.Date) {
			return false
		}
	}
	return true
}

// Rules returns a copy of the engine's rules in evaluation order.
func (e *Engine) Rules() []domain.Rule {
	out := make([]domain.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
