package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thetrev68/papas-books-sub000/internal/domain"
)

//go:embed rules.yaml
var embeddedRules []byte

// ruleFile is the top-level YAML structure.
type ruleFile struct {
	Rules []domain.Rule `yaml:"rules"`
}

// Load parses a YAML rule set. Load is the write boundary for file-backed
// rules, so keywords are lowercased here, with the raw form kept for
// case-sensitive rules. Disabled rules stay in the set so listing them still
// works; the engine skips them at match time.
func Load(data []byte) ([]domain.Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i := range file.Rules {
		rule := &file.Rules[i]
		if rule.RawKeyword == "" {
			rule.RawKeyword = rule.Keyword
		}
		rule.Keyword = strings.ToLower(strings.TrimSpace(rule.Keyword))
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("rule-%d", i)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
	}

	return file.Rules, nil
}

// LoadEmbedded returns the built-in starter rule set.
func LoadEmbedded() ([]domain.Rule, error) {
	ruleSet, err := Load(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return ruleSet, nil
}

// LoadFromFile reads a rule set from a filesystem path.
func LoadFromFile(path string) ([]domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	ruleSet, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return ruleSet, nil
}
