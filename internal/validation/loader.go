package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []fileRule `yaml:"rules"`
}

// fileRule mirrors Rule with an optional enabled flag, so rules listed in a
// file are enabled unless they say otherwise.
type fileRule struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Category    Category       `yaml:"category"`
	Severity    Severity       `yaml:"severity"`
	Enabled     *bool          `yaml:"enabled"`
	Definition  RuleDefinition `yaml:"definition"`
}

// LoadRulesFile reads custom rules from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, fr := range file.Rules {
		rule := Rule{
			ID:          fr.ID,
			Name:        fr.Name,
			Description: fr.Description,
			Category:    fr.Category,
			Severity:    fr.Severity,
			Enabled:     fr.Enabled == nil || *fr.Enabled,
			Definition:  fr.Definition,
		}
		if rule.Category == "" {
			rule.Category = CategoryCustom
		}
		if rule.Severity == "" {
			rule.Severity = SeverityError
		}
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rules file %s, rule #%d: %w", path, i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RegisterRulesFile loads path and registers every rule in it.
func (f *Framework) RegisterRulesFile(path string) (int, error) {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return 0, err
	}
	for _, r := range rules {
		if err := f.RegisterRule(r); err != nil {
			return 0, err
		}
	}
	f.logger.Info("validation rules loaded", "path", path, "rules", len(rules))
	return len(rules), nil
}
