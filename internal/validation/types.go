package validation

import (
	"time"

	"github.com/Rana718/graftflow/internal/types"
)

type Category string

const (
	CategoryDataIntegrity Category = "data_integrity"
	CategoryPerformance   Category = "performance"
	CategorySecurity      Category = "security"
	CategoryCompliance    Category = "compliance"
	CategoryCustom        Category = "custom"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type RuleType string

const (
	RuleSQLQuery       RuleType = "sql_query"
	RuleThresholdCheck RuleType = "threshold_check"
	RulePatternMatch   RuleType = "pattern_match"
	RuleCustomLogic    RuleType = "custom_logic"
)

type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusWarnings Status = "warnings"
)

type Rule struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Category    Category       `json:"category" yaml:"category"`
	Severity    Severity       `json:"severity" yaml:"severity"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Definition  RuleDefinition `json:"definition" yaml:"definition"`
}

// RuleDefinition says how a rule is evaluated. Threshold is used by
// threshold_check rules and Pattern by pattern_match rules.
type RuleDefinition struct {
	Type           RuleType         `json:"type" yaml:"type"`
	Expression     string           `json:"expression,omitempty" yaml:"expression"`
	ExpectedResult any              `json:"expectedResult,omitempty" yaml:"expected_result"`
	Threshold      *ThresholdParams `json:"threshold,omitempty" yaml:"threshold"`
	Pattern        *PatternParams   `json:"pattern,omitempty" yaml:"pattern"`
	Timeout        time.Duration    `json:"timeout,omitempty" yaml:"timeout"`
	RetryAttempts  int              `json:"retryAttempts,omitempty" yaml:"retry_attempts"`
}

// ThresholdParams configures a threshold_check. Every metric except
// table_count needs Table. A nil Limit always passes.
type ThresholdParams struct {
	Metric string   `json:"metric" yaml:"metric"`
	Table  string   `json:"table,omitempty" yaml:"table"`
	Schema string   `json:"schema,omitempty" yaml:"schema"`
	Limit  *float64 `json:"limit,omitempty" yaml:"limit"`
}

// PatternParams configures a pattern_match. Object is one of tables,
// columns, privileges or constraints.
type PatternParams struct {
	Object string `json:"object" yaml:"object"`
	Schema string `json:"schema,omitempty" yaml:"schema"`
	Table  string `json:"table,omitempty" yaml:"table"`
	Regex  string `json:"regex" yaml:"regex"`
}

// RequestContext carries what rules may inspect besides the database.
// Attributes hold free-form values such as migration options and metadata.
type RequestContext struct {
	Source     *types.ConnectionInfo
	Target     *types.ConnectionInfo
	Attributes map[string]any
}

// Properties flattens the context into the map custom_logic expressions are
// evaluated against: source.*, target.* and the attributes at top level.
func (c RequestContext) Properties() map[string]any {
	props := make(map[string]any, len(c.Attributes)+2)
	for k, v := range c.Attributes {
		props[k] = v
	}
	if c.Source != nil {
		props["source"] = connectionProps(c.Source)
	}
	if c.Target != nil {
		props["target"] = connectionProps(c.Target)
	}
	return props
}

func connectionProps(info *types.ConnectionInfo) map[string]any {
	return map[string]any{
		"id":       info.ID,
		"name":     info.Name,
		"provider": info.Provider,
		"host":     info.Host,
		"port":     info.Port,
		"database": info.Database,
		"username": info.Username,
	}
}

// Request asks for a validation run. Connection is the database SQL-backed
// rules run against. An empty Rules list selects every enabled rule.
type Request struct {
	ID               string
	Connection       *types.ConnectionDescriptor
	Rules            []string
	FailOnWarnings   bool
	StopOnFirstError bool
	Context          RequestContext
}

type Result struct {
	RuleID        string         `json:"ruleId"`
	RuleName      string         `json:"ruleName"`
	Category      Category       `json:"category"`
	Severity      Severity       `json:"severity"`
	Passed        bool           `json:"passed"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	ExecutionTime time.Duration  `json:"executionTime"`
	RetryCount    int            `json:"retryCount"`
}

type Report struct {
	ID              string        `json:"id"`
	ConnectionID    string        `json:"connectionId,omitempty"`
	TotalRules      int           `json:"totalRules"`
	PassedRules     int           `json:"passedRules"`
	FailedRules     int           `json:"failedRules"`
	WarningRules    int           `json:"warningRules"`
	Results         []Result      `json:"results"`
	OverallStatus   Status        `json:"overallStatus"`
	CanProceed      bool          `json:"canProceed"`
	Recommendations []string      `json:"recommendations"`
	ExecutionTime   time.Duration `json:"executionTime"`
	Timestamp       time.Time     `json:"timestamp"`
}
