// Package validation runs registered rules against a database and decides
// whether a migration may proceed.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Rana718/graftflow/internal/metrics"
	"github.com/Rana718/graftflow/internal/progress"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/google/uuid"
)

var (
	ErrNoConnection = errors.New("no connection available for rule")
	ErrRuleTimeout  = errors.New("rule timed out")
	ErrUnknownRule  = errors.New("unknown rule type")
	ErrInvalidRule  = errors.New("invalid rule")
)

const (
	DefaultRuleTimeout = 30 * time.Second
	maxBackoff         = 10 * time.Second
	slowRuleThreshold  = 5 * time.Second
)

// QueryExecutor runs SQL against a connection.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, conn types.ConnectionDescriptor, query string, opts types.QueryOptions, args ...interface{}) (*types.QueryResult, error)
}

type Options struct {
	Executor    QueryExecutor
	Tracker     *progress.Tracker
	Metrics     *metrics.Collector
	Logger      *slog.Logger
	RuleTimeout time.Duration
	// Backoff returns the wait before retry attempt n (n >= 1).
	Backoff func(attempt int) time.Duration
}

// Framework owns the rule registry. Rules run in registration order.
type Framework struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string

	exec        QueryExecutor
	tracker     *progress.Tracker
	metrics     *metrics.Collector
	logger      *slog.Logger
	ruleTimeout time.Duration
	backoff     func(int) time.Duration
}

// New returns a framework with the default rules registered.
func New(opts Options) *Framework {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RuleTimeout <= 0 {
		opts.RuleTimeout = DefaultRuleTimeout
	}
	if opts.Backoff == nil {
		opts.Backoff = ExponentialBackoff
	}

	f := &Framework{
		rules:       make(map[string]Rule),
		exec:        opts.Executor,
		tracker:     opts.Tracker,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		ruleTimeout: opts.RuleTimeout,
		backoff:     opts.Backoff,
	}
	for _, r := range DefaultRules() {
		if err := f.RegisterRule(r); err != nil {
			panic(err)
		}
	}
	return f
}

// ExponentialBackoff waits min(1s * 2^(attempt-1), 10s).
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Second*time.Duration(1<<(attempt-1)), maxBackoff)
}

// DefaultRules returns the rules every framework starts with.
func DefaultRules() []Rule {
	limit := 1000.0
	return []Rule{
		{
			ID:          "data_integrity_check",
			Name:        "Data integrity check",
			Description: "Target database answers queries",
			Category:    CategoryDataIntegrity,
			Severity:    SeverityError,
			Enabled:     true,
			Definition: RuleDefinition{
				Type:           RuleSQLQuery,
				Expression:     "SELECT 1",
				ExpectedResult: 1,
				Timeout:        10 * time.Second,
			},
		},
		{
			ID:          "performance_impact_check",
			Name:        "Performance impact check",
			Description: "Target schema stays below the table count limit",
			Category:    CategoryPerformance,
			Severity:    SeverityWarning,
			Enabled:     true,
			Definition: RuleDefinition{
				Type:      RuleThresholdCheck,
				Threshold: &ThresholdParams{Metric: MetricTableCount, Limit: &limit},
				Timeout:   10 * time.Second,
			},
		},
		{
			ID:          "security_validation",
			Name:        "Security validation",
			Description: "Table names follow the lower_snake_case convention",
			Category:    CategorySecurity,
			Severity:    SeverityWarning,
			Enabled:     true,
			Definition: RuleDefinition{
				Type:    RulePatternMatch,
				Pattern: &PatternParams{Object: ObjectTables, Regex: `^[a-z_][a-z0-9_]*$`},
				Timeout: 10 * time.Second,
			},
		},
	}
}

// RegisterRule adds or replaces a rule.
func (f *Framework) RegisterRule(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rules[rule.ID]; !exists {
		f.order = append(f.order, rule.ID)
	}
	f.rules[rule.ID] = rule
	return nil
}

func validateRule(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	switch rule.Severity {
	case SeverityError, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("%w: rule %s has unknown severity %q", ErrInvalidRule, rule.ID, rule.Severity)
	}
	def := rule.Definition
	switch def.Type {
	case RuleSQLQuery, RuleCustomLogic:
		if def.Expression == "" {
			return fmt.Errorf("%w: rule %s needs an expression", ErrInvalidRule, rule.ID)
		}
	case RuleThresholdCheck:
		if def.Threshold == nil || def.Threshold.Metric == "" {
			return fmt.Errorf("%w: rule %s needs threshold.metric", ErrInvalidRule, rule.ID)
		}
	case RulePatternMatch:
		if def.Pattern == nil || def.Pattern.Object == "" {
			return fmt.Errorf("%w: rule %s needs pattern.object", ErrInvalidRule, rule.ID)
		}
	default:
		return fmt.Errorf("%w: rule %s has type %q", ErrUnknownRule, rule.ID, def.Type)
	}
	if def.RetryAttempts < 0 {
		return fmt.Errorf("%w: rule %s has negative retry_attempts", ErrInvalidRule, rule.ID)
	}
	return nil
}

// SetEnabled toggles a registered rule.
func (f *Framework) SetEnabled(id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return fmt.Errorf("rule %s is not registered", id)
	}
	rule.Enabled = enabled
	f.rules[id] = rule
	return nil
}

func (f *Framework) GetRule(id string) (Rule, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.rules[id]
	return r, ok
}

// Rules returns every registered rule in registration order.
func (f *Framework) Rules() []Rule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Rule, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.rules[id])
	}
	return out
}

func (f *Framework) GetEnabledRules() []Rule {
	return slices.DeleteFunc(f.Rules(), func(r Rule) bool { return !r.Enabled })
}

// resolveRules picks the rules for a request. Requested ids are kept in
// request order and must be enabled.
func (f *Framework) resolveRules(ids []string) []Rule {
	enabled := f.GetEnabledRules()
	if len(ids) == 0 {
		return enabled
	}
	byID := make(map[string]Rule, len(enabled))
	for _, r := range enabled {
		byID[r.ID] = r
	}
	var out []Rule
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ExecuteValidation runs the selected rules one after another and builds a
// report. Rule failures never surface as errors.
func (f *Framework) ExecuteValidation(ctx context.Context, req Request) *Report {
	start := time.Now()
	report := &Report{
		ID:        req.ID,
		Results:   []Result{},
		Timestamp: start,
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if req.Connection != nil {
		report.ConnectionID = req.Connection.ID
	}

	rules := f.resolveRules(req.Rules)
	if len(rules) == 0 {
		report.OverallStatus = StatusPassed
		report.CanProceed = true
		report.Recommendations = []string{"No validation rules are enabled; configure rules to validate migrations"}
		report.ExecutionTime = time.Since(start)
		return report
	}

	if f.tracker != nil {
		f.tracker.StartValidation(report.ID, "validation", len(rules))
	}
	f.logger.Info("validation started", "id", report.ID, "rules", len(rules))

	for i, rule := range rules {
		if ctx.Err() != nil {
			f.logger.Warn("validation interrupted", "id", report.ID, "error", ctx.Err())
			break
		}

		result := f.executeRule(ctx, rule, req)
		report.Results = append(report.Results, result)
		status := tally(report, result)
		f.metrics.RuleEvaluated(status)

		if f.tracker != nil {
			_ = f.tracker.UpdateValidation(report.ID, progress.ValidationUpdate{
				CompletedRules: i + 1,
				PassedRules:    report.PassedRules,
				FailedRules:    report.FailedRules,
				WarningRules:   report.WarningRules,
				CurrentRule:    rule.ID,
				Message:        fmt.Sprintf("Rule %s %s", rule.ID, status),
			})
		}

		if req.StopOnFirstError && result.Severity == SeverityError && !result.Passed {
			f.logger.Info("stopping validation on first error", "id", report.ID, "rule", rule.ID)
			break
		}
	}

	report.TotalRules = len(report.Results)
	report.OverallStatus = overallStatus(report)
	report.CanProceed = canProceed(report, req.FailOnWarnings)
	report.Recommendations = recommendations(report)
	report.ExecutionTime = time.Since(start)

	if f.tracker != nil {
		msg := fmt.Sprintf("Validation %s: %d passed, %d failed, %d warnings",
			report.OverallStatus, report.PassedRules, report.FailedRules, report.WarningRules)
		if report.OverallStatus == StatusFailed {
			_ = f.tracker.FailOperation(report.ID, msg)
		} else {
			_ = f.tracker.CompleteOperation(report.ID, msg)
		}
	}
	f.logger.Info("validation finished", "id", report.ID, "status", report.OverallStatus,
		"canProceed", report.CanProceed, "duration", report.ExecutionTime)
	return report
}

// tally updates the report counters for one result and returns the bucket
// it was counted in for metrics.
func tally(report *Report, r Result) string {
	switch r.Severity {
	case SeverityError:
		if r.Passed {
			report.PassedRules++
			return "passed"
		}
		report.FailedRules++
		return "failed"
	case SeverityWarning:
		report.WarningRules++
		if r.Passed {
			report.PassedRules++
		}
		return "warning"
	default:
		report.PassedRules++
		return "passed"
	}
}

func overallStatus(report *Report) Status {
	switch {
	case report.FailedRules > 0:
		return StatusFailed
	case report.WarningRules > 0:
		return StatusWarnings
	default:
		return StatusPassed
	}
}

func canProceed(report *Report, failOnWarnings bool) bool {
	if failOnWarnings {
		return report.OverallStatus == StatusPassed
	}
	return report.FailedRules == 0
}

func recommendations(report *Report) []string {
	var recs []string
	for _, r := range report.Results {
		switch {
		case r.Severity == SeverityError && !r.Passed:
			recs = append(recs, fmt.Sprintf("Resolve failed rule %q: %s", r.RuleName, r.Message))
		case r.Severity == SeverityWarning:
			recs = append(recs, fmt.Sprintf("Review warning from rule %q: %s", r.RuleName, r.Message))
		}
		if r.ExecutionTime > slowRuleThreshold {
			recs = append(recs, fmt.Sprintf("Rule %q took %s; consider optimizing its query", r.RuleName, r.ExecutionTime.Round(time.Millisecond)))
		}
	}
	return recs
}

// executeRule runs one rule with retries. A rule that keeps erroring is
// reported as a failed error-severity result.
func (f *Framework) executeRule(ctx context.Context, rule Rule, req Request) Result {
	start := time.Now()
	result := Result{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
	}
	if result.RuleName == "" {
		result.RuleName = rule.ID
	}

	var lastErr error
	for attempt := 0; attempt <= rule.Definition.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt)
			f.logger.Debug("retrying rule", "rule", rule.ID, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			result.RetryCount = attempt
		}

		outcome, err := f.dispatch(ctx, rule, req)
		if err == nil {
			result.Passed = outcome.passed
			result.Message = outcome.message
			result.Details = outcome.details
			result.ExecutionTime = time.Since(start)
			return result
		}
		lastErr = err
	}

	result.Passed = false
	result.Severity = SeverityError
	result.Message = fmt.Sprintf("Rule execution failed: %v", lastErr)
	result.Details = map[string]any{"error": lastErr.Error()}
	result.ExecutionTime = time.Since(start)
	f.logger.Warn("rule failed", "rule", rule.ID, "retries", result.RetryCount, "error", lastErr)
	return result
}

type outcome struct {
	passed  bool
	message string
	details map[string]any
}

func (f *Framework) dispatch(ctx context.Context, rule Rule, req Request) (outcome, error) {
	switch rule.Definition.Type {
	case RuleSQLQuery:
		return f.runSQLQuery(ctx, rule, req)
	case RuleThresholdCheck:
		return f.runThreshold(ctx, rule, req)
	case RulePatternMatch:
		return f.runPattern(ctx, rule, req)
	case RuleCustomLogic:
		return f.runCustomLogic(ctx, rule, req)
	default:
		return outcome{}, fmt.Errorf("%w: %s", ErrUnknownRule, rule.Definition.Type)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
