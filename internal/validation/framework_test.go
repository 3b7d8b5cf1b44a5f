package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rana718/graftflow/internal/metrics"
	"github.com/Rana718/graftflow/internal/progress"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryFunc func(query string, args []interface{}) (*types.QueryResult, error)

type fakeExecutor struct {
	mu      sync.Mutex
	queries []string
	fn      queryFunc
}

func (f *fakeExecutor) ExecuteQuery(ctx context.Context, conn types.ConnectionDescriptor, query string, opts types.QueryOptions, args ...interface{}) (*types.QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.fn(query, args)
}

func value(v interface{}) *types.QueryResult {
	return &types.QueryResult{Columns: []string{"v"}, Rows: []map[string]interface{}{{"v": v}}}
}

func names(ns ...string) *types.QueryResult {
	res := &types.QueryResult{Columns: []string{"name"}}
	for _, n := range ns {
		res.Rows = append(res.Rows, map[string]interface{}{"name": n})
	}
	return res
}

func testConn() *types.ConnectionDescriptor {
	d := types.NewDescriptor(types.ConnectionInfo{ID: "B", Provider: "sqlite", Database: ":memory:"}, "")
	return &d
}

func noBackoff(int) time.Duration { return 0 }

func newFramework(fn queryFunc) (*Framework, *fakeExecutor) {
	exec := &fakeExecutor{fn: fn}
	return New(Options{Executor: exec, Backoff: noBackoff}), exec
}

// healthy answers every default rule with a passing value.
func healthy(query string, args []interface{}) (*types.QueryResult, error) {
	switch {
	case query == "SELECT 1":
		return value(int64(1)), nil
	case strings.Contains(query, "COUNT(*)"):
		return value(int64(3)), nil
	default:
		return names("users", "posts"), nil
	}
}

func TestDefaultRulesPass(t *testing.T) {
	f, _ := newFramework(healthy)

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn()})

	assert.Equal(t, 3, report.TotalRules)
	assert.Equal(t, 3, report.PassedRules)
	assert.Equal(t, 0, report.FailedRules)
	assert.Equal(t, 2, report.WarningRules)
	assert.Equal(t, StatusWarnings, report.OverallStatus)
	assert.True(t, report.CanProceed)

	failOnWarn := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), FailOnWarnings: true})
	assert.False(t, failOnWarn.CanProceed)
}

func TestRegistryOrderAndFiltering(t *testing.T) {
	f, _ := newFramework(healthy)
	require.NoError(t, f.RegisterRule(Rule{
		ID: "info_rule", Severity: SeverityInfo, Enabled: true,
		Definition: RuleDefinition{Type: RuleCustomLogic, Expression: "anything goes"},
	}))
	require.NoError(t, f.SetEnabled("security_validation", false))

	var ids []string
	for _, r := range f.GetEnabledRules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"data_integrity_check", "performance_impact_check", "info_rule"}, ids)

	report := f.ExecuteValidation(context.Background(), Request{
		Connection: testConn(),
		Rules:      []string{"info_rule", "security_validation", "missing"},
	})
	require.Len(t, report.Results, 1)
	assert.Equal(t, "info_rule", report.Results[0].RuleID)
	assert.Equal(t, StatusPassed, report.OverallStatus)

	assert.ErrorIs(t, f.RegisterRule(Rule{ID: "bad", Severity: SeverityError, Definition: RuleDefinition{Type: "shell"}}), ErrUnknownRule)
	assert.ErrorIs(t, f.RegisterRule(Rule{ID: "bad", Severity: SeverityError, Definition: RuleDefinition{Type: RuleSQLQuery}}), ErrInvalidRule)
}

func TestEmptyRuleSetPasses(t *testing.T) {
	f, exec := newFramework(healthy)
	for _, r := range f.Rules() {
		require.NoError(t, f.SetEnabled(r.ID, false))
	}

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn()})
	assert.Equal(t, StatusPassed, report.OverallStatus)
	assert.True(t, report.CanProceed)
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "configure rules")
	assert.Empty(t, exec.queries)
}

func TestRetryThenPass(t *testing.T) {
	calls := 0
	f, _ := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("connection reset")
		}
		return value(int64(0)), nil
	})
	require.NoError(t, f.RegisterRule(Rule{
		ID: "orphans", Name: "No orphans", Severity: SeverityError, Enabled: true,
		Definition: RuleDefinition{Type: RuleSQLQuery, Expression: "SELECT COUNT(*) FROM orphans", ExpectedResult: 0, RetryAttempts: 2},
	}))

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{"orphans"}})
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.True(t, res.Passed)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, calls)
}

func TestExhaustedRetriesFailAsError(t *testing.T) {
	f, exec := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		return nil, errors.New("down")
	})
	require.NoError(t, f.RegisterRule(Rule{
		ID: "naming", Severity: SeverityWarning, Enabled: true,
		Definition: RuleDefinition{Type: RuleSQLQuery, Expression: "SELECT 1", RetryAttempts: 1},
	}))

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{"naming"}})
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, SeverityError, res.Severity)
	assert.Equal(t, 1, res.RetryCount)
	assert.Equal(t, 1, report.FailedRules)
	assert.Equal(t, StatusFailed, report.OverallStatus)
	assert.False(t, report.CanProceed)
	assert.Len(t, exec.queries, 2)
}

func TestStopOnFirstError(t *testing.T) {
	f, exec := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		return value(int64(2)), nil
	})

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), StopOnFirstError: true})
	require.Len(t, report.Results, 1)
	assert.Equal(t, "data_integrity_check", report.Results[0].RuleID)
	assert.False(t, report.Results[0].Passed)
	assert.Len(t, exec.queries, 1)
	assert.NotEmpty(t, report.Recommendations)
}

func TestCountsMatchStatus(t *testing.T) {
	f, _ := newFramework(healthy)
	rules := []Rule{
		{ID: "e_pass", Severity: SeverityError, Enabled: true, Definition: RuleDefinition{Type: RuleCustomLogic, Expression: "1 < 2"}},
		{ID: "w_fail", Severity: SeverityWarning, Enabled: true, Definition: RuleDefinition{Type: RuleCustomLogic, Expression: "1 > 2"}},
		{ID: "i_fail", Severity: SeverityInfo, Enabled: true, Definition: RuleDefinition{Type: RuleCustomLogic, Expression: "1 > 2"}},
		{ID: "e_fail", Severity: SeverityError, Enabled: true, Definition: RuleDefinition{Type: RuleCustomLogic, Expression: "1 >= 2"}},
	}
	var ids []string
	for _, r := range rules {
		require.NoError(t, f.RegisterRule(r))
		ids = append(ids, r.ID)
	}

	report := f.ExecuteValidation(context.Background(), Request{Rules: ids})
	assert.Equal(t, 4, report.TotalRules)
	assert.Equal(t, 2, report.PassedRules)
	assert.Equal(t, 1, report.FailedRules)
	assert.Equal(t, 1, report.WarningRules)
	assert.Equal(t, StatusFailed, report.OverallStatus)
	assert.False(t, report.CanProceed)
}

func TestThresholdCheck(t *testing.T) {
	f, exec := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		return value(int64(1500)), nil
	})
	limit := 1000.0
	require.NoError(t, f.RegisterRule(Rule{
		ID: "big_users", Severity: SeverityWarning, Enabled: true,
		Definition: RuleDefinition{Type: RuleThresholdCheck, Threshold: &ThresholdParams{Metric: MetricRowCount, Table: "users", Limit: &limit}},
	}))
	require.NoError(t, f.RegisterRule(Rule{
		ID: "bad_table", Severity: SeverityError, Enabled: true,
		Definition: RuleDefinition{Type: RuleThresholdCheck, Threshold: &ThresholdParams{Metric: MetricRowCount, Table: "users; DROP TABLE x", Limit: &limit}},
	}))

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{"big_users", "bad_table"}})
	assert.False(t, report.Results[0].Passed)
	assert.Equal(t, 1500.0, report.Results[0].Details["actual"])
	assert.Equal(t, `SELECT COUNT(*) FROM "users"`, exec.queries[0])

	assert.False(t, report.Results[1].Passed)
	assert.Len(t, exec.queries, 1, "invalid identifiers never reach the database")
}

func TestPatternMatch(t *testing.T) {
	f, _ := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		return names("users", "UserProfiles", "audit_log"), nil
	})

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{"security_validation"}})
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.Details["matching"])
	assert.Equal(t, 1, res.Details["nonMatching"])
	assert.Equal(t, []string{"UserProfiles"}, res.Details["nonMatchingExamples"])
	assert.Equal(t, 1, report.WarningRules)
	assert.True(t, report.CanProceed)
}

func TestCustomLogic(t *testing.T) {
	f, _ := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		if strings.Contains(query, "none") {
			return &types.QueryResult{Columns: []string{"id"}}, nil
		}
		return value(1), nil
	})
	reqCtx := RequestContext{
		Source: &types.ConnectionInfo{ID: "A", Provider: "postgresql", Port: 5432},
		Target: &types.ConnectionInfo{ID: "B", Provider: "postgresql", Port: 5433},
		Attributes: map[string]any{
			"options":  map[string]any{"useBatching": true, "batchSize": 10},
			"metadata": map[string]any{"environment": "staging"},
		},
	}

	tests := []struct {
		expr   string
		passed bool
	}{
		{"target.provider == source.provider", true},
		{"metadata.environment = 'staging'", true},
		{"metadata.environment = 'production'", false},
		{"options.batchSize <= 5", false},
		{"target.port > source.port", true},
		{"options.useBatching", true},
		{"options.missing", false},
		{"SELECT id FROM t WHERE ok", true},
		{"SELECT id FROM none", false},
		{"approve if reviewed by two people", true},
	}

	for i, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			id := "custom_" + string(rune('a'+i))
			require.NoError(t, f.RegisterRule(Rule{
				ID: id, Severity: SeverityError, Enabled: true,
				Definition: RuleDefinition{Type: RuleCustomLogic, Expression: tt.expr},
			}))
			report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{id}, Context: reqCtx})
			require.Len(t, report.Results, 1)
			assert.Equal(t, tt.passed, report.Results[0].Passed, report.Results[0].Message)
		})
	}
}

func TestSQLQueryTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f, _ := newFramework(func(query string, args []interface{}) (*types.QueryResult, error) {
		<-release
		return value(1), nil
	})
	require.NoError(t, f.RegisterRule(Rule{
		ID: "slow", Severity: SeverityError, Enabled: true,
		Definition: RuleDefinition{Type: RuleSQLQuery, Expression: "SELECT pg_sleep(10)", Timeout: 20 * time.Millisecond},
	}))

	report := f.ExecuteValidation(context.Background(), Request{Connection: testConn(), Rules: []string{"slow"}})
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "timed out")
}

func TestNoConnection(t *testing.T) {
	f, _ := newFramework(healthy)
	report := f.ExecuteValidation(context.Background(), Request{Rules: []string{"data_integrity_check"}})
	assert.False(t, report.Results[0].Passed)
	assert.Contains(t, report.Results[0].Message, ErrNoConnection.Error())
}

func TestMatchesExpected(t *testing.T) {
	assert.True(t, matchesExpected(int64(1), 1))
	assert.True(t, matchesExpected("1", 1.0))
	assert.True(t, matchesExpected([]byte("42"), 42))
	assert.True(t, matchesExpected(int64(1), true))
	assert.True(t, matchesExpected("t", true))
	assert.True(t, matchesExpected("ok", "ok"))
	assert.False(t, matchesExpected(int64(2), 1))
	assert.False(t, matchesExpected("no", true))
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(1))
	assert.Equal(t, 2*time.Second, ExponentialBackoff(2))
	assert.Equal(t, 8*time.Second, ExponentialBackoff(4))
	assert.Equal(t, 10*time.Second, ExponentialBackoff(5))
	assert.Equal(t, 10*time.Second, ExponentialBackoff(12))
}

func TestTrackerAndMetrics(t *testing.T) {
	tracker := progress.New(progress.Options{})
	defer tracker.Close()
	collector := metrics.NewCollector()

	f := New(Options{Executor: &fakeExecutor{fn: healthy}, Tracker: tracker, Metrics: collector, Backoff: noBackoff})
	report := f.ExecuteValidation(context.Background(), Request{ID: "v1", Connection: testConn()})

	rec, ok := tracker.GetProgress("v1")
	require.True(t, ok)
	assert.Equal(t, progress.KindValidation, rec.Kind)
	assert.Equal(t, 100, rec.Percentage)
	assert.Equal(t, report.WarningRules, rec.Validation.WarningRules)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ValidationRulesTotal.WithLabelValues("passed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ValidationRulesTotal.WithLabelValues("warning")))
}

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := `rules:
  - id: no_orphan_orders
    name: No orphan orders
    category: data_integrity
    severity: error
    definition:
      type: sql_query
      expression: SELECT COUNT(*) FROM orders o LEFT JOIN users u ON u.id = o.user_id WHERE u.id IS NULL
      expected_result: 0
      timeout: 5s
      retry_attempts: 2
  - id: users_size
    enabled: false
    severity: warning
    definition:
      type: threshold_check
      threshold:
        metric: row_count
        table: users
        limit: 100000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.True(t, rules[0].Enabled)
	assert.Equal(t, 5*time.Second, rules[0].Definition.Timeout)
	assert.Equal(t, 2, rules[0].Definition.RetryAttempts)
	assert.Equal(t, 0, rules[0].Definition.ExpectedResult)

	assert.False(t, rules[1].Enabled)
	assert.Equal(t, CategoryCustom, rules[1].Category)
	require.NotNil(t, rules[1].Definition.Threshold.Limit)
	assert.Equal(t, 100000.0, *rules[1].Definition.Threshold.Limit)

	f, _ := newFramework(healthy)
	n, err := f.RegisterRulesFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.Rules(), 5)
}

func TestLoadRulesFileRejectsInvalidRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: x\n    definition:\n      type: shell\n"), 0644))

	_, err := LoadRulesFile(path)
	assert.ErrorIs(t, err, ErrUnknownRule)
}
