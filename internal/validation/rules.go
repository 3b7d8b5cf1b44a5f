package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Rana718/graftflow/internal/types"
)

const maxExamples = 10

// query runs sql on the request's connection and races it against the
// rule timeout. The query context is cancelled once the race is decided.
func (f *Framework) query(ctx context.Context, rule Rule, req Request, sql string, args ...interface{}) (*types.QueryResult, error) {
	if req.Connection == nil {
		return nil, ErrNoConnection
	}
	if f.exec == nil {
		return nil, fmt.Errorf("%w: no query executor configured", ErrNoConnection)
	}

	timeout := rule.Definition.Timeout
	if timeout <= 0 {
		timeout = f.ruleTimeout
	}

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type reply struct {
		res *types.QueryResult
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := f.exec.ExecuteQuery(qctx, *req.Connection, sql, types.QueryOptions{}, args...)
		ch <- reply{res, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrRuleTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Framework) runSQLQuery(ctx context.Context, rule Rule, req Request) (outcome, error) {
	def := rule.Definition
	res, err := f.query(ctx, rule, req, def.Expression)
	if err != nil {
		return outcome{}, err
	}

	if def.ExpectedResult == nil {
		return outcome{passed: true, message: "Query executed successfully"}, nil
	}

	actual, ok := res.FirstValue()
	details := map[string]any{"expected": def.ExpectedResult, "actual": actual}
	if !ok {
		return outcome{passed: false, message: "Query returned no rows", details: details}, nil
	}
	if matchesExpected(actual, def.ExpectedResult) {
		return outcome{passed: true, message: "Query result matches expected value", details: details}, nil
	}
	return outcome{
		passed:  false,
		message: fmt.Sprintf("Expected %v, got %v", def.ExpectedResult, actual),
		details: details,
	}, nil
}

func (f *Framework) runThreshold(ctx context.Context, rule Rule, req Request) (outcome, error) {
	p := *rule.Definition.Threshold
	if p.Limit == nil {
		return outcome{passed: true, message: "No threshold configured"}, nil
	}
	if req.Connection == nil {
		return outcome{}, ErrNoConnection
	}

	d, err := dialectFor(req.Connection.Provider)
	if err != nil {
		return outcome{}, err
	}
	sql, args, err := d.metricQuery(p)
	if err != nil {
		return outcome{}, err
	}

	res, err := f.query(ctx, rule, req, sql, args...)
	if err != nil {
		return outcome{}, err
	}
	v, ok := res.FirstValue()
	if !ok {
		return outcome{}, fmt.Errorf("metric %s returned no value", p.Metric)
	}
	actual, err := toFloat(v)
	if err != nil {
		return outcome{}, fmt.Errorf("metric %s: %w", p.Metric, err)
	}

	details := map[string]any{"metric": p.Metric, "actual": actual, "threshold": *p.Limit}
	if p.Table != "" {
		details["table"] = p.Table
	}
	if actual <= *p.Limit {
		return outcome{passed: true, message: fmt.Sprintf("%s is %v (limit %v)", p.Metric, actual, *p.Limit), details: details}, nil
	}
	return outcome{
		passed:  false,
		message: fmt.Sprintf("%s is %v, above the limit of %v", p.Metric, actual, *p.Limit),
		details: details,
	}, nil
}

func (f *Framework) runPattern(ctx context.Context, rule Rule, req Request) (outcome, error) {
	p := *rule.Definition.Pattern
	if p.Regex == "" {
		p.Regex = rule.Definition.Expression
	}
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return outcome{}, fmt.Errorf("invalid pattern %q: %w", p.Regex, err)
	}
	if req.Connection == nil {
		return outcome{}, ErrNoConnection
	}

	d, err := dialectFor(req.Connection.Provider)
	if err != nil {
		return outcome{}, err
	}
	sql, args, err := d.objectQuery(p)
	if err != nil {
		return outcome{}, err
	}
	res, err := f.query(ctx, rule, req, sql, args...)
	if err != nil {
		return outcome{}, err
	}

	var matching, nonMatching []string
	matchCount, nonMatchCount := 0, 0
	for _, row := range res.Rows {
		if len(res.Columns) == 0 {
			break
		}
		name := fmt.Sprint(row[res.Columns[0]])
		if re.MatchString(name) {
			matchCount++
			if len(matching) < maxExamples {
				matching = append(matching, name)
			}
		} else {
			nonMatchCount++
			if len(nonMatching) < maxExamples {
				nonMatching = append(nonMatching, name)
			}
		}
	}

	details := map[string]any{
		"object":              p.Object,
		"pattern":             p.Regex,
		"matching":            matchCount,
		"nonMatching":         nonMatchCount,
		"matchingExamples":    matching,
		"nonMatchingExamples": nonMatching,
	}
	if nonMatchCount == 0 {
		return outcome{passed: true, message: fmt.Sprintf("All %d %s match %s", matchCount, p.Object, p.Regex), details: details}, nil
	}
	return outcome{
		passed:  false,
		message: fmt.Sprintf("%d of %d %s do not match %s", nonMatchCount, matchCount+nonMatchCount, p.Object, p.Regex),
		details: details,
	}, nil
}

// matchesExpected compares by the expected value's type.
func matchesExpected(actual, expected any) bool {
	switch e := expected.(type) {
	case bool:
		b, ok := toBool(actual)
		return ok && b == e
	case string:
		return fmt.Sprint(actual) == e
	}
	if ef, err := toFloat(expected); err == nil {
		af, err := toFloat(actual)
		return err == nil && af == ef
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("cannot use %T as a number", v)
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	if f, err := toFloat(v); err == nil {
		return f != 0, true
	}
	return false, false
}
