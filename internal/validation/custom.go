package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var (
	comparisonRe = regexp.MustCompile(`^\s*([\w.]+|'[^']*'|"[^"]*")\s*(<=|>=|==|=|<|>)\s*(.+?)\s*$`)
	lookupRe     = regexp.MustCompile(`^[A-Za-z_]\w*(\.\w+)*$`)
)

// runCustomLogic accepts three shapes: a SQL condition (passes when it
// returns a row), a binary comparison over context properties and literals,
// and a bare property lookup (passes when truthy). Anything else is accepted
// without evaluation.
func (f *Framework) runCustomLogic(ctx context.Context, rule Rule, req Request) (outcome, error) {
	expression := strings.TrimSpace(rule.Definition.Expression)
	props := req.Context.Properties()

	switch {
	case strings.HasPrefix(strings.ToUpper(expression), "SELECT"):
		res, err := f.query(ctx, rule, req, expression)
		if err != nil {
			return outcome{}, err
		}
		rows := len(res.Rows)
		details := map[string]any{"rows": rows}
		if rows > 0 {
			return outcome{passed: true, message: fmt.Sprintf("Condition returned %d row(s)", rows), details: details}, nil
		}
		return outcome{passed: false, message: "Condition returned no rows", details: details}, nil

	case comparisonRe.MatchString(expression):
		m := comparisonRe.FindStringSubmatch(expression)
		left := resolveOperand(m[1], props)
		right := resolveOperand(m[3], props)
		op := m[2]
		if op == "=" {
			op = "=="
		}

		out, err := expr.Eval("left "+op+" right", map[string]any{"left": left, "right": right})
		if err != nil {
			return outcome{}, fmt.Errorf("cannot evaluate %q: %w", expression, err)
		}
		passed, _ := out.(bool)
		details := map[string]any{"left": left, "operator": op, "right": right}
		if passed {
			return outcome{passed: true, message: fmt.Sprintf("%s holds", expression), details: details}, nil
		}
		return outcome{passed: false, message: fmt.Sprintf("%s does not hold (%v %s %v)", expression, left, op, right), details: details}, nil

	case lookupRe.MatchString(expression):
		value, found := lookup(expression, props)
		details := map[string]any{"property": expression, "value": value}
		if !found {
			return outcome{passed: false, message: fmt.Sprintf("Property %s is not set", expression), details: details}, nil
		}
		if truthy(value) {
			return outcome{passed: true, message: fmt.Sprintf("Property %s is set", expression), details: details}, nil
		}
		return outcome{passed: false, message: fmt.Sprintf("Property %s is empty or false", expression), details: details}, nil
	}

	return outcome{passed: true, message: "Custom logic executed successfully"}, nil
}

// resolveOperand turns a comparison operand into a value. Quoted strings,
// numbers and booleans are literals; dotted names are looked up in props and
// fall back to the raw text.
func resolveOperand(s string, props map[string]any) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if v, ok := lookup(s, props); ok {
		if n, err := toFloat(v); err == nil {
			if _, isBool := v.(bool); !isBool {
				return n
			}
		}
		return v
	}
	return s
}

// lookup walks a dotted path through nested maps.
func lookup(path string, props map[string]any) (any, bool) {
	var cur any = props
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, err := toFloat(v); err == nil {
		return f != 0
	}
	return true
}
