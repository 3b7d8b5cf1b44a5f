package common

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

var (
	commentRegex    = regexp.MustCompile(`(?m)^\s*--.*$`)
	stringRegex     = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"|` + "`(?:[^`]|``)*`")
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ParseSQLStatements splits a script on semicolons that are not inside
// string literals or quoted identifiers. Line comments and leading block
// comments are dropped.
func ParseSQLStatements(sql string) []string {
	sql = commentRegex.ReplaceAllString(sql, "")

	quoted := make(map[int]bool)
	for _, match := range stringRegex.FindAllStringIndex(sql, -1) {
		for i := match[0]; i < match[1]; i++ {
			quoted[i] = true
		}
	}

	statements := make([]string, 0, strings.Count(sql, ";")+1)
	var current strings.Builder

	flush := func() {
		stmt := stripLeadingBlockComments(strings.TrimSpace(current.String()))
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i, char := range sql {
		if char == ';' && !quoted[i] {
			flush()
			continue
		}
		current.WriteRune(char)
	}
	flush()

	return statements
}

func stripLeadingBlockComments(stmt string) string {
	for strings.HasPrefix(stmt, "/*") {
		end := strings.Index(stmt[2:], "*/")
		if end < 0 {
			return ""
		}
		stmt = strings.TrimSpace(stmt[end+4:])
	}
	return stmt
}

// ValidateIdentifier rejects names that cannot be safely interpolated where
// placeholders are not allowed (PRAGMA, DDL).
func ValidateIdentifier(name string) error {
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}

// NormalizeValue converts driver values into JSON friendly shapes.
func NormalizeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func NewQueryResult(columns []string) *types.QueryResult {
	return &types.QueryResult{Columns: columns, Rows: []map[string]interface{}{}}
}
