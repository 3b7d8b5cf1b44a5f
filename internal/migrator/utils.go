package migrator

import (
	"strings"
)

const largeScriptLines = 100

var (
	highRiskKeywords   = []string{"DROP TABLE", "DROP SCHEMA", "TRUNCATE", "DELETE FROM"}
	mediumRiskKeywords = []string{"DROP", "ALTER TABLE"}
)

// assessRisk classifies a script by keyword presence. High keywords win
// over medium ones regardless of where they appear.
func assessRisk(script string) RiskLevel {
	upper := strings.ToUpper(script)
	for _, kw := range highRiskKeywords {
		if strings.Contains(upper, kw) {
			return RiskHigh
		}
	}
	for _, kw := range mediumRiskKeywords {
		if strings.Contains(upper, kw) {
			return RiskMedium
		}
	}
	return RiskLow
}

func scriptWarnings(script string) []string {
	upper := strings.ToUpper(script)
	warnings := []string{}

	checks := []struct {
		keyword string
		message string
	}{
		{"DROP TABLE", "Script drops tables; their data will be lost"},
		{"TRUNCATE", "Script truncates tables; their data will be lost"},
		{"DROP SCHEMA", "Script drops a schema and everything in it"},
		{"ALTER TABLE", "Script alters existing tables; large tables may be locked while it runs"},
	}
	for _, c := range checks {
		if strings.Contains(upper, c.keyword) {
			warnings = append(warnings, c.message)
		}
	}

	if lines := strings.Count(script, "\n") + 1; lines > largeScriptLines {
		warnings = append(warnings, "Script is large; consider enabling batched execution")
	}
	return warnings
}

// countOperations counts non-empty lines that are not comments. It is a
// coarse size measure, not a statement count.
func countOperations(script string) int {
	count := 0
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			count++
		}
	}
	return count
}

func classify(stmt string) OperationType {
	fields := strings.Fields(strings.ToUpper(stmt))
	if len(fields) < 2 {
		return OpOther
	}
	switch {
	case fields[0] == "CREATE" && fields[1] == "TABLE":
		return OpCreateTable
	case fields[0] == "DROP" && fields[1] == "TABLE":
		return OpDropTable
	case fields[0] == "ALTER" && fields[1] == "TABLE":
		return OpAlterTable
	case fields[0] == "CREATE" && (fields[1] == "INDEX" || (fields[1] == "UNIQUE" && len(fields) > 2 && fields[2] == "INDEX")):
		return OpCreateIndex
	}
	return OpOther
}

// extractTableName returns the table a CREATE/ALTER/DROP TABLE statement
// targets, without quotes.
func extractTableName(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) < 3 {
		return ""
	}
	switch classify(stmt) {
	case OpCreateTable, OpAlterTable, OpDropTable:
	default:
		return ""
	}

	rest := fields[2:]
	for len(rest) > 0 {
		upper := strings.ToUpper(rest[0])
		if upper == "IF" || upper == "NOT" || upper == "EXISTS" || upper == "ONLY" {
			rest = rest[1:]
			continue
		}
		break
	}
	if len(rest) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(rest[0], "(")
	return strings.Trim(name, "\"'`;")
}
