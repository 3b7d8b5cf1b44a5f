package migrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   RiskLevel
	}{
		{"create only", `CREATE TABLE "a" (id int);`, RiskLow},
		{"alter", `ALTER TABLE "a" ADD COLUMN b int;`, RiskMedium},
		{"drop index", `DROP INDEX idx_a;`, RiskMedium},
		{"drop table after alter", "ALTER TABLE \"a\" ADD COLUMN b int;\nDROP TABLE \"b\";", RiskHigh},
		{"drop table before alter", "DROP TABLE \"b\";\nALTER TABLE \"a\" ADD COLUMN b int;", RiskHigh},
		{"lowercase truncate", `truncate "a";`, RiskHigh},
		{"empty", "", RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assessRisk(tt.script))
		})
	}
}

func TestCountOperationsSkipsCommentsAndBlanks(t *testing.T) {
	script := "-- header\n\nCREATE TABLE \"a\" (id int);\n  -- note\nCREATE TABLE \"b\" (id int);\n"
	assert.Equal(t, 2, countOperations(script))
}

func TestExtractTableName(t *testing.T) {
	assert.Equal(t, "users", extractTableName(`CREATE TABLE IF NOT EXISTS "users" (id int);`))
	assert.Equal(t, "orders", extractTableName("ALTER TABLE ONLY orders ADD COLUMN x int;"))
	assert.Equal(t, "legacy", extractTableName("DROP TABLE `legacy`;"))
	assert.Equal(t, "", extractTableName("CREATE INDEX idx ON users (id);"))
}

func TestScriptWarnings(t *testing.T) {
	w := scriptWarnings("DROP TABLE \"a\";\nALTER TABLE \"b\" ADD COLUMN c int;")
	assert.Len(t, w, 2)
	assert.Empty(t, scriptWarnings(`CREATE TABLE "a" (id int);`))
}
