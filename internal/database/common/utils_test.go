package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSQLStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "simple statements",
			sql:  "CREATE TABLE a (id INT); CREATE TABLE b (id INT);",
			want: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name: "semicolon inside string literal",
			sql:  "INSERT INTO t VALUES ('a;b'); SELECT 1",
			want: []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name: "line comments dropped",
			sql:  "-- header\nCREATE TABLE a (id INT);\n-- trailer\n",
			want: []string{"CREATE TABLE a (id INT)"},
		},
		{
			name: "leading block comment kept statement",
			sql:  "/* note */ CREATE TABLE a (id INT);\n/* a */ /* b */\nCREATE TABLE b (id INT);",
			want: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name: "comment only statement dropped",
			sql:  "/* just a note */; CREATE TABLE a (id INT); /* unterminated",
			want: []string{"CREATE TABLE a (id INT)"},
		},
		{
			name: "empty script",
			sql:  "  \n ; ;",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSQLStatements(tt.sql))
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("users_2024"))
	assert.Error(t, ValidateIdentifier("users; DROP TABLE x"))
	assert.Error(t, ValidateIdentifier("1users"))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "abc", NormalizeValue([]byte("abc")))
	assert.Equal(t, int64(4), NormalizeValue(int64(4)))
	assert.Nil(t, NormalizeValue(nil))
	assert.Equal(t, "[1 2]", NormalizeValue([]int{1, 2}))
}
