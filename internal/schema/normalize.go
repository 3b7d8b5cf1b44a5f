package schema

import (
	"strings"
)

var typeAliases = map[string]string{
	"INT":               "INTEGER",
	"INT4":              "INTEGER",
	"INT8":              "BIGINT",
	"INT2":              "SMALLINT",
	"SERIAL":            "INTEGER",
	"BIGSERIAL":         "BIGINT",
	"SMALLSERIAL":       "SMALLINT",
	"CHARACTER VARYING": "VARCHAR",
	"CHARACTER":         "CHAR",
	"BOOL":              "BOOLEAN",
	"TINYINT(1)":        "BOOLEAN",
	"FLOAT4":            "REAL",
	"FLOAT8":            "DOUBLE PRECISION",
	"DOUBLE":            "DOUBLE PRECISION",
	"DECIMAL":           "NUMERIC",

	"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
	"TIMESTAMP WITH TIME ZONE":    "TIMESTAMPTZ",
}

// normalizeType maps dialect spellings of a type onto one name, keeping any
// parameters: "int4" and "INTEGER" compare equal, "character varying(20)"
// becomes "VARCHAR(20)".
func normalizeType(dbType string) string {
	dbType = strings.ToUpper(strings.TrimSpace(dbType))
	if alias, ok := typeAliases[dbType]; ok {
		return alias
	}
	if base, params, found := strings.Cut(dbType, "("); found {
		if alias, ok := typeAliases[strings.TrimSpace(base)]; ok {
			return alias + "(" + params
		}
	}
	return dbType
}

func equivalentType(a, b string) bool {
	return normalizeType(a) == normalizeType(b)
}

var nowDefaults = []string{"NOW()", "CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP()"}

// equivalentDefault treats the spellings of "now" and an explicit NULL as the
// same default.
func equivalentDefault(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	ua, ub := strings.ToUpper(a), strings.ToUpper(b)
	if ua == ub {
		return true
	}
	if isNowDefault(ua) && isNowDefault(ub) {
		return true
	}
	return (ua == "NULL" && b == "") || (a == "" && ub == "NULL")
}

func isNowDefault(s string) bool {
	for _, v := range nowDefaults {
		if s == v || s == "'"+v+"'" {
			return true
		}
	}
	return false
}
