package database

import (
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/database/mysql"
	"github.com/Rana718/graftflow/internal/database/postgres"
	"github.com/Rana718/graftflow/internal/database/sqlite"
)

var SupportedProviders = []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"}

func NewAdapter(provider string) (DatabaseAdapter, error) {
	switch NormalizeProvider(provider) {
	case "postgresql":
		return postgres.New(), nil
	case "mysql":
		return mysql.New(), nil
	case "sqlite":
		return sqlite.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database provider: %s", provider)
	}
}

// NormalizeProvider folds provider aliases onto postgresql, mysql or sqlite.
func NormalizeProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres", "pg", "":
		return "postgresql"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(provider)
	}
}
