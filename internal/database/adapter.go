package database

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/types"
)

type DatabaseAdapter interface {
	Connect(ctx context.Context, url string) error
	Close() error
	Ping(ctx context.Context) error

	// Execution
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*types.QueryResult, error)
	ExecuteStatements(ctx context.Context, statements []string, transactional bool) (int, error)

	// Schema operations
	GetCurrentSchema(ctx context.Context) ([]types.SchemaTable, error)
	GetCurrentEnums(ctx context.Context) ([]types.SchemaEnum, error)
	GetAllTableNames(ctx context.Context) ([]string, error)

	// Backup operations
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, error)

	// SQL generation
	GenerateCreateTableSQL(table types.SchemaTable) string
	GenerateDropTableSQL(tableName string) string
	GenerateAddColumnSQL(tableName string, column types.SchemaColumn) string
	GenerateDropColumnSQL(tableName, columnName string) string
	GenerateAddIndexSQL(index types.SchemaIndex) string
	GenerateDropIndexSQL(index types.SchemaIndex) string
	GenerateCreateEnumSQL(enum types.SchemaEnum) string
	GenerateDropEnumSQL(enumName string) string
	FormatColumnType(column types.SchemaColumn) string

	// Dialect helpers
	QuoteIdentifier(name string) string
	Builder() squirrel.StatementBuilderType
}
