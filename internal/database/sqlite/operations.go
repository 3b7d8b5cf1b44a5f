package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

func (s *Adapter) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	sqlText, args, err := s.qb.Select("*").From(s.QuoteIdentifier(tableName)).ToSql()
	if err != nil {
		return nil, err
	}

	result, err := s.ExecuteQuery(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", tableName, err)
	}
	return result.Rows, nil
}

func (s *Adapter) GenerateCreateTableSQL(table types.SchemaTable) string {
	lines := make([]string, 0, len(table.Columns))
	var foreignKeys []string
	for _, column := range table.Columns {
		lines = append(lines, fmt.Sprintf("  %s %s", s.QuoteIdentifier(column.Name), s.FormatColumnType(column)))
		if column.ForeignKeyTable != "" && column.ForeignKeyColumn != "" {
			fk := fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)", s.QuoteIdentifier(column.Name),
				s.QuoteIdentifier(column.ForeignKeyTable), s.QuoteIdentifier(column.ForeignKeyColumn))
			if column.OnDeleteAction != "" {
				fk += " ON DELETE " + column.OnDeleteAction
			}
			foreignKeys = append(foreignKeys, fk)
		}
	}
	lines = append(lines, foreignKeys...)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", s.QuoteIdentifier(table.Name), strings.Join(lines, ",\n"))
}

func (s *Adapter) GenerateDropTableSQL(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", s.QuoteIdentifier(tableName))
}

func (s *Adapter) GenerateAddColumnSQL(tableName string, column types.SchemaColumn) string {
	// SQLite cannot add PRIMARY KEY or UNIQUE columns with ALTER TABLE
	column.IsPrimary = false
	column.IsUnique = false
	if !column.Nullable && column.Default == "" {
		column.Nullable = true
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;",
		s.QuoteIdentifier(tableName), s.QuoteIdentifier(column.Name), s.FormatColumnType(column))
}

func (s *Adapter) GenerateDropColumnSQL(tableName, columnName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", s.QuoteIdentifier(tableName), s.QuoteIdentifier(columnName))
}

func (s *Adapter) GenerateAddIndexSQL(index types.SchemaIndex) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		cols[i] = s.QuoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s);",
		unique, s.QuoteIdentifier(index.Name), s.QuoteIdentifier(index.Table), strings.Join(cols, ", "))
}

func (s *Adapter) GenerateDropIndexSQL(index types.SchemaIndex) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s;", s.QuoteIdentifier(index.Name))
}

func (s *Adapter) GenerateCreateEnumSQL(enum types.SchemaEnum) string {
	return fmt.Sprintf("-- sqlite has no enum types; %s is stored as TEXT", enum.Name)
}

func (s *Adapter) GenerateDropEnumSQL(enumName string) string {
	return fmt.Sprintf("-- sqlite has no enum types; nothing to drop for %s", enumName)
}

func (s *Adapter) FormatColumnType(column types.SchemaColumn) string {
	parts := []string{formatType(column.Type)}

	if column.IsPrimary {
		parts = append(parts, "PRIMARY KEY")
		if column.IsAutoIncrement && parts[0] == "INTEGER" {
			parts = append(parts, "AUTOINCREMENT")
		}
	} else {
		if column.IsUnique {
			parts = append(parts, "UNIQUE")
		}
		if !column.Nullable {
			parts = append(parts, "NOT NULL")
		}
	}

	if column.Default != "" && !column.IsAutoIncrement {
		def := column.Default
		if strings.EqualFold(def, "NOW()") {
			def = "CURRENT_TIMESTAMP"
		}
		parts = append(parts, "DEFAULT "+def)
	}
	return strings.Join(parts, " ")
}
