package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

func (p *Adapter) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	query := p.qb.Select("*").From(p.QuoteIdentifier(tableName))
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	result, err := p.ExecuteQuery(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", tableName, err)
	}
	return result.Rows, nil
}

func (p *Adapter) GenerateCreateTableSQL(table types.SchemaTable) string {
	lines := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		lines = append(lines, fmt.Sprintf("  %s %s", p.QuoteIdentifier(column.Name), p.FormatColumnType(column)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", p.QuoteIdentifier(table.Name), strings.Join(lines, ",\n"))
}

func (p *Adapter) GenerateDropTableSQL(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", p.QuoteIdentifier(tableName))
}

func (p *Adapter) GenerateAddColumnSQL(tableName string, column types.SchemaColumn) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s;",
		p.QuoteIdentifier(tableName), p.QuoteIdentifier(column.Name), p.FormatColumnType(column))
}

func (p *Adapter) GenerateDropColumnSQL(tableName, columnName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;", p.QuoteIdentifier(tableName), p.QuoteIdentifier(columnName))
}

func (p *Adapter) GenerateAddIndexSQL(index types.SchemaIndex) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		cols[i] = p.QuoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s);",
		unique, p.QuoteIdentifier(index.Name), p.QuoteIdentifier(index.Table), strings.Join(cols, ", "))
}

func (p *Adapter) GenerateDropIndexSQL(index types.SchemaIndex) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s;", p.QuoteIdentifier(index.Name))
}

func (p *Adapter) GenerateCreateEnumSQL(enum types.SchemaEnum) string {
	values := make([]string, len(enum.Values))
	for i, v := range enum.Values {
		values[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", p.QuoteIdentifier(enum.Name), strings.Join(values, ", "))
}

func (p *Adapter) GenerateDropEnumSQL(enumName string) string {
	return fmt.Sprintf("DROP TYPE IF EXISTS %s CASCADE;", p.QuoteIdentifier(enumName))
}

func (p *Adapter) FormatColumnType(column types.SchemaColumn) string {
	parts := []string{column.Type}
	if column.IsAutoIncrement && column.IsPrimary {
		switch strings.ToUpper(column.Type) {
		case "INTEGER", "INT":
			parts[0] = "SERIAL"
		case "BIGINT":
			parts[0] = "BIGSERIAL"
		}
	}

	if column.IsPrimary {
		parts = append(parts, "PRIMARY KEY")
	} else {
		if column.IsUnique {
			parts = append(parts, "UNIQUE")
		}
		if !column.Nullable {
			parts = append(parts, "NOT NULL")
		}
	}

	if column.ForeignKeyTable != "" && column.ForeignKeyColumn != "" {
		parts = append(parts, fmt.Sprintf("REFERENCES %s(%s)",
			p.QuoteIdentifier(column.ForeignKeyTable), p.QuoteIdentifier(column.ForeignKeyColumn)))
		if column.OnDeleteAction != "" {
			parts = append(parts, "ON DELETE "+column.OnDeleteAction)
		}
	}

	if column.Default != "" && !column.IsAutoIncrement {
		parts = append(parts, "DEFAULT "+column.Default)
	}
	return strings.Join(parts, " ")
}
