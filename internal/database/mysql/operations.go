package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

func (m *Adapter) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	sqlText, args, err := m.qb.Select("*").From(m.QuoteIdentifier(tableName)).ToSql()
	if err != nil {
		return nil, err
	}

	result, err := m.ExecuteQuery(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", tableName, err)
	}
	return result.Rows, nil
}

func (m *Adapter) GenerateCreateTableSQL(table types.SchemaTable) string {
	lines := make([]string, 0, len(table.Columns))
	var foreignKeys []string
	for _, column := range table.Columns {
		lines = append(lines, fmt.Sprintf("  %s %s", m.QuoteIdentifier(column.Name), m.FormatColumnType(column)))
		if column.ForeignKeyTable != "" && column.ForeignKeyColumn != "" {
			fk := fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s(%s)", m.QuoteIdentifier(column.Name),
				m.QuoteIdentifier(column.ForeignKeyTable), m.QuoteIdentifier(column.ForeignKeyColumn))
			if column.OnDeleteAction != "" {
				fk += " ON DELETE " + column.OnDeleteAction
			}
			foreignKeys = append(foreignKeys, fk)
		}
	}
	lines = append(lines, foreignKeys...)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", m.QuoteIdentifier(table.Name), strings.Join(lines, ",\n"))
}

func (m *Adapter) GenerateDropTableSQL(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", m.QuoteIdentifier(tableName))
}

func (m *Adapter) GenerateAddColumnSQL(tableName string, column types.SchemaColumn) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;",
		m.QuoteIdentifier(tableName), m.QuoteIdentifier(column.Name), m.FormatColumnType(column))
}

func (m *Adapter) GenerateDropColumnSQL(tableName, columnName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", m.QuoteIdentifier(tableName), m.QuoteIdentifier(columnName))
}

func (m *Adapter) GenerateAddIndexSQL(index types.SchemaIndex) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		cols[i] = m.QuoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
		unique, m.QuoteIdentifier(index.Name), m.QuoteIdentifier(index.Table), strings.Join(cols, ", "))
}

// GenerateDropIndexSQL needs the owning table because MySQL indexes are
// table scoped.
func (m *Adapter) GenerateDropIndexSQL(index types.SchemaIndex) string {
	return fmt.Sprintf("DROP INDEX %s ON %s;", m.QuoteIdentifier(index.Name), m.QuoteIdentifier(index.Table))
}

// MySQL has no standalone enum types; enums live on columns.
func (m *Adapter) GenerateCreateEnumSQL(enum types.SchemaEnum) string {
	return fmt.Sprintf("-- enum %s is defined inline on its column", enum.Name)
}

func (m *Adapter) GenerateDropEnumSQL(enumName string) string {
	return fmt.Sprintf("-- enum %s is dropped with its column", enumName)
}

func (m *Adapter) FormatColumnType(column types.SchemaColumn) string {
	parts := []string{toMySQLType(column.Type)}

	if !column.Nullable || column.IsPrimary {
		parts = append(parts, "NOT NULL")
	}
	if column.IsAutoIncrement {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if column.IsPrimary {
		parts = append(parts, "PRIMARY KEY")
	} else if column.IsUnique {
		parts = append(parts, "UNIQUE")
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

func toMySQLType(t string) string {
	upper := strings.ToUpper(t)
	switch {
	case upper == "SERIAL":
		return "INT"
	case upper == "BIGSERIAL":
		return "BIGINT"
	case upper == "BOOLEAN":
		return "TINYINT(1)"
	case upper == "TIMESTAMP WITH TIME ZONE":
		return "TIMESTAMP"
	case upper == "UUID":
		return "CHAR(36)"
	case upper == "JSONB":
		return "JSON"
	case upper == "DOUBLE PRECISION":
		return "DOUBLE"
	case strings.HasPrefix(upper, "NUMERIC"):
		return "DECIMAL" + strings.TrimPrefix(upper, "NUMERIC")
	}
	return upper
}
