package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/types"
)

func (m *Adapter) GetCurrentSchema(ctx context.Context) ([]types.SchemaTable, error) {
	tableNames, err := m.GetAllTableNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(tableNames) == 0 {
		return []types.SchemaTable{}, nil
	}

	columns, err := m.getTablesColumns(ctx, tableNames)
	if err != nil {
		return nil, err
	}
	indexes, err := m.getTablesIndexes(ctx, tableNames)
	if err != nil {
		return nil, err
	}

	tables := make([]types.SchemaTable, 0, len(tableNames))
	for _, name := range tableNames {
		tables = append(tables, types.SchemaTable{Name: name, Columns: columns[name], Indexes: indexes[name]})
	}
	return tables, nil
}

// GetCurrentEnums reports inline ENUM column types as named enums
// (<table>_<column>) so they participate in diffs.
func (m *Adapter) GetCurrentEnums(ctx context.Context) ([]types.SchemaEnum, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name, column_name, column_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND data_type = 'enum'
		ORDER BY table_name, column_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	var enums []types.SchemaEnum
	for rows.Next() {
		var table, column, columnType string
		if err := rows.Scan(&table, &column, &columnType); err != nil {
			return nil, err
		}
		enums = append(enums, types.SchemaEnum{
			Name:   table + "_" + column,
			Values: enumValues(columnType),
		})
	}
	return enums, rows.Err()
}

func enumValues(columnType string) []string {
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start == -1 || end <= start {
		return nil
	}

	var values []string
	for _, v := range strings.Split(columnType[start+1:end], ",") {
		values = append(values, strings.Trim(strings.TrimSpace(v), "'"))
	}
	return values
}

func (m *Adapter) GetAllTableNames(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (m *Adapter) getTablesColumns(ctx context.Context, tableNames []string) (map[string][]types.SchemaColumn, error) {
	query, args, err := m.qb.
		Select("c.table_name", "c.column_name", "c.data_type", "c.column_type", "c.is_nullable",
			"c.column_default", "c.column_key", "c.extra",
			"k.referenced_table_name", "k.referenced_column_name", "r.delete_rule").
		From("information_schema.columns c").
		LeftJoin("information_schema.key_column_usage k ON c.table_schema = k.table_schema AND c.table_name = k.table_name AND c.column_name = k.column_name AND k.referenced_table_name IS NOT NULL").
		LeftJoin("information_schema.referential_constraints r ON k.constraint_name = r.constraint_name AND k.table_schema = r.constraint_schema").
		Where(squirrel.Expr("c.table_schema = DATABASE()")).
		Where(squirrel.Eq{"c.table_name": tableNames}).
		OrderBy("c.table_name", "c.ordinal_position").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]types.SchemaColumn, len(tableNames))
	for rows.Next() {
		var table, dataType, columnType, isNullable, columnKey, extra string
		var column types.SchemaColumn
		var columnDefault, refTable, refColumn, deleteRule sql.NullString

		if err := rows.Scan(&table, &column.Name, &dataType, &columnType, &isNullable,
			&columnDefault, &columnKey, &extra, &refTable, &refColumn, &deleteRule); err != nil {
			return nil, err
		}

		column.Type = formatType(dataType, columnType)
		column.Nullable = isNullable == "YES"
		column.IsPrimary = columnKey == "PRI"
		column.IsUnique = columnKey == "UNI"
		column.IsAutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		if columnDefault.Valid {
			column.Default = columnDefault.String
		}
		if refTable.Valid && refColumn.Valid {
			column.ForeignKeyTable = refTable.String
			column.ForeignKeyColumn = refColumn.String
			column.OnDeleteAction = deleteRule.String
		}
		result[table] = append(result[table], column)
	}
	return result, rows.Err()
}

func (m *Adapter) getTablesIndexes(ctx context.Context, tableNames []string) (map[string][]types.SchemaIndex, error) {
	query, args, err := m.qb.
		Select("table_name", "index_name", "column_name", "non_unique").
		From("information_schema.statistics").
		Where(squirrel.Expr("table_schema = DATABASE()")).
		Where(squirrel.Eq{"table_name": tableNames}).
		Where(squirrel.NotEq{"index_name": "PRIMARY"}).
		OrderBy("table_name", "index_name", "seq_in_index").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	type key struct{ table, index string }
	found := make(map[key]*types.SchemaIndex)
	var order []key
	for rows.Next() {
		var table, index, column string
		var nonUnique int
		if err := rows.Scan(&table, &index, &column, &nonUnique); err != nil {
			return nil, err
		}
		k := key{table, index}
		if idx, ok := found[k]; ok {
			idx.Columns = append(idx.Columns, column)
			continue
		}
		found[k] = &types.SchemaIndex{Name: index, Table: table, Columns: []string{column}, Unique: nonUnique == 0}
		order = append(order, k)
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].table < order[j].table })
	result := make(map[string][]types.SchemaIndex)
	for _, k := range order {
		result[k.table] = append(result[k.table], *found[k])
	}
	return result, rows.Err()
}

func formatType(dataType, columnType string) string {
	switch strings.ToLower(dataType) {
	case "varchar", "char", "decimal", "enum", "set":
		return strings.ToUpper(columnType)
	}
	if mapped, ok := typeMap[strings.ToLower(dataType)]; ok {
		return mapped
	}
	return strings.ToUpper(dataType)
}
