package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

func (p *Adapter) GetCurrentSchema(ctx context.Context) ([]types.SchemaTable, error) {
	tableNames, err := p.GetAllTableNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(tableNames) == 0 {
		return []types.SchemaTable{}, nil
	}

	columns, err := p.getTablesColumns(ctx, tableNames)
	if err != nil {
		return nil, err
	}
	indexes, err := p.getTablesIndexes(ctx, tableNames)
	if err != nil {
		return nil, err
	}

	tables := make([]types.SchemaTable, 0, len(tableNames))
	for _, name := range tableNames {
		tables = append(tables, types.SchemaTable{
			Name:    name,
			Columns: columns[name],
			Indexes: indexes[name],
		})
	}
	return tables, nil
}

func (p *Adapter) GetCurrentEnums(ctx context.Context) ([]types.SchemaEnum, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = current_schema()
		ORDER BY t.typname, e.enumsortorder
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	values := make(map[string][]string)
	var names []string
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return nil, err
		}
		if _, seen := values[name]; !seen {
			names = append(names, name)
		}
		values[name] = append(values[name], label)
	}

	enums := make([]types.SchemaEnum, 0, len(names))
	for _, name := range names {
		enums = append(enums, types.SchemaEnum{Name: name, Values: values[name]})
	}
	return enums, rows.Err()
}

func (p *Adapter) GetAllTableNames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0, 32)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// getTablesColumns loads plain column facts first and then overlays key
// constraints from pg_constraint.
func (p *Adapter) getTablesColumns(ctx context.Context, tableNames []string) (map[string][]types.SchemaColumn, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT c.table_name, c.column_name, c.udt_name, c.is_nullable, c.column_default,
			c.character_maximum_length, c.numeric_precision, c.numeric_scale
		FROM information_schema.columns c
		WHERE c.table_name = ANY($1) AND c.table_schema = current_schema()
		ORDER BY c.table_name, c.ordinal_position
	`, tableNames)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}

	result := make(map[string][]types.SchemaColumn, len(tableNames))
	for rows.Next() {
		var table, udtName, isNullable string
		var column types.SchemaColumn
		var columnDefault sql.NullString
		var charLen, precision, scale sql.NullInt64

		if err := rows.Scan(&table, &column.Name, &udtName, &isNullable, &columnDefault, &charLen, &precision, &scale); err != nil {
			rows.Close()
			return nil, err
		}

		column.Type = formatType(udtName, charLen, precision, scale)
		column.Nullable = isNullable == "YES"
		if columnDefault.Valid {
			column.IsAutoIncrement = strings.Contains(strings.ToLower(columnDefault.String), "nextval")
			column.Default = cleanDefault(columnDefault.String)
		}
		result[table] = append(result[table], column)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byName := make(map[string]map[string]*types.SchemaColumn, len(result))
	for table, cols := range result {
		byName[table] = make(map[string]*types.SchemaColumn, len(cols))
		for i := range cols {
			byName[table][cols[i].Name] = &result[table][i]
		}
	}

	constraintRows, err := p.pool.Query(ctx, `
		SELECT src.relname, att.attname, con.contype,
			COALESCE(tgt.relname, ''), COALESCE(tatt.attname, ''),
			CASE con.confdeltype
				WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE'
				WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT' ELSE ''
			END
		FROM pg_constraint con
		JOIN pg_class src ON con.conrelid = src.oid
		JOIN pg_namespace ns ON src.relnamespace = ns.oid
		CROSS JOIN LATERAL UNNEST(con.conkey, COALESCE(con.confkey, con.conkey)) WITH ORDINALITY AS k(src_col, tgt_col, ord)
		JOIN pg_attribute att ON att.attrelid = src.oid AND att.attnum = k.src_col
		LEFT JOIN pg_class tgt ON con.confrelid = tgt.oid
		LEFT JOIN pg_attribute tatt ON tatt.attrelid = tgt.oid AND tatt.attnum = k.tgt_col
		WHERE src.relname = ANY($1) AND ns.nspname = current_schema() AND con.contype IN ('p', 'u', 'f')
	`, tableNames)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer constraintRows.Close()

	for constraintRows.Next() {
		var table, column, kind, fkTable, fkColumn, onDelete string
		if err := constraintRows.Scan(&table, &column, &kind, &fkTable, &fkColumn, &onDelete); err != nil {
			return nil, err
		}
		col, ok := byName[table][column]
		if !ok {
			continue
		}
		switch kind {
		case "p":
			col.IsPrimary = true
		case "u":
			col.IsUnique = true
		case "f":
			col.ForeignKeyTable = fkTable
			col.ForeignKeyColumn = fkColumn
			col.OnDeleteAction = onDelete
		}
	}

	return result, constraintRows.Err()
}

func (p *Adapter) getTablesIndexes(ctx context.Context, tableNames []string) (map[string][]types.SchemaIndex, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT i.tablename, i.indexname, i.indexdef
		FROM pg_indexes i
		LEFT JOIN pg_constraint c ON i.indexname = c.conname AND c.contype IN ('u', 'p')
		WHERE i.tablename = ANY($1) AND i.schemaname = current_schema() AND c.conname IS NULL
		ORDER BY i.tablename, i.indexname
	`, tableNames)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]types.SchemaIndex, len(tableNames))
	for rows.Next() {
		var table, name, def string
		if err := rows.Scan(&table, &name, &def); err != nil {
			return nil, err
		}
		result[table] = append(result[table], types.SchemaIndex{
			Name:    name,
			Table:   table,
			Unique:  strings.Contains(strings.ToUpper(def), "UNIQUE"),
			Columns: indexColumns(def),
		})
	}
	return result, rows.Err()
}

func indexColumns(def string) []string {
	start := strings.Index(def, "(")
	end := strings.LastIndex(def, ")")
	if start == -1 || end <= start {
		return nil
	}

	var cols []string
	for _, col := range strings.Split(def[start+1:end], ",") {
		cols = append(cols, strings.Trim(strings.TrimSpace(col), `"`))
	}
	return cols
}

func formatType(udtName string, charLen, precision, scale sql.NullInt64) string {
	switch udtName {
	case "varchar":
		if charLen.Valid {
			return fmt.Sprintf("VARCHAR(%d)", charLen.Int64)
		}
	case "bpchar":
		if charLen.Valid {
			return fmt.Sprintf("CHAR(%d)", charLen.Int64)
		}
	case "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("NUMERIC(%d,%d)", precision.Int64, scale.Int64)
		}
	}
	if mapped, ok := typeMap[strings.ToLower(udtName)]; ok {
		return mapped
	}
	return strings.ToUpper(udtName)
}

func cleanDefault(value string) string {
	if idx := strings.Index(value, "::"); idx != -1 {
		value = strings.TrimSpace(value[:idx])
	}

	upper := strings.ToUpper(value)
	switch {
	case strings.Contains(upper, "NEXTVAL"):
		return ""
	case strings.Contains(upper, "NOW()"), strings.Contains(upper, "CURRENT_TIMESTAMP"):
		return "NOW()"
	case upper == "TRUE", upper == "FALSE":
		return upper
	}
	return value
}
