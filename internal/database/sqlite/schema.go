package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/database/common"
	"github.com/Rana718/graftflow/internal/types"
)

func (s *Adapter) GetCurrentSchema(ctx context.Context) ([]types.SchemaTable, error) {
	tableNames, err := s.GetAllTableNames(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]types.SchemaTable, 0, len(tableNames))
	for _, name := range tableNames {
		columns, err := s.tableColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", name, err)
		}
		indexes, err := s.tableIndexes(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get indexes for table %s: %w", name, err)
		}
		tables = append(tables, types.SchemaTable{Name: name, Columns: columns, Indexes: indexes})
	}
	return tables, nil
}

func (s *Adapter) GetCurrentEnums(ctx context.Context) ([]types.SchemaEnum, error) {
	return []types.SchemaEnum{}, nil
}

func (s *Adapter) GetAllTableNames(ctx context.Context) ([]string, error) {
	sqlText, args, err := s.qb.Select("name").From("sqlite_master").
		Where("type = ?", "table").
		Where("name NOT LIKE ?", "sqlite_%").
		OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
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

func (s *Adapter) tableColumns(ctx context.Context, table string) ([]types.SchemaColumn, error) {
	// PRAGMA arguments cannot be bound
	if err := common.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	var columns []types.SchemaColumn
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, err
		}
		columns = append(columns, types.SchemaColumn{
			Name:            name,
			Type:            formatType(colType),
			Nullable:        notNull == 0 && pk == 0,
			Default:         dflt.String,
			IsPrimary:       pk > 0,
			IsAutoIncrement: pk > 0 && strings.EqualFold(colType, "INTEGER"),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fkRows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		for i := range columns {
			if columns[i].Name == from {
				columns[i].ForeignKeyTable = refTable
				columns[i].ForeignKeyColumn = to.String
				if onDelete != "NO ACTION" {
					columns[i].OnDeleteAction = onDelete
				}
			}
		}
	}
	return columns, fkRows.Err()
}

func (s *Adapter) tableIndexes(ctx context.Context, table string) ([]types.SchemaIndex, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", s.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}

	type entry struct {
		name   string
		unique bool
	}
	var entries []entry
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		// constraint-backed indexes ("u", "pk") are part of the table definition
		if origin == "c" {
			entries = append(entries, entry{name, unique == 1})
		}
	}
	rows.Close()

	indexes := make([]types.SchemaIndex, 0, len(entries))
	for _, e := range entries {
		cols, err := s.indexColumns(ctx, e.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, types.SchemaIndex{Name: e.name, Table: table, Columns: cols, Unique: e.unique})
	}
	return indexes, nil
}

func (s *Adapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", s.QuoteIdentifier(index)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func formatType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	if idx := strings.Index(lower, "("); idx > 0 {
		lower = lower[:idx]
	}
	if mapped, ok := typeMap[lower]; ok {
		return mapped
	}
	if t == "" {
		return "TEXT"
	}
	return strings.ToUpper(t)
}
