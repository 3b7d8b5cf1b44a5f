package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Rana718/graftflow/internal/types"
)

// SchemaReader reads the live schema behind a connection.
type SchemaReader interface {
	Schema(ctx context.Context, conn types.ConnectionDescriptor) ([]types.SchemaTable, []types.SchemaEnum, error)
}

// Comparer diffs two live databases.
type Comparer struct {
	reader SchemaReader
}

func NewComparer(reader SchemaReader) *Comparer {
	return &Comparer{reader: reader}
}

// Compare returns the changes that make target match source.
func (c *Comparer) Compare(ctx context.Context, source, target types.ConnectionDescriptor, mode types.ComparisonMode) (*types.SchemaDiff, error) {
	srcTables, srcEnums, err := c.reader.Schema(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read source schema: %w", err)
	}
	tgtTables, tgtEnums, err := c.reader.Schema(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to read target schema: %w", err)
	}
	return Diff(srcTables, tgtTables, srcEnums, tgtEnums, mode), nil
}

// Diff compares a desired schema against the current one. Results are sorted
// by name so the same inputs always render the same script.
func Diff(desired, current []types.SchemaTable, desiredEnums, currentEnums []types.SchemaEnum, mode types.ComparisonMode) *types.SchemaDiff {
	diff := &types.SchemaDiff{}
	currentMap := tableMap(current)
	desiredMap := tableMap(desired)

	for _, table := range desired {
		if cur, exists := currentMap[table.Name]; !exists {
			diff.NewTables = append(diff.NewTables, table)
		} else if td := compareTables(cur, table, mode); td != nil {
			diff.ModifiedTables = append(diff.ModifiedTables, *td)
		}
	}
	for _, table := range current {
		if _, exists := desiredMap[table.Name]; !exists {
			diff.DroppedTables = append(diff.DroppedTables, table.Name)
		}
	}

	compareIndexes(currentMap, desiredMap, diff)
	compareEnums(currentEnums, desiredEnums, diff)

	slices.SortFunc(diff.NewTables, func(a, b types.SchemaTable) int { return strings.Compare(a.Name, b.Name) })
	slices.Sort(diff.DroppedTables)
	slices.SortFunc(diff.ModifiedTables, func(a, b types.TableDiff) int { return strings.Compare(a.Name, b.Name) })
	return diff
}

func tableMap(tables []types.SchemaTable) map[string]types.SchemaTable {
	m := make(map[string]types.SchemaTable, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return m
}

func compareTables(current, desired types.SchemaTable, mode types.ComparisonMode) *types.TableDiff {
	td := &types.TableDiff{Name: desired.Name}
	currentCols := make(map[string]types.SchemaColumn, len(current.Columns))
	for _, col := range current.Columns {
		currentCols[col.Name] = col
	}
	desiredCols := make(map[string]bool, len(desired.Columns))

	for _, col := range desired.Columns {
		desiredCols[col.Name] = true
		cur, exists := currentCols[col.Name]
		if !exists {
			td.NewColumns = append(td.NewColumns, col)
			continue
		}
		if changes := columnChanges(cur, col, mode); len(changes) > 0 {
			td.ModifiedColumns = append(td.ModifiedColumns, types.ColumnDiff{
				Name:    col.Name,
				OldType: cur.Type,
				NewType: col.Type,
				Changes: changes,
			})
		}
	}
	for _, col := range current.Columns {
		if !desiredCols[col.Name] {
			// full column kept so a rollback can re-add it
			td.DroppedColumns = append(td.DroppedColumns, col)
		}
	}

	if len(td.NewColumns) == 0 && len(td.DroppedColumns) == 0 && len(td.ModifiedColumns) == 0 {
		return nil
	}
	return td
}

// columnChanges lists how old differs from new. Structural comparison
// ignores defaults.
func columnChanges(old, new types.SchemaColumn, mode types.ComparisonMode) []string {
	var changes []string

	checks := []struct {
		condition bool
		message   string
	}{
		{!equivalentType(old.Type, new.Type), fmt.Sprintf("type changed from %s to %s", old.Type, new.Type)},
		{old.Nullable && !new.Nullable, "made not nullable"},
		{!old.Nullable && new.Nullable, "made nullable"},
		{mode != types.CompareStructural && !equivalentDefault(old.Default, new.Default), fmt.Sprintf("default changed from %q to %q", old.Default, new.Default)},
		{!old.IsPrimary && new.IsPrimary, "made primary key"},
		{old.IsPrimary && !new.IsPrimary, "removed primary key"},
		{!old.IsUnique && new.IsUnique, "made unique"},
		{old.IsUnique && !new.IsUnique, "removed unique constraint"},
	}
	for _, check := range checks {
		if check.condition {
			changes = append(changes, check.message)
		}
	}

	if old.ForeignKeyTable != new.ForeignKeyTable || old.ForeignKeyColumn != new.ForeignKeyColumn {
		if new.ForeignKeyTable != "" {
			changes = append(changes, fmt.Sprintf("added foreign key reference to %s(%s)", new.ForeignKeyTable, new.ForeignKeyColumn))
		} else {
			changes = append(changes, "removed foreign key reference")
		}
	}
	if old.OnDeleteAction != new.OnDeleteAction {
		changes = append(changes, fmt.Sprintf("foreign key action changed from %s to %s", old.OnDeleteAction, new.OnDeleteAction))
	}
	return changes
}

// compareIndexes only looks at tables present on both sides. Indexes of new
// tables are created with the table, and dropping a table drops its indexes.
func compareIndexes(current, desired map[string]types.SchemaTable, diff *types.SchemaDiff) {
	for name, table := range desired {
		cur, exists := current[name]
		if !exists {
			continue
		}
		curIdx := indexMap(cur.Indexes)
		desIdx := indexMap(table.Indexes)

		for idxName, idx := range desIdx {
			old, exists := curIdx[idxName]
			if !exists {
				diff.NewIndexes = append(diff.NewIndexes, idx)
			} else if !indexesEqual(old, idx) {
				diff.DroppedIndexes = append(diff.DroppedIndexes, old)
				diff.NewIndexes = append(diff.NewIndexes, idx)
			}
		}
		for idxName, idx := range curIdx {
			if _, exists := desIdx[idxName]; !exists {
				diff.DroppedIndexes = append(diff.DroppedIndexes, idx)
			}
		}
	}

	byName := func(a, b types.SchemaIndex) int { return strings.Compare(a.Name, b.Name) }
	slices.SortFunc(diff.NewIndexes, byName)
	slices.SortFunc(diff.DroppedIndexes, byName)
}

func indexMap(indexes []types.SchemaIndex) map[string]types.SchemaIndex {
	m := make(map[string]types.SchemaIndex, len(indexes))
	for _, idx := range indexes {
		m[idx.Name] = idx
	}
	return m
}

func indexesEqual(a, b types.SchemaIndex) bool {
	return a.Unique == b.Unique && slices.Equal(a.Columns, b.Columns)
}

func compareEnums(current, desired []types.SchemaEnum, diff *types.SchemaDiff) {
	currentMap := make(map[string]bool, len(current))
	for _, e := range current {
		currentMap[e.Name] = true
	}
	desiredMap := make(map[string]bool, len(desired))
	for _, e := range desired {
		desiredMap[e.Name] = true
	}

	for _, e := range desired {
		if !currentMap[e.Name] {
			diff.NewEnums = append(diff.NewEnums, e)
		}
	}
	for _, e := range current {
		if !desiredMap[e.Name] {
			diff.DroppedEnums = append(diff.DroppedEnums, e.Name)
		}
	}
}
