package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
)

// Generator renders a diff as SQL in the target's dialect.
type Generator struct {
	newAdapter database.AdapterFactory
}

func NewGenerator() *Generator {
	return &Generator{newAdapter: database.NewAdapter}
}

// Generate renders diff for target. Statements are ordered so that enums exist
// before the tables that use them and referenced tables are created first.
func (g *Generator) Generate(ctx context.Context, diff *types.SchemaDiff, target types.ConnectionDescriptor, opts types.ScriptOptions) (*types.Script, error) {
	adapter, err := g.newAdapter(target.Provider)
	if err != nil {
		return nil, err
	}

	newTables, err := sortTablesByDependencies(diff.NewTables)
	if err != nil {
		return nil, err
	}

	var header []string
	if opts.DryRun {
		header = append(header, "-- DRY RUN: review this script before applying it")
	}
	if opts.Type != "" {
		header = append(header, fmt.Sprintf("-- %s script for %s", opts.Type, target.ID))
	}

	parts := append([]string{}, header...)
	parts = append(parts, forwardSQL(adapter, diff, newTables)...)

	script := &types.Script{SQL: strings.Join(parts, "\n\n")}
	if opts.IncludeRollback {
		rollback := append([]string{}, header...)
		rollback = append(rollback, rollbackSQL(adapter, diff, newTables)...)
		script.RollbackSQL = strings.Join(rollback, "\n\n")
	}
	return script, nil
}

func forwardSQL(adapter database.DatabaseAdapter, diff *types.SchemaDiff, newTables []types.SchemaTable) []string {
	var parts []string

	for _, name := range diff.DroppedEnums {
		parts = append(parts, adapter.GenerateDropEnumSQL(name))
	}
	for _, name := range diff.DroppedTables {
		parts = append(parts, adapter.GenerateDropTableSQL(name))
	}
	for _, enum := range diff.NewEnums {
		parts = append(parts, adapter.GenerateCreateEnumSQL(enum))
	}

	for _, table := range newTables {
		parts = append(parts, adapter.GenerateCreateTableSQL(table))
		for _, index := range table.Indexes {
			parts = append(parts, adapter.GenerateAddIndexSQL(index))
		}
	}

	for _, td := range diff.ModifiedTables {
		for _, column := range td.NewColumns {
			parts = append(parts, adapter.GenerateAddColumnSQL(td.Name, column))
		}
		for _, column := range td.DroppedColumns {
			parts = append(parts, adapter.GenerateDropColumnSQL(td.Name, column.Name))
		}
		for _, cd := range td.ModifiedColumns {
			parts = append(parts, fmt.Sprintf("-- %s.%s needs manual review: %s", td.Name, cd.Name, strings.Join(cd.Changes, ", ")))
		}
	}

	for _, index := range diff.DroppedIndexes {
		parts = append(parts, adapter.GenerateDropIndexSQL(index))
	}
	for _, index := range diff.NewIndexes {
		parts = append(parts, adapter.GenerateAddIndexSQL(index))
	}
	return parts
}

// rollbackSQL undoes forwardSQL in reverse order. Dropped tables cannot be
// restored from a diff and are only noted.
func rollbackSQL(adapter database.DatabaseAdapter, diff *types.SchemaDiff, newTables []types.SchemaTable) []string {
	var parts []string

	for _, index := range diff.NewIndexes {
		parts = append(parts, adapter.GenerateDropIndexSQL(index))
	}
	for _, index := range diff.DroppedIndexes {
		parts = append(parts, adapter.GenerateAddIndexSQL(index))
	}

	for _, td := range diff.ModifiedTables {
		for _, column := range td.DroppedColumns {
			parts = append(parts, adapter.GenerateAddColumnSQL(td.Name, column))
		}
		for _, column := range td.NewColumns {
			parts = append(parts, adapter.GenerateDropColumnSQL(td.Name, column.Name))
		}
	}

	reversed := slices.Clone(newTables)
	slices.Reverse(reversed)
	for _, table := range reversed {
		parts = append(parts, adapter.GenerateDropTableSQL(table.Name))
	}
	for _, enum := range diff.NewEnums {
		parts = append(parts, adapter.GenerateDropEnumSQL(enum.Name))
	}

	for _, name := range diff.DroppedTables {
		parts = append(parts, fmt.Sprintf("-- table %s was dropped; restore it from a backup", name))
	}
	for _, name := range diff.DroppedEnums {
		parts = append(parts, fmt.Sprintf("-- enum %s was dropped; recreate it manually", name))
	}
	return parts
}

// sortTablesByDependencies orders tables so referenced tables come first.
// References to tables outside the set are assumed to exist already.
func sortTablesByDependencies(tables []types.SchemaTable) ([]types.SchemaTable, error) {
	byName := make(map[string]types.SchemaTable, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	inDegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	for _, t := range tables {
		seen := map[string]bool{}
		for _, col := range t.Columns {
			ref := col.ForeignKeyTable
			if ref == "" || ref == t.Name || seen[ref] {
				continue
			}
			if _, ok := byName[ref]; !ok {
				continue
			}
			seen[ref] = true
			inDegree[t.Name]++
			dependents[ref] = append(dependents[ref], t.Name)
		}
	}

	var queue []string
	for _, t := range tables {
		if inDegree[t.Name] == 0 {
			queue = append(queue, t.Name)
		}
	}
	slices.Sort(queue)

	sorted := make([]types.SchemaTable, 0, len(tables))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byName[name])

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				pos, _ := slices.BinarySearch(queue, dep)
				queue = slices.Insert(queue, pos, dep)
			}
		}
	}

	if len(sorted) != len(tables) {
		var circular []string
		for name, degree := range inDegree {
			if degree > 0 {
				circular = append(circular, name)
			}
		}
		slices.Sort(circular)
		return nil, fmt.Errorf("circular foreign key dependency detected among tables: %v", circular)
	}
	return sorted, nil
}
