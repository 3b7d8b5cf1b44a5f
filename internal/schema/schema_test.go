package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Rana718/graftflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func users() types.SchemaTable {
	return types.SchemaTable{
		Name: "users",
		Columns: []types.SchemaColumn{
			{Name: "id", Type: "INTEGER", IsPrimary: true},
			{Name: "email", Type: "TEXT"},
		},
		Indexes: []types.SchemaIndex{{Name: "idx_users_email", Table: "users", Columns: []string{"email"}, Unique: true}},
	}
}

func posts() types.SchemaTable {
	return types.SchemaTable{
		Name: "posts",
		Columns: []types.SchemaColumn{
			{Name: "id", Type: "INTEGER", IsPrimary: true},
			{Name: "user_id", Type: "INTEGER", ForeignKeyTable: "users", ForeignKeyColumn: "id"},
		},
	}
}

func TestDiffNewAndDroppedTables(t *testing.T) {
	legacy := types.SchemaTable{Name: "legacy", Columns: []types.SchemaColumn{{Name: "id", Type: "INTEGER"}}}

	diff := Diff([]types.SchemaTable{posts(), users()}, []types.SchemaTable{legacy}, nil, nil, types.CompareStrict)

	require.Len(t, diff.NewTables, 2)
	assert.Equal(t, "posts", diff.NewTables[0].Name)
	assert.Equal(t, []string{"legacy"}, diff.DroppedTables)
	assert.Empty(t, diff.NewIndexes, "indexes of new tables are created with the table")
	assert.True(t, diff.HasChanges())
}

func TestDiffModifiedColumnsAndIndexes(t *testing.T) {
	current := users()
	current.Columns = append(current.Columns, types.SchemaColumn{Name: "nickname", Type: "TEXT"})
	current.Columns[1].Default = "''"
	current.Indexes[0].Unique = false

	desired := users()
	desired.Columns = append(desired.Columns, types.SchemaColumn{Name: "created_at", Type: "TIMESTAMP"})

	diff := Diff([]types.SchemaTable{desired}, []types.SchemaTable{current}, nil, nil, types.CompareStrict)
	require.Len(t, diff.ModifiedTables, 1)
	td := diff.ModifiedTables[0]
	assert.Equal(t, "created_at", td.NewColumns[0].Name)
	assert.Equal(t, "nickname", td.DroppedColumns[0].Name)
	require.Len(t, td.ModifiedColumns, 1)
	assert.Equal(t, "email", td.ModifiedColumns[0].Name)

	require.Len(t, diff.DroppedIndexes, 1)
	require.Len(t, diff.NewIndexes, 1)
	assert.True(t, diff.NewIndexes[0].Unique)

	structural := Diff([]types.SchemaTable{desired}, []types.SchemaTable{current}, nil, nil, types.CompareStructural)
	assert.Empty(t, structural.ModifiedTables[0].ModifiedColumns)
}

func TestDiffEnums(t *testing.T) {
	diff := Diff(nil, nil,
		[]types.SchemaEnum{{Name: "status", Values: []string{"a", "b"}}},
		[]types.SchemaEnum{{Name: "old_status"}},
		types.CompareStrict)

	assert.Equal(t, "status", diff.NewEnums[0].Name)
	assert.Equal(t, []string{"old_status"}, diff.DroppedEnums)
}

func TestNoChanges(t *testing.T) {
	diff := Diff([]types.SchemaTable{users()}, []types.SchemaTable{users()}, nil, nil, types.CompareStrict)
	assert.False(t, diff.HasChanges())
}

type fakeReader map[string][]types.SchemaTable

func (f fakeReader) Schema(ctx context.Context, conn types.ConnectionDescriptor) ([]types.SchemaTable, []types.SchemaEnum, error) {
	tables, ok := f[conn.ID]
	if !ok {
		return nil, nil, errors.New("unreachable")
	}
	return tables, nil, nil
}

func TestComparerCompare(t *testing.T) {
	reader := fakeReader{"A": {users(), posts()}, "B": {users()}}
	c := NewComparer(reader)

	src := types.NewDescriptor(types.ConnectionInfo{ID: "A"}, "")
	tgt := types.NewDescriptor(types.ConnectionInfo{ID: "B"}, "")
	diff, err := c.Compare(context.Background(), src, tgt, types.CompareStructural)
	require.NoError(t, err)
	require.Len(t, diff.NewTables, 1)
	assert.Equal(t, "posts", diff.NewTables[0].Name)

	_, err = c.Compare(context.Background(), src, types.NewDescriptor(types.ConnectionInfo{ID: "X"}, ""), types.CompareStrict)
	assert.Error(t, err)
}

func TestGenerateOrdersByDependencies(t *testing.T) {
	g := NewGenerator()
	diff := &types.SchemaDiff{NewTables: []types.SchemaTable{posts(), users()}}
	tgt := types.NewDescriptor(types.ConnectionInfo{ID: "B", Provider: "sqlite"}, "")

	script, err := g.Generate(context.Background(), diff, tgt, types.ScriptOptions{IncludeRollback: true})
	require.NoError(t, err)

	usersAt := strings.Index(script.SQL, `CREATE TABLE IF NOT EXISTS "users"`)
	postsAt := strings.Index(script.SQL, `CREATE TABLE IF NOT EXISTS "posts"`)
	require.GreaterOrEqual(t, usersAt, 0)
	require.GreaterOrEqual(t, postsAt, 0)
	assert.Less(t, usersAt, postsAt)
	assert.Contains(t, script.SQL, `CREATE UNIQUE INDEX IF NOT EXISTS "idx_users_email"`)

	dropPosts := strings.Index(script.RollbackSQL, `DROP TABLE IF EXISTS "posts"`)
	dropUsers := strings.Index(script.RollbackSQL, `DROP TABLE IF EXISTS "users"`)
	assert.Less(t, dropPosts, dropUsers)
}

func TestGenerateDryRunAndDroppedTables(t *testing.T) {
	g := NewGenerator()
	diff := &types.SchemaDiff{DroppedTables: []string{"legacy"}}
	tgt := types.NewDescriptor(types.ConnectionInfo{ID: "B", Provider: "postgresql"}, "")

	script, err := g.Generate(context.Background(), diff, tgt, types.ScriptOptions{DryRun: true, IncludeRollback: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script.SQL, "-- DRY RUN"))
	assert.Contains(t, script.SQL, `DROP TABLE IF EXISTS "legacy" CASCADE;`)
	assert.Contains(t, script.RollbackSQL, "restore it from a backup")
}

func TestGenerateUnsupportedProvider(t *testing.T) {
	_, err := NewGenerator().Generate(context.Background(), &types.SchemaDiff{},
		types.NewDescriptor(types.ConnectionInfo{Provider: "oracle"}, ""), types.ScriptOptions{})
	assert.Error(t, err)
}

func TestCircularDependencies(t *testing.T) {
	a := types.SchemaTable{Name: "a", Columns: []types.SchemaColumn{{Name: "b_id", ForeignKeyTable: "b", ForeignKeyColumn: "id"}}}
	b := types.SchemaTable{Name: "b", Columns: []types.SchemaColumn{{Name: "a_id", ForeignKeyTable: "a", ForeignKeyColumn: "id"}}}
	_, err := sortTablesByDependencies([]types.SchemaTable{a, b})
	assert.Error(t, err)
}

func TestTypeAndDefaultEquivalence(t *testing.T) {
	assert.True(t, equivalentType("int4", "INTEGER"))
	assert.True(t, equivalentType("character varying(20)", "VARCHAR(20)"))
	assert.True(t, equivalentType("timestamp with time zone", "timestamptz"))
	assert.False(t, equivalentType("VARCHAR(20)", "VARCHAR(40)"))

	assert.True(t, equivalentDefault("now()", "CURRENT_TIMESTAMP"))
	assert.True(t, equivalentDefault("NULL", ""))
	assert.False(t, equivalentDefault("''", ""))

	current := []types.SchemaTable{{Name: "users", Columns: []types.SchemaColumn{{Name: "id", Type: "int4", Default: "NULL"}}}}
	desired := []types.SchemaTable{{Name: "users", Columns: []types.SchemaColumn{{Name: "id", Type: "INTEGER"}}}}
	assert.False(t, Diff(desired, current, nil, nil, types.CompareStrict).HasChanges())
}
