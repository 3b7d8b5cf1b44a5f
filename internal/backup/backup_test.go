package backup

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	database.DatabaseAdapter
	tables map[string][]map[string]interface{}
}

func (f *fakeAdapter) GetAllTableNames(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (f *fakeAdapter) GetTableData(ctx context.Context, table string) ([]map[string]interface{}, error) {
	rows, ok := f.tables[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	return rows, nil
}

type fakeSource struct{ adapter database.DatabaseAdapter }

func (f fakeSource) Adapter(ctx context.Context, conn types.ConnectionDescriptor) (database.DatabaseAdapter, error) {
	return f.adapter, nil
}

func TestCreateBackup(t *testing.T) {
	dir := t.TempDir()
	adapter := &fakeAdapter{tables: map[string][]map[string]interface{}{
		"users": {{"id": float64(1), "email": "a@example.com"}},
		"empty": nil,
	}}
	m := NewManager(fakeSource{adapter}, dir, nil)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	conn := types.NewDescriptor(types.ConnectionInfo{ID: "B"}, "")
	path, err := m.CreateBackup(context.Background(), conn, "pre-migration m1")
	require.NoError(t, err)
	assert.Contains(t, path, "backup_B_2026-01-02_03-04-05.json")

	data, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "B", data.ConnectionID)
	assert.Equal(t, "pre-migration m1", data.Comment)
	assert.Len(t, data.Tables, 2)
	assert.Equal(t, []interface{}{}, data.Tables["empty"])
}

func TestCreateBackupWithoutTables(t *testing.T) {
	m := NewManager(fakeSource{&fakeAdapter{}}, t.TempDir(), nil)

	path, err := m.CreateBackup(context.Background(), types.NewDescriptor(types.ConnectionInfo{ID: "B"}, ""), "")
	require.NoError(t, err)
	assert.Empty(t, path)
}
