package database

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	connectURL string
	closed     bool
	failAt     int
	executed   [][]string
	rows       []map[string]interface{}
}

func (f *fakeAdapter) Connect(ctx context.Context, url string) error {
	f.connectURL = url
	return nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAdapter) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeAdapter) ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*types.QueryResult, error) {
	return &types.QueryResult{Columns: []string{"n"}, Rows: f.rows}, nil
}

func (f *fakeAdapter) ExecuteStatements(ctx context.Context, statements []string, transactional bool) (int, error) {
	f.executed = append(f.executed, statements)
	if f.failAt > 0 && f.failAt <= len(statements) {
		return f.failAt - 1, errors.New("boom")
	}
	return len(statements), nil
}

func (f *fakeAdapter) GetCurrentSchema(ctx context.Context) ([]types.SchemaTable, error) {
	return []types.SchemaTable{{Name: "users"}}, nil
}

func (f *fakeAdapter) GetCurrentEnums(ctx context.Context) ([]types.SchemaEnum, error) {
	return nil, nil
}

func (f *fakeAdapter) GetAllTableNames(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeAdapter) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeAdapter) GenerateCreateTableSQL(table types.SchemaTable) string {
	return ""
}

func (f *fakeAdapter) GenerateDropTableSQL(tableName string) string {
	return ""
}

func (f *fakeAdapter) GenerateAddColumnSQL(tableName string, column types.SchemaColumn) string {
	return ""
}

func (f *fakeAdapter) GenerateDropColumnSQL(tableName, columnName string) string {
	return ""
}

func (f *fakeAdapter) GenerateAddIndexSQL(index types.SchemaIndex) string {
	return ""
}

func (f *fakeAdapter) GenerateDropIndexSQL(index types.SchemaIndex) string {
	return ""
}

func (f *fakeAdapter) GenerateCreateEnumSQL(enum types.SchemaEnum) string {
	return ""
}

func (f *fakeAdapter) GenerateDropEnumSQL(enumName string) string {
	return ""
}

func (f *fakeAdapter) FormatColumnType(column types.SchemaColumn) string {
	return ""
}

func (f *fakeAdapter) QuoteIdentifier(name string) string {
	return `"` + name + `"`
}

func (f *fakeAdapter) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder
}

func newTestManager(fake *fakeAdapter) (*Manager, *int) {
	created := 0
	m := NewManagerWithFactory(func(provider string) (DatabaseAdapter, error) {
		created++
		return fake, nil
	}, nil)
	return m, &created
}

func testConn() types.ConnectionDescriptor {
	return types.NewDescriptor(types.ConnectionInfo{ID: "B", Provider: "sqlite", Database: ":memory:"}, "")
}

func TestManagerCachesAdapterPerConnection(t *testing.T) {
	fake := &fakeAdapter{}
	m, created := newTestManager(fake)
	ctx := context.Background()

	_, err := m.Adapter(ctx, testConn())
	require.NoError(t, err)
	_, err = m.Adapter(ctx, testConn())
	require.NoError(t, err)

	assert.Equal(t, 1, *created)
	assert.Equal(t, "sqlite://:memory:", fake.connectURL)
}

func TestManagerExecuteScriptReportsPartialProgress(t *testing.T) {
	fake := &fakeAdapter{failAt: 3}
	m, _ := newTestManager(fake)

	res, err := m.ExecuteScript(context.Background(), testConn(),
		"CREATE TABLE a (id INT); CREATE TABLE b (id INT); CREATE TABLE c (id INT);", types.ExecOptions{})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.StatementsExecuted)
	require.Len(t, fake.executed, 1)
	assert.Len(t, fake.executed[0], 3)
}

func TestManagerExecuteScriptEmpty(t *testing.T) {
	fake := &fakeAdapter{}
	m, created := newTestManager(fake)

	res, err := m.ExecuteScript(context.Background(), testConn(), "-- nothing\n", types.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.StatementsExecuted)
	assert.Equal(t, 0, *created)
}

func TestManagerExecuteQueryMaxRows(t *testing.T) {
	fake := &fakeAdapter{rows: []map[string]interface{}{{"n": 1}, {"n": 2}, {"n": 3}}}
	m, _ := newTestManager(fake)

	res, err := m.ExecuteQuery(context.Background(), testConn(), "SELECT n FROM t", types.QueryOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestManagerReleaseAndClose(t *testing.T) {
	fake := &fakeAdapter{}
	m, created := newTestManager(fake)
	ctx := context.Background()

	_, err := m.Adapter(ctx, testConn())
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, "B"))
	assert.True(t, fake.closed)
	require.NoError(t, m.Release(ctx, "unknown"))

	_, err = m.Adapter(ctx, testConn())
	require.NoError(t, err)
	assert.Equal(t, 2, *created)
	require.NoError(t, m.Close())
}

func TestNewAdapterRejectsUnknownProvider(t *testing.T) {
	_, err := NewAdapter("oracle")
	assert.Error(t, err)

	for _, p := range SupportedProviders {
		a, err := NewAdapter(p)
		require.NoError(t, err, p)
		assert.NotNil(t, a)
	}
}
