package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/sqlite"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, names ...string) *sqlitedb.Registry {
	t.Helper()

	dir := t.TempDir()
	registry := sqlitedb.NewRegistry()

	for _, name := range names {
		db, err := sqlitedb.Open(name, filepath.Join(dir, name+".db"), false)
		require.NoError(t, err)
		require.NoError(t, registry.Add(db))
	}

	t.Cleanup(func() {
		_ = registry.Close()
	})

	return registry
}

func intPtr(i int) *int {
	return &i
}

func TestSocrataImportStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry(t, "data")
	store := sqlite.NewSocrataImportStorage(registry)

	imports, err := store.ListImports(ctx, "data")
	require.NoError(t, err)
	assert.Empty(t, imports)

	require.NoError(t, store.EnsureImportsTable(ctx, "data"))
	require.NoError(t, store.EnsureImportsTable(ctx, "data"))

	started := service.ImportTimestamp(time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC))
	imp := &service.SocrataImport{
		ID:            "24uj-dj8v",
		Name:          "General Building Permits",
		URL:           "https://data.edmonton.ca/d/24uj-dj8v",
		Metadata:      []byte(`{"id":"24uj-dj8v"}`),
		RowCount:      intPtr(3),
		ImportStarted: started,
	}
	require.NoError(t, store.UpsertImport(ctx, "data", imp))

	columns := []string{"permit", "value"}
	require.NoError(t, store.InsertBatch(ctx, "data", "socrata_24uj_dj8v", imp.ID, columns, []map[string]string{
		{"permit": "1", "value": "10.5"},
		{"permit": "2", "value": ""},
	}))
	require.NoError(t, store.InsertBatch(ctx, "data", "socrata_24uj_dj8v", imp.ID, columns, []map[string]string{
		{"permit": "3", "value": "7"},
	}))

	incomplete, err := store.ListIncompleteImports(ctx, "data")
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, 3, incomplete[0].RowProgress)

	require.NoError(t, store.TransformTable(ctx, "data", "socrata_24uj_dj8v", map[string]string{
		"permit": "integer",
		"value":  "float",
	}))

	heartbeat := time.Date(2024, 5, 2, 8, 30, 45, 0, time.UTC)
	require.NoError(t, store.TouchImport(ctx, "data", imp.ID, heartbeat))

	completed := time.Date(2024, 5, 2, 8, 31, 0, 0, time.UTC)
	require.NoError(t, store.CompleteImport(ctx, "data", imp.ID, completed))

	got, err := store.GetImport(ctx, "data", imp.ID)
	require.NoError(t, err)

	completeStr := "2024-05-02T08:31:00.000000Z"
	heartbeatStr := "2024-05-02T08:30:45.000000Z"
	assert.Equal(t, &service.SocrataImport{
		ID:              "24uj-dj8v",
		Name:            "General Building Permits",
		URL:             "https://data.edmonton.ca/d/24uj-dj8v",
		Metadata:        []byte(`{"id":"24uj-dj8v"}`),
		RowCount:        intPtr(3),
		RowProgress:     3,
		ImportStarted:   "2024-05-02T08:30:00.000000Z",
		ImportComplete:  &completeStr,
		ImportHeartbeat: &heartbeatStr,
		Database:        "data",
		TableName:       "socrata_24uj_dj8v",
	}, got)
	assert.Equal(t, heartbeatStr, got.LastActivity())

	incomplete, err = store.ListIncompleteImports(ctx, "data")
	require.NoError(t, err)
	assert.Empty(t, incomplete)

	// Re-importing resets progress and completion
	imp.ImportComplete = nil
	imp.RowProgress = 0
	require.NoError(t, store.UpsertImport(ctx, "data", imp))

	got, err = store.GetImport(ctx, "data", imp.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ImportComplete)
	assert.Equal(t, 0, got.RowProgress)

	require.NoError(t, store.DropTable(ctx, "data", "socrata_24uj_dj8v"))
	exists, err := store.TableExists(ctx, "data", "socrata_24uj_dj8v")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSocrataImportStorage_Errors(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry(t, "data")
	store := sqlite.NewSocrataImportStorage(registry)

	_, err := store.GetImport(ctx, "missing", "24uj-dj8v")
	assert.True(t, errs.KindIs(errs.NotExist, err))

	require.NoError(t, store.EnsureImportsTable(ctx, "data"))

	_, err = store.GetImport(ctx, "data", "24uj-dj8v")
	assert.True(t, errs.KindIs(errs.NotExist, err))
}

func TestDatabaseStorage(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry(t, "data", "other")
	store := sqlite.NewDatabaseStorage(registry)
	imports := sqlite.NewSocrataImportStorage(registry)

	require.NoError(t, store.EnableWAL(ctx, "data"))

	dbs, err := store.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*service.DatabaseInfo{
		{Name: "data", Mutable: true, WAL: true},
		{Name: "other", Mutable: true, WAL: false},
	}, dbs)

	require.NoError(t, imports.EnsureImportsTable(ctx, "data"))
	require.NoError(t, imports.InsertBatch(ctx, "data", "socrata_abcd_1234", "abcd-1234", []string{"a"}, []map[string]string{
		{"a": "x"},
		{"a": "y"},
	}))

	tables, err := store.ListTables(ctx, "data")
	require.NoError(t, err)
	assert.Equal(t, []string{"socrata_abcd_1234", "socrata_imports"}, tables)

	page, err := store.GetRows(ctx, "data", "socrata_abcd_1234", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, &service.TablePage{
		Database: "data",
		Table:    "socrata_abcd_1234",
		Columns:  []string{"a"},
		Rows:     [][]any{{"y"}},
		Total:    2,
		Limit:    1,
		Offset:   1,
	}, page)

	_, err = store.GetRows(ctx, "data", "nope", 10, 0)
	assert.True(t, errs.KindIs(errs.NotExist, err))

	_, err = store.GetDatabase(ctx, "nope")
	assert.True(t, errs.KindIs(errs.NotExist, err))
}
