package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestRunner_UpAndDown(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	runner, err := NewRunner(db, "sqlite")
	require.NoError(t, err)

	results, err := runner.Up(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1), results[0].Version)
	assert.Equal(t, "00001_create_products.sql", results[0].Name)

	version, err := runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	for _, table := range []string{"products", "orders", "order_lines"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	results, err = runner.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, results, "second Up is a no-op")

	rolledBack, err := runner.Down(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rolledBack, 1)
	assert.Equal(t, int64(3), rolledBack[0].Version)
	assert.False(t, tableExists(t, db, "order_lines"))

	statuses, err := runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "applied", statuses[0].Status)
	assert.NotNil(t, statuses[0].AppliedAt)
	assert.Equal(t, "pending", statuses[2].Status)
	assert.Nil(t, statuses[2].AppliedAt)
}

func TestRunner_UpBy(t *testing.T) {
	ctx := context.Background()
	runner, err := NewRunner(openSQLite(t), "sqlite")
	require.NoError(t, err)

	results, err := runner.UpBy(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = runner.UpBy(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	version, err := runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestNewRunner_UnsupportedDialect(t *testing.T) {
	_, err := NewRunner(openSQLite(t), "oracle")
	assert.ErrorContains(t, err, "unsupported migration dialect")
}

func TestDefaultMongoCollections(t *testing.T) {
	collections := DefaultMongoCollections()
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"products", "orders", "order_lines"}, names)
}
