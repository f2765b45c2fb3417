package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "potter.yaml")
	content := `
log:
  level: error
store:
  type: sqlite
  sql:
    dsn: "` + filepath.Join(dir, "orders.db") + `"
events:
  type: inmemory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func countPrefixed(out, prefix string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestCommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateAndSeedSQLite(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, 3, countPrefixed(out, "pending "))

	out, err = run(t, "--config", cfg, "migrate", "up", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "create_products")

	_, err = run(t, "--config", cfg, "migrate", "up")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, 3, countPrefixed(out, "applied "))

	out, err = run(t, "--config", cfg, "seed")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	out, err = run(t, "--config", cfg, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "create_order_lines")
}

func TestMigrateRequiresSQLStore(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := run(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not use SQL migrations")
}

func TestInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POTTER_STORE_TYPE", "cassandra")
	_, err := run(t, "seed")
	require.Error(t, err)
}
