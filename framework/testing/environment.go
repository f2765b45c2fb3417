package testing

import (
	"context"
	"testing"

	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/migrations"
)

// NewSQLiteStore создает SQL хранилище на in-memory SQLite с примененными миграциями.
// Соединение закрывается по завершении теста.
func NewSQLiteStore(t testing.TB) *store.SQLStore {
	t.Helper()
	ctx := context.Background()

	cfg := store.DefaultSQLConfig()
	cfg.Dialect = "sqlite"
	cfg.DSN = ":memory:"
	cfg.SchemaName = ""

	st, err := store.OpenSQLStore(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Stop(context.Background())
	})

	runner, err := migrations.NewRunner(st.DB(), "sqlite")
	if err != nil {
		t.Fatalf("failed to create migration runner: %v", err)
	}
	if _, err := runner.Up(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return st
}

// NewInMemoryStore создает in-memory хранилище, очищаемое по завершении теста
func NewInMemoryStore(t testing.TB) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore(store.DefaultInMemoryConfig())
	t.Cleanup(func() {
		_ = st.Clear(context.Background())
	})
	return st
}
