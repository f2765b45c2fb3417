package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/persistence"
	potter "github.com/akriventsev/potter-repository/framework/testing"
)

var day = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

func seedOrders(t *testing.T, s persistence.Store) {
	t.Helper()
	docs := map[string]string{
		"o1": `{"id":"o1","customer_id":"alice","total":10,"placed_at":"2024-05-18T09:00:00Z"}`,
		"o2": `{"id":"o2","customer_id":"bob","total":20.5,"placed_at":"2024-05-19T10:30:00.123Z"}`,
		"o3": `{"id":"o3","customer_id":"Alicia","total":5,"placed_at":"2024-05-20T11:00:00Z"}`,
		"o4": `{"id":"o4","total":7}`,
	}
	var changes []persistence.Change
	for _, id := range []string{"o3", "o1", "o4", "o2"} {
		changes = append(changes, persistence.Change{Kind: persistence.ChangeInsert, Collection: "orders", ID: id, Data: []byte(docs[id])})
	}
	require.NoError(t, s.Commit(context.Background(), changes))
}

func ids(t *testing.T, docs [][]byte) []string {
	t.Helper()
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		id, err := jsonID(d)
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func TestSQLiteStore_Queries(t *testing.T) {
	ctx := context.Background()
	s := potter.NewSQLiteStore(t)
	seedOrders(t, s)

	tests := []struct {
		name      string
		predicate *persistence.Predicate
		want      []string
	}{
		{"all", nil, []string{"o1", "o2", "o3", "o4"}},
		{"number", persistence.Where("total", persistence.Gt, 9), []string{"o1", "o2"}},
		{"time", persistence.Where("placed_at", persistence.Gte, day.AddDate(0, 0, -1)), []string{"o2", "o3"}},
		{"time between", persistence.Where("placed_at", persistence.Between, []time.Time{day.AddDate(0, 0, -2), day.Add(-time.Hour)}), []string{"o1", "o2"}},
		{"in ids", persistence.Where(persistence.IDField, persistence.In, []string{"o4", "o2", "zzz"}), []string{"o2", "o4"}},
		{"like", persistence.Where("customer_id", persistence.Like, "ali%"), []string{"o1", "o3"}},
		{"is null", persistence.Where("customer_id", persistence.IsNull, nil), []string{"o4"}},
		{"not skips nulls", persistence.NewPredicate().Not().Where("customer_id", persistence.Eq, "bob"), []string{"o1", "o3"}},
		{"and binds tighter", persistence.Where("total", persistence.Lt, 8).And().Where("customer_id", persistence.IsNotNull, nil).Or().Where("customer_id", persistence.Eq, "bob"), []string{"o2", "o3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, "orders", tt.predicate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(t, docs))
		})
	}
}

func TestSQLiteStore_MismatchedOperandTypesMatchInMemory(t *testing.T) {
	ctx := context.Background()
	sqlite := potter.NewSQLiteStore(t)
	memory := potter.NewInMemoryStore(t)
	seedOrders(t, sqlite)
	seedOrders(t, memory)

	tests := []struct {
		name      string
		predicate *persistence.Predicate
		want      []string
	}{
		{"string against number", persistence.Where("total", persistence.Lt, "10"), []string{}},
		{"number against string", persistence.Where("customer_id", persistence.Gt, 0), []string{}},
		{"bool against string", persistence.Where("customer_id", persistence.Eq, true), []string{}},
		{"negated mismatch stays unknown", persistence.NewPredicate().Not().Where("total", persistence.Eq, "10"), []string{}},
		{"in with mismatched kind", persistence.Where("total", persistence.In, []string{"10", "7"}), []string{}},
		{"null check ignores kind", persistence.Where("total", persistence.IsNotNull, nil), []string{"o1", "o2", "o3", "o4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fromSQL, err := sqlite.Query(ctx, "orders", tt.predicate)
			require.NoError(t, err)
			fromMemory, err := memory.Query(ctx, "orders", tt.predicate)
			require.NoError(t, err)

			assert.Equal(t, tt.want, ids(t, fromSQL))
			assert.Equal(t, tt.want, ids(t, fromMemory))
		})
	}
}

func TestSQLiteStore_LoadAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := potter.NewSQLiteStore(t)
	seedOrders(t, s)

	require.NoError(t, s.Commit(ctx, []persistence.Change{
		{Kind: persistence.ChangeUpdate, Collection: "orders", ID: "o4", Data: []byte(`{"id":"o4","total":8}`)},
	}))

	data, found, err := s.Load(ctx, "orders", "o4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"o4","total":8}`, string(data))

	_, found, err = s.Load(ctx, "orders", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_CommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := potter.NewSQLiteStore(t)
	seedOrders(t, s)

	err := s.Commit(ctx, []persistence.Change{
		{Kind: persistence.ChangeInsert, Collection: "orders", ID: "o5", Data: []byte(`{"id":"o5"}`)},
		{Kind: persistence.ChangeInsert, Collection: "orders", ID: "o1", Data: []byte(`{"id":"o1"}`)},
	})
	assert.True(t, persistence.IsValidation(err), "duplicate key is a validation error: %v", err)

	_, found, err := s.Load(ctx, "orders", "o5")
	require.NoError(t, err)
	assert.False(t, found)

	err = s.Commit(ctx, []persistence.Change{
		{Kind: persistence.ChangeUpdate, Collection: "orders", ID: "o1", Data: []byte(`{"id":"o1","total":99}`)},
		{Kind: persistence.ChangeUpdate, Collection: "orders", ID: "missing", Data: []byte(`{}`)},
	})
	assert.True(t, persistence.IsNotFound(err))

	data, _, err := s.Load(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total":10`)
}

func TestSQLiteStore_Lifecycle(t *testing.T) {
	s := potter.NewSQLiteStore(t)

	assert.Equal(t, "sqlite-store", s.Name())
	assert.True(t, s.IsRunning())
	assert.NoError(t, s.HealthCheck(context.Background()))
	assert.Equal(t, "sqlite", s.Dialect().Name())
}

func TestOpenSQLStore_InvalidConfig(t *testing.T) {
	cfg := store.DefaultSQLConfig()
	cfg.Dialect = "oracle"
	cfg.DSN = "whatever"

	_, err := store.OpenSQLStore(context.Background(), cfg)
	assert.Error(t, err)
}
