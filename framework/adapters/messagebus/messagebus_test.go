package messagebus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

var committedAt = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func insert(collection, id, doc string) persistence.Change {
	return persistence.Change{Kind: persistence.ChangeInsert, Collection: collection, ID: id, Data: []byte(doc)}
}

func TestSubject(t *testing.T) {
	e := ChangeEvent{Collection: "orders", Kind: persistence.ChangeUpdate}
	assert.Equal(t, "potter.orders.update", e.Subject("potter"))
	assert.Equal(t, "orders.update", e.Subject(""))
}

func TestEventsFromChanges(t *testing.T) {
	events := EventsFromChanges([]persistence.Change{
		insert("orders", "o1", `{"id":"o1"}`),
		{Kind: persistence.ChangeUpdate, Collection: "products", ID: "p1", Data: []byte(`{"id":"p1"}`)},
	}, committedAt)

	require.Len(t, events, 2)
	assert.Equal(t, ChangeEvent{
		Collection: "orders", ID: "o1", Kind: persistence.ChangeInsert,
		Data: []byte(`{"id":"o1"}`), CommittedAt: committedAt,
	}, events[0])
	assert.Equal(t, persistence.ChangeUpdate, events[1].Kind)
}

func TestInMemoryPublisherDeliversToSubscribers(t *testing.T) {
	p := NewInMemoryPublisher(DefaultInMemoryConfig())

	var all, orders []string
	p.Subscribe("", func(_ context.Context, e ChangeEvent) { all = append(all, e.ID) })
	p.Subscribe("orders", func(_ context.Context, e ChangeEvent) { orders = append(orders, e.ID) })

	events := EventsFromChanges([]persistence.Change{
		insert("orders", "o1", `{}`),
		insert("products", "p1", `{}`),
		insert("orders", "o2", `{}`),
	}, committedAt)
	require.NoError(t, p.Publish(context.Background(), events))

	assert.Equal(t, []string{"o1", "p1", "o2"}, all)
	assert.Equal(t, []string{"o1", "o2"}, orders)
	assert.Len(t, p.History(), 3)
}

func TestInMemoryPublisherHistoryIsBounded(t *testing.T) {
	p := NewInMemoryPublisher(InMemoryConfig{HistorySize: 2})
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(context.Background(), EventsFromChanges([]persistence.Change{insert("orders", id, `{}`)}, committedAt)))
	}

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].ID)
	assert.Equal(t, "c", history[1].ID)
}

func TestInMemoryPublisherStopsOnCancelledContext(t *testing.T) {
	p := NewInMemoryPublisher(DefaultInMemoryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, EventsFromChanges([]persistence.Change{insert("orders", "o1", `{}`)}, committedAt))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryPublisherLifecycle(t *testing.T) {
	p := NewInMemoryPublisher(DefaultInMemoryConfig())
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())
	assert.Equal(t, core.ComponentTypeMessageBus, p.Type())
}

type failingPublisher struct {
	*InMemoryPublisher
}

func (failingPublisher) Publish(context.Context, []ChangeEvent) error {
	return errors.New("broker down")
}

func TestNotifyingStorePublishesCommittedChanges(t *testing.T) {
	pub := NewInMemoryPublisher(DefaultInMemoryConfig())
	inner := store.NewInMemoryStore(store.DefaultInMemoryConfig())
	s := NewNotifyingStore(inner, pub, nil)
	s.now = func() time.Time { return committedAt }

	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, []persistence.Change{insert("orders", "o1", `{"id":"o1"}`)}))

	history := pub.History()
	require.Len(t, history, 1)
	assert.Equal(t, "o1", history[0].ID)
	assert.Equal(t, committedAt, history[0].CommittedAt)

	data, found, err := s.Load(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"o1"}`, string(data))
}

func TestNotifyingStoreSkipsFailedAndEmptyCommits(t *testing.T) {
	pub := NewInMemoryPublisher(DefaultInMemoryConfig())
	s := NewNotifyingStore(store.NewInMemoryStore(store.DefaultInMemoryConfig()), pub, nil)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, nil))

	err := s.Commit(ctx, []persistence.Change{{Kind: persistence.ChangeUpdate, Collection: "orders", ID: "missing", Data: []byte(`{}`)}})
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))

	assert.Empty(t, pub.History())
}

func TestNotifyingStoreLogsPublishFailures(t *testing.T) {
	obsCore, logs := observer.New(zapcore.ErrorLevel)
	inner := store.NewInMemoryStore(store.DefaultInMemoryConfig())
	s := NewNotifyingStore(inner, failingPublisher{NewInMemoryPublisher(DefaultInMemoryConfig())}, zap.New(obsCore))

	require.NoError(t, s.Commit(context.Background(), []persistence.Change{insert("orders", "o1", `{}`)}))

	_, found, err := inner.Load(context.Background(), "orders", "o1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, logs.FilterMessage("failed to publish committed changes").Len())
}

func TestInMemoryPublisherUnsubscribe(t *testing.T) {
	p := NewInMemoryPublisher(InMemoryConfig{})

	var first, second []string
	unsubscribe := p.Subscribe("orders", func(_ context.Context, e ChangeEvent) { first = append(first, e.ID) })
	p.Subscribe("orders", func(_ context.Context, e ChangeEvent) { second = append(second, e.ID) })
	require.Equal(t, 2, p.Subscribers("orders"))

	require.NoError(t, p.Publish(context.Background(), EventsFromChanges([]persistence.Change{insert("orders", "o1", `{}`)}, committedAt)))
	unsubscribe()
	unsubscribe()
	require.NoError(t, p.Publish(context.Background(), EventsFromChanges([]persistence.Change{insert("orders", "o2", `{}`)}, committedAt)))

	assert.Equal(t, []string{"o1"}, first)
	assert.Equal(t, []string{"o1", "o2"}, second)
	assert.Equal(t, 1, p.Subscribers("orders"))
}

func TestMultiPublisherDeliversToAll(t *testing.T) {
	first := NewInMemoryPublisher(DefaultInMemoryConfig())
	second := NewInMemoryPublisher(DefaultInMemoryConfig())
	m := NewMultiPublisher(failingPublisher{NewInMemoryPublisher(DefaultInMemoryConfig())}, first, second)

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.True(t, m.IsRunning())

	err := m.Publish(ctx, EventsFromChanges([]persistence.Change{insert("orders", "o1", `{}`)}, committedAt))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, first.History(), 1)
	assert.Len(t, second.History(), 1)

	require.NoError(t, m.Stop(ctx))
	assert.False(t, first.IsRunning())
	assert.False(t, m.IsRunning())
	assert.Equal(t, core.ComponentTypeMessageBus, m.Type())
}
