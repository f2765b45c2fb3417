package messagebus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

func TestRedisPublisherWritesStreams(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.StreamMaxLen = 0
	p, err := NewRedisPublisher(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	require.NoError(t, p.HealthCheck(ctx))

	events := EventsFromChanges([]persistence.Change{
		insert("orders", "o1", `{"id":"o1"}`),
		insert("orders", "o2", `{"id":"o2"}`),
		insert("products", "p1", `{"id":"p1"}`),
	}, committedAt)
	require.NoError(t, p.Publish(ctx, events))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	orders, err := client.XRange(ctx, "potter:orders", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o1", orders[0].Values["id"])
	assert.Equal(t, "insert", orders[0].Values["kind"])
	assert.Equal(t, `{"id":"o1"}`, orders[0].Values["data"])

	products, err := client.XRange(ctx, p.Stream("products"), "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestRedisPublisherStartFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	mr.Close()

	p, err := NewRedisPublisher(cfg)
	require.NoError(t, err)
	assert.Error(t, p.Start(context.Background()))
	assert.False(t, p.IsRunning())
}

func TestPublisherConfigValidation(t *testing.T) {
	_, err := NewRedisPublisher(RedisConfig{})
	assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))

	_, err = NewNATSPublisher(NATSConfig{URL: "http://localhost:4222"}, nil)
	assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost"}, Topic: "t"})
	assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestNATSPublisherRequiresStart(t *testing.T) {
	p, err := NewNATSPublisher(DefaultNATSConfig(), nil)
	require.NoError(t, err)

	assert.False(t, p.IsRunning())
	assert.Error(t, p.HealthCheck(context.Background()))
	assert.Error(t, p.Publish(context.Background(), nil))
	assert.NoError(t, p.Stop(context.Background()))
}

func TestKafkaMessages(t *testing.T) {
	p, err := NewKafkaPublisher(DefaultKafkaConfig())
	require.NoError(t, err)

	msgs, err := p.messages(EventsFromChanges([]persistence.Change{insert("orders", "o1", `{"id":"o1"}`)}, committedAt))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "orders/o1", string(msgs[0].Key))
	assert.Equal(t, committedAt, msgs[0].Time)
	assert.Equal(t, []kafka.Header{
		{Key: "collection", Value: []byte("orders")},
		{Key: "kind", Value: []byte("insert")},
	}, msgs[0].Headers)

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, "o1", decoded.ID)
	assert.JSONEq(t, `{"id":"o1"}`, string(decoded.Data))
}

func TestGetCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, getCompression("gzip"))
	assert.Equal(t, kafka.Zstd, getCompression("zstd"))
	assert.Equal(t, kafka.Compression(0), getCompression("none"))
}

func TestPublisherFactory(t *testing.T) {
	f := NewPublisherFactory()
	assert.Equal(t, []string{"inmemory", "kafka", "nats", "redis"}, f.Names())

	p, err := f.Create("inmemory", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "inmemory-publisher", p.Name())

	p, err = f.Create("kafka", DefaultKafkaConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka-publisher", p.Name())

	_, err = f.Create("nats", DefaultKafkaConfig(), nil)
	assert.ErrorContains(t, err, "invalid NATS config type")

	_, err = f.Create("rabbitmq", nil, nil)
	assert.ErrorContains(t, err, "unknown publisher type: rabbitmq")

	assert.Error(t, f.Register("inmemory", func(interface{}, *zap.Logger) (Publisher, error) { return nil, nil }))
	assert.Error(t, f.Register("", nil))
}
