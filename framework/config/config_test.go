package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-repository/framework/adapters/messagebus"
	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "potter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.OpenAPI)
	assert.Equal(t, "/api/v1", cfg.Server.BasePath)
	assert.False(t, cfg.Events.Stream)
	assert.Equal(t, "inmemory", cfg.Store.Type)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
environment: prod
store:
  type: sqlite
  sql:
    dsn: "file:orders.db"
    max_open_conns: 4
server:
  address: ":9090"
  base_path: /orders-api
events:
  stream: true
`)
	t.Setenv("POTTER_LOG_LEVEL", "debug")
	t.Setenv("POTTER_SERVER_ADDRESS", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "/orders-api", cfg.Server.BasePath)
	assert.True(t, cfg.Events.Stream)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "file:orders.db", cfg.Store.SQL.DSN)
	assert.Equal(t, 4, cfg.Store.SQL.MaxOpenConns)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.NewError(core.ErrInvalidConfig, "")))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Address: ":8080", BasePath: "/api/v1"},
			Store:  StoreConfig{Type: "inmemory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid inmemory", func(c *Config) {}, false},
		{"unknown store", func(c *Config) { c.Store.Type = "redis" }, true},
		{"sql without dsn", func(c *Config) { c.Store.Type = "postgres" }, true},
		{"mongo without database", func(c *Config) {
			c.Store.Type = "mongodb"
			c.Store.Mongo.URI = "mongodb://localhost"
		}, true},
		{"empty address", func(c *Config) { c.Server.Address = "" }, true},
		{"relative base path", func(c *Config) { c.Server.BasePath = "api" }, true},
		{"root base path", func(c *Config) { c.Server.BasePath = "/" }, false},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"cache without ttl", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.Addr = "localhost:6379"
		}, true},
		{"unknown events type", func(c *Config) { c.Events.Type = "rabbitmq" }, true},
		{"kafka events", func(c *Config) { c.Events.Type = "kafka" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStoreAdapter(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		name, raw := StoreConfig{
			Type: "postgres",
			SQL:  SQLConfig{DSN: "postgres://localhost/orders", Schema: "shop", ConnMaxLifetime: time.Minute},
		}.Adapter()

		assert.Equal(t, "postgres", name)
		cfg, ok := raw.(store.SQLConfig)
		require.True(t, ok)
		assert.Equal(t, "postgres", cfg.Dialect)
		assert.Equal(t, "shop", cfg.SchemaName)
		assert.Equal(t, 60, cfg.ConnMaxLifetime)
		assert.Equal(t, 25, cfg.MaxOpenConns)
	})

	t.Run("sqlite ignores schema", func(t *testing.T) {
		_, raw := StoreConfig{Type: "sqlite", SQL: SQLConfig{DSN: ":memory:", Schema: "public"}}.Adapter()
		cfg := raw.(store.SQLConfig)
		assert.Empty(t, cfg.SchemaName)
	})

	t.Run("mongodb", func(t *testing.T) {
		name, raw := StoreConfig{
			Type:  "mongodb",
			Mongo: MongoConfig{URI: "mongodb://localhost", Database: "shop", Timeout: 3 * time.Second},
		}.Adapter()

		assert.Equal(t, "mongodb", name)
		cfg := raw.(store.MongoConfig)
		assert.Equal(t, "shop", cfg.Database)
		assert.Equal(t, 3, cfg.Timeout)
	})

	t.Run("inmemory", func(t *testing.T) {
		name, raw := StoreConfig{Type: "inmemory", InMemory: InMemoryConfig{MaxEntities: 5}}.Adapter()
		assert.Equal(t, "inmemory", name)
		assert.Equal(t, store.InMemoryConfig{MaxEntities: 5}, raw)
	})
}

func TestEventsPublisher(t *testing.T) {
	t.Setenv("POTTER_EVENTS_TYPE", "kafka")
	t.Setenv("POTTER_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Events.Enabled())

	name, raw := cfg.Events.Publisher()
	assert.Equal(t, "kafka", name)
	kcfg := raw.(messagebus.KafkaConfig)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, kcfg.Brokers)
	assert.Equal(t, "potter.changes", kcfg.Topic)

	events := EventsConfig{Type: "redis", Prefix: "shop"}
	events.Redis.Addr = "cache:6379"
	name, raw = events.Publisher()
	assert.Equal(t, "redis", name)
	rcfg := raw.(messagebus.RedisConfig)
	assert.Equal(t, "shop", rcfg.StreamPrefix)
	assert.Equal(t, "cache:6379", rcfg.Addr)

	assert.False(t, EventsConfig{Type: "none"}.Enabled())
	assert.False(t, EventsConfig{}.Enabled())
}

func TestCacheStoreConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, store.CacheConfig{Addr: "localhost:6379", TTL: 5 * time.Minute, Prefix: "potter"}, cfg.Cache.Store())
}
