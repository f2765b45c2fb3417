// Package config загружает конфигурацию сервиса через viper.
//
// Источники по возрастанию приоритета: значения по умолчанию, YAML файл,
// переменные окружения с префиксом POTTER_ (store.sql.dsn -> POTTER_STORE_SQL_DSN).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/akriventsev/potter-repository/framework/adapters/messagebus"
	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/core"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "POTTER"

// Config конфигурация сервиса
type Config struct {
	Environment string        `mapstructure:"environment"`
	ServiceName string        `mapstructure:"service_name"`
	Version     string        `mapstructure:"version"`
	Log         LogConfig     `mapstructure:"log"`
	Server      ServerConfig  `mapstructure:"server"`
	Store       StoreConfig   `mapstructure:"store"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Events      EventsConfig  `mapstructure:"events"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Debug       DebugConfig   `mapstructure:"debug"`
}

// LogConfig конфигурация логирования
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	BasePath        string        `mapstructure:"base_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// OpenAPI включает проверку запросов по контракту и /swagger
	OpenAPI bool `mapstructure:"openapi"`
}

// StoreConfig выбор и настройка хранилища
type StoreConfig struct {
	// Type одно из: inmemory, sqlite, postgres, mongodb
	Type     string         `mapstructure:"type"`
	InMemory InMemoryConfig `mapstructure:"inmemory"`
	SQL      SQLConfig      `mapstructure:"sql"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// InMemoryConfig настройки in-memory хранилища
type InMemoryConfig struct {
	MaxEntities int `mapstructure:"max_entities"`
}

// SQLConfig настройки SQL хранилища
type SQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Schema          string        `mapstructure:"schema"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// AutoMigrate применяет миграции при старте сервиса
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// MongoConfig настройки MongoDB хранилища
type MongoConfig struct {
	URI         string        `mapstructure:"uri"`
	Database    string        `mapstructure:"database"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxPoolSize int           `mapstructure:"max_pool_size"`
	MinPoolSize int           `mapstructure:"min_pool_size"`
}

// CacheConfig настройки Redis кэша документов
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// EventsConfig настройки публикации зафиксированных изменений
type EventsConfig struct {
	// Type одно из: none, inmemory, nats, kafka, redis
	Type   string `mapstructure:"type"`
	Prefix string `mapstructure:"prefix"`
	// Stream включает WebSocket поток изменений GET /orders/changes
	Stream bool `mapstructure:"stream"`
	NATS   struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Redis struct {
		Addr   string `mapstructure:"addr"`
		MaxLen int64  `mapstructure:"max_len"`
	} `mapstructure:"redis"`
}

// MetricsConfig настройки метрик
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig настройки трассировки
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// DebugConfig настройки pprof
type DebugConfig struct {
	Pprof     bool `mapstructure:"pprof"`
	PprofPort int  `mapstructure:"pprof_port"`
}

// Load читает конфигурацию. Пустой configFile означает поиск potter.yaml
// в текущем каталоге; отсутствие файла не является ошибкой.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("potter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, core.Wrap(err, core.ErrInvalidConfig, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("service_name", "potter-orders")
	v.SetDefault("version", "dev")

	v.SetDefault("log.level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_path", "/api/v1")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.openapi", true)

	v.SetDefault("store.type", "inmemory")
	v.SetDefault("store.inmemory.max_entities", 0)
	v.SetDefault("store.sql.dsn", "")
	v.SetDefault("store.sql.schema", "public")
	v.SetDefault("store.sql.max_open_conns", 25)
	v.SetDefault("store.sql.max_idle_conns", 5)
	v.SetDefault("store.sql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("store.sql.auto_migrate", false)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "potter")
	v.SetDefault("store.mongo.timeout", 10*time.Second)
	v.SetDefault("store.mongo.max_pool_size", 100)
	v.SetDefault("store.mongo.min_pool_size", 10)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "potter")

	v.SetDefault("events.type", "none")
	v.SetDefault("events.prefix", "potter")
	v.SetDefault("events.stream", false)
	v.SetDefault("events.nats.url", "nats://localhost:4222")
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "potter.changes")
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.max_len", 10000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("debug.pprof", false)
	v.SetDefault("debug.pprof_port", 6060)
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return core.NewError(core.ErrInvalidConfig, "server.address cannot be empty")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return core.NewError(core.ErrInvalidConfig, "server.base_path must start with /")
	}

	switch c.Store.Type {
	case "inmemory":
	case "sqlite", "postgres":
		if c.Store.SQL.DSN == "" {
			return core.Errorf(core.ErrInvalidConfig, "store.sql.dsn is required for %s store", c.Store.Type)
		}
	case "mongodb":
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return core.NewError(core.ErrInvalidConfig, "store.mongo.uri and store.mongo.database are required for mongodb store")
		}
	default:
		return core.Errorf(core.ErrInvalidConfig, "unknown store type: %s", c.Store.Type)
	}

	if c.Cache.Enabled && (c.Cache.Addr == "" || c.Cache.TTL <= 0) {
		return core.NewError(core.ErrInvalidConfig, "cache.addr and a positive cache.ttl are required when cache is enabled")
	}

	switch c.Events.Type {
	case "", "none", "inmemory", "nats", "kafka", "redis":
	default:
		return core.Errorf(core.ErrInvalidConfig, "unknown events type: %s", c.Events.Type)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return core.Errorf(core.ErrInvalidConfig, "tracing.sampling_rate must be within [0, 1], got %v", c.Tracing.SamplingRate)
	}
	return nil
}

// Adapter возвращает имя адаптера и его конфигурацию для store.StoreFactory
func (s StoreConfig) Adapter() (string, interface{}) {
	switch s.Type {
	case "sqlite", "postgres":
		cfg := store.DefaultSQLConfig()
		cfg.Dialect = s.Type
		cfg.DSN = s.SQL.DSN
		cfg.SchemaName = ""
		if s.Type == "postgres" {
			cfg.SchemaName = s.SQL.Schema
		}
		if s.SQL.MaxOpenConns > 0 {
			cfg.MaxOpenConns = s.SQL.MaxOpenConns
		}
		if s.SQL.MaxIdleConns > 0 {
			cfg.MaxIdleConns = s.SQL.MaxIdleConns
		}
		cfg.ConnMaxLifetime = int(s.SQL.ConnMaxLifetime / time.Second)
		return s.Type, cfg
	case "mongodb":
		cfg := store.DefaultMongoConfig()
		cfg.URI = s.Mongo.URI
		cfg.Database = s.Mongo.Database
		cfg.Timeout = int(s.Mongo.Timeout / time.Second)
		if s.Mongo.MaxPoolSize > 0 {
			cfg.MaxPoolSize = s.Mongo.MaxPoolSize
		}
		if s.Mongo.MinPoolSize > 0 {
			cfg.MinPoolSize = s.Mongo.MinPoolSize
		}
		return s.Type, cfg
	default:
		return s.Type, store.InMemoryConfig{MaxEntities: s.InMemory.MaxEntities}
	}
}

// Store возвращает конфигурацию store.CachedStore
func (c CacheConfig) Store() store.CacheConfig {
	return store.CacheConfig{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		TTL:      c.TTL,
		Prefix:   c.Prefix,
	}
}

// Enabled сообщает, включена ли публикация изменений
func (e EventsConfig) Enabled() bool {
	return e.Type != "" && e.Type != "none"
}

// Publisher возвращает имя публикатора и его конфигурацию для messagebus.PublisherFactory
func (e EventsConfig) Publisher() (string, interface{}) {
	switch e.Type {
	case "nats":
		cfg := messagebus.DefaultNATSConfig()
		cfg.URL = e.NATS.URL
		cfg.SubjectPrefix = e.Prefix
		return e.Type, cfg
	case "kafka":
		cfg := messagebus.DefaultKafkaConfig()
		cfg.Brokers = e.Kafka.Brokers
		cfg.Topic = e.Kafka.Topic
		return e.Type, cfg
	case "redis":
		cfg := messagebus.DefaultRedisConfig()
		cfg.Addr = e.Redis.Addr
		cfg.StreamPrefix = e.Prefix
		cfg.StreamMaxLen = e.Redis.MaxLen
		return e.Type, cfg
	default:
		return e.Type, messagebus.DefaultInMemoryConfig()
	}
}

// String возвращает описание конфигурации без секретов
func (c *Config) String() string {
	return fmt.Sprintf("env=%s store=%s cache=%t events=%s address=%s metrics=%t tracing=%t",
		c.Environment, c.Store.Type, c.Cache.Enabled, c.Events.Type, c.Server.Address, c.Metrics.Enabled, c.Tracing.Enabled)
}
