package messagebus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/potter-repository/framework/core"
)

// RedisConfig конфигурация для Redis Streams публикатора
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// StreamPrefix поток события: <prefix>:<collection>
	StreamPrefix string
	// StreamMaxLen максимальная длина потока (0 = без ограничений)
	StreamMaxLen int64
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.StreamPrefix == "" {
		return fmt.Errorf("stream prefix cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		StreamPrefix: "potter",
		StreamMaxLen: 10000,
	}
}

// RedisPublisher публикует события в Redis Streams, по потоку на коллекцию
type RedisPublisher struct {
	config  RedisConfig
	client  *redis.Client
	running bool
	mu      sync.RWMutex
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher создает Redis публикатор
func NewRedisPublisher(config RedisConfig) (*RedisPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid redis config")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})
	return &RedisPublisher{config: config, client: client}, nil
}

// Stream возвращает имя потока коллекции
func (r *RedisPublisher) Stream(collection string) string {
	return r.config.StreamPrefix + ":" + collection
}

// Publish добавляет события в потоки одной транзакцией MULTI/EXEC
func (r *RedisPublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	pipe := r.client.TxPipeline()
	for _, e := range events {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.Stream(e.Collection),
			MaxLen: r.config.StreamMaxLen,
			Approx: r.config.StreamMaxLen > 0,
			Values: map[string]interface{}{
				"id":           e.ID,
				"kind":         string(e.Kind),
				"data":         string(e.Data),
				"committed_at": e.CommittedAt.Format(time.RFC3339Nano),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Start проверяет подключение (реализация core.Lifecycle)
func (r *RedisPublisher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	r.running = true
	return nil
}

// Stop закрывает клиент (реализация core.Lifecycle)
func (r *RedisPublisher) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false
	return r.client.Close()
}

// IsRunning проверяет статус
func (r *RedisPublisher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента
func (r *RedisPublisher) Name() string {
	return "redis-publisher"
}

// Type возвращает тип компонента
func (r *RedisPublisher) Type() core.ComponentType {
	return core.ComponentTypeMessageBus
}

// HealthCheck проверяет подключение
func (r *RedisPublisher) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
