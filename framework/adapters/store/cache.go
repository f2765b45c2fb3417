package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// CacheConfig конфигурация Redis кэша документов
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL время жизни документа в кэше
	TTL time.Duration
	// Prefix префикс ключей: <prefix>:<collection>:<id>
	Prefix string
}

// Validate проверяет корректность конфигурации
func (c CacheConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("cache addr cannot be empty")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// DefaultCacheConfig возвращает конфигурацию кэша по умолчанию
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:   "localhost:6379",
		TTL:    5 * time.Minute,
		Prefix: "potter",
	}
}

// CachedStore кэширует Load в Redis поверх другого хранилища.
// Query всегда идет во внутреннее хранилище. После успешного Commit
// ключи измененных документов удаляются, а их версии увеличиваются. Ошибки Redis не прерывают
// операции: хранилище работает без кэша.
type CachedStore struct {
	persistence.Store
	client  *redis.Client
	config  CacheConfig
	logger  *zap.Logger
	running bool
	mu      sync.RWMutex
}

var _ persistence.Store = (*CachedStore)(nil)

// NewCachedStore создает кэширующее хранилище
func NewCachedStore(inner persistence.Store, config CacheConfig, logger *zap.Logger) (*CachedStore, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid cache config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &CachedStore{Store: inner, client: client, config: config, logger: logger}, nil
}

func (s *CachedStore) key(collection, id string) string {
	if s.config.Prefix == "" {
		return collection + ":" + id
	}
	return s.config.Prefix + ":" + collection + ":" + id
}

// versionKey счетчик инвалидаций документа
func versionKey(key string) string {
	return key + "#version"
}

// versionTTL время жизни счетчика не меньше часа
func (s *CachedStore) versionTTL() time.Duration {
	if s.config.TTL > time.Hour {
		return s.config.TTL
	}
	return time.Hour
}

// errStaleFill документ изменился, пока читался из хранилища
var errStaleFill = errors.New("document changed during cache fill")

// Load читает документ из кэша, при промахе из хранилища с записью в кэш.
// Запись выполняется только если с момента промаха не было коммита документа.
func (s *CachedStore) Load(ctx context.Context, collection, id string) ([]byte, bool, error) {
	key := s.key(collection, id)
	verKey := versionKey(key)

	fill := true
	var version string
	values, err := s.client.MGet(ctx, key, verKey).Result()
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		fill = false
	} else {
		if cached, ok := values[0].(string); ok {
			return []byte(cached), true, nil
		}
		version, _ = values[1].(string)
	}

	data, found, err := s.Store.Load(ctx, collection, id)
	if err != nil || !found || !fill {
		return data, found, err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.config.TTL)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		s.logger.Debug("cache fill skipped", zap.String("key", key))
	default:
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return data, true, nil
}

// Commit применяет изменения, инвалидирует их ключи и увеличивает версии
func (s *CachedStore) Commit(ctx context.Context, changes []persistence.Change) error {
	if err := s.Store.Commit(ctx, changes); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(changes))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range changes {
			key := s.key(c.Collection, c.ID)
			keys = append(keys, key)
			pipe.Incr(ctx, versionKey(key))
			pipe.Expire(ctx, versionKey(key), s.versionTTL())
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return nil
}

// Start проверяет подключение к Redis (реализация core.Lifecycle)
func (s *CachedStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to cache: %w", err)
	}
	s.running = true
	return nil
}

// Stop закрывает клиент Redis; внутреннее хранилище останавливается отдельно
func (s *CachedStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.client.Close()
}

// IsRunning проверяет статус
func (s *CachedStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Name возвращает имя компонента
func (s *CachedStore) Name() string {
	return "redis-cache"
}

// Type возвращает тип компонента
func (s *CachedStore) Type() core.ComponentType {
	return core.ComponentTypeCache
}

// HealthCheck проверяет подключение к Redis
func (s *CachedStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
