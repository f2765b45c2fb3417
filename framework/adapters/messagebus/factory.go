package messagebus

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Creator создает публикатор по конфигурации
type Creator func(config interface{}, logger *zap.Logger) (Publisher, error)

// PublisherFactory фабрика публикаторов изменений
type PublisherFactory struct {
	creators map[string]Creator
	mu       sync.RWMutex
}

// NewPublisherFactory создает фабрику со встроенными публикаторами
func NewPublisherFactory() *PublisherFactory {
	f := &PublisherFactory{creators: make(map[string]Creator)}

	_ = f.Register("inmemory", func(config interface{}, _ *zap.Logger) (Publisher, error) {
		cfg, ok := config.(InMemoryConfig)
		if !ok {
			cfg = DefaultInMemoryConfig()
		}
		return NewInMemoryPublisher(cfg), nil
	})
	_ = f.Register("nats", func(config interface{}, logger *zap.Logger) (Publisher, error) {
		cfg, ok := config.(NATSConfig)
		if !ok {
			return nil, fmt.Errorf("invalid NATS config type: %T", config)
		}
		return NewNATSPublisher(cfg, logger)
	})
	_ = f.Register("kafka", func(config interface{}, _ *zap.Logger) (Publisher, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		return NewKafkaPublisher(cfg)
	})
	_ = f.Register("redis", func(config interface{}, _ *zap.Logger) (Publisher, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		return NewRedisPublisher(cfg)
	})

	return f
}

// Create создает публикатор указанного типа
func (f *PublisherFactory) Create(name string, config interface{}, logger *zap.Logger) (Publisher, error) {
	f.mu.RLock()
	creator, exists := f.creators[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown publisher type: %s", name)
	}

	p, err := creator(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s publisher: %w", name, err)
	}
	return p, nil
}

// Register регистрирует custom публикатор
func (f *PublisherFactory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("publisher name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("publisher %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// Names возвращает отсортированный список зарегистрированных публикаторов
func (f *PublisherFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
