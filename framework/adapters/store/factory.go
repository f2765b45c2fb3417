package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/potter-repository/framework/persistence"
)

// Creator функция создания хранилища из конфигурации
type Creator func(ctx context.Context, config interface{}) (persistence.Store, error)

// StoreFactory интерфейс фабрики для создания Store адаптеров
type StoreFactory interface {
	Register(name string, creator Creator) error
	Create(ctx context.Context, name string, config interface{}) (persistence.Store, error)
}

// DefaultStoreFactory реализация фабрики Store
type DefaultStoreFactory struct {
	creators map[string]Creator
	mu       sync.RWMutex
}

var _ StoreFactory = (*DefaultStoreFactory)(nil)

// NewStoreFactory создает новую фабрику Store со встроенными адаптерами
func NewStoreFactory() *DefaultStoreFactory {
	factory := &DefaultStoreFactory{
		creators: make(map[string]Creator),
	}

	// Регистрируем built-in адаптеры
	_ = factory.Register("inmemory", func(ctx context.Context, config interface{}) (persistence.Store, error) {
		cfg := DefaultInMemoryConfig()
		if c, ok := config.(InMemoryConfig); ok {
			cfg = c
		}
		return NewInMemoryStore(cfg), nil
	})

	_ = factory.Register("postgres", sqlCreator("postgres"))
	_ = factory.Register("sqlite", sqlCreator("sqlite"))

	_ = factory.Register("mongodb", func(ctx context.Context, config interface{}) (persistence.Store, error) {
		cfg, ok := config.(MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Mongo config type: %T", config)
		}
		return NewMongoStore(ctx, cfg)
	})

	return factory
}

func sqlCreator(dialect string) Creator {
	return func(ctx context.Context, config interface{}) (persistence.Store, error) {
		cfg, ok := config.(SQLConfig)
		if !ok {
			return nil, fmt.Errorf("invalid SQL config type: %T", config)
		}
		cfg.Dialect = dialect
		return OpenSQLStore(ctx, cfg)
	}
}

// Register регистрирует custom адаптер
func (f *DefaultStoreFactory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}

	f.creators[name] = creator
	return nil
}

// Create создает Store адаптер указанного типа
func (f *DefaultStoreFactory) Create(ctx context.Context, name string, config interface{}) (persistence.Store, error) {
	f.mu.RLock()
	creator, exists := f.creators[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", name)
	}

	s, err := creator(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", name, err)
	}
	return s, nil
}

// Names возвращает имена зарегистрированных адаптеров
func (f *DefaultStoreFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
