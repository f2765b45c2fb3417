// Package store предоставляет реализации persistence.Store для различных storage backends.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// InMemoryConfig конфигурация для InMemory хранилища
type InMemoryConfig struct {
	// MaxEntities максимальное количество сущностей в одной коллекции (0 = без ограничений)
	// При достижении лимита Commit вернет ошибку валидации
	MaxEntities int
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		MaxEntities: 0, // Без ограничений по умолчанию
	}
}

// InMemoryStore хранилище документов в памяти.
// Безопасно для конкурентного использования несколькими persistence context.
type InMemoryStore struct {
	config      InMemoryConfig
	collections map[string]map[string][]byte // collection -> id -> document
	mu          sync.RWMutex
}

var _ persistence.Store = (*InMemoryStore)(nil)

// NewInMemoryStore создает новое in-memory хранилище
func NewInMemoryStore(config InMemoryConfig) *InMemoryStore {
	return &InMemoryStore{
		config:      config,
		collections: make(map[string]map[string][]byte),
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) Start(ctx context.Context) error {
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) Stop(ctx context.Context) error {
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *InMemoryStore) IsRunning() bool {
	return true
}

// Name возвращает имя компонента (реализация core.Component)
func (s *InMemoryStore) Name() string {
	return "inmemory-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *InMemoryStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// HealthCheck всегда успешен (реализация core.HealthCheckable)
func (s *InMemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Load возвращает документ по ID
func (s *InMemoryStore) Load(ctx context.Context, collection, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.collections[collection][id]
	if !exists {
		return nil, false, nil
	}
	return cloneBytes(data), true, nil
}

// Query возвращает документы, удовлетворяющие предикату, отсортированные по ID
func (s *InMemoryStore) Query(ctx context.Context, collection string, predicate *persistence.Predicate) ([][]byte, error) {
	if err := predicate.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([][]byte, 0, len(ids))
	for _, id := range ids {
		matched, err := predicate.MatchDocument(id, docs[id])
		if err != nil {
			return nil, persistence.NewPersistenceError(err, "failed to evaluate predicate")
		}
		if matched {
			results = append(results, cloneBytes(docs[id]))
		}
	}
	return results, nil
}

// Commit атомарно применяет изменения: сначала проверяется весь набор,
// затем изменения применяются. При любой ошибке хранилище не меняется.
func (s *InMemoryStore) Commit(ctx context.Context, changes []persistence.Change) error {
	if len(changes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return persistence.NewPersistenceError(err, "commit aborted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make(map[string]map[string]bool)
	added := make(map[string]int)
	for _, change := range changes {
		docs := s.collections[change.Collection]
		_, exists := docs[change.ID]
		if inserted[change.Collection][change.ID] {
			exists = true
		}

		switch change.Kind {
		case persistence.ChangeInsert:
			if exists {
				return persistence.NewValidationError("duplicate id %s in collection %s", change.ID, change.Collection)
			}
			if inserted[change.Collection] == nil {
				inserted[change.Collection] = make(map[string]bool)
			}
			inserted[change.Collection][change.ID] = true
			added[change.Collection]++
		case persistence.ChangeUpdate:
			if !exists {
				return persistence.NewNotFoundError(change.Collection, change.ID)
			}
		default:
			return persistence.NewValidationError("unknown change kind %q", change.Kind)
		}
	}

	// Проверяем лимит, если он установлен
	if s.config.MaxEntities > 0 {
		for collection, n := range added {
			if len(s.collections[collection])+n > s.config.MaxEntities {
				return persistence.NewValidationError("store limit reached: max %d entities in %s", s.config.MaxEntities, collection)
			}
		}
	}

	for _, change := range changes {
		docs := s.collections[change.Collection]
		if docs == nil {
			docs = make(map[string][]byte)
			s.collections[change.Collection] = docs
		}
		docs[change.ID] = cloneBytes(change.Data)
	}
	return nil
}

// Count возвращает количество документов в коллекции
func (s *InMemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}

// Clear очищает хранилище (для тестирования)
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]map[string][]byte)
	return nil
}

// String возвращает краткое описание хранилища
func (s *InMemoryStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("inmemory(%d collections)", len(s.collections))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
