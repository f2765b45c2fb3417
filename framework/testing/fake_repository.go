// Package testing предоставляет утилиты для тестирования приложений на базе фреймворка.
package testing

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
	"github.com/akriventsev/potter-repository/framework/repository"
)

// Call запись вызова тестового репозитория
type Call struct {
	Method    string
	ID        string
	Predicate *persistence.Predicate
}

// FakeRepository тестовый двойник repository.Repository[T].
// Хранит сущности в памяти, разделяя отложенные и зафиксированные,
// и записывает все вызовы. Ошибку любого метода можно задать через FailOn.
type FakeRepository[T persistence.Entity] struct {
	mu        sync.Mutex
	committed map[string]T
	pending   map[string]T
	order     []string
	calls     []Call
	failures  map[string]error
}

var _ repository.Repository[persistence.Entity] = (*FakeRepository[persistence.Entity])(nil)

// NewFakeRepository создает тестовый репозиторий с зафиксированными сущностями
func NewFakeRepository[T persistence.Entity](entities ...T) *FakeRepository[T] {
	f := &FakeRepository[T]{
		committed: make(map[string]T, len(entities)),
		pending:   make(map[string]T),
		failures:  make(map[string]error),
	}
	for _, e := range entities {
		f.committed[e.ID()] = e
	}
	return f
}

// FailOn задает ошибку, которую вернет метод (nil снимает ошибку)
func (f *FakeRepository[T]) FailOn(method string, err error) *FakeRepository[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
	} else {
		f.failures[method] = err
	}
	return f
}

// Calls возвращает копию журнала вызовов
func (f *FakeRepository[T]) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount возвращает число вызовов метода
func (f *FakeRepository[T]) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Committed возвращает зафиксированные сущности, отсортированные по ID
func (f *FakeRepository[T]) Committed() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sorted(f.committed)
}

// Pending возвращает число отложенных изменений
func (f *FakeRepository[T]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *FakeRepository[T]) record(c Call) error {
	f.calls = append(f.calls, c)
	return f.failures[c.Method]
}

// Add откладывает вставку
func (f *FakeRepository[T]) Add(ctx context.Context, entity T) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero T
	if err := f.record(Call{Method: "Add", ID: entity.ID()}); err != nil {
		return zero, err
	}
	id := entity.ID()
	if id == "" {
		idf, ok := any(entity).(persistence.Identifiable)
		if !ok {
			return zero, persistence.NewValidationError("entity of type %T has no ID", entity)
		}
		idf.SetID(persistence.NewID())
		id = entity.ID()
	}
	if _, ok := f.pending[id]; ok {
		return zero, persistence.NewValidationError("entity %s is already staged", id)
	}
	f.pending[id] = entity
	f.order = append(f.order, id)
	return entity, nil
}

// Update откладывает обновление существующей сущности
func (f *FakeRepository[T]) Update(ctx context.Context, entity T) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero T
	id := entity.ID()
	if err := f.record(Call{Method: "Update", ID: id}); err != nil {
		return zero, err
	}
	_, staged := f.pending[id]
	if _, ok := f.committed[id]; !ok && !staged {
		return zero, persistence.NewNotFoundError("fake", id)
	}
	if !staged {
		f.order = append(f.order, id)
	}
	f.pending[id] = entity
	return entity, nil
}

// Get возвращает отложенную или зафиксированную сущность
func (f *FakeRepository[T]) Get(ctx context.Context, id string) (core.Option[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Method: "Get", ID: id}); err != nil {
		return core.None[T](), err
	}
	if e, ok := f.pending[id]; ok {
		return core.Some(e), nil
	}
	if e, ok := f.committed[id]; ok {
		return core.Some(e), nil
	}
	return core.None[T](), nil
}

// All возвращает зафиксированные сущности
func (f *FakeRepository[T]) All(ctx context.Context) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Method: "All"}); err != nil {
		return nil, err
	}
	return sorted(f.committed), nil
}

// Find возвращает зафиксированные сущности, удовлетворяющие предикату.
// Предикат вычисляется над JSON документом сущности.
func (f *FakeRepository[T]) Find(ctx context.Context, predicate *persistence.Predicate) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Method: "Find", Predicate: predicate}); err != nil {
		return nil, err
	}
	if err := predicate.Validate(); err != nil {
		return nil, err
	}

	var result []T
	for _, e := range sorted(f.committed) {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, persistence.NewPersistenceError(err, "failed to encode entity")
		}
		matched, err := predicate.MatchDocument(e.ID(), data)
		if err != nil {
			return nil, persistence.NewPersistenceError(err, "failed to evaluate predicate")
		}
		if matched {
			result = append(result, e)
		}
	}
	return result, nil
}

// SaveChanges фиксирует отложенные изменения. При ошибке изменения остаются отложенными.
func (f *FakeRepository[T]) SaveChanges(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Method: "SaveChanges"}); err != nil {
		return err
	}
	for _, id := range f.order {
		f.committed[id] = f.pending[id]
	}
	f.pending = make(map[string]T)
	f.order = nil
	return nil
}

func sorted[T persistence.Entity](m map[string]T) []T {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		result = append(result, m[id])
	}
	return result
}
