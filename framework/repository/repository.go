// Package repository предоставляет типизированный репозиторий поверх
// persistence context (unit of work).
//
// Репозиторий не владеет ресурсами: хранилище и persistence context
// создаются и закрываются вызывающим кодом. Репозиторий и его context
// рассчитаны на использование из одной горутины (один запрос).
package repository

import (
	"context"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// Repository интерфейс репозитория сущностей типа T.
//
// Add и Update только откладывают изменения; хранилище меняется
// при вызове SaveChanges. All и Find читают зафиксированные данные.
type Repository[T persistence.Entity] interface {
	// Add откладывает вставку сущности
	Add(ctx context.Context, entity T) (T, error)
	// Update откладывает обновление существующей сущности
	Update(ctx context.Context, entity T) (T, error)
	// Get возвращает сущность по ID или None
	Get(ctx context.Context, id string) (core.Option[T], error)
	// All возвращает все сущности
	All(ctx context.Context) ([]T, error)
	// Find возвращает сущности, удовлетворяющие предикату
	Find(ctx context.Context, predicate *persistence.Predicate) ([]T, error)
	// SaveChanges фиксирует все отложенные изменения persistence context
	SaveChanges(ctx context.Context) error
}

// GenericRepository реализация Repository поверх persistence.Set
type GenericRepository[T persistence.Entity] struct {
	set *persistence.Set[T]
}

var _ Repository[persistence.Entity] = (*GenericRepository[persistence.Entity])(nil)

// New создает репозиторий коллекции collection в persistence context pc
func New[T persistence.Entity](pc *persistence.Context, collection string) *GenericRepository[T] {
	return &GenericRepository[T]{set: persistence.NewSet[T](pc, collection)}
}

// NewFromSet создает репозиторий поверх существующей коллекции
func NewFromSet[T persistence.Entity](set *persistence.Set[T]) *GenericRepository[T] {
	return &GenericRepository[T]{set: set}
}

// Set возвращает коллекцию репозитория
func (r *GenericRepository[T]) Set() *persistence.Set[T] {
	return r.set
}

// Add откладывает вставку сущности
func (r *GenericRepository[T]) Add(ctx context.Context, entity T) (T, error) {
	return r.set.Add(ctx, entity)
}

// Update откладывает обновление сущности
func (r *GenericRepository[T]) Update(ctx context.Context, entity T) (T, error) {
	return r.set.Update(ctx, entity)
}

// Get возвращает сущность по ID
func (r *GenericRepository[T]) Get(ctx context.Context, id string) (core.Option[T], error) {
	return r.set.Find(ctx, id)
}

// All возвращает все зафиксированные сущности
func (r *GenericRepository[T]) All(ctx context.Context) ([]T, error) {
	return r.set.All(ctx)
}

// Find возвращает зафиксированные сущности, удовлетворяющие предикату
func (r *GenericRepository[T]) Find(ctx context.Context, predicate *persistence.Predicate) ([]T, error) {
	return r.set.Where(ctx, predicate)
}

// SaveChanges фиксирует изменения persistence context
func (r *GenericRepository[T]) SaveChanges(ctx context.Context) error {
	return r.set.Context().SaveChanges(ctx)
}
