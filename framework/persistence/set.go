package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akriventsev/potter-repository/framework/core"
)

// Set[T] коллекция сущностей одного типа в пределах одного Context.
// Привязка к типу, коллекции и контексту не меняется после создания.
type Set[T Entity] struct {
	pc         *Context
	collection string
}

// NewSet создает коллекцию сущностей типа T
func NewSet[T Entity](pc *Context, collection string) *Set[T] {
	if pc == nil {
		panic("persistence: nil context")
	}
	if collection == "" {
		panic("persistence: empty collection name")
	}
	return &Set[T]{pc: pc, collection: collection}
}

// Name возвращает имя коллекции
func (s *Set[T]) Name() string {
	return s.collection
}

// Context возвращает persistence context коллекции
func (s *Set[T]) Context() *Context {
	return s.pc
}

// Add откладывает вставку сущности.
// Если ID пуст и сущность реализует Identifiable, ей присваивается новый ID.
func (s *Set[T]) Add(ctx context.Context, entity T) (T, error) {
	var zero T

	id := entity.ID()
	if id == "" {
		idf, ok := any(entity).(Identifiable)
		if !ok {
			return zero, NewValidationError("entity of type %T has no ID and cannot be assigned one", entity)
		}
		idf.SetID(NewID())
		id = entity.ID()
		if id == "" {
			return zero, NewValidationError("entity of type %T did not keep the assigned ID", entity)
		}
	}

	data, err := s.encode(entity)
	if err != nil {
		return zero, err
	}
	if err := s.pc.stageInsert(s.collection, id, data, entity); err != nil {
		return zero, err
	}
	return entity, nil
}

// Update откладывает обновление существующей сущности.
// Возвращает ErrNotFound, если сущность не добавлена в контекст и
// отсутствует в хранилище.
func (s *Set[T]) Update(ctx context.Context, entity T) (T, error) {
	var zero T

	id := entity.ID()
	if id == "" {
		return zero, NewValidationError("cannot update entity of type %T without ID", entity)
	}

	data, err := s.encode(entity)
	if err != nil {
		return zero, err
	}
	if err := s.pc.stageUpdate(ctx, s.collection, id, data, entity); err != nil {
		return zero, err
	}
	return entity, nil
}

// Find возвращает сущность по ID. Сущности, отложенные в контексте,
// возвращаются без обращения к хранилищу.
func (s *Set[T]) Find(ctx context.Context, id string) (core.Option[T], error) {
	if staged, ok := s.pc.staged(s.collection, id); ok {
		if entity, ok := staged.(T); ok {
			return core.Some(entity), nil
		}
	}

	data, found, err := s.pc.store.Load(ctx, s.collection, id)
	if err != nil {
		return core.None[T](), classify(err, fmt.Sprintf("load %s/%s", s.collection, id))
	}
	if !found {
		return core.None[T](), nil
	}

	entity, err := s.decode(data)
	if err != nil {
		return core.None[T](), err
	}
	return core.Some(entity), nil
}

// All возвращает все зафиксированные сущности коллекции
func (s *Set[T]) All(ctx context.Context) ([]T, error) {
	return s.Where(ctx, nil)
}

// Where возвращает зафиксированные сущности, удовлетворяющие предикату.
// Предикат вычисляется хранилищем.
func (s *Set[T]) Where(ctx context.Context, predicate *Predicate) ([]T, error) {
	if err := predicate.Validate(); err != nil {
		return nil, err
	}
	if predicate.IsEmpty() {
		predicate = nil
	}

	docs, err := s.pc.store.Query(ctx, s.collection, predicate)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("query %s", s.collection))
	}

	entities := make([]T, 0, len(docs))
	for _, data := range docs {
		entity, err := s.decode(data)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (s *Set[T]) encode(entity T) ([]byte, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, WrapValidationError(err, fmt.Sprintf("failed to encode %s entity", s.collection))
	}
	return data, nil
}

func (s *Set[T]) decode(data []byte) (T, error) {
	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		var zero T
		return zero, NewPersistenceError(err, fmt.Sprintf("failed to decode %s entity", s.collection))
	}
	return entity, nil
}
