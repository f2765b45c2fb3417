package persistence

import "context"

// ChangeKind тип отложенного изменения
type ChangeKind string

const (
	// ChangeInsert вставка новой сущности
	ChangeInsert ChangeKind = "insert"
	// ChangeUpdate обновление существующей сущности
	ChangeUpdate ChangeKind = "update"
)

// Change отложенное изменение одной сущности
type Change struct {
	Kind       ChangeKind
	Collection string
	ID         string
	// Data JSON документ сущности
	Data []byte
}

// Store интерфейс хранилища, поверх которого работает Context.
//
// Реализации обязаны:
//   - выполнять Commit атомарно: либо применяются все изменения, либо ни одно;
//   - возвращать ErrValidation при нарушении ограничений (дубликат ID),
//     ErrNotFound при обновлении несуществующей сущности и ErrPersistence
//     при прочих сбоях;
//   - вычислять Predicate на своей стороне (SQL, BSON или собственный движок);
//   - возвращать результаты Query отсортированными по ID.
type Store interface {
	// Load возвращает документ по ID; found=false если документа нет
	Load(ctx context.Context, collection, id string) (data []byte, found bool, err error)
	// Query возвращает документы коллекции, удовлетворяющие предикату (nil = все)
	Query(ctx context.Context, collection string, predicate *Predicate) ([][]byte, error)
	// Commit атомарно применяет изменения
	Commit(ctx context.Context, changes []Change) error
}
