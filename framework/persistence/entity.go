// Package persistence предоставляет unit of work (persistence context) и
// per-type коллекции поверх подключаемого Store.
//
// Context накапливает добавления и обновления сущностей разных типов и
// фиксирует их атомарно вызовом SaveChanges. Set[T] привязывает один тип
// сущности к одной коллекции контекста. Репозитории строятся поверх Set[T].
//
// Context не потокобезопасен: он живет в пределах одного запроса или одной
// логической операции и после коммита выбрасывается.
package persistence

import "github.com/google/uuid"

// Entity интерфейс для entity с ID
type Entity interface {
	ID() string
}

// Identifiable сущность, которой можно присвоить сгенерированный ID.
// Метод должен иметь pointer receiver, иначе присвоение не сохранится.
type Identifiable interface {
	SetID(id string)
}

// NewID генерирует новый идентификатор сущности (UUID v4)
func NewID() string {
	return uuid.NewString()
}
