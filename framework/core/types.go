// Package core предоставляет базовые типы для всех компонентов фреймворка.
package core

// Option[T] generic тип для опциональных значений.
// Используется репозиториями для результата, который может отсутствовать
// (отсутствие сущности не является ошибкой).
type Option[T any] struct {
	value T
	some  bool
}

// Some создает Option с значением
func Some[T any](value T) Option[T] {
	return Option[T]{value: value, some: true}
}

// None создает пустой Option
func None[T any]() Option[T] {
	return Option[T]{some: false}
}

// IsSome проверяет, есть ли значение
func (o Option[T]) IsSome() bool {
	return o.some
}

// IsNone проверяет, пуст ли Option
func (o Option[T]) IsNone() bool {
	return !o.some
}

// Value возвращает значение (panic если None)
func (o Option[T]) Value() T {
	if !o.some {
		panic("option is none")
	}
	return o.value
}

// ValueOr возвращает значение или значение по умолчанию
func (o Option[T]) ValueOr(defaultValue T) T {
	if o.some {
		return o.value
	}
	return defaultValue
}

// Get возвращает значение и признак его наличия в стиле comma-ok
func (o Option[T]) Get() (T, bool) {
	return o.value, o.some
}

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeAdapter    ComponentType = "adapter"
	ComponentTypeStore      ComponentType = "store"
	ComponentTypeTransport  ComponentType = "transport"
	ComponentTypeMessageBus ComponentType = "messagebus"
	ComponentTypeCache      ComponentType = "cache"
)
