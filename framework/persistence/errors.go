package persistence

import (
	"errors"
	"fmt"

	"github.com/akriventsev/potter-repository/framework/core"
)

// Sentinel ошибки для проверки через errors.Is. Сравнение идет по коду,
// поэтому любая ошибка фреймворка с тем же кодом им соответствует.
var (
	// ErrNotFound сущность с указанным идентификатором не существует
	ErrNotFound = &core.FrameworkError{Code: core.ErrNotFound, Message: "entity not found"}
	// ErrValidation данные нарушают ограничения хранилища
	ErrValidation = &core.FrameworkError{Code: core.ErrValidation, Message: "validation failed"}
	// ErrPersistence коммит не удался (соединение, конфликт, ограничение)
	ErrPersistence = &core.FrameworkError{Code: core.ErrPersistence, Message: "persistence failure"}
)

// NewNotFoundError создает ошибку отсутствия сущности
func NewNotFoundError(collection, id string) error {
	return core.Errorf(core.ErrNotFound, "entity not found: %s/%s", collection, id)
}

// NewValidationError создает ошибку валидации
func NewValidationError(format string, args ...interface{}) error {
	return core.Errorf(core.ErrValidation, format, args...)
}

// WrapValidationError оборачивает ошибку хранилища как ошибку валидации
func WrapValidationError(err error, message string) error {
	return core.Wrap(err, core.ErrValidation, message)
}

// NewPersistenceError оборачивает ошибку хранилища как ошибку персистентности
func NewPersistenceError(err error, message string) error {
	return core.Wrap(err, core.ErrPersistence, message)
}

// IsNotFound проверяет, что ошибка означает отсутствие сущности
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation проверяет, что ошибка является ошибкой валидации
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPersistence проверяет, что ошибка является ошибкой персистентности
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// classify гарантирует, что ошибка Store несет код фреймворка.
// Уже классифицированные ошибки возвращаются без изменений.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if core.CodeOf(err) != "" {
		return err
	}
	return NewPersistenceError(err, fmt.Sprintf("%s failed", op))
}
