// Package framework предоставляет компоненты для построения сервисов поверх
// паттерна Repository с подключаемыми хранилищами.
//
// Основные возможности:
//   - Unit of work (persistence context) с атомарным SaveChanges
//   - Generic репозиторий и язык предикатов для Find
//   - Хранилища: in-memory, PostgreSQL, SQLite, MongoDB
//   - Миграции схемы на goose
//   - REST транспорт, метрики OpenTelemetry/Prometheus, трассировка
//
// Пример использования:
//
//	fw := framework.New()
//	_ = fw.RegisterComponent(store)
//	_ = fw.RegisterComponent(restAdapter)
//	if err := fw.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Shutdown(ctx)
package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/akriventsev/potter-repository/framework/core"
)

// Version представляет версию фреймворка
const (
	Version = "1.0.0"
	Major   = 1
	Minor   = 0
	Patch   = 0
)

// Metadata содержит метаданные о фреймворке
type Metadata struct {
	Name        string
	Version     string
	Description string
	Author      string
	License     string
}

// GetMetadata возвращает метаданные фреймворка
func GetMetadata() Metadata {
	return Metadata{
		Name:        "Potter Repository",
		Version:     Version,
		Description: "Repository pattern over a unit of work with pluggable stores",
		Author:      "Potter Team",
		License:     "MIT",
	}
}

// Framework основной интерфейс фреймворка
type Framework interface {
	// Initialize запускает зарегистрированные компоненты
	Initialize(ctx context.Context) error
	// Shutdown корректно завершает работу фреймворка
	Shutdown(ctx context.Context) error
	// GetComponent возвращает компонент по имени
	GetComponent(name string) (core.Component, error)
	// RegisterComponent регистрирует компонент
	RegisterComponent(component core.Component) error
	// HealthCheck проверяет компоненты, реализующие core.HealthCheckable
	HealthCheck(ctx context.Context) error
}

// BaseFramework базовая реализация фреймворка.
// Компоненты запускаются в порядке регистрации и останавливаются в обратном.
type BaseFramework struct {
	components map[string]core.Component
	order      []string
	started    []core.Lifecycle
	metadata   Metadata
	mu         sync.Mutex
}

var _ Framework = (*BaseFramework)(nil)

// New создает новый экземпляр фреймворка
func New() *BaseFramework {
	return &BaseFramework{
		components: make(map[string]core.Component),
		metadata:   GetMetadata(),
	}
}

// Metadata возвращает метаданные экземпляра
func (f *BaseFramework) Metadata() Metadata {
	return f.metadata
}

// Initialize запускает компоненты, реализующие core.Lifecycle.
// Если компонент не запустился, уже запущенные останавливаются.
func (f *BaseFramework) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, name := range f.order {
		lc, ok := f.components[name].(core.Lifecycle)
		if !ok || containsLifecycle(f.started, lc) {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			stopErr := f.stopStarted(ctx)
			return errors.Join(fmt.Errorf("failed to start component %s: %w", name, err), stopErr)
		}
		f.started = append(f.started, lc)
	}
	return nil
}

// Shutdown останавливает запущенные компоненты в обратном порядке
func (f *BaseFramework) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopStarted(ctx)
}

func (f *BaseFramework) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(f.started) - 1; i >= 0; i-- {
		if err := f.started[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	f.started = nil
	return errors.Join(errs...)
}

// HealthCheck проверяет все компоненты, реализующие core.HealthCheckable
func (f *BaseFramework) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	var checks []core.Component
	for _, name := range f.order {
		checks = append(checks, f.components[name])
	}
	f.mu.Unlock()

	var errs []error
	for _, c := range checks {
		hc, ok := c.(core.HealthCheckable)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// GetComponent возвращает компонент по имени
func (f *BaseFramework) GetComponent(name string) (core.Component, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	component, exists := f.components[name]
	if !exists {
		return nil, fmt.Errorf("component %s not found", name)
	}
	return component, nil
}

// RegisterComponent регистрирует компонент
func (f *BaseFramework) RegisterComponent(component core.Component) error {
	if component == nil {
		return fmt.Errorf("component cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.components[component.Name()]; exists {
		return fmt.Errorf("component %s already registered", component.Name())
	}
	f.components[component.Name()] = component
	f.order = append(f.order, component.Name())
	return nil
}

// FrameworkVersion возвращает версию фреймворка
func FrameworkVersion() string {
	return Version
}

func containsLifecycle(list []core.Lifecycle, lc core.Lifecycle) bool {
	for _, item := range list {
		if item == lc {
			return true
		}
	}
	return false
}
