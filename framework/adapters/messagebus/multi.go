package messagebus

import (
	"context"
	"errors"
	"fmt"

	"github.com/akriventsev/potter-repository/framework/core"
)

// MultiPublisher публикует каждую пачку во все вложенные публикаторы.
// Ошибка одного публикатора не мешает доставке в остальные.
type MultiPublisher struct {
	publishers []Publisher
}

var _ Publisher = (*MultiPublisher)(nil)

// NewMultiPublisher создает публикатор поверх нескольких
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish доставляет события во все публикаторы
func (m *MultiPublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Start запускает вложенные публикаторы; при ошибке запущенные останавливаются
func (m *MultiPublisher) Start(ctx context.Context) error {
	for i, p := range m.publishers {
		lc, ok := p.(core.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			_ = m.stop(ctx, m.publishers[:i])
			return fmt.Errorf("failed to start %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Stop останавливает вложенные публикаторы в обратном порядке
func (m *MultiPublisher) Stop(ctx context.Context) error {
	return m.stop(ctx, m.publishers)
}

func (m *MultiPublisher) stop(ctx context.Context, publishers []Publisher) error {
	var errs []error
	for i := len(publishers) - 1; i >= 0; i-- {
		if lc, ok := publishers[i].(core.Lifecycle); ok {
			if err := lc.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// IsRunning сообщает, запущены ли все вложенные публикаторы
func (m *MultiPublisher) IsRunning() bool {
	for _, p := range m.publishers {
		if lc, ok := p.(core.Lifecycle); ok && !lc.IsRunning() {
			return false
		}
	}
	return true
}

// HealthCheck проверяет вложенные публикаторы, поддерживающие проверку
func (m *MultiPublisher) HealthCheck(ctx context.Context) error {
	for _, p := range m.publishers {
		if hc, ok := p.(core.HealthCheckable); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
		}
	}
	return nil
}

// Name возвращает имя компонента
func (m *MultiPublisher) Name() string {
	return "multi-publisher"
}

// Type возвращает тип компонента
func (m *MultiPublisher) Type() core.ComponentType {
	return core.ComponentTypeMessageBus
}
