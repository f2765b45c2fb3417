package messagebus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/persistence"
)

// NotifyingStore публикует изменения после успешного Commit внутреннего хранилища.
// Ошибка публикации не отменяет уже зафиксированные изменения: она логируется.
type NotifyingStore struct {
	persistence.Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

var _ persistence.Store = (*NotifyingStore)(nil)

// NewNotifyingStore оборачивает хранилище публикацией изменений
func NewNotifyingStore(inner persistence.Store, publisher Publisher, logger *zap.Logger) *NotifyingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyingStore{
		Store:     inner,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Commit применяет изменения и публикует события
func (s *NotifyingStore) Commit(ctx context.Context, changes []persistence.Change) error {
	if err := s.Store.Commit(ctx, changes); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	events := EventsFromChanges(changes, s.now().UTC())
	if err := s.publisher.Publish(ctx, events); err != nil {
		s.logger.Error("failed to publish committed changes",
			zap.String("publisher", s.publisher.Name()),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
	return nil
}
