// Package messagebus публикует зафиксированные изменения хранилища во внешние брокеры.
package messagebus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// ChangeEvent событие о зафиксированном изменении сущности
type ChangeEvent struct {
	Collection  string                 `json:"collection"`
	ID          string                 `json:"id"`
	Kind        persistence.ChangeKind `json:"kind"`
	Data        json.RawMessage        `json:"data"`
	CommittedAt time.Time              `json:"committed_at"`
}

// Subject возвращает тему события: <prefix>.<collection>.<kind>
func (e ChangeEvent) Subject(prefix string) string {
	if prefix == "" {
		return e.Collection + "." + string(e.Kind)
	}
	return prefix + "." + e.Collection + "." + string(e.Kind)
}

// Publisher публикует пачку событий одного SaveChanges
type Publisher interface {
	core.Component
	Publish(ctx context.Context, events []ChangeEvent) error
}

// EventsFromChanges строит события из применённых изменений
func EventsFromChanges(changes []persistence.Change, committedAt time.Time) []ChangeEvent {
	events := make([]ChangeEvent, 0, len(changes))
	for _, c := range changes {
		events = append(events, ChangeEvent{
			Collection:  c.Collection,
			ID:          c.ID,
			Kind:        c.Kind,
			Data:        json.RawMessage(c.Data),
			CommittedAt: committedAt,
		})
	}
	return events
}
