package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ContextOption опция Context
type ContextOption func(*Context)

// WithLogger задает логгер для Context
func WithLogger(logger *zap.Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type changeKey struct {
	collection string
	id         string
}

// pendingChange отложенное изменение вместе с исходной сущностью
type pendingChange struct {
	change Change
	entity interface{}
}

// Context unit of work: накапливает изменения сущностей разных типов
// и атомарно фиксирует их в Store.
//
// Context держит ссылку на Store, но не владеет им: закрытием хранилища
// управляет приложение. Context не потокобезопасен.
type Context struct {
	store   Store
	logger  *zap.Logger
	pending []*pendingChange
	index   map[changeKey]*pendingChange
}

// NewContext создает новый persistence context поверх хранилища
func NewContext(store Store, opts ...ContextOption) *Context {
	c := &Context{
		store:  store,
		logger: zap.NewNop(),
		index:  make(map[changeKey]*pendingChange),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasChanges проверяет наличие незафиксированных изменений
func (c *Context) HasChanges() bool {
	return len(c.pending) > 0
}

// PendingChanges возвращает копию незафиксированных изменений в порядке добавления
func (c *Context) PendingChanges() []Change {
	changes := make([]Change, len(c.pending))
	for i, p := range c.pending {
		changes[i] = p.change
	}
	return changes
}

// SaveChanges атомарно фиксирует все отложенные изменения.
//
// Пустой набор изменений не обращается к хранилищу. При ошибке отложенные
// изменения сохраняются, и вызывающий код может повторить коммит или
// отбросить их через Discard.
func (c *Context) SaveChanges(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}

	changes := c.PendingChanges()
	if err := c.store.Commit(ctx, changes); err != nil {
		c.logger.Debug("commit failed",
			zap.Int("changes", len(changes)),
			zap.Error(err),
		)
		return classify(err, "commit")
	}

	c.logger.Debug("changes committed", zap.Int("changes", len(changes)))
	c.Discard()
	return nil
}

// Discard отбрасывает все незафиксированные изменения
func (c *Context) Discard() {
	c.pending = nil
	c.index = make(map[changeKey]*pendingChange)
}

// stageInsert добавляет отложенную вставку
func (c *Context) stageInsert(collection, id string, data []byte, entity interface{}) error {
	key := changeKey{collection: collection, id: id}
	if _, exists := c.index[key]; exists {
		return NewValidationError("entity %s/%s is already staged", collection, id)
	}

	p := &pendingChange{
		change: Change{Kind: ChangeInsert, Collection: collection, ID: id, Data: data},
		entity: entity,
	}
	c.pending = append(c.pending, p)
	c.index[key] = p
	return nil
}

// stageUpdate добавляет отложенное обновление.
// Обновление никогда не превращается во вставку: сущность должна быть
// либо уже добавлена в этот контекст, либо существовать в хранилище.
func (c *Context) stageUpdate(ctx context.Context, collection, id string, data []byte, entity interface{}) error {
	key := changeKey{collection: collection, id: id}
	if p, exists := c.index[key]; exists {
		// Вставка остается вставкой, но с новыми данными
		p.change.Data = data
		p.entity = entity
		return nil
	}

	_, found, err := c.store.Load(ctx, collection, id)
	if err != nil {
		return classify(err, fmt.Sprintf("load %s/%s", collection, id))
	}
	if !found {
		return NewNotFoundError(collection, id)
	}

	p := &pendingChange{
		change: Change{Kind: ChangeUpdate, Collection: collection, ID: id, Data: data},
		entity: entity,
	}
	c.pending = append(c.pending, p)
	c.index[key] = p
	return nil
}

// staged возвращает сущность, отложенную в этом контексте
func (c *Context) staged(collection, id string) (interface{}, bool) {
	p, ok := c.index[changeKey{collection: collection, id: id}]
	if !ok {
		return nil, false
	}
	return p.entity, true
}
