package messagebus

import (
	"context"
	"sync"

	"github.com/akriventsev/potter-repository/framework/core"
)

// InMemoryConfig конфигурация для InMemory публикатора
type InMemoryConfig struct {
	// HistorySize сколько последних событий хранить (0 = не хранить)
	HistorySize int
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{HistorySize: 1000}
}

// Handler обработчик событий в процессе
type Handler func(ctx context.Context, event ChangeEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// InMemoryPublisher доставляет события подписчикам синхронно в том же процессе
type InMemoryPublisher struct {
	config      InMemoryConfig
	subscribers map[string][]subscription
	nextID      uint64
	history     []ChangeEvent
	running     bool
	mu          sync.RWMutex
}

var _ Publisher = (*InMemoryPublisher)(nil)

// NewInMemoryPublisher создает новый InMemory публикатор
func NewInMemoryPublisher(config InMemoryConfig) *InMemoryPublisher {
	return &InMemoryPublisher{
		config:      config,
		subscribers: make(map[string][]subscription),
	}
}

// Subscribe подписывает обработчик на коллекцию ("" = все коллекции).
// Возвращает функцию отписки.
func (p *InMemoryPublisher) Subscribe(collection string, handler Handler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subscribers[collection] = append(p.subscribers[collection], subscription{id: id, handler: handler})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		subs := p.subscribers[collection]
		for i, sub := range subs {
			if sub.id == id {
				p.subscribers[collection] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(p.subscribers[collection]) == 0 {
			delete(p.subscribers, collection)
		}
	}
}

// Subscribers возвращает число подписчиков коллекции
func (p *InMemoryPublisher) Subscribers(collection string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[collection])
}

func handlers(subs []subscription) []Handler {
	result := make([]Handler, 0, len(subs))
	for _, sub := range subs {
		result = append(result, sub.handler)
	}
	return result
}

// Publish доставляет события подписчикам в порядке изменений
func (p *InMemoryPublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	p.mu.Lock()
	if p.config.HistorySize > 0 {
		p.history = append(p.history, events...)
		if over := len(p.history) - p.config.HistorySize; over > 0 {
			p.history = append([]ChangeEvent(nil), p.history[over:]...)
		}
	}
	all := handlers(p.subscribers[""])
	byCollection := make(map[string][]Handler, len(p.subscribers))
	for k, v := range p.subscribers {
		if k != "" {
			byCollection[k] = handlers(v)
		}
	}
	p.mu.Unlock()

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, h := range all {
			h(ctx, e)
		}
		for _, h := range byCollection[e.Collection] {
			h(ctx, e)
		}
	}
	return nil
}

// History возвращает копию сохраненных событий
func (p *InMemoryPublisher) History() []ChangeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ChangeEvent(nil), p.history...)
}

// Start запускает публикатор (реализация core.Lifecycle)
func (p *InMemoryPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	return nil
}

// Stop останавливает публикатор (реализация core.Lifecycle)
func (p *InMemoryPublisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning проверяет статус
func (p *InMemoryPublisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Name возвращает имя компонента
func (p *InMemoryPublisher) Name() string {
	return "inmemory-publisher"
}

// Type возвращает тип компонента
func (p *InMemoryPublisher) Type() core.ComponentType {
	return core.ComponentTypeMessageBus
}
