package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/adapters/messagebus"
	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/logger"
)

// WebSocketConfig конфигурация потока изменений через WebSocket
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	// SendBuffer очередь событий клиента; переполнение отключает клиента
	SendBuffer int
	// AllowedOrigins разрешенные Origin (пусто = любые)
	AllowedOrigins []string
}

// DefaultWebSocketConfig возвращает конфигурацию WebSocket по умолчанию
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  512,
		SendBuffer:      64,
	}
}

// Subscriber источник событий потока (например, messagebus.InMemoryPublisher)
type Subscriber interface {
	Subscribe(collection string, handler messagebus.Handler) func()
}

// ChangeStream отдает зафиксированные изменения коллекции WebSocket клиентам
type ChangeStream struct {
	config   WebSocketConfig
	upgrader websocket.Upgrader
	source   Subscriber
	logger   *zap.Logger
	clients  map[*streamClient]struct{}
	running  bool
	mu       sync.Mutex
}

type streamClient struct {
	conn *websocket.Conn
	send chan messagebus.ChangeEvent
	done chan struct{}
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

var _ core.Lifecycle = (*ChangeStream)(nil)

// NewChangeStream создает поток изменений поверх источника событий
func NewChangeStream(source Subscriber, config WebSocketConfig, l *zap.Logger) *ChangeStream {
	if l == nil {
		l = zap.NewNop()
	}
	defaults := DefaultWebSocketConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	s := &ChangeStream{
		config:  config,
		source:  source,
		logger:  l,
		clients: make(map[*streamClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *ChangeStream) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Handler возвращает gin handler, который переводит запрос на WebSocket и
// отправляет клиенту события коллекции ("" = все коллекции) в формате JSON
func (s *ChangeStream) Handler(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.From(c.Request.Context())

		conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			reqLogger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &streamClient{
			conn: conn,
			send: make(chan messagebus.ChangeEvent, s.config.SendBuffer),
			done: make(chan struct{}),
		}
		s.mu.Lock()
		s.clients[client] = struct{}{}
		s.mu.Unlock()

		unsubscribe := s.source.Subscribe(collection, func(_ context.Context, e messagebus.ChangeEvent) {
			select {
			case client.send <- e:
			case <-client.done:
			default:
				reqLogger.Warn("change stream client is too slow, disconnecting")
				client.close()
			}
		})
		defer func() {
			unsubscribe()
			s.mu.Lock()
			delete(s.clients, client)
			s.mu.Unlock()
			_ = conn.Close()
		}()

		reqLogger.Info("change stream opened", zap.String("collection", collection))
		go s.readLoop(client)
		s.writeLoop(client)
		reqLogger.Info("change stream closed", zap.String("collection", collection))
	}
}

// readLoop обрабатывает pong и закрытие соединения клиентом
func (s *ChangeStream) readLoop(client *streamClient) {
	defer client.close()

	client.conn.SetReadLimit(s.config.MaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop единственный писатель в соединение
func (s *ChangeStream) writeLoop(client *streamClient) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := client.conn.WriteJSON(e); err != nil {
				client.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteWait)
			if err := client.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				client.close()
				return
			}
		case <-client.done:
			deadline := time.Now().Add(s.config.WriteWait)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = client.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

// Clients возвращает число подключенных клиентов
func (s *ChangeStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Start запускает поток (реализация core.Lifecycle)
func (s *ChangeStream) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop закрывает все клиентские соединения
func (s *ChangeStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for client := range s.clients {
		client.close()
	}
	return nil
}

// IsRunning проверяет статус
func (s *ChangeStream) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Name возвращает имя компонента
func (s *ChangeStream) Name() string {
	return "change-stream"
}

// Type возвращает тип компонента
func (s *ChangeStream) Type() core.ComponentType {
	return core.ComponentTypeTransport
}
