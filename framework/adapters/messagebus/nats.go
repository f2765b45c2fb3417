package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-repository/framework/core"
)

// NATSConfig конфигурация для NATS публикатора
type NATSConfig struct {
	URL               string
	SubjectPrefix     string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
	Token             string
	Username          string
	Password          string
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               "nats://localhost:4222",
		SubjectPrefix:     "potter",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSPublisher публикует события в subject <prefix>.<collection>.<kind>
type NATSPublisher struct {
	config NATSConfig
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.RWMutex
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher создает NATS публикатор; соединение открывается в Start
func NewNATSPublisher(config NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid nats config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{config: config, logger: logger}, nil
}

// Start подключается к NATS (реализация core.Lifecycle)
func (n *NATSPublisher) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return nil
	}

	opts := []nats.Option{
		nats.Name("potter-repository"),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if n.config.Token != "" {
		opts = append(opts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n.conn = conn
	return nil
}

// Stop сбрасывает буфер и закрывает соединение (реализация core.Lifecycle)
func (n *NATSPublisher) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	return err
}

// IsRunning проверяет статус
func (n *NATSPublisher) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}

// Name возвращает имя компонента
func (n *NATSPublisher) Name() string {
	return "nats-publisher"
}

// Type возвращает тип компонента
func (n *NATSPublisher) Type() core.ComponentType {
	return core.ComponentTypeMessageBus
}

// HealthCheck проверяет подключение
func (n *NATSPublisher) HealthCheck(ctx context.Context) error {
	if !n.IsRunning() {
		return fmt.Errorf("nats is not connected")
	}
	return nil
}

// Publish отправляет события и дожидается подтверждения сервером
func (n *NATSPublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("nats publisher is not started")
	}

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		if err := conn.Publish(e.Subject(n.config.SubjectPrefix), payload); err != nil {
			return fmt.Errorf("failed to publish to NATS: %w", err)
		}
	}
	if _, ok := ctx.Deadline(); ok {
		return conn.FlushWithContext(ctx)
	}
	timeout := n.config.ConnectionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return conn.FlushTimeout(timeout)
}
