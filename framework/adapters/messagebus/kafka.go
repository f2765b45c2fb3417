package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akriventsev/potter-repository/framework/core"
)

// KafkaConfig конфигурация для Kafka публикатора
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Compression  string // none, gzip, snappy, lz4, zstd
	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks 0, 1, -1 (all)
	RequiredAcks int
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.Topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "potter.changes",
		Compression:  "snappy",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}

// KafkaPublisher пишет события в один топик; ключ сообщения collection/id,
// поэтому изменения одной сущности попадают в одну партицию
type KafkaPublisher struct {
	config  KafkaConfig
	writer  *kafka.Writer
	running bool
	mu      sync.RWMutex
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher создает Kafka публикатор
func NewKafkaPublisher(config KafkaConfig) (*KafkaPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kafka config")
	}

	return &KafkaPublisher{
		config: config,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
			BatchSize:    config.BatchSize,
			BatchTimeout: config.BatchTimeout,
			Compression:  getCompression(config.Compression),
		},
	}, nil
}

// getCompression преобразует строку в kafka.Compression
func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// messages строит сообщения Kafka для событий
func (k *KafkaPublisher) messages(events []ChangeEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Collection + "/" + e.ID),
			Value: payload,
			Time:  e.CommittedAt,
			Headers: []kafka.Header{
				{Key: "collection", Value: []byte(e.Collection)},
				{Key: "kind", Value: []byte(e.Kind)},
			},
		})
	}
	return msgs, nil
}

// Publish отправляет события одной пачкой
func (k *KafkaPublisher) Publish(ctx context.Context, events []ChangeEvent) error {
	msgs, err := k.messages(events)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	return nil
}

// Start запускает публикатор (реализация core.Lifecycle)
func (k *KafkaPublisher) Start(ctx context.Context) error {
	k.mu.Lock()
	k.running = true
	k.mu.Unlock()
	return nil
}

// Stop закрывает writer (реализация core.Lifecycle)
func (k *KafkaPublisher) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.running {
		return nil
	}
	k.running = false
	return k.writer.Close()
}

// IsRunning проверяет статус
func (k *KafkaPublisher) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента
func (k *KafkaPublisher) Name() string {
	return "kafka-publisher"
}

// Type возвращает тип компонента
func (k *KafkaPublisher) Type() core.ComponentType {
	return core.ComponentTypeMessageBus
}

// HealthCheck проверяет доступность первого брокера
func (k *KafkaPublisher) HealthCheck(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka broker unavailable: %w", err)
	}
	return conn.Close()
}
