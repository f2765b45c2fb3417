package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// MongoConfig конфигурация для MongoDB хранилища
type MongoConfig struct {
	URI         string
	Database    string
	Timeout     int // в секундах
	MaxPoolSize int
	MinPoolSize int
}

// Validate проверяет корректность конфигурации
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("MaxPoolSize must be greater than 0")
	}
	return nil
}

// DefaultMongoConfig возвращает конфигурацию MongoDB по умолчанию
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:    "potter",
		Timeout:     10,
		MaxPoolSize: 100,
		MinPoolSize: 10,
	}
}

// MongoStore хранилище документов в MongoDB.
//
// Каждая коллекция persistence соответствует коллекции MongoDB, ключ документа
// хранится в _id. Commit выполняется в транзакции сессии, поэтому требуется
// replica set или sharded cluster.
//
// Время в документах хранится строкой RFC3339, как его кодирует encoding/json,
// и сравнивается лексикографически: для корректного порядка значения должны
// иметь одинаковую точность и часовой пояс (UTC).
type MongoStore struct {
	config MongoConfig
	client *mongo.Client
	db     *mongo.Database
}

var _ persistence.Store = (*MongoStore)(nil)

// NewMongoStore создает новое MongoDB хранилище
func NewMongoStore(ctx context.Context, config MongoConfig) (*MongoStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(uint64(config.MaxPoolSize)).
		SetMinPoolSize(uint64(config.MinPoolSize))
	if config.Timeout > 0 {
		opts.SetTimeout(time.Duration(config.Timeout) * time.Second)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Проверяем подключение
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		config: config,
		client: client,
		db:     client.Database(config.Database),
	}, nil
}

// Start запускает адаптер (реализация core.Lifecycle)
func (m *MongoStore) Start(ctx context.Context) error {
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (m *MongoStore) Stop(ctx context.Context) error {
	if m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (m *MongoStore) IsRunning() bool {
	return m.client != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (m *MongoStore) Name() string {
	return "mongodb-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (m *MongoStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// HealthCheck проверяет соединение (реализация core.HealthCheckable)
func (m *MongoStore) HealthCheck(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Database возвращает базу данных хранилища (используется миграциями)
func (m *MongoStore) Database() *mongo.Database {
	return m.db
}

// Load возвращает документ по ID
func (m *MongoStore) Load(ctx context.Context, collection, id string) ([]byte, bool, error) {
	var doc bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, persistence.NewPersistenceError(err, fmt.Sprintf("failed to load %s/%s", collection, id))
	}

	data, err := fromMongoDocument(doc)
	if err != nil {
		return nil, false, persistence.NewPersistenceError(err, fmt.Sprintf("failed to decode %s/%s", collection, id))
	}
	return data, true, nil
}

// Query возвращает документы, удовлетворяющие предикату, отсортированные по ID
func (m *MongoStore) Query(ctx context.Context, collection string, predicate *persistence.Predicate) ([][]byte, error) {
	filter, err := BuildMongoFilter(predicate)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, persistence.NewPersistenceError(err, fmt.Sprintf("failed to query %s", collection))
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistence.NewPersistenceError(err, fmt.Sprintf("failed to decode %s", collection))
	}

	results := make([][]byte, 0, len(docs))
	for _, doc := range docs {
		data, err := fromMongoDocument(doc)
		if err != nil {
			return nil, persistence.NewPersistenceError(err, fmt.Sprintf("failed to decode %s", collection))
		}
		results = append(results, data)
	}
	return results, nil
}

// Commit применяет изменения в транзакции сессии
func (m *MongoStore) Commit(ctx context.Context, changes []persistence.Change) error {
	if len(changes) == 0 {
		return nil
	}

	session, err := m.client.StartSession()
	if err != nil {
		return persistence.NewPersistenceError(err, "failed to start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, change := range changes {
			if err := m.apply(sc, change); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if core.CodeOf(err) != "" {
			return err
		}
		return m.classify(err, "failed to commit transaction")
	}
	return nil
}

func (m *MongoStore) apply(ctx mongo.SessionContext, change persistence.Change) error {
	doc, err := toMongoDocument(change.ID, change.Data)
	if err != nil {
		return persistence.WrapValidationError(err, fmt.Sprintf("invalid document %s/%s", change.Collection, change.ID))
	}
	coll := m.db.Collection(change.Collection)

	switch change.Kind {
	case persistence.ChangeInsert:
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return m.classify(err, fmt.Sprintf("failed to insert %s/%s", change.Collection, change.ID))
		}
		return nil
	case persistence.ChangeUpdate:
		result, err := coll.ReplaceOne(ctx, bson.M{"_id": change.ID}, doc)
		if err != nil {
			return m.classify(err, fmt.Sprintf("failed to update %s/%s", change.Collection, change.ID))
		}
		if result.MatchedCount == 0 {
			return persistence.NewNotFoundError(change.Collection, change.ID)
		}
		return nil
	default:
		return persistence.NewValidationError("unknown change kind %q", change.Kind)
	}
}

func (m *MongoStore) classify(err error, message string) error {
	if mongo.IsDuplicateKeyError(err) {
		return persistence.WrapValidationError(err, message)
	}
	return persistence.NewPersistenceError(err, message)
}

// toMongoDocument переводит JSON документ в BSON с ключом _id
func toMongoDocument(id string, data []byte) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = id
	return doc, nil
}

// fromMongoDocument переводит BSON документ обратно в JSON
func fromMongoDocument(doc bson.M) ([]byte, error) {
	delete(doc, "_id")
	return bson.MarshalExtJSON(doc, false, false)
}
