package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection описание коллекции MongoDB и ее индексов
type MongoCollection struct {
	Name string
	// Indexes поля, по которым создаются возрастающие индексы
	Indexes []string
}

// DefaultMongoCollections коллекции примера orders
func DefaultMongoCollections() []MongoCollection {
	return []MongoCollection{
		{Name: "products"},
		{Name: "orders", Indexes: []string{"placed_at"}},
		{Name: "order_lines", Indexes: []string{"order_id"}},
	}
}

// EnsureMongoCollections создает коллекции и индексы.
// Коллекции создаются заранее, потому что транзакции MongoDB до 4.4
// не умеют создавать коллекции неявно.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database, collections []MongoCollection) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	for _, c := range collections {
		if !known[c.Name] {
			if err := db.CreateCollection(ctx, c.Name); err != nil {
				return fmt.Errorf("failed to create collection %s: %w", c.Name, err)
			}
		}

		for _, field := range c.Indexes {
			model := mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetName(fmt.Sprintf("idx_%s_%s", c.Name, field)),
			}
			if _, err := db.Collection(c.Name).Indexes().CreateOne(ctx, model); err != nil {
				return fmt.Errorf("failed to create index on %s.%s: %w", c.Name, field, err)
			}
		}
	}
	return nil
}
