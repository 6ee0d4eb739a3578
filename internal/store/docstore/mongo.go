package docstore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo maps a namespace to a database and a collection to a collection.
type Mongo struct {
	client *mongo.Client
}

// NewMongo connects to uri and pings the server.
func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("docstore: mongo ping: %w", err)
	}
	return &Mongo{client: client}, nil
}

func (m *Mongo) coll(namespace, collection string) *mongo.Collection {
	return m.client.Database(DatabaseName(namespace)).Collection(collection)
}

func (m *Mongo) Replace(ctx context.Context, namespace, collection string, records []map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	c := m.coll(namespace, collection)
	if err := c.Drop(ctx); err != nil {
		return fmt.Errorf("docstore: drop %s.%s: %w", namespace, collection, err)
	}
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, r)
	}
	if _, err := c.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("docstore: insert %s.%s: %w", namespace, collection, err)
	}
	return nil
}

func (m *Mongo) Append(ctx context.Context, namespace, collection string, doc map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	if _, err := m.coll(namespace, collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("docstore: insert %s.%s: %w", namespace, collection, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

// DatabaseName makes namespace a legal MongoDB database name.
func DatabaseName(namespace string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ' ', '"', '$', '*', '<', '>', ':', '|', '?':
			return '_'
		}
		return r
	}, strings.TrimSpace(namespace))
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
