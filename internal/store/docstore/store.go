// Package docstore persists generated mock records and operational logs as
// schemaless documents grouped by (namespace, collection).
package docstore

import (
	"context"
	"errors"
	"strings"
)

// Store is the document backend shared by the schema stage, the error sink
// and the usage sink.
type Store interface {
	// Replace drops namespace/collection and inserts records in order.
	Replace(ctx context.Context, namespace, collection string, records []map[string]any) error
	// Append adds one document to namespace/collection.
	Append(ctx context.Context, namespace, collection string, doc map[string]any) error
	Close(ctx context.Context) error
}

var ErrInvalidName = errors.New("docstore: namespace and collection are required")

func checkNames(namespace, collection string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(collection) == "" {
		return ErrInvalidName
	}
	return nil
}
