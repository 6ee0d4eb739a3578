package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents as JSONB rows keyed by namespace and collection.
type Postgres struct {
	pool       *pgxpool.Pool
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: postgres connect: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		_, p.schemaErr = p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    namespace TEXT NOT NULL,
    collection TEXT NOT NULL,
    doc JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_ns_coll ON documents(namespace, collection);
`)
	})
	return p.schemaErr
}

func (p *Postgres) Replace(ctx context.Context, namespace, collection string, records []map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("docstore: ensure schema: %w", err)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE namespace=$1 AND collection=$2`, namespace, collection); err != nil {
		return fmt.Errorf("docstore: clear %s.%s: %w", namespace, collection, err)
	}
	if len(records) > 0 {
		batch := &pgx.Batch{}
		for _, r := range records {
			b, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("docstore: encode record: %w", err)
			}
			batch.Queue(`INSERT INTO documents (namespace, collection, doc) VALUES ($1, $2, $3)`, namespace, collection, b)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("docstore: insert %s.%s: %w", namespace, collection, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Append(ctx context.Context, namespace, collection string, doc map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("docstore: ensure schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode document: %w", err)
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO documents (namespace, collection, doc) VALUES ($1, $2, $3)`, namespace, collection, b)
	return err
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}
