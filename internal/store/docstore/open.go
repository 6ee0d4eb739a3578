package docstore

import (
	"context"

	"github.com/rs/zerolog"

	"f2b/internal/config"
)

// Open picks a backend from configuration: MongoDB when MONGODB_URL is set,
// else Postgres when DATABASE_URL is set, else memory.
func Open(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (Store, error) {
	switch {
	case cfg.MongoURL != "":
		log.Info().Msg("docstore: using mongodb")
		return NewMongo(ctx, cfg.MongoURL)
	case cfg.PostgresDSN != "":
		log.Info().Msg("docstore: using postgres")
		return NewPostgres(ctx, cfg.PostgresDSN)
	default:
		log.Warn().Msg("docstore: no database configured, documents are kept in memory")
		return NewMemory(), nil
	}
}
