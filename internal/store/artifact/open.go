package artifact

import (
	"context"

	"github.com/rs/zerolog"

	"f2b/internal/config"
)

// Open returns the configured mirror: S3 when credentials are set, else
// Postgres when ARTIFACT_PG_DSN is set, else nil.
func Open(ctx context.Context, cfg config.ArtifactConfig, log zerolog.Logger) (Store, error) {
	cache := CacheConfig{Entries: cfg.CacheEntries}
	switch {
	case cfg.Enabled():
		s3, err := NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("artifact: s3 mirror enabled")
		return NewCachedStore(s3, cache), nil
	case cfg.PostgresDSN != "":
		pg, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("artifact: postgres mirror enabled")
		return NewCachedStore(pg, cache), nil
	}
	log.Debug().Msg("artifact: mirror disabled")
	return nil, nil
}
