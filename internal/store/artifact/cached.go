package artifact

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	Entries int
	BlobTTL time.Duration
	ListTTL time.Duration
	URLTTL  time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Entries: 64,
		BlobTTL: 5 * time.Minute,
		ListTTL: 30 * time.Second,
		URLTTL:  5 * time.Minute,
	}
}

type MetricsSnapshot struct {
	BlobHits     uint64
	BlobMisses   uint64
	OriginReads  uint64
	OriginWrites uint64
	OriginErrors uint64
}

// CachedStore fronts an origin Store with expiring LRU caches for blobs,
// listings and presigned URLs.
type CachedStore struct {
	origin Store

	blobs *expirable.LRU[string, []byte]
	lists *expirable.LRU[string, []string]
	urls  *expirable.LRU[string, string]

	blobHits     atomic.Uint64
	blobMisses   atomic.Uint64
	originReads  atomic.Uint64
	originWrites atomic.Uint64
	originErrors atomic.Uint64
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.Entries <= 0 {
		cfg.Entries = def.Entries
	}
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	return &CachedStore{
		origin: origin,
		blobs:  expirable.NewLRU[string, []byte](cfg.Entries, nil, cfg.BlobTTL),
		lists:  expirable.NewLRU[string, []string](cfg.Entries, nil, cfg.ListTTL),
		urls:   expirable.NewLRU[string, string](cfg.Entries, nil, cfg.URLTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, projectID, path string, content []byte) error {
	s.originWrites.Add(1)
	if err := s.origin.Put(ctx, projectID, path, content); err != nil {
		s.originErrors.Add(1)
		return err
	}
	key := objectKey(projectID, path)
	s.blobs.Add(key, append([]byte(nil), content...))
	s.lists.Remove(strings.TrimSpace(projectID))
	s.urls.Remove(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, projectID, path string) ([]byte, error) {
	key := objectKey(projectID, path)
	if raw, ok := s.blobs.Get(key); ok {
		s.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.blobMisses.Add(1)
	s.originReads.Add(1)
	raw, err := s.origin.Get(ctx, projectID, path)
	if err != nil {
		s.originErrors.Add(1)
		return nil, err
	}
	s.blobs.Add(key, append([]byte(nil), raw...))
	return raw, nil
}

func (s *CachedStore) GetURL(ctx context.Context, projectID, path string) (string, error) {
	key := objectKey(projectID, path)
	if u, ok := s.urls.Get(key); ok {
		return u, nil
	}
	s.originReads.Add(1)
	u, err := s.origin.GetURL(ctx, projectID, path)
	if err != nil {
		s.originErrors.Add(1)
		return "", err
	}
	if u != "" {
		s.urls.Add(key, u)
	}
	return u, nil
}

func (s *CachedStore) List(ctx context.Context, projectID string) ([]string, error) {
	projectID = strings.TrimSpace(projectID)
	if list, ok := s.lists.Get(projectID); ok {
		return append([]string(nil), list...), nil
	}
	s.originReads.Add(1)
	list, err := s.origin.List(ctx, projectID)
	if err != nil {
		s.originErrors.Add(1)
		return nil, err
	}
	s.lists.Add(projectID, append([]string(nil), list...))
	return list, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		BlobHits:     s.blobHits.Load(),
		BlobMisses:   s.blobMisses.Load(),
		OriginReads:  s.originReads.Load(),
		OriginWrites: s.originWrites.Load(),
		OriginErrors: s.originErrors.Load(),
	}
}

// Close closes the origin when it holds resources.
func (s *CachedStore) Close() error {
	s.blobs.Purge()
	s.lists.Purge()
	s.urls.Purge()
	if c, ok := s.origin.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
