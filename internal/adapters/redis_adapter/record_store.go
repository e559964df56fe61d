// internal/adapters/redis_adapter/record_store.go
package redis_a

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// ListKey is where the full item listing is cached.
var ListKey = BuildKey(PrefixInventory, "items", "all")

// GenerationKey counts committed writes. A cached listing is only served
// while it was read under the current generation.
var GenerationKey = BuildKey(PrefixInventory, "items", "generation")

type cachedListing struct {
	Generation int64                   `json:"generation"`
	Items      []*domain.InventoryItem `json:"items"`
}

// CachedRecordStore caches ListAll in front of another RecordStore.
// Get is never cached so version checks always see the stored record.
// Cache failures degrade to the underlying store.
type CachedRecordStore struct {
	next   ports.RecordStore
	cache  ports.CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// Statically assert that *CachedRecordStore implements the RecordStore interface.
var _ ports.RecordStore = (*CachedRecordStore)(nil)

// NewCachedRecordStore wraps next with a listing cache.
func NewCachedRecordStore(next ports.RecordStore, cache ports.CacheRepository, ttl time.Duration, logger *slog.Logger) *CachedRecordStore {
	return &CachedRecordStore{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cached_record_store")),
	}
}

func (s *CachedRecordStore) Get(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return s.next.Get(ctx, id)
}

func (s *CachedRecordStore) SetMerge(ctx context.Context, id string, patch domain.ItemPatch, expectedVersion int64) (*domain.InventoryItem, error) {
	item, err := s.next.SetMerge(ctx, id, patch, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return item, nil
}

func (s *CachedRecordStore) Delete(ctx context.Context, id string, expectedVersion int64) error {
	if err := s.next.Delete(ctx, id, expectedVersion); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedRecordStore) ListAll(ctx context.Context) ([]*domain.InventoryItem, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "listing cache unavailable",
			slog.String("error", err.Error()))
		return s.next.ListAll(ctx)
	}

	var cached cachedListing
	err = s.cache.Get(ctx, ListKey, &cached)
	switch {
	case err == nil && cached.Generation == gen:
		return cached.Items, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		s.logger.WarnContext(ctx, "listing cache unavailable",
			slog.String("error", err.Error()))
	}

	items, err := s.next.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	// A write committed after gen was read bumps the generation, so this
	// entry is never served in place of the newer state.
	entry := cachedListing{Generation: gen, Items: items}
	if err := s.cache.SetWithTTL(ctx, ListKey, entry, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to cache listing",
			slog.String("error", err.Error()))
	}
	return items, nil
}

func (s *CachedRecordStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *CachedRecordStore) generation(ctx context.Context) (int64, error) {
	var gen int64
	err := s.cache.Get(ctx, GenerationKey, &gen)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	return gen, err
}

// invalidate runs after a committed write, so it must not be cut short by
// the caller's cancellation.
func (s *CachedRecordStore) invalidate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.cache.Incr(ctx, GenerationKey); err != nil {
		s.logger.WarnContext(ctx, "failed to advance listing generation",
			slog.String("error", err.Error()))
	}
	if err := s.cache.Delete(ctx, ListKey); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate listing cache",
			slog.String("error", err.Error()))
	}
}
