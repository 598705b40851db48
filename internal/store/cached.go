package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CachedStore is a two-layer read-through store: an upstream providing
// authoritative data and a cache persisting it. The cache favors archival
// over freshness: when the upstream fails, a stale cached copy is returned
// instead of an error, and an upstream failure never evicts cached data.
type CachedStore struct {
	upstream ObjectStore
	cache    ObjectStore
	ttu      time.Duration

	// mu serializes the read-check-update sequence per instance, so N
	// concurrent misses on one name produce one upstream call.
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewCachedStore wraps upstream with a cache. ttu (time-to-update) is the
// maximum cache age that bypasses the upstream.
func NewCachedStore(upstream, cache ObjectStore, ttu time.Duration, logger zerolog.Logger) *CachedStore {
	return &CachedStore{
		upstream: upstream,
		cache:    cache,
		ttu:      ttu,
		logger:   logger.With().Str("component", "cached-store").Logger(),
	}
}

// clampTTL bounds an object's TTL by the ttu: non-positive TTLs become
// the ttu, positive ones are capped at it.
func (s *CachedStore) clampTTL(stat *Stat) {
	if stat.TTL <= 0 || stat.TTL > s.ttu {
		stat.TTL = s.ttu
	}
}

func (s *CachedStore) cacheStat(ctx context.Context, name string, maxAge time.Duration) (Stat, bool) {
	stat, err := s.cache.Stat(ctx, name)
	if err != nil {
		return Stat{}, false
	}
	if stat.IsExpired(maxAge, time.Now()) {
		return Stat{}, false
	}
	s.clampTTL(&stat)
	return stat, true
}

func (s *CachedStore) cacheGet(ctx context.Context, name string, maxAge time.Duration) (Object, bool) {
	stat, err := s.cache.Stat(ctx, name)
	if err != nil {
		s.logger.Debug().Str("name", name).Msg("not in cache")
		return Object{}, false
	}
	if stat.IsExpired(maxAge, time.Now()) {
		s.logger.Debug().Str("name", name).Msg("in cache but outdated")
		return Object{}, false
	}
	obj, err := s.cache.Get(ctx, name)
	if err != nil {
		return Object{}, false
	}
	s.clampTTL(&obj.Stat)
	return obj, true
}

// Stat implements ObjectStore with the same policy as Get: fresh cache,
// then upstream, then stale cache.
func (s *CachedStore) Stat(ctx context.Context, name string) (Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stat, ok := s.cacheStat(ctx, name, s.ttu); ok {
		return stat, nil
	}

	if stat, err := s.upstream.Stat(ctx, name); err == nil {
		s.clampTTL(&stat)
		return stat, nil
	} else if ctx.Err() != nil {
		return Stat{}, err
	}

	if stat, ok := s.cacheStat(ctx, name, NeverExpires); ok {
		return stat, nil
	}

	return Stat{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
}

// Get implements ObjectStore:
//  1. a cache hit younger than the ttu is returned directly;
//  2. otherwise the upstream is asked and a success refreshes the cache;
//  3. otherwise any cached copy is returned regardless of age;
//  4. otherwise ErrObjectNotFound.
func (s *CachedStore) Get(ctx context.Context, name string) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.cacheGet(ctx, name, s.ttu); ok {
		return obj, nil
	}

	obj, err := s.upstream.Get(ctx, name)
	if err == nil {
		s.clampTTL(&obj.Stat)
		if putErr := s.cache.Put(ctx, name, obj); putErr != nil {
			s.logger.Warn().Err(putErr).Str("name", name).Msg("failed to refresh cache")
		}
		return obj, nil
	}
	if ctx.Err() != nil {
		return Object{}, err
	}
	s.logger.Debug().Err(err).Str("name", name).Msg("upstream miss, trying archived copy")

	if obj, ok := s.cacheGet(ctx, name, NeverExpires); ok {
		return obj, nil
	}

	return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
}

// Put implements ObjectStore. The upstream is written first; the cache is
// only updated when the upstream accepted the write, keeping both layers
// coherent. A read-only upstream rejects the whole operation.
func (s *CachedStore) Put(ctx context.Context, name string, obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.upstream.Put(ctx, name, obj); err != nil {
		if errors.Is(err, ErrWriteNotSupported) {
			return err
		}
		return fmt.Errorf("upstream put %q: %w", name, err)
	}
	return s.cache.Put(ctx, name, obj)
}
