package services

import (
	"context"
	"errors"
	"time"

	"medresponse/internal/models"
	"medresponse/internal/store"
	"medresponse/internal/utils"
	"medresponse/pkg/cache"
	"medresponse/pkg/logger"
)

// CachedAmbulanceReader fronts the store's ambulance point read with a
// short-TTL Redis cache. Every enriched dashboard row triggers a lookup, so
// without this the same vehicle gets read once per visible case per
// snapshot.
type CachedAmbulanceReader struct {
	store store.LiveStore
	cache *cache.RedisCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedAmbulanceReader(liveStore store.LiveStore, redisCache *cache.RedisCache, ttl time.Duration, log *logger.Logger) *CachedAmbulanceReader {
	if ttl <= 0 {
		ttl = utils.AmbulanceCacheTTL
	}
	return &CachedAmbulanceReader{
		store: liveStore,
		cache: redisCache,
		ttl:   ttl,
		log:   log,
	}
}

func (r *CachedAmbulanceReader) GetAmbulance(ctx context.Context, id string) (*models.Ambulance, error) {
	if r.cache != nil {
		var cached models.Ambulance
		err := r.cache.Get(ctx, cache.AmbulanceKey(id), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.WithError(err).WithAmbulanceID(id).Debug("Ambulance cache read failed")
		}
	}

	ambulance, err := r.store.GetAmbulance(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cache.AmbulanceKey(id), ambulance, r.ttl); err != nil {
			r.log.WithError(err).WithAmbulanceID(id).Debug("Ambulance cache write failed")
		}
	}
	return ambulance, nil
}
