package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles read-path caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// AvailableTripsCacheTTL is short because the listing changes with every
// booking, expiry or cancellation; invalidation covers same-process writers,
// the TTL covers everyone else.
const AvailableTripsCacheTTL = 10 * time.Second

const availableTripsKey = "cache:trips:available"

// GetAvailableTrips retrieves the cached available-trips listing into dest.
// Returns false on a cache miss.
func (s *CacheStore) GetAvailableTrips(ctx context.Context, dest any) (bool, error) {
	data, err := s.client.Get(ctx, availableTripsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetAvailableTrips stores the available-trips listing.
func (s *CacheStore) SetAvailableTrips(ctx context.Context, listing any) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, availableTripsKey, data, AvailableTripsCacheTTL).Err()
}

// InvalidateAvailableTrips drops the cached listing after a trip mutation.
func (s *CacheStore) InvalidateAvailableTrips(ctx context.Context) error {
	return s.client.Del(ctx, availableTripsKey).Err()
}
