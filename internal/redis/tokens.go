package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const pushTokenPrefix = "push_token:"

// PushTokenStore keeps each user's device push token in Redis. Tokens rotate
// often on mobile clients, so they live here instead of the users table.
type PushTokenStore struct {
	client *redis.Client
}

// NewPushTokenStore creates a new PushTokenStore.
func NewPushTokenStore(client *redis.Client) *PushTokenStore {
	return &PushTokenStore{client: client}
}

// Set stores the device token for a user.
func (s *PushTokenStore) Set(ctx context.Context, userID, token string) error {
	return s.client.Set(ctx, pushTokenPrefix+userID, token, 0).Err()
}

// Get returns the device token for a user, or "" if none is registered.
func (s *PushTokenStore) Get(ctx context.Context, userID string) (string, error) {
	token, err := s.client.Get(ctx, pushTokenPrefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Delete removes a user's device token.
func (s *PushTokenStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, pushTokenPrefix+userID).Err()
}
