package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/cartwise/backend/internal/domain"
)

const defaultKeyPrefix = "cartwise:intent:"

// RedisStateStore keeps intent state in Redis so it survives restarts and
// is shared between replicas
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore connects to the Redis instance at url and checks it
// with a ping
func NewRedisStateStore(ctx context.Context, url string, ttl time.Duration) (*RedisStateStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStateStoreWithClient(client, ttl), nil
}

// NewRedisStateStoreWithClient wraps an existing client
func NewRedisStateStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStateStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

func (s *RedisStateStore) key(userID string) string {
	return s.prefix + userID
}

// Get loads the user's state or returns ErrStateNotFound
func (s *RedisStateStore) Get(ctx context.Context, userID string) (*domain.UserIntentState, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading intent state: %w", err)
	}

	var state domain.UserIntentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding intent state: %w", err)
	}
	return &state, nil
}

// Save writes the state with the configured TTL (0 keeps it forever)
func (s *RedisStateStore) Save(ctx context.Context, state *domain.UserIntentState) error {
	if state == nil || state.UserID == "" {
		return domain.ErrInvalidRequest
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding intent state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing intent state: %w", err)
	}
	return nil
}

// Delete removes a user's state. Missing keys are not an error.
func (s *RedisStateStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Ping checks the connection. It backs the state check in /health.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
