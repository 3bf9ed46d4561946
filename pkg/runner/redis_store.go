package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRunKeyPrefix = "careplan:run:"

// RedisStore persists run snapshots as JSON values in Redis, so an
// interrupted session can be resumed from another node.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures the store.
type RedisOption func(*RedisStore)

// WithTTL sets an expiration on run snapshots; zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: defaultRunKeyPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) key(planID string) string {
	return s.prefix + planID
}

func (s *RedisStore) Save(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	err = s.client.Set(ctx, s.key(run.PlanID), data, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.PlanID, err)
	}

	return nil
}

func (s *RedisStore) Load(ctx context.Context, planID string) (*Run, error) {
	data, err := s.client.Get(ctx, s.key(planID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to load run %s: %w", planID, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", planID, err)
	}

	if run.ChosenOptions == nil {
		run.ChosenOptions = make(map[string]string)
	}

	return &run, nil
}

// List walks the key space under the store's prefix. Snapshots that expire
// between scan and fetch are skipped.
func (s *RedisStore) List(ctx context.Context) ([]*Run, error) {
	runs := make([]*Run, 0)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		planID := iter.Val()[len(s.prefix):]

		run, err := s.Load(ctx, planID)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue
			}

			return nil, err
		}

		runs = append(runs, run)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	return runs, nil
}

func (s *RedisStore) Delete(ctx context.Context, planID string) error {
	err := s.client.Del(ctx, s.key(planID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", planID, err)
	}

	return nil
}
