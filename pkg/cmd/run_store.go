package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/opencare/careplan/pkg/runner"
)

// NewRunStore creates a run store. An empty Redis URL selects the in-memory
// store, which is enough for a single node but loses runs on restart.
func NewRunStore(redisURL string) (runner.Store, error) {
	if redisURL == "" {
		return runner.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	return runner.NewRedisStore(redis.NewClient(opts)), nil
}
