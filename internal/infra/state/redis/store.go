// Package redis implements the repair-state repository on Redis, for
// deployments where the agent container has no durable volume.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rotatarr/rotatarr/internal/core/domain"
)

const stateKey = "rotatarr:indexer_state"

// Store persists the repair-state document as a single Redis value, so
// save keeps the same whole-document-replace semantics as the file store.
type Store struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{rdb: rdb, log: slog.Default()}, nil
}

// Load reads the state document. Like the file store it degrades to empty
// state when the document is missing or unparsable.
func (s *Store) Load(ctx context.Context) (map[string]domain.RepairState, error) {
	states := make(map[string]domain.RepairState)

	data, err := s.rdb.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		return states, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load indexer state: %w", err)
	}

	if err := json.Unmarshal(data, &states); err != nil {
		s.log.Warn("Indexer state in redis is unparsable, starting empty", "error", err)
		return make(map[string]domain.RepairState), nil
	}
	return states, nil
}

// Save replaces the whole document.
func (s *Store) Save(ctx context.Context, states map[string]domain.RepairState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal indexer state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save indexer state: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
