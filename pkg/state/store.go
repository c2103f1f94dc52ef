// Package state persists per-stream cursor state in Redis between
// sync invocations.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
)

// KeyPrefix namespaces cursor state keys in Redis.
const KeyPrefix = "stripe:sync:state:"

// ErrInvalidState indicates a stored state entry could not be decoded.
var ErrInvalidState = errors.New("invalid state entry")

// Store reads and writes cursor state with a Redis backend. The stored
// shape is {cursor_field_name: integer_epoch_seconds}, one key per
// stream.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a new state store with Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		logger: log.With().Str("component", "state").Logger(),
	}
}

// Load retrieves the persisted cursor state for a stream. A missing
// key is a first sync and yields an empty state, not an error.
func (s *Store) Load(ctx context.Context, streamName string) (stream.State, error) {
	data, err := s.redis.Get(ctx, KeyPrefix+streamName).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.logger.Debug().Str("stream", streamName).Msg("No persisted state, starting fresh")
			return stream.State{}, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var st stream.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return st, nil
}

// Save persists the cursor state for a stream. Callers must only
// invoke this after a full read completed; the engine never
// checkpoints mid-read.
func (s *Store) Save(ctx context.Context, streamName string, st stream.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := s.redis.Set(ctx, KeyPrefix+streamName, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	s.logger.Debug().
		Str("stream", streamName).
		RawJSON("state", data).
		Msg("State persisted")
	return nil
}
