package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowrun/flowrun/pkg/flowrun"
	"github.com/flowrun/flowrun/pkg/flowrun/component"
)

const redisKeyPrefix = "flowrun:session:"

// redisRecord is the serialized form of an Entry. Live graphs cannot cross
// the wire, so the payload is stored instead and the graph is rebuilt
// through the component registry on read.
type redisRecord struct {
	Payload   *flowrun.FlowPayload `json:"payload"`
	FlowID    string               `json:"flow_id"`
	UserID    string               `json:"user_id"`
	Artifacts map[string]any       `json:"artifacts,omitempty"`
}

// RedisStore is a Store backed by Redis, for sharing session caches across
// processes. Reads reconstruct the graph from the stored payload, so the
// rebuilt graph starts with fresh vertex state.
type RedisStore struct {
	client redis.UniversalClient
	reg    *component.Registry
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiry applied to stored entries. Zero (the default)
// stores entries without expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewRedisStore creates a Redis-backed session store. The registry is used
// to re-instantiate components when a cached payload is read back.
func NewRedisStore(client redis.UniversalClient, reg *component.Registry, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if reg == nil {
		return nil, errors.New("nil component registry")
	}
	s := &RedisStore{client: client, reg: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}

	g, err := flowrun.FromPayload(rec.Payload, rec.FlowID, rec.UserID, s.reg)
	if err != nil {
		return nil, fmt.Errorf("rebuild cached graph: %w", err)
	}

	return &Entry{
		Graph:     g,
		Payload:   rec.Payload,
		FlowID:    rec.FlowID,
		UserID:    rec.UserID,
		Artifacts: rec.Artifacts,
	}, nil
}

// Set implements Store. The entry must carry its payload; a live graph
// without one cannot be serialized.
func (s *RedisStore) Set(ctx context.Context, key string, e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	if e.Payload == nil {
		return errors.New("session entry has no payload to serialize")
	}

	raw, err := json.Marshal(redisRecord{
		Payload:   e.Payload,
		FlowID:    e.FlowID,
		UserID:    e.UserID,
		Artifacts: e.Artifacts,
	})
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Clear implements Store. Entries are discovered by prefix scan so only
// this store's keys are touched.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear sessions: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan sessions: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
