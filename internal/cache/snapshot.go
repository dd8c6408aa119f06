package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix  = "refdata:snapshot:"
	scanBatchSize      = 100
	defaultSnapshotTTL = 48 * time.Hour
)

// SnapshotStore persists reference table snapshots so a restarted process can
// serve them until the next refresh.
type SnapshotStore interface {
	// Load returns the stored payload and when it was produced. ok is false when nothing is stored.
	Load(ctx context.Context, name string) (payload []byte, updatedAt time.Time, ok bool, err error)
	Save(ctx context.Context, name string, payload []byte, updatedAt time.Time) error
	// Clear removes every stored snapshot and returns how many were deleted.
	Clear(ctx context.Context) (int, error)
}

type snapshotEnvelope struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

type redisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSnapshotStore struct{}

// NewSnapshotStore returns a redis-backed store, or a no-op one when client is nil.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) SnapshotStore {
	if client == nil {
		return &noopSnapshotStore{}
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &redisSnapshotStore{client: client, ttl: ttl}
}

func NewNoopSnapshotStore() SnapshotStore {
	return &noopSnapshotStore{}
}

func (s *redisSnapshotStore) Load(ctx context.Context, name string) ([]byte, time.Time, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKeyPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return env.Payload, env.UpdatedAt, true, nil
}

func (s *redisSnapshotStore) Save(ctx context.Context, name string, payload []byte, updatedAt time.Time) error {
	raw, err := json.Marshal(snapshotEnvelope{UpdatedAt: updatedAt, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+name, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *redisSnapshotStore) Clear(ctx context.Context) (int, error) {
	return deleteKeysWithPrefix(ctx, s.client, snapshotKeyPrefix, scanBatchSize)
}

func (s *noopSnapshotStore) Load(context.Context, string) ([]byte, time.Time, bool, error) {
	return nil, time.Time{}, false, nil
}

func (s *noopSnapshotStore) Save(context.Context, string, []byte, time.Time) error {
	return nil
}

func (s *noopSnapshotStore) Clear(context.Context) (int, error) {
	return 0, nil
}
