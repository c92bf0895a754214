package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adpulse/perftracker/internal/deepdive"
)

// ErrSnapshotNotFound is returned for unknown or expired snapshot ids.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a stored deep-dive result, shareable by id.
type Snapshot struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Request   deepdive.CompareRequest `json:"request"`
	Result    *deepdive.CompareResult `json:"result"`
}

// SnapshotStore persists snapshots in Redis when available, falling back
// to an in-process map otherwise. The fallback keeps single-node
// deployments working; it does not survive restarts.
type SnapshotStore struct {
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	local map[string]localSnapshot
}

type localSnapshot struct {
	snap      *Snapshot
	expiresAt time.Time
}

// NewSnapshotStore creates a snapshot store. redisClient may be nil.
func NewSnapshotStore(redisClient *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		redis: redisClient,
		ttl:   ttl,
		local: make(map[string]localSnapshot),
	}
}

// Save stores a comparison result under a fresh id.
func (s *SnapshotStore) Save(ctx context.Context, req deepdive.CompareRequest, res *deepdive.CompareResult) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Request:   req,
		Result:    res,
	}

	if s.redis != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := s.redis.Set(ctx, snapshotKey(snap.ID), payload, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to store snapshot: %w", err)
		}
		return snap, nil
	}

	s.mu.Lock()
	s.pruneExpiredLocked()
	s.local[snap.ID] = localSnapshot{snap: snap, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return snap, nil
}

// Get retrieves a snapshot by id.
func (s *SnapshotStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	if s.redis != nil {
		payload, err := s.redis.Get(ctx, snapshotKey(id)).Result()
		if err == redis.Nil {
			return nil, ErrSnapshotNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		return &snap, nil
	}

	s.mu.RLock()
	entry, ok := s.local[id]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSnapshotNotFound
	}
	return entry.snap, nil
}

func (s *SnapshotStore) pruneExpiredLocked() {
	now := time.Now()
	for id, entry := range s.local {
		if now.After(entry.expiresAt) {
			delete(s.local, id)
		}
	}
}

func snapshotKey(id string) string {
	return "tracker:snapshot:" + id
}
