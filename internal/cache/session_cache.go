package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"launchpad/internal/model"
)

// SessionCache stores resumable session snapshots
type SessionCache interface {
	Set(ctx context.Context, snap *model.SessionSnapshot) error
	Get(ctx context.Context, founderID, projectID string) (*model.SessionSnapshot, error)
	Delete(ctx context.Context, founderID, projectID string) error
}

type sessionCache struct {
	client Client
	ttl    time.Duration
}

func NewSessionCache(client Client, ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &sessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *sessionCache) key(founderID, projectID string) string {
	return fmt.Sprintf("apply:session:%s:%s", founderID, projectID)
}

func (c *sessionCache) Set(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key(snap.FounderID, snap.ProjectID), data, c.ttl).Err()
}

// Get returns nil, nil when no snapshot exists
func (c *sessionCache) Get(ctx context.Context, founderID, projectID string) (*model.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(founderID, projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.SessionSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}

func (c *sessionCache) Delete(ctx context.Context, founderID, projectID string) error {
	return c.client.Del(ctx, c.key(founderID, projectID)).Err()
}
