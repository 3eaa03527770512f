package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"launchpad/internal/logger"
)

// releaseScript deletes the lock only if it still carries our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// FlushLock is a per-project in-flight guard shared by every replica.
// The ttl bounds how long a crashed holder can block others.
type FlushLock struct {
	client Client
	ttl    time.Duration
}

func NewFlushLock(client Client, ttl time.Duration) *FlushLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FlushLock{client: client, ttl: ttl}
}

func (l *FlushLock) key(projectID string) string {
	return fmt.Sprintf("apply:flush:%s", projectID)
}

func (l *FlushLock) TryAcquire(ctx context.Context, projectID string) (func(), bool, error) {
	token := uuid.NewString()
	key := l.key(projectID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire flush lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
			logger.Warn("failed to release flush lock", "project_id", projectID, "error", err)
		}
	}
	return release, true, nil
}
