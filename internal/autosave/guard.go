package autosave

import (
	"context"
	"sync"
)

// Guard ensures at most one flush per project is in flight. acquired is
// false when someone else holds the key.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// LocalGuard is an in-process Guard. Share one instance between all engines
// of a process.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}
	return release, true, nil
}

// Held reports whether key is currently acquired
func (g *LocalGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
