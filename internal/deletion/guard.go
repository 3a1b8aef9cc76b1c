package deletion

import (
	"context"
	"sync"
	"time"
)

// Guard serializes deletions per user: at most one run in flight for a given
// user id. Runs for different users proceed independently.
type Guard interface {
	// Acquire takes the user's slot, false when a run is already in flight
	Acquire(ctx context.Context, userID string) (bool, error)
	// Release frees the slot
	Release(ctx context.Context, userID string) error
}

// UserLocker is the lock surface the redis client provides.
type UserLocker interface {
	AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseUserLock(ctx context.Context, userID string) error
}

// RedisGuard serializes across processes. The TTL bounds how long a lock can
// leak when a worker dies mid-run.
type RedisGuard struct {
	locks UserLocker
	ttl   time.Duration
}

func NewRedisGuard(locks UserLocker, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{locks: locks, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, userID string) (bool, error) {
	return g.locks.AcquireUserLock(ctx, userID, g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, userID string) error {
	return g.locks.ReleaseUserLock(ctx, userID)
}

// LocalGuard serializes within one process, for memory mode and tests.
type LocalGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{inFlight: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(ctx context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[userID]; busy {
		return false, nil
	}
	g.inFlight[userID] = struct{}{}
	return true, nil
}

func (g *LocalGuard) Release(ctx context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, userID)
	return nil
}
