package redis

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"canonsync/internal/domain"
)

// releaseScript deletes the lock only if this holder still owns it, so a
// sync that outlives its TTL cannot release a successor's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// SyncLock is the sync-in-progress guard: a per-key lock with a TTL so a
// crashed sync cannot wedge an environment forever.
type SyncLock struct {
	client *redis.Client
}

func NewSyncLock(client *redis.Client) *SyncLock {
	return &SyncLock{client: client}
}

// Acquire takes the guard for key via SET NX. Returns
// domain.ErrSyncInProgress when another run already holds it.
func (l *SyncLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lockKey := "canonsync:lock:" + key

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSyncInProgress
	}

	release := func() {
		// Release uses a fresh context: the sync's own context may
		// already be cancelled by the time cleanup runs.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{lockKey}, token).Err(); err != nil {
			log.Printf("SyncLock: failed to release %s: %v", lockKey, err)
		}
	}
	return release, nil
}
