package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockRetryInterval = 15 * time.Millisecond
	lockReleaseBudget = 2 * time.Second
)

// releaseLease deletes the lease only if it still carries our token.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// acquire takes the per-queue admission lease, serializing Register across
// processes. Giving up after LockWait surfaces as a transient QueueError.
func (s *Store) acquire(ctx context.Context, name string) (func(), error) {
	key := keysFor(name).lock
	token := uuid.NewString()
	deadline := time.Now().Add(s.cfg.LockWait)

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.cfg.LockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire admission lease: %w", err)
		}
		if ok {
			return func() { s.release(ctx, key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, &QueueError{Queue: name, Reason: "admission lease busy"}
		}
		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire admission lease: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Store) release(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseBudget)
	defer cancel()
	if err := releaseLease.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil {
		s.logger.Warn("admission lease release failed", zap.String("key", key), zap.Error(err))
	}
}
