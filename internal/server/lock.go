package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// MutationLock serializes collection mutators (ticket creation, broadcast)
// across instances with a redis SETNX lock. With no redis client configured it
// degrades to running the function directly, matching single-instance
// deployments.
type MutationLock struct {
	Rdb    *redis.Client
	TTL    time.Duration
	Logger *log.Logger
}

const (
	lockRetries  = 50
	lockWaitStep = 100 * time.Millisecond
)

// WithLock runs fn while holding the named lock. Redis being unreachable is
// logged and tolerated: mutations must not depend on the lock service being
// up.
func (l *MutationLock) WithLock(ctx context.Context, name string, fn func() error) error {
	if l == nil || l.Rdb == nil {
		return fn()
	}
	ttl := l.TTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	key := "loopback:lock:" + name
	for i := 0; i < lockRetries; i++ {
		ok, err := l.Rdb.SetNX(ctx, key, "1", ttl).Result()
		if err != nil {
			if l.Logger != nil {
				l.Logger.Printf("lock %s unavailable, proceeding unlocked: %v", name, err)
			}
			return fn()
		}
		if ok {
			defer l.Rdb.Del(ctx, key)
			return fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockWaitStep):
		}
	}
	return fmt.Errorf("could not acquire lock %s", name)
}
