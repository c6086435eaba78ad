package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fatflowers/plankeeper/pkg/tool"
)

// Locker hands out short-lived exclusive leases. It only avoids duplicate work
// between instances; callers must not rely on it for data correctness.
type Locker interface {
	// TryAcquire returns acquired=false when someone else holds key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never frees a lock taken over by another instance.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	cli    *redis.Client
	prefix string
}

func NewRedisLocker(cli *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{cli: cli, prefix: prefix}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.prefix + key
	token := tool.GenerateUUIDV7()
	ok, err := l.cli.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.cli, []string{fullKey}, token).Err()
		})
	}
	return release, true, nil
}

// MemoryLocker is the single-instance fallback used when redis is not configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time)}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key].Equal(until) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
