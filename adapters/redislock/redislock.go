// Package redislock provides ports.Locker implementations: a Redis lock
// for multi-instance deployments and a process-local no-op.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artpar/coworkbill/ports"
)

// releaseScript deletes the key only if this locker still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SET NX PX lock. Each Locker has its own owner token, so one
// instance can never release another instance's lock.
type Locker struct {
	rdb    redis.UniversalClient
	prefix string
	token  string
}

// New creates a Redis locker. Keys are prefix + name.
func New(rdb redis.UniversalClient, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix, token: uuid.NewString()}
}

// NewClient builds a Redis client from connection settings.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// TryLock acquires the lock for ttl. It reports false when another owner
// holds it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.prefix+name, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", name, err)
	}
	return ok, nil
}

// Unlock releases the lock if this locker owns it.
func (l *Locker) Unlock(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.prefix + name}, l.token).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", name, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *Locker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Local is an in-process locker for single-instance deployments. It never
// blocks another process.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

// TryLock acquires name unless it is held and not expired.
func (l *Local) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[name]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[name] = now.Add(ttl)
	return true, nil
}

// Unlock releases name.
func (l *Local) Unlock(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}

// Ensure interface compliance.
var (
	_ ports.Locker = (*Locker)(nil)
	_ ports.Locker = (*Local)(nil)
)
