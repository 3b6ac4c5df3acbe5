package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserLocker serializes ledger writes for one user
type UserLocker interface {
	// Lock blocks until the user's lock is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUserLocker holds per-user locks in Redis so every API instance agrees
type RedisUserLocker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisUserLocker creates a Redis backed locker. ttl bounds how long a crashed holder blocks others.
func NewRedisUserLocker(client *redis.Client, ttl time.Duration) *RedisUserLocker {
	return &RedisUserLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: 25 * time.Millisecond,
	}
}

func (l *RedisUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := fmt.Sprintf("ledger_lock:%s", userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire user lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire user lock: %w", ctx.Err())
		case <-time.After(l.pollInterval):
		}
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}

// LocalUserLocker keeps per-user locks in process memory, for single instance deployments
type LocalUserLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch      chan struct{}
	waiters int
}

func NewLocalUserLocker() *LocalUserLocker {
	return &LocalUserLocker{locks: make(map[string]*localLock)}
}

func (l *LocalUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, lock, false)
		return nil, fmt.Errorf("failed to acquire user lock: %w", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(userID, lock, true) })
	}, nil
}

func (l *LocalUserLocker) release(userID string, lock *localLock, held bool) {
	if held {
		<-lock.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.waiters--
	if lock.waiters == 0 {
		delete(l.locks, userID)
	}
}
