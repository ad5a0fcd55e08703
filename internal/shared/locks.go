package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy indicates the lock could not be acquired within the wait.
var ErrLockBusy = errors.New("shared: lock busy")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CategoryLockKey builds the redis key for one category's critical section.
func CategoryLockKey(categoryID int64) string {
	return fmt.Sprintf("ledger:category:%d:lock", categoryID)
}

// CategoryLock serialises ledger writers per category through redis.
// Writers on distinct categories never contend with each other.
type CategoryLock struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewCategoryLock constructs the lock helper. ttl bounds how long a
// crashed holder can block a category; wait bounds how long Acquire
// blocks before giving up with ErrLockBusy; retry is the polling
// interval while waiting.
func NewCategoryLock(client *redis.Client, ttl, wait, retry time.Duration) *CategoryLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &CategoryLock{client: client, ttl: ttl, wait: wait, retry: retry}
}

// Acquire takes the category lock, blocking up to the configured wait.
// The returned function releases the lock.
func (l *CategoryLock) Acquire(ctx context.Context, categoryID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := CategoryLockKey(categoryID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
