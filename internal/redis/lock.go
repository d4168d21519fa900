package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds the caller's
// token, so an expired holder cannot remove a lock taken over by another.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles per-payment locks in Redis so that duplicate webhook
// deliveries for the same payment are not processed concurrently.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePaymentLock attempts to acquire a lock for the given payment. On
// success it returns the token that must be presented to release it.
func (s *LockStore) AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, paymentLockKey(paymentID), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleasePaymentLock releases the lock if it is still held with token.
func (s *LockStore) ReleasePaymentLock(ctx context.Context, paymentID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{paymentLockKey(paymentID)}, token).Err()
}

func paymentLockKey(paymentID string) string {
	return fmt.Sprintf("lock:payment:%s", paymentID)
}
