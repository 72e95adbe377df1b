package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries the caller's owner token
var releaseScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if not value then
	return 0
end
if string.sub(value, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. "|" then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager keeps locks as Redis keys holding "<owner>|<acquired at, RFC 3339>".
// Keys have no TTL: expiry is decided by IsStale so that recovery is logged like every other backend.
type RedisManager struct {
	client *redis.Client
	prefix string
	owner  string
	now    func() time.Time
}

// NewRedisManager creates a Redis-backed lock manager. Keys are "<prefix><id>".
func NewRedisManager(client *redis.Client, prefix string) *RedisManager {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisManager{
		client: client,
		prefix: prefix,
		owner:  uuid.NewString(),
		now:    time.Now,
	}
}

// Owner returns the token identifying this manager's locks
func (m *RedisManager) Owner() string {
	return m.owner
}

func (m *RedisManager) key(id string) string {
	return m.prefix + id
}

func (m *RedisManager) TryAcquire(ctx context.Context, id string) (Result, error) {
	if m.client == nil {
		return AlreadyLocked, fmt.Errorf("redis client is nil")
	}

	value := m.owner + "|" + m.now().UTC().Format(time.RFC3339Nano)

	ok, err := m.client.SetNX(ctx, m.key(id), value, 0).Result()
	if err != nil {
		return AlreadyLocked, fmt.Errorf("failed to set lock key: %w", err)
	}
	if !ok {
		return AlreadyLocked, nil
	}
	return Acquired, nil
}

func (m *RedisManager) IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	val, err := m.client.Get(ctx, m.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get lock key: %w", err)
	}

	_, stamp, found := strings.Cut(val, "|")
	if !found {
		// an unreadable holder cannot be trusted to be alive
		return true, nil
	}
	lockedAt, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return true, nil
	}

	return m.now().Sub(lockedAt) >= maxAge, nil
}

func (m *RedisManager) ForceRelease(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete lock key: %w", err)
	}
	return nil
}

func (m *RedisManager) Release(ctx context.Context, id string) error {
	if err := releaseScript.Run(ctx, m.client, []string{m.key(id)}, m.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock key: %w", err)
	}
	return nil
}
