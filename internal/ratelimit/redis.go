package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "bidroom:ratelimit:"

// incrScript increments the counter and starts the window on the first hit.
// A counter that lost its expiry is given a fresh one so it cannot stick.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type RedisStore struct {
	rdb    redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		return 0, time.Time{}, fmt.Errorf("invalid window %s", window)
	}

	res, err := incrScript.Run(ctx, s.rdb, []string{s.prefix + key}, ms).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incr %q: %w", key, err)
	}

	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("incr %q: unexpected reply %v", key, res)
	}

	return res[0], s.now().Add(time.Duration(res[1]) * time.Millisecond), nil
}
