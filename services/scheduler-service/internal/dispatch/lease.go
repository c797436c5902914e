package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease keeps a single sweeper active across replicas. Acquire reports false
// when another holder owns the lease.
type Lease interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisLease is a SET NX PX lock released only by the holder that set it.
type RedisLease struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLease(rdb *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = "lease:reminder-sweep"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLease{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}
	return release, true, nil
}
