package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a key. Live holders
// extend their leases well before it runs out.
const DefaultTTL = time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis database.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient connects to the given redis:// URL and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	fullKey := r.prefix + key

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &redisLease{client: r.client, key: fullKey, token: token, ttl: r.ttl}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	once sync.Once
	err  error
}

// Release deletes the key only if this lease still owns it.
func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
			l.err = fmt.Errorf("release %s: %w", l.key, err)
		}
	})

	return l.err
}

// Extend resets the expiry only if this lease still owns the key.
func (l *redisLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLost
	}

	return nil
}

func (l *redisLease) TTL() time.Duration {
	return l.ttl
}
