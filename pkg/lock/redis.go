package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address  string
	Password string
	Database int

	// Prefix is prepended to all lock keys (e.g., "skuflow:lock:")
	Prefix string

	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "skuflow:lock:",
		TTL:     15 * time.Minute,
		Timeout: 5 * time.Second,
	}
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same server.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{cfg: cfg, client: client}, nil
}

func (r *Redis) key(k string) string {
	return r.cfg.Prefix + k
}

// TryLock sets the key with NX and a TTL.
func (r *Redis) TryLock(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, r.cfg.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Run(ctx, r.client, []string{r.key(key)}, token).Err()
			if err != nil {
				err = fmt.Errorf("failed to release lock %s: %w", key, err)
			}
		})
		return err
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
