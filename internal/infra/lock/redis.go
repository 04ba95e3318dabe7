package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/quickledger/quickledger/internal/infra/observability"
)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Prefix     string        // key prefix, e.g. "quickledger:ledger:"
	TTL        time.Duration // lock expiry if the holder dies
	RetryDelay time.Duration // poll interval while waiting
}

// DefaultRedisConfig returns production defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:     "quickledger:ledger:",
		TTL:        30 * time.Second,
		RetryDelay: 25 * time.Millisecond,
	}
}

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX lock with a random token per holder.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger log.Logger
}

// NewRedis wraps an existing client. A nil logger discards output.
func NewRedis(client *redis.Client, cfg RedisConfig, logger log.Logger) *Redis {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	def := DefaultRedisConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Redis{client: client, cfg: cfg, logger: log.With(logger, "component", "lock")}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) key(ledgerID int64) string {
	return fmt.Sprintf("%s%d", r.cfg.Prefix, ledgerID)
}

// Lock polls SET NX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, ledgerID int64) (func(), error) {
	start := time.Now()
	key := r.key(ledgerID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.cfg.RetryDelay)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	observability.LockWait.WithLabelValues("redis").Observe(time.Since(start).Seconds())

	return func() {
		// The caller's ctx may already be cancelled; release regardless.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(rctx, r.client, []string{key}, token).Err(); err != nil {
			// The key stays held until its TTL expires.
			level.Warn(r.logger).Log("msg", "release lock", "key", key, "ttl", r.cfg.TTL, "err", err)
		}
	}, nil
}
