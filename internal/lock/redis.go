package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	logx "paypacer/pkg/logx"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// client is the subset of *redis.Client the locker uses.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Close() error
}

// Redis implements Locker with SET NX and a token-checked release.
type Redis struct {
	rdb    client
	prefix string
	log    logx.Logger
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, cfg RedisConfig, log logx.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	log.Info("redis lock connected", logx.String("addr", cfg.Addr))
	return newRedis(rdb, cfg.KeyPrefix, log), nil
}

func newRedis(rdb client, prefix string, log logx.Logger) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "paypacer:tick"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Redis{rdb: rdb, prefix: prefix, log: log}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	full := r.prefix + ":" + key
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return func(ctx context.Context) error {
		if err := r.rdb.Eval(ctx, releaseScript, []string{full}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", full, err)
		}
		return nil
	}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
