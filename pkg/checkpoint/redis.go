package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all checkpoint keys (e.g., "simlog:checkpoints:")
	Prefix string

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "simlog:checkpoints:",
		TTL:      7 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 4,
	}
}

// RedisBackend stores checkpoints in Redis. Running replicates are also
// tracked in a set so interrupted ones can be listed cheaply.
type RedisBackend struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "connect to redis").
			WithContext("address", cfg.Address)
	}
	return NewRedisBackendWithClient(cfg, client), nil
}

// NewRedisBackendWithClient uses an existing client.
func NewRedisBackendWithClient(cfg RedisConfig, client redis.UniversalClient) *RedisBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RedisBackend{cfg: cfg, client: client}
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

func (b *RedisBackend) runningSetKey() string {
	return b.cfg.Prefix + "running"
}

// Save persists a checkpoint and updates the running set in one pipeline.
func (b *RedisBackend) Save(ctx context.Context, cp *Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(cp)
	if err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "marshal checkpoint")
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.key(cp.ID), data, b.cfg.TTL)
	if cp.Phase == PhaseRunning {
		pipe.SAdd(ctx, b.runningSetKey(), cp.ID)
	} else {
		pipe.SRem(ctx, b.runningSetKey(), cp.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "save checkpoint to redis").
			WithContext("id", cp.ID)
	}
	return nil
}

// Load retrieves a checkpoint.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "load checkpoint from redis").
			WithContext("id", id)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeParseFailed, "decode checkpoint").WithContext("id", id)
	}
	return &cp, nil
}

// Delete removes a checkpoint.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key(id))
	pipe.SRem(ctx, b.runningSetKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "delete checkpoint").WithContext("id", id)
	}
	return nil
}

// List scans for checkpoint keys with the given ID prefix.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var out []*Checkpoint
	iter := b.client.Scan(ctx, 0, b.cfg.Prefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == b.runningSetKey() {
			continue
		}
		cp, err := b.Load(ctx, strings.TrimPrefix(key, b.cfg.Prefix))
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	if err := iter.Err(); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "scan checkpoints")
	}
	return out, nil
}

// Running returns the checkpoints of replicates that started but never
// finished.
func (b *RedisBackend) Running(ctx context.Context) ([]*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ids, err := b.client.SMembers(ctx, b.runningSetKey()).Result()
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "read running checkpoints")
	}

	var out []*Checkpoint
	for _, id := range ids {
		cp, err := b.Load(ctx, id)
		if err != nil || cp.Phase != PhaseRunning {
			// Remove stale entries
			b.client.SRem(ctx, b.runningSetKey(), id)
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string {
	return "redis"
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
