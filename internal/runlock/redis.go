package runlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKey    = "paysync:sync:lock"
	lastRunKey = "paysync:sync:last_run"
)

// lockTTL bounds how long a crashed run can wedge the guard. A healthy run
// releases explicitly well before this.
const lockTTL = 30 * time.Minute

// RedisGuard coordinates the run lock through Redis, so the skip-if-running
// rule holds across every process pointed at the same instance.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(redisURL string) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisGuard{client: client}, nil
}

// NewRedisGuardWithClient wraps an existing client (tests use miniredis).
func NewRedisGuardWithClient(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := g.client.SetNX(ctx, lockKey, time.Now().UTC().Format(time.RFC3339), lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context) error {
	if err := g.client.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func (g *RedisGuard) SaveLastRun(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal last run: %w", err)
	}
	if err := g.client.Set(ctx, lastRunKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save last run: %w", err)
	}
	return nil
}

func (g *RedisGuard) LastRun(ctx context.Context, dest any) (bool, error) {
	data, err := g.client.Get(ctx, lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load last run: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal last run: %w", err)
	}
	return true, nil
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
