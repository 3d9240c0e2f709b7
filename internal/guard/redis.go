package guard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/teesched/internal/calendar"
)

const (
	keyPrefix = "teesched:fired:"
	claimTTL  = 48 * time.Hour
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis claims days with SETNX so every process sharing the server agrees on the winner.
type Redis struct {
	client *redis.Client
	owner  string
}

func NewRedis(cfg RedisConfig) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}))
}

func NewRedisWithClient(client *redis.Client) *Redis {
	host, _ := os.Hostname()
	return &Redis{client: client, owner: fmt.Sprintf("%s/%d", host, os.Getpid())}
}

func (r *Redis) Claim(ctx context.Context, day calendar.Date) (bool, error) {
	ok, err := r.client.SetNX(ctx, dayKey(day), r.owner, claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("guard: claim %s: %w", day.ISO(), err)
	}
	return ok, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func dayKey(day calendar.Date) string {
	return keyPrefix + day.ISO()
}
