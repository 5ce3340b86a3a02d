package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

type Redis struct {
	redisdb *redis.Client
	key     string
}

func NewRedis(cfg RedisConfig) *Redis {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}

	return &Redis{redisdb: redisdb, key: key}
}

// Ping checks redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.redisdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.redisdb.Close()
}

func (r *Redis) Load(ctx context.Context) (*remote.Session, error) {
	raw, err := r.redisdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s remote.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// a corrupt entry is as good as none
		_ = r.redisdb.Del(ctx, r.key).Err()
		return nil, nil
	}
	return &s, nil
}

// Save stores the session without a TTL: the refresh token outlives the
// access token expiry.
func (r *Redis) Save(ctx context.Context, s *remote.Session) error {
	if s == nil {
		return r.Clear(ctx)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := r.redisdb.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.redisdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
