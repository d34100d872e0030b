// Package redis keeps the visitor registry in a Redis set.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/visitor"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// Visitors is a visitor.Store over a Redis set plus one hash per visitor.
type Visitors struct {
	client *goredis.Client
	prefix string
}

var _ visitor.Store = (*Visitors)(nil)

// Open connects and pings Redis.
func Open(ctx context.Context, cfg Config) (*Visitors, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info(ctx, "redis", "redis.connect",
		slog.String("status", "ok"),
		slog.String("addr", cfg.Addr),
	)
	return NewVisitors(client, cfg.KeyPrefix), nil
}

// NewVisitors wraps an existing client.
func NewVisitors(client *goredis.Client, prefix string) *Visitors {
	if prefix == "" {
		prefix = "shopbot"
	}
	return &Visitors{client: client, prefix: prefix}
}

func (s *Visitors) setKey() string { return s.prefix + ":visitors" }

func (s *Visitors) profileKey(id int64) string {
	return s.prefix + ":visitor:" + strconv.FormatInt(id, 10)
}

// Register adds the user to the set; SADD reports whether it was new.
func (s *Visitors) Register(ctx context.Context, v visitor.Visitor) (bool, error) {
	added, err := s.client.SAdd(ctx, s.setKey(), v.UserID).Result()
	if err != nil {
		return false, fmt.Errorf("redis sadd: %w", err)
	}
	if added == 0 {
		return false, nil
	}
	seen := v.SeenAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	err = s.client.HSet(ctx, s.profileKey(v.UserID),
		"username", v.Username,
		"first_name", v.FirstName,
		"first_seen", seen.Format(time.RFC3339),
	).Err()
	if err != nil {
		return true, fmt.Errorf("redis hset: %w", err)
	}
	return true, nil
}

func (s *Visitors) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}

// Close releases the client.
func (s *Visitors) Close() error {
	return s.client.Close()
}
