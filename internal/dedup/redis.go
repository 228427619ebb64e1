// Package dedup suppresses repeated relay deliveries within a time window
// using Redis keys.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 5 * time.Second
	defaultTTL     = 10 * time.Minute
)

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Checker claims delivery keys. Key format: relay:<user>:<field>:<event>,
// where event identifies one NOTIFY payload.
type Checker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewChecker(client redis.Cmdable, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Checker{client: client, ttl: ttl}
}

// Claim records the delivery atomically with SETNX. false means another
// claim for the same event and field is still live.
func (c *Checker) Claim(ctx context.Context, userID int64, field, eventID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, Key(userID, field, eventID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the delivery can be attempted again.
func (c *Checker) Release(ctx context.Context, userID int64, field, eventID string) error {
	if err := c.client.Del(ctx, Key(userID, field, eventID)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func Key(userID int64, field, eventID string) string {
	return fmt.Sprintf("relay:%d:%s:%s", userID, field, eventID)
}
