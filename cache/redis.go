// Package cache mirrors hot pipeline state into Redis so sibling
// processes can read spot prices without touching the database. Redis is
// strictly optional: every method degrades gracefully when the client is
// nil or unreachable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gexflow/database"
)

// spotTTL bounds how stale a mirrored spot price can be before readers
// must fall back to the database.
const spotTTL = 5 * time.Minute

// RedisClient wraps redis.Client
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client. Returns nil when the host is
// empty or unreachable, which callers treat as caching disabled.
func NewRedisClient(host, port, password string) *RedisClient {
	if host == "" {
		return nil
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		return nil
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &RedisClient{client: client}
}

// SetSpot mirrors the latest underlying price
func (r *RedisClient) SetSpot(ctx context.Context, symbol string, price float64) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Set(ctx, spotKey(symbol), strconv.FormatFloat(price, 'f', -1, 64), spotTTL).Err()
}

// GetSpot returns the mirrored price, or 0 when the key is missing
func (r *RedisClient) GetSpot(ctx context.Context, symbol string) (float64, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("redis client not initialized")
	}

	val, err := r.client.Get(ctx, spotKey(symbol)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(val, 64)
}

// PublishGEX pushes a snapshot onto the per-symbol channel for external
// consumers (alerting, chart refreshers).
func (r *RedisClient) PublishGEX(ctx context.Context, symbol string, metric *database.GEXMetric) error {
	if r == nil || r.client == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(metric)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, "gex:"+symbol, jsonBytes).Err()
}

// Subscribe subscribes to a channel
func (r *RedisClient) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Subscribe(ctx, channel)
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r != nil && r.client != nil {
		return r.client.Close()
	}
	return nil
}

func spotKey(symbol string) string {
	return "spot:" + symbol
}
