package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// GetEmbedding returns a cached query embedding, or found=false on a miss.
// Cache errors are reported as misses so the caller can fall through to the
// embedding capability.
func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", textHash)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warn("Failed to decode cached embedding", zap.Error(err))
		return nil, false
	}

	return embedding, true
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warn("Failed to encode embedding for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, fmt.Sprintf("embedding:%s", textHash), data, c.ttl).Err(); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}
}
