package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

const keyPrefix = "projection:"

// ValkeyConfig holds connection settings for the Valkey cache tier
type ValkeyConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// ValkeyCache stores projections as JSON values with a TTL
type ValkeyCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *zap.Logger
}

// NewValkeyClient connects to Valkey and verifies the connection
func NewValkeyClient(ctx context.Context, cfg ValkeyConfig, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	log.Info("Connected to Valkey", zap.String("host", cfg.Host), zap.String("port", cfg.Port))
	return client, nil
}

// NewValkeyCache wraps a connected client
func NewValkeyCache(client redis.Cmdable, ttl time.Duration, log *zap.Logger) *ValkeyCache {
	return &ValkeyCache{client: client, ttl: ttl, log: log}
}

func (c *ValkeyCache) Get(ctx context.Context, id string) (*domain.Projection, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read projection %s from cache: %w", id, err)
	}

	var p domain.Projection
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Warn("Dropping undecodable cache entry", zap.String("projection_id", id), zap.Error(err))
		_ = c.client.Del(ctx, keyPrefix+id).Err()
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, projection *domain.Projection) error {
	data, err := json.Marshal(projection)
	if err != nil {
		return fmt.Errorf("failed to encode projection %s: %w", projection.ID, err)
	}
	if err := c.client.Set(ctx, keyPrefix+projection.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache projection %s: %w", projection.ID, err)
	}
	return nil
}

func (c *ValkeyCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to evict projection %s: %w", id, err)
	}
	return nil
}
