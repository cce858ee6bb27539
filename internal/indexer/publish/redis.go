package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

// RedisSink stores the build manifest as JSON under <prefix>latest and
// <prefix>build:<id>. Only the per-build key expires.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisSinkWithClient(client, cfg.KeyPrefix, cfg.BuildTTL), nil
}

func NewRedisSinkWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) LatestKey() string { return s.prefix + "latest" }

func (s *RedisSink) BuildKey(buildID string) string { return s.prefix + "build:" + buildID }

func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("encoding manifest: %w", err))
	}
	return s.client.SetAll(ctx,
		redis.Entry{Key: s.LatestKey(), Value: data},
		redis.Entry{Key: s.BuildKey(event.BuildID), Value: data, TTL: s.ttl},
	)
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
