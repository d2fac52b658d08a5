package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-image-forensics/pkg/models"
)

const defaultKeyPrefix = "forensics:verdict:"

// RedisConfig configures the Redis verdict store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL applied on every SET; zero stores without expiry.
	TTL time.Duration
}

type redisRepository struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisRepository connects to Redis and verifies the connection.
func NewRedisRepository(ctx context.Context, cfg RedisConfig) (VerdictRepository, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %v", ErrRepositoryUnavailable, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &redisRepository{client: client, ttl: ttl, prefix: prefix}, nil
}

func (s *redisRepository) key(id string) string {
	return s.prefix + id
}

// Save writes the record with a single SET, which replaces the value atomically.
func (s *redisRepository) Save(ctx context.Context, v *models.VerdictRecord) error {
	if v == nil || v.SourceID == "" {
		return ErrInvalidKey
	}
	data, err := encodeVerdict(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := s.client.Set(ctx, s.key(v.SourceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return nil
}

func (s *redisRepository) Get(ctx context.Context, sourceID string) (*models.VerdictRecord, error) {
	raw, err := s.client.Get(ctx, s.key(sourceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVerdictNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	v, err := decodeVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("decode verdict %q: %w", sourceID, err)
	}
	return v, nil
}

func (s *redisRepository) Delete(ctx context.Context, sourceID string) error {
	return s.client.Del(ctx, s.key(sourceID)).Err()
}

func (s *redisRepository) Close() error {
	return s.client.Close()
}
