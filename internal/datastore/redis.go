package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dataset:"

// RedisStore persists datasets in Redis, one JSON value per handle, so
// several server instances can resolve the same dataset handles.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a registered dataset is kept; zero keeps it
	// until explicitly evicted.
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) (ID, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	id := ComputeID(rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal dataset: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+string(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store dataset: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id ID) (Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load dataset: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal dataset: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
