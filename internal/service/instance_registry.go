package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InstanceRegistry reserves instance ids across API replicas before they reach the database.
type InstanceRegistry interface {
	Reserve(ctx context.Context, instanceID string, userID uint, ttl time.Duration) (bool, error)
	Release(ctx context.Context, instanceID string) error
}

type redisInstanceRegistry struct {
	client *redis.Client
	prefix string
}

// NewInstanceRegistry returns a redis backed registry, or a registry that accepts every id when client is nil.
func NewInstanceRegistry(client *redis.Client, prefix string) InstanceRegistry {
	if client == nil {
		return noopInstanceRegistry{}
	}
	if prefix == "" {
		prefix = "ctf"
	}

	return &redisInstanceRegistry{client: client, prefix: prefix + ":instance:"}
}

func (r *redisInstanceRegistry) Reserve(ctx context.Context, instanceID string, userID uint, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+instanceID, userID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve instance id: %w", err)
	}
	return ok, nil
}

func (r *redisInstanceRegistry) Release(ctx context.Context, instanceID string) error {
	if err := r.client.Del(ctx, r.prefix+instanceID).Err(); err != nil {
		return fmt.Errorf("release instance id: %w", err)
	}
	return nil
}

type noopInstanceRegistry struct{}

func (noopInstanceRegistry) Reserve(context.Context, string, uint, time.Duration) (bool, error) {
	return true, nil
}

func (noopInstanceRegistry) Release(context.Context, string) error { return nil }
