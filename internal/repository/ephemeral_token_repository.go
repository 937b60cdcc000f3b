package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/random"
)

// EphemeralTokenRepository is a generic key-value store with per-key TTL,
// backing sign-up tokens and password-reset tokens. Values are opaque
// serialized payloads; callers decide the shape.
type EphemeralTokenRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewEphemeralTokenRepository(client *redis.Client, logger *logrus.Logger) *EphemeralTokenRepository {
	return &EphemeralTokenRepository{
		client: client,
		logger: logger,
	}
}

// Put writes value under key with the given TTL, overwriting any existing
// value at that key.
func (r *EphemeralTokenRepository) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store ephemeral token")
		return fmt.Errorf("%w: failed to store ephemeral token: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// GenerateAndPut stores value under a fresh random alphanumeric key and
// returns the key. The key doubles as a shareable lookup token.
func (r *EphemeralTokenRepository) GenerateAndPut(ctx context.Context, value string, keyLength int, ttl time.Duration) (string, error) {
	key, err := random.Alphanumeric(keyLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}

	if err := r.Put(ctx, key, value, ttl); err != nil {
		return "", err
	}
	return key, nil
}

func (r *EphemeralTokenRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: ephemeral token", apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to get ephemeral token")
		return "", fmt.Errorf("%w: failed to get ephemeral token: %v", apperr.ErrStoreUnavailable, err)
	}
	return value, nil
}

// Delete removes the token at key. Deleting a missing key is not an error.
func (r *EphemeralTokenRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to delete ephemeral token")
		return fmt.Errorf("%w: failed to delete ephemeral token: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}
