package repository

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/models"
)

// SessionRepository stores one refresh session per (user, device) in a redis
// hash keyed by user id, with the session id as the hash field. Redis only
// supports TTL at key level, so every save re-extends the whole user's
// bucket to the refresh-token lifetime.
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewSessionRepository(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionKey(userID uint64) string {
	return fmt.Sprintf("sessions:%d", userID)
}

// Save upserts the entry and refreshes the bucket TTL.
func (r *SessionRepository) Save(ctx context.Context, userID uint64, sessionID string, entry models.SessionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal session entry: %v", apperr.ErrInvalidFormat, err)
	}

	key := sessionKey(userID)
	if err := r.client.HSet(ctx, key, sessionID, string(data)).Err(); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to save session")
		return fmt.Errorf("%w: failed to save session: %v", apperr.ErrStoreUnavailable, err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to refresh session bucket TTL")
		return fmt.Errorf("%w: failed to refresh session ttl: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// IsValid reports whether an entry exists at (userID, sessionID) and its
// stored refresh token equals the presented one. The comparison is constant
// time. A missing entry is not an error, just false.
func (r *SessionRepository) IsValid(ctx context.Context, userID uint64, sessionID, refreshToken string) (bool, error) {
	data, err := r.client.HGet(ctx, sessionKey(userID), sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to look up session")
		return false, fmt.Errorf("%w: failed to look up session: %v", apperr.ErrStoreUnavailable, err)
	}

	var entry models.SessionEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return false, fmt.Errorf("%w: failed to unmarshal session entry: %v", apperr.ErrInvalidFormat, err)
	}

	return subtle.ConstantTimeCompare([]byte(entry.RefreshToken), []byte(refreshToken)) == 1, nil
}

// Get returns the entry at (userID, sessionID).
func (r *SessionRepository) Get(ctx context.Context, userID uint64, sessionID string) (*models.SessionEntry, error) {
	data, err := r.client.HGet(ctx, sessionKey(userID), sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: session", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get session: %v", apperr.ErrStoreUnavailable, err)
	}

	var entry models.SessionEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal session entry: %v", apperr.ErrInvalidFormat, err)
	}
	return &entry, nil
}

// FindAll returns all of the user's sessions. Entries that fail to
// deserialize are dropped rather than failing the whole call.
func (r *SessionRepository) FindAll(ctx context.Context, userID uint64) (map[string]models.SessionEntry, error) {
	raw, err := r.client.HGetAll(ctx, sessionKey(userID)).Result()
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to list sessions")
		return nil, fmt.Errorf("%w: failed to list sessions: %v", apperr.ErrStoreUnavailable, err)
	}

	sessions := make(map[string]models.SessionEntry, len(raw))
	for sessionID, data := range raw {
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			r.logger.WithFields(logrus.Fields{
				"user_id":    userID,
				"session_id": sessionID,
			}).Warn("Dropping undecodable session entry")
			continue
		}
		sessions[sessionID] = entry
	}
	return sessions, nil
}

// Delete removes one device's session. Idempotent.
func (r *SessionRepository) Delete(ctx context.Context, userID uint64, sessionID string) error {
	if err := r.client.HDel(ctx, sessionKey(userID), sessionID).Err(); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Error("Failed to delete session")
		return fmt.Errorf("%w: failed to delete session: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}
