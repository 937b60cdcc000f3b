package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
)

// UserDirectory is the slice of the user store the auth services need. The
// DynamoDB repository satisfies it; tests inject fakes.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uint64) (*models.User, error)
	FindPasswordDigestByEmail(ctx context.Context, email string) (string, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint64, digest string) error
}

// SessionStore is the refresh session store contract.
type SessionStore interface {
	Save(ctx context.Context, userID uint64, sessionID string, entry models.SessionEntry) error
	IsValid(ctx context.Context, userID uint64, sessionID, refreshToken string) (bool, error)
	FindAll(ctx context.Context, userID uint64) (map[string]models.SessionEntry, error)
	Delete(ctx context.Context, userID uint64, sessionID string) error
}

// AuthService orchestrates login, token rotation, and session management.
// It holds no per-request state; all cross-request coordination goes through
// the injected stores.
type AuthService struct {
	tokens   *TokenService
	sessions SessionStore
	users    UserDirectory
	logger   *logrus.Logger
}

func NewAuthService(tokens *TokenService, sessions SessionStore, users UserDirectory, logger *logrus.Logger) *AuthService {
	return &AuthService{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		logger:   logger,
	}
}

// LoginResult carries everything a successful login produces. SessionID and
// the refresh token travel back to the client in cookies; the access token
// in the body.
type LoginResult struct {
	User      *models.User
	Tokens    models.TokenPair
	SessionID string
}

// Login verifies credentials and registers a brand-new device session. It
// never reuses an existing session id. A wrong password and an unknown email
// both collapse to ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, pass, userAgent string) (*LoginResult, error) {
	digest, err := s.users.FindPasswordDigestByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: bad credentials", apperr.ErrUnauthorized)
		}
		return nil, err
	}

	ok, err := password.Verify(digest, pass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: bad credentials", apperr.ErrUnauthorized)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.Mint(user.ID, RefreshToken)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	entry := models.SessionEntry{
		RefreshToken:   refreshToken,
		UserAgent:      userAgent,
		LastAccessedAt: time.Now().UnixMilli(),
	}
	if err := s.sessions.Save(ctx, user.ID, sessionID, entry); err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.Mint(user.ID, AccessToken)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"session_id": sessionID,
	}).Info("User logged in")

	return &LoginResult{
		User: user,
		Tokens: models.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		},
		SessionID: sessionID,
	}, nil
}

// RotationResult carries the tokens minted by a successful rotation. The
// refresh token is a fresh value; the previously stored one stops matching.
type RotationResult struct {
	AccessToken  string
	RefreshToken string
}

// Rotate validates a presented refresh token against the session store and,
// on success, replaces the stored token and mints a new access token.
//
// The store check runs before the cryptographic check: a revoked session
// rejects a still-valid token by absence, and the claims check afterwards
// rejects an expired token that is still present. The entry is re-saved
// before the claims check, preserving the original protocol ordering.
func (s *AuthService) Rotate(ctx context.Context, userID uint64, sessionID, refreshToken, userAgent string) (*RotationResult, error) {
	valid, err := s.sessions.IsValid(ctx, userID, sessionID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": sessionID,
		}).Warn("Refresh token did not match stored session")
		return nil, fmt.Errorf("%w: refresh token mismatch", apperr.ErrUnauthorized)
	}

	nextRefresh, err := s.tokens.Mint(userID, RefreshToken)
	if err != nil {
		return nil, err
	}
	entry := models.SessionEntry{
		RefreshToken:   nextRefresh,
		UserAgent:      userAgent,
		LastAccessedAt: time.Now().UnixMilli(),
	}
	if err := s.sessions.Save(ctx, userID, sessionID, entry); err != nil {
		return nil, err
	}

	if _, err := s.tokens.Parse(refreshToken, RefreshToken); err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.Mint(userID, AccessToken)
	if err != nil {
		return nil, err
	}

	return &RotationResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
	}, nil
}

// IssueAccessToken mints an access token without touching the store.
func (s *AuthService) IssueAccessToken(userID uint64) (string, error) {
	return s.tokens.Mint(userID, AccessToken)
}

// RemoveSession logs out exactly one device. Idempotent; other devices are
// unaffected.
func (s *AuthService) RemoveSession(ctx context.Context, userID uint64, sessionID string) error {
	return s.sessions.Delete(ctx, userID, sessionID)
}

// RemoveAllSessions logs the user out everywhere, used by account deletion.
func (s *AuthService) RemoveAllSessions(ctx context.Context, userID uint64) error {
	sessions, err := s.sessions.FindAll(ctx, userID)
	if err != nil {
		return err
	}
	for sessionID := range sessions {
		if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// ListSessions returns the user's active sessions, most recently accessed
// first. IsCurrent is left false; the transport layer knows the current
// request's session id and fills it in.
func (s *AuthService) ListSessions(ctx context.Context, userID uint64) ([]models.SessionInfo, error) {
	entries, err := s.sessions.FindAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]models.SessionInfo, 0, len(entries))
	for sessionID, entry := range entries {
		infos = append(infos, models.SessionInfo{
			SessionID:      sessionID,
			UserAgent:      entry.UserAgent,
			LastAccessedAt: entry.LastAccessedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastAccessedAt > infos[j].LastAccessedAt
	})
	return infos, nil
}
