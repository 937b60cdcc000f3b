package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/config"
	"github.com/darim/darim/internal/mail"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
	"github.com/darim/darim/internal/random"
)

// EphemeralTokenStore is the short-TTL key-value store contract used by the
// sign-up and password-reset flows.
type EphemeralTokenStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	GenerateAndPut(ctx context.Context, value string, keyLength int, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SignUpService handles the two-step sign-up handshake: a pending user
// record is parked in the ephemeral store under a random lookup key, and an
// 8-character pin is emailed to the user. Completing sign-up requires both
// pieces.
type SignUpService struct {
	tokens EphemeralTokenStore
	users  UserDirectory
	mailer mail.Mailer
	cfg    *config.EphemeralConfig
	logger *logrus.Logger
}

func NewSignUpService(tokens EphemeralTokenStore, users UserDirectory, mailer mail.Mailer, cfg *config.EphemeralConfig, logger *logrus.Logger) *SignUpService {
	return &SignUpService{
		tokens: tokens,
		users:  users,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
	}
}

// RequestSignUp validates the fields, hashes the password, stores the
// pending record with the configured TTL, and emails the pin. It returns the
// lookup key the client must present together with the emailed pin.
func (s *SignUpService) RequestSignUp(ctx context.Context, name, email, pass, avatarURL string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || strings.TrimSpace(pass) == "" {
		return "", fmt.Errorf("%w: name, email, and password are required", apperr.ErrInvalidArgument)
	}

	pin, err := random.Alphanumeric(s.cfg.PinLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}

	digest, err := password.Hash(pass, password.DefaultParams())
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}

	token := models.SignUpToken{
		Pin:       pin,
		Name:      name,
		Email:     email,
		Password:  digest,
		AvatarURL: avatarURL,
	}
	serialized, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidFormat, err)
	}

	key, err := s.tokens.GenerateAndPut(ctx, string(serialized), s.cfg.KeyLength, s.cfg.TTL)
	if err != nil {
		return "", err
	}

	to := fmt.Sprintf("%s <%s>", token.Name, token.Email)
	if err := s.mailer.Send(to, "Welcome to Darim 🎉", signUpEmailContent(&token)); err != nil {
		s.logger.WithError(err).Warn("Failed to send sign-up email")
	}

	return key, nil
}

// CompleteSignUp consumes the pending record: it fetches by lookup key,
// compares the submitted pin, deletes the token on match, and creates the
// user. A wrong pin is ErrUnauthorized; a missing or expired key is
// ErrNotFound.
func (s *SignUpService) CompleteSignUp(ctx context.Context, key, pin string) (*models.User, error) {
	serialized, err := s.tokens.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var token models.SignUpToken
	if err := json.Unmarshal([]byte(serialized), &token); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidFormat, err)
	}

	if subtle.ConstantTimeCompare([]byte(token.Pin), []byte(pin)) != 1 {
		return nil, fmt.Errorf("%w: pin mismatch", apperr.ErrUnauthorized)
	}

	if err := s.tokens.Delete(ctx, key); err != nil {
		return nil, err
	}

	user := &models.User{
		Name:           token.Name,
		Email:          token.Email,
		PasswordDigest: token.Password,
		AvatarURL:      token.AvatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User signed up")
	return user, nil
}

func signUpEmailContent(token *models.SignUpToken) string {
	return fmt.Sprintf(
		"<h1>🏕 Welcome to Darim</h1>"+
			"<h2>Hello %s :)</h2>"+
			"You've joined Darim.<br/><br/>"+
			"Please copy the key below to finish the sign up process:<br/><br/>"+
			`<div style="background-color: #f0f0f0; padding: 10px; font-size: 20px; font-weight: bold">%s</div>`,
		token.Name, token.Pin,
	)
}
