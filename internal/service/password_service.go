package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/config"
	"github.com/darim/darim/internal/mail"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
	"github.com/darim/darim/internal/random"
)

const (
	resetTokenIDLength       = 32
	temporaryPasswordLength  = 512
	passwordResetSubjectLine = "Please reset your password 🔒"
)

// PasswordService handles the password-reset handshake: a random token id
// and an unguessable temporary password are deposited in the ephemeral store
// keyed by user id (one outstanding reset per user), and both values are
// required to set a new password.
type PasswordService struct {
	tokens        EphemeralTokenStore
	users         UserDirectory
	mailer        mail.Mailer
	cfg           *config.EphemeralConfig
	clientAddress string
	logger        *logrus.Logger
}

func NewPasswordService(tokens EphemeralTokenStore, users UserDirectory, mailer mail.Mailer, cfg *config.EphemeralConfig, clientAddress string, logger *logrus.Logger) *PasswordService {
	return &PasswordService{
		tokens:        tokens,
		users:         users,
		mailer:        mailer,
		cfg:           cfg,
		clientAddress: clientAddress,
		logger:        logger,
	}
}

func resetTokenKey(userID uint64) string {
	return fmt.Sprintf("password_token:%d", userID)
}

// RequestReset deposits a fresh reset token for the user, overwriting any
// prior outstanding one, and emails the temporary password together with a
// reset link carrying the token id.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	tokenID, err := random.Alphanumeric(resetTokenIDLength)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}
	tempPassword, err := random.Alphanumeric(temporaryPasswordLength)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}

	token := models.PasswordResetToken{
		ID:       tokenID,
		Password: tempPassword,
	}
	serialized, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidFormat, err)
	}

	if err := s.tokens.Put(ctx, resetTokenKey(user.ID), string(serialized), s.cfg.TTL); err != nil {
		return err
	}

	to := fmt.Sprintf("%s <%s>", user.Name, email)
	if err := s.mailer.Send(to, passwordResetSubjectLine, s.resetEmailContent(&token)); err != nil {
		s.logger.WithError(err).Warn("Failed to send password reset email")
	}

	return nil
}

// ResetPassword sets a new password if both the token id and the temporary
// password match the deposited token. Any mismatch is ErrUnauthorized
// without revealing which field was wrong. The token is deleted after a
// successful reset.
func (s *PasswordService) ResetPassword(ctx context.Context, email, tokenID, tempPassword, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	serialized, err := s.tokens.Get(ctx, resetTokenKey(user.ID))
	if err != nil {
		return err
	}

	var token models.PasswordResetToken
	if err := json.Unmarshal([]byte(serialized), &token); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidFormat, err)
	}

	idMatch := subtle.ConstantTimeCompare([]byte(token.ID), []byte(tokenID)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(token.Password), []byte(tempPassword)) == 1
	if !idMatch || !passwordMatch {
		return fmt.Errorf("%w: reset token mismatch", apperr.ErrUnauthorized)
	}

	digest, err := password.Hash(newPassword, password.DefaultParams())
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInternal, err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		return err
	}

	if err := s.tokens.Delete(ctx, resetTokenKey(user.ID)); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to delete used reset token")
	}

	s.logger.WithField("user_id", user.ID).Info("Password reset")
	return nil
}

func (s *PasswordService) resetEmailContent(token *models.PasswordResetToken) string {
	return fmt.Sprintf(
		"Hello :)<br/><br/>"+
			"Please copy the temporary password:<br/><br/>"+
			`<div style="background-color: #f0f0f0; padding: 10px; font-weight: bold">%s</div><br/><br/>`+
			"and visit the link to reset your password:<br/><br/>"+
			`<a href="%s/password_reset/%s">%s/password_reset/%s</a>`,
		token.Password, s.clientAddress, token.ID, s.clientAddress, token.ID,
	)
}
