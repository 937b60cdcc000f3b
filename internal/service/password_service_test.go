package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
)

func newTestPasswordService(t *testing.T) (*PasswordService, EphemeralTokenStore, *fakeDirectory, *captureMailer) {
	t.Helper()

	_, _, ephemeral := newTestRedisStores(t, time.Hour)
	users := newFakeDirectory()
	mailer := &captureMailer{}
	svc := NewPasswordService(ephemeral, users, mailer, ephemeralTestConfig(), "https://darim.app", testLogger())
	return svc, ephemeral, users, mailer
}

func storedResetToken(t *testing.T, store EphemeralTokenStore, userID uint64) models.PasswordResetToken {
	t.Helper()

	serialized, err := store.Get(context.Background(), fmt.Sprintf("password_token:%d", userID))
	require.NoError(t, err)
	var token models.PasswordResetToken
	require.NoError(t, json.Unmarshal([]byte(serialized), &token))
	return token
}

func TestPasswordService_RequestDepositsToken(t *testing.T) {
	t.Parallel()

	svc, store, users, mailer := newTestPasswordService(t)
	users.addUser(t, 7, "Kim", "k@x.com", "OldPass1!")
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "k@x.com"))

	token := storedResetToken(t, store, 7)
	assert.Len(t, token.ID, 32)
	assert.Len(t, token.Password, 512)

	email, sent := mailer.last()
	require.True(t, sent)
	assert.Contains(t, email.Body, token.Password)
	assert.Contains(t, email.Body, "https://darim.app/password_reset/"+token.ID)
}

func TestPasswordService_RequestUnknownEmail(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestPasswordService(t)

	err := svc.RequestReset(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPasswordService_RequestOverwritesPriorToken(t *testing.T) {
	t.Parallel()

	svc, store, users, _ := newTestPasswordService(t)
	users.addUser(t, 7, "Kim", "k@x.com", "OldPass1!")
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "k@x.com"))
	first := storedResetToken(t, store, 7)

	require.NoError(t, svc.RequestReset(ctx, "k@x.com"))
	second := storedResetToken(t, store, 7)

	assert.NotEqual(t, first.ID, second.ID)

	// The superseded token no longer resets anything.
	err := svc.ResetPassword(ctx, "k@x.com", first.ID, first.Password, "NewPass1!")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPasswordService_ResetMismatchDoesNotMutate(t *testing.T) {
	t.Parallel()

	svc, store, users, _ := newTestPasswordService(t)
	user := users.addUser(t, 7, "Kim", "k@x.com", "OldPass1!")
	originalDigest := user.PasswordDigest
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "k@x.com"))
	token := storedResetToken(t, store, 7)

	// Wrong token id, right temporary password.
	err := svc.ResetPassword(ctx, "k@x.com", "wrongwrongwrongwrongwrongwrongwr", token.Password, "NewPass1!")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	// Right token id, wrong temporary password.
	err = svc.ResetPassword(ctx, "k@x.com", token.ID, "wrong", "NewPass1!")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	current, err := users.GetByEmail(ctx, "k@x.com")
	require.NoError(t, err)
	assert.Equal(t, originalDigest, current.PasswordDigest)
}

func TestPasswordService_ResetSuccess(t *testing.T) {
	t.Parallel()

	svc, store, users, _ := newTestPasswordService(t)
	users.addUser(t, 7, "Kim", "k@x.com", "OldPass1!")
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "k@x.com"))
	token := storedResetToken(t, store, 7)

	require.NoError(t, svc.ResetPassword(ctx, "k@x.com", token.ID, token.Password, "NewPass1!"))

	current, err := users.GetByEmail(ctx, "k@x.com")
	require.NoError(t, err)

	ok, err := password.Verify(current.PasswordDigest, "NewPass1!")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = password.Verify(current.PasswordDigest, "OldPass1!")
	require.NoError(t, err)
	assert.False(t, ok)

	// The token is consumed.
	_, err = store.Get(ctx, fmt.Sprintf("password_token:%d", 7))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
