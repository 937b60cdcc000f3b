package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/config"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
)

func ephemeralTestConfig() *config.EphemeralConfig {
	return &config.EphemeralConfig{
		TTL:       3 * time.Minute,
		KeyLength: 32,
		PinLength: 8,
	}
}

func newTestSignUpService(t *testing.T) (*SignUpService, EphemeralTokenStore, *fakeDirectory, *captureMailer) {
	t.Helper()

	_, _, ephemeral := newTestRedisStores(t, time.Hour)
	users := newFakeDirectory()
	mailer := &captureMailer{}
	svc := NewSignUpService(ephemeral, users, mailer, ephemeralTestConfig(), testLogger())
	return svc, ephemeral, users, mailer
}

func TestSignUpService_RequestRoundTrip(t *testing.T) {
	t.Parallel()

	svc, store, _, mailer := newTestSignUpService(t)
	ctx := context.Background()

	key, err := svc.RequestSignUp(ctx, "Kim", "k@x.com", "Passw0rd!", "")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	serialized, err := store.Get(ctx, key)
	require.NoError(t, err)

	var token models.SignUpToken
	require.NoError(t, json.Unmarshal([]byte(serialized), &token))
	assert.Len(t, token.Pin, 8)
	for _, c := range token.Pin {
		assert.True(t, isAlnum(c), "pin %q contains non-alphanumeric %q", token.Pin, c)
	}
	assert.Equal(t, "Kim", token.Name)
	assert.Equal(t, "k@x.com", token.Email)

	// The stored password is a digest, never the plaintext.
	assert.NotEqual(t, "Passw0rd!", token.Password)
	ok, err := password.Verify(token.Password, "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, ok)

	// The emailed body carries the pin, not the lookup key.
	email, sent := mailer.last()
	require.True(t, sent)
	assert.Contains(t, email.Body, token.Pin)
	assert.NotContains(t, email.Body, key)

	// Any other key is unknown.
	_, err = store.Get(ctx, strings.Repeat("z", 32))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSignUpService_RequestRejectsBlankFields(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestSignUpService(t)
	ctx := context.Background()

	cases := []struct {
		name, email, pass string
	}{
		{"  ", "k@x.com", "Passw0rd!"},
		{"Kim", "\t", "Passw0rd!"},
		{"Kim", "k@x.com", "   "},
	}
	for _, tc := range cases {
		_, err := svc.RequestSignUp(ctx, tc.name, tc.email, tc.pass, "")
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}
}

func TestSignUpService_Complete(t *testing.T) {
	t.Parallel()

	svc, store, users, _ := newTestSignUpService(t)
	ctx := context.Background()

	key, err := svc.RequestSignUp(ctx, "Kim", "k@x.com", "Passw0rd!", "https://x.com/a.png")
	require.NoError(t, err)

	serialized, err := store.Get(ctx, key)
	require.NoError(t, err)
	var token models.SignUpToken
	require.NoError(t, json.Unmarshal([]byte(serialized), &token))

	// Wrong pin is rejected and the token survives for another attempt.
	_, err = svc.CompleteSignUp(ctx, key, "WRONGPIN")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = store.Get(ctx, key)
	require.NoError(t, err)

	user, err := svc.CompleteSignUp(ctx, key, token.Pin)
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "k@x.com", user.Email)
	assert.Equal(t, "https://x.com/a.png", user.AvatarURL)

	created, err := users.GetByEmail(ctx, "k@x.com")
	require.NoError(t, err)
	ok, err := password.Verify(created.PasswordDigest, "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, ok)

	// Consumed: the token is gone.
	_, err = svc.CompleteSignUp(ctx, key, token.Pin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSignUpService_CompleteUnknownKey(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestSignUpService(t)

	_, err := svc.CompleteSignUp(context.Background(), "nosuchkey", "PIN12345")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
