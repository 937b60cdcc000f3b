package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/models"
	"github.com/darim/darim/internal/password"
	"github.com/darim/darim/internal/repository"
)

// fakeDirectory is an in-memory user directory.
type fakeDirectory struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	nextID  uint64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byEmail: make(map[string]*models.User),
		nextID:  1,
	}
}

func (d *fakeDirectory) addUser(t *testing.T, id uint64, name, email, plainPassword string) *models.User {
	t.Helper()

	digest, err := password.Hash(plainPassword, password.DefaultParams())
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		ID:             id,
		Name:           name,
		Email:          email,
		PasswordDigest: digest,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	d.mu.Lock()
	d.byEmail[email] = user
	d.mu.Unlock()
	return user
}

func (d *fakeDirectory) GetByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	copied := *user
	return &copied, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, id uint64) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.byEmail {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
}

func (d *fakeDirectory) FindPasswordDigestByEmail(ctx context.Context, email string) (string, error) {
	user, err := d.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return user.PasswordDigest, nil
}

func (d *fakeDirectory) Create(_ context.Context, user *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[user.Email]; exists {
		return fmt.Errorf("%w: user %s", apperr.ErrDuplicatedKey, user.Email)
	}
	if user.ID == 0 {
		user.ID = d.nextID
		d.nextID++
	}
	copied := *user
	d.byEmail[user.Email] = &copied
	return nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, id uint64, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.byEmail {
		if user.ID == id {
			user.PasswordDigest = digest
			user.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
}

// captureMailer records sent emails instead of delivering them.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedEmail
}

type capturedEmail struct {
	To      string
	Subject string
	Body    string
}

func (m *captureMailer) Send(to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *captureMailer) last() (capturedEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return capturedEmail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func newTestRedisStores(t *testing.T, sessionTTL time.Duration) (*miniredis.Miniredis, *repository.SessionRepository, *repository.EphemeralTokenRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	sessions := repository.NewSessionRepository(rdb, sessionTTL, testLogger())
	ephemeral := repository.NewEphemeralTokenRepository(rdb, testLogger())
	return mr, sessions, ephemeral
}
