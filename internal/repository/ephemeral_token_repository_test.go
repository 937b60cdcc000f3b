package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/darim/darim/internal/apperr"
)

func TestEphemeralTokenRepository_PutGetDelete(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	repo := NewEphemeralTokenRepository(rdb, testLogger())
	ctx := context.Background()

	if err := repo.Put(ctx, "k1", "v1", time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "v1" {
		t.Fatalf("value mismatch: got %q want %q", got, "v1")
	}

	// Overwrite at the same key.
	if err := repo.Put(ctx, "k1", "v2", time.Minute); err != nil {
		t.Fatalf("Put overwrite error: %v", err)
	}
	got, err = repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "v2" {
		t.Fatalf("overwrite mismatch: got %q want %q", got, "v2")
	}

	if err := repo.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Get(ctx, "k1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := repo.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete of missing key errored: %v", err)
	}
}

func TestEphemeralTokenRepository_TTLExpiry(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	repo := NewEphemeralTokenRepository(rdb, testLogger())
	ctx := context.Background()

	if err := repo.Put(ctx, "signup", "payload", 3*time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	mr.FastForward(3*time.Minute + time.Second)

	if _, err := repo.Get(ctx, "signup"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestEphemeralTokenRepository_GenerateAndPut(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	repo := NewEphemeralTokenRepository(rdb, testLogger())
	ctx := context.Background()

	key, err := repo.GenerateAndPut(ctx, "payload", 32, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAndPut error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length: got %d want 32", len(key))
	}
	for _, c := range key {
		if !isAlphanumeric(c) {
			t.Fatalf("key %q contains non-alphanumeric %q", key, c)
		}
	}

	got, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get by generated key error: %v", err)
	}
	if got != "payload" {
		t.Fatalf("value mismatch: got %q", got)
	}

	if _, err := repo.Get(ctx, "someotherkey"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
