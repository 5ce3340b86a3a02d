package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/remote"
)

func sampleSession() *remote.Session {
	return &remote.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC),
		User: user.User{
			ID:          "7b0c",
			Email:       "u61@survey-system.com",
			DisplayName: "a",
		},
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := st.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty store, got %+v, %v", got, err)
	}

	want := sampleSession()
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.RefreshToken != want.RefreshToken || got.User.ID != want.User.ID || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := st.Save(ctx, nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	got, err = st.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected Save(nil) to clear, got %+v, %v", got, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreCopiesOnSave(t *testing.T) {
	st := NewMemory()
	s := sampleSession()

	_ = st.Save(context.Background(), s)
	s.AccessToken = "mutated"

	got, _ := st.Load(context.Background())
	if got.AccessToken != "access" {
		t.Fatalf("stored session aliased the caller's value")
	}
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	st := NewRedis(RedisConfig{Addr: addr, Key: "surveyhub-test-session"})
	t.Cleanup(func() { _ = st.Close() })

	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	exerciseStore(t, st)
}
