package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/jackc/pgx/v5/pgconn"
)

type fixedSession struct {
	s *remote.Session
}

func (f fixedSession) CurrentSession() *remote.Session { return f.s }

func TestCallsWithoutSessionFailFast(t *testing.T) {
	st := NewStore(nil, fixedSession{}, nil)

	if _, err := st.ListWithProfiles(context.Background()); !errors.Is(err, remote.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := st.Delete(context.Background(), 1); !errors.Is(err, remote.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestMapErr(t *testing.T) {
	denied := mapErr("responses.delete", &pgconn.PgError{Code: "42501", Message: "permission denied for table survey_responses"})
	if !errors.Is(denied, remote.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", denied)
	}

	dup := mapErr("responses.upsert", &pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	var rerr *remote.Error
	if !errors.As(dup, &rerr) || rerr.Code != "23505" || rerr.Status != 409 {
		t.Fatalf("expected 409 unique violation, got %v", dup)
	}

	plain := errors.New("conn reset")
	if got := mapErr("responses.list", plain); got != plain {
		t.Fatalf("expected non-pg errors to pass through, got %v", got)
	}
}

func TestNewPool_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping integration test")
	}

	pool, err := NewPool(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	var one int
	if err := pool.QueryRow(context.Background(), `SELECT 1`).Scan(&one); err != nil || one != 1 {
		t.Fatalf("SELECT 1: %v", err)
	}
}
