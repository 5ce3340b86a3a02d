// Package remote describes the hosted auth/database service the survey
// client runs on. The service is a black box: adapters in the sub-packages
// talk to it, and the row-level policy it enforces (insert own row, select
// own row or all rows as admin, delete as admin) is never re-implemented on
// this side.
package remote

import (
	"context"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/domain/user"
)

// AuthEvent names the reason an auth-state notification fired.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         user.User `json:"user"`
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// SignUpMetadata travels with the sign-up request and comes back on the
// session user, which is what lets the client seed a profile immediately.
type SignUpMetadata struct {
	Name string `json:"name"`
}

// SignUpResult carries the created user. Session is nil when the service
// requires confirmation before issuing tokens.
type SignUpResult struct {
	User    *user.User
	Session *Session
}

// AuthListener receives every auth-state change. s is nil on sign-out.
type AuthListener func(event AuthEvent, s *Session)

type Auth interface {
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (SignUpResult, error)
	SignOut(ctx context.Context) error
}

// SessionSource exposes the session whose credentials data calls run under.
type SessionSource interface {
	CurrentSession() *Session
}

type ProfileStore interface {
	// GetProfile returns (nil, nil) when no row exists.
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	UpsertProfile(ctx context.Context, p user.Profile) error
}

type ResponseStore interface {
	// GetByUser returns (nil, nil) when the user has not responded and
	// ErrMultipleRows when the uniqueness invariant is broken.
	GetByUser(ctx context.Context, userID string) (*survey.Response, error)
	// Upsert inserts or replaces the row keyed on UserID.
	Upsert(ctx context.Context, r survey.Response) (survey.Response, error)
	// ListWithProfiles returns every row visible to the caller, newest first.
	ListWithProfiles(ctx context.Context) ([]survey.ResponseWithProfile, error)
	// Delete returns ErrNotFound unless a row was actually removed.
	Delete(ctx context.Context, id int64) error
}

// Client bundles the three capabilities of one hosted project.
type Client struct {
	Auth      Auth
	Profiles  ProfileStore
	Responses ResponseStore
}
