// Package app wires the client components around one hosted project and
// keeps the per-user pieces in step with the signed-in account.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/geocoder89/surveyhub/internal/auth"
	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/lifecycle"
	"github.com/geocoder89/surveyhub/internal/moderation"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/geocoder89/surveyhub/internal/session"
	"github.com/geocoder89/surveyhub/internal/stats"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrNotAdmin    = errors.New("admin role required")
)

type Options struct {
	Client        remote.Client
	Questionnaire survey.Questionnaire
	AdminEmail    string
	Logger        *slog.Logger
	Prom          *observability.Prom
}

type App struct {
	client remote.Client
	q      survey.Questionnaire
	log    *slog.Logger
	prom   *observability.Prom

	Session *session.Manager
	Auth    *auth.Form
	Stats   *stats.Service

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
	owner       string
	survey     *lifecycle.Controller
	moderation *moderation.Controller
}

func New(opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = observability.Discard()
	}

	a := &App{
		client: opts.Client,
		q:      opts.Questionnaire,
		log:    log,
		prom:   opts.Prom,
		Stats:  stats.NewService(opts.Questionnaire, opts.Client.Responses, log.With("component", "stats")),
	}

	a.Session = session.NewManager(session.Config{
		Auth:        opts.Client.Auth,
		Profiles:    opts.Client.Profiles,
		AdminEmail:  opts.AdminEmail,
		Logger:      log.With("component", "session"),
		Prom:        opts.Prom,
		OnSignedOut: func() { a.reset("") },
	})

	a.Auth = auth.NewForm(auth.Config{
		Auth:     opts.Client.Auth,
		Profiles: opts.Client.Profiles,
		Logger:   log.With("component", "auth"),
	})

	return a
}

// Start restores the session and begins following auth changes. Per-user
// state is dropped whenever the signed-in account changes.
func (a *App) Start(ctx context.Context) error {
	unsubscribe := a.Session.OnChange(func(s session.Snapshot) {
		owner := ""
		if s.State == session.StateAuthenticated && s.User != nil {
			owner = s.User.ID
		}
		a.reset(owner)
	})

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		unsubscribe()
		return session.ErrClosed
	}
	a.unsubscribe = unsubscribe
	a.mu.Unlock()

	return a.Session.Start(ctx)
}

func (a *App) Questionnaire() survey.Questionnaire {
	return a.q
}

// Survey returns the form controller of the signed-in user, creating and
// loading it on first use.
func (a *App) Survey(ctx context.Context) (*lifecycle.Controller, error) {
	snap := a.Session.Snapshot()
	if snap.State != session.StateAuthenticated || snap.User == nil {
		return nil, ErrNotSignedIn
	}

	a.mu.Lock()
	a.resetLocked(snap.User.ID)
	if a.survey != nil {
		c := a.survey
		a.mu.Unlock()
		return c, nil
	}

	c := lifecycle.New(lifecycle.Config{
		Questionnaire: a.q,
		Responses:     a.client.Responses,
		UserID:        snap.User.ID,
		Logger:        a.log.With("component", "survey"),
		Prom:          a.prom,
	})
	a.survey = c
	a.mu.Unlock()

	if err := c.Load(ctx); err != nil && !errors.Is(err, lifecycle.ErrClosed) {
		a.log.Warn("survey load failed, showing blank form", "err", err)
	}
	return c, nil
}

// Moderation returns the admin list controller. Non-admins get ErrNotAdmin.
func (a *App) Moderation() (*moderation.Controller, error) {
	snap := a.Session.Snapshot()
	if snap.State != session.StateAuthenticated || snap.User == nil {
		return nil, ErrNotSignedIn
	}
	if !snap.IsAdmin() {
		return nil, ErrNotAdmin
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked(snap.User.ID)
	if a.moderation == nil {
		a.moderation = moderation.New(a.client.Responses, a.log.With("component", "moderation"), a.prom)
	}
	return a.moderation, nil
}

func (a *App) reset(owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked(owner)
}

func (a *App) resetLocked(owner string) {
	if owner == a.owner {
		return
	}

	if a.survey != nil {
		a.survey.Close()
		a.survey = nil
	}
	a.moderation = nil
	a.owner = owner
}

func (a *App) Close() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.closed = true
	a.resetLocked("")
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.Session.Close()
}
