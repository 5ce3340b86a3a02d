// Package session owns the client's view of who is signed in. It reconciles
// the restored session, asynchronous auth notifications from the hosted
// service and background profile fetches into one consistent snapshot.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
)

type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateLoading       State = "LOADING"
	StateAuthenticated State = "AUTHENTICATED"
	StateAnonymous     State = "ANONYMOUS"
)

type ProfileStatus string

const (
	ProfileNone          ProfileStatus = "NONE"
	ProfileOptimistic    ProfileStatus = "OPTIMISTIC"
	ProfileAuthoritative ProfileStatus = "AUTHORITATIVE"
)

var (
	ErrClosed         = errors.New("session manager closed")
	ErrAlreadyStarted = errors.New("session manager already started")
)

type Snapshot struct {
	State         State         `json:"state"`
	User          *user.User    `json:"user"`
	Profile       *user.Profile `json:"profile"`
	ProfileStatus ProfileStatus `json:"profileStatus"`
	Role          user.Role     `json:"role"`
	IsLoading     bool          `json:"isLoading"`
}

func (s Snapshot) IsAdmin() bool {
	return s.State == StateAuthenticated && s.Role == user.RoleAdmin
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

type Config struct {
	Auth       remote.Auth
	Profiles   remote.ProfileStore
	AdminEmail string
	Logger     *slog.Logger
	Prom       *observability.Prom
	// OnSignedOut runs after every SignOut, whatever the remote outcome.
	OnSignedOut func()
}

type Manager struct {
	auth        remote.Auth
	profiles    remote.ProfileStore
	adminEmail  string
	log         *slog.Logger
	prom        *observability.Prom
	onSignedOut func()

	// bg is cancelled on Close; background fetches run under it.
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64
	started     bool
	closed      bool
	unsubscribe func()
	observers   map[int]func(Snapshot)
	nextObs     int
	notifySeq   uint64

	// deliverMu orders observer calls; delivered is the last seq handed out.
	deliverMu sync.Mutex
	delivered uint64
}

func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = observability.Discard()
	}

	bg, cancel := context.WithCancel(context.Background())

	return &Manager{
		auth:        cfg.Auth,
		profiles:    cfg.Profiles,
		adminEmail:  cfg.AdminEmail,
		log:         log,
		prom:        cfg.Prom,
		onSignedOut: cfg.OnSignedOut,
		bg:          bg,
		cancel:      cancel,
		snap: Snapshot{
			State:         StateUninitialized,
			ProfileStatus: ProfileNone,
			Role:          user.RoleUser,
			IsLoading:     true,
		},
		observers: make(map[int]func(Snapshot)),
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snap.clone()
}

// OnChange registers fn to receive the snapshot after every transition.
// fn runs outside the manager's lock.
func (m *Manager) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// Start subscribes to auth notifications and then restores the persisted
// session. Notifications that arrive while the restore is in flight win
// over its result. Loading is always cleared when Start returns.
func (m *Manager) Start(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.snap.State = StateLoading
	m.snap.IsLoading = true
	m.mu.Unlock()

	unsubscribe := m.auth.OnAuthStateChange(m.handleAuthEvent)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	m.unsubscribe = unsubscribe
	restoreGen := m.gen
	m.mu.Unlock()

	defer m.finishLoading()

	s, err := m.auth.GetSession(ctx)
	if err != nil {
		m.log.Error("session restore failed", "err", err)
		return err
	}

	m.mu.Lock()
	if m.closed || m.gen != restoreGen {
		m.mu.Unlock()
		m.stale("restore")
		m.log.Debug("restored session superseded by a newer auth decision")
		return nil
	}
	fetch := m.applyLocked(s)
	m.mu.Unlock()

	m.afterApply(fetch)
	return nil
}

func (m *Manager) finishLoading() {
	m.mu.Lock()
	if m.closed || !m.snap.IsLoading {
		m.mu.Unlock()
		return
	}
	m.snap.IsLoading = false
	if m.snap.State == StateLoading {
		m.gen++
		m.snap = anonymous()
	}
	m.mu.Unlock()

	m.transitioned(StateAnonymous)
	m.notify()
}

func (m *Manager) handleAuthEvent(event remote.AuthEvent, s *remote.Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	fetch := m.applyLocked(s)
	m.mu.Unlock()

	m.log.Debug("auth state changed", "event", string(event), "authenticated", s != nil)
	m.afterApply(fetch)
}

type profileFetch struct {
	gen    uint64
	userID string
}

// applyLocked makes s the current auth decision. It returns the profile
// fetch to schedule, if any. Callers must hold m.mu.
func (m *Manager) applyLocked(s *remote.Session) *profileFetch {
	m.gen++

	if s == nil || s.User.ID == "" {
		m.snap = anonymous()
		return nil
	}

	u := s.User
	next := Snapshot{
		State:         StateAuthenticated,
		User:          &u,
		Role:          user.RoleFor(u.Email, m.adminEmail),
		ProfileStatus: ProfileNone,
	}

	sameUser := m.snap.User != nil && m.snap.User.ID == u.ID
	switch {
	case sameUser && m.snap.ProfileStatus == ProfileAuthoritative:
		next.Profile = m.snap.Profile
		next.ProfileStatus = ProfileAuthoritative
	case u.DisplayName != "":
		next.Profile = &user.Profile{ID: u.ID, Name: u.DisplayName, Email: u.Email}
		next.ProfileStatus = ProfileOptimistic
	}

	m.snap = next

	if m.profiles == nil {
		return nil
	}
	m.wg.Add(1)
	return &profileFetch{gen: m.gen, userID: u.ID}
}

func (m *Manager) afterApply(fetch *profileFetch) {
	m.transitioned(m.Snapshot().State)
	m.notify()

	if fetch != nil {
		go m.fetchProfile(*fetch)
	}
}

// fetchProfile loads the authoritative profile. The result is dropped if a
// newer auth decision or Close happened meanwhile; a failure keeps whatever
// optimistic profile is shown.
func (m *Manager) fetchProfile(f profileFetch) {
	defer m.wg.Done()

	p, err := m.profiles.GetProfile(m.bg, f.userID)

	m.mu.Lock()
	if m.closed || m.gen != f.gen {
		m.mu.Unlock()
		m.stale("profile")
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("profile fetch failed", "user_id", f.userID, "err", err)
		return
	}
	if p == nil {
		m.mu.Unlock()
		m.log.Debug("no profile row yet", "user_id", f.userID)
		return
	}
	m.snap.Profile = p
	m.snap.ProfileStatus = ProfileAuthoritative
	m.mu.Unlock()

	m.notify()
}

// SignOut signs out remotely. Local state ends ANONYMOUS and the sign-out
// hook runs even if the remote call fails or panics.
func (m *Manager) SignOut(ctx context.Context) (err error) {
	defer func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.gen++
		m.snap = anonymous()
		m.mu.Unlock()

		m.transitioned(StateAnonymous)
		m.notify()

		if m.onSignedOut != nil {
			m.onSignedOut()
		}
	}()

	err = m.auth.SignOut(ctx)
	if err != nil {
		m.log.Warn("remote sign out failed", "err", err)
	}
	return err
}

// Close stops listening and waits for background fetches. Nothing is
// written to the snapshot afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) notify() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.notifySeq++
	seq := m.notifySeq
	snap := m.snap.clone()
	fns := make([]func(Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.deliver(seq, snap, fns)
}

// deliver runs observers outside m.mu. A snapshot taken before one that was
// already delivered is dropped so observers never move backwards.
func (m *Manager) deliver(seq uint64, snap Snapshot, fns []func(Snapshot)) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	if seq <= m.delivered {
		m.stale("notify")
		return
	}
	m.delivered = seq

	for _, fn := range fns {
		fn(snap)
	}
}

func (m *Manager) transitioned(state State) {
	if m.prom != nil {
		m.prom.SessionTransitions.WithLabelValues(string(state)).Inc()
	}
}

func (m *Manager) stale(task string) {
	if m.prom != nil {
		m.prom.StaleUpdatesTotal.WithLabelValues(task).Inc()
	}
}

func anonymous() Snapshot {
	return Snapshot{
		State:         StateAnonymous,
		ProfileStatus: ProfileNone,
		Role:          user.RoleUser,
	}
}
