package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const adminEmail = "u61646d696e@survey-system.com"

type fakeAuth struct {
	mu       sync.Mutex
	listener remote.AuthListener

	getSessionFn func(ctx context.Context) (*remote.Session, error)
	signOutFn    func(ctx context.Context) error
}

func (f *fakeAuth) GetSession(ctx context.Context) (*remote.Session, error) {
	if f.getSessionFn == nil {
		return nil, nil
	}
	return f.getSessionFn(ctx)
}

func (f *fakeAuth) OnAuthStateChange(fn remote.AuthListener) func() {
	f.mu.Lock()
	f.listener = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string, meta remote.SignUpMetadata) (remote.SignUpResult, error) {
	return remote.SignUpResult{}, errors.New("not implemented")
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	if f.signOutFn == nil {
		return nil
	}
	return f.signOutFn(ctx)
}

func (f *fakeAuth) emit(event remote.AuthEvent, s *remote.Session) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()

	if fn != nil {
		fn(event, s)
	}
}

func (f *fakeAuth) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener != nil
}

type fakeProfiles struct {
	getFn func(ctx context.Context, userID string) (*user.Profile, error)
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	if f.getFn == nil {
		return nil, nil
	}
	return f.getFn(ctx, userID)
}

func (f *fakeProfiles) UpsertProfile(ctx context.Context, p user.Profile) error {
	return nil
}

func sessionFor(id, email, name string) *remote.Session {
	return &remote.Session{
		AccessToken: "at-" + id,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        user.User{ID: id, Email: email, DisplayName: name},
	}
}

func waitFor(t *testing.T, m *Manager, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := m.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewManagerStartsLoading(t *testing.T) {
	m := NewManager(Config{Auth: &fakeAuth{}})

	snap := m.Snapshot()
	if snap.State != StateUninitialized || !snap.IsLoading || snap.Role != user.RoleUser {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestStartRestoresSessionAndFetchesProfile(t *testing.T) {
	auth := &fakeAuth{
		getSessionFn: func(ctx context.Context) (*remote.Session, error) {
			return sessionFor("u1", "u61@survey-system.com", "meta name"), nil
		},
	}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			return &user.Profile{ID: userID, Name: "홍길동", Email: "u61@survey-system.com"}, nil
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles, AdminEmail: adminEmail})
	t.Cleanup(m.Close)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !auth.subscribed() {
		t.Fatalf("expected auth subscription")
	}

	snap := waitFor(t, m, "authoritative profile", func(s Snapshot) bool {
		return s.ProfileStatus == ProfileAuthoritative
	})
	if snap.State != StateAuthenticated || snap.IsLoading || snap.Profile.Name != "홍길동" || snap.Role != user.RoleUser {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartSeedsOptimisticProfile(t *testing.T) {
	release := make(chan struct{})
	auth := &fakeAuth{
		getSessionFn: func(ctx context.Context) (*remote.Session, error) {
			return sessionFor("u1", "u61@survey-system.com", "meta name"), nil
		},
	}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			<-release
			return nil, nil
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles})
	t.Cleanup(m.Close)
	t.Cleanup(func() { close(release) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := m.Snapshot()
	if snap.ProfileStatus != ProfileOptimistic || snap.Profile == nil || snap.Profile.Name != "meta name" {
		t.Fatalf("expected optimistic profile right away, got %+v", snap)
	}
	if snap.IsLoading {
		t.Fatalf("expected loading cleared before the profile arrives")
	}
}

func TestStartRestoreErrorClearsLoading(t *testing.T) {
	boom := errors.New("network down")
	auth := &fakeAuth{
		getSessionFn: func(ctx context.Context) (*remote.Session, error) {
			return nil, boom
		},
	}

	m := NewManager(Config{Auth: auth})
	t.Cleanup(m.Close)

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected restore error, got %v", err)
	}

	snap := m.Snapshot()
	if snap.IsLoading || snap.State != StateAnonymous {
		t.Fatalf("expected anonymous and not loading, got %+v", snap)
	}
}

func TestStartTwice(t *testing.T) {
	m := NewManager(Config{Auth: &fakeAuth{}})
	t.Cleanup(m.Close)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestNotificationDuringRestoreWins(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	auth := &fakeAuth{
		getSessionFn: func(ctx context.Context) (*remote.Session, error) {
			close(entered)
			<-release
			// the restore would say "nobody"; the sign-in below is newer
			return nil, nil
		},
	}

	m := NewManager(Config{Auth: auth})
	t.Cleanup(m.Close)

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background()) }()

	<-entered
	auth.emit(remote.EventSignedIn, sessionFor("u2", "u62@survey-system.com", "b"))

	snap := m.Snapshot()
	if snap.State != StateAuthenticated || snap.IsLoading {
		t.Fatalf("expected notification to apply during restore, got %+v", snap)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap = m.Snapshot()
	if snap.State != StateAuthenticated || snap.User.ID != "u2" {
		t.Fatalf("stale restore overwrote newer sign-in: %+v", snap)
	}
}

func TestStaleProfileDiscardedAfterSignOutEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	release := make(chan struct{})
	auth := &fakeAuth{}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			<-release
			return &user.Profile{ID: userID, Name: "late"}, nil
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles, Prom: prom})
	t.Cleanup(m.Close)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))
	auth.emit(remote.EventSignedOut, nil)
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(prom.StaleUpdatesTotal.WithLabelValues("profile")) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the stale profile to be discarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := m.Snapshot()
	if snap.State != StateAnonymous || snap.Profile != nil || snap.ProfileStatus != ProfileNone {
		t.Fatalf("stale profile leaked into anonymous state: %+v", snap)
	}
}

func TestAuthoritativeProfileSurvivesTokenRefresh(t *testing.T) {
	auth := &fakeAuth{}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			return &user.Profile{ID: userID, Name: "진짜 이름"}, nil
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles})
	t.Cleanup(m.Close)
	_ = m.Start(context.Background())

	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "meta"))
	waitFor(t, m, "authoritative profile", func(s Snapshot) bool {
		return s.ProfileStatus == ProfileAuthoritative
	})

	auth.emit(remote.EventTokenRefreshed, sessionFor("u1", "u61@survey-system.com", "meta"))

	snap := m.Snapshot()
	if snap.ProfileStatus != ProfileAuthoritative || snap.Profile.Name != "진짜 이름" {
		t.Fatalf("optimistic seed replaced the authoritative profile: %+v", snap)
	}
}

func TestProfileFetchErrorKeepsOptimistic(t *testing.T) {
	fetched := make(chan struct{})
	auth := &fakeAuth{}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			defer close(fetched)
			return nil, errors.New("timeout")
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles})
	_ = m.Start(context.Background())

	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "meta"))
	<-fetched
	m.Close()

	snap := m.Snapshot()
	if snap.ProfileStatus != ProfileOptimistic || snap.Profile.Name != "meta" {
		t.Fatalf("expected optimistic profile to remain, got %+v", snap)
	}
}

func TestRoleRecomputedPerSession(t *testing.T) {
	auth := &fakeAuth{}
	m := NewManager(Config{Auth: auth, AdminEmail: adminEmail})
	t.Cleanup(m.Close)
	_ = m.Start(context.Background())

	auth.emit(remote.EventSignedIn, sessionFor("admin-id", adminEmail, "admin"))
	if snap := m.Snapshot(); !snap.IsAdmin() {
		t.Fatalf("expected admin, got %+v", snap)
	}

	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))
	if snap := m.Snapshot(); snap.IsAdmin() || snap.Role != user.RoleUser {
		t.Fatalf("expected role to drop back to USER, got %+v", snap)
	}

	auth.emit(remote.EventSignedOut, nil)
	if snap := m.Snapshot(); snap.State != StateAnonymous || snap.Role != user.RoleUser || snap.User != nil {
		t.Fatalf("expected anonymous, got %+v", snap)
	}
}

func TestSignOutFailureStillEndsAnonymous(t *testing.T) {
	hookRan := false
	auth := &fakeAuth{
		signOutFn: func(ctx context.Context) error {
			return errors.New("503")
		},
	}

	m := NewManager(Config{Auth: auth, OnSignedOut: func() { hookRan = true }})
	t.Cleanup(m.Close)
	_ = m.Start(context.Background())

	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))

	if err := m.SignOut(context.Background()); err == nil {
		t.Fatalf("expected remote error to surface")
	}

	snap := m.Snapshot()
	if snap.State != StateAnonymous || snap.User != nil || snap.Profile != nil {
		t.Fatalf("expected anonymous after failed sign out, got %+v", snap)
	}
	if !hookRan {
		t.Fatalf("expected sign-out hook to run")
	}
}

func TestSignOutPanicStillEndsAnonymous(t *testing.T) {
	auth := &fakeAuth{
		signOutFn: func(ctx context.Context) error {
			panic("transport exploded")
		},
	}

	m := NewManager(Config{Auth: auth})
	t.Cleanup(m.Close)
	_ = m.Start(context.Background())
	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))

	func() {
		defer func() { _ = recover() }()
		_ = m.SignOut(context.Background())
	}()

	if snap := m.Snapshot(); snap.State != StateAnonymous {
		t.Fatalf("expected anonymous after panicking sign out, got %+v", snap)
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	auth := &fakeAuth{}
	m := NewManager(Config{Auth: auth})
	_ = m.Start(context.Background())

	changes := 0
	m.OnChange(func(Snapshot) { changes++ })

	m.Close()
	m.Close()

	if auth.subscribed() {
		t.Fatalf("expected auth listener to be removed")
	}

	before := m.Snapshot()
	m.handleAuthEvent(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))
	_ = m.SignOut(context.Background())

	if after := m.Snapshot(); after.State != before.State || after.User != nil {
		t.Fatalf("snapshot changed after Close: %+v", after)
	}
	if changes != 0 {
		t.Fatalf("observers notified after Close")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseCancelsBackgroundFetch(t *testing.T) {
	auth := &fakeAuth{}
	profiles := &fakeProfiles{
		getFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	m := NewManager(Config{Auth: auth, Profiles: profiles})
	_ = m.Start(context.Background())
	auth.emit(remote.EventSignedIn, sessionFor("u1", "u61@survey-system.com", "a"))

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not cancel the background fetch")
	}
}

func TestObserversDropOutOfOrderSnapshots(t *testing.T) {
	m := NewManager(Config{Auth: &fakeAuth{}})
	defer m.Close()

	var got []State
	fns := []func(Snapshot){func(s Snapshot) { got = append(got, s.State) }}

	m.deliver(2, Snapshot{State: StateAnonymous}, fns)
	m.deliver(1, Snapshot{State: StateAuthenticated}, fns)
	m.deliver(3, Snapshot{State: StateAuthenticated}, fns)

	if len(got) != 2 || got[0] != StateAnonymous || got[1] != StateAuthenticated {
		t.Fatalf("expected [anonymous authenticated], got %v", got)
	}
}
