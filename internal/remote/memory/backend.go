// Package memory is an in-process stand-in for the hosted service. It keeps
// accounts, profiles and survey rows in maps and emulates the remote
// row-level policy so the client core can be exercised without a network.
// It backs the "memory" backend mode and most package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Operation names accepted by Fail.
const (
	OpGetSession    = "auth.get_session"
	OpSignIn        = "auth.sign_in"
	OpSignUp        = "auth.sign_up"
	OpSignOut       = "auth.sign_out"
	OpGetProfile    = "profiles.get"
	OpUpsertProfile = "profiles.upsert"
	OpGetResponse   = "responses.get_by_user"
	OpUpsert        = "responses.upsert"
	OpList          = "responses.list"
	OpDelete        = "responses.delete"
)

type Options struct {
	AdminEmail string
	// DisableSignup makes SignUp fail the way a project with e-mail signups
	// switched off does.
	DisableSignup bool
	// ConfirmEmail leaves new accounts unconfirmed: SignUp returns no
	// session and SignInWithPassword fails until Confirm is called.
	ConfirmEmail bool
	// DeferSignUpSession makes SignUp return no session while the account
	// is usable right away.
	DeferSignUpSession bool
	TokenTTL           time.Duration
	HashCost           int
	Secret             string
	Now                func() time.Time
}

type account struct {
	user      user.User
	hash      []byte
	confirmed bool
}

type Backend struct {
	opts Options

	mu        sync.Mutex
	accounts  map[string]*account // by email
	current   *remote.Session
	listeners map[int]remote.AuthListener
	nextSub   int
	profiles  map[string]user.Profile
	responses map[int64]survey.Response
	nextID    int64
	faults    map[string]error
}

func New(opts Options) *Backend {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Secret == "" {
		opts.Secret = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Backend{
		opts:      opts,
		accounts:  make(map[string]*account),
		listeners: make(map[int]remote.AuthListener),
		profiles:  make(map[string]user.Profile),
		responses: make(map[int64]survey.Response),
	}
}

// Client exposes the backend through the remote capability interfaces.
func (b *Backend) Client() remote.Client {
	return remote.Client{Auth: b, Profiles: b, Responses: b}
}

// Fail makes every subsequent call of op return err until cleared with a nil err.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults == nil {
		b.faults = make(map[string]error)
	}
	if err == nil {
		delete(b.faults, op)
		return
	}
	b.faults[op] = err
}

func (b *Backend) fault(op string) error {
	return b.faults[op]
}

func (b *Backend) CurrentSession() *remote.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	return copySession(b.current)
}

// ---- auth ----

func (b *Backend) GetSession(ctx context.Context) (*remote.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpGetSession); err != nil {
		return nil, err
	}

	if b.current.Expired(b.opts.Now()) {
		return nil, nil
	}
	return copySession(b.current), nil
}

func (b *Backend) OnAuthStateChange(fn remote.AuthListener) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	b.mu.Lock()

	if err := b.fault(OpSignIn); err != nil {
		b.mu.Unlock()
		return nil, err
	}

	acc, ok := b.accounts[email]
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		b.mu.Unlock()
		return nil, &remote.Error{Op: OpSignIn, Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials", Kind: remote.ErrInvalidCredentials}
	}
	if !acc.confirmed {
		b.mu.Unlock()
		return nil, &remote.Error{Op: OpSignIn, Status: 400, Code: "email_not_confirmed", Message: "Email not confirmed", Kind: remote.ErrEmailNotConfirmed}
	}

	s, err := b.issue(acc.user)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.current = s
	b.mu.Unlock()

	b.emit(remote.EventSignedIn, s)
	return copySession(s), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string, meta remote.SignUpMetadata) (remote.SignUpResult, error) {
	b.mu.Lock()

	if err := b.fault(OpSignUp); err != nil {
		b.mu.Unlock()
		return remote.SignUpResult{}, err
	}

	if b.opts.DisableSignup {
		b.mu.Unlock()
		return remote.SignUpResult{}, &remote.Error{Op: OpSignUp, Status: 403, Code: "signup_disabled", Message: "Signups not allowed for this instance", Kind: remote.ErrSignupDisabled}
	}

	if _, exists := b.accounts[email]; exists {
		b.mu.Unlock()
		return remote.SignUpResult{}, &remote.Error{Op: OpSignUp, Status: 422, Code: "user_already_exists", Message: "User already registered", Kind: remote.ErrAlreadyRegistered}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.opts.HashCost)
	if err != nil {
		b.mu.Unlock()
		return remote.SignUpResult{}, err
	}

	u := user.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: meta.Name,
		CreatedAt:   b.opts.Now(),
	}
	b.accounts[email] = &account{user: u, hash: hash, confirmed: !b.opts.ConfirmEmail}

	if b.opts.ConfirmEmail || b.opts.DeferSignUpSession {
		b.mu.Unlock()
		return remote.SignUpResult{User: &u}, nil
	}

	s, err := b.issue(u)
	if err != nil {
		b.mu.Unlock()
		return remote.SignUpResult{}, err
	}
	b.current = s
	b.mu.Unlock()

	b.emit(remote.EventSignedIn, s)
	return remote.SignUpResult{User: &u, Session: copySession(s)}, nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()

	if err := b.fault(OpSignOut); err != nil {
		b.mu.Unlock()
		return err
	}

	b.current = nil
	b.mu.Unlock()

	b.emit(remote.EventSignedOut, nil)
	return nil
}

// Confirm marks an account confirmed, like following the e-mail link.
func (b *Backend) Confirm(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acc, ok := b.accounts[email]; ok {
		acc.confirmed = true
	}
}

// RefreshSession re-issues the current session and notifies listeners.
func (b *Backend) RefreshSession() error {
	b.mu.Lock()
	if b.current == nil {
		b.mu.Unlock()
		return remote.ErrNotAuthenticated
	}

	s, err := b.issue(b.current.User)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.current = s
	b.mu.Unlock()

	b.emit(remote.EventTokenRefreshed, s)
	return nil
}

// issue mints a session the way the hosted service does: an HS256 access
// token carrying sub, email and user metadata.
func (b *Backend) issue(u user.User) (*remote.Session, error) {
	now := b.opts.Now()
	exp := now.Add(b.opts.TokenTTL)

	claims := jwt.MapClaims{
		"sub":           u.ID,
		"email":         u.Email,
		"role":          "authenticated",
		"user_metadata": map[string]any{"name": u.DisplayName},
		"iat":           now.Unix(),
		"exp":           exp.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(b.opts.Secret))
	if err != nil {
		return nil, err
	}

	return &remote.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    exp,
		User:         u,
	}, nil
}

func (b *Backend) emit(event remote.AuthEvent, s *remote.Session) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]remote.AuthListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event, copySession(s))
	}
}

func copySession(s *remote.Session) *remote.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
