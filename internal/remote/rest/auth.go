package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/golang-jwt/jwt/v5"
)

const (
	opSignIn  = "auth.sign_in"
	opSignUp  = "auth.sign_up"
	opSignOut = "auth.sign_out"
	opRefresh = "auth.refresh"
)

type userBody struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u userBody) toUser() user.User {
	return user.User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.UserMetadata.Name,
		CreatedAt:   u.CreatedAt,
	}
}

// tokenBody is the session payload of the token and signup endpoints. When
// signup needs confirmation the endpoint returns only the user object, which
// decodes into the embedded fields.
type tokenBody struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	User         *userBody `json:"user"`

	userBody
}

type accessClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// sessionFrom builds a session from a token response. Missing expiry or user
// fields are filled from the access token claims; the signature is the
// service's business and is not checked here.
func (c *Client) sessionFrom(op string, body tokenBody) (*remote.Session, error) {
	if body.AccessToken == "" {
		return nil, unexpected(op, "response carries no access token")
	}

	s := &remote.Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}
	if body.User != nil {
		s.User = body.User.toUser()
	}

	switch {
	case body.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	case body.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	if s.ExpiresAt.IsZero() || s.User.ID == "" {
		var claims accessClaims
		if _, _, err := jwt.NewParser().ParseUnverified(body.AccessToken, &claims); err != nil {
			return nil, unexpected(op, "decode access token: %v", err)
		}
		if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
		if s.User.ID == "" {
			s.User = user.User{ID: claims.Subject, Email: claims.Email, DisplayName: claims.UserMetadata.Name}
		}
	}
	return s, nil
}

func (c *Client) CurrentSession() *remote.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return copySession(c.session)
}

// GetSession returns the live session, restoring it from the store on first
// use and refreshing it when it is about to expire. A refresh token the
// service rejects clears the stored session.
func (c *Client) GetSession(ctx context.Context) (*remote.Session, error) {
	c.mu.Lock()
	s := copySession(c.session)
	restored := c.restored
	c.mu.Unlock()

	if !restored {
		stored, err := c.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if !c.restored {
			c.restored = true
			c.session = stored
		}
		s = copySession(c.session)
		c.mu.Unlock()
	}

	if s == nil {
		return nil, nil
	}
	if s.ExpiresAt.IsZero() || c.now().Add(c.margin).Before(s.ExpiresAt) {
		return s, nil
	}

	refreshed, err := c.refresh(ctx, s.RefreshToken)
	if errors.Is(err, remote.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (c *Client) OnAuthStateChange(fn remote.AuthListener) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	var body tokenBody
	err := c.do(ctx, request{
		op:     opSignIn,
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &body)
	if err != nil {
		return nil, err
	}

	s, err := c.sessionFrom(opSignIn, body)
	if err != nil {
		return nil, err
	}
	c.setSession(ctx, s, remote.EventSignedIn)
	return copySession(s), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta remote.SignUpMetadata) (remote.SignUpResult, error) {
	var body tokenBody
	err := c.do(ctx, request{
		op:     opSignUp,
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     meta,
		},
	}, &body)
	if err != nil {
		return remote.SignUpResult{}, err
	}

	if body.AccessToken == "" {
		u := body.userBody.toUser()
		if body.User != nil {
			u = body.User.toUser()
		}
		return remote.SignUpResult{User: &u}, nil
	}

	s, err := c.sessionFrom(opSignUp, body)
	if err != nil {
		return remote.SignUpResult{}, err
	}
	c.setSession(ctx, s, remote.EventSignedIn)

	u := s.User
	return remote.SignUpResult{User: &u, Session: copySession(s)}, nil
}

// SignOut revokes the session remotely. The local session is dropped and
// listeners are told either way; the remote error is still returned.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := copySession(c.session)
	c.mu.Unlock()

	var err error
	if s != nil {
		err = c.do(ctx, request{
			op:     opSignOut,
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			bearer: s.AccessToken,
		}, nil)
		if errors.Is(err, remote.ErrNotAuthenticated) {
			err = nil
		}
	}

	c.setSession(ctx, nil, remote.EventSignedOut)
	return err
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*remote.Session, error) {
	var body tokenBody
	err := c.do(ctx, request{
		op:     opRefresh,
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &body)

	if errors.Is(err, remote.ErrNotAuthenticated) {
		c.log.Info("refresh token rejected, signing out")
		c.setSessionIf(ctx, refreshToken, nil, remote.EventSignedOut)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s, err := c.sessionFrom(opRefresh, body)
	if err != nil {
		return nil, err
	}
	if !c.setSessionIf(ctx, refreshToken, s, remote.EventTokenRefreshed) {
		// signed out or replaced while the request was in flight
		return c.CurrentSession(), nil
	}
	return copySession(s), nil
}

func (c *Client) setSession(ctx context.Context, s *remote.Session, event remote.AuthEvent) {
	c.mu.Lock()
	c.session = copySession(s)
	c.restored = true
	c.mu.Unlock()

	c.persist(ctx, s)
	c.emit(event, s)
}

// setSessionIf applies s only if the current session still uses the given
// refresh token.
func (c *Client) setSessionIf(ctx context.Context, refreshToken string, s *remote.Session, event remote.AuthEvent) bool {
	c.mu.Lock()
	if c.session == nil || c.session.RefreshToken != refreshToken {
		c.mu.Unlock()
		return false
	}
	c.session = copySession(s)
	c.mu.Unlock()

	c.persist(ctx, s)
	c.emit(event, s)
	return true
}

func (c *Client) persist(ctx context.Context, s *remote.Session) {
	var err error
	if s == nil {
		err = c.store.Clear(ctx)
	} else {
		err = c.store.Save(ctx, s)
	}
	if err != nil {
		c.log.Error("persist session failed", "err", err)
	}
}

func (c *Client) emit(event remote.AuthEvent, s *remote.Session) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]remote.AuthListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

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
