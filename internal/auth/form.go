// Package auth drives the name + password login screen: it validates the
// input, maps the name to its synthetic identity and runs sign-in or
// sign-up against the hosted service.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/identity"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/go-playground/validator/v10"
)

type Mode string

const (
	ModeSignIn Mode = "signin"
	ModeSignUp Mode = "signup"
)

const (
	MsgNameRequired        = "이름을 입력해주세요."
	MsgPasswordTooShort    = "비밀번호는 6자리 이상이어야 합니다."
	MsgAlreadyRegistered   = "이미 등록된 이름입니다. 로그인 모드에서 로그인을 진행해주세요."
	MsgSignupDisabled      = "Supabase 설정에서 이메일 가입 기능이 비활성화되어 있습니다."
	MsgEmailNotConfirmed   = "이메일 인증이 필요합니다."
	MsgInvalidCredentials  = "이름 또는 비밀번호가 일치하지 않습니다."
	MsgSignedUpNotSignedIn = "가입은 완료되었으나 로그인이 되지 않았습니다."
	MsgGeneric             = "인증 과정에서 오류가 발생했습니다."
)

var ErrBusy = errors.New("authentication already in progress")

// FormError is shown on the login screen. Err is the underlying cause, if
// any.
type FormError struct {
	Field   string
	Message string
	Err     error
}

func (e *FormError) Error() string {
	return e.Message
}

func (e *FormError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

type credentials struct {
	Name     string `validate:"required"`
	Password string `validate:"required,min=6"`
}

// Validate checks the raw input before anything is sent.
func Validate(name, password string) error {
	err := validate.Struct(credentials{Name: strings.TrimSpace(name), Password: password})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Field() == "Name" {
			return &FormError{Field: "name", Message: MsgNameRequired}
		}
		return &FormError{Field: "password", Message: MsgPasswordTooShort}
	}
	return err
}

// UserMessage turns an auth failure into the text shown to the user.
func UserMessage(err error) string {
	var ferr *FormError
	if errors.As(err, &ferr) {
		return ferr.Message
	}

	switch {
	case errors.Is(err, remote.ErrEmailNotConfirmed):
		return MsgEmailNotConfirmed
	case errors.Is(err, remote.ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, remote.ErrAlreadyRegistered):
		return MsgAlreadyRegistered
	case errors.Is(err, remote.ErrSignupDisabled):
		return MsgSignupDisabled
	}

	var rerr *remote.Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return MsgGeneric
}

type State struct {
	Mode           Mode   `json:"mode"`
	Error          string `json:"error,omitempty"`
	SignupDisabled bool   `json:"signupDisabled"`
	Loading        bool   `json:"loading"`
}

type Config struct {
	Auth     remote.Auth
	Profiles remote.ProfileStore
	Logger   *slog.Logger
}

type Form struct {
	auth     remote.Auth
	profiles remote.ProfileStore
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

func NewForm(cfg Config) *Form {
	log := cfg.Logger
	if log == nil {
		log = observability.Discard()
	}

	return &Form{
		auth:     cfg.Auth,
		profiles: cfg.Profiles,
		log:      log,
		state:    State{Mode: ModeSignIn},
	}
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

func (f *Form) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m != ModeSignUp {
		m = ModeSignIn
	}
	f.state.Mode = m
	f.state.Error = ""
}

// Submit runs sign-in or sign-up depending on the current mode.
func (f *Form) Submit(ctx context.Context, name, password string) error {
	if f.State().Mode == ModeSignUp {
		return f.SignUp(ctx, name, password)
	}
	return f.SignIn(ctx, name, password)
}

func (f *Form) SignIn(ctx context.Context, name, password string) (err error) {
	id, err := f.begin(name, password)
	if err != nil {
		return err
	}
	defer func() { f.end(err) }()

	if _, err := f.auth.SignInWithPassword(ctx, id.SyntheticID, string(id.Secret)); err != nil {
		f.log.Info("sign in failed", "err", err)
		return &FormError{Message: UserMessage(err), Err: err}
	}
	return nil
}

// SignUp creates the account with the trimmed name as metadata, then makes
// sure the user ends up signed in and has a profile row. When the service
// returns no session a plain sign-in is attempted.
func (f *Form) SignUp(ctx context.Context, name, password string) (err error) {
	id, err := f.begin(name, password)
	if err != nil {
		return err
	}
	defer func() { f.end(err) }()

	res, err := f.auth.SignUp(ctx, id.SyntheticID, string(id.Secret), remote.SignUpMetadata{Name: id.RawName})
	if err != nil {
		f.log.Info("sign up failed", "err", err)

		switch {
		case errors.Is(err, remote.ErrAlreadyRegistered):
			f.mu.Lock()
			f.state.Mode = ModeSignIn
			f.mu.Unlock()
		case errors.Is(err, remote.ErrSignupDisabled):
			f.mu.Lock()
			f.state.SignupDisabled = true
			f.mu.Unlock()
		}
		return &FormError{Message: UserMessage(err), Err: err}
	}

	if res.Session == nil {
		if _, err := f.auth.SignInWithPassword(ctx, id.SyntheticID, string(id.Secret)); err != nil {
			f.log.Warn("sign in after sign up failed", "err", err)
			f.mu.Lock()
			f.state.Mode = ModeSignIn
			f.mu.Unlock()
			return &FormError{Message: MsgSignedUpNotSignedIn, Err: err}
		}
	}

	if res.User != nil && f.profiles != nil {
		p := user.Profile{ID: res.User.ID, Email: id.SyntheticID, Name: id.RawName}
		if err := f.profiles.UpsertProfile(ctx, p); err != nil {
			// the session manager falls back to the signup metadata
			f.log.Warn("profile upsert after sign up failed", "user_id", p.ID, "err", err)
		}
	}
	return nil
}

func (f *Form) begin(name, password string) (identity.Identity, error) {
	if err := Validate(name, password); err != nil {
		f.mu.Lock()
		if !f.state.Loading {
			f.state.Error = UserMessage(err)
			f.state.SignupDisabled = false
		}
		f.mu.Unlock()
		return identity.Identity{}, err
	}

	id, err := identity.New(name, password)
	if err != nil {
		return identity.Identity{}, &FormError{Field: "name", Message: MsgNameRequired, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Loading {
		return identity.Identity{}, ErrBusy
	}
	f.state.Error = ""
	f.state.SignupDisabled = false
	f.state.Loading = true
	return id, nil
}

func (f *Form) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Loading = false
	if err != nil {
		f.state.Error = UserMessage(err)
	}
}
