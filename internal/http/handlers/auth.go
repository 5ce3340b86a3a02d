package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/surveyhub/internal/auth"
	"github.com/geocoder89/surveyhub/internal/config"
	"github.com/geocoder89/surveyhub/internal/identity"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/geocoder89/surveyhub/internal/session"
	"github.com/gin-gonic/gin"
)

type LoginForm interface {
	State() auth.State
	SetMode(m auth.Mode)
	SignIn(ctx context.Context, name, password string) error
	SignUp(ctx context.Context, name, password string) error
	Submit(ctx context.Context, name, password string) error
}

type SessionControl interface {
	Snapshot() session.Snapshot
	SignOut(ctx context.Context) error
}

type AuthHandler struct {
	form    LoginForm
	session SessionControl
}

func NewAuthHandler(form LoginForm, sess SessionControl) *AuthHandler {
	return &AuthHandler{form: form, session: sess}
}

// Credentials are checked by the login form itself so the user sees its
// messages rather than generic binding errors.
type CredentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type ModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=signin signup"`
}

type sessionView struct {
	session.Snapshot
	DisplayName string `json:"displayName,omitempty"`
	IsAdmin     bool   `json:"isAdmin"`
}

func viewOf(s session.Snapshot) sessionView {
	v := sessionView{Snapshot: s, IsAdmin: s.IsAdmin()}

	switch {
	case s.Profile != nil && s.Profile.Name != "":
		v.DisplayName = s.Profile.Name
	case s.User != nil:
		if name, err := identity.DisplayName(s.User.Email); err == nil {
			v.DisplayName = name
		}
	}
	return v
}

func (h *AuthHandler) Session(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, viewOf(h.session.Snapshot()))
}

func (h *AuthHandler) FormState(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.form.State())
}

func (h *AuthHandler) SetMode(ctx *gin.Context) {
	var req ModeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	h.form.SetMode(auth.Mode(req.Mode))
	ctx.JSON(http.StatusOK, h.form.State())
}

func (h *AuthHandler) SignIn(ctx *gin.Context) {
	h.submit(ctx, auth.ModeSignIn)
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	h.submit(ctx, auth.ModeSignUp)
}

// Submit signs in or signs up depending on the form's current mode.
func (h *AuthHandler) Submit(ctx *gin.Context) {
	h.submit(ctx, "")
}

func (h *AuthHandler) submit(ctx *gin.Context, mode auth.Mode) {
	var req CredentialsRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	var err error
	switch mode {
	case auth.ModeSignUp:
		err = h.form.SignUp(cctx, req.Name, req.Password)
	case auth.ModeSignIn:
		err = h.form.SignIn(cctx, req.Name, req.Password)
	default:
		err = h.form.Submit(cctx, req.Name, req.Password)
	}

	if err != nil {
		h.respondAuthError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, viewOf(h.session.Snapshot()))
}

func (h *AuthHandler) respondAuthError(ctx *gin.Context, err error) {
	msg := auth.UserMessage(err)
	details := gin.H{"form": h.form.State()}

	var ferr *auth.FormError
	isForm := errors.As(err, &ferr)

	switch {
	case errors.Is(err, auth.ErrBusy):
		RespondError(ctx, http.StatusConflict, "auth_in_progress", "Authentication already in progress", details)
	case isForm && ferr.Field != "":
		details["field"] = ferr.Field
		RespondUnprocessable(ctx, "invalid_input", msg, details)
	case errors.Is(err, remote.ErrInvalidCredentials):
		RespondError(ctx, http.StatusUnauthorized, "invalid_credentials", msg, details)
	case errors.Is(err, remote.ErrAlreadyRegistered):
		RespondError(ctx, http.StatusConflict, "already_registered", msg, details)
	case errors.Is(err, remote.ErrSignupDisabled):
		RespondError(ctx, http.StatusForbidden, "signup_disabled", msg, details)
	case errors.Is(err, remote.ErrEmailNotConfirmed):
		RespondError(ctx, http.StatusForbidden, "email_not_confirmed", msg, details)
	default:
		RespondError(ctx, http.StatusBadGateway, "auth_failed", msg, details)
	}
}

// SignOut always ends anonymous locally; a remote failure is reported but
// does not keep the user signed in.
func (h *AuthHandler) SignOut(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	err := h.session.SignOut(cctx)

	body := gin.H{"session": viewOf(h.session.Snapshot())}
	if err != nil {
		body["warning"] = "remote sign out failed"
	}
	ctx.JSON(http.StatusOK, body)
}
