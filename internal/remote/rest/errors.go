package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/geocoder89/surveyhub/internal/remote"
)

// errorBody covers both error shapes the service returns: the auth API
// ({error_code, msg} or the older {error, error_description}) and the table
// API ({code, message, details, hint}).
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             any    `json:"code"`
	Message          string `json:"message"`
}

func decodeError(op string, status int, raw []byte) *remote.Error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	e := &remote.Error{Op: op, Status: status}

	switch {
	case body.ErrorCode != "":
		e.Code = body.ErrorCode
	case body.Error != "":
		e.Code = body.Error
	default:
		if s, ok := body.Code.(string); ok {
			e.Code = s
		}
	}

	for _, m := range []string{body.Msg, body.ErrorDescription, body.Message} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	e.Kind = classify(op, status, e.Code, e.Message)
	return e
}

// classify maps a service failure to a remote sentinel. Auth failures are
// recognised by code first and message text second, since older service
// versions only send text.
func classify(op string, status int, code, message string) error {
	msg := strings.ToLower(message)

	switch {
	case code == "user_already_exists" || strings.Contains(msg, "already registered"):
		return remote.ErrAlreadyRegistered
	case code == "signup_disabled" || code == "email_provider_disabled" ||
		strings.Contains(msg, "signups not allowed") ||
		(op == opSignUp && (status == http.StatusForbidden || strings.Contains(msg, "disabled"))):
		return remote.ErrSignupDisabled
	case code == "email_not_confirmed" || strings.Contains(msg, "not confirmed"):
		return remote.ErrEmailNotConfirmed
	case code == "invalid_credentials" || strings.Contains(msg, "invalid login credentials"):
		return remote.ErrInvalidCredentials
	case op == opRefresh && (code == "invalid_grant" || code == "refresh_token_not_found" || code == "refresh_token_already_used"):
		return remote.ErrNotAuthenticated
	case code == "invalid_grant":
		return remote.ErrInvalidCredentials
	case code == "42501" || status == http.StatusForbidden:
		return remote.ErrPermissionDenied
	case status == http.StatusUnauthorized:
		return remote.ErrNotAuthenticated
	case status == http.StatusNotFound:
		return remote.ErrNotFound
	}
	return nil
}

func unexpected(op string, format string, args ...any) error {
	return fmt.Errorf("%s: %s", op, fmt.Sprintf(format, args...))
}
