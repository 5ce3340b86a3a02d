package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/jackc/pgx/v5/pgconn"
)

func (p *Prom) ObserveRemote(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	if p == nil {
		return err
	}

	status := "ok"

	if err != nil {
		status = "error"
		p.RemoteErrorsTotal.WithLabelValues(op, ClassifyRemoteErr(err)).Inc()
	}
	p.RemoteCallDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func ClassifyRemoteErr(err error) string {
	switch {
	case errors.Is(err, remote.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, remote.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, remote.ErrNotFound):
		return "not_found"
	case errors.Is(err, remote.ErrMultipleRows):
		return "integrity"
	case errors.Is(err, remote.ErrInvalidCredentials),
		errors.Is(err, remote.ErrAlreadyRegistered),
		errors.Is(err, remote.ErrSignupDisabled),
		errors.Is(err, remote.ErrEmailNotConfirmed):
		return "auth"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "42501":
			return "permission_denied"
		case "40001":
			return "serialization_failure"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) && remoteErr.Status >= 500 {
		return "server"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "unknown"
	}
}
