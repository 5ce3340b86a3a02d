package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements remote.ProfileStore and remote.ResponseStore.
type Store struct {
	pool     *pgxpool.Pool
	sessions remote.SessionSource
	prom     *observability.Prom
}

func NewStore(pool *pgxpool.Pool, sessions remote.SessionSource, prom *observability.Prom) *Store {
	return &Store{
		pool:     pool,
		sessions: sessions,
		prom:     prom,
	}
}

func (s *Store) observe(op string, fn func() error) error {
	if s.prom != nil {
		return s.prom.ObserveRemote(op, fn)
	}
	return fn()
}

type jwtClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// asCaller runs fn in a transaction scoped to the signed-in user.
func (s *Store) asCaller(ctx context.Context, op string, fn func(tx pgx.Tx) error) (err error) {
	sess := s.sessions.CurrentSession()
	if sess == nil {
		return &remote.Error{Op: op, Status: 401, Message: "no session", Kind: remote.ErrNotAuthenticated}
	}

	claims, err := json.Marshal(jwtClaims{Sub: sess.User.ID, Email: sess.User.Email, Role: "authenticated"})
	if err != nil {
		return fmt.Errorf("%s: encode claims: %w", op, err)
	}

	return s.observe(op, func() error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}

		defer func() {
			_ = tx.Rollback(ctx)
		}()

		if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SET LOCAL ROLE authenticated`); err != nil {
			return err
		}

		if err := fn(tx); err != nil {
			return mapErr(op, err)
		}
		return tx.Commit(ctx)
	})
}

func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e := &remote.Error{Op: op, Code: pgErr.Code, Message: pgErr.Message}
		switch pgErr.Code {
		case "42501":
			e.Status = 403
			e.Kind = remote.ErrPermissionDenied
		case "23505":
			e.Status = 409
		default:
			e.Status = 500
		}
		return e
	}
	return err
}
