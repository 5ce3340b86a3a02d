package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	var p *user.Profile

	err := s.asCaller(ctx, "profiles.get", func(tx pgx.Tx) error {
		var row user.Profile
		err := tx.QueryRow(ctx,
			`SELECT id, name, email, created_at
			 FROM public.profiles
			 WHERE id = $1`,
			userID,
		).Scan(&row.ID, &row.Name, &row.Email, &row.CreatedAt)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		p = &row
		return nil
	})

	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile) error {
	return s.asCaller(ctx, "profiles.upsert", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO public.profiles (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			name = EXCLUDED.name
	`, p.ID, p.Email, p.Name)
		return err
	})
}
