package postgres

import (
	"context"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/jackc/pgx/v5"
)

const responseColumns = `id, user_id, q1, q2, q3, q4, coalesce(q5, ''), created_at`

func scanResponse(row pgx.Row, r *survey.Response) error {
	return row.Scan(&r.ID, &r.UserID, &r.Q1, &r.Q2, &r.Q3, &r.Q4, &r.Q5, &r.CreatedAt)
}

// GetByUser reads at most two rows so a broken uniqueness constraint shows
// up as ErrMultipleRows instead of silently picking one.
func (s *Store) GetByUser(ctx context.Context, userID string) (*survey.Response, error) {
	var found []survey.Response

	err := s.asCaller(ctx, "responses.get_by_user", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+responseColumns+`
			 FROM public.survey_responses
			 WHERE user_id = $1
			 LIMIT 2`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r survey.Response
			if err := scanResponse(rows, &r); err != nil {
				return err
			}
			found = append(found, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, remote.ErrMultipleRows
	}
}

func (s *Store) Upsert(ctx context.Context, r survey.Response) (survey.Response, error) {
	var out survey.Response

	err := s.asCaller(ctx, "responses.upsert", func(tx pgx.Tx) error {
		return scanResponse(tx.QueryRow(ctx, `
		INSERT INTO public.survey_responses (user_id, q1, q2, q3, q4, q5)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET q1 = EXCLUDED.q1,
			q2 = EXCLUDED.q2,
			q3 = EXCLUDED.q3,
			q4 = EXCLUDED.q4,
			q5 = EXCLUDED.q5
		RETURNING `+responseColumns,
			r.UserID, r.Q1, nonNil(r.Q2), r.Q3, nonNil(r.Q4), r.Q5,
		), &out)
	})
	if err != nil {
		return survey.Response{}, err
	}
	return out, nil
}

func (s *Store) ListWithProfiles(ctx context.Context) ([]survey.ResponseWithProfile, error) {
	out := make([]survey.ResponseWithProfile, 0)

	err := s.asCaller(ctx, "responses.list", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
		SELECT r.id, r.user_id, r.q1, r.q2, r.q3, r.q4, coalesce(r.q5, ''), r.created_at,
			p.name, p.email
		FROM public.survey_responses r
		LEFT JOIN public.profiles p ON p.id = r.user_id
		ORDER BY r.created_at DESC, r.id DESC
	`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				row   survey.ResponseWithProfile
				name  *string
				email *string
			)
			err := rows.Scan(&row.ID, &row.UserID, &row.Q1, &row.Q2, &row.Q3, &row.Q4, &row.Q5, &row.CreatedAt, &name, &email)
			if err != nil {
				return err
			}
			if name != nil || email != nil {
				row.Submitter = &survey.Submitter{Name: deref(name), Email: deref(email)}
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete reports ErrNotFound when the policy or a missing id left nothing
// to remove.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.asCaller(ctx, "responses.delete", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM public.survey_responses WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return remote.ErrNotFound
		}
		return nil
	})
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
