package memory

import (
	"context"
	"sort"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/remote"
)

// caller returns the signed-in user and whether it is the administrator.
// Callers must hold b.mu.
func (b *Backend) caller() (user.User, bool, error) {
	if b.current.Expired(b.opts.Now()) {
		return user.User{}, false, remote.ErrNotAuthenticated
	}
	u := b.current.User
	return u, user.RoleFor(u.Email, b.opts.AdminEmail) == user.RoleAdmin, nil
}

func (b *Backend) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpGetProfile); err != nil {
		return nil, err
	}
	if _, _, err := b.caller(); err != nil {
		return nil, err
	}

	p, ok := b.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (b *Backend) UpsertProfile(ctx context.Context, p user.Profile) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpUpsertProfile); err != nil {
		return err
	}

	u, _, err := b.caller()
	if err != nil {
		return err
	}
	if p.ID != u.ID {
		return &remote.Error{Op: OpUpsertProfile, Status: 403, Code: "42501", Message: "new row violates row-level security policy for table \"profiles\"", Kind: remote.ErrPermissionDenied}
	}

	if existing, ok := b.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = b.opts.Now()
	}
	b.profiles[p.ID] = p
	return nil
}

func (b *Backend) GetByUser(ctx context.Context, userID string) (*survey.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpGetResponse); err != nil {
		return nil, err
	}

	u, admin, err := b.caller()
	if err != nil {
		return nil, err
	}
	if !admin && u.ID != userID {
		return nil, nil
	}

	var found *survey.Response
	for _, r := range b.responses {
		if r.UserID != userID {
			continue
		}
		if found != nil {
			return nil, remote.ErrMultipleRows
		}
		r := cloneResponse(r)
		found = &r
	}
	return found, nil
}

func (b *Backend) Upsert(ctx context.Context, r survey.Response) (survey.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpUpsert); err != nil {
		return survey.Response{}, err
	}

	u, _, err := b.caller()
	if err != nil {
		return survey.Response{}, err
	}
	if r.UserID != u.ID {
		return survey.Response{}, &remote.Error{Op: OpUpsert, Status: 403, Code: "42501", Message: "new row violates row-level security policy for table \"survey_responses\"", Kind: remote.ErrPermissionDenied}
	}

	for id, existing := range b.responses {
		if existing.UserID != r.UserID {
			continue
		}
		r.ID = id
		r.CreatedAt = existing.CreatedAt
		b.responses[id] = cloneResponse(r)
		return cloneResponse(r), nil
	}

	b.nextID++
	r.ID = b.nextID
	r.CreatedAt = b.opts.Now()
	b.responses[r.ID] = cloneResponse(r)
	return cloneResponse(r), nil
}

func (b *Backend) ListWithProfiles(ctx context.Context) ([]survey.ResponseWithProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpList); err != nil {
		return nil, err
	}

	u, admin, err := b.caller()
	if err != nil {
		return nil, err
	}

	out := make([]survey.ResponseWithProfile, 0, len(b.responses))
	for _, r := range b.responses {
		if !admin && r.UserID != u.ID {
			continue
		}
		row := survey.ResponseWithProfile{Response: cloneResponse(r)}
		if p, ok := b.profiles[r.UserID]; ok {
			row.Submitter = &survey.Submitter{Name: p.Name, Email: p.Email}
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fault(OpDelete); err != nil {
		return err
	}

	_, admin, err := b.caller()
	if err != nil {
		return err
	}
	if !admin {
		return &remote.Error{Op: OpDelete, Status: 403, Code: "42501", Message: "permission denied for delete on survey_responses", Kind: remote.ErrPermissionDenied}
	}

	if _, ok := b.responses[id]; !ok {
		return remote.ErrNotFound
	}
	delete(b.responses, id)
	return nil
}

// Count returns the number of stored survey rows regardless of policy.
func (b *Backend) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.responses)
}

func cloneResponse(r survey.Response) survey.Response {
	r.Q2 = append([]string(nil), r.Q2...)
	r.Q4 = append([]string(nil), r.Q4...)
	return r
}
