package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/domain/user"
	"github.com/geocoder89/surveyhub/internal/remote"
)

const (
	opGetProfile    = "profiles.get"
	opUpsertProfile = "profiles.upsert"
	opGetResponse   = "responses.get_by_user"
	opUpsert        = "responses.upsert"
	opList          = "responses.list"
	opDelete        = "responses.delete"
)

const responseColumns = "id,user_id,q1,q2,q3,q4,q5,created_at"

// authed runs a table request under the current session's access token so
// the service's row-level policy sees the caller.
func (c *Client) authed(ctx context.Context, r request, out any) error {
	c.mu.Lock()
	s := copySession(c.session)
	c.mu.Unlock()

	if s == nil {
		return &remote.Error{Op: r.op, Status: http.StatusUnauthorized, Message: "no session", Kind: remote.ErrNotAuthenticated}
	}
	r.bearer = s.AccessToken
	return c.do(ctx, r, out)
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	var rows []user.Profile
	err := c.authed(ctx, request{
		op:     opGetProfile,
		method: http.MethodGet,
		path:   "/rest/v1/profiles",
		query: url.Values{
			"select": {"id,name,email,created_at"},
			"id":     {"eq." + userID},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, remote.ErrMultipleRows
	}
}

func (c *Client) UpsertProfile(ctx context.Context, p user.Profile) error {
	return c.authed(ctx, request{
		op:     opUpsertProfile,
		method: http.MethodPost,
		path:   "/rest/v1/profiles",
		query:  url.Values{"on_conflict": {"id"}},
		header: http.Header{"Prefer": {"resolution=merge-duplicates,return=minimal"}},
		body: map[string]string{
			"id":    p.ID,
			"email": p.Email,
			"name":  p.Name,
		},
	}, nil)
}

func (c *Client) GetByUser(ctx context.Context, userID string) (*survey.Response, error) {
	var rows []survey.Response
	err := c.authed(ctx, request{
		op:     opGetResponse,
		method: http.MethodGet,
		path:   "/rest/v1/survey_responses",
		query: url.Values{
			"select":  {responseColumns},
			"user_id": {"eq." + userID},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, remote.ErrMultipleRows
	}
}

type responsePayload struct {
	UserID string   `json:"user_id"`
	Q1     string   `json:"q1"`
	Q2     []string `json:"q2"`
	Q3     string   `json:"q3"`
	Q4     []string `json:"q4"`
	Q5     string   `json:"q5"`
}

// Upsert relies on the unique user_id constraint: a second submit from the
// same user merges into the existing row.
func (c *Client) Upsert(ctx context.Context, r survey.Response) (survey.Response, error) {
	var rows []survey.Response
	err := c.authed(ctx, request{
		op:     opUpsert,
		method: http.MethodPost,
		path:   "/rest/v1/survey_responses",
		query: url.Values{
			"on_conflict": {"user_id"},
			"select":      {responseColumns},
		},
		header: http.Header{"Prefer": {"resolution=merge-duplicates,return=representation"}},
		body: responsePayload{
			UserID: r.UserID,
			Q1:     r.Q1,
			Q2:     r.Q2,
			Q3:     r.Q3,
			Q4:     r.Q4,
			Q5:     r.Q5,
		},
	}, &rows)
	if err != nil {
		return survey.Response{}, err
	}
	if len(rows) != 1 {
		return survey.Response{}, unexpected(opUpsert, "expected one row back, got %d", len(rows))
	}
	return rows[0], nil
}

func (c *Client) ListWithProfiles(ctx context.Context) ([]survey.ResponseWithProfile, error) {
	var rows []survey.ResponseWithProfile
	err := c.authed(ctx, request{
		op:     opList,
		method: http.MethodGet,
		path:   "/rest/v1/survey_responses",
		query: url.Values{
			"select": {responseColumns + ",profiles(name,email)"},
			"order":  {"created_at.desc,id.desc"},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []survey.ResponseWithProfile{}
	}
	return rows, nil
}

// Delete asks for the deleted rows back: the service reports success for a
// delete its policy filtered to nothing, so zero rows means not removed.
func (c *Client) Delete(ctx context.Context, id int64) error {
	var rows []struct {
		ID int64 `json:"id"`
	}
	err := c.authed(ctx, request{
		op:     opDelete,
		method: http.MethodDelete,
		path:   "/rest/v1/survey_responses",
		query: url.Values{
			"id":     {"eq." + strconv.FormatInt(id, 10)},
			"select": {"id"},
		},
		header: http.Header{"Prefer": {"return=representation"}},
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return remote.ErrNotFound
	}
	return nil
}
