// Package moderation backs the admin response list: loading rows with their
// submitter, searching by name and deleting individual responses.
package moderation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
)

const (
	MsgDeleted      = "데이터가 성공적으로 삭제되었습니다."
	MsgDeleteFailed = "삭제 중 오류가 발생했습니다."
)

var (
	ErrDeleteInProgress = errors.New("delete already in progress for this response")
	ErrUnknownResponse  = errors.New("response is not in the loaded list")
)

// DeleteError is a failed remote delete. Message is shown to the user.
type DeleteError struct {
	ID      int64
	Message string
	Err     error
}

func (e *DeleteError) Error() string {
	return e.Message
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

type Snapshot struct {
	Rows     []survey.ResponseWithProfile `json:"rows"`
	Total    int                          `json:"total"`
	LatestAt *time.Time                   `json:"latestAt,omitempty"`
	Filter   string                       `json:"filter"`
	Deleting []int64                      `json:"deleting"`
	Error    string                       `json:"error,omitempty"`
	Notice   string                       `json:"notice,omitempty"`
}

type Controller struct {
	responses remote.ResponseStore
	log       *slog.Logger
	prom      *observability.Prom

	mu       sync.Mutex
	rows     []survey.ResponseWithProfile
	filter   string
	deleting map[int64]bool
	errMsg   string
	notice   string
}

func New(responses remote.ResponseStore, log *slog.Logger, prom *observability.Prom) *Controller {
	if log == nil {
		log = observability.Discard()
	}
	return &Controller{
		responses: responses,
		log:       log,
		prom:      prom,
		deleting:  make(map[int64]bool),
	}
}

// Load replaces the list with the rows visible to the caller, newest first.
// On failure the previous list is kept.
func (c *Controller) Load(ctx context.Context) error {
	rows, err := c.responses.ListWithProfiles(ctx)
	if err != nil {
		c.log.Warn("load responses failed", "err", err)
		return err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	c.mu.Lock()
	c.rows = rows
	c.errMsg = ""
	c.mu.Unlock()
	return nil
}

func (c *Controller) SetFilter(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter = term
}

// Visible returns the rows whose submitter name contains the filter,
// ignoring case. An empty filter shows every row, including rows whose
// submitter has no profile.
func (c *Controller) Visible() []survey.ResponseWithProfile {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.visibleLocked()
}

func (c *Controller) visibleLocked() []survey.ResponseWithProfile {
	term := strings.ToLower(strings.TrimSpace(c.filter))

	out := make([]survey.ResponseWithProfile, 0, len(c.rows))
	for _, r := range c.rows {
		if term != "" {
			if r.Submitter == nil || !strings.Contains(strings.ToLower(r.Submitter.Name), term) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Rows:     c.visibleLocked(),
		Total:    len(c.rows),
		Filter:   c.filter,
		Deleting: make([]int64, 0, len(c.deleting)),
		Error:    c.errMsg,
		Notice:   c.notice,
	}
	if len(c.rows) > 0 {
		t := c.rows[0].CreatedAt
		snap.LatestAt = &t
	}
	for id := range c.deleting {
		snap.Deleting = append(snap.Deleting, id)
	}
	sort.Slice(snap.Deleting, func(i, j int) bool { return snap.Deleting[i] < snap.Deleting[j] })
	return snap
}

// Delete removes a response. The row leaves the local list only after the
// remote confirms; a failure keeps it. Deletes of different ids run
// independently, a second delete of an id already in flight is rejected.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.deleting[id] {
		c.mu.Unlock()
		return ErrDeleteInProgress
	}
	if c.index(id) < 0 {
		c.mu.Unlock()
		return ErrUnknownResponse
	}
	c.deleting[id] = true
	c.notice = ""
	c.mu.Unlock()

	err := c.responses.Delete(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.deleting, id)

	if err != nil {
		c.log.Error("delete response failed", "response_id", id, "err", err)
		c.errMsg = MsgDeleteFailed
		c.count("error")
		return &DeleteError{ID: id, Message: MsgDeleteFailed, Err: err}
	}

	if i := c.index(id); i >= 0 {
		c.rows = append(c.rows[:i:i], c.rows[i+1:]...)
	}
	c.errMsg = ""
	c.notice = MsgDeleted
	c.count("ok")
	c.log.Info("response deleted", "response_id", id)
	return nil
}

func (c *Controller) index(id int64) int {
	for i, r := range c.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) count(result string) {
	if c.prom != nil {
		c.prom.DeletionsTotal.WithLabelValues(result).Inc()
	}
}
