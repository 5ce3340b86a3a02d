// Package lifecycle runs one user's survey form: loading the stored
// response, editing answers and submitting through the remote upsert.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
)

type State string

const (
	StateLoading       State = "LOADING"
	StateNotSubmitted  State = "NOT_SUBMITTED"
	StateSubmittedView State = "SUBMITTED_VIEW"
	StateSubmittedEdit State = "SUBMITTED_EDIT"
)

const (
	MsgSubmitted      = "설문이 성공적으로 제출되었습니다."
	MsgSubmitFailed   = "제출 중 오류가 발생했습니다: "
	MsgNetworkFailure = "네트워크 상태를 확인해주세요."
	MsgReadOnly       = "이미 제출된 설문입니다. 수정은 관리자에게 문의하세요."
)

var (
	ErrReadOnly          = errors.New("survey is read-only in this state")
	ErrSubmitInProgress  = errors.New("submit already in progress")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrUnknownOption     = errors.New("unknown option")
	ErrClosed            = errors.New("survey controller closed")
)

// SubmitError is a failed remote submit. Message is shown to the user.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return e.Message
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

type Snapshot struct {
	State      State            `json:"state"`
	Answers    survey.Answers   `json:"answers"`
	Other      survey.OtherText `json:"other"`
	Submitting bool             `json:"submitting"`
	Error      string           `json:"error,omitempty"`
	Notice     string           `json:"notice,omitempty"`
}

type Config struct {
	Questionnaire survey.Questionnaire
	Responses     remote.ResponseStore
	UserID        string
	Logger        *slog.Logger
	Prom          *observability.Prom
}

type Controller struct {
	q         survey.Questionnaire
	responses remote.ResponseStore
	userID    string
	log       *slog.Logger
	prom      *observability.Prom

	mu         sync.Mutex
	state      State
	answers    survey.Answers
	other      survey.OtherText
	saved      survey.Answers
	savedOther survey.OtherText
	submitting bool
	errMsg     string
	notice     string
	closed     bool
}

func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = observability.Discard()
	}

	return &Controller{
		q:         cfg.Questionnaire,
		responses: cfg.Responses,
		userID:    cfg.UserID,
		log:       log.With("user_id", cfg.UserID),
		prom:      cfg.Prom,
		state:     StateLoading,
		answers:   blank(),
	}
}

func blank() survey.Answers {
	return survey.Answers{Q2: []string{}, Q4: []string{}}
}

func (c *Controller) UserID() string {
	return c.userID
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		State:      c.state,
		Answers:    c.answers.Clone(),
		Other:      c.other,
		Submitting: c.submitting,
		Error:      c.errMsg,
		Notice:     c.notice,
	}
}

// Load fetches the user's stored response. Finding one puts the form in
// read-only view; a failed fetch is logged and leaves a blank form.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	c.state = StateLoading
	c.errMsg = ""
	c.notice = ""
	c.mu.Unlock()

	row, err := c.responses.GetByUser(ctx, c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err != nil {
		if errors.Is(err, remote.ErrMultipleRows) {
			c.log.Error("more than one survey row for user", "err", err)
		} else {
			c.log.Error("fetch survey response failed", "err", err)
		}
		c.state = StateNotSubmitted
		return err
	}

	if row == nil {
		c.state = StateNotSubmitted
		c.answers = blank()
		c.other = survey.OtherText{}
		return nil
	}

	c.applySavedLocked(*row)
	c.notice = MsgReadOnly
	return nil
}

func (c *Controller) applySavedLocked(row survey.Response) {
	a, o := c.q.Decode(row)
	c.saved = a
	c.savedOther = o
	c.answers = a.Clone()
	c.other = o
	c.state = StateSubmittedView
}

// HasResponded reports whether the user already has a stored response.
func (c *Controller) HasResponded(ctx context.Context) (bool, error) {
	row, err := c.responses.GetByUser(ctx, c.userID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// editLocked gates every answer mutation. Callers must hold c.mu.
func (c *Controller) editLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.submitting:
		return ErrSubmitInProgress
	case c.state == StateNotSubmitted || c.state == StateSubmittedEdit:
		return nil
	default:
		return ErrReadOnly
	}
}

func (c *Controller) question(id string, kind survey.Kind) (survey.Question, error) {
	q, ok := c.q.Question(id)
	if !ok || q.Kind != kind {
		return survey.Question{}, ErrUnknownQuestion
	}
	return q, nil
}

func (c *Controller) SelectSingle(questionID, value string) error {
	q, err := c.question(questionID, survey.KindSingle)
	if err != nil {
		return err
	}
	if !q.HasOption(value) {
		return ErrUnknownOption
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editLocked(); err != nil {
		return err
	}

	switch questionID {
	case "q1":
		c.answers.Q1 = value
	case "q3":
		c.answers.Q3 = value
	}
	return nil
}

// ToggleMulti flips value in a multi-select question. Deselecting the other
// option also clears its free text.
func (c *Controller) ToggleMulti(questionID, value string) error {
	q, err := c.question(questionID, survey.KindMulti)
	if err != nil {
		return err
	}
	if !q.HasOption(value) {
		return ErrUnknownOption
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editLocked(); err != nil {
		return err
	}

	tags, other := c.multiLocked(questionID)

	if i := slices.Index(*tags, value); i >= 0 {
		*tags = slices.Delete(slices.Clone(*tags), i, i+1)
		if value == c.q.OtherOption {
			*other = ""
		}
		return nil
	}

	*tags = append(slices.Clone(*tags), value)
	return nil
}

func (c *Controller) SetOtherText(questionID, text string) error {
	if _, err := c.question(questionID, survey.KindMulti); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editLocked(); err != nil {
		return err
	}

	_, other := c.multiLocked(questionID)
	*other = text
	return nil
}

func (c *Controller) SetComment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.editLocked(); err != nil {
		return err
	}

	c.answers.Q5 = text
	return nil
}

func (c *Controller) multiLocked(questionID string) (*[]string, *string) {
	if questionID == "q4" {
		return &c.answers.Q4, &c.other.Q4
	}
	return &c.answers.Q2, &c.other.Q2
}

func (c *Controller) BeginEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateSubmittedView {
		return ErrInvalidTransition
	}

	c.state = StateSubmittedEdit
	c.errMsg = ""
	c.notice = ""
	return nil
}

// CancelEdit drops unsaved edits and returns to the stored answers.
func (c *Controller) CancelEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.submitting {
		return ErrSubmitInProgress
	}
	if c.state != StateSubmittedEdit {
		return ErrInvalidTransition
	}

	c.answers = c.saved.Clone()
	c.other = c.savedOther
	c.state = StateSubmittedView
	c.errMsg = ""
	return nil
}

// Submit validates and upserts the answers. Validation failures never reach
// the network. On a remote failure the answers and state are left as they
// were so the user can retry.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if c.state != StateNotSubmitted && c.state != StateSubmittedEdit {
		c.mu.Unlock()
		return ErrReadOnly
	}

	if err := c.q.Validate(c.answers); err != nil {
		var verr *survey.ValidationError
		if errors.As(err, &verr) {
			c.errMsg = verr.Message
		}
		c.mu.Unlock()
		c.count("invalid")
		return err
	}

	row := c.q.Encode(c.userID, c.answers, c.other)
	c.submitting = true
	c.errMsg = ""
	c.mu.Unlock()

	saved, err := c.responses.Upsert(ctx, row)

	c.mu.Lock()
	c.submitting = false

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if err != nil {
		reason := err.Error()
		var rerr *remote.Error
		if errors.As(err, &rerr) && rerr.Message != "" {
			reason = rerr.Message
		}
		if reason == "" {
			reason = MsgNetworkFailure
		}
		c.errMsg = MsgSubmitFailed + reason
		msg := c.errMsg
		c.mu.Unlock()

		c.log.Error("survey submit failed", "err", err)
		c.count("error")
		return &SubmitError{Message: msg, Err: err}
	}

	c.applySavedLocked(saved)
	c.notice = MsgSubmitted
	c.mu.Unlock()

	c.log.Info("survey submitted", "response_id", saved.ID)
	c.count("ok")
	return nil
}

// Close detaches the controller; results of calls still in flight are
// dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

func (c *Controller) count(result string) {
	if c.prom != nil {
		c.prom.SubmissionsTotal.WithLabelValues(result).Inc()
	}
}
