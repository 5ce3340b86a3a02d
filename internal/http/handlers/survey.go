package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/surveyhub/internal/app"
	"github.com/geocoder89/surveyhub/internal/config"
	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

// SurveyProvider hands out the signed-in user's form controller.
type SurveyProvider interface {
	Survey(ctx context.Context) (*lifecycle.Controller, error)
}

type SurveyHandler struct {
	surveys SurveyProvider
	q       survey.Questionnaire
}

func NewSurveyHandler(surveys SurveyProvider, q survey.Questionnaire) *SurveyHandler {
	return &SurveyHandler{surveys: surveys, q: q}
}

type ValueRequest struct {
	Value string `json:"value" binding:"required"`
}

type TextRequest struct {
	Text string `json:"text" binding:"max=4000"`
}

func (h *SurveyHandler) Questions(ctx *gin.Context) {
	RespondJSONWithETag(ctx, http.StatusOK, h.q)
}

func (h *SurveyHandler) controller(ctx *gin.Context) (*lifecycle.Controller, bool) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	c, err := h.surveys.Survey(cctx)
	if err != nil {
		respondSurveyError(ctx, err)
		return nil, false
	}
	return c, true
}

func (h *SurveyHandler) Get(ctx *gin.Context) {
	c, ok := h.controller(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, c.Snapshot())
}

// Status answers the landing-page question: has this user responded?
func (h *SurveyHandler) Status(ctx *gin.Context) {
	c, ok := h.controller(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	responded, err := c.HasResponded(cctx)
	if err != nil {
		RespondUpstream(ctx, "status_unavailable", lifecycle.MsgNetworkFailure)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"hasResponded": responded})
}

func (h *SurveyHandler) Select(ctx *gin.Context) {
	var req ValueRequest
	if !BindJSON(ctx, &req) {
		return
	}
	h.mutate(ctx, func(c *lifecycle.Controller) error {
		return c.SelectSingle(ctx.Param("qid"), req.Value)
	})
}

func (h *SurveyHandler) Toggle(ctx *gin.Context) {
	var req ValueRequest
	if !BindJSON(ctx, &req) {
		return
	}
	h.mutate(ctx, func(c *lifecycle.Controller) error {
		return c.ToggleMulti(ctx.Param("qid"), req.Value)
	})
}

func (h *SurveyHandler) Other(ctx *gin.Context) {
	var req TextRequest
	if !BindJSON(ctx, &req) {
		return
	}
	h.mutate(ctx, func(c *lifecycle.Controller) error {
		return c.SetOtherText(ctx.Param("qid"), req.Text)
	})
}

func (h *SurveyHandler) Comment(ctx *gin.Context) {
	var req TextRequest
	if !BindJSON(ctx, &req) {
		return
	}
	h.mutate(ctx, func(c *lifecycle.Controller) error {
		return c.SetComment(req.Text)
	})
}

func (h *SurveyHandler) BeginEdit(ctx *gin.Context) {
	h.mutate(ctx, (*lifecycle.Controller).BeginEdit)
}

func (h *SurveyHandler) CancelEdit(ctx *gin.Context) {
	h.mutate(ctx, (*lifecycle.Controller).CancelEdit)
}

// LandingPath is where the UI goes after a successful submit.
const LandingPath = "/"

type SubmitResponse struct {
	lifecycle.Snapshot
	Next string `json:"next"`
}

func (h *SurveyHandler) Submit(ctx *gin.Context) {
	c, ok := h.controller(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := c.Submit(cctx); err != nil {
		respondSurveyError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, SubmitResponse{Snapshot: c.Snapshot(), Next: LandingPath})
}

func (h *SurveyHandler) mutate(ctx *gin.Context, fn func(c *lifecycle.Controller) error) {
	c, ok := h.controller(ctx)
	if !ok {
		return
	}

	if err := fn(c); err != nil {
		respondSurveyError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, c.Snapshot())
}

func respondSurveyError(ctx *gin.Context, err error) {
	var verr *survey.ValidationError
	var serr *lifecycle.SubmitError

	switch {
	case errors.Is(err, app.ErrNotSignedIn):
		RespondUnauthorized(ctx, "unauthorized", "Sign in required")
	case errors.As(err, &verr):
		RespondUnprocessable(ctx, "incomplete_answers", verr.Message, gin.H{"questions": verr.Fields})
	case errors.As(err, &serr):
		RespondUpstream(ctx, "submit_failed", serr.Message)
	case errors.Is(err, lifecycle.ErrReadOnly):
		RespondConflict(ctx, "read_only", lifecycle.MsgReadOnly)
	case errors.Is(err, lifecycle.ErrSubmitInProgress):
		RespondConflict(ctx, "submit_in_progress", "A submit is already in progress")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		RespondConflict(ctx, "invalid_transition", "Not allowed in the current state")
	case errors.Is(err, lifecycle.ErrUnknownQuestion):
		RespondNotFound(ctx, "Unknown question")
	case errors.Is(err, lifecycle.ErrUnknownOption):
		RespondBadRequest(ctx, "Unknown option", nil)
	case errors.Is(err, lifecycle.ErrClosed):
		RespondConflict(ctx, "session_changed", "The signed-in user changed; reload the survey")
	default:
		RespondInternal(ctx, "Could not process the survey request")
	}
}
