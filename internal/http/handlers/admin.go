package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/surveyhub/internal/app"
	"github.com/geocoder89/surveyhub/internal/config"
	"github.com/geocoder89/surveyhub/internal/moderation"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/geocoder89/surveyhub/internal/stats"
	"github.com/gin-gonic/gin"
)

type StatsLoader interface {
	Load(ctx context.Context) (stats.Summary, error)
}

type ModerationProvider interface {
	Moderation() (*moderation.Controller, error)
}

type AdminHandler struct {
	stats StatsLoader
	mods  ModerationProvider
}

func NewAdminHandler(s StatsLoader, mods ModerationProvider) *AdminHandler {
	return &AdminHandler{stats: s, mods: mods}
}

// Stats serves the dashboard summary. A failed fetch still returns 200 with
// an empty, degraded summary so the dashboard renders.
func (h *AdminHandler) Stats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	sum, _ := h.stats.Load(cctx)
	if sum.Degraded {
		ctx.JSON(http.StatusOK, sum)
		return
	}
	RespondJSONWithETag(ctx, http.StatusOK, sum)
}

// ListResponses reloads the list and applies the optional ?q= name filter.
func (h *AdminHandler) ListResponses(ctx *gin.Context) {
	mod, ok := h.moderation(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := mod.Load(cctx); err != nil {
		if errors.Is(err, remote.ErrPermissionDenied) {
			RespondForbidden(ctx, "Admin role required")
			return
		}
		RespondUpstream(ctx, "list_failed", "Could not load responses")
		return
	}

	mod.SetFilter(ctx.Query("q"))
	ctx.JSON(http.StatusOK, mod.Snapshot())
}

func (h *AdminHandler) DeleteResponse(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid response id", gin.H{"id": ctx.Param("id")})
		return
	}

	mod, ok := h.moderation(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	err = mod.Delete(cctx, id)
	if errors.Is(err, moderation.ErrUnknownResponse) {
		// the list may be stale or never loaded in this process
		if lerr := mod.Load(cctx); lerr == nil {
			err = mod.Delete(cctx, id)
		}
	}

	var derr *moderation.DeleteError
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, mod.Snapshot())
	case errors.Is(err, moderation.ErrDeleteInProgress):
		RespondConflict(ctx, "delete_in_progress", "Delete already in progress")
	case errors.Is(err, moderation.ErrUnknownResponse):
		RespondNotFound(ctx, "Response not found")
	case errors.As(err, &derr) && errors.Is(err, remote.ErrNotFound):
		RespondNotFound(ctx, derr.Message)
	case errors.As(err, &derr) && errors.Is(err, remote.ErrPermissionDenied):
		RespondForbidden(ctx, derr.Message)
	case errors.As(err, &derr):
		RespondUpstream(ctx, "delete_failed", derr.Message)
	default:
		RespondInternal(ctx, moderation.MsgDeleteFailed)
	}
}

func (h *AdminHandler) moderation(ctx *gin.Context) (*moderation.Controller, bool) {
	mod, err := h.mods.Moderation()
	switch {
	case err == nil:
		return mod, true
	case errors.Is(err, app.ErrNotSignedIn):
		RespondUnauthorized(ctx, "unauthorized", "Sign in required")
	case errors.Is(err, app.ErrNotAdmin):
		RespondForbidden(ctx, "Admin role required")
	default:
		RespondInternal(ctx, "Could not open the response list")
	}
	return nil, false
}
