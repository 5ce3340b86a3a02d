package middlewares

import (
	"net/http"

	"github.com/geocoder89/surveyhub/internal/session"
	"github.com/gin-gonic/gin"
)

// SessionGuard gates routes on the client's current session. While the
// session is still being restored nothing is decided: callers get 503 and
// retry instead of being bounced as anonymous.
type SessionGuard struct {
	snapshot func() session.Snapshot
}

func NewSessionGuard(snapshot func() session.Snapshot) *SessionGuard {
	return &SessionGuard{snapshot: snapshot}
}

func (g *SessionGuard) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.check(c); ok {
			c.Next()
		}
	}
}

func (g *SessionGuard) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := g.check(c)
		if !ok {
			return
		}

		if !snap.IsAdmin() {
			abortError(c, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		c.Next()
	}
}

func (g *SessionGuard) check(c *gin.Context) (session.Snapshot, bool) {
	snap := g.snapshot()

	if snap.IsLoading || snap.State == session.StateLoading || snap.State == session.StateUninitialized {
		c.Header("Retry-After", "1")
		abortError(c, http.StatusServiceUnavailable, "session_loading", "Session is still being restored")
		return snap, false
	}

	if snap.State != session.StateAuthenticated || snap.User == nil {
		abortError(c, http.StatusUnauthorized, "unauthorized", "Sign in required")
		return snap, false
	}

	c.Set(CtxUserID, snap.User.ID)
	return snap, true
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
