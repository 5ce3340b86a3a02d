package middlewares

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "If-None-Match", "X-Request-Id"}
	corsExpose  = []string{"ETag", "Retry-After", "X-Request-Id"}
)

// CORSMiddleware lets the UI shell, served from another origin during
// development, call the local API. Preflights from unknown origins get 403.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")
		known := origin != "" && slices.Contains(allowedOrigins, origin)

		if known {
			h := ctx.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", strings.Join(corsExpose, ","))
			h.Add("Vary", "Origin")
		}

		if ctx.Request.Method != http.MethodOptions {
			ctx.Next()
			return
		}

		if origin != "" && !known {
			abortError(ctx, http.StatusForbidden, "origin_not_allowed", "Origin not allowed")
			return
		}
		if known {
			h := ctx.Writer.Header()
			h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ","))
			h.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ","))
			h.Set("Access-Control-Max-Age", "600")
		}
		ctx.AbortWithStatus(http.StatusNoContent)
	}
}
