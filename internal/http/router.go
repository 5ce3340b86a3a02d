package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/surveyhub/internal/app"
	"github.com/geocoder89/surveyhub/internal/http/handlers"
	"github.com/geocoder89/surveyhub/internal/http/middlewares"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var errSessionLoading = errors.New("session is still being restored")

type RouterConfig struct {
	Env            string
	ServiceName    string
	AllowedOrigins []string
	// Ready backs /readyz, e.g. a Redis or Postgres ping.
	Ready func(ctx context.Context) error
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, a *app.App, prom *observability.Prom, cfg RouterConfig) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))

	ready := func(ctx context.Context) error {
		if a.Session.Snapshot().IsLoading {
			return errSessionLoading
		}
		if cfg.Ready != nil {
			return cfg.Ready(ctx)
		}
		return nil
	}

	h := handlers.NewHealthHandler(ready)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	guard := middlewares.NewSessionGuard(a.Session.Snapshot)
	authLimiter := middlewares.NewRateLimiter(10, time.Minute)
	submitLimiter := middlewares.NewRateLimiter(30, time.Minute)

	authHandler := handlers.NewAuthHandler(a.Auth, a.Session)
	surveyHandler := handlers.NewSurveyHandler(a, a.Questionnaire())
	adminHandler := handlers.NewAdminHandler(a.Stats, a)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(64 << 10))
	api.Use(middlewares.RequireJSON())

	api.GET("/session", authHandler.Session)
	api.GET("/questions", surveyHandler.Questions)

	authGroup := api.Group("/auth")
	authGroup.GET("", authHandler.FormState)
	authGroup.PUT("/mode", authHandler.SetMode)
	authGroup.POST("/signin", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignIn)
	authGroup.POST("/signup", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignUp)
	authGroup.POST("/submit", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Submit)
	authGroup.POST("/signout", authHandler.SignOut)

	surveyGroup := api.Group("/survey", guard.RequireSession())
	surveyGroup.GET("", surveyHandler.Get)
	surveyGroup.GET("/status", surveyHandler.Status)
	surveyGroup.PUT("/answers/:qid", surveyHandler.Select)
	surveyGroup.POST("/answers/:qid/toggle", surveyHandler.Toggle)
	surveyGroup.PUT("/answers/:qid/other", surveyHandler.Other)
	surveyGroup.PUT("/comment", surveyHandler.Comment)
	surveyGroup.POST("/edit", surveyHandler.BeginEdit)
	surveyGroup.POST("/cancel", surveyHandler.CancelEdit)
	surveyGroup.POST("/submit", submitLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), surveyHandler.Submit)

	adminGroup := api.Group("/admin", guard.RequireAdmin())
	adminGroup.GET("/stats", adminHandler.Stats)
	adminGroup.GET("/responses", adminHandler.ListResponses)
	adminGroup.DELETE("/responses/:id", adminHandler.DeleteResponse)

	return r
}
