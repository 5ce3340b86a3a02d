package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/surveyhub/internal/app"
	"github.com/geocoder89/surveyhub/internal/config"
	"github.com/geocoder89/surveyhub/internal/domain/survey"
	httpx "github.com/geocoder89/surveyhub/internal/http"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/geocoder89/surveyhub/internal/remote/memory"
	"github.com/geocoder89/surveyhub/internal/remote/postgres"
	"github.com/geocoder89/surveyhub/internal/remote/rest"
	"github.com/geocoder89/surveyhub/internal/sessionstore"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "surveyhub"

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: serviceName,
			Environment: cfg.Env,
			Endpoint:    cfg.OTelEndpoint,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			log.Error("tracing disabled", "err", err)
		} else {
			defer func() {
				sctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	q, err := survey.LoadFile(cfg.QuestionsFile)
	if err != nil {
		log.Error("load questionnaire failed", "err", err)
		os.Exit(1)
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	client, ready, cleanup, err := buildBackend(ctx, cfg, log, prom)
	if err != nil {
		log.Error("backend setup failed", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer cleanup()

	a := app.New(app.Options{
		Client:        client,
		Questionnaire: q,
		AdminEmail:    cfg.AdminEmail,
		Logger:        log,
		Prom:          prom,
	})

	// restore runs in the background; guarded routes answer 503 until it ends
	go func() {
		sctx, cancel := config.WithTimeout(15 * time.Second)
		defer cancel()

		if err := a.Start(sctx); err != nil {
			log.Warn("session restore failed, continuing signed out", "err", err)
		}
	}()

	serviceLabel := ""
	if cfg.OTelEnabled {
		serviceLabel = serviceName
	}

	router := httpx.NewRouter(log, a, prom, httpx.RouterConfig{
		Env:            cfg.Env,
		ServiceName:    serviceLabel,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		Ready:          ready,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "backend", cfg.Backend, "data_transport", cfg.DataTransport)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
		a.Close()
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// buildBackend connects the hosted-service adapters selected by cfg. ready
// probes the persistence the client depends on.
func buildBackend(ctx context.Context, cfg config.Config, log *slog.Logger, prom *observability.Prom) (client remote.Client, ready func(context.Context) error, cleanup func(), err error) {
	if cfg.Backend == config.BackendMemory {
		log.Warn("using the in-memory backend; data is lost on exit")
		b := memory.New(memory.Options{AdminEmail: cfg.AdminEmail})
		return b.Client(), nil, func() {}, nil
	}

	var closers []func()
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store sessionstore.Store = sessionstore.NewMemory()
	var probes []func(context.Context) error

	if cfg.RedisAddr != "" {
		rs := sessionstore.NewRedis(sessionstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.SessionStorageKey,
		})
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		perr := rs.Ping(pctx)
		cancel()
		if perr != nil {
			_ = rs.Close()
			return remote.Client{}, nil, cleanup, fmt.Errorf("redis ping: %w", perr)
		}
		closers = append(closers, func() { _ = rs.Close() })
		probes = append(probes, rs.Ping)
		store = rs
	}

	rc, err := rest.New(rest.Config{
		URL:           cfg.BackendURL,
		AnonKey:       cfg.AnonKey,
		Store:         store,
		Logger:        log.With("component", "rest"),
		Prom:          prom,
		RefreshMargin: cfg.RefreshMargin,
	})
	if err != nil {
		cleanup()
		return remote.Client{}, nil, func() {}, err
	}

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	go rc.AutoRefresh(refreshCtx)
	closers = append(closers, cancelRefresh)

	client = rc.Client()

	if cfg.DataTransport == config.TransportPostgres {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			cleanup()
			return remote.Client{}, nil, func() {}, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		probes = append(probes, pool.Ping)

		pg := postgres.NewStore(pool, rc, prom)
		client.Profiles = pg
		client.Responses = pg
	}

	ready = func(ctx context.Context) error {
		for _, p := range probes {
			if err := p(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return client, ready, cleanup, nil
}
