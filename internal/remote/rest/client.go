// Package rest talks to the hosted service over its public HTTP API: the
// auth endpoints under /auth/v1 and the table endpoints under /rest/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/geocoder89/surveyhub/internal/sessionstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	URL     string
	AnonKey string

	HTTPClient *http.Client
	Store      sessionstore.Store
	Logger     *slog.Logger
	Prom       *observability.Prom

	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin time.Duration
	// RefreshInterval is how often AutoRefresh checks the session.
	RefreshInterval time.Duration
	Now             func() time.Time
}

type Client struct {
	base    *url.URL
	anonKey string
	http    *http.Client
	store   sessionstore.Store
	log     *slog.Logger
	prom    *observability.Prom
	tracer  trace.Tracer

	margin   time.Duration
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	session   *remote.Session
	restored  bool
	listeners map[int]remote.AuthListener
	nextSub   int
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("backend anon key is required")
	}

	c := &Client{
		base:      base,
		anonKey:   cfg.AnonKey,
		http:      cfg.HTTPClient,
		store:     cfg.Store,
		log:       cfg.Logger,
		prom:      cfg.Prom,
		tracer:    observability.Tracer(),
		margin:    cfg.RefreshMargin,
		interval:  cfg.RefreshInterval,
		now:       cfg.Now,
		listeners: make(map[int]remote.AuthListener),
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.store == nil {
		c.store = sessionstore.NewMemory()
	}
	if c.log == nil {
		c.log = observability.Discard()
	}
	if c.margin <= 0 {
		c.margin = time.Minute
	}
	if c.interval <= 0 {
		c.interval = 10 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Client exposes the adapter through the remote capability interfaces.
func (c *Client) Client() remote.Client {
	return remote.Client{Auth: c, Profiles: c, Responses: c}
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
	// bearer overrides the Authorization token; empty means the anon key.
	bearer string
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses become *remote.Error.
func (c *Client) do(ctx context.Context, r request, out any) error {
	return c.prom.ObserveRemote(r.op, func() error {
		ctx, span := c.tracer.Start(ctx, r.op, trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		err := c.send(ctx, r, out)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	})
}

func (c *Client) send(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path = c.base.Path + r.path
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}

	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	bearer := r.bearer
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("http.request.method", r.method),
		attribute.String("url.path", u.Path),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", r.op, err)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(r.op, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode body: %w", r.op, err)
	}
	return nil
}
