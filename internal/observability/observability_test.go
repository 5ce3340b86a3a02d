package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/geocoder89/surveyhub/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("prod", &buf).With("access_token", "eyJhbGciOi")

	log.Info("sign in", "password", "hunter22", slog.Group("session", "refresh_token", "r-1", "user_id", "u-1"))

	out := buf.String()
	for _, leaked := range []string{"hunter22", "eyJhbGciOi", "r-1"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("secret %q leaked: %s", leaked, out)
		}
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "sign in" {
		t.Fatalf("unexpected record %v", rec)
	}
	if sess, ok := rec["session"].(map[string]any); !ok || sess["user_id"] != "u-1" {
		t.Fatalf("non-secret attrs should survive: %v", rec)
	}
}

func TestLoggerLevelByEnv(t *testing.T) {
	var buf bytes.Buffer

	newLogger("prod", &buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be off outside dev")
	}

	newLogger("dev", &buf).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be on in dev")
	}
}

func TestObserveRemote(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	denied := &remote.Error{Op: "responses.delete", Status: 403, Kind: remote.ErrPermissionDenied}

	if err := p.ObserveRemote("responses.delete", func() error { return denied }); !errors.Is(err, remote.ErrPermissionDenied) {
		t.Fatalf("error should pass through, got %v", err)
	}
	_ = p.ObserveRemote("responses.list", func() error { return nil })

	if got := testutil.ToFloat64(p.RemoteErrorsTotal.WithLabelValues("responses.delete", ClassifyRemoteErr(denied))); got != 1 {
		t.Fatalf("expected one classified error, got %v", got)
	}

	var nilProm *Prom
	called := false
	if err := nilProm.ObserveRemote("x", func() error { called = true; return nil }); err != nil || !called {
		t.Fatalf("nil Prom should still run fn")
	}
}

func TestTracerSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		got := TracerConfig{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.Contains(got, tt.want) || !strings.HasPrefix(got, "ParentBased") {
			t.Fatalf("ratio %v: expected %s under ParentBased, got %s", tt.ratio, tt.want, got)
		}
	}
}
