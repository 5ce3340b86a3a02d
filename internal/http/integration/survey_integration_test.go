package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/geocoder89/surveyhub/internal/app"
	"github.com/geocoder89/surveyhub/internal/domain/survey"
	apphttp "github.com/geocoder89/surveyhub/internal/http"
	"github.com/geocoder89/surveyhub/internal/lifecycle"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote/rest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// The test runs against a real hosted project with deploy/policies.sql
// applied and e-mail confirmation switched off.
func setupHostedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	url := os.Getenv("TEST_BACKEND_URL")
	key := os.Getenv("TEST_BACKEND_ANON_KEY")
	if url == "" || key == "" {
		t.Skip("TEST_BACKEND_URL / TEST_BACKEND_ANON_KEY not set")
	}

	rc, err := rest.New(rest.Config{URL: url, AnonKey: key})
	if err != nil {
		t.Fatalf("rest.New: %v", err)
	}

	a := app.New(app.Options{
		Client:        rc.Client(),
		Questionnaire: survey.Default(),
		AdminEmail:    "u61646d696e@survey-system.com",
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Close)

	return apphttp.NewRouter(observability.Discard(), a, nil, apphttp.RouterConfig{Env: "test"})
}

func call(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHostedSignUpSubmitAndResubmit(t *testing.T) {
	r := setupHostedRouter(t)

	name := "it-" + uuid.NewString()[:8]

	w := call(t, r, http.MethodPost, "/api/auth/signup", map[string]string{"name": name, "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}

	steps := []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, "/api/survey/answers/q1", map[string]string{"value": "보통"}},
		{http.MethodPost, "/api/survey/answers/q2/toggle", map[string]string{"value": "도전"}},
		{http.MethodPut, "/api/survey/answers/q3", map[string]string{"value": "새로운 기술 도전"}},
		{http.MethodPost, "/api/survey/answers/q4/toggle", map[string]string{"value": "기타"}},
		{http.MethodPut, "/api/survey/answers/q4/other", map[string]string{"text": "integration"}},
		{http.MethodPost, "/api/survey/submit", nil},
		{http.MethodPost, "/api/survey/edit", nil},
		{http.MethodPut, "/api/survey/answers/q1", map[string]string{"value": "낮음"}},
		{http.MethodPost, "/api/survey/submit", nil},
	}

	for _, s := range steps {
		if w := call(t, r, s.method, s.path, s.body); w.Code != http.StatusOK {
			t.Fatalf("%s %s: %d %s", s.method, s.path, w.Code, w.Body.String())
		}
	}

	w = call(t, r, http.MethodGet, "/api/survey", nil)
	var snap lifecycle.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != lifecycle.StateSubmittedView || snap.Answers.Q1 != "낮음" || snap.Other.Q4 != "integration" {
		t.Fatalf("unexpected stored survey %+v", snap)
	}

	// a regular user never sees the admin list
	if w := call(t, r, http.MethodGet, "/api/admin/responses", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
