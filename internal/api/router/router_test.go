package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xonelabs/xonebot/internal/http/handlers"
)

func TestHealthz(t *testing.T) {
	r := New(&Config{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsMountedWhenConfigured(t *testing.T) {
	metricsStub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r := New(&Config{MetricsHandler: metricsStub})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := New(&Config{
		Numbers:    handlers.NewNumbersHandler(nil, nil, nil),
		AdminToken: "secret",
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/numbers/search?country=%2B371", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/numbers/search?country=%2B371", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesDisabledWithoutToken(t *testing.T) {
	r := New(&Config{Numbers: handlers.NewNumbersHandler(nil, nil, nil)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sessions/s1/reset", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
