package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/metrics"
)

func TestHealth(t *testing.T) {
	h := RegisterRoutes(zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := RegisterRoutes(zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMetricsExposesBotCollectors(t *testing.T) {
	metrics.UpdatesTotal.WithLabelValues("message").Inc()

	h := RegisterRoutes(zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clientbot_updates_total") {
		t.Fatal("bot metrics not exposed")
	}
}
