package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/breadworks/bakeops/internal/adapter/httpserver"
	"github.com/breadworks/bakeops/internal/adapter/repo/memory"
	"github.com/breadworks/bakeops/internal/config"
)

func TestParseOrigins(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"  ,  ", []string{"*"}},
	}
	for _, c := range cases {
		got := ParseOrigins(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("len mismatch for %q: %v vs %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("mismatch idx %d: %v vs %v", i, got, c.want)
			}
		}
	}
}

func testRouter() http.Handler {
	cfg := config.Config{
		JWTSecret:       "router-test-signing-secret-0123456789",
		JWTTokenTTL:     time.Hour,
		RateLimitPerMin: 100,
		RequestTimeout:  5 * time.Second,
		AllowedOrigins:  "*",
	}
	srv := httpserver.NewServer(cfg, memory.NewStore())
	return BuildRouter(cfg, srv)
}

func TestRouterHealthz(t *testing.T) {
	h := testRouter()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	h := testRouter()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
}

func TestRouterUnauthenticatedAPI(t *testing.T) {
	h := testRouter()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/inventory", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
