package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/urbanscape/internal/api"
	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/config"
	"github.com/onnwee/urbanscape/internal/idempotency"
	"github.com/onnwee/urbanscape/internal/middleware"
)

type okChecker struct{}

func (okChecker) HealthCheck(_ context.Context) error { return nil }

// testApp assembles the real middleware chain around the health endpoints
// and a stub project-creation route, the same way main wires them.
func testApp(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	api.NewHealthHandlers(api.HealthHandlersConfig{DBChecker: okChecker{}}).Register(mux)
	mux.HandleFunc("POST /projects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"project_id":1}`)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return wrapMiddleware(cfg, logger, mux, chainDeps{
		metrics:    middleware.NewMetrics(),
		limitStore: middleware.NewInMemoryRateLimitStore(),
		idemRepo:   idempotency.NewInMemoryRepository(),
		validator:  auth.NewJWTService(cfg.JWTSecret),
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Port:      0,
		Env:       "test",
		JWTSecret: "test-secret",
	}
}

func TestChainHealthEndpoint(t *testing.T) {
	app := testApp(t, testConfig())

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id on the response")
	}
}

func TestChainEchoesCallerRequestID(t *testing.T) {
	app := testApp(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "corr-7")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if got := rec.Header().Get(middleware.RequestIDHeader); got != "corr-7" {
		t.Errorf("request id = %q, want corr-7", got)
	}
}

func TestChainAppliesRateLimitHeaders(t *testing.T) {
	app := testApp(t, testConfig())

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	limit := middleware.DefaultGlobalLimit()
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want %d", got, limit.RequestsPerWindow)
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining to be set")
	}
}

func TestChainRejectsInvalidBearerToken(t *testing.T) {
	app := testApp(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token = %d, want 401", rec.Code)
	}
}

func TestChainAcceptsValidBearerToken(t *testing.T) {
	cfg := testConfig()
	app := testApp(t, cfg)

	token, err := auth.NewJWTService(cfg.JWTSecret).GenerateToken(auth.User{ID: "planner-1"})
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("valid token = %d, want 200", rec.Code)
	}
}

func TestChainRequiresIdempotencyKeyOnProjectCreation(t *testing.T) {
	app := testApp(t, testConfig())

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /projects without key = %d, want 400", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error != "missing_idempotency_key" {
		t.Errorf("error code = %q, want missing_idempotency_key", body.Error)
	}
}

func TestChainReplaysProjectCreation(t *testing.T) {
	app := testApp(t, testConfig())

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{}`))
	req.Header.Set(middleware.IdempotencyKeyHeader, "retry-1")
	app.ServeHTTP(first, req)
	if first.Code != http.StatusCreated {
		t.Fatalf("first POST = %d, want 201", first.Code)
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{}`))
	req.Header.Set(middleware.IdempotencyKeyHeader, "retry-1")
	app.ServeHTTP(second, req)

	if second.Code != http.StatusCreated {
		t.Fatalf("replayed POST = %d, want 201", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replayed body = %q, want %q", second.Body.String(), first.Body.String())
	}
}

func TestChainHonorsCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"https://planner.example"}
	app := testApp(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/projects", nil)
	req.Header.Set("Origin", "https://planner.example")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://planner.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://attacker.example")
	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unlisted origin = %d, want 403", rec.Code)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	cfg := testConfig()
	server := newServer(cfg, testApp(t, cfg))

	if server.ReadTimeout == 0 || server.WriteTimeout == 0 || server.IdleTimeout == 0 {
		t.Error("server timeouts must be set")
	}

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()
	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
