package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/urbanscape/internal/auth"
)

func newAuthTestHandler(t *testing.T) (http.Handler, *auth.JWTService) {
	t.Helper()
	svc := auth.NewJWTService("test-secret-for-auth-middleware!")
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		if user != nil {
			w.Header().Set("X-Test-User", user.ID)
		}
		w.WriteHeader(http.StatusOK)
	})
	return Auth(svc)(inner), svc
}

func TestAuth_NoHeader(t *testing.T) {
	handler, _ := newAuthTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Test-User") != "" {
		t.Error("anonymous request must not carry a user")
	}
}

func TestAuth_ValidToken(t *testing.T) {
	handler, svc := newAuthTestHandler(t)
	token, err := svc.GenerateToken(auth.User{ID: "alice"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Test-User"); got != "alice" {
		t.Errorf("user = %q, want alice", got)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	handler, _ := newAuthTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_WrongScheme(t *testing.T) {
	handler, _ := newAuthTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
