package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type requestLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

// loggedRequest runs one request through the Logging middleware and returns
// the parsed log entry.
func loggedRequest(t *testing.T, h http.HandlerFunc, decorate func(*http.Request) *http.Request) requestLogEntry {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := Logging(logger)(h)

	req := httptest.NewRequest(http.MethodGet, "/scenarios/7/services", nil)
	if decorate != nil {
		req = decorate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry requestLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLoggingRecordsRequestFields(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"services":[]}`))
	}, nil)

	if entry.Msg != "request completed" {
		t.Errorf("msg = %q, want \"request completed\"", entry.Msg)
	}
	if entry.Method != "GET" || entry.Path != "/scenarios/7/services" {
		t.Errorf("method/path = %s %s, want GET /scenarios/7/services", entry.Method, entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", entry.Status)
	}
	if entry.Size != len(`{"services":[]}`) {
		t.Errorf("size = %d, want %d", entry.Size, len(`{"services":[]}`))
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
}

func TestLoggingLevelsFollowStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tc := range cases {
		entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}, nil)
		if entry.Level != tc.level {
			t.Errorf("status %d: level = %q, want %q", tc.status, entry.Level, tc.level)
		}
	}
}

func TestLoggingIncludesRequestAndUserIDs(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, func(r *http.Request) *http.Request {
		ctx := context.WithValue(r.Context(), requestIDKey{}, "req-abc")
		ctx = SetUserID(ctx, "planner-1")
		return r.WithContext(ctx)
	})

	if entry.RequestID != "req-abc" {
		t.Errorf("request_id = %q, want req-abc", entry.RequestID)
	}
	if entry.UserID != "planner-1" {
		t.Errorf("user_id = %q, want planner-1", entry.UserID)
	}
}

func TestLoggingPicksUpHandlerErrorCode(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "scenario_not_found"))
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	if entry.ErrorCode != "scenario_not_found" {
		t.Errorf("error_code = %q, want scenario_not_found", entry.ErrorCode)
	}
}

func TestLoggingOmitsErrorCodeOnSuccess(t *testing.T) {
	entry := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "should_not_appear"))
		w.WriteHeader(http.StatusOK)
	}, nil)

	if entry.ErrorCode != "" {
		t.Errorf("error_code = %q, want empty on 2xx", entry.ErrorCode)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	if NewLogger("production") == nil {
		t.Error("production logger is nil")
	}
	if NewLogger("development") == nil {
		t.Error("development logger is nil")
	}
}
