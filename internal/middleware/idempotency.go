package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/urbanscape/internal/idempotency"
)

// IdempotencyKeyHeader names the client-supplied retry token.
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotencyKeyContextKey struct{}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey returns the idempotency key from context, or "".
func GetIdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyContextKey{}).(string)
	return key
}

// replayWriter tees the response body and status so a successful response
// can be stored for replay on retries.
type replayWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	wrote  bool
}

func (w *replayWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *replayWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func writeIdempotencyError(w http.ResponseWriter, r *http.Request, code, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.WriteString(w, `{"error":"`+code+`","message":"`+message+`"}`)
}

// IdempotencyMiddleware requires an Idempotency-Key header on POSTs to the
// given routes and replays the stored response when a key is seen again.
// Only 2xx responses are cached; failures may be retried with the same key.
func IdempotencyMiddleware(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !routes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				writeIdempotencyError(w, r, "missing_idempotency_key",
					"Idempotency-Key header is required for this request")
				return
			}
			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeIdempotencyError(w, r, code, message)
				return
			}

			r = r.WithContext(SetIdempotencyKey(r.Context(), key))

			cached, err := repo.Get(key)
			switch {
			case err == nil:
				slog.InfoContext(r.Context(), "replaying idempotent response",
					"key", key, "status", cached.ResponseStatus)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(cached.ResponseStatus)
				_, _ = io.WriteString(w, cached.ResponseBody)
				return
			case err != idempotency.ErrKeyNotFound:
				// Lookup failure degrades to a plain request rather than
				// blocking it.
				slog.ErrorContext(r.Context(), "idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			rw := &replayWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.status < 200 || rw.status >= 300 {
				return
			}
			rec := &idempotency.Record{
				Key:            key,
				Method:         r.Method,
				Route:          r.URL.Path,
				ResponseStatus: rw.status,
				ResponseBody:   rw.body.String(),
			}
			if err := repo.Store(rec); err != nil {
				// Response already sent; the retry will simply re-execute.
				slog.ErrorContext(r.Context(), "storing idempotency record failed", "key", key, "error", err)
			}
		})
	}
}
