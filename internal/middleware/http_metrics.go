package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticPaths has the routes that carry no dynamic segment and may appear
// verbatim as metric labels.
var staticPaths = map[string]bool{
	"/":         true,
	"/projects": true,
	"/health":   true,
	"/ready":    true,
	"/metrics":  true,
}

// normalizePath rewrites dynamic path segments to route patterns, keeping
// the label cardinality of path-based metrics bounded. Unknown paths pass
// through unchanged so new routes surface instead of disappearing.
func normalizePath(path string) string {
	if staticPaths[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/projects/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return "/projects/{id}"
		case len(parts) == 2:
			switch parts[1] {
			case "image", "image_url", "base_scenario":
				return "/projects/{id}/" + parts[1]
			}
		}
	}

	if rest, ok := strings.CutPrefix(path, "/scenarios/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return "/scenarios/{id}"
		case len(parts) == 2:
			switch parts[1] {
			case "physical_objects", "services", "geometries",
				"geometries_with_all_objects", "functional_zones":
				return "/scenarios/{id}/" + parts[1]
			}
		case len(parts) == 3 && parts[1] == "context":
			return "/scenarios/{id}/context/" + parts[2]
		case len(parts) == 3:
			switch parts[1] {
			case "physical_objects", "services", "geometries":
				return "/scenarios/{id}/" + parts[1] + "/{entity_id}"
			}
		}
	}

	return path
}

// metricsResponseWriter captures status and response size for the metrics
// layer.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// setContext forwards a handler-derived context to the wrapped writer so
// UpdateResponseContext works through the metrics layer.
func (mrw *metricsResponseWriter) setContext(ctx context.Context) {
	UpdateResponseContext(mrw.ResponseWriter, ctx)
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// HTTPMetrics records duration, count and body sizes per request under a
// normalized path label. Probe endpoints are left out; they would dominate
// the series without saying anything about traffic.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			var requestSize int64
			if cl := r.Header.Get("Content-Length"); cl != "" {
				if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
