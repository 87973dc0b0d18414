package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig gates the pprof endpoints. They expose runtime memory
// contents and must stay off outside development.
type ProfilingConfig struct {
	Enabled     bool
	Environment string
}

// Profiling mounts net/http/pprof under /debug/pprof/ when enabled.
// Production environments are refused even with Enabled set. All other
// paths pass through to the wrapped handler.
func Profiling(cfg ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		if cfg.Environment == "production" || cfg.Environment == "prod" {
			slog.Error("refusing to enable profiling in production", "environment", cfg.Environment)
			return next
		}

		slog.Warn("pprof endpoints enabled", "environment", cfg.Environment)

		debug := http.NewServeMux()
		debug.HandleFunc("/debug/pprof/", pprof.Index)
		debug.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		debug.HandleFunc("/debug/pprof/profile", pprof.Profile)
		debug.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		debug.HandleFunc("/debug/pprof/trace", pprof.Trace)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				debug.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
