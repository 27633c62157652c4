package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// RequestObserver receives every completed request, e.g. to feed metrics.
// pattern is the ServeMux route that matched, or "unmatched".
type RequestObserver func(method, pattern string, status int, elapsed time.Duration)

type routePatternKey struct{}

type routePattern struct {
	value string
}

// RecordRoutePattern wraps a ServeMux so WithAccessLog can see the matched
// route even when middleware between the two replaces the request.
func RecordRoutePattern(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if holder, ok := r.Context().Value(routePatternKey{}).(*routePattern); ok && r.Pattern != "" {
			holder.value = r.Pattern
		}
	})
}

func WithAccessLog(logger *slog.Logger, observers ...RequestObserver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}
			holder := &routePattern{}
			rr := r.WithContext(context.WithValue(r.Context(), routePatternKey{}, holder))

			next.ServeHTTP(sw, rr)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			elapsed := time.Since(start)
			pattern := rr.Pattern
			if pattern == "" {
				pattern = holder.value
			}
			if pattern == "" {
				pattern = "unmatched"
			}
			for _, observe := range observers {
				observe(r.Method, pattern, sw.status, elapsed)
			}

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
