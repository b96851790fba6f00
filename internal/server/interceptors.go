package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an HTTP handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in http handler")

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every request with method, path, status, and
// duration. Log level is Info for 2xx/3xx responses and Warn otherwise.
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		}

		if sw.status >= 400 {
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed with error", attrs...)
		} else {
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		}
	})
}

// RecoveryMiddleware recovers from panics in the wrapped handler. On panic,
// it logs the panic value and stack trace at Error level and responds with
// 500 Internal Server Error.
func RecoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				logger.ErrorContext(r.Context(), "panic recovered in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(buf[:n])),
				)

				err := fmt.Errorf("%s: %w", r.URL.Path, ErrPanicRecovered)
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
