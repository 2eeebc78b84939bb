package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

// sensitiveFields are header or field names that must never reach the logs.
// Payment traffic carries gateway credentials and payer data, so the filter
// errs on the broad side.
var sensitiveFields = []string{
	"authorization",
	"api_key",
	"api_pass",
	"secret",
	"token",
	"card",
	"iban",
	"holder",
	"session",
}

// LoggingMiddleware logs one line per request and one per response. Bodies
// are never logged: webhook and return payloads may carry payer data.
func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())

			logger.Info("incoming request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"headers", filterSensitiveHeaders(r.Header),
			)

			ww := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(ww, r)

			status := ww.statusCode
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "response",
				"request_id", reqID,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// filterSensitiveHeaders masks headers whose name matches a sensitive field.
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string)
	for name, values := range headers {
		lowerName := strings.ToLower(name)

		isSensitive := false
		for _, field := range sensitiveFields {
			if strings.Contains(lowerName, field) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			filtered[name] = "[FILTERED]"
		} else {
			filtered[name] = strings.Join(values, ", ")
		}
	}
	return filtered
}
