package log

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestIDHeader is echoed back so clients can correlate log lines.
const RequestIDHeader = "X-Request-ID"

// statusWriter wraps http.ResponseWriter to capture the status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware puts a request-scoped logger in the context and logs the start
// and end of every request. requestID and clientIP resolve the values the
// logger is enriched with; either may be nil.
func Middleware(logger *Logger, requestID, clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	httpLogger := logger.WithComponent(ComponentHTTP)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"))
			reqLogger := httpLogger
			if requestID != nil {
				id := requestID(r)
				w.Header().Set(RequestIDHeader, id)
				reqLogger = reqLogger.With(FieldRequestID, id)
			}
			if clientIP != nil {
				fields.WithClientIP(clientIP(r))
			}

			ctx := IntoContext(r.Context(), reqLogger)
			reqLogger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			}
			fields.WithHTTPResponse(sw.status, time.Since(start).Milliseconds())
			reqLogger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}
