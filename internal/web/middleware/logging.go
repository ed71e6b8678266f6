package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facepass/internal/logging"
	"github.com/kozaktomas/facepass/internal/metrics"
)

// RequestLogger logs every request through logrus and records API metrics.
// It expects chi's RequestID middleware to run first.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chiMiddleware.GetReqID(r.Context())
			if reqID != "" {
				r = r.WithContext(logging.WithRequestID(r.Context(), reqID))
			}
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveAPI(route, r.Method, status, elapsed)

			entry := logger.WithFields(logrus.Fields{
				logging.RequestIDKey: reqID,
				"method":             r.Method,
				"path":               r.URL.Path,
				"status":             status,
				"bytes":              ww.BytesWritten(),
				"duration":           elapsed.Round(time.Millisecond).String(),
				"remote":             r.RemoteAddr,
			})
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Debug("request served")
			}
		})
	}
}
