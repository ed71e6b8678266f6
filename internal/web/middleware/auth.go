package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type contextKey string

const sessionContextKey contextKey = "session"

// DeviceTokenHeader carries the shared secret of access terminals.
const DeviceTokenHeader = "X-Device-Token"

// RequireAuth is middleware that requires a valid manager session
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDeviceToken rejects requests without the configured device token.
// An empty token disables the check. Manager sessions are also accepted so
// the dashboard can submit attempts.
func RequireDeviceToken(token string, sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(DeviceTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if sm != nil {
				if session := sm.GetSessionFromRequest(r); session != nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, session)))
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error": "invalid device token"}`, http.StatusUnauthorized)
		})
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
