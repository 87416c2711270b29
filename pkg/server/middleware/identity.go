package middleware

import (
	"net/http"

	"radium-hq/toolgate/pkg/telemetry/logging"
)

const (
	// UserHeader identifies the user on whose behalf the agent runs.
	UserHeader = "X-Toolgate-User"

	// SessionHeader identifies the agent session.
	SessionHeader = "X-Toolgate-Session"
)

// Identity copies the user and session headers into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if user := r.Header.Get(UserHeader); user != "" {
			ctx = logging.WithUser(ctx, user)
		}
		if session := r.Header.Get(SessionHeader); session != "" {
			ctx = logging.WithSession(ctx, session)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
