package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"labmate/internal/auth"
	"labmate/internal/httputil"
)

// DevUserID is the identity used when no verifier is configured.
const DevUserID = "dev-user"

// Auth authenticates requests with a bearer token. With a nil verifier every
// request runs as the development user. Paths in public skip authentication.
func Auth(verifier auth.TokenVerifier, logger *slog.Logger, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if verifier == nil {
				next.ServeHTTP(w, httputil.WithIdentity(r, httputil.Identity{
					UserID:   DevUserID,
					UserName: "Developer",
				}))
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("authentication failed",
					"path", r.URL.Path,
					"error", err,
				)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, httputil.WithIdentity(r, httputil.Identity{
				UserID:     claims.UserID(),
				UserName:   claims.DisplayName(),
				CustomerID: claims.CustomerID,
			}))
		})
	}
}
