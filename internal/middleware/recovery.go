package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"labmate/internal/httputil"
)

// Recovery middleware recovers from panics and returns a 500 error.
// http.ErrAbortHandler is re-raised so the server can drop the connection quietly.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)

					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
