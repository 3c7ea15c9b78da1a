package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const (
	identityKey contextKey = "identity"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID     string
	UserName   string
	CustomerID string
}

// WithIdentity adds the caller identity to the request context
func WithIdentity(r *http.Request, id Identity) *http.Request {
	ctx := context.WithValue(r.Context(), identityKey, id)
	return r.WithContext(ctx)
}

// GetIdentity retrieves the caller identity, returns the zero value if not found
func GetIdentity(r *http.Request) Identity {
	id, _ := r.Context().Value(identityKey).(Identity)
	return id
}

// GetUserID retrieves the caller's user id, returns empty string if not found
func GetUserID(r *http.Request) string {
	return GetIdentity(r).UserID
}
