package auth

// TokenVerifier validates bearer tokens.
// The middleware stays agnostic of how keys are fetched or rotated.
type TokenVerifier interface {
	// VerifyToken validates a token string and returns its claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or badly signed.
	VerifyToken(tokenString string) (*Claims, error)

	// Close releases any resources held by the verifier.
	Close() error
}
