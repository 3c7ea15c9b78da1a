package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"labmate/internal/domain"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier implements TokenVerifier with keys from a JWKS endpoint.
type JWKSVerifier struct {
	keyfunc jwt.Keyfunc
	logger  *slog.Logger
}

// NewJWTVerifier creates a verifier that fetches public keys from jwksURL.
// keyfunc caches the key set and refreshes it based on HTTP cache headers.
func NewJWTVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)
	return NewKeyfuncVerifier(jwks.Keyfunc, logger), nil
}

// NewKeyfuncVerifier creates a verifier over an arbitrary key lookup.
func NewKeyfuncVerifier(kf jwt.Keyfunc, logger *slog.Logger) *JWKSVerifier {
	return &JWKSVerifier{keyfunc: kf, logger: logger}
}

// VerifyToken implements TokenVerifier.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		v.logger.Error("failed to extract claims from token")
		return nil, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}
	if claims.Role == "anon" {
		v.logger.Debug("anonymous token rejected", "user_id", claims.Subject)
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Close implements TokenVerifier. keyfunc manages its own refresh goroutine,
// which stops with the context passed to NewJWTVerifier.
func (v *JWKSVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}
