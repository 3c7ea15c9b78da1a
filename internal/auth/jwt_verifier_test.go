package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"labmate/internal/domain"
)

func testVerifier(t *testing.T) (*JWKSVerifier, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kf := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }
	return NewKeyfuncVerifier(kf, logger), key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWKSVerifier_VerifyToken(t *testing.T) {
	v, key := testVerifier(t)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   func() string
		wantErr bool
		wantSub string
	}{
		{
			name: "valid token",
			token: func() string {
				return sign(t, key, Claims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: future},
					Name:             "Ada",
					CustomerID:       "LAB-12345",
				})
			},
			wantSub: "user-1",
		},
		{
			name: "expired",
			token: func() string {
				return sign(t, key, Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				}})
			},
			wantErr: true,
		},
		{
			name: "missing subject",
			token: func() string {
				return sign(t, key, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}})
			},
			wantErr: true,
		},
		{
			name: "anonymous role",
			token: func() string {
				return sign(t, key, Claims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: future},
					Role:             "anon",
				})
			},
			wantErr: true,
		},
		{
			name: "HMAC signed",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: future},
				}).SignedString([]byte("secret"))
				if err != nil {
					t.Fatal(err)
				}
				return s
			},
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   func() string { return "not.a.jwt" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.VerifyToken(tt.token())
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Fatalf("error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if claims.UserID() != tt.wantSub {
				t.Errorf("UserID() = %q, want %q", claims.UserID(), tt.wantSub)
			}
		})
	}
}

func TestClaims_DisplayName(t *testing.T) {
	c := &Claims{Email: "ada@example.com"}
	if got := c.DisplayName(); got != "ada@example.com" {
		t.Errorf("DisplayName() = %q", got)
	}
	c.Name = "Ada"
	if got := c.DisplayName(); got != "Ada" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestNewJWTVerifier_RequiresURL(t *testing.T) {
	_, err := NewJWTVerifier(context.Background(), "", slog.Default())
	if err == nil {
		t.Fatal("expected error for empty JWKS URL")
	}
}
