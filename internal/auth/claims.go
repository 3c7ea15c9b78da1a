package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claim set accepted by the API.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	CustomerID string `json:"customer_id"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// DisplayName returns the name to address the user by.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}
