// Package auth verifies the bearer tokens presented to the API and turns
// them into the caller identity attached to every task command.
package auth

import (
	"context"
	"time"

	"github.com/phrazzld/tasks-api/internal/domain"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the given identity.
	// Tokens are normally issued by the identity provider; this exists for
	// development tooling and tests.
	GenerateToken(ctx context.Context, userID, email string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims containing user information if the token is valid,
	// or an error if validation fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the verified contents of an access token.
type Claims struct {
	// UserID is the identifier of the user the token was issued for.
	UserID string `json:"userId,omitempty"`

	// Email of the user, if the issuer included it.
	Email string `json:"email,omitempty"`

	// TokenType indicates the purpose of the token.
	TokenType string `json:"type,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Actor returns the command actor for these claims.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{UserID: c.UserID, Email: c.Email}
}
