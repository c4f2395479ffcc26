package domain

import "strings"

// Actor is the authenticated caller on whose behalf a command is issued.
// It is always taken from the verified token, never from a request body.
type Actor struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Validate ensures the actor carries an identity.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return NewValidationError("actor.userId", "is required", ErrUnauthorized)
	}
	return nil
}
