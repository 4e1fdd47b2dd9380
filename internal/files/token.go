package files

import "github.com/google/uuid"

// TokenGenerator produces a fresh token per upload.
type TokenGenerator func() string

// NewToken returns a random (version 4) UUID in canonical form. Collisions
// are not checked against the store.
func NewToken() string {
	return uuid.New().String()
}
