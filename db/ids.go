package db

import "github.com/google/uuid"

// ValidUUID reports whether s parses as a UUID. Repositories use it to turn
// malformed identifiers into not-found results instead of driver errors.
func ValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
