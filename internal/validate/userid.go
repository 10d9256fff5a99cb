// Package validate holds input validation helpers shared by provisioning
// and the API layer.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// User ID constraints. IDs travel in URLs, JSON bodies and log lines, so
// the character set is kept deliberately narrow.
const (
	UserIDMinLength = 2
	UserIDMaxLength = 64
)

var (
	// ErrEmptyUserID is returned for an empty user ID.
	ErrEmptyUserID = errors.New("user ID is empty")

	// ErrUserIDLength is returned when a user ID is outside the allowed
	// length range.
	ErrUserIDLength = errors.New("user ID length out of range")

	// ErrUserIDCharacters is returned when a user ID contains characters
	// outside [a-zA-Z0-9_.-].
	ErrUserIDCharacters = errors.New("user ID contains invalid characters")
)

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// UserID validates a user identifier.
func UserID(id string) error {
	if id == "" {
		return ErrEmptyUserID
	}
	if n := utf8.RuneCountInString(id); n < UserIDMinLength || n > UserIDMaxLength {
		return fmt.Errorf("%w: got %d chars, want %d to %d", ErrUserIDLength, n, UserIDMinLength, UserIDMaxLength)
	}
	if !userIDPattern.MatchString(id) {
		return ErrUserIDCharacters
	}
	return nil
}
