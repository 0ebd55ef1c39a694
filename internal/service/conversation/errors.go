package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrChatNotFound marks an unknown chat id.
	ErrChatNotFound = errors.New("chat not found")
	// ErrUserNotFound marks a chat whose owning user row is missing.
	ErrUserNotFound = errors.New("user not found")
)

// ValidationError reports a malformed start-chat field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
