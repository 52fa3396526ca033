package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
	ErrConnectionNotFound   = fmt.Errorf("connection %w", ErrNotFound)
	ErrNotParticipant       = errors.New("identity is not a participant of the conversation")
	ErrForbidden            = errors.New("operation not allowed for this role")
)

// ValidationError reports a missing or invalid required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is required", e.Field)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
