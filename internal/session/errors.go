package session

import (
	"errors"
	"fmt"
	"strings"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/policy"
)

var (
	ErrInvalidTransition   = errors.New("action not allowed in current state")
	ErrConfirmInFlight     = errors.New("booking confirmation already in progress")
	ErrOrganizerRequired   = errors.New("organizer cannot be removed")
	ErrParticipantNotFound = errors.New("participant not found")
)

// TransitionError is returned when an action does not apply to the current state.
type TransitionError struct {
	Action string
	State  models.State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed in state %s", ErrInvalidTransition, e.Action, e.State)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IneligibleError blocks a transition the eligibility policy rejected.
type IneligibleError struct {
	Result    policy.Result
	Suggested models.Date
	// Blocked is set when booking is disabled as a whole.
	Blocked bool
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("selection not eligible: %s", e.Result.Reason)
}

func (e *IneligibleError) Reason() policy.Reason { return e.Result.Reason }

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationErrors lists missing or malformed input fields.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func invalidField(field, tag, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Tag: tag, Message: message}}
}

// PersistenceError wraps a failed store call. The draft is kept.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persist booking: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable is false when the slot was taken; retrying cannot succeed.
func (e *PersistenceError) Retryable() bool { return !errors.Is(e.Err, domain.ErrSlotTaken) }
