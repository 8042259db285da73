package collab

import "errors"

// Sentinel errors surfaced by catalog and manager operations. Mutating
// operations against archived sessions return ErrSessionNotFound: completed
// and failed sessions are no longer in the active set.
var (
	ErrTemplateNotFound  = errors.New("workflow template not found")
	ErrSessionNotFound   = errors.New("collaboration session not found")
	ErrHandoffNotFound   = errors.New("handoff not found")
	ErrDuplicateTemplate = errors.New("workflow template already registered")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
