package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// EventDomain is the payload domain shared by all collaboration events.
const EventDomain = "collaboration"

// RegisterPayloads registers all collaboration event payload types with
// the supplied registry. Binaries call payloadbuiltins.Register first,
// then layer these on top. Aggregates errors via errors.Join so a
// misconfigured deployment sees every collision on a single boot.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	registrations := []*payloadregistry.Registration{
		{Domain: EventDomain, Category: "session-started", Version: "v1", Description: "Collaboration session started", Factory: func() any { return &SessionStartedPayload{} }},
		{Domain: EventDomain, Category: "session-completed", Version: "v1", Description: "Collaboration session completed", Factory: func() any { return &SessionCompletedPayload{} }},
		{Domain: EventDomain, Category: "session-paused", Version: "v1", Description: "Collaboration session paused", Factory: func() any { return &SessionPausedPayload{} }},
		{Domain: EventDomain, Category: "session-resumed", Version: "v1", Description: "Collaboration session resumed", Factory: func() any { return &SessionResumedPayload{} }},
		{Domain: EventDomain, Category: "session-failed", Version: "v1", Description: "Collaboration session failed", Factory: func() any { return &SessionFailedPayload{} }},
		{Domain: EventDomain, Category: "message-sent", Version: "v1", Description: "Inter-agent message recorded", Factory: func() any { return &MessageSentPayload{} }},
		{Domain: EventDomain, Category: "handoff-initiated", Version: "v1", Description: "Work handoff initiated", Factory: func() any { return &HandoffInitiatedPayload{} }},
		{Domain: EventDomain, Category: "handoff-accepted", Version: "v1", Description: "Work handoff accepted", Factory: func() any { return &HandoffAcceptedPayload{} }},
		{Domain: EventDomain, Category: "handoff-rejected", Version: "v1", Description: "Work handoff rejected", Factory: func() any { return &HandoffRejectedPayload{} }},
		{Domain: EventDomain, Category: "handoff-completed", Version: "v1", Description: "Work handoff completed", Factory: func() any { return &HandoffCompletedPayload{} }},
		{Domain: EventDomain, Category: "stage-initiated", Version: "v1", Description: "Workflow stage activated", Factory: func() any { return &StageInitiatedPayload{} }},
	}

	var errs []error
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			errs = append(errs, fmt.Errorf("register %s.%s.%s: %w", r.Domain, r.Category, r.Version, err))
		}
	}
	return errors.Join(errs...)
}

// SessionStartedPayload is published when a session is created.
type SessionStartedPayload struct {
	// SessionID identifies the new session.
	SessionID string `json:"session_id"`

	// WorkflowID is the instantiated template.
	WorkflowID string `json:"workflow_id"`

	// Kind is the template's workflow kind.
	Kind WorkflowKind `json:"kind"`

	// Initiator requested the session.
	Initiator ParticipantType `json:"initiator"`

	// Participants were invited into the session.
	Participants []ParticipantType `json:"participants"`

	// Priority is copied from the session context.
	Priority string `json:"priority,omitempty"`
}

// SessionStartedType is the message type for session-started payloads.
var SessionStartedType = message.Type{Domain: "collaboration", Category: "session-started", Version: "v1"}

// Schema implements message.Payload.
func (p *SessionStartedPayload) Schema() message.Type { return SessionStartedType }

// Validate implements message.Payload.
func (p *SessionStartedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if p.WorkflowID == "" {
		return &ValidationError{Field: "workflow_id", Message: "workflow_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *SessionStartedPayload) MarshalJSON() ([]byte, error) {
	type Alias SessionStartedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SessionStartedPayload) UnmarshalJSON(data []byte) error {
	type Alias SessionStartedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// SessionCompletedPayload is published when a session's last stage closes or
// a caller completes it explicitly.
type SessionCompletedPayload struct {
	// SessionID identifies the completed session.
	SessionID string `json:"session_id"`

	// WorkflowID is the instantiated template.
	WorkflowID string `json:"workflow_id"`

	// Summary is the completion summary.
	Summary string `json:"summary,omitempty"`

	// CompletedAt is when the session ended.
	CompletedAt time.Time `json:"completed_at"`
}

// SessionCompletedType is the message type for session-completed payloads.
var SessionCompletedType = message.Type{Domain: "collaboration", Category: "session-completed", Version: "v1"}

// Schema implements message.Payload.
func (p *SessionCompletedPayload) Schema() message.Type { return SessionCompletedType }

// Validate implements message.Payload.
func (p *SessionCompletedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *SessionCompletedPayload) MarshalJSON() ([]byte, error) {
	type Alias SessionCompletedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SessionCompletedPayload) UnmarshalJSON(data []byte) error {
	type Alias SessionCompletedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// SessionPausedPayload is published when a session is paused.
type SessionPausedPayload struct {
	// SessionID identifies the paused session.
	SessionID string `json:"session_id"`
}

// SessionPausedType is the message type for session-paused payloads.
var SessionPausedType = message.Type{Domain: "collaboration", Category: "session-paused", Version: "v1"}

// Schema implements message.Payload.
func (p *SessionPausedPayload) Schema() message.Type { return SessionPausedType }

// Validate implements message.Payload.
func (p *SessionPausedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *SessionPausedPayload) MarshalJSON() ([]byte, error) {
	type Alias SessionPausedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SessionPausedPayload) UnmarshalJSON(data []byte) error {
	type Alias SessionPausedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// SessionResumedPayload is published when a paused session resumes.
type SessionResumedPayload struct {
	// SessionID identifies the resumed session.
	SessionID string `json:"session_id"`
}

// SessionResumedType is the message type for session-resumed payloads.
var SessionResumedType = message.Type{Domain: "collaboration", Category: "session-resumed", Version: "v1"}

// Schema implements message.Payload.
func (p *SessionResumedPayload) Schema() message.Type { return SessionResumedType }

// Validate implements message.Payload.
func (p *SessionResumedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *SessionResumedPayload) MarshalJSON() ([]byte, error) {
	type Alias SessionResumedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SessionResumedPayload) UnmarshalJSON(data []byte) error {
	type Alias SessionResumedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// SessionFailedPayload is published when a host fails a session. The engine
// itself never fails sessions.
type SessionFailedPayload struct {
	// SessionID identifies the failed session.
	SessionID string `json:"session_id"`

	// Reason explains the failure.
	Reason string `json:"reason,omitempty"`

	// FailedAt is when the session was failed.
	FailedAt time.Time `json:"failed_at"`
}

// SessionFailedType is the message type for session-failed payloads.
var SessionFailedType = message.Type{Domain: "collaboration", Category: "session-failed", Version: "v1"}

// Schema implements message.Payload.
func (p *SessionFailedPayload) Schema() message.Type { return SessionFailedType }

// Validate implements message.Payload.
func (p *SessionFailedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *SessionFailedPayload) MarshalJSON() ([]byte, error) {
	type Alias SessionFailedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *SessionFailedPayload) UnmarshalJSON(data []byte) error {
	type Alias SessionFailedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// MessageSentPayload carries the full recorded message.
type MessageSentPayload struct {
	// Message is the recorded collaboration message.
	Message *CollaborationMessage `json:"message"`
}

// MessageSentType is the message type for message-sent payloads.
var MessageSentType = message.Type{Domain: "collaboration", Category: "message-sent", Version: "v1"}

// Schema implements message.Payload.
func (p *MessageSentPayload) Schema() message.Type { return MessageSentType }

// Validate implements message.Payload.
func (p *MessageSentPayload) Validate() error {
	if p.Message == nil || p.Message.ID == "" {
		return &ValidationError{Field: "message", Message: "message is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *MessageSentPayload) MarshalJSON() ([]byte, error) {
	type Alias MessageSentPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *MessageSentPayload) UnmarshalJSON(data []byte) error {
	type Alias MessageSentPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// HandoffInitiatedPayload carries the full new handoff.
type HandoffInitiatedPayload struct {
	// Handoff is the recorded handoff.
	Handoff *AgentHandoff `json:"handoff"`
}

// HandoffInitiatedType is the message type for handoff-initiated payloads.
var HandoffInitiatedType = message.Type{Domain: "collaboration", Category: "handoff-initiated", Version: "v1"}

// Schema implements message.Payload.
func (p *HandoffInitiatedPayload) Schema() message.Type { return HandoffInitiatedType }

// Validate implements message.Payload.
func (p *HandoffInitiatedPayload) Validate() error {
	if p.Handoff == nil || p.Handoff.ID == "" {
		return &ValidationError{Field: "handoff", Message: "handoff is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *HandoffInitiatedPayload) MarshalJSON() ([]byte, error) {
	type Alias HandoffInitiatedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *HandoffInitiatedPayload) UnmarshalJSON(data []byte) error {
	type Alias HandoffInitiatedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// HandoffAcceptedPayload is published when a handoff is accepted.
type HandoffAcceptedPayload struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// HandoffID identifies the accepted handoff.
	HandoffID string `json:"handoff_id"`

	// Notes carries the receiver's acceptance notes.
	Notes string `json:"notes,omitempty"`
}

// HandoffAcceptedType is the message type for handoff-accepted payloads.
var HandoffAcceptedType = message.Type{Domain: "collaboration", Category: "handoff-accepted", Version: "v1"}

// Schema implements message.Payload.
func (p *HandoffAcceptedPayload) Schema() message.Type { return HandoffAcceptedType }

// Validate implements message.Payload.
func (p *HandoffAcceptedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if p.HandoffID == "" {
		return &ValidationError{Field: "handoff_id", Message: "handoff_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *HandoffAcceptedPayload) MarshalJSON() ([]byte, error) {
	type Alias HandoffAcceptedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *HandoffAcceptedPayload) UnmarshalJSON(data []byte) error {
	type Alias HandoffAcceptedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// HandoffRejectedPayload is published when a handoff is rejected. Rejection
// is terminal; the handoff never counts toward stage completion.
type HandoffRejectedPayload struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// HandoffID identifies the rejected handoff.
	HandoffID string `json:"handoff_id"`

	// Notes carries the receiver's rejection notes.
	Notes string `json:"notes,omitempty"`
}

// HandoffRejectedType is the message type for handoff-rejected payloads.
var HandoffRejectedType = message.Type{Domain: "collaboration", Category: "handoff-rejected", Version: "v1"}

// Schema implements message.Payload.
func (p *HandoffRejectedPayload) Schema() message.Type { return HandoffRejectedType }

// Validate implements message.Payload.
func (p *HandoffRejectedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if p.HandoffID == "" {
		return &ValidationError{Field: "handoff_id", Message: "handoff_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *HandoffRejectedPayload) MarshalJSON() ([]byte, error) {
	type Alias HandoffRejectedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *HandoffRejectedPayload) UnmarshalJSON(data []byte) error {
	type Alias HandoffRejectedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// HandoffCompletedPayload is published when a handoff completes. Completion
// is the only trigger for stage transition evaluation.
type HandoffCompletedPayload struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// HandoffID identifies the completed handoff.
	HandoffID string `json:"handoff_id"`

	// CompletedAt is when the handoff completed.
	CompletedAt time.Time `json:"completed_at"`
}

// HandoffCompletedType is the message type for handoff-completed payloads.
var HandoffCompletedType = message.Type{Domain: "collaboration", Category: "handoff-completed", Version: "v1"}

// Schema implements message.Payload.
func (p *HandoffCompletedPayload) Schema() message.Type { return HandoffCompletedType }

// Validate implements message.Payload.
func (p *HandoffCompletedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if p.HandoffID == "" {
		return &ValidationError{Field: "handoff_id", Message: "handoff_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *HandoffCompletedPayload) MarshalJSON() ([]byte, error) {
	type Alias HandoffCompletedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *HandoffCompletedPayload) UnmarshalJSON(data []byte) error {
	type Alias HandoffCompletedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// StageInitiatedPayload is published when a stage activates.
type StageInitiatedPayload struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// StageID identifies the activated stage.
	StageID string `json:"stage_id"`

	// StageName is the stage's display name.
	StageName string `json:"stage_name"`

	// PrimaryAgent drives the stage.
	PrimaryAgent ParticipantType `json:"primary_agent"`

	// Inputs are the artifacts expected to flow into the stage.
	Inputs []string `json:"inputs,omitempty"`

	// Outputs are the artifacts the stage should produce.
	Outputs []string `json:"outputs,omitempty"`
}

// StageInitiatedType is the message type for stage-initiated payloads.
var StageInitiatedType = message.Type{Domain: "collaboration", Category: "stage-initiated", Version: "v1"}

// Schema implements message.Payload.
func (p *StageInitiatedPayload) Schema() message.Type { return StageInitiatedType }

// Validate implements message.Payload.
func (p *StageInitiatedPayload) Validate() error {
	if p.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if p.StageID == "" {
		return &ValidationError{Field: "stage_id", Message: "stage_id is required"}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *StageInitiatedPayload) MarshalJSON() ([]byte, error) {
	type Alias StageInitiatedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StageInitiatedPayload) UnmarshalJSON(data []byte) error {
	type Alias StageInitiatedPayload
	return json.Unmarshal(data, (*Alias)(p))
}
