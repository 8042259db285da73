// Package collab provides the semcollab collaboration core: workflow
// templates, collaboration sessions, inter-agent messaging and handoffs,
// and the stage transition engine that drives a session through its
// template's stages.
package collab

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParticipantType identifies a role that can be addressed by messages and
// handoffs and assigned as a stage's primary or supporting agent. The set is
// open: templates may name roles beyond the well-known constants.
type ParticipantType string

const (
	// ParticipantProducer owns requirements and product direction.
	ParticipantProducer ParticipantType = "producer"
	// ParticipantArchitect owns system design.
	ParticipantArchitect ParticipantType = "architect"
	// ParticipantEngineer owns implementation.
	ParticipantEngineer ParticipantType = "engineer"
	// ParticipantQA owns quality assurance.
	ParticipantQA ParticipantType = "qa"
)

// String returns the string representation of the participant type.
func (p ParticipantType) String() string {
	return string(p)
}

// SessionStatus represents the overall state of a collaboration session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is in progress.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusPaused indicates the session is paused. Pausing is
	// advisory: message and handoff operations still succeed.
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusCompleted indicates all stages finished.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusFailed indicates the session was failed by its host.
	// The engine never sets this status itself.
	SessionStatusFailed SessionStatus = "failed"
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	switch s {
	case SessionStatusActive:
		return target == SessionStatusPaused || target == SessionStatusCompleted || target == SessionStatusFailed
	case SessionStatusPaused:
		return target == SessionStatusActive || target == SessionStatusCompleted || target == SessionStatusFailed
	case SessionStatusCompleted, SessionStatusFailed:
		return false // Terminal states
	default:
		return false
	}
}

// StageStatus represents the runtime state of one stage within a session.
type StageStatus string

const (
	// StageStatusPending indicates the stage has not started.
	StageStatusPending StageStatus = "pending"
	// StageStatusActive indicates the stage is the one currently driven.
	StageStatusActive StageStatus = "active"
	// StageStatusCompleted indicates the stage's handoffs all completed.
	StageStatusCompleted StageStatus = "completed"
)

// String returns the string representation of the stage status.
func (s StageStatus) String() string {
	return string(s)
}

// IsValid returns true if the stage status is valid.
func (s StageStatus) IsValid() bool {
	switch s {
	case StageStatusPending, StageStatusActive, StageStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if this stage status can transition to the target.
func (s StageStatus) CanTransitionTo(target StageStatus) bool {
	switch s {
	case StageStatusPending:
		return target == StageStatusActive
	case StageStatusActive:
		return target == StageStatusCompleted
	case StageStatusCompleted:
		return false // Terminal state
	default:
		return false
	}
}

// HandoffStatus represents the lifecycle state of a work handoff.
type HandoffStatus string

const (
	// HandoffStatusPending indicates the handoff was initiated but not acted on.
	HandoffStatusPending HandoffStatus = "pending"
	// HandoffStatusAccepted indicates the receiving participant accepted the work.
	HandoffStatusAccepted HandoffStatus = "accepted"
	// HandoffStatusRejected indicates the receiving participant declined the work.
	HandoffStatusRejected HandoffStatus = "rejected"
	// HandoffStatusCompleted indicates the work was delivered. Only completed
	// handoffs count toward stage completion.
	HandoffStatusCompleted HandoffStatus = "completed"
)

// String returns the string representation of the handoff status.
func (s HandoffStatus) String() string {
	return string(s)
}

// IsValid returns true if the handoff status is valid.
func (s HandoffStatus) IsValid() bool {
	switch s {
	case HandoffStatusPending, HandoffStatusAccepted, HandoffStatusRejected, HandoffStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if this handoff status can transition to the target.
// Acceptance is optional: a pending handoff may complete directly.
func (s HandoffStatus) CanTransitionTo(target HandoffStatus) bool {
	switch s {
	case HandoffStatusPending:
		return target == HandoffStatusAccepted || target == HandoffStatusRejected || target == HandoffStatusCompleted
	case HandoffStatusAccepted:
		return target == HandoffStatusCompleted
	case HandoffStatusRejected, HandoffStatusCompleted:
		return false // Terminal states
	default:
		return false
	}
}

// MessageType classifies an inter-agent message.
type MessageType string

const (
	// MessageTypeRequest asks a participant to act and demands a response.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse answers an earlier request.
	MessageTypeResponse MessageType = "response"
	// MessageTypeHandoff accompanies an explicit work handoff.
	MessageTypeHandoff MessageType = "handoff"
	// MessageTypeClarification asks for or supplies additional detail.
	MessageTypeClarification MessageType = "clarification"
	// MessageTypeStatusUpdate broadcasts progress or availability changes.
	MessageTypeStatusUpdate MessageType = "status_update"
)

// String returns the string representation of the message type.
func (m MessageType) String() string {
	return string(m)
}

// IsValid returns true if the message type is valid.
func (m MessageType) IsValid() bool {
	switch m {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeHandoff,
		MessageTypeClarification, MessageTypeStatusUpdate:
		return true
	default:
		return false
	}
}

// RequiresResponse returns true for message types that demand a response
// from the addressed participants. Correlation of the eventual response is
// left to the collaborators reading the message trail.
func (m MessageType) RequiresResponse() bool {
	return m == MessageTypeRequest || m == MessageTypeHandoff
}

// SessionContext carries the caller-supplied framing for a session. The
// engine treats everything here as opaque except Priority and TaskID.
type SessionContext struct {
	// Description summarizes the unit of work the session exists for.
	Description string `json:"description,omitempty"`

	// Requirements lists caller-supplied requirements.
	Requirements []string `json:"requirements,omitempty"`

	// Constraints lists caller-supplied constraints.
	Constraints []string `json:"constraints,omitempty"`

	// Objectives lists what the collaboration should achieve.
	Objectives []string `json:"objectives,omitempty"`

	// Deliverables lists expected end artifacts.
	Deliverables []string `json:"deliverables,omitempty"`

	// Priority is the caller-assigned priority (e.g., "high", "critical").
	Priority string `json:"priority,omitempty"`

	// TaskID links the session to an external task, matched by the event
	// bridge on task.completed signals.
	TaskID string `json:"task_id,omitempty"`
}

// CollaborationMessage is one directed or broadcast communication between
// participants within a session. Messages are append-only.
type CollaborationMessage struct {
	// ID uniquely identifies this message (format: msg-{uuid}).
	ID string `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// From is the sending participant.
	From ParticipantType `json:"from"`

	// To lists the addressed participants.
	To []ParticipantType `json:"to"`

	// Content is the message body.
	Content string `json:"content"`

	// Type classifies the message.
	Type MessageType `json:"type"`

	// Payload is an optional structured attachment, opaque to the engine.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`

	// RequiresResponse is derived from Type at send time.
	RequiresResponse bool `json:"requires_response"`
}

// Clone returns a deep copy of the message, including its address list and
// payload bytes.
func (msg *CollaborationMessage) Clone() *CollaborationMessage {
	out := *msg
	out.To = append([]ParticipantType(nil), msg.To...)
	out.Payload = append(json.RawMessage(nil), msg.Payload...)
	return &out
}

// HandoffContext describes the unit of work being transferred.
type HandoffContext struct {
	// Task describes the work being handed over. Stage completion matching
	// runs against this text.
	Task string `json:"task"`

	// Deliverables lists the artifacts the receiver must produce.
	Deliverables []string `json:"deliverables,omitempty"`

	// Constraints lists conditions the receiver must honor.
	Constraints []string `json:"constraints,omitempty"`

	// PriorWork references earlier output the receiver builds on.
	PriorWork string `json:"prior_work,omitempty"`
}

// AgentHandoff is an explicit, stateful transfer of in-flight work from one
// participant to another. Handoffs are append-only; only their status,
// notes, and completion fields mutate.
type AgentHandoff struct {
	// ID uniquely identifies this handoff (format: handoff-{uuid}).
	ID string `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// From is the participant handing the work over.
	From ParticipantType `json:"from"`

	// To is the participant receiving the work.
	To ParticipantType `json:"to"`

	// Context describes the transferred work.
	Context HandoffContext `json:"context"`

	// Status is the current lifecycle state.
	Status HandoffStatus `json:"status"`

	// Timestamp is when the handoff was initiated.
	Timestamp time.Time `json:"timestamp"`

	// CompletedAt is when the handoff reached completed (if it did).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Notes carries the receiver's acceptance notes (if any).
	Notes string `json:"notes,omitempty"`

	// Deliverables is the optional completion payload, opaque to the engine.
	Deliverables json.RawMessage `json:"deliverables,omitempty"`
}

// Clone returns a deep copy of the handoff, including its context slices and
// completion fields.
func (h *AgentHandoff) Clone() *AgentHandoff {
	out := *h
	out.Context.Deliverables = append([]string(nil), h.Context.Deliverables...)
	out.Context.Constraints = append([]string(nil), h.Context.Constraints...)
	if h.CompletedAt != nil {
		t := *h.CompletedAt
		out.CompletedAt = &t
	}
	out.Deliverables = append(json.RawMessage(nil), h.Deliverables...)
	return &out
}

// StageState is the per-session runtime record for one template stage.
// A session holds exactly one StageState per template stage, in template
// order; at most one may be active at a time.
type StageState struct {
	// StageID is the template stage this entry tracks.
	StageID string `json:"stage_id"`

	// Status is the runtime status.
	Status StageStatus `json:"status"`

	// StartedAt is when the stage became active.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// EndedAt is when the stage completed.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// CollaborationSession is the mutable runtime record of one instantiated
// workflow template. Sessions are owned exclusively by the Manager; all
// mutation goes through its operations.
type CollaborationSession struct {
	// ID uniquely identifies this session (format: sess-{uuid}).
	ID string `json:"id"`

	// WorkflowID names the template this session instantiates.
	WorkflowID string `json:"workflow_id"`

	// Kind is the template's workflow kind, copied at creation.
	Kind WorkflowKind `json:"kind"`

	// Initiator is the participant that requested the session.
	Initiator ParticipantType `json:"initiator"`

	// Participants is the set of participant types invited into the session.
	Participants []ParticipantType `json:"participants"`

	// Context is the caller-supplied framing.
	Context SessionContext `json:"context"`

	// Status is the session-level state.
	Status SessionStatus `json:"status"`

	// Messages is the append-only ordered message trail.
	Messages []*CollaborationMessage `json:"messages"`

	// Handoffs is the append-only ordered handoff list.
	Handoffs []*AgentHandoff `json:"handoffs"`

	// Stages is the per-stage runtime, one entry per template stage in
	// template order.
	Stages []StageState `json:"stages"`

	// StartTime is when the session was created.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the session completed or failed.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Summary is the completion summary (or failure reason).
	Summary string `json:"summary,omitempty"`
}

// HasParticipant returns true if the session invited the given participant type.
func (s *CollaborationSession) HasParticipant(p ParticipantType) bool {
	for _, candidate := range s.Participants {
		if candidate == p {
			return true
		}
	}
	return false
}

// ActiveStage returns the index of the currently active stage, or -1.
func (s *CollaborationSession) ActiveStage() int {
	for i := range s.Stages {
		if s.Stages[i].Status == StageStatusActive {
			return i
		}
	}
	return -1
}

// findHandoff returns the handoff with the given id, or nil.
func (s *CollaborationSession) findHandoff(id string) *AgentHandoff {
	for _, h := range s.Handoffs {
		if h.ID == id {
			return h
		}
	}
	return nil
}

func newSessionID() string {
	return fmt.Sprintf("sess-%s", uuid.New().String()[:8])
}

func newMessageID() string {
	return fmt.Sprintf("msg-%s", uuid.New().String()[:8])
}

func newHandoffID() string {
	return fmt.Sprintf("handoff-%s", uuid.New().String()[:8])
}
