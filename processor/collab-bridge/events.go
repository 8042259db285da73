package collabbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/semcollab/collab"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// SignalDomain is the payload domain of inbound agent runtime signals.
const SignalDomain = "agent"

// Severities that auto-start an emergency response session. Anything else
// is ignored by the bridge.
const (
	SeverityCritical = "critical"
	SeverityBlocker  = "blocker"
)

// RegisterPayloads registers the inbound signal payload types with the
// supplied registry so envelope-wrapped signals decode through
// message.NewDecoder. Raw (unwrapped) signals need no registration.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	registrations := []*payloadregistry.Registration{
		{Domain: SignalDomain, Category: "status-changed", Version: "v1", Description: "Agent availability change", Factory: func() any { return &AgentStatusChangedEvent{} }},
		{Domain: SignalDomain, Category: "task-completed", Version: "v1", Description: "External task completion", Factory: func() any { return &TaskCompletedEvent{} }},
		{Domain: SignalDomain, Category: "quality-issue-reported", Version: "v1", Description: "Quality issue report", Factory: func() any { return &QualityIssueReportedEvent{} }},
	}

	var errs []error
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			errs = append(errs, fmt.Errorf("register %s.%s.%s: %w", r.Domain, r.Category, r.Version, err))
		}
	}
	return errors.Join(errs...)
}

// AgentStatusChangedEvent signals a participant availability change from the
// agent runtime.
type AgentStatusChangedEvent struct {
	// AgentID identifies the concrete agent instance.
	AgentID string `json:"agent_id"`

	// AgentType is the participant type the agent fills.
	AgentType collab.ParticipantType `json:"agent_type"`

	// NewStatus is the agent's new availability status.
	NewStatus string `json:"new_status"`
}

// AgentStatusChangedType is the message type for status-changed signals.
var AgentStatusChangedType = message.Type{Domain: SignalDomain, Category: "status-changed", Version: "v1"}

// Schema implements message.Payload.
func (e *AgentStatusChangedEvent) Schema() message.Type { return AgentStatusChangedType }

// Validate implements message.Payload.
func (e *AgentStatusChangedEvent) Validate() error {
	if e.AgentType == "" {
		return errors.New("agent_type is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *AgentStatusChangedEvent) MarshalJSON() ([]byte, error) {
	type Alias AgentStatusChangedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *AgentStatusChangedEvent) UnmarshalJSON(data []byte) error {
	type Alias AgentStatusChangedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// TaskCompletedEvent signals that an externally tracked task finished.
type TaskCompletedEvent struct {
	// TaskID identifies the completed task.
	TaskID string `json:"task_id"`

	// AgentType is the participant type that completed it.
	AgentType collab.ParticipantType `json:"agent_type"`
}

// TaskCompletedType is the message type for task-completed signals.
var TaskCompletedType = message.Type{Domain: SignalDomain, Category: "task-completed", Version: "v1"}

// Schema implements message.Payload.
func (e *TaskCompletedEvent) Schema() message.Type { return TaskCompletedType }

// Validate implements message.Payload.
func (e *TaskCompletedEvent) Validate() error {
	if e.TaskID == "" {
		return errors.New("task_id is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *TaskCompletedEvent) MarshalJSON() ([]byte, error) {
	type Alias TaskCompletedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *TaskCompletedEvent) UnmarshalJSON(data []byte) error {
	type Alias TaskCompletedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// QualityIssue describes a reported quality problem.
type QualityIssue struct {
	// Title is the issue headline.
	Title string `json:"title"`

	// Description is the full issue description.
	Description string `json:"description,omitempty"`
}

// QualityIssueReportedEvent signals a reported quality issue.
type QualityIssueReportedEvent struct {
	// Issue is the reported problem.
	Issue QualityIssue `json:"issue"`

	// Severity is the reporter-assigned severity.
	Severity string `json:"severity"`
}

// QualityIssueReportedType is the message type for quality issue signals.
var QualityIssueReportedType = message.Type{Domain: SignalDomain, Category: "quality-issue-reported", Version: "v1"}

// Schema implements message.Payload.
func (e *QualityIssueReportedEvent) Schema() message.Type { return QualityIssueReportedType }

// Validate implements message.Payload.
func (e *QualityIssueReportedEvent) Validate() error {
	if e.Issue.Title == "" {
		return errors.New("issue title is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *QualityIssueReportedEvent) MarshalJSON() ([]byte, error) {
	type Alias QualityIssueReportedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *QualityIssueReportedEvent) UnmarshalJSON(data []byte) error {
	type Alias QualityIssueReportedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// IsEmergency returns true for severities that warrant auto-starting an
// emergency response session.
func (e *QualityIssueReportedEvent) IsEmergency() bool {
	return e.Severity == SeverityCritical || e.Severity == SeverityBlocker
}
