package collab

import (
	"context"
	"errors"
	"fmt"
)

// Transcript is an exportable record of a session's communications: enough
// to replay its handoff lifecycle against a fresh session of the same
// template and reach the same final stage runtime.
type Transcript struct {
	// SessionID is the exported session.
	SessionID string `json:"session_id"`

	// WorkflowID is the template the session instantiated.
	WorkflowID string `json:"workflow_id"`

	// Initiator requested the original session.
	Initiator ParticipantType `json:"initiator"`

	// Participants were invited into the original session.
	Participants []ParticipantType `json:"participants"`

	// Context is the caller-supplied framing.
	Context SessionContext `json:"context"`

	// Messages is the ordered message trail.
	Messages []*CollaborationMessage `json:"messages"`

	// Handoffs is the ordered handoff list.
	Handoffs []*AgentHandoff `json:"handoffs"`
}

// Export captures a session's messages and handoffs. Works for both active
// and archived sessions. The transcript is a snapshot: records are deep
// copies, so later session activity never alters an exported transcript.
func (m *Manager) Export(sessionID string) (*Transcript, error) {
	s, ok := m.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	messages := make([]*CollaborationMessage, len(s.Messages))
	for i, msg := range s.Messages {
		messages[i] = msg.Clone()
	}
	handoffs := make([]*AgentHandoff, len(s.Handoffs))
	for i, h := range s.Handoffs {
		handoffs[i] = h.Clone()
	}

	return &Transcript{
		SessionID:    s.ID,
		WorkflowID:   s.WorkflowID,
		Initiator:    s.Initiator,
		Participants: append([]ParticipantType(nil), s.Participants...),
		Context:      s.Context,
		Messages:     messages,
		Handoffs:     handoffs,
	}, nil
}

// Replay starts a fresh session of the transcript's template and re-applies
// the recorded handoff lifecycle in order: initiate, then accept and
// complete where the original did. Because handoff completion is the only
// stage driver, the replayed session ends with the same per-stage statuses
// as the original. Returns the new session id.
//
// When the final handoff completes the last stage, the session leaves the
// active set; a transcript can contain nothing after that point, so
// ErrSessionNotFound mid-replay only occurs for transcripts that were
// tampered with and is surfaced as-is.
func (m *Manager) Replay(ctx context.Context, tr *Transcript) (string, error) {
	sessionID, err := m.Start(ctx, tr.WorkflowID, tr.Context, tr.Initiator, tr.Participants)
	if err != nil {
		return "", err
	}

	for _, h := range tr.Handoffs {
		handoffID, err := m.InitiateHandoff(ctx, sessionID, h.From, h.To, h.Context)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return sessionID, fmt.Errorf("replay %s: session completed before handoff %s: %w", tr.SessionID, h.ID, err)
			}
			return sessionID, err
		}

		if h.Status == HandoffStatusRejected {
			if err := m.RejectHandoff(ctx, sessionID, handoffID, h.Notes); err != nil {
				return sessionID, err
			}
			continue
		}
		if h.Status == HandoffStatusAccepted || (h.Status == HandoffStatusCompleted && h.Notes != "") {
			if err := m.AcceptHandoff(ctx, sessionID, handoffID, h.Notes); err != nil {
				return sessionID, err
			}
		}
		if h.Status == HandoffStatusCompleted {
			if err := m.CompleteHandoff(ctx, sessionID, handoffID, h.Deliverables); err != nil {
				return sessionID, err
			}
		}
	}
	return sessionID, nil
}
