package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager is the session registry and the single owner of all collaboration
// sessions. Every mutation of a session goes through one of its operations,
// which serialize per session: a sessionEntry's mutex guarantees at most one
// stage transition evaluation at a time for that session, so concurrent
// handoff completions cannot race past the same transition check twice.
type Manager struct {
	catalog   *Catalog
	publisher Publisher
	logger    *slog.Logger

	// store, when set, receives archived sessions write-through so history
	// survives process restarts.
	store *HistoryStore

	mu      sync.RWMutex
	active  map[string]*sessionEntry
	history []*CollaborationSession
}

// Option configures optional manager behavior.
type Option func(*Manager)

// WithHistoryStore wires a durable archive for completed and failed
// sessions. A nil store is ignored.
func WithHistoryStore(store *HistoryStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// sessionEntry pairs a session with its template and the exclusive execution
// context required by the single-writer model.
type sessionEntry struct {
	mu       sync.Mutex
	session  *CollaborationSession
	template *WorkflowTemplate
}

// NewManager creates a session manager over the given catalog. A nil
// publisher falls back to NopPublisher; a nil logger to slog.Default().
func NewManager(catalog *Catalog, publisher Publisher, logger *slog.Logger, opts ...Option) *Manager {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		active:    make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start instantiates the named workflow template as a new active session,
// publishes collab.events.session.started, and activates the first stage
// (notifying its primary agent). A template with zero stages completes the
// session immediately. Fails with ErrTemplateNotFound for unknown ids.
func (m *Manager) Start(ctx context.Context, workflowID string, sctx SessionContext, initiator ParticipantType, participants []ParticipantType) (string, error) {
	tmpl, err := m.catalog.Lookup(workflowID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session := &CollaborationSession{
		ID:           newSessionID(),
		WorkflowID:   tmpl.ID,
		Kind:         tmpl.Kind,
		Initiator:    initiator,
		Participants: participants,
		Context:      sctx,
		Status:       SessionStatusActive,
		Messages:     []*CollaborationMessage{},
		Handoffs:     []*AgentHandoff{},
		Stages:       make([]StageState, len(tmpl.Stages)),
		StartTime:    now,
	}
	for i := range tmpl.Stages {
		session.Stages[i] = StageState{
			StageID: tmpl.Stages[i].ID,
			Status:  StageStatusPending,
		}
	}

	entry := &sessionEntry{session: session, template: tmpl}

	m.mu.Lock()
	m.active[session.ID] = entry
	m.mu.Unlock()

	metricSessionsStarted.WithLabelValues(tmpl.ID).Inc()
	metricActiveSessions.Inc()

	m.logger.Info("Collaboration session started",
		"session_id", session.ID,
		"workflow", tmpl.ID,
		"initiator", initiator,
		"participants", len(participants))

	publishEvent(ctx, m.publisher, m.logger, subjectSessionStarted, &SessionStartedPayload{
		SessionID:    session.ID,
		WorkflowID:   tmpl.ID,
		Kind:         tmpl.Kind,
		Initiator:    initiator,
		Participants: participants,
		Priority:     sctx.Priority,
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if len(session.Stages) == 0 {
		// A template with no stages has nothing to drive.
		m.completeLocked(ctx, entry, "All workflow stages completed")
		return session.ID, nil
	}
	m.activateStageLocked(ctx, entry, 0)
	return session.ID, nil
}

// Get returns the session with the given id, searching the active set first
// and then history.
func (m *Manager) Get(sessionID string) (*CollaborationSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entry, ok := m.active[sessionID]; ok {
		return entry.session, true
	}
	for _, s := range m.history {
		if s.ID == sessionID {
			return s, true
		}
	}
	return nil, false
}

// ListActive returns the active sessions ordered by start time.
func (m *Manager) ListActive() []*CollaborationSession {
	m.mu.RLock()
	sessions := make([]*CollaborationSession, 0, len(m.active))
	for _, entry := range m.active {
		sessions = append(sessions, entry.session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions
}

// ListHistory returns the archived (completed or failed) sessions in archive
// order. Archived sessions are immutable.
func (m *Manager) ListHistory() []*CollaborationSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*CollaborationSession, len(m.history))
	copy(out, m.history)
	return out
}

// Pause marks an active session paused. Pausing is advisory: message and
// handoff operations still succeed against a paused session.
func (m *Manager) Pause(ctx context.Context, sessionID string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	if !s.Status.CanTransitionTo(SessionStatusPaused) {
		return fmt.Errorf("session %s: cannot pause in status %s", s.ID, s.Status)
	}
	s.Status = SessionStatusPaused

	m.logger.Info("Collaboration session paused", "session_id", s.ID)
	publishEvent(ctx, m.publisher, m.logger, subjectSessionPaused, &SessionPausedPayload{SessionID: s.ID})
	return nil
}

// Resume returns a paused session to active.
func (m *Manager) Resume(ctx context.Context, sessionID string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	if s.Status != SessionStatusPaused {
		return fmt.Errorf("session %s: cannot resume in status %s", s.ID, s.Status)
	}
	s.Status = SessionStatusActive

	m.logger.Info("Collaboration session resumed", "session_id", s.ID)
	publishEvent(ctx, m.publisher, m.logger, subjectSessionResumed, &SessionResumedPayload{SessionID: s.ID})
	return nil
}

// Complete finishes a session, stamps its end time, and archives it into
// history. Further mutating calls against the session fail with
// ErrSessionNotFound since it leaves the active set.
func (m *Manager) Complete(ctx context.Context, sessionID, summary string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	m.completeLocked(ctx, entry, summary)
	return nil
}

// Fail marks a session failed and archives it. Failure is host-driven: no
// engine path calls this.
func (m *Manager) Fail(ctx context.Context, sessionID, reason string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	now := time.Now().UTC()
	s.Status = SessionStatusFailed
	s.EndTime = &now
	s.Summary = reason

	m.archive(s)
	metricSessionsFailed.WithLabelValues(s.WorkflowID).Inc()
	metricActiveSessions.Dec()

	m.logger.Warn("Collaboration session failed", "session_id", s.ID, "reason", reason)
	publishEvent(ctx, m.publisher, m.logger, subjectSessionFailed, &SessionFailedPayload{
		SessionID: s.ID,
		Reason:    reason,
		FailedAt:  now,
	})
	return nil
}

// SendMessage records a message in the session's trail and publishes
// collab.events.message.sent. An empty message type defaults to request.
// RequiresResponse is derived from the type; no correlation is performed.
func (m *Manager) SendMessage(ctx context.Context, sessionID string, from ParticipantType, to []ParticipantType, content string, msgType MessageType, payload json.RawMessage) (string, error) {
	if msgType == "" {
		msgType = MessageTypeRequest
	}
	if !msgType.IsValid() {
		return "", &ValidationError{Field: "type", Message: "unknown message type: " + msgType.String()}
	}

	entry, err := m.entry(sessionID)
	if err != nil {
		return "", err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	msg := m.sendMessageLocked(ctx, entry, from, to, content, msgType, payload)
	return msg.ID, nil
}

// InitiateHandoff records a pending handoff, sends the accompanying
// handoff-typed message to the receiver, and publishes
// collab.events.handoff.initiated.
func (m *Manager) InitiateHandoff(ctx context.Context, sessionID string, from, to ParticipantType, hctx HandoffContext) (string, error) {
	entry, err := m.entry(sessionID)
	if err != nil {
		return "", err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	handoff := &AgentHandoff{
		ID:        newHandoffID(),
		SessionID: s.ID,
		From:      from,
		To:        to,
		Context:   hctx,
		Status:    HandoffStatusPending,
		Timestamp: time.Now().UTC(),
	}
	s.Handoffs = append(s.Handoffs, handoff)
	metricHandoffsInitiated.Inc()

	content := fmt.Sprintf("Handoff from %s: %s", from, hctx.Task)
	m.sendMessageLocked(ctx, entry, from, []ParticipantType{to}, content, MessageTypeHandoff, nil)

	m.logger.Info("Handoff initiated",
		"session_id", s.ID,
		"handoff_id", handoff.ID,
		"from", from,
		"to", to)

	publishEvent(ctx, m.publisher, m.logger, subjectHandoffInitiated, &HandoffInitiatedPayload{Handoff: handoff})
	return handoff.ID, nil
}

// AcceptHandoff moves a pending handoff to accepted, storing the receiver's
// notes, and publishes collab.events.handoff.accepted.
func (m *Manager) AcceptHandoff(ctx context.Context, sessionID, handoffID, notes string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	handoff := s.findHandoff(handoffID)
	if handoff == nil {
		return fmt.Errorf("%w: %s in session %s", ErrHandoffNotFound, handoffID, s.ID)
	}
	if !handoff.Status.CanTransitionTo(HandoffStatusAccepted) {
		return fmt.Errorf("handoff %s: cannot accept in status %s", handoff.ID, handoff.Status)
	}
	handoff.Status = HandoffStatusAccepted
	handoff.Notes = notes

	m.logger.Info("Handoff accepted", "session_id", s.ID, "handoff_id", handoff.ID)
	publishEvent(ctx, m.publisher, m.logger, subjectHandoffAccepted, &HandoffAcceptedPayload{
		SessionID: s.ID,
		HandoffID: handoff.ID,
		Notes:     notes,
	})
	return nil
}

// RejectHandoff moves a pending handoff to rejected, storing the receiver's
// notes, and publishes collab.events.handoff.rejected. Rejected handoffs are
// terminal and never count toward stage completion.
func (m *Manager) RejectHandoff(ctx context.Context, sessionID, handoffID, notes string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	handoff := s.findHandoff(handoffID)
	if handoff == nil {
		return fmt.Errorf("%w: %s in session %s", ErrHandoffNotFound, handoffID, s.ID)
	}
	if !handoff.Status.CanTransitionTo(HandoffStatusRejected) {
		return fmt.Errorf("handoff %s: cannot reject in status %s", handoff.ID, handoff.Status)
	}
	handoff.Status = HandoffStatusRejected
	handoff.Notes = notes

	m.logger.Info("Handoff rejected", "session_id", s.ID, "handoff_id", handoff.ID)
	publishEvent(ctx, m.publisher, m.logger, subjectHandoffRejected, &HandoffRejectedPayload{
		SessionID: s.ID,
		HandoffID: handoff.ID,
		Notes:     notes,
	})
	return nil
}

// CompleteHandoff moves a handoff to completed, publishes
// collab.events.handoff.completed, and triggers stage transition evaluation.
// This is the only operation that can advance a stage; messages never do.
func (m *Manager) CompleteHandoff(ctx context.Context, sessionID, handoffID string, deliverables json.RawMessage) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	handoff := s.findHandoff(handoffID)
	if handoff == nil {
		return fmt.Errorf("%w: %s in session %s", ErrHandoffNotFound, handoffID, s.ID)
	}
	if !handoff.Status.CanTransitionTo(HandoffStatusCompleted) {
		return fmt.Errorf("handoff %s: cannot complete in status %s", handoff.ID, handoff.Status)
	}
	now := time.Now().UTC()
	handoff.Status = HandoffStatusCompleted
	handoff.CompletedAt = &now
	handoff.Deliverables = deliverables
	metricHandoffsCompleted.Inc()

	m.logger.Info("Handoff completed", "session_id", s.ID, "handoff_id", handoff.ID)
	publishEvent(ctx, m.publisher, m.logger, subjectHandoffCompleted, &HandoffCompletedPayload{
		SessionID:   s.ID,
		HandoffID:   handoff.ID,
		CompletedAt: now,
	})

	m.evaluateStagesLocked(ctx, entry)
	return nil
}

// EvaluateSession re-runs stage transition evaluation for a session. Used by
// the event bridge as a defensive re-check on external task completion; it
// never completes a stage whose handoffs are still open.
func (m *Manager) EvaluateSession(ctx context.Context, sessionID string) error {
	entry, err := m.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	m.evaluateStagesLocked(ctx, entry)
	return nil
}

// entry resolves an active session. Archived sessions are not found for
// mutation purposes.
func (m *Manager) entry(sessionID string) (*sessionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.active[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return entry, nil
}

// sendMessageLocked appends a message to the session trail and publishes the
// message.sent event. Caller holds the entry lock.
func (m *Manager) sendMessageLocked(ctx context.Context, entry *sessionEntry, from ParticipantType, to []ParticipantType, content string, msgType MessageType, payload json.RawMessage) *CollaborationMessage {
	s := entry.session
	msg := &CollaborationMessage{
		ID:               newMessageID(),
		SessionID:        s.ID,
		From:             from,
		To:               to,
		Content:          content,
		Type:             msgType,
		Payload:          payload,
		Timestamp:        time.Now().UTC(),
		RequiresResponse: msgType.RequiresResponse(),
	}
	s.Messages = append(s.Messages, msg)
	metricMessagesSent.WithLabelValues(msgType.String()).Inc()

	publishEvent(ctx, m.publisher, m.logger, subjectMessageSent, &MessageSentPayload{Message: msg})
	return msg
}

// completeLocked finishes the session and archives it. Caller holds the
// entry lock.
func (m *Manager) completeLocked(ctx context.Context, entry *sessionEntry, summary string) {
	s := entry.session
	now := time.Now().UTC()
	s.Status = SessionStatusCompleted
	s.EndTime = &now
	s.Summary = summary

	m.archive(s)
	metricSessionsCompleted.WithLabelValues(s.WorkflowID).Inc()
	metricActiveSessions.Dec()

	m.logger.Info("Collaboration session completed",
		"session_id", s.ID,
		"workflow", s.WorkflowID,
		"duration", now.Sub(s.StartTime))

	publishEvent(ctx, m.publisher, m.logger, subjectSessionCompleted, &SessionCompletedPayload{
		SessionID:   s.ID,
		WorkflowID:  s.WorkflowID,
		Summary:     summary,
		CompletedAt: now,
	})
}

// archive moves a session from the active set into history and, when a
// durable store is configured, writes it through best-effort.
func (m *Manager) archive(s *CollaborationSession) {
	m.mu.Lock()
	delete(m.active, s.ID)
	m.history = append(m.history, s)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Archive(context.Background(), s); err != nil {
			m.logger.Warn("Failed to archive session to history store",
				"session_id", s.ID,
				"error", err)
		}
	}
}
