package collab

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Stage transition engine. Evaluation runs once at session start (to
// activate the first stage) and after every handoff completion. All entry
// points run under the owning session's lock, so a session advances at most
// one stage per completed handoff and two concurrent completions cannot both
// pass the same transition check.

// evaluateStagesLocked walks the session's stage runtime in template order
// and closes the active stage when every handoff matching it has completed.
// The candidate set must be non-empty: a stage with no matching handoffs
// stays open. Handoffs matching no stage never count toward any stage and
// can stall a session indefinitely; that is an accepted limitation, not a
// silent fix. Caller holds the entry lock.
func (m *Manager) evaluateStagesLocked(ctx context.Context, entry *sessionEntry) {
	s := entry.session
	if s.Status == SessionStatusCompleted || s.Status == SessionStatusFailed {
		return
	}

	for i := range s.Stages {
		state := &s.Stages[i]
		if state.Status != StageStatusActive {
			continue
		}

		stage := entry.template.Stage(state.StageID)
		if stage == nil || !m.stageSatisfiedLocked(s, stage) {
			return
		}

		now := time.Now().UTC()
		state.Status = StageStatusCompleted
		state.EndedAt = &now
		metricStageTransitions.WithLabelValues(s.WorkflowID).Inc()

		m.logger.Info("Stage completed",
			"session_id", s.ID,
			"stage", stage.ID,
			"workflow", s.WorkflowID)

		if i+1 < len(s.Stages) {
			m.activateStageLocked(ctx, entry, i+1)
		} else {
			m.completeLocked(ctx, entry, "All workflow stages completed")
		}
		// One transition per evaluation pass.
		return
	}
}

// stageSatisfiedLocked reports whether the stage's handoff candidate set is
// non-empty and fully completed.
func (m *Manager) stageSatisfiedLocked(s *CollaborationSession, stage *WorkflowStage) bool {
	matched := false
	for _, h := range s.Handoffs {
		if !stage.Satisfies(h) {
			continue
		}
		matched = true
		if h.Status != HandoffStatusCompleted {
			return false
		}
	}
	return matched
}

// activateStageLocked marks the stage at idx active, notifies its primary
// agent (supporting agents copied), and publishes
// collab.events.stage.initiated. Caller holds the entry lock.
func (m *Manager) activateStageLocked(ctx context.Context, entry *sessionEntry, idx int) {
	s := entry.session
	state := &s.Stages[idx]
	stage := entry.template.Stage(state.StageID)

	now := time.Now().UTC()
	state.Status = StageStatusActive
	state.StartedAt = &now

	if stage == nil {
		m.logger.Error("Stage runtime references unknown template stage",
			"session_id", s.ID,
			"stage_id", state.StageID)
		return
	}

	recipients := append([]ParticipantType{stage.PrimaryAgent}, stage.SupportingAgents...)
	content := fmt.Sprintf("Stage %q started. Inputs: %s. Expected outputs: %s.",
		stage.Name,
		joinOrNone(stage.Inputs),
		joinOrNone(stage.Outputs))
	m.sendMessageLocked(ctx, entry, s.Initiator, recipients, content, MessageTypeRequest, nil)

	m.logger.Info("Stage activated",
		"session_id", s.ID,
		"stage", stage.ID,
		"primary_agent", stage.PrimaryAgent)

	publishEvent(ctx, m.publisher, m.logger, subjectStageInitiated, &StageInitiatedPayload{
		SessionID:    s.ID,
		StageID:      stage.ID,
		StageName:    stage.Name,
		PrimaryAgent: stage.PrimaryAgent,
		Inputs:       stage.Inputs,
		Outputs:      stage.Outputs,
	})
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
