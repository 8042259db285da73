package collab

import (
	"strings"
	"testing"
)

func TestSessionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   SessionStatus
		to     SessionStatus
		expect bool
	}{
		{"active to paused", SessionStatusActive, SessionStatusPaused, true},
		{"active to completed", SessionStatusActive, SessionStatusCompleted, true},
		{"active to failed", SessionStatusActive, SessionStatusFailed, true},
		{"paused to active", SessionStatusPaused, SessionStatusActive, true},
		{"paused to completed", SessionStatusPaused, SessionStatusCompleted, true},
		{"completed is terminal", SessionStatusCompleted, SessionStatusActive, false},
		{"failed is terminal", SessionStatusFailed, SessionStatusActive, false},
		{"active to active", SessionStatusActive, SessionStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expect {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.expect)
			}
		})
	}
}

func TestStageStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   StageStatus
		to     StageStatus
		expect bool
	}{
		{"pending to active", StageStatusPending, StageStatusActive, true},
		{"active to completed", StageStatusActive, StageStatusCompleted, true},
		{"pending to completed", StageStatusPending, StageStatusCompleted, false},
		{"completed is terminal", StageStatusCompleted, StageStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expect {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.expect)
			}
		})
	}
}

func TestHandoffStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   HandoffStatus
		to     HandoffStatus
		expect bool
	}{
		{"pending to accepted", HandoffStatusPending, HandoffStatusAccepted, true},
		{"pending to rejected", HandoffStatusPending, HandoffStatusRejected, true},
		{"pending completes directly", HandoffStatusPending, HandoffStatusCompleted, true},
		{"accepted to completed", HandoffStatusAccepted, HandoffStatusCompleted, true},
		{"accepted to rejected", HandoffStatusAccepted, HandoffStatusRejected, false},
		{"rejected is terminal", HandoffStatusRejected, HandoffStatusCompleted, false},
		{"completed is terminal", HandoffStatusCompleted, HandoffStatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expect {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.expect)
			}
		})
	}
}

func TestMessageType_RequiresResponse(t *testing.T) {
	tests := []struct {
		msgType MessageType
		expect  bool
	}{
		{MessageTypeRequest, true},
		{MessageTypeHandoff, true},
		{MessageTypeResponse, false},
		{MessageTypeClarification, false},
		{MessageTypeStatusUpdate, false},
	}

	for _, tt := range tests {
		t.Run(tt.msgType.String(), func(t *testing.T) {
			if got := tt.msgType.RequiresResponse(); got != tt.expect {
				t.Errorf("%s.RequiresResponse() = %v, want %v", tt.msgType, got, tt.expect)
			}
		})
	}
}

func TestMessageType_IsValid(t *testing.T) {
	if MessageType("broadcast").IsValid() {
		t.Error("unknown message type should not be valid")
	}
	if !MessageTypeClarification.IsValid() {
		t.Error("clarification should be valid")
	}
}

func TestCollaborationSession_HasParticipant(t *testing.T) {
	s := &CollaborationSession{
		Participants: []ParticipantType{ParticipantProducer, ParticipantEngineer},
	}

	if !s.HasParticipant(ParticipantEngineer) {
		t.Error("HasParticipant(engineer) = false, want true")
	}
	if s.HasParticipant(ParticipantQA) {
		t.Error("HasParticipant(qa) = true, want false")
	}
}

func TestCollaborationSession_ActiveStage(t *testing.T) {
	s := &CollaborationSession{
		Stages: []StageState{
			{StageID: "a", Status: StageStatusCompleted},
			{StageID: "b", Status: StageStatusActive},
			{StageID: "c", Status: StageStatusPending},
		},
	}

	if got := s.ActiveStage(); got != 1 {
		t.Errorf("ActiveStage() = %d, want 1", got)
	}

	s.Stages[1].Status = StageStatusCompleted
	if got := s.ActiveStage(); got != -1 {
		t.Errorf("ActiveStage() = %d, want -1 with no active stage", got)
	}
}

func TestIDFormats(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"session", newSessionID(), "sess-"},
		{"message", newMessageID(), "msg-"},
		{"handoff", newHandoffID(), "handoff-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix) {
				t.Errorf("id %q should start with %q", tt.id, tt.prefix)
			}
			if len(tt.id) != len(tt.prefix)+8 {
				t.Errorf("id %q should carry an 8-char suffix", tt.id)
			}
		})
	}
}
