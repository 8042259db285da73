package collab

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// WorkflowKind classifies how a template's stages relate to each other.
// The engine walks every template linearly; the kind is routing metadata
// for collaborators and the event bridge.
type WorkflowKind string

const (
	// WorkflowKindSequential runs stages strictly in order.
	WorkflowKindSequential WorkflowKind = "sequential"
	// WorkflowKindParallel allows stages to overlap conceptually.
	WorkflowKindParallel WorkflowKind = "parallel"
	// WorkflowKindCollaborative has no single driving participant per stage.
	WorkflowKindCollaborative WorkflowKind = "collaborative"
	// WorkflowKindReviewCycle alternates work and review stages.
	WorkflowKindReviewCycle WorkflowKind = "review_cycle"
	// WorkflowKindIterative repeats its stage sequence until done.
	WorkflowKindIterative WorkflowKind = "iterative"
	// WorkflowKindEmergencyResponse is auto-started by the event bridge on
	// critical quality issues.
	WorkflowKindEmergencyResponse WorkflowKind = "emergency_response"
)

// String returns the string representation of the workflow kind.
func (k WorkflowKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the known workflow kinds.
func (k WorkflowKind) IsValid() bool {
	switch k {
	case WorkflowKindSequential, WorkflowKindParallel, WorkflowKindCollaborative,
		WorkflowKindReviewCycle, WorkflowKindIterative, WorkflowKindEmergencyResponse:
		return true
	default:
		return false
	}
}

// HandoffRule documents the expected work transfer between two participant
// types within a template. Rules are descriptive: the engine evaluates stage
// completion against stage outputs, not rules.
type HandoffRule struct {
	// From is the participant type expected to hand work over.
	From ParticipantType `json:"from" yaml:"from"`

	// To is the participant type expected to receive it.
	To ParticipantType `json:"to" yaml:"to"`

	// Trigger describes the condition under which the handoff occurs.
	Trigger string `json:"trigger" yaml:"trigger"`

	// Deliverables lists what must accompany the handoff.
	Deliverables []string `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`

	// Validation lists criteria the receiver applies before accepting.
	Validation []string `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// WorkflowStage is one ordered phase of a workflow template.
type WorkflowStage struct {
	// ID uniquely identifies the stage within its template.
	ID string `json:"id" yaml:"id"`

	// Name is the display name; it also participates in handoff matching.
	Name string `json:"name" yaml:"name"`

	// Description is the purpose of the stage.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// PrimaryAgent is the participant type responsible for driving the stage.
	PrimaryAgent ParticipantType `json:"primary_agent" yaml:"primary_agent"`

	// SupportingAgents are copied on stage-initiation notifications but are
	// not required to act.
	SupportingAgents []ParticipantType `json:"supporting_agents,omitempty" yaml:"supporting_agents,omitempty"`

	// Inputs names artifacts expected to flow into the stage (informational).
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Outputs names artifacts the stage is expected to produce. Handoffs
	// whose deliverables intersect these outputs count toward completion.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Dependencies lists stage ids that must precede this one. Only
	// meaningful for non-linear kinds; the engine walks templates linearly.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// TaskPattern is an optional glob evaluated against a handoff's task
	// text (case-insensitive). When set it takes precedence over the
	// stage-name containment fallback.
	TaskPattern string `json:"task_pattern,omitempty" yaml:"task_pattern,omitempty"`
}

// Satisfies reports whether a handoff counts toward this stage's completion.
// A handoff matches when its task text matches the stage's TaskPattern glob,
// or contains the stage name (case-insensitive), or when its declared
// deliverables intersect the stage's outputs. A handoff matching no stage
// never counts toward any stage.
func (s *WorkflowStage) Satisfies(h *AgentHandoff) bool {
	task := strings.ToLower(h.Context.Task)

	if s.TaskPattern != "" {
		if ok, err := doublestar.Match(strings.ToLower(s.TaskPattern), task); err == nil && ok {
			return true
		}
	} else if name := strings.ToLower(s.Name); name != "" && strings.Contains(task, name) {
		return true
	}

	for _, d := range h.Context.Deliverables {
		for _, out := range s.Outputs {
			if strings.EqualFold(d, out) {
				return true
			}
		}
	}
	return false
}

// WorkflowTemplate is an immutable, named definition of a workflow's stages,
// roles, and handoff rules. Templates are seeded once at process start and
// shared by reference across all sessions instantiating them.
type WorkflowTemplate struct {
	// ID is the catalog key (e.g., "NEW_FEATURE_DEVELOPMENT").
	ID string `json:"id" yaml:"id"`

	// Kind classifies the template.
	Kind WorkflowKind `json:"kind" yaml:"kind"`

	// Name is the human-readable title.
	Name string `json:"name" yaml:"name"`

	// Description explains what the workflow is for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Stages is the ordered stage sequence. Order defines the only allowed
	// progression path.
	Stages []WorkflowStage `json:"stages" yaml:"stages"`

	// ParticipantRoles documents each participant type's responsibilities.
	// Documentation only, not enforced.
	ParticipantRoles map[ParticipantType][]string `json:"participant_roles,omitempty" yaml:"participant_roles,omitempty"`

	// HandoffRules documents the expected inter-participant transfers.
	HandoffRules []HandoffRule `json:"handoff_rules,omitempty" yaml:"handoff_rules,omitempty"`

	// CompletionCriteria is a human-readable checklist. The engine never
	// evaluates it.
	CompletionCriteria []string `json:"completion_criteria,omitempty" yaml:"completion_criteria,omitempty"`
}

// Validate checks structural soundness of a template definition.
func (t *WorkflowTemplate) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "template id is required"}
	}
	if !t.Kind.IsValid() {
		return &ValidationError{Field: "kind", Message: "unknown workflow kind: " + t.Kind.String()}
	}
	seen := make(map[string]bool, len(t.Stages))
	for i := range t.Stages {
		stage := &t.Stages[i]
		if stage.ID == "" {
			return &ValidationError{Field: "stages", Message: "stage id is required"}
		}
		if seen[stage.ID] {
			return &ValidationError{Field: "stages", Message: "duplicate stage id: " + stage.ID}
		}
		seen[stage.ID] = true
		if stage.PrimaryAgent == "" {
			return &ValidationError{Field: "stages", Message: "stage " + stage.ID + ": primary_agent is required"}
		}
	}
	return nil
}

// Stage returns the stage with the given id, or nil.
func (t *WorkflowTemplate) Stage(id string) *WorkflowStage {
	for i := range t.Stages {
		if t.Stages[i].ID == id {
			return &t.Stages[i]
		}
	}
	return nil
}
