package collab

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Template IDs for the built-in workflow definitions.
const (
	// NewFeatureDevelopmentID walks a feature request through analysis,
	// design, implementation, and quality assurance.
	NewFeatureDevelopmentID = "NEW_FEATURE_DEVELOPMENT"

	// BugFixID cycles a defect through triage, fix, and verification.
	BugFixID = "BUG_FIX"

	// EmergencyResponseID is auto-started by the event bridge when a
	// critical or blocker quality issue is reported.
	EmergencyResponseID = "EMERGENCY_RESPONSE"
)

// Catalog maps workflow template ids to immutable templates. It is seeded at
// construction and, apart from an optional startup overlay, never mutated;
// concurrent sessions share templates by reference.
type Catalog struct {
	templates map[string]*WorkflowTemplate
}

// NewCatalog creates a catalog seeded with the built-in templates.
func NewCatalog() *Catalog {
	c := &Catalog{templates: make(map[string]*WorkflowTemplate)}
	for _, t := range builtinTemplates() {
		c.templates[t.ID] = t
	}
	return c
}

// Lookup returns the template with the given id. It fails with
// ErrTemplateNotFound when no such template exists.
func (c *Catalog) Lookup(id string) (*WorkflowTemplate, error) {
	t, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// IDs returns the sorted template ids in the catalog.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// overlayFile is the structure of a template overlay YAML file.
type overlayFile struct {
	Version   string              `yaml:"version"`
	Templates []*WorkflowTemplate `yaml:"templates"`
}

// LoadOverlay adds templates from a YAML file to the catalog. It must only
// be called during startup, before any session references the catalog;
// templates are read-only afterward. Duplicate ids fail with
// ErrDuplicateTemplate rather than replacing a built-in.
func (c *Catalog) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template overlay: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse template overlay: %w", err)
	}

	for _, t := range overlay.Templates {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %q: %w", t.ID, err)
		}
		if _, exists := c.templates[t.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.ID)
		}
		c.templates[t.ID] = t
	}
	return nil
}

func builtinTemplates() []*WorkflowTemplate {
	return []*WorkflowTemplate{
		{
			ID:          NewFeatureDevelopmentID,
			Kind:        WorkflowKindSequential,
			Name:        "New Feature Development",
			Description: "Turn a feature request into analyzed requirements, a design, an implementation, and a quality check.",
			Stages: []WorkflowStage{
				{
					ID:           "requirements_analysis",
					Name:         "Requirements Analysis",
					Description:  "Clarify the feature request into actionable requirements.",
					PrimaryAgent: ParticipantProducer,
					SupportingAgents: []ParticipantType{
						ParticipantArchitect,
					},
					Inputs:  []string{"Feature request"},
					Outputs: []string{"Clarified requirements", "Project plan"},
				},
				{
					ID:           "system_design",
					Name:         "System Design",
					Description:  "Design the system changes that satisfy the requirements.",
					PrimaryAgent: ParticipantArchitect,
					SupportingAgents: []ParticipantType{
						ParticipantEngineer,
					},
					Inputs:       []string{"Clarified requirements", "Project plan"},
					Outputs:      []string{"Design document", "Interface definitions"},
					Dependencies: []string{"requirements_analysis"},
				},
				{
					ID:           "implementation",
					Name:         "Implementation",
					Description:  "Build the designed changes.",
					PrimaryAgent: ParticipantEngineer,
					Inputs:       []string{"Design document", "Interface definitions"},
					Outputs:      []string{"Implementation", "Tests"},
					Dependencies: []string{"system_design"},
				},
				{
					ID:           "quality_assurance",
					Name:         "Quality Assurance",
					Description:  "Verify the implementation against the requirements.",
					PrimaryAgent: ParticipantQA,
					SupportingAgents: []ParticipantType{
						ParticipantEngineer,
					},
					Inputs:       []string{"Implementation", "Tests"},
					Outputs:      []string{"QA report"},
					Dependencies: []string{"implementation"},
				},
			},
			ParticipantRoles: map[ParticipantType][]string{
				ParticipantProducer:  {"Clarify requirements", "Prioritize scope"},
				ParticipantArchitect: {"Design the system", "Review implementation structure"},
				ParticipantEngineer:  {"Implement the design", "Write tests"},
				ParticipantQA:        {"Verify against requirements", "Report defects"},
			},
			HandoffRules: []HandoffRule{
				{
					From:         ParticipantProducer,
					To:           ParticipantArchitect,
					Trigger:      "requirements clarified",
					Deliverables: []string{"Clarified requirements", "Project plan"},
					Validation:   []string{"Requirements are testable", "Scope is bounded"},
				},
				{
					From:         ParticipantArchitect,
					To:           ParticipantEngineer,
					Trigger:      "design approved",
					Deliverables: []string{"Design document", "Interface definitions"},
					Validation:   []string{"Design covers all requirements"},
				},
				{
					From:         ParticipantEngineer,
					To:           ParticipantQA,
					Trigger:      "implementation complete",
					Deliverables: []string{"Implementation", "Tests"},
					Validation:   []string{"Tests pass", "Design followed"},
				},
			},
			CompletionCriteria: []string{
				"All requirements implemented",
				"QA report shows no open blockers",
			},
		},
		{
			ID:          BugFixID,
			Kind:        WorkflowKindReviewCycle,
			Name:        "Bug Fix",
			Description: "Cycle a reported defect through triage, fix, and verification.",
			Stages: []WorkflowStage{
				{
					ID:           "triage",
					Name:         "Triage",
					Description:  "Reproduce the defect and isolate its cause.",
					PrimaryAgent: ParticipantQA,
					Inputs:       []string{"Defect report"},
					Outputs:      []string{"Reproduction steps", "Root cause"},
				},
				{
					ID:           "fix",
					Name:         "Fix",
					Description:  "Implement and self-review the fix.",
					PrimaryAgent: ParticipantEngineer,
					Inputs:       []string{"Reproduction steps", "Root cause"},
					Outputs:      []string{"Fix", "Regression test"},
					Dependencies: []string{"triage"},
				},
				{
					ID:           "verification",
					Name:         "Verification",
					Description:  "Verify the fix against the original report.",
					PrimaryAgent: ParticipantQA,
					Inputs:       []string{"Fix", "Regression test"},
					Outputs:      []string{"Verification report"},
					Dependencies: []string{"fix"},
				},
			},
			HandoffRules: []HandoffRule{
				{
					From:         ParticipantQA,
					To:           ParticipantEngineer,
					Trigger:      "defect reproduced",
					Deliverables: []string{"Reproduction steps", "Root cause"},
				},
				{
					From:         ParticipantEngineer,
					To:           ParticipantQA,
					Trigger:      "fix ready",
					Deliverables: []string{"Fix", "Regression test"},
				},
			},
			CompletionCriteria: []string{"Original report no longer reproduces"},
		},
		{
			ID:          EmergencyResponseID,
			Kind:        WorkflowKindEmergencyResponse,
			Name:        "Emergency Response",
			Description: "Assess and mitigate a critical quality issue.",
			Stages: []WorkflowStage{
				{
					ID:           "impact_assessment",
					Name:         "Impact Assessment",
					Description:  "Establish blast radius and urgency.",
					PrimaryAgent: ParticipantQA,
					SupportingAgents: []ParticipantType{
						ParticipantArchitect,
					},
					Inputs:  []string{"Quality issue"},
					Outputs: []string{"Impact assessment"},
				},
				{
					ID:           "mitigation",
					Name:         "Mitigation",
					Description:  "Contain and resolve the issue.",
					PrimaryAgent: ParticipantEngineer,
					SupportingAgents: []ParticipantType{
						ParticipantArchitect, ParticipantQA,
					},
					Inputs:       []string{"Impact assessment"},
					Outputs:      []string{"Mitigation"},
					Dependencies: []string{"impact_assessment"},
				},
			},
			HandoffRules: []HandoffRule{
				{
					From:         ParticipantQA,
					To:           ParticipantEngineer,
					Trigger:      "impact assessed",
					Deliverables: []string{"Impact assessment"},
				},
			},
			CompletionCriteria: []string{"Issue mitigated or downgraded"},
		},
	}
}
