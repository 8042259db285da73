package collabbridge

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the collab-bridge component.
type Config struct {
	// StreamName is the JetStream stream carrying external agent signals.
	StreamName string `json:"stream_name"`

	// ConsumerPrefix namespaces the durable consumers created per subject.
	ConsumerPrefix string `json:"consumer_prefix,omitempty"`

	// AckWaitSecs is the redelivery window for unacknowledged signals.
	AckWaitSecs int `json:"ack_wait_secs,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:     "AGENT",
		ConsumerPrefix: "collab-bridge",
		AckWaitSecs:    10,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "agent-status",
					Type:        "jetstream",
					Subject:     "agent.status.changed",
					StreamName:  "AGENT",
					Description: "Participant availability changes",
					Required:    true,
				},
				{
					Name:        "task-completions",
					Type:        "jetstream",
					Subject:     "task.completed",
					StreamName:  "AGENT",
					Description: "External task completion signals",
					Required:    true,
				},
				{
					Name:        "quality-issues",
					Type:        "jetstream",
					Subject:     "quality.issue.reported",
					StreamName:  "AGENT",
					Description: "Quality issue reports",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "collab-events",
					Type:        "jetstream",
					Subject:     "collab.events.>",
					StreamName:  "COLLAB",
					Description: "Collaboration notifications emitted via the session manager",
					Required:    false,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.AckWaitSecs < 0 {
		return fmt.Errorf("ack_wait_secs must be non-negative")
	}
	return nil
}
