// Package collabbridge subscribes to external agent signals and reacts on
// behalf of collaboration sessions: participant status changes are broadcast
// into affected sessions, task completions trigger a defensive stage
// re-check, and critical quality issues auto-start an emergency response
// session.
package collabbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semcollab/collab"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/nats-io/nats.go/jetstream"
)

// bridgeSchema defines the configuration schema.
var bridgeSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Component implements the collab-bridge processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	manager    *collab.Manager
	decoder    *message.Decoder
	logger     *slog.Logger

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	signalsProcessed  atomic.Int64
	emergenciesRaised atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent creates a new collab-bridge processor bound to a session
// manager. The registry resolves envelope-wrapped signals; a nil registry
// restricts the bridge to raw signal bodies.
func NewComponent(rawConfig json.RawMessage, manager *collab.Manager, nc *natsclient.Client, reg *payloadregistry.Registry, logger *slog.Logger) (*Component, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Apply defaults if not specified
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerPrefix == "" {
		config.ConsumerPrefix = defaults.ConsumerPrefix
	}
	if config.AckWaitSecs == 0 {
		config.AckWaitSecs = defaults.AckWaitSecs
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if manager == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Component{
		name:       "collab-bridge",
		config:     config,
		natsClient: nc,
		manager:    manager,
		logger:     logger,
	}
	if reg != nil {
		c.decoder = message.NewDecoder(reg)
	}
	return c, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized collab-bridge",
		"stream", c.config.StreamName,
		"consumer_prefix", c.config.ConsumerPrefix)
	return nil
}

// Start begins consuming external agent signals.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	consumeCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	ackWait := time.Duration(c.config.AckWaitSecs) * time.Second
	consumers := []struct {
		suffix  string
		subject string
		handler func(context.Context, jetstream.Msg)
	}{
		{"agent-status", collab.SubjectAgentStatusChanged, c.handleAgentStatus},
		{"task-completed", collab.SubjectTaskCompleted, c.handleTaskCompleted},
		{"quality-issue", collab.SubjectQualityIssueReported, c.handleQualityIssue},
	}

	for _, consumer := range consumers {
		cfg := natsclient.StreamConsumerConfig{
			StreamName:    c.config.StreamName,
			ConsumerName:  c.config.ConsumerPrefix + "-" + consumer.suffix,
			FilterSubject: consumer.subject,
			DeliverPolicy: "new",
			AckPolicy:     "explicit",
			MaxDeliver:    3,
			AckWait:       ackWait,
		}
		if err := c.natsClient.ConsumeStreamWithConfig(consumeCtx, cfg, consumer.handler); err != nil {
			// Rollback running state on failure
			c.mu.Lock()
			c.running = false
			c.cancel = nil
			c.mu.Unlock()
			cancel()
			return fmt.Errorf("consume %s: %w", consumer.subject, err)
		}
	}

	c.logger.Info("collab-bridge started",
		"stream", c.config.StreamName,
		"subjects", len(consumers))

	return nil
}

// handleAgentStatus broadcasts a status update into every active session
// that invited the participant type.
func (c *Component) handleAgentStatus(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message during shutdown", "error", err)
		}
		return
	}
	c.signalsProcessed.Add(1)
	c.updateLastActivity()

	event, err := parseSignal[AgentStatusChangedEvent](c.decoder, msg.Data())
	if err != nil || event.AgentType == "" {
		c.logger.Warn("Discarding malformed agent status signal", "error", err)
		c.ack(msg)
		return
	}

	content := fmt.Sprintf("Agent %s (%s) is now %s", event.AgentID, event.AgentType, event.NewStatus)
	for _, session := range c.manager.ListActive() {
		if !session.HasParticipant(event.AgentType) {
			continue
		}
		if _, err := c.manager.SendMessage(ctx, session.ID, event.AgentType, session.Participants,
			content, collab.MessageTypeStatusUpdate, nil); err != nil {
			// The session may have completed between listing and sending.
			c.logger.Debug("Skipped status broadcast",
				"session_id", session.ID,
				"error", err)
		}
	}

	c.ack(msg)
}

// handleTaskCompleted re-runs stage evaluation for sessions tracking the
// completed task. The re-check is defensive; it cannot complete a stage
// whose handoffs are still open.
func (c *Component) handleTaskCompleted(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message during shutdown", "error", err)
		}
		return
	}
	c.signalsProcessed.Add(1)
	c.updateLastActivity()

	event, err := parseSignal[TaskCompletedEvent](c.decoder, msg.Data())
	if err != nil || event.TaskID == "" {
		c.logger.Warn("Discarding malformed task completion signal", "error", err)
		c.ack(msg)
		return
	}

	for _, session := range c.manager.ListActive() {
		if session.Context.TaskID != event.TaskID {
			continue
		}
		if err := c.manager.EvaluateSession(ctx, session.ID); err != nil {
			c.logger.Debug("Skipped stage re-check",
				"session_id", session.ID,
				"error", err)
		}
	}

	c.ack(msg)
}

// handleQualityIssue auto-starts an emergency response session for critical
// and blocker severities and broadcasts the issue to its participants.
func (c *Component) handleQualityIssue(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message during shutdown", "error", err)
		}
		return
	}
	c.signalsProcessed.Add(1)
	c.updateLastActivity()

	event, err := parseSignal[QualityIssueReportedEvent](c.decoder, msg.Data())
	if err != nil || event.Issue.Title == "" {
		c.logger.Warn("Discarding malformed quality issue signal", "error", err)
		c.ack(msg)
		return
	}

	if !event.IsEmergency() {
		c.ack(msg)
		return
	}

	participants := []collab.ParticipantType{
		collab.ParticipantQA,
		collab.ParticipantEngineer,
		collab.ParticipantArchitect,
	}
	sessionID, err := c.manager.Start(ctx, collab.EmergencyResponseID,
		collab.SessionContext{
			Description: event.Issue.Title,
			Priority:    event.Severity,
		},
		collab.ParticipantQA, participants)
	if err != nil {
		c.logger.Error("Failed to start emergency session",
			"issue", event.Issue.Title,
			"error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("Failed to NAK quality issue signal", "error", nakErr)
		}
		return
	}
	c.emergenciesRaised.Add(1)

	content := fmt.Sprintf("%s quality issue: %s. %s", event.Severity, event.Issue.Title, event.Issue.Description)
	if _, err := c.manager.SendMessage(ctx, sessionID, collab.ParticipantQA, participants,
		content, collab.MessageTypeRequest, nil); err != nil {
		c.logger.Warn("Failed to broadcast quality issue",
			"session_id", sessionID,
			"error", err)
	}

	c.logger.Info("Emergency session started",
		"session_id", sessionID,
		"severity", event.Severity,
		"issue", event.Issue.Title)

	c.ack(msg)
}

func (c *Component) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// parseSignal decodes a signal that may arrive raw or wrapped in a message
// envelope. The wrapped form resolves its payload type against the decoder's
// registry, so it only works for registered signal types.
func parseSignal[T any](dec *message.Decoder, data []byte) (*T, error) {
	var direct T
	if err := json.Unmarshal(data, &direct); err == nil && !isZero(&direct) {
		return &direct, nil
	}

	if dec == nil {
		return nil, fmt.Errorf("signal is not in raw form and no payload decoder is configured")
	}
	baseMsg, err := dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode signal envelope: %w", err)
	}
	event, ok := any(baseMsg.Payload()).(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected signal payload type %T", baseMsg.Payload())
	}
	return event, nil
}

func isZero[T any](v *T) bool {
	var zero T
	return reflect.DeepEqual(*v, zero)
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("collab-bridge stopped",
		"signals_processed", c.signalsProcessed.Load(),
		"emergencies_raised", c.emergenciesRaised.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "collab-bridge",
		Type:        "processor",
		Description: "Bridges external agent signals into collaboration sessions",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.JetStreamPort{
				StreamName: c.config.StreamName,
				Subjects:   []string{portDef.Subject},
			},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.JetStreamPort{
				StreamName: portDef.StreamName,
				Subjects:   []string{portDef.Subject},
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return bridgeSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: 0,
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
