package collab

import "github.com/c360studio/semstreams/natsclient"

// Subjects the manager publishes to (fire-and-forget) and the subjects the
// event bridge consumes from external collaborators.
const (
	subjectSessionStarted   = "collab.events.session.started"
	subjectSessionCompleted = "collab.events.session.completed"
	subjectSessionPaused    = "collab.events.session.paused"
	subjectSessionResumed   = "collab.events.session.resumed"
	subjectSessionFailed    = "collab.events.session.failed"
	subjectMessageSent      = "collab.events.message.sent"
	subjectHandoffInitiated = "collab.events.handoff.initiated"
	subjectHandoffAccepted  = "collab.events.handoff.accepted"
	subjectHandoffRejected  = "collab.events.handoff.rejected"
	subjectHandoffCompleted = "collab.events.handoff.completed"
	subjectStageInitiated   = "collab.events.stage.initiated"

	// SubjectAgentStatusChanged carries participant availability changes
	// from the agent runtime.
	SubjectAgentStatusChanged = "agent.status.changed"

	// SubjectTaskCompleted carries external task completion signals.
	SubjectTaskCompleted = "task.completed"

	// SubjectQualityIssueReported carries quality issue reports; critical
	// and blocker severities auto-start an emergency response session.
	SubjectQualityIssueReported = "quality.issue.reported"
)

// Typed subject definitions for collaboration domain events.
var (
	SessionStarted   = natsclient.NewSubject[SessionStartedPayload](subjectSessionStarted)
	SessionCompleted = natsclient.NewSubject[SessionCompletedPayload](subjectSessionCompleted)
	SessionPaused    = natsclient.NewSubject[SessionPausedPayload](subjectSessionPaused)
	SessionResumed   = natsclient.NewSubject[SessionResumedPayload](subjectSessionResumed)
	SessionFailed    = natsclient.NewSubject[SessionFailedPayload](subjectSessionFailed)
	MessageSent      = natsclient.NewSubject[MessageSentPayload](subjectMessageSent)
	HandoffInitiated = natsclient.NewSubject[HandoffInitiatedPayload](subjectHandoffInitiated)
	HandoffAccepted  = natsclient.NewSubject[HandoffAcceptedPayload](subjectHandoffAccepted)
	HandoffRejected  = natsclient.NewSubject[HandoffRejectedPayload](subjectHandoffRejected)
	HandoffCompleted = natsclient.NewSubject[HandoffCompletedPayload](subjectHandoffCompleted)
	StageInitiated   = natsclient.NewSubject[StageInitiatedPayload](subjectStageInitiated)
)
