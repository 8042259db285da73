package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// fakePublisher records published subjects and bodies for assertions.
type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	last     map[string][]byte
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	p.subjects = append(p.subjects, subject)
	if p.last == nil {
		p.last = make(map[string][]byte)
	}
	p.last[subject] = data
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) lastData(subject string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[subject]
}

func (p *fakePublisher) published(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, s := range p.subjects {
		if s == subject {
			count++
		}
	}
	return count
}

// errPublisher fails every publish. Event delivery is best-effort, so
// operations must still succeed.
type errPublisher struct{}

func (errPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("bus down")
}

func newTestManager() (*Manager, *fakePublisher) {
	pub := &fakePublisher{}
	return NewManager(NewCatalog(), pub, nil), pub
}

func featureParticipants() []ParticipantType {
	return []ParticipantType{ParticipantProducer, ParticipantArchitect, ParticipantEngineer, ParticipantQA}
}

func TestManager_Start(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, NewFeatureDevelopmentID, SessionContext{Description: "Add exports"},
		ParticipantProducer, featureParticipants())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s, ok := m.Get(id)
	if !ok {
		t.Fatal("Get() should find the new session")
	}
	if s.Status != SessionStatusActive {
		t.Errorf("Status = %q, want active", s.Status)
	}
	if s.WorkflowID != NewFeatureDevelopmentID {
		t.Errorf("WorkflowID = %q, want %q", s.WorkflowID, NewFeatureDevelopmentID)
	}
	if s.Kind != WorkflowKindSequential {
		t.Errorf("Kind = %q, want sequential", s.Kind)
	}
	if len(s.Stages) != 4 {
		t.Fatalf("len(Stages) = %d, want 4", len(s.Stages))
	}
	if s.Stages[0].Status != StageStatusActive {
		t.Errorf("first stage status = %q, want active", s.Stages[0].Status)
	}
	for i := 1; i < len(s.Stages); i++ {
		if s.Stages[i].Status != StageStatusPending {
			t.Errorf("stage %d status = %q, want pending", i, s.Stages[i].Status)
		}
	}

	// Stage activation notifies the primary agent with a request message.
	if len(s.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 stage notification", len(s.Messages))
	}
	if s.Messages[0].Type != MessageTypeRequest {
		t.Errorf("notification type = %q, want request", s.Messages[0].Type)
	}
	if !s.Messages[0].RequiresResponse {
		t.Error("stage notification should require a response")
	}

	if pub.published("collab.events.session.started") != 1 {
		t.Error("session.started should be published once")
	}
	if pub.published("collab.events.stage.initiated") != 1 {
		t.Error("stage.initiated should be published once")
	}
}

func TestManager_Start_UnknownTemplate(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Start(context.Background(), "UNKNOWN", SessionContext{}, ParticipantProducer, nil)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Start() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestManager_Start_ZeroStageTemplate(t *testing.T) {
	catalog := &Catalog{templates: map[string]*WorkflowTemplate{
		"EMPTY": {ID: "EMPTY", Kind: WorkflowKindSequential, Name: "Empty"},
	}}
	pub := &fakePublisher{}
	m := NewManager(catalog, pub, nil)

	id, err := m.Start(context.Background(), "EMPTY", SessionContext{}, ParticipantProducer, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s, ok := m.Get(id)
	if !ok {
		t.Fatal("Get() should find the session in history")
	}
	if s.Status != SessionStatusCompleted {
		t.Errorf("Status = %q, want completed immediately", s.Status)
	}
	if len(m.ListActive()) != 0 {
		t.Error("zero-stage session should not remain active")
	}
	if pub.published("collab.events.session.completed") != 1 {
		t.Error("session.completed should be published once")
	}
}

func TestManager_OperationsOnUnknownSession(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	ops := map[string]func() error{
		"Pause":    func() error { return m.Pause(ctx, "sess-missing") },
		"Resume":   func() error { return m.Resume(ctx, "sess-missing") },
		"Complete": func() error { return m.Complete(ctx, "sess-missing", "done") },
		"Fail":     func() error { return m.Fail(ctx, "sess-missing", "oops") },
		"SendMessage": func() error {
			_, err := m.SendMessage(ctx, "sess-missing", ParticipantQA, nil, "hi", MessageTypeRequest, nil)
			return err
		},
		"InitiateHandoff": func() error {
			_, err := m.InitiateHandoff(ctx, "sess-missing", ParticipantQA, ParticipantEngineer, HandoffContext{Task: "x"})
			return err
		},
		"AcceptHandoff":   func() error { return m.AcceptHandoff(ctx, "sess-missing", "handoff-x", "") },
		"CompleteHandoff": func() error { return m.CompleteHandoff(ctx, "sess-missing", "handoff-x", nil) },
		"EvaluateSession": func() error { return m.EvaluateSession(ctx, "sess-missing") },
	}

	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("%s error = %v, want ErrSessionNotFound", name, err)
		}
	}

	if _, err := m.Export("sess-missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Export error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_SendMessage(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA,
		[]ParticipantType{ParticipantQA, ParticipantEngineer})
	if err != nil {
		t.Fatal(err)
	}

	// Empty type defaults to request.
	msgID, err := m.SendMessage(ctx, id, ParticipantQA, []ParticipantType{ParticipantEngineer},
		"Can you look at this stack trace?", "", nil)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	s, _ := m.Get(id)
	last := s.Messages[len(s.Messages)-1]
	if last.ID != msgID {
		t.Errorf("message id = %q, want %q", last.ID, msgID)
	}
	if last.Type != MessageTypeRequest {
		t.Errorf("defaulted type = %q, want request", last.Type)
	}
	if !last.RequiresResponse {
		t.Error("request message should require a response")
	}
	if last.SessionID != id {
		t.Errorf("message session id = %q, want %q", last.SessionID, id)
	}

	// Status updates do not demand a response.
	_, err = m.SendMessage(ctx, id, ParticipantEngineer, []ParticipantType{ParticipantQA},
		"Still digging", MessageTypeStatusUpdate, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, _ = m.Get(id)
	if s.Messages[len(s.Messages)-1].RequiresResponse {
		t.Error("status update should not require a response")
	}

	if pub.published("collab.events.message.sent") < 2 {
		t.Error("each sent message should be published")
	}
}

func TestManager_SendMessage_InvalidType(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.SendMessage(ctx, id, ParticipantQA, nil, "hi", "carrier_pigeon", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("SendMessage() error = %v, want ValidationError", err)
	}
}

func TestManager_PauseResume(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA,
		[]ParticipantType{ParticipantQA, ParticipantEngineer})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Pause(ctx, id); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	s, _ := m.Get(id)
	if s.Status != SessionStatusPaused {
		t.Errorf("Status = %q, want paused", s.Status)
	}

	// Pausing is advisory: messages and handoffs still flow.
	if _, err := m.SendMessage(ctx, id, ParticipantQA, nil, "parked for now", MessageTypeStatusUpdate, nil); err != nil {
		t.Errorf("SendMessage() on paused session error = %v, want nil", err)
	}
	if _, err := m.InitiateHandoff(ctx, id, ParticipantQA, ParticipantEngineer, HandoffContext{Task: "keep context warm"}); err != nil {
		t.Errorf("InitiateHandoff() on paused session error = %v, want nil", err)
	}

	if err := m.Pause(ctx, id); err == nil {
		t.Error("Pause() on paused session should fail")
	}

	if err := m.Resume(ctx, id); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	s, _ = m.Get(id)
	if s.Status != SessionStatusActive {
		t.Errorf("Status = %q, want active after resume", s.Status)
	}

	if err := m.Resume(ctx, id); err == nil {
		t.Error("Resume() on active session should fail")
	}

	if pub.published("collab.events.session.paused") != 1 {
		t.Error("session.paused should be published once")
	}
	if pub.published("collab.events.session.resumed") != 1 {
		t.Error("session.resumed should be published once")
	}
}

func TestManager_CompleteArchives(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Complete(ctx, id, "fixed ahead of schedule"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(m.ListActive()) != 0 {
		t.Error("completed session should leave the active set")
	}
	history := m.ListHistory()
	if len(history) != 1 {
		t.Fatalf("len(ListHistory()) = %d, want 1", len(history))
	}
	if history[0].Status != SessionStatusCompleted {
		t.Errorf("archived status = %q, want completed", history[0].Status)
	}
	if history[0].Summary != "fixed ahead of schedule" {
		t.Errorf("Summary = %q", history[0].Summary)
	}
	if history[0].EndTime == nil {
		t.Error("EndTime should be stamped")
	}

	// Archived sessions are read-only: mutation resolves as not found.
	if _, err := m.SendMessage(ctx, id, ParticipantQA, nil, "late note", MessageTypeResponse, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SendMessage() after archive error = %v, want ErrSessionNotFound", err)
	}

	// But lookups and exports still work.
	if _, ok := m.Get(id); !ok {
		t.Error("Get() should find archived sessions")
	}
	if _, err := m.Export(id); err != nil {
		t.Errorf("Export() of archived session error = %v", err)
	}
}

func TestManager_Fail(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Fail(ctx, id, "engineer agent unrecoverable"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	s, ok := m.Get(id)
	if !ok {
		t.Fatal("failed session should be archived, not dropped")
	}
	if s.Status != SessionStatusFailed {
		t.Errorf("Status = %q, want failed", s.Status)
	}
	if s.Summary != "engineer agent unrecoverable" {
		t.Errorf("Summary = %q", s.Summary)
	}
	if pub.published("collab.events.session.failed") != 1 {
		t.Error("session.failed should be published once")
	}
}

func TestManager_PublishedEventsDecode(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	reg := payloadregistry.New()
	if err := RegisterPayloads(reg); err != nil {
		t.Fatal(err)
	}
	dec := message.NewDecoder(reg)

	id, err := m.Start(ctx, BugFixID, SessionContext{Priority: "high"},
		ParticipantQA, []ParticipantType{ParticipantQA, ParticipantEngineer})
	if err != nil {
		t.Fatal(err)
	}

	data := pub.lastData("collab.events.session.started")
	if data == nil {
		t.Fatal("session.started was not published")
	}
	msg, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode(session.started) error = %v", err)
	}
	started, ok := msg.Payload().(*SessionStartedPayload)
	if !ok {
		t.Fatalf("payload type = %T, want *SessionStartedPayload", msg.Payload())
	}
	if started.SessionID != id || started.WorkflowID != BugFixID || started.Priority != "high" {
		t.Errorf("decoded payload = %+v", started)
	}
}

func TestManager_HandoffLifecycle(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA,
		[]ParticipantType{ParticipantQA, ParticipantEngineer})
	if err != nil {
		t.Fatal(err)
	}

	hid, err := m.InitiateHandoff(ctx, id, ParticipantQA, ParticipantEngineer, HandoffContext{
		Task:         "Take over the reproduction work",
		Deliverables: []string{"Reproduction steps"},
	})
	if err != nil {
		t.Fatalf("InitiateHandoff() error = %v", err)
	}

	s, _ := m.Get(id)
	if len(s.Handoffs) != 1 {
		t.Fatalf("len(Handoffs) = %d, want 1", len(s.Handoffs))
	}
	h := s.Handoffs[0]
	if h.Status != HandoffStatusPending {
		t.Errorf("handoff status = %q, want pending", h.Status)
	}

	// The handoff rides with a handoff-typed message to the receiver.
	last := s.Messages[len(s.Messages)-1]
	if last.Type != MessageTypeHandoff {
		t.Errorf("accompanying message type = %q, want handoff", last.Type)
	}
	if len(last.To) != 1 || last.To[0] != ParticipantEngineer {
		t.Errorf("accompanying message To = %v, want [engineer]", last.To)
	}

	if err := m.AcceptHandoff(ctx, id, hid, "context received"); err != nil {
		t.Fatalf("AcceptHandoff() error = %v", err)
	}
	s, _ = m.Get(id)
	if s.Handoffs[0].Status != HandoffStatusAccepted {
		t.Errorf("handoff status = %q, want accepted", s.Handoffs[0].Status)
	}
	if s.Handoffs[0].Notes != "context received" {
		t.Errorf("Notes = %q", s.Handoffs[0].Notes)
	}

	if err := m.AcceptHandoff(ctx, id, hid, "again"); err == nil {
		t.Error("AcceptHandoff() twice should fail")
	}

	if err := m.CompleteHandoff(ctx, id, hid, []byte(`{"repro":"steps.md"}`)); err != nil {
		t.Fatalf("CompleteHandoff() error = %v", err)
	}
	s, _ = m.Get(id)
	if s.Handoffs[0].Status != HandoffStatusCompleted {
		t.Errorf("handoff status = %q, want completed", s.Handoffs[0].Status)
	}
	if s.Handoffs[0].CompletedAt == nil {
		t.Error("CompletedAt should be stamped")
	}

	if err := m.CompleteHandoff(ctx, id, hid, nil); err == nil {
		t.Error("CompleteHandoff() twice should fail")
	}

	for _, subject := range []string{
		"collab.events.handoff.initiated",
		"collab.events.handoff.accepted",
		"collab.events.handoff.completed",
	} {
		if pub.published(subject) != 1 {
			t.Errorf("%s should be published once", subject)
		}
	}
}

func TestManager_RejectHandoff(t *testing.T) {
	m, pub := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA,
		[]ParticipantType{ParticipantQA, ParticipantEngineer})
	if err != nil {
		t.Fatal(err)
	}

	hid, err := m.InitiateHandoff(ctx, id, ParticipantQA, ParticipantEngineer, HandoffContext{
		Task: "Take over the reproduction work",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.RejectHandoff(ctx, id, hid, "already assigned elsewhere"); err != nil {
		t.Fatalf("RejectHandoff() error = %v", err)
	}
	s, _ := m.Get(id)
	if s.Handoffs[0].Status != HandoffStatusRejected {
		t.Errorf("handoff status = %q, want rejected", s.Handoffs[0].Status)
	}
	if s.Handoffs[0].Notes != "already assigned elsewhere" {
		t.Errorf("Notes = %q", s.Handoffs[0].Notes)
	}

	// Rejection is terminal.
	if err := m.RejectHandoff(ctx, id, hid, "again"); err == nil {
		t.Error("RejectHandoff() twice should fail")
	}
	if err := m.AcceptHandoff(ctx, id, hid, ""); err == nil {
		t.Error("AcceptHandoff() after rejection should fail")
	}
	if err := m.CompleteHandoff(ctx, id, hid, nil); err == nil {
		t.Error("CompleteHandoff() after rejection should fail")
	}

	if pub.published("collab.events.handoff.rejected") != 1 {
		t.Error("handoff.rejected should be published once")
	}

	if err := m.RejectHandoff(ctx, id, "handoff-nope", ""); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("RejectHandoff() error = %v, want ErrHandoffNotFound", err)
	}
}

func TestManager_HandoffNotFound(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.AcceptHandoff(ctx, id, "handoff-nope", ""); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("AcceptHandoff() error = %v, want ErrHandoffNotFound", err)
	}
	if err := m.CompleteHandoff(ctx, id, "handoff-nope", nil); !errors.Is(err, ErrHandoffNotFound) {
		t.Errorf("CompleteHandoff() error = %v, want ErrHandoffNotFound", err)
	}
}

func TestManager_ListActive_Ordering(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Start(ctx, BugFixID, SessionContext{Description: fmt.Sprintf("bug %d", i)}, ParticipantQA, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	active := m.ListActive()
	if len(active) != 3 {
		t.Fatalf("len(ListActive()) = %d, want 3", len(active))
	}
	for i, s := range active {
		if s.ID != ids[i] {
			t.Errorf("ListActive()[%d] = %s, want %s (start-time order)", i, s.ID, ids[i])
		}
	}
}

func TestManager_PublisherFailureIsSwallowed(t *testing.T) {
	m := NewManager(NewCatalog(), errPublisher{}, nil)
	ctx := context.Background()

	id, err := m.Start(ctx, BugFixID, SessionContext{}, ParticipantQA, nil)
	if err != nil {
		t.Fatalf("Start() with failing publisher error = %v", err)
	}
	if _, err := m.SendMessage(ctx, id, ParticipantQA, nil, "hello", MessageTypeRequest, nil); err != nil {
		t.Errorf("SendMessage() with failing publisher error = %v", err)
	}
	if err := m.Complete(ctx, id, "done"); err != nil {
		t.Errorf("Complete() with failing publisher error = %v", err)
	}
}
