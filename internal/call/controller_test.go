package call

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/recruiter/internal/feedback"
	"github.com/MikeSquared-Agency/recruiter/internal/hermes"
	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

func entry(t *testing.T, fields map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func turn(t *testing.T, role string, content any) json.RawMessage {
	t.Helper()
	return entry(t, map[string]any{"role": role, "content": content})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTransport struct {
	voice.Emitter

	mu       sync.Mutex
	starts   []voice.AssistantOptions
	stops    int
	startErr error
	stopErr  error
}

func (f *fakeTransport) Start(_ context.Context, opts voice.AssistantOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, opts)
	return f.startErr
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type fakeFinisher struct {
	mu     sync.Mutex
	inputs []feedback.Input
	err    error
}

func (f *fakeFinisher) Run(_ context.Context, in feedback.Input, ui interview.UI) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		ui.Error("Failed to generate feedback")
		return f.err
	}
	ui.Success("Feedback generated successfully!")
	ui.Replace(interview.CompletedRoute(in.InterviewID))
	return nil
}

func (f *fakeFinisher) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakePublisher) Publish(subject string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func newTestController(t *testing.T, tr *fakeTransport, fin *fakeFinisher) *Controller {
	t.Helper()
	c := NewController(Options{
		InterviewID: "iv-1",
		Config:      sampleConfig(),
		Transport:   tr,
		Profile:     DefaultProfile(),
		Finisher:    fin,
		Logger:      discardLogger(),
	})
	t.Cleanup(c.Attach())
	return c
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feedback outcome")
	}
}

func hasNotification(c *Controller, level, msg string) bool {
	for _, n := range c.Snapshot().Notifications {
		if n.Level == level && n.Message == msg {
			return true
		}
	}
	return false
}

func TestController_StartGuardFiresOnce(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr, &fakeFinisher{})

	for i := 0; i < 3; i++ {
		if err := c.EnsureStarted(context.Background()); err != nil {
			t.Fatalf("EnsureStarted #%d: %v", i, err)
		}
	}
	if tr.startCount() != 1 {
		t.Fatalf("expected exactly one start request, got %d", tr.startCount())
	}
	if c.Snapshot().State != StateStarting {
		t.Errorf("expected starting, got %s", c.Snapshot().State)
	}
	if got := tr.starts[0].FirstMessage; !strings.Contains(got, "Ada") || !strings.Contains(got, "Backend Engineer") {
		t.Errorf("greeting should reference candidate and job, got %q", got)
	}
}

func TestController_StartFailureReturnsToIdle(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		wantErr  error
	}{
		{"not connected", voice.ErrNotConnected, interview.ErrTransportNotReady},
		{"transport failure", errors.New("boom"), interview.ErrCallStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{startErr: tt.startErr}
			c := newTestController(t, tr, &fakeFinisher{})

			err := c.EnsureStarted(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if c.Snapshot().State != StateIdle {
				t.Errorf("expected idle after failed start, got %s", c.Snapshot().State)
			}
			if !hasNotification(c, "error", "Failed to start AI interview.") {
				t.Error("expected start failure notification")
			}

			if err := c.EnsureStarted(context.Background()); err != nil {
				t.Errorf("second EnsureStarted should be a no-op, got %v", err)
			}
			if tr.startCount() != 1 {
				t.Errorf("start must not be retried, got %d", tr.startCount())
			}
		})
	}
}

func TestController_StartRequiresConfigAndTransport(t *testing.T) {
	c := NewController(Options{InterviewID: "iv-1", Config: sampleConfig(), Logger: discardLogger()})
	if err := c.EnsureStarted(context.Background()); !errors.Is(err, interview.ErrTransportNotReady) {
		t.Errorf("expected ErrTransportNotReady, got %v", err)
	}

	tr := &fakeTransport{}
	cfg := sampleConfig()
	cfg.JobPosition = ""
	c = NewController(Options{InterviewID: "iv-1", Config: cfg, Transport: tr, Logger: discardLogger()})
	if err := c.EnsureStarted(context.Background()); !errors.Is(err, interview.ErrConfigMissingOrMismatched) {
		t.Errorf("expected ErrConfigMissingOrMismatched, got %v", err)
	}
	if tr.startCount() != 0 {
		t.Error("no start request expected without a job position")
	}
	if c.Snapshot().State != StateIdle {
		t.Errorf("expected idle, got %s", c.Snapshot().State)
	}
}

func TestController_EventsDriveSnapshot(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr, &fakeFinisher{})
	c.EnsureStarted(context.Background())

	tr.Emit(voice.Event{Type: voice.EventCallStart})
	s := c.Snapshot()
	if s.State != StateActive || !s.Started {
		t.Fatalf("expected active and started, got %+v", s)
	}

	tr.Emit(voice.Event{Type: voice.EventSpeechStart})
	s = c.Snapshot()
	if !s.Speaking || s.ActiveUser {
		t.Errorf("speech-start should set speaking and clear active user, got %+v", s)
	}

	tr.Emit(voice.Event{Type: voice.EventSpeechEnd})
	s = c.Snapshot()
	if s.Speaking || !s.ActiveUser {
		t.Errorf("speech-end should clear speaking and set active user, got %+v", s)
	}

	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Role: "assistant", Content: "Tell me about yourself"}})
	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Role: "user", Content: "ignored"}})
	if got := c.Snapshot().Subtitle; got != "Tell me about yourself" {
		t.Errorf("expected assistant subtitle, got %q", got)
	}

	if !hasNotification(c, "info", "Call started...") || !hasNotification(c, "info", "AI is speaking...") {
		t.Errorf("expected lifecycle notifications, got %+v", c.Snapshot().Notifications)
	}
}

func TestController_ConversationSnapshotReplaces(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr, &fakeFinisher{})
	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})

	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Conversation: []json.RawMessage{
		turn(t, "system", "secret prompt"),
		turn(t, "assistant", "Hi"),
	}}})
	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Conversation: []json.RawMessage{
		turn(t, "system", "secret prompt"),
		turn(t, "assistant", "Hi"),
		turn(t, "user", "Hello"),
	}}})

	want := "[\n  {\n    \"content\": \"Hi\",\n    \"role\": \"assistant\"\n  },\n  {\n    \"content\": \"Hello\",\n    \"role\": \"user\"\n  }\n]"
	if got := c.Transcript(); got != want {
		t.Errorf("unexpected transcript:\n%s\nwant:\n%s", got, want)
	}
}

func TestController_CallEndRunsPipelineOnce(t *testing.T) {
	tr := &fakeTransport{}
	fin := &fakeFinisher{}
	pub := &fakePublisher{}
	c := NewController(Options{
		InterviewID: "iv-1",
		Config:      sampleConfig(),
		Transport:   tr,
		Profile:     DefaultProfile(),
		Finisher:    fin,
		Publisher:   pub,
		Logger:      discardLogger(),
	})
	defer c.Attach()()

	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})
	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Conversation: []json.RawMessage{turn(t, "user", "Hello")}}})
	tr.Emit(voice.Event{Type: voice.EventCallEnd})
	tr.Emit(voice.Event{Type: voice.EventCallEnd})
	waitDone(t, c)

	if fin.runs() != 1 {
		t.Fatalf("expected pipeline to run once, got %d", fin.runs())
	}
	in := fin.inputs[0]
	if in.InterviewID != "iv-1" || !strings.Contains(in.Transcript, "Hello") || in.Config.JobPosition != "Backend Engineer" {
		t.Errorf("unexpected pipeline input %+v", in)
	}

	s := c.Snapshot()
	if s.State != StateEnded || s.GeneratingFeedback {
		t.Errorf("expected ended with indicator cleared, got %+v", s)
	}
	if s.Redirect != "/interview/iv-1/completed" {
		t.Errorf("expected completion redirect, got %q", s.Redirect)
	}
	if !hasNotification(c, "info", "Call has ended. Generating feedback...") {
		t.Error("expected call-end notification")
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != hermes.SubjectCallEnded {
		t.Errorf("expected one call ended publish, got %v", pub.subjects)
	}
}

func TestController_PipelineFailureStillClearsIndicator(t *testing.T) {
	tr := &fakeTransport{}
	fin := &fakeFinisher{err: interview.ErrMissingContent}
	c := newTestController(t, tr, fin)

	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})
	tr.Emit(voice.Event{Type: voice.EventCallEnd})
	waitDone(t, c)

	s := c.Snapshot()
	if s.GeneratingFeedback || s.State != StateEnded {
		t.Errorf("expected ended with indicator cleared, got %+v", s)
	}
	if s.Redirect != "" {
		t.Errorf("no redirect expected on failure, got %q", s.Redirect)
	}
	if !hasNotification(c, "error", "Failed to generate feedback") {
		t.Error("expected failure notification")
	}
}

func TestController_StopWaitsForCallEnd(t *testing.T) {
	tr := &fakeTransport{}
	fin := &fakeFinisher{}
	c := newTestController(t, tr, fin)
	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})

	if err := c.EndInterview(false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if tr.stops != 0 {
		t.Fatal("unconfirmed end must not stop the call")
	}

	if err := c.EndInterview(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.stops != 1 {
		t.Errorf("expected one stop request, got %d", tr.stops)
	}
	if c.Snapshot().State != StateActive {
		t.Errorf("stop alone must not end the session, got %s", c.Snapshot().State)
	}

	tr.Emit(voice.Event{Type: voice.EventCallEnd})
	waitDone(t, c)
	if fin.runs() != 1 {
		t.Errorf("expected pipeline after call-end, got %d runs", fin.runs())
	}
}

func TestController_EndLocallyWhenStopFails(t *testing.T) {
	tr := &fakeTransport{stopErr: voice.ErrNotConnected}
	fin := &fakeFinisher{}
	c := newTestController(t, tr, fin)
	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})

	if err := c.EndInterview(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitDone(t, c)
	if fin.runs() != 1 {
		t.Errorf("expected pipeline to run, got %d", fin.runs())
	}
}

func TestController_CloseRemovesHandlers(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(Options{InterviewID: "iv-1", Config: sampleConfig(), Transport: tr, Logger: discardLogger()})

	teardown := c.Attach()
	c.Attach()
	if n := tr.Count(voice.EventCallEnd); n != 1 {
		t.Fatalf("re-attaching must not duplicate handlers, got %d", n)
	}

	teardown()
	teardown()
	for _, ev := range []voice.EventType{voice.EventCallStart, voice.EventCallEnd, voice.EventSpeechStart, voice.EventSpeechEnd, voice.EventMessage} {
		if n := tr.Count(ev); n != 0 {
			t.Errorf("%s still has %d listeners after teardown", ev, n)
		}
	}
}

func TestController_CallEndBeforeStartIsIgnored(t *testing.T) {
	tr := &fakeTransport{}
	fin := &fakeFinisher{}
	c := newTestController(t, tr, fin)

	tr.Emit(voice.Event{Type: voice.EventCallEnd})
	if fin.runs() != 0 {
		t.Error("pipeline must not run for a call that never started")
	}
	if c.Snapshot().State != StateIdle {
		t.Errorf("expected idle, got %s", c.Snapshot().State)
	}
}

func TestController_ConversationKeepsStructuredEntries(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(t, tr, &fakeFinisher{})
	c.EnsureStarted(context.Background())
	tr.Emit(voice.Event{Type: voice.EventCallStart})

	tr.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.Message{Conversation: []json.RawMessage{
		turn(t, "system", "secret prompt"),
		entry(t, map[string]any{
			"role":    "user",
			"content": []map[string]any{{"type": "text", "text": "my answer"}},
			"time":    1712,
		}),
		entry(t, map[string]any{"role": "tool", "tool_call_id": "call-1", "content": "lookup result"}),
	}}})

	var got []map[string]any
	if err := json.Unmarshal([]byte(c.Transcript()), &got); err != nil {
		t.Fatalf("transcript is not JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected system entry dropped and 2 kept, got %d", len(got))
	}
	parts, ok := got[0]["content"].([]any)
	if !ok || len(parts) != 1 || parts[0].(map[string]any)["text"] != "my answer" {
		t.Errorf("structured content should survive, got %v", got[0]["content"])
	}
	if got[0]["time"] != float64(1712) {
		t.Errorf("extra fields should survive, got %v", got[0])
	}
	if got[1]["tool_call_id"] != "call-1" {
		t.Errorf("tool entry should be kept verbatim, got %v", got[1])
	}
}
