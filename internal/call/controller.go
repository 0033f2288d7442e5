package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/recruiter/internal/feedback"
	"github.com/MikeSquared-Agency/recruiter/internal/hermes"
	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/localstore"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

// ErrConfirmationRequired is returned by EndInterview without confirmation.
var ErrConfirmationRequired = errors.New("ending the interview requires confirmation")

// Finisher runs the feedback pipeline for a finished call.
type Finisher interface {
	Run(ctx context.Context, in feedback.Input, ui interview.UI) error
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Options wires a Controller. Publisher and Board may be nil.
type Options struct {
	InterviewID     string
	Config          *interview.Config
	Transport       voice.Transport
	Profile         Profile
	Finisher        Finisher
	State           localstore.Store
	Publisher       Publisher
	Board           *Board
	FeedbackTimeout time.Duration
	Logger          *slog.Logger
}

// Controller owns the lifecycle of one call session. Transport events are
// applied in delivery order under mu.
type Controller struct {
	opts  Options
	board *Board
	now   func() time.Time

	mu          sync.Mutex
	state       State
	startIssued bool
	endHandled  bool
	started     bool
	startedAt   time.Time
	endedAt     time.Time
	speaking    bool
	activeUser  bool
	subtitle    string
	transcript  string
	generating  bool
	offs        []func()

	done chan struct{}
}

func NewController(opts Options) *Controller {
	if opts.Board == nil {
		opts.Board = NewBoard()
	}
	if opts.FeedbackTimeout <= 0 {
		opts.FeedbackTimeout = 2 * time.Minute
	}
	return &Controller{
		opts:  opts,
		board: opts.Board,
		now:   time.Now,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// Attach registers the controller's event handlers on the transport and
// returns a func that removes them. Calling it again first removes the
// previous registrations.
func (c *Controller) Attach() func() {
	c.Close()
	if c.opts.Transport == nil {
		return c.Close
	}

	t := c.opts.Transport
	offs := []func(){
		t.On(voice.EventCallStart, func(voice.Event) { c.handleCallStart() }),
		t.On(voice.EventSpeechStart, func(voice.Event) { c.handleSpeech(true) }),
		t.On(voice.EventSpeechEnd, func(voice.Event) { c.handleSpeech(false) }),
		t.On(voice.EventMessage, func(e voice.Event) { c.handleMessage(e.Message) }),
		t.On(voice.EventCallEnd, func(voice.Event) { c.handleCallEnd() }),
	}

	c.mu.Lock()
	c.offs = offs
	c.mu.Unlock()
	return c.Close
}

// Close removes every handler registered by Attach. It is safe to call
// more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	offs := c.offs
	c.offs = nil
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// EnsureStarted issues the start request the first time it is called with a
// usable config and transport. Later calls are no-ops, including after a
// failed start.
func (c *Controller) EnsureStarted(ctx context.Context) error {
	c.mu.Lock()
	if c.startIssued {
		c.mu.Unlock()
		return nil
	}
	if c.opts.Transport == nil {
		c.mu.Unlock()
		c.board.Error("Voice client not initialized!")
		return interview.ErrTransportNotReady
	}
	if !c.opts.Config.Ready() {
		c.mu.Unlock()
		c.board.Error("Interview info missing, aborting call startup.")
		return interview.ErrConfigMissingOrMismatched
	}
	c.startIssued = true
	c.state = StateStarting
	c.mu.Unlock()

	opts := BuildAssistantOptions(c.opts.Config, c.opts.Profile)
	c.opts.Logger.Info("starting call",
		"interview_id", c.opts.InterviewID,
		"questions", len(c.opts.Config.Questions()),
	)

	err := c.opts.Transport.Start(ctx, opts)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.state == StateStarting {
		c.state = StateIdle
	}
	c.mu.Unlock()

	c.opts.Logger.Error("failed to start call", "interview_id", c.opts.InterviewID, "error", err)
	c.board.Error("Failed to start AI interview.")
	if errors.Is(err, voice.ErrNotConnected) {
		return fmt.Errorf("%w: %w", interview.ErrTransportNotReady, err)
	}
	return fmt.Errorf("%w: %w", interview.ErrCallStart, err)
}

// Stop asks the platform to hang up. The session moves on only when the
// call-end event arrives.
func (c *Controller) Stop() error {
	if c.opts.Transport == nil {
		return interview.ErrTransportNotReady
	}
	if err := c.opts.Transport.Stop(); err != nil {
		return fmt.Errorf("stop call: %w", err)
	}
	return nil
}

// EndInterview is the candidate's explicit end action. Without a live
// transport to carry the call-end event, the session is ended locally.
func (c *Controller) EndInterview(confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := c.Stop(); err != nil {
		c.opts.Logger.Warn("stop failed, ending call locally", "interview_id", c.opts.InterviewID, "error", err)
		c.handleCallEnd()
	}
	return nil
}

// Done is closed once feedback generation has reached an outcome.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) handleCallStart() {
	c.board.Info("Call started...")

	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanTransition(c.state, StateActive) {
		c.opts.Logger.Debug("ignoring call-start", "interview_id", c.opts.InterviewID, "state", c.state)
		return
	}
	c.state = StateActive
	c.started = true
	c.startedAt = c.now()
}

func (c *Controller) handleSpeech(assistantSpeaking bool) {
	c.mu.Lock()
	if !c.state.live() {
		c.mu.Unlock()
		return
	}
	c.speaking = assistantSpeaking
	c.activeUser = !assistantSpeaking
	c.mu.Unlock()

	if assistantSpeaking {
		c.board.Info("AI is speaking...")
	}
}

func (c *Controller) handleMessage(m *voice.Message) {
	if m == nil {
		return
	}

	var transcript string
	hasLog := m.Conversation != nil
	if hasLog {
		kept := make([]json.RawMessage, 0, len(m.Conversation))
		for _, e := range m.Conversation {
			if voice.EntryRole(e) != "system" {
				kept = append(kept, e)
			}
		}
		data, err := json.MarshalIndent(kept, "", "  ")
		if err != nil {
			c.opts.Logger.Error("failed to encode conversation", "interview_id", c.opts.InterviewID, "error", err)
			hasLog = false
		}
		transcript = string(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.live() {
		return
	}
	if m.Role == "assistant" && m.Content != "" {
		c.subtitle = m.Content
	}
	if hasLog {
		c.transcript = transcript
	}
}

func (c *Controller) handleCallEnd() {
	c.mu.Lock()
	if c.endHandled {
		c.mu.Unlock()
		c.opts.Logger.Warn("duplicate call-end ignored", "interview_id", c.opts.InterviewID)
		return
	}
	c.endHandled = true
	if !CanTransition(c.state, StateEnding) {
		state := c.state
		c.mu.Unlock()
		c.opts.Logger.Warn("call-end before start, no feedback generated", "interview_id", c.opts.InterviewID, "state", state)
		return
	}
	c.state = StateEnding
	c.generating = true
	c.endedAt = c.now()
	transcript := c.transcript
	elapsed := c.elapsedLocked()
	c.mu.Unlock()

	c.board.Info("Call has ended. Generating feedback...")
	c.opts.Logger.Info("call ended", "interview_id", c.opts.InterviewID, "elapsed_seconds", elapsed)

	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.Publish(hermes.SubjectCallEnded, hermes.CallEnded{
			InterviewID:    c.opts.InterviewID,
			ElapsedSeconds: elapsed,
			EndedAt:        c.endedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			c.opts.Logger.Warn("failed to publish call ended", "interview_id", c.opts.InterviewID, "error", err)
		}
	}

	go c.finish(transcript)
}

func (c *Controller) finish(transcript string) {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.generating = false
		c.state = StateEnded
		c.mu.Unlock()
	}()

	if c.opts.Finisher == nil {
		c.opts.Logger.Error("no feedback pipeline configured", "interview_id", c.opts.InterviewID)
		c.board.Error("Failed to generate feedback")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FeedbackTimeout)
	defer cancel()

	// Run reports its own failures to the board.
	_ = c.opts.Finisher.Run(ctx, feedback.Input{
		InterviewID: c.opts.InterviewID,
		Transcript:  transcript,
		Config:      c.opts.Config,
		State:       c.opts.State,
	}, c.board)
}

func (c *Controller) elapsedLocked() int {
	if !c.started {
		return 0
	}
	end := c.endedAt
	if end.IsZero() {
		end = c.now()
	}
	return int(end.Sub(c.startedAt).Seconds())
}

// Snapshot is the candidate-facing view of a session.
type Snapshot struct {
	InterviewID        string         `json:"interview_id"`
	State              State          `json:"state"`
	Started            bool           `json:"started"`
	Speaking           bool           `json:"speaking"`
	ActiveUser         bool           `json:"active_user"`
	Subtitle           string         `json:"subtitle"`
	GeneratingFeedback bool           `json:"generating_feedback"`
	ElapsedSeconds     int            `json:"elapsed_seconds"`
	Notifications      []Notification `json:"notifications"`
	Redirect           string         `json:"redirect,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		InterviewID:        c.opts.InterviewID,
		State:              c.state,
		Started:            c.started,
		Speaking:           c.speaking,
		ActiveUser:         c.activeUser,
		Subtitle:           c.subtitle,
		GeneratingFeedback: c.generating,
		ElapsedSeconds:     c.elapsedLocked(),
	}
	c.mu.Unlock()

	s.Notifications = c.board.Notifications()
	s.Redirect = c.board.Route()
	return s
}

// Transcript returns the latest filtered conversation log.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}
