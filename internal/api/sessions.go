package api

import (
	"context"
	"sync"

	"github.com/MikeSquared-Agency/recruiter/internal/call"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

// session pairs a controller with the voice connection it listens on.
// A claimed session is pending until fill or abandon closes ready.
type session struct {
	ready  chan struct{}
	closed chan struct{}

	mu     sync.Mutex
	ctrl   *call.Controller
	conn   voice.Session
	detach func()
	shut   bool
}

func newSession() *session {
	return &session{
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// fill attaches ctrl to conn and releases waiters. It returns false when the
// session was closed while pending; the caller then owns conn.
func (s *session) fill(ctrl *call.Controller, conn voice.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(s.ready)

	if s.shut {
		return false
	}
	s.ctrl = ctrl
	s.conn = conn
	s.detach = ctrl.Attach()
	return true
}

// abandon releases waiters of a session that will never get a controller.
func (s *session) abandon() {
	close(s.ready)
	s.close()
}

// wait blocks until the session is filled or abandoned. A nil controller
// means it was abandoned.
func (s *session) wait(ctx context.Context) (*call.Controller, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl, nil
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// close removes the controller's listeners and releases the connection.
// A feedback run already in flight is not interrupted.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut {
		return
	}
	s.shut = true
	if s.detach != nil {
		s.detach()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	close(s.closed)
}

type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func sessionKey(token, interviewID string) string {
	return token + "/" + interviewID
}

// claim returns the session under key, inserting a pending one when there is
// none. created reports whether the caller inserted it and must fill or
// abandon it. A nil session means the registry is closed.
func (r *registry) claim(key string) (s *session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	if s, ok := r.sessions[key]; ok {
		return s, false
	}
	s = newSession()
	r.sessions[key] = s
	return s, true
}

func (r *registry) get(key string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

func (r *registry) remove(key string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	return s, ok
}

// release removes key only while it still maps to s.
func (r *registry) release(key string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeAll closes every session and refuses further claims.
func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
