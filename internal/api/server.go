package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/recruiter/internal/bootstrap"
	"github.com/MikeSquared-Agency/recruiter/internal/call"
	"github.com/MikeSquared-Agency/recruiter/internal/export"
	"github.com/MikeSquared-Agency/recruiter/internal/interview"
	"github.com/MikeSquared-Agency/recruiter/internal/localstore"
	"github.com/MikeSquared-Agency/recruiter/internal/store"
	"github.com/MikeSquared-Agency/recruiter/internal/voice"
)

// SessionHeader carries the candidate's session token.
const SessionHeader = "X-Session-Token"

// Dialer opens a fresh call session on the voice platform.
type Dialer func(ctx context.Context) (voice.Session, error)

type ResultLister interface {
	ListResults(ctx context.Context) ([]store.Result, error)
	ListResultsByInterview(ctx context.Context, interviewID string) ([]store.Result, error)
}

// DefaultSessionRetention is how long an ended session stays readable.
const DefaultSessionRetention = 10 * time.Minute

// Deps wires a Server. Publisher may be nil.
type Deps struct {
	Port             int
	APIToken         string
	State            localstore.Store
	Dial             Dialer
	Profile          call.Profile
	Finisher         call.Finisher
	Publisher        call.Publisher
	Results          ResultLister
	FeedbackTimeout  time.Duration
	SessionRetention time.Duration
	Logger           *slog.Logger
}

type Server struct {
	router   *chi.Mux
	port     int
	deps     Deps
	logger   *slog.Logger
	sessions *registry
	validate *validator.Validate
	http     *http.Server

	watchers sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once
}

func NewServer(deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	if deps.SessionRetention <= 0 {
		deps.SessionRetention = DefaultSessionRetention
	}

	s := &Server{
		router:   router,
		port:     deps.Port,
		deps:     deps,
		logger:   deps.Logger,
		sessions: newRegistry(),
		validate: validator.New(),
		stopping: make(chan struct{}),
	}

	router.Get("/health", s.health)

	router.Route("/api/v1/interviews/{interviewID}", func(r chi.Router) {
		r.Put("/info", s.putInfo)
		r.Post("/session", s.startSession)
		r.Get("/session", s.getSession)
		r.Delete("/session", s.deleteSession)
		r.Post("/session/end", s.endSession)
	})

	router.Route("/api/v1/results", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(deps.APIToken))
		r.Get("/export", s.exportResults)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every open call session, stops accepting requests and
// waits for session watchers to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.sessions.closeAll()
		close(s.stopping)
	})

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// candidateStore scopes persisted state to the caller's session token.
func (s *Server) candidateStore(r *http.Request) (string, localstore.Store, error) {
	raw := r.Header.Get(SessionHeader)
	token, err := uuid.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("missing or invalid %s header", SessionHeader)
	}
	return token.String(), localstore.Namespace(s.deps.State, token.String()), nil
}

func (s *Server) putInfo(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "interviewID")
	_, st, err := s.candidateStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var cfg interview.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if cfg.InterviewID == "" {
		cfg.InterviewID = interviewID
	}
	if cfg.InterviewID != interviewID {
		writeError(w, http.StatusBadRequest, "interview_id does not match path")
		return
	}
	if err := s.validate.Struct(&cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := bootstrap.Save(r.Context(), st, &cfg); err != nil {
		s.logger.Error("failed to save interview info", "interview_id", interviewID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save interview info")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startSession bootstraps the config and issues the call start. Repeating
// the request for a live session returns its snapshot without restarting.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "interviewID")
	token, st, err := s.candidateStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := sessionKey(token, interviewID)
	sess, created := s.sessions.claim(key)
	if sess == nil {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if !created {
		ctrl, err := sess.wait(r.Context())
		if err != nil {
			return
		}
		if ctrl == nil {
			writeError(w, http.StatusConflict, "session could not be started, retry")
			return
		}
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
		return
	}

	board := call.NewBoard()
	cfg, err := bootstrap.Resolve(r.Context(), nil, interviewID, st, board, s.logger)
	if err != nil {
		s.sessions.release(key, sess)
		sess.abandon()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":    "interview info missing or mismatched",
			"redirect": board.Route(),
		})
		return
	}

	var conn voice.Session
	if s.deps.Dial != nil {
		conn, err = s.deps.Dial(r.Context())
		if err != nil {
			s.logger.Error("failed to connect to voice platform", "interview_id", interviewID, "error", err)
		}
	}

	var transport voice.Transport
	if conn != nil {
		transport = conn
	}
	ctrl := call.NewController(call.Options{
		InterviewID:     interviewID,
		Config:          cfg,
		Transport:       transport,
		Profile:         s.deps.Profile,
		Finisher:        s.deps.Finisher,
		State:           st,
		Publisher:       s.deps.Publisher,
		Board:           board,
		FeedbackTimeout: s.deps.FeedbackTimeout,
		Logger:          s.logger,
	})
	if !sess.fill(ctrl, conn) {
		if conn != nil {
			conn.Close()
		}
		s.sessions.release(key, sess)
		writeError(w, http.StatusServiceUnavailable, "session closed while starting")
		return
	}

	if err := ctrl.EnsureStarted(r.Context()); err != nil {
		sess.close()
		s.watchers.Add(1)
		go func() {
			defer s.watchers.Done()
			s.retain(key, sess)
		}()
		writeJSON(w, statusFor(err), ctrl.Snapshot())
		return
	}

	s.watch(key, sess, ctrl)
	writeJSON(w, http.StatusCreated, ctrl.Snapshot())
}

// watch closes the session once feedback has an outcome and then retains
// it. It returns early when the session is closed first.
func (s *Server) watch(key string, sess *session, ctrl *call.Controller) {
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()

		select {
		case <-ctrl.Done():
		case <-sess.closed:
			return
		}
		sess.close()
		s.retain(key, sess)
	}()
}

// retain keeps a finished session readable for the retention period, then
// drops it from the registry.
func (s *Server) retain(key string, sess *session) {
	timer := time.NewTimer(s.deps.SessionRetention)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopping:
	}
	s.sessions.release(key, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

type endRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req endRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	if err := ctrl.EndInterview(req.Confirm); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ctrl.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "interviewID")
	token, _, err := s.candidateStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sess, ok := s.sessions.remove(sessionKey(token, interviewID)); ok {
		ctrl, err := sess.wait(r.Context())
		if err == nil && ctrl != nil && !sess.isClosed() {
			if err := ctrl.Stop(); err != nil && !errors.Is(err, interview.ErrTransportNotReady) {
				s.logger.Warn("failed to stop call", "interview_id", interviewID, "error", err)
			}
		}
		sess.close()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*call.Controller, bool) {
	interviewID := chi.URLParam(r, "interviewID")
	token, _, err := s.candidateStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	sess, ok := s.sessions.get(sessionKey(token, interviewID))
	if !ok {
		writeError(w, http.StatusNotFound, "no session for this interview")
		return nil, false
	}
	ctrl, err := sess.wait(r.Context())
	if err != nil || ctrl == nil {
		writeError(w, http.StatusNotFound, "no session for this interview")
		return nil, false
	}
	return ctrl, true
}

// exportResults handles GET /api/v1/results/export
func (s *Server) exportResults(w http.ResponseWriter, r *http.Request) {
	var (
		results []store.Result
		err     error
	)
	if id := r.URL.Query().Get("interview_id"); id != "" {
		results, err = s.deps.Results.ListResultsByInterview(r.Context(), id)
	} else {
		results, err = s.deps.Results.ListResults(r.Context())
	}
	if err != nil {
		s.logger.Error("failed to list results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, results); err != nil {
		s.logger.Error("failed to write export", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, interview.ErrConfigMissingOrMismatched):
		return http.StatusConflict
	case errors.Is(err, interview.ErrTransportNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, interview.ErrCallStart):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
