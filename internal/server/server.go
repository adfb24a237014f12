package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
	"github.com/kalkeesh/AI-mock-interviews/internal/session"
	"github.com/kalkeesh/AI-mock-interviews/internal/store"
	"github.com/kalkeesh/AI-mock-interviews/internal/trace"
)

// Controller is the session orchestrator surface the server drives.
type Controller interface {
	Start(ctx context.Context, mode scoring.Mode, minutes int) error
	Advance(ctx context.Context) error
	Skip(ctx context.Context) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	Repeat(ctx context.Context) error
	Status() session.Status
	Events() <-chan session.Status
}

// ResultStore persists analysis payloads and serves stored results.
type ResultStore interface {
	SaveAnalysis(raw []byte) error
	Result(mode scoring.Mode) (*scoring.SessionResult, *scoring.Outcome, error)
}

// FrameSource supplies encoded preview frames for streaming.
type FrameSource interface {
	Frames() <-chan []byte
}

// Outbound WebSocket message types.
type StatusMessage struct {
	Type   string         `json:"type"`
	Status session.Status `json:"status"`
}

type FrameMessage struct {
	Type string `json:"type"`
	JPEG string `json:"jpeg"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Inbound WebSocket command envelope.
type Command struct {
	Type    string       `json:"type"`
	Mode    scoring.Mode `json:"mode,omitempty"`
	Minutes int          `json:"minutes,omitempty"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl    Controller
	results ResultStore
	frames  FrameSource

	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a server and starts its broadcast loops.
func New(ctrl Controller, results ResultStore, frames FrameSource) *Server {
	s := &Server{
		ctrl:       ctrl,
		results:    results,
		frames:     frames,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastStatus()
	if frames != nil {
		go s.broadcastFrames()
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("POST /api/analysis", s.handleAnalysisUpload)
	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/continue", s.handleSessionContinue)
	mux.HandleFunc("POST /api/session/advance", s.handleSessionAdvance)
	mux.HandleFunc("POST /api/session/skip", s.handleSessionSkip)
	mux.HandleFunc("POST /api/listening/start", s.handleListeningStart)
	mux.HandleFunc("POST /api/listening/stop", s.handleListeningStop)
	mux.HandleFunc("POST /api/question/repeat", s.handleQuestionRepeat)
	mux.HandleFunc("GET /api/session/status", s.handleSessionStatus)
	mux.HandleFunc("GET /api/session/result", s.handleSessionResult)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAnalysisUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxAnalysisBytes))
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.Internal, "could not read payload"))
		return
	}
	if !json.Valid(body) {
		writeError(w, apperr.New(apperr.Internal, "payload must be valid JSON"))
		return
	}
	if err := s.results.SaveAnalysis(body); err != nil {
		writeError(w, apperr.Wrap(err, apperr.Internal, "could not store payload"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "analysis_stored"})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode    scoring.Mode `json:"mode"`
		Minutes int          `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(err, apperr.Internal, "malformed request body"))
		return
	}
	if req.Mode == "" {
		req.Mode = scoring.ModeInterview
	}

	if err := s.ctrl.Start(r.Context(), req.Mode, req.Minutes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Status())
}

// handleSessionContinue starts the mode not yet run in this sitting. The
// mode-transition prompt after a completed session posts here.
func (s *Server) handleSessionContinue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperr.Wrap(err, apperr.Internal, "malformed request body"))
		return
	}

	next := scoring.ModeGD
	if s.ctrl.Status().Mode == scoring.ModeGD {
		next = scoring.ModeInterview
	}
	if err := s.ctrl.Start(r.Context(), next, req.Minutes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Status())
}

func (s *Server) handleSessionAdvance(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Advance(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSessionSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Skip(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleListeningStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartListening(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleListeningStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StopListening(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleQuestionRepeat(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Repeat(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "question_repeated"})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	mode := scoring.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = scoring.ModeInterview
	}
	if !mode.Valid() {
		writeError(w, apperr.Newf(apperr.Internal, "unknown session mode %q", mode))
		return
	}

	result, outcome, err := s.results.Result(mode)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no stored result for mode " + string(mode)})
		return
	}
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.Internal, "could not load result"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payload": result, "outcome": outcome})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Fresh connections get the current state immediately.
	_ = wsjson.Write(baseCtx, conn, StatusMessage{Type: "status", Status: s.ctrl.Status()})

	for {
		var cmd Command
		if err := wsjson.Read(baseCtx, conn, &cmd); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		if err := s.dispatch(baseCtx, cmd); err != nil {
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: err.Error()})
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case "start":
		mode := cmd.Mode
		if mode == "" {
			mode = scoring.ModeInterview
		}
		return s.ctrl.Start(ctx, mode, cmd.Minutes)
	case "advance":
		return s.ctrl.Advance(ctx)
	case "skip":
		return s.ctrl.Skip(ctx)
	case "listen":
		return s.ctrl.StartListening(ctx)
	case "stop_listen":
		return s.ctrl.StopListening(ctx)
	case "repeat":
		return s.ctrl.Repeat(ctx)
	default:
		return apperr.Newf(apperr.Internal, "unknown command %q", cmd.Type)
	}
}

func (s *Server) broadcastStatus() {
	for status := range s.ctrl.Events() {
		s.broadcast(StatusMessage{Type: "status", Status: status})
	}
}

func (s *Server) broadcastFrames() {
	for frame := range s.frames.Frames() {
		s.broadcast(FrameMessage{
			Type: "frame",
			JPEG: base64.StdEncoding.EncodeToString(frame),
		})
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = wsjson.Write(context.Background(), c, msg)
		}(conn)
	}
	s.mu.RUnlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses and keeps the
// message in a detail field the way the scoring service does.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.DeviceUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.RecognitionUnsupported:
		status = http.StatusNotImplemented
	case apperr.NoQuestions:
		status = http.StatusNotFound
	case apperr.SubmissionFailed:
		status = http.StatusBadGateway
	case apperr.InvalidState:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
