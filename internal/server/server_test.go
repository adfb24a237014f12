package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
	"github.com/kalkeesh/AI-mock-interviews/internal/session"
	"github.com/kalkeesh/AI-mock-interviews/internal/store"
)

// mockController for testing.
type mockController struct {
	mu       sync.Mutex
	status   session.Status
	events   chan session.Status
	startErr error
	calls    []string
}

func newMockController() *mockController {
	return &mockController{
		status: session.Status{State: session.StateNotStarted},
		events: make(chan session.Status, 10),
	}
}

func (m *mockController) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *mockController) Start(_ context.Context, mode scoring.Mode, minutes int) error {
	m.record("start")
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.status = session.Status{State: session.StateStarting, Mode: mode, RemainingSecs: minutes * 60}
	m.mu.Unlock()
	return nil
}

func (m *mockController) Advance(context.Context) error        { m.record("advance"); return nil }
func (m *mockController) Skip(context.Context) error           { m.record("skip"); return nil }
func (m *mockController) StartListening(context.Context) error { m.record("listen"); return nil }
func (m *mockController) StopListening(context.Context) error  { m.record("stop_listen"); return nil }
func (m *mockController) Repeat(context.Context) error         { m.record("repeat"); return nil }

func (m *mockController) Status() session.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) Events() <-chan session.Status { return m.events }

type mockResultStore struct {
	mu       sync.Mutex
	analysis []byte
	results  map[scoring.Mode]*scoring.Outcome
}

func (m *mockResultStore) SaveAnalysis(raw []byte) error {
	m.mu.Lock()
	m.analysis = raw
	m.mu.Unlock()
	return nil
}

func (m *mockResultStore) Result(mode scoring.Mode) (*scoring.SessionResult, *scoring.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome, ok := m.results[mode]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	return &scoring.SessionResult{SessionMode: mode}, outcome, nil
}

func newTestServer() (*Server, *mockController, *mockResultStore) {
	ctrl := newMockController()
	results := &mockResultStore{results: map[scoring.Mode]*scoring.Outcome{
		scoring.ModeInterview: {SessionID: "s1"},
	}}
	return New(ctrl, results, nil), ctrl, results
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
}

func TestSessionStart(t *testing.T) {
	srv, ctrl, _ := newTestServer()
	handler := srv.Handler()

	body := bytes.NewBufferString(`{"mode": "interview", "minutes": 7}`)
	req := httptest.NewRequest("POST", "/api/session/start", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	var status session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if status.State != session.StateStarting {
		t.Errorf("state = %s, want starting", status.State)
	}
	if len(ctrl.calls) != 1 || ctrl.calls[0] != "start" {
		t.Errorf("calls = %v", ctrl.calls)
	}
}

func TestSessionStartErrorStatus(t *testing.T) {
	srv, ctrl, _ := newTestServer()
	ctrl.startErr = apperr.New(apperr.InvalidState, "a session is already in progress")
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/api/session/start", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "detail") {
		t.Errorf("error body should carry a detail field: %s", rec.Body)
	}
}

func TestSessionContinueFlipsMode(t *testing.T) {
	srv, ctrl, _ := newTestServer()
	ctrl.status = session.Status{State: session.StateModePrompt, Mode: scoring.ModeInterview}
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/api/session/continue", bytes.NewBufferString(`{"minutes": 5}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var status session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if status.Mode != scoring.ModeGD {
		t.Errorf("mode = %s, want gd", status.Mode)
	}
}

func TestControlEndpoints(t *testing.T) {
	srv, ctrl, _ := newTestServer()
	handler := srv.Handler()

	endpoints := []struct {
		path string
		call string
	}{
		{"/api/session/advance", "advance"},
		{"/api/session/skip", "skip"},
		{"/api/listening/start", "listen"},
		{"/api/listening/stop", "stop_listen"},
		{"/api/question/repeat", "repeat"},
	}

	for _, e := range endpoints {
		t.Run(e.call, func(t *testing.T) {
			req := httptest.NewRequest("POST", e.path, http.NoBody)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.calls) != len(endpoints) {
		t.Errorf("calls = %v", ctrl.calls)
	}
}

func TestSessionStatus(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/api/session/status", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if status.State != session.StateNotStarted {
		t.Errorf("state = %s", status.State)
	}
}

func TestSessionResult(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/api/session/result?mode=interview", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Outcome scoring.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Outcome.SessionID != "s1" {
		t.Errorf("session id = %s", resp.Outcome.SessionID)
	}

	// Missing mode result is a 404 with a detail message.
	req = httptest.NewRequest("GET", "/api/session/result?mode=gd", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAnalysisUpload(t *testing.T) {
	srv, _, results := newTestServer()
	handler := srv.Handler()

	payload := `{"data": {"interview_questions": {"technical": ["q"]}}}`
	req := httptest.NewRequest("POST", "/api/analysis", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if string(results.analysis) != payload {
		t.Errorf("stored payload = %s", results.analysis)
	}

	// Invalid JSON is rejected before it reaches the store.
	req = httptest.NewRequest("POST", "/api/analysis", bytes.NewBufferString("not json"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("invalid JSON should be rejected")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d should be allowed", i)
		}
	}
	if rl.allow() {
		t.Error("message past the window limit should be rejected")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	srv, _, _ := newTestServer()
	if err := srv.dispatch(context.Background(), Command{Type: "reboot"}); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestMessageTypes(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{}
		typeVal string
	}{
		{"status", StatusMessage{Type: "status"}, "status"},
		{"frame", FrameMessage{Type: "frame", JPEG: "aGk="}, "frame"},
		{"error", ErrorMessage{Type: "error", Message: "rate limit exceeded"}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("json.Marshal error: %v", err)
			}
			var base struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &base); err != nil {
				t.Fatalf("json.Unmarshal error: %v", err)
			}
			if base.Type != tt.typeVal {
				t.Errorf("type = %q, want %q", base.Type, tt.typeVal)
			}
		})
	}
}
