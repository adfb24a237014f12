package speech

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
)

// fakeRecognizer records lifecycle calls and lets tests drive callbacks.
type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	closes   int
	sent     [][]byte
	startErr error
	cb       Callback
}

func (r *fakeRecognizer) Start(_ context.Context, cb Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return r.startErr
	}
	r.cb = cb
	return nil
}

func (r *fakeRecognizer) SendAudio(_ context.Context, audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, audio)
	return nil
}

func (r *fakeRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *fakeRecognizer) callback() Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cb
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) notify(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *eventSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

func (s *eventSink) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range s.all() {
			if match(e) {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected event never arrived")
	return Event{}
}

func TestStartListeningUnsupported(t *testing.T) {
	c := NewChannel(nil, nil, nil, func(Event) {})
	err := c.StartListening(context.Background())
	if !apperr.IsCode(err, apperr.RecognitionUnsupported) {
		t.Errorf("error code = %v, want RecognitionUnsupported", apperr.CodeOf(err))
	}
}

func TestTranscriptAccumulation(t *testing.T) {
	rec := &fakeRecognizer{}
	sink := &eventSink{}
	c := NewChannel(rec, nil, nil, sink.notify)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	defer c.StopListening()

	cb := rec.callback()
	cb.OnPartial("tell me")
	if got := c.Transcript(); got != "tell me" {
		t.Errorf("transcript = %q, want %q", got, "tell me")
	}

	cb.OnFinal("tell me about yourself", 0.9)
	cb.OnPartial("I am")
	if got := c.Transcript(); got != "tell me about yourself I am" {
		t.Errorf("transcript = %q", got)
	}

	e := sink.waitFor(t, func(e Event) bool { return e.Kind == EventTranscript && e.Final })
	if e.Transcript != "tell me about yourself" {
		t.Errorf("final event transcript = %q", e.Transcript)
	}
}

func TestTranscriptSurvivesRestart(t *testing.T) {
	rec := &fakeRecognizer{}
	sink := &eventSink{}
	c := NewChannel(rec, nil, nil, sink.notify)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	defer c.StopListening()

	cb := rec.callback()
	cb.OnFinal("first fragment", 0.9)
	cb.OnPartial("doomed interim")
	cb.OnEnd()

	sink.waitFor(t, func(e Event) bool { return e.Kind == EventRestarted })

	if rec.startCount() != 2 {
		t.Errorf("start count = %d, want 2 after auto-restart", rec.startCount())
	}
	// Finalized text is kept, the dead stream's interim is dropped.
	if got := c.Transcript(); got != "first fragment" {
		t.Errorf("transcript = %q, want %q", got, "first fragment")
	}

	rec.callback().OnFinal("second fragment", 0.9)
	if got := c.Transcript(); got != "first fragment second fragment" {
		t.Errorf("transcript = %q", got)
	}
}

func TestStopListeningSuppressesRestart(t *testing.T) {
	rec := &fakeRecognizer{}
	sink := &eventSink{}
	c := NewChannel(rec, nil, nil, sink.notify)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	cb := rec.callback()
	c.StopListening()
	cb.OnEnd()

	time.Sleep(400 * time.Millisecond)
	if rec.startCount() != 1 {
		t.Errorf("start count = %d, want 1 after manual stop", rec.startCount())
	}
	for _, e := range sink.all() {
		if e.Kind == EventError {
			t.Errorf("manual stop must not emit an error event, got %v", e.Err)
		}
	}
}

func TestPermissionDeniedIsTerminal(t *testing.T) {
	rec := &fakeRecognizer{}
	sink := &eventSink{}
	c := NewChannel(rec, nil, nil, sink.notify)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	rec.callback().OnError(os.ErrPermission)

	e := sink.waitFor(t, func(e Event) bool { return e.Kind == EventError })
	if !apperr.IsCode(e.Err, apperr.RecognitionError) {
		t.Errorf("event error code = %v, want RecognitionError", apperr.CodeOf(e.Err))
	}
	if c.Listening() {
		t.Error("channel should stop listening after a permission denial")
	}
	time.Sleep(400 * time.Millisecond)
	if rec.startCount() != 1 {
		t.Errorf("start count = %d, want 1 (no restart)", rec.startCount())
	}
}

func TestConsecutiveFailuresTripKillSwitch(t *testing.T) {
	rec := &fakeRecognizer{}
	sink := &eventSink{}
	c := NewChannel(rec, nil, nil, sink.notify)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	streamErr := errors.New("stream reset")
	for i := 0; i < defaultMaxConsecutive; i++ {
		starts := rec.startCount()
		rec.callback().OnError(streamErr)
		deadline := time.Now().Add(2 * time.Second)
		for rec.startCount() == starts && c.Listening() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	sink.waitFor(t, func(e Event) bool { return e.Kind == EventError })
	if c.Listening() {
		t.Error("channel should give up after repeated failures")
	}
}

func TestResetTranscript(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewChannel(rec, nil, nil, func(Event) {})

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	defer c.StopListening()

	rec.callback().OnFinal("old answer", 0.9)
	c.ResetTranscript()
	if got := c.Transcript(); got != "" {
		t.Errorf("transcript = %q, want empty after reset", got)
	}
}

func TestAudioFeeding(t *testing.T) {
	rec := &fakeRecognizer{}
	audio := make(chan []byte, 4)
	c := NewChannel(rec, nil, audio, func(Event) {})

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	defer c.StopListening()

	audio <- []byte{1, 2, 3}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.sent)
		rec.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("audio chunk never reached the recognizer")
}

func TestSupervisorDelayRange(t *testing.T) {
	s := NewSupervisor()
	for i := 0; i < 20; i++ {
		d, ok := s.ShouldResume()
		if !ok {
			t.Fatal("fresh supervisor must allow resume")
		}
		if d < restartBaseDelay || d > restartBaseDelay+restartJitter {
			t.Errorf("delay %v outside [%v, %v]", d, restartBaseDelay, restartBaseDelay+restartJitter)
		}
	}
}
