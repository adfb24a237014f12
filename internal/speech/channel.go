package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
)

// EventKind classifies channel notifications.
type EventKind int

const (
	// EventTranscript carries an updated transcript, partial or final.
	EventTranscript EventKind = iota
	// EventRestarted marks a recognition stream reopen.
	EventRestarted
	// EventError marks a terminal recognition failure. Listening has stopped
	// and will not resume until StartListening is called again.
	EventError
)

// Event is a channel notification delivered to the session owner.
type Event struct {
	Kind       EventKind
	Transcript string
	Final      bool
	Err        error
}

// Channel owns one voice session: it feeds microphone audio into a streaming
// recognizer, accumulates the transcript across stream restarts, and plays
// question prompts through the synthesizer. A nil recognizer means speech
// input is unsupported on this install; listening then fails fast while the
// rest of the session works normally.
type Channel struct {
	rec    Recognizer
	synth  Synthesizer
	audio  <-chan []byte
	notify func(Event)
	sup    *Supervisor

	mu        sync.Mutex
	listening bool
	gen       int
	listenCtx context.Context
	cancel    context.CancelFunc
	finals    []string
	interim   string
}

// NewChannel creates a speech channel. notify is invoked from channel-owned
// goroutines and must not block.
func NewChannel(rec Recognizer, synth Synthesizer, audio <-chan []byte, notify func(Event)) *Channel {
	if synth == nil {
		synth = NoopSynthesizer{}
	}
	return &Channel{
		rec:    rec,
		synth:  synth,
		audio:  audio,
		notify: notify,
		sup:    NewSupervisor(),
	}
}

// Supported reports whether speech recognition is available.
func (c *Channel) Supported() bool { return c.rec != nil }

// StartListening opens a recognition session. The transcript accumulated so
// far is kept; call ResetTranscript first when starting a fresh answer.
func (c *Channel) StartListening(ctx context.Context) error {
	if c.rec == nil {
		return apperr.New(apperr.RecognitionUnsupported, "speech recognition is not available")
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.sup.Reset()
	listenCtx, cancel := context.WithCancel(ctx)
	c.listenCtx = listenCtx
	c.cancel = cancel
	c.listening = true
	c.mu.Unlock()

	if err := c.rec.Start(listenCtx, &streamCallback{c: c, gen: gen}); err != nil {
		c.mu.Lock()
		c.listening = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return apperr.Wrap(err, apperr.RecognitionError, "could not start speech recognition")
	}

	go c.feed(listenCtx)
	return nil
}

// feed pumps microphone audio into the recognizer for the whole listening
// session. The recognizer survives stream restarts, so one feeder suffices.
func (c *Channel) feed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-c.audio:
			if !ok {
				return
			}
			if err := c.rec.SendAudio(ctx, chunk); err != nil {
				// Stream failures surface through the receive callback.
				slog.Debug("audio send failed", "error", err)
			}
		}
	}
}

// StopListening ends the session deliberately. No restart follows and no
// event is emitted; the transcript stays readable until ResetTranscript.
func (c *Channel) StopListening() {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.listening = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.sup.Stop()
	if cancel != nil {
		cancel()
	}
	if err := c.rec.Close(); err != nil {
		slog.Debug("recognizer close failed", "error", err)
	}
}

// Listening reports whether a recognition session is active.
func (c *Channel) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Transcript returns finalized fragments joined with the current interim one.
func (c *Channel) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := c.finals
	if c.interim != "" {
		parts = append(append([]string{}, c.finals...), c.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// ResetTranscript clears accumulated text for a new answer.
func (c *Channel) ResetTranscript() {
	c.mu.Lock()
	c.finals = nil
	c.interim = ""
	c.mu.Unlock()
}

// Speak voices text, cancelling any in-flight utterance first. Blocks until
// playback completes.
func (c *Channel) Speak(ctx context.Context, text string) error {
	c.synth.Stop()
	return c.synth.Speak(ctx, text)
}

// StopSpeaking cancels in-flight playback.
func (c *Channel) StopSpeaking() {
	c.synth.Stop()
}

// restartAfter handles a dropped stream: err is nil for a normal end. The
// stale-generation check makes callbacks from a superseded stream harmless.
func (c *Channel) restartAfter(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.listening {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	delay, ok := c.sup.ShouldResume()
	if err != nil {
		delay, ok = c.sup.ShouldRestart(err)
	}
	if !ok {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.gen++
		c.listening = false
		cancel := c.cancel
		c.cancel = nil
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if err == nil {
			err = apperr.New(apperr.RecognitionError, "speech recognition kept failing and was disabled")
		} else if apperr.IsPermissionDenied(err) {
			err = apperr.Wrap(err, apperr.RecognitionError, "microphone access denied")
		} else {
			err = apperr.Wrap(err, apperr.RecognitionError, "speech recognition kept failing and was disabled")
		}
		c.notify(Event{Kind: EventError, Err: err})
		return
	}

	go func() {
		time.Sleep(delay)

		c.mu.Lock()
		if gen != c.gen || !c.listening {
			c.mu.Unlock()
			return
		}
		// Interim text from the dead stream will never finalize; drop it.
		c.interim = ""
		ctx := c.listenCtx
		c.mu.Unlock()

		if startErr := c.rec.Start(ctx, &streamCallback{c: c, gen: gen}); startErr != nil {
			c.restartAfter(gen, startErr)
			return
		}
		c.notify(Event{Kind: EventRestarted})
	}()
}

type streamCallback struct {
	c   *Channel
	gen int
}

func (cb *streamCallback) OnPartial(text string) {
	c := cb.c
	c.mu.Lock()
	if cb.gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.interim = text
	c.mu.Unlock()

	c.sup.OnResult()
	c.notify(Event{Kind: EventTranscript, Transcript: c.Transcript()})
}

func (cb *streamCallback) OnFinal(text string, _ float64) {
	c := cb.c
	c.mu.Lock()
	if cb.gen != c.gen {
		c.mu.Unlock()
		return
	}
	if text != "" {
		c.finals = append(c.finals, strings.TrimSpace(text))
	}
	c.interim = ""
	c.mu.Unlock()

	c.sup.OnResult()
	c.notify(Event{Kind: EventTranscript, Transcript: c.Transcript(), Final: true})
}

func (cb *streamCallback) OnError(err error) {
	cb.c.restartAfter(cb.gen, err)
}

func (cb *streamCallback) OnEnd() {
	cb.c.restartAfter(cb.gen, nil)
}
