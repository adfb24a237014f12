// Package speech carries the voice side of a session: streaming recognition
// of candidate answers and spoken question playback.
package speech

import "context"

// Callback receives transcript results from the recognition provider.
type Callback interface {
	// OnPartial is called with an interim transcript fragment.
	OnPartial(text string)

	// OnFinal is called when a transcript fragment is finalized.
	OnFinal(text string, confidence float64)

	// OnError is called when the recognition stream fails.
	OnError(err error)

	// OnEnd is called when the provider closes the stream normally.
	OnEnd()
}

// Recognizer is a streaming speech-to-text provider.
type Recognizer interface {
	// Start begins a streaming recognition session. Results flow to cb from
	// a provider-owned goroutine until the stream ends or fails.
	Start(ctx context.Context, cb Callback) error

	// SendAudio pushes LINEAR16 audio into the active stream.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Synthesizer speaks prompt text aloud.
type Synthesizer interface {
	// Speak synthesizes and plays text, blocking until playback finishes or
	// is cancelled.
	Speak(ctx context.Context, text string) error

	// Stop cancels in-flight playback.
	Stop()
}
