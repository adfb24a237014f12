package media

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// micFramesPerBuffer is ~64ms of audio at 16kHz, a good size for streaming STT.
const micFramesPerBuffer = 1024

// Mic captures microphone audio as little-endian LINEAR16 chunks. Acquisition
// is best-effort: a failed Start degrades voice answer capture but never
// blocks the session.
type Mic struct {
	sampleRate int
	outCh      chan []byte

	mu       sync.Mutex
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	running  bool
	stopOnce *sync.Once
}

// NewMic creates a microphone capturer.
func NewMic(sampleRate int) *Mic {
	return &Mic{
		sampleRate: sampleRate,
		outCh:      make(chan []byte, 32),
	}
}

// Output returns the channel of captured LINEAR16 audio chunks.
func (m *Mic) Output() <-chan []byte { return m.outCh }

// SampleRate returns the capture sample rate.
func (m *Mic) SampleRate() int { return m.sampleRate }

// Running reports whether capture is active.
func (m *Mic) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start opens the default input device and begins capture.
func (m *Mic) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return err
	}

	buf := make([]int16, micFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), micFramesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return err
	}

	micCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.stream = stream
	m.cancel = cancel
	m.running = true
	m.stopOnce = &sync.Once{}
	m.mu.Unlock()

	go m.readLoop(micCtx, stream, buf)
	return nil
}

func (m *Mic) readLoop(ctx context.Context, stream *portaudio.Stream, buf []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			slog.Debug("mic read error", "error", err)
			return
		}

		chunk := make([]byte, len(buf)*2)
		for i, s := range buf {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(s))
		}

		select {
		case m.outCh <- chunk:
		default:
			slog.Debug("mic buffer full, dropping chunk")
		}
	}
}

// Stop releases the microphone. Idempotent.
func (m *Mic) Stop() {
	m.mu.Lock()
	once := m.stopOnce
	stream := m.stream
	cancel := m.cancel
	m.stream = nil
	m.cancel = nil
	m.running = false
	m.mu.Unlock()

	if once == nil {
		return
	}
	once.Do(func() {
		if cancel != nil {
			cancel()
		}
		if stream != nil {
			_ = stream.Stop()
			_ = stream.Close()
		}
		_ = portaudio.Terminate()
	})
}
