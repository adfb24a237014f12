package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// ErrNoStream is returned by Play when no stream has been attached yet.
var ErrNoStream = errors.New("no stream attached to preview")

// Preview renders the mirrored self-view. It redraws on every display frame
// while running and pushes JPEG-encoded frames to subscribers; the backing
// buffer is re-allocated only when the source dimensions change.
type Preview struct {
	fps     float64
	quality int

	mu      sync.Mutex
	stream  Stream
	playing bool
	backing *image.Gray
	cancel  context.CancelFunc

	frames chan []byte
}

// NewPreview creates a preview surface rendering at the given rate.
func NewPreview(fps float64) *Preview {
	if fps <= 0 {
		fps = 30
	}
	return &Preview{
		fps:     fps,
		quality: 70,
		frames:  make(chan []byte, 4),
	}
}

// Frames returns the channel of JPEG-encoded mirrored frames.
func (p *Preview) Frames() <-chan []byte { return p.frames }

// Attach binds a stream to the preview without starting the render loop.
func (p *Preview) Attach(stream Stream) {
	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
}

// Play marks the preview as playing. Fails when nothing is attached.
func (p *Preview) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrNoStream
	}
	p.playing = true
	return nil
}

// Run starts the continuous render loop for the stream. A previous loop, if
// any, is cancelled first.
func (p *Preview) Run(stream Stream) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.stream = stream
	p.playing = true
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(ctx, stream)
}

func (p *Preview) loop(ctx context.Context, stream Stream) {
	interval := time.Duration(float64(time.Second) / p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := stream.ReadFrame(ctx)
			if err != nil {
				slog.Debug("preview frame read failed", "error", err)
				continue
			}
			p.render(frame.Mirrored())
		}
	}
}

func (p *Preview) render(frame *Frame) {
	p.mu.Lock()
	if p.backing == nil || p.backing.Rect.Dx() != frame.Width || p.backing.Rect.Dy() != frame.Height {
		p.backing = image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	}
	copy(p.backing.Pix, frame.Pix)
	img := p.backing
	p.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		slog.Debug("preview encode failed", "error", err)
		return
	}

	select {
	case p.frames <- buf.Bytes():
	default:
		// Subscribers lag; drop the frame.
	}
}

// Stop cancels the render loop and detaches the stream. Idempotent.
func (p *Preview) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.stream = nil
	p.playing = false
	p.backing = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
