package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
)

// Probe timing constants.
const (
	dimensionTimeout = 3000 * time.Millisecond // max wait for non-zero frame dimensions
	dimensionPoll    = 80 * time.Millisecond
	probeFrameGap    = 120 * time.Millisecond // gap between the two liveness frames
)

// Acquirer negotiates camera access: it walks an ordered candidate list and
// keeps the first stream that proves it delivers live, non-blank frames.
type Acquirer struct {
	provider   Provider
	preview    *Preview
	signatures []string
	width      int
	height     int

	mu     sync.Mutex
	stream Stream
	label  string
}

// NewAcquirer creates a camera acquirer.
func NewAcquirer(provider Provider, preview *Preview, signatures []string, width, height int) *Acquirer {
	return &Acquirer{
		provider:   provider,
		preview:    preview,
		signatures: signatures,
		width:      width,
		height:     height,
	}
}

// Acquire opens the best working camera and returns its label. On success the
// mirrored preview loop is running; on failure every stream opened along the
// way has been stopped and the last candidate error is reported.
func (a *Acquirer) Acquire(ctx context.Context) (string, error) {
	log := slog.Default()

	// Throwaway permission-priming stream so enumeration sees device labels.
	if err := a.provider.Prime(ctx); err != nil {
		log.Debug("camera priming failed", "error", err)
	}

	devices, err := a.provider.Enumerate(ctx)
	if err != nil {
		return "", apperr.Wrap(err, apperr.DeviceUnavailable, "camera enumeration failed")
	}
	ranked := rankDevices(devices, a.signatures)
	labels := make(map[string]string, len(ranked))
	for _, d := range ranked {
		labels[d.ID] = d.Label
	}

	var lastErr error
	for _, cand := range buildCandidates(ranked, a.width, a.height) {
		stream, err := a.probe(ctx, cand)
		if err != nil {
			lastErr = err
			log.Debug("camera candidate rejected", "device", cand.DeviceID, "error", err)
			continue
		}

		label := labels[cand.DeviceID]
		if label == "" {
			label = "default camera"
		}

		a.mu.Lock()
		a.stream = stream
		a.label = label
		a.mu.Unlock()

		a.preview.Run(stream)
		log.Info("camera acquired", "device", cand.DeviceID, "label", label)
		return label, nil
	}

	if lastErr == nil {
		lastErr = apperr.New(apperr.DeviceUnavailable, "no video input devices found")
	}
	return "", apperr.Wrap(lastErr, apperr.DeviceUnavailable, "all camera candidates failed")
}

// probe opens a candidate and runs the liveness checks. The returned stream is
// the caller's to keep; any stream opened here that fails a check is stopped
// before the next candidate is tried.
func (a *Acquirer) probe(ctx context.Context, cand Candidate) (Stream, error) {
	stream, err := a.provider.Open(ctx, cand)
	if err != nil {
		return nil, err
	}

	if !stream.Live() {
		stream.Stop()
		return nil, apperr.New(apperr.DeviceUnavailable, "video track is not live")
	}

	a.preview.Attach(stream)

	if err := waitForDimensions(ctx, stream); err != nil {
		stream.Stop()
		return nil, err
	}

	// Playback can be rejected before a display sink attaches; the stream is
	// local and muted, so frames flow regardless.
	if err := a.preview.Play(); err != nil {
		slog.Debug("preview playback deferred", "error", err)
	}

	first, err := stream.ReadFrame(ctx)
	if err != nil {
		stream.Stop()
		return nil, apperr.Wrap(err, apperr.DeviceUnavailable, "no frames from camera")
	}

	select {
	case <-ctx.Done():
		stream.Stop()
		return nil, ctx.Err()
	case <-time.After(probeFrameGap):
	}

	second, err := stream.ReadFrame(ctx)
	if err != nil {
		stream.Stop()
		return nil, apperr.Wrap(err, apperr.DeviceUnavailable, "camera stopped delivering frames")
	}

	if first.Blank() && second.Blank() {
		stream.Stop()
		return nil, apperr.New(apperr.DeviceUnavailable, "camera delivers only black frames")
	}
	if frozenPair(first, second) && (first.Blank() || second.Blank()) {
		stream.Stop()
		return nil, apperr.New(apperr.DeviceUnavailable, "camera stream appears frozen")
	}

	return stream, nil
}

func waitForDimensions(ctx context.Context, stream Stream) error {
	deadline := time.Now().Add(dimensionTimeout)
	for {
		if w, h := stream.Dimensions(); w > 0 && h > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.New(apperr.DeviceUnavailable, "camera connected but reported no frame dimensions")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dimensionPoll):
		}
	}
}

// frozenPair reports whether two probe frames are perceptually identical.
func frozenPair(a, b *Frame) bool {
	ha, err := goimagehash.AverageHash(a.Gray())
	if err != nil {
		return false
	}
	hb, err := goimagehash.AverageHash(b.Gray())
	if err != nil {
		return false
	}
	dist, err := ha.Distance(hb)
	if err != nil {
		return false
	}
	return dist == 0
}

// Frame returns the next frame from the acquired stream.
func (a *Acquirer) Frame(ctx context.Context) (*Frame, error) {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()

	if stream == nil {
		return nil, apperr.New(apperr.DeviceUnavailable, "no camera acquired")
	}
	return stream.ReadFrame(ctx)
}

// Label returns the active device label, or empty when no camera is held.
func (a *Acquirer) Label() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.label
}

// Stop releases the camera and cancels the preview loop. Idempotent.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.label = ""
	a.mu.Unlock()

	a.preview.Stop()
	if stream != nil {
		stream.Stop()
	}
}
