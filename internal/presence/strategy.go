// Package presence derives face-visibility, centering, and motion signals
// from camera frames on a fixed sampling tick.
package presence

import (
	"fmt"
	"image"
	"log/slog"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/kalkeesh/AI-mock-interviews/internal/media"
)

// Sample is the outcome of one analyzer tick. A zero Sample still counts the
// tick (the accumulator increments its sample counter) but carries no signal,
// which is how a missed detection is represented.
type Sample struct {
	FaceVisible bool
	Centered    bool

	// Center is the detected face center, set only by the face-detector
	// strategy. Motion from center displacement is computed by the
	// accumulator owner, which tracks the previous center.
	Center      *image.Point
	FrameWidth  int
	FrameHeight int

	// Movement is the fallback strategy's frame-diff motion, already scaled
	// and clamped to [0, 1].
	Movement    float64
	HasMovement bool
}

// Strategy analyzes a single frame. Chosen once at session start based on
// platform capability, never swapped mid-session.
type Strategy interface {
	Name() string
	Analyze(frame *media.Frame) (Sample, error)
	// Reset drops retained inter-frame state.
	Reset()
}

// Select probes platform capability and returns the best available strategy:
// a facial-cascade detector when the cascade loads, else the luminance
// fallback.
func Select(cascadePath string) Strategy {
	if cascadePath == "" {
		return NewLumaStrategy()
	}
	s, err := NewFaceStrategy(cascadePath)
	if err != nil {
		slog.Warn("face detector unavailable, using luminance fallback", "error", err)
		return NewLumaStrategy()
	}
	return s
}

const (
	centeredMaxDistance = 0.35
	faceQualityMin      = 5.0
)

// FaceStrategy locates at most one face per tick with a pigo cascade.
type FaceStrategy struct {
	classifier *pigo.Pigo
}

// NewFaceStrategy loads the cascade file and builds the classifier.
func NewFaceStrategy(cascadePath string) (*FaceStrategy, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, err
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &FaceStrategy{classifier: classifier}, nil
}

func (s *FaceStrategy) Name() string { return "face-detector" }

func (s *FaceStrategy) Analyze(frame *media.Frame) (Sample, error) {
	params := pigo.CascadeParams{
		MinSize:     40,
		MaxSize:     frame.Height,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: frame.Pix,
			Rows:   frame.Height,
			Cols:   frame.Width,
			Dim:    frame.Width,
		},
	}

	dets := s.classifier.RunCascade(params, 0.0)
	dets = s.classifier.ClusterDetections(dets, 0.2)

	best := -1
	for i, d := range dets {
		if d.Q < faceQualityMin {
			continue
		}
		if best < 0 || d.Q > dets[best].Q {
			best = i
		}
	}
	if best < 0 {
		// No face this tick: the sample is counted, nothing else updates.
		return Sample{}, nil
	}

	d := dets[best]
	center := image.Point{X: d.Col, Y: d.Row}

	halfW := float64(frame.Width) / 2
	halfH := float64(frame.Height) / 2
	dx := (float64(center.X) - halfW) / halfW
	dy := (float64(center.Y) - halfH) / halfH
	dist := dx*dx + dy*dy

	return Sample{
		FaceVisible: true,
		Centered:    dist < centeredMaxDistance*centeredMaxDistance,
		Center:      &center,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
	}, nil
}

func (s *FaceStrategy) Reset() {}

// Fallback analysis constants.
const (
	lumaSampleWidth  = 96
	lumaSampleHeight = 54
	lumaPresenceMin  = 12.0
	lumaMotionScale  = 4.0
)

// LumaStrategy estimates presence from mean luminance and motion from the
// per-pixel frame difference. There is no real face localization: a lit frame
// marks the candidate both visible and centered, which is the documented
// behavior of the compatibility path.
type LumaStrategy struct {
	prev []uint8
}

// NewLumaStrategy creates the luminance fallback.
func NewLumaStrategy() *LumaStrategy { return &LumaStrategy{} }

func (s *LumaStrategy) Name() string { return "luminance-fallback" }

func (s *LumaStrategy) Analyze(frame *media.Frame) (Sample, error) {
	ds := frame.Downsample(lumaSampleWidth, lumaSampleHeight)
	stats := ds.Stats()
	lit := stats.MeanLuma > lumaPresenceMin

	sample := Sample{
		FaceVisible: lit,
		Centered:    lit,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
	}

	if s.prev != nil && len(s.prev) == len(ds.Pix) {
		var diff int64
		for i, p := range ds.Pix {
			d := int64(p) - int64(s.prev[i])
			if d < 0 {
				d = -d
			}
			diff += d
		}
		normalized := float64(diff) / (float64(len(ds.Pix)) * 255)
		sample.Movement = clamp01(normalized * lumaMotionScale)
		sample.HasMovement = true
	}
	s.prev = ds.Pix

	return sample, nil
}

func (s *LumaStrategy) Reset() { s.prev = nil }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
