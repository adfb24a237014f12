package media

import (
	"context"
	"sort"
	"strings"
)

// DeviceInfo describes an enumerated video input device.
type DeviceInfo struct {
	ID    string // stable device identifier (e.g. /dev/video0)
	Label string // human-readable driver label
}

// Candidate is one configuration attempt when negotiating camera access.
// Zero values relax the corresponding constraint.
type Candidate struct {
	DeviceID string // exact device; empty lets the backend pick
	Width    int    // ideal resolution; zero means unconstrained
	Height   int
	Front    bool // prefer a user-facing camera
}

// Stream is an open video stream owned by the Acquirer.
type Stream interface {
	// Live reports whether the underlying track is still delivering.
	Live() bool
	// Dimensions returns the frame size, or (0, 0) until frames flow.
	Dimensions() (int, int)
	// ReadFrame blocks for the next frame or ctx cancellation.
	ReadFrame(ctx context.Context) (*Frame, error)
	// Stop releases the device. Safe to call more than once.
	Stop()
}

// Provider abstracts the platform camera stack.
type Provider interface {
	// Prime opens and immediately releases a throwaway stream so that device
	// labels become available for enumeration.
	Prime(ctx context.Context) error
	// Enumerate lists video input devices.
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	// Open opens a stream for the candidate configuration.
	Open(ctx context.Context, c Candidate) (Stream, error)
}

// rankDevices orders devices so that known virtual-camera drivers come last.
// Matching is a case-insensitive substring check; virtual devices are
// deprioritized, never excluded. The sort is stable so enumeration order is
// preserved within each group.
func rankDevices(devices []DeviceInfo, signatures []string) []DeviceInfo {
	ranked := make([]DeviceInfo, len(devices))
	copy(ranked, devices)
	sort.SliceStable(ranked, func(i, j int) bool {
		return !isVirtualLabel(ranked[i].Label, signatures) && isVirtualLabel(ranked[j].Label, signatures)
	})
	return ranked
}

func isVirtualLabel(label string, signatures []string) bool {
	l := strings.ToLower(label)
	for _, sig := range signatures {
		if strings.Contains(l, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

// buildCandidates produces the ordered list of configuration attempts: one
// exact-device candidate per ranked device at the ideal resolution, then a
// resolution-only fallback, then a fully generic fallback.
func buildCandidates(devices []DeviceInfo, w, h int) []Candidate {
	candidates := make([]Candidate, 0, len(devices)+2)
	for _, d := range devices {
		candidates = append(candidates, Candidate{DeviceID: d.ID, Width: w, Height: h, Front: true})
	}
	candidates = append(candidates, Candidate{Width: w, Height: h})
	candidates = append(candidates, Candidate{})
	return candidates
}
