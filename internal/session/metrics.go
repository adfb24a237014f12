package session

import (
	"math"
	"regexp"
	"strings"

	"github.com/kalkeesh/AI-mock-interviews/internal/presence"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
)

var fillerPattern = regexp.MustCompile(`(?i)\b(um|uh|like|hmm|you know)\b`)

// Movement from face-center displacement is normalized by frame size and
// scaled so ordinary fidgeting lands mid-range.
const centerMovementScale = 2.5

// Accumulator holds the running behavioral counters for one mode-run.
// Mutated only from the session event loop: once per analyzer tick and once
// per saved answer. Counters never decrease except on Reset.
type Accumulator struct {
	Samples       int
	FaceVisible   int
	Centered      int
	MovementTotal float64
	LastCenter    *point
	TotalWords    int
	FillerWords   int

	// Per-index contributions let a revisited answer replace its earlier
	// word and filler counts instead of stacking on top of them.
	wordsByIndex   map[int]int
	fillersByIndex map[int]int
}

type point struct{ X, Y float64 }

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		wordsByIndex:   make(map[int]int),
		fillersByIndex: make(map[int]int),
	}
}

// Reset clears every counter for a fresh mode-run.
func (a *Accumulator) Reset() {
	*a = *NewAccumulator()
}

// Observe applies one analyzer tick. Every tick counts a sample, even an
// empty one from a missed detection.
func (a *Accumulator) Observe(s presence.Sample) {
	a.Samples++
	if s.FaceVisible {
		a.FaceVisible++
	}
	if s.Centered {
		a.Centered++
	}

	if s.HasMovement {
		a.MovementTotal += s.Movement
		return
	}

	if s.Center == nil {
		// The last known center survives missed detections so a brief
		// dropout does not fake a large jump.
		return
	}
	cur := point{X: float64(s.Center.X), Y: float64(s.Center.Y)}
	if a.LastCenter != nil {
		mx := (cur.X - a.LastCenter.X) / math.Max(float64(s.FrameWidth), 1)
		my := (cur.Y - a.LastCenter.Y) / math.Max(float64(s.FrameHeight), 1)
		a.MovementTotal += clamp(math.Sqrt(mx*mx+my*my)*centerMovementScale, 0, 1)
	}
	a.LastCenter = &cur
}

// CountAnswer records word and filler counts for the answer at index,
// replacing any counts from an earlier save of the same index.
func (a *Accumulator) CountAnswer(index int, text string) {
	words := len(strings.Fields(text))
	fillers := len(fillerPattern.FindAllString(text, -1))

	a.TotalWords += words - a.wordsByIndex[index]
	a.FillerWords += fillers - a.fillersByIndex[index]
	a.wordsByIndex[index] = words
	a.fillersByIndex[index] = fillers
}

// Aggregate computes the final behavioral summary. Denominators are floored
// at one so an empty run yields zeros rather than dividing by zero.
func (a *Accumulator) Aggregate(answers []scoring.Answer) scoring.FaceMetrics {
	samples := math.Max(float64(a.Samples), 1)
	faceVisibleRatio := float64(a.FaceVisible) / samples
	centeredRatio := float64(a.Centered) / samples
	movementScore := a.MovementTotal / math.Max(float64(a.Samples-1), 1)
	fillerRatio := float64(a.FillerWords) / math.Max(float64(a.TotalWords), 1)

	var wordSum float64
	for _, ans := range answers {
		if ans.AnswerText != "" {
			wordSum += float64(len(strings.Fields(ans.AnswerText)))
		}
	}
	avgWordsPerAnswer := wordSum / math.Max(float64(len(answers)), 1)

	confidence := clamp(faceVisibleRatio*40+centeredRatio*30+math.Min(avgWordsPerAnswer, 30)/30*30, 0, 100)
	nervousness := clamp(movementScore*55+fillerRatio*45, 0, 100)

	return scoring.FaceMetrics{
		ConfidenceLevel:  toLevel(confidence),
		NervousnessLevel: toLevel(nervousness),
		ConfidenceScore:  round2(confidence),
		NervousnessScore: round2(nervousness),
		FaceVisibleRatio: round2(faceVisibleRatio),
		CenteredRatio:    round2(centeredRatio),
		MovementScore:    round2(movementScore),
	}
}

func toLevel(score float64) string {
	switch {
	case score < 34:
		return "Low"
	case score < 67:
		return "Medium"
	default:
		return "High"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
