package speech

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
)

// Restart policy constants.
const (
	restartBaseDelay      = 200 * time.Millisecond
	restartJitter         = 50 * time.Millisecond
	defaultMaxConsecutive = 5
)

// Supervisor decides whether a dropped recognition stream should be
// restarted. Streams end constantly under normal use (silence timeouts,
// provider-side session limits), so ends and transient errors restart after a
// short jittered delay. Permission denials are terminal, and a run of
// consecutive failures with no successful result in between trips the kill
// switch.
type Supervisor struct {
	maxConsecutive int

	mu       sync.Mutex
	failures int
	stopped  bool
}

// NewSupervisor creates a supervisor with the default failure cap.
func NewSupervisor() *Supervisor {
	return &Supervisor{maxConsecutive: defaultMaxConsecutive}
}

// ShouldRestart records a stream failure and reports whether to restart,
// along with the delay to wait first.
func (s *Supervisor) ShouldRestart(err error) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, false
	}
	if apperr.IsPermissionDenied(err) {
		s.stopped = true
		return 0, false
	}

	s.failures++
	if s.failures >= s.maxConsecutive {
		s.stopped = true
		return 0, false
	}
	return restartDelay(), true
}

// ShouldResume reports whether a normally-ended stream should be reopened.
func (s *Supervisor) ShouldResume() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, false
	}
	return restartDelay(), true
}

// OnResult clears the consecutive-failure count after a usable transcript.
func (s *Supervisor) OnResult() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

// Stop trips the kill switch so no further restarts happen.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Reset re-arms the supervisor for a new listening session.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	s.failures = 0
	s.stopped = false
	s.mu.Unlock()
}

// Stopped reports whether the kill switch has tripped.
func (s *Supervisor) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func restartDelay() time.Duration {
	return restartBaseDelay + time.Duration(rand.Float64()*float64(restartJitter))
}
