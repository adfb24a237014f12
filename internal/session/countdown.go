package session

import (
	"sync"
	"time"
)

// AllowedMinutes are the selectable session lengths.
var AllowedMinutes = []int{5, 7, 9}

// ValidMinutes reports whether minutes is a selectable session length.
func ValidMinutes(minutes int) bool {
	for _, m := range AllowedMinutes {
		if m == minutes {
			return true
		}
	}
	return false
}

// Countdown drives the session timer. It counts whole seconds down from a
// total and fires onExpire exactly once when it reaches zero. The tick
// interval is injectable so tests do not wait wall-clock seconds.
type Countdown struct {
	tick     time.Duration
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	stopCh    chan struct{}
	expired   bool
}

// NewCountdown creates a countdown over total seconds. Callbacks run on the
// countdown's own goroutine and should hand off, not block.
func NewCountdown(totalSeconds int, tick time.Duration, onTick func(int), onExpire func()) *Countdown {
	if tick <= 0 {
		tick = time.Second
	}
	return &Countdown{
		tick:      tick,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: totalSeconds,
	}
}

// Start begins ticking. Calling Start on a running or expired countdown is a
// no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil || c.expired {
		return
	}
	c.stopCh = make(chan struct{})
	go c.loop(c.stopCh)
}

func (c *Countdown) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.remaining > 0 {
			c.remaining--
		}
		remaining := c.remaining
		expire := remaining == 0 && !c.expired
		if expire {
			c.expired = true
		}
		c.mu.Unlock()

		c.onTick(remaining)
		if expire {
			c.onExpire()
			return
		}
	}
}

// Stop halts ticking without firing expiry. Idempotent.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown ran to zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
