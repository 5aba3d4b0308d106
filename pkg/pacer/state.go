// Package pacer implements inter-request pacing for the archive service.
// It keeps the shared rate state for all concurrent pagination streams of
// one orchestrator and adapts the delay to server-signaled quota headers.
package pacer

import (
	"fmt"
	"time"
)

// Mode selects the pacing strategy.
type Mode string

const (
	// ModeManual sleeps a fixed configured delay before every request.
	ModeManual Mode = "manual"

	// ModeAutoSoft paces against the soft request pool and holds a higher
	// floor delay. Conservative default when the server signals nothing.
	ModeAutoSoft Mode = "auto-soft"

	// ModeAutoHard paces against the hard request pool and adapts the delay
	// downward using server-signaled remaining-quota headers when present.
	ModeAutoHard Mode = "auto-hard"
)

// ParseMode validates a pace mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeManual, ModeAutoSoft, ModeAutoHard:
		return Mode(s), nil
	case "":
		return ModeAutoHard, nil
	}
	return "", fmt.Errorf("invalid pace mode %q: must be one of auto-soft, auto-hard, manual", s)
}

// Request pool sizes observed for the archive service: the soft limit kicks
// in around 15 requests per refill window, the hard limit around 30.
const (
	SoftPoolSize = 15
	HardPoolSize = 30

	// DefaultRefillWindow is how often the server-side request pool refills.
	DefaultRefillWindow = 60 * time.Second
)

// Signal is a normalized rate-limit signal extracted from a response.
// Present is false when the response carried no quota headers.
type Signal struct {
	Present   bool
	Remaining int
	Reset     time.Duration
}

// State is the shared mutable pacing state. All reads and writes go through
// the Pacer's mutex; two streams must never observe a stale delay or
// double-spend the pool.
type State struct {
	// Delay is the current inter-request delay.
	Delay time.Duration

	// Pool is the locally tracked number of requests left before the
	// server-side limit in the current window.
	Pool int

	// LastRefill is when the pool was last refilled.
	LastRefill time.Time

	// Remaining/ResetAt mirror the last server-signaled quota, when any.
	Remaining int
	ResetAt   time.Time
	Signaled  bool
}

// windowElapsed reports whether the refill window has passed.
func (s *State) windowElapsed(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastRefill) >= window
}

// untilRefill returns the time left before the pool refills.
func (s *State) untilRefill(now time.Time, window time.Duration) time.Duration {
	d := window - now.Sub(s.LastRefill)
	if d < 0 {
		return 0
	}
	return d
}
