package realtime

import (
	"math"
	"time"
)

// ReconnectPolicy computes the delay before each automatic reconnect and
// when to give up.
type ReconnectPolicy struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration
	// MaxAttempts bounds consecutive automatic attempts since the last
	// successful open.
	MaxAttempts int
}

// Delay returns BaseDelay × 2^attempt for the 0-indexed attempt, saturating
// at the largest representable duration.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt >= 62 || p.BaseDelay > time.Duration(math.MaxInt64>>attempt) {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay << attempt
}

// Exhausted reports whether no further automatic attempt is allowed after
// attempts consecutive failures.
func (p ReconnectPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
