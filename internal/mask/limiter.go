package mask

import (
	"time"

	"golang.org/x/time/rate"
)

// WarningWindow is the minimum spacing between two rejection warnings.
const WarningWindow = 1500 * time.Millisecond

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// WarningLimiter lets at most one warning through per window. The clock is
// read on every call so tests can drive it explicitly.
type WarningLimiter struct {
	clock   Clock
	limiter *rate.Limiter
}

func NewWarningLimiter(clock Clock, window time.Duration) *WarningLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = WarningWindow
	}
	return &WarningLimiter{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(window), 1),
	}
}

func (l *WarningLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.AllowN(l.clock.Now(), 1)
}
