package jobs

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes an exponential delay: min(Max, Base * Growth^k).
type Backoff struct {
	Base   time.Duration
	Growth float64
	Max    time.Duration
}

// Delay returns the delay for exponent k. It never exceeds Max.
func (b Backoff) Delay(k int) time.Duration {
	return capped(float64(b.Base)*math.Pow(b.Growth, float64(k)), b.Max)
}

func capped(d float64, max time.Duration) time.Duration {
	if math.IsNaN(d) || d >= float64(max) {
		return max
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// PollBackoff tracks the delay between empty polls. After k consecutive
// empty polls Current returns Backoff.Delay(k).
type PollBackoff struct {
	cfg   Backoff
	empty int
}

// NewPollBackoff returns a PollBackoff starting at cfg.Base.
func NewPollBackoff(cfg Backoff) *PollBackoff {
	return &PollBackoff{cfg: cfg}
}

// Current returns the delay to sleep after the next empty poll.
func (p *PollBackoff) Current() time.Duration {
	return p.cfg.Delay(p.empty)
}

// Next records an empty poll and returns how long to sleep for it.
func (p *PollBackoff) Next() time.Duration {
	d := p.Current()
	if d < p.cfg.Max {
		p.empty++
	}
	return d
}

// Reset is called after a poll that found work.
func (p *PollBackoff) Reset() {
	p.empty = 0
}

// RetryPolicy schedules redelivery of a failed notification.
type RetryPolicy struct {
	Base      time.Duration
	Growth    float64
	Max       time.Duration
	MaxJitter time.Duration
}

// minRetryStep keeps next_attempt_at strictly increasing on misconfiguration.
const minRetryStep = time.Millisecond

// NextAttemptAt returns prev + min(Max, Base*Growth^attemptCount + jitter).
// attemptCount is the count after the failed attempt was recorded.
// The result depends only on its arguments.
func (r RetryPolicy) NextAttemptAt(attemptCount int, prev time.Time, jitter time.Duration) time.Time {
	raw := float64(r.Base)*math.Pow(r.Growth, float64(attemptCount)) + float64(jitter)
	d := capped(raw, r.Max)
	if d < minRetryStep {
		d = minRetryStep
	}
	return prev.Add(d)
}

// Jitter returns a random duration in [0, MaxJitter).
func (r RetryPolicy) Jitter() time.Duration {
	if r.MaxJitter <= 0 {
		return 0
	}
	return rand.N(r.MaxJitter)
}
