package transport

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// backoffPolicy wraps go-retry's exponential-with-jitter backoff to
// implement §4.3's `min(b0*2^n, bMax) * U(0.5, 1.5)` deadline formula.
// A single instance lives for one Disconnected-to-Connected span; Reset
// is called on every successful connect, per "resets attempt count to
// zero".
type backoffPolicy struct {
	base, cap time.Duration
	b         retry.Backoff
}

func newBackoffPolicy(base, cap time.Duration) *backoffPolicy {
	p := &backoffPolicy{base: base, cap: cap}
	p.Reset()
	return p
}

func (p *backoffPolicy) Reset() {
	b := retry.NewExponential(p.base)
	b = retry.WithCappedDuration(p.cap, b)
	b = retry.WithJitterPercent(50, b)
	p.b = b
}

// Next returns the deadline for the next reconnect attempt.
func (p *backoffPolicy) Next() time.Duration {
	d, _ := p.b.Next()
	return d
}
