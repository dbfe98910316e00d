package realtime

import "time"

const (
	defaultReconnectDelay       = time.Second
	defaultMaxReconnectAttempts = 5
)

// ReconnectPolicy is a bounded linear backoff: attempt n waits base*n, and no
// attempt is granted past max. It is not safe for concurrent use; the hub
// guards it with its own mutex.
type ReconnectPolicy struct {
	base     time.Duration
	max      int
	attempts int
}

func NewReconnectPolicy(base time.Duration, max int) *ReconnectPolicy {
	if base <= 0 {
		base = defaultReconnectDelay
	}
	if max <= 0 {
		max = defaultMaxReconnectAttempts
	}
	return &ReconnectPolicy{base: base, max: max}
}

// Next consumes one attempt and returns how long to wait before it. ok is
// false once the cap is reached; the counter is left unchanged in that case.
func (p *ReconnectPolicy) Next() (delay time.Duration, ok bool) {
	if p.attempts >= p.max {
		return 0, false
	}
	p.attempts++
	return p.base * time.Duration(p.attempts), true
}

func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
}

func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

func (p *ReconnectPolicy) Exhausted() bool {
	return p.attempts >= p.max
}
