package fetch

import (
	"fmt"
	"strings"
	"time"
)

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	// BackoffFixed waits Policy.Delay between every attempt.
	BackoffFixed Backoff = "fixed"
	// BackoffExponential doubles the delay after each attempt, capped at Policy.MaxDelay.
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff converts a configuration value into a Backoff. The empty
// string selects BackoffFixed.
func ParseBackoff(s string) (Backoff, error) {
	switch Backoff(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackoffFixed:
		return BackoffFixed, nil
	case BackoffExponential:
		return BackoffExponential, nil
	}
	return "", fmt.Errorf("fetch: unknown backoff %q", s)
}

// Policy bounds the attempts made against each candidate.
type Policy struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxAttempts is the number of attempts per candidate.
	MaxAttempts int
	// Delay is the wait between two attempts on the same candidate.
	Delay time.Duration
	// Backoff selects fixed or exponential delays.
	Backoff Backoff
	// MaxDelay caps exponential delays. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy returns the loader defaults: 10s per attempt, 3 attempts, 1s apart.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     BackoffFixed,
		MaxDelay:    30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Backoff == "" {
		p.Backoff = BackoffFixed
	}
	return p
}

// DelayAfter returns the wait after the given (1-based) failed attempt.
func (p Policy) DelayAfter(attempt int) time.Duration {
	if p.Backoff != BackoffExponential || attempt <= 1 {
		return p.Delay
	}
	d := p.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}
