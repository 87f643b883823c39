package app

import (
	"context"
	"math/rand"
	"time"
)

// Default reconnect backoff values.
const (
	DefaultBackoffMin         = time.Second
	DefaultBackoffMax         = 2 * time.Minute
	DefaultBackoffJitter      = 0.2
	DefaultBackoffStableAfter = 60 * time.Second
)

// BackoffPolicy configures reconnect delays.
type BackoffPolicy struct {
	// Min is the first delay and the value after a reset.
	Min time.Duration

	// Max caps every delay.
	Max time.Duration

	// Jitter is the relative spread applied to each delay, in [0,1).
	Jitter float64

	// StableAfter is how long a Streaming session must last before the
	// sequence resets to Min.
	StableAfter time.Duration
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Min <= 0 {
		p.Min = DefaultBackoffMin
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = DefaultBackoffJitter
	}
	if p.StableAfter <= 0 {
		p.StableAfter = DefaultBackoffStableAfter
	}
	return p
}

// Backoff implements exponential backoff with jitter.
// Delays returned by Next never decrease until Reset and never exceed Max.
type Backoff struct {
	policy  BackoffPolicy
	current time.Duration
	last    time.Duration
	jitter  func(d time.Duration, spread float64) time.Duration
}

// NewBackoff creates a backoff starting at policy.Min.
func NewBackoff(policy BackoffPolicy) *Backoff {
	policy = policy.withDefaults()
	return &Backoff{
		policy:  policy,
		current: policy.Min,
		jitter:  randomJitter,
	}
}

// randomJitter spreads d by ±spread.
func randomJitter(d time.Duration, spread float64) time.Duration {
	return time.Duration(float64(d) + float64(d)*spread*(rand.Float64()*2-1))
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.jitter(b.current, b.policy.Jitter)
	if d < b.last {
		d = b.last
	}
	if d > b.policy.Max {
		d = b.policy.Max
	}
	b.last = d

	b.current *= 2
	if b.current > b.policy.Max {
		b.current = b.policy.Max
	}
	return d
}

// Reset restarts the sequence at Min.
func (b *Backoff) Reset() {
	b.current = b.policy.Min
	b.last = 0
}

// ObserveSession resets the sequence if a Streaming session lasted at
// least StableAfter. It reports whether a reset happened.
func (b *Backoff) ObserveSession(streamed time.Duration) bool {
	if streamed < b.policy.StableAfter {
		return false
	}
	b.Reset()
	return true
}

// Current returns the un-jittered delay the next call to Next is based on.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
