// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultBackoff returns a reasonable default configuration.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     120 * time.Second,
		Multiplier:   1.6,
		Jitter:       true,
	}
}

// Backoff computes exponential backoff delays with optional jitter.
//
// The channel reconnection loop waits Delay(attempt) between
// consecutive connection rounds; there is no attempt limit, the loop
// retries until the channel is closed.
type Backoff struct {
	// InitialDelay is the delay after the first failed round.
	InitialDelay time.Duration

	// MaxDelay caps the backoff duration.
	MaxDelay time.Duration

	// Multiplier increases the delay each round.
	Multiplier float64

	// Jitter adds ±25% randomisation to prevent thundering herd.
	Jitter bool
}

// Delay returns the wait before round attempt+1, where attempt is the
// zero-based index of the round that just failed.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 1.6
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 120 * time.Second
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	if b.Jitter {
		delay = addJitter(delay)
	}
	return delay
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
