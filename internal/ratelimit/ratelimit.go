// Package ratelimit implements the per-session inbound message limiter,
// built on golang.org/x/time/rate's token bucket.
package ratelimit

import (
	"golang.org/x/time/rate"
)

// Limiter is a single session's inbound rate limiter. A burst of one
// second's worth of traffic plus one message is allowed — instantaneous
// bursts up to perSecond+1 are fine, sustained excess is not.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a Limiter allowing perSecond sustained messages.
func New(perSecond float64) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
}

// Allow reports whether the current message may proceed. It never
// blocks — a disallowed message is dropped, not queued, so a single
// excess message never closes the connection.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
