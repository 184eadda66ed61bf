// backoff.go — exponential reconnect backoff (§4.B): 250ms, 500ms, 1s, 2s,
// 4s, capped at 5s, jittered ±20%. Wraps cenkalti/backoff/v5's
// ExponentialBackOff rather than hand-rolling the arithmetic — its
// RandomizationFactor is exactly the "jittered ±20%" the spec names.
package gameconn

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// NewReconnectBackoff returns a fresh backoff sequence generator matching
// §4.B's reconnect schedule. Callers take a new instance per disconnect
// episode; NextBackOff() is stateful and must not be shared across
// concurrent reconnect attempts.
func NewReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	b.RandomizationFactor = 0.2
	return b
}
