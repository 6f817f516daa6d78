// Package backoff contains helpers for dealing with backoffs.
package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewExponentialBackOff creates an instance of ExponentialBackOff that never
// gives up on its own.
func NewExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

// NewBoundedBackOff creates an exponential backoff that stops retrying once
// maxElapsed has passed. A zero maxElapsed retries forever.
func NewBoundedBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return b
}
