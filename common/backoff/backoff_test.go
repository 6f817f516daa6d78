package backoff

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestBoundedBackOff(t *testing.T) {
	require := require.New(t)

	b := NewBoundedBackOff(50 * time.Millisecond)
	var attempts int
	err := backoff.Retry(func() error {
		attempts++
		return errTransient
	}, b)
	require.ErrorIs(err, errTransient)
	require.GreaterOrEqual(attempts, 1)

	require.Zero(NewExponentialBackOff().MaxElapsedTime, "default backoff should never stop")
}

var errTransient = transientError("transient")

type transientError string

func (e transientError) Error() string {
	return string(e)
}
