package asyncmc

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadRetryBreaker_Disabled(t *testing.T) {
	assert.Nil(t, newDeadRetryBreaker("a:1", 0, slog.New(slog.DiscardHandler)))
	assert.Nil(t, newDeadRetryBreaker("a:1", -time.Second, slog.New(slog.DiscardHandler)))
}

func TestDeadRetryBreaker_TripsOnFirstFailure(t *testing.T) {
	cb := newDeadRetryBreaker("a:1", time.Minute, slog.New(slog.DiscardHandler))
	require.NotNil(t, cb)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, "a:1", cb.Name())

	done, err := cb.Allow()
	require.NoError(t, err)
	done(true)
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	done, err = cb.Allow()
	require.NoError(t, err)
	done(false)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err = cb.Allow()
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestDeadRetryBreaker_SingleProbeAfterTimeout(t *testing.T) {
	cb := newDeadRetryBreaker("a:1", 30*time.Millisecond, slog.New(slog.DiscardHandler))

	done, err := cb.Allow()
	require.NoError(t, err)
	done(false)

	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	probe, err := cb.Allow()
	require.NoError(t, err)

	// Only one probe at a time
	_, err = cb.Allow()
	assert.ErrorIs(t, err, gobreaker.ErrTooManyRequests)

	probe(true)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
