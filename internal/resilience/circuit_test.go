package resilience

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_PermanentErrorLatches(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	require.NoError(t, b.Allow())

	b.Record(NewPermanentError(eris.New("invalid api key"), 401))

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.True(t, b.Latched())

	// Latched circuits never self-heal.
	b.nowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_TransientThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{TransientThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(NewTransientError(eris.New("503"), 503))
	}
	require.NoError(t, b.Allow())
	b.Record(NewTransientError(eris.New("503"), 503))

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.False(t, b.Latched())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := NewBreaker(BreakerConfig{TransientThreshold: 2, ResetTimeout: time.Minute})

	b.Record(NewTransientError(eris.New("503"), 503))
	b.Record(nil)
	b.Record(NewTransientError(eris.New("503"), 503))

	assert.NoError(t, b.Allow())
}

func TestBreaker_ProbeAfterResetTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{TransientThreshold: 1, ResetTimeout: 10 * time.Second})
	b.nowFunc = func() time.Time { return now }

	b.Record(NewTransientError(eris.New("503"), 503))
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(11 * time.Second)
	// Probe allowed after the reset window.
	assert.NoError(t, b.Allow())

	// Probe failure re-opens immediately.
	b.Record(NewTransientError(eris.New("503"), 503))
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestModelBreakers_PerModelIsolation(t *testing.T) {
	mb := NewModelBreakers(DefaultBreakerConfig())

	mb.Get("gpt-4o").Record(NewPermanentError(eris.New("401"), 401))

	assert.ErrorIs(t, mb.Get("gpt-4o").Allow(), ErrCircuitOpen)
	assert.NoError(t, mb.Get("sonar-pro").Allow())
	assert.Same(t, mb.Get("sonar-pro"), mb.Get("sonar-pro"))
}
