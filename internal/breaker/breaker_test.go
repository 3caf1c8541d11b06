package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cooldown = 100 * time.Millisecond
	return cfg
}

// run pushes n operations through the breaker, failing the last nFail of them.
func run(b *Breaker, n, nFail int) {
	for i := 0; i < n; i++ {
		i := i
		b.Execute(func() (any, error) {
			if i >= n-nFail {
				return nil, errUpstream
			}
			return nil, nil
		})
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := New("test", testConfig(), nil)

	run(b, 100, 9) // 9% < 10%

	assert.Equal(t, "closed", b.State().State)
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b := New("test", testConfig(), nil)

	run(b, 100, 11) // 11% >= 10%

	snap := b.State()
	assert.Equal(t, "open", snap.State)
	assert.False(t, snap.OpenedAt.IsZero())
	assert.True(t, snap.CooldownUntil.After(snap.OpenedAt))
}

func TestBreaker_MinSampleEnforced(t *testing.T) {
	b := New("test", testConfig(), nil)

	// 50% error rate, but only 20 samples: not enough evidence to trip.
	run(b, 20, 10)

	assert.Equal(t, "closed", b.State().State)
}

func TestBreaker_OpenFailsFastWithoutInvoking(t *testing.T) {
	b := New("test", testConfig(), nil)
	run(b, 100, 11)
	require.Equal(t, "open", b.State().State)

	invoked := 0
	_, err := b.Execute(func() (any, error) {
		invoked++
		return nil, nil
	})

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, invoked, "guarded fn must not run while OPEN")
	assert.False(t, openErr.CooldownUntil.IsZero())
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b := New("test", testConfig(), nil)
	run(b, 100, 11)
	require.Equal(t, "open", b.State().State)

	time.Sleep(150 * time.Millisecond) // past cooldown

	// Probe succeeds: breaker closes, counters reset.
	invoked := 0
	_, err := b.Execute(func() (any, error) {
		invoked++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, invoked)
	assert.Equal(t, "closed", b.State().State)
	assert.Equal(t, uint32(0), b.State().Failures)
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := New("test", testConfig(), nil)
	run(b, 100, 11)
	require.Equal(t, "open", b.State().State)

	time.Sleep(150 * time.Millisecond)

	_, err := b.Execute(func() (any, error) { return nil, errUpstream })
	require.Error(t, err)
	assert.Equal(t, "open", b.State().State, "failed probe restarts the cooldown")
}

func TestBreaker_OpenEventEmitted(t *testing.T) {
	var events []OpenEvent
	b := New("test", testConfig(), func(ev OpenEvent) { events = append(events, ev) })

	run(b, 100, 11)

	require.Len(t, events, 1)
	assert.InDelta(t, 0.11, events[0].ErrorRate, 1e-9)
	assert.Equal(t, uint32(100), events[0].WindowSize)
	assert.True(t, events[0].CooldownUntil.After(time.Now().Add(-time.Second)))
}

func TestBreaker_IsSuccessfulClassification(t *testing.T) {
	benign := errors.New("benign")
	cfg := testConfig()
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, benign)
	}
	b := New("test", cfg, nil)

	// 100 operations all returning the benign error: no trip.
	for i := 0; i < 100; i++ {
		_, err := b.Execute(func() (any, error) { return nil, benign })
		assert.ErrorIs(t, err, benign, "benign errors still propagate to the caller")
	}

	assert.Equal(t, "closed", b.State().State)
	assert.Equal(t, uint32(0), b.State().Failures)
}
