package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrortrade/mirrorscan/internal/provider"
)

// chrono builds a trade history from chronological amount/pnl pairs and
// returns it most-recent-first, the order the provider delivers.
func chrono(pairs ...[2]string) []provider.Trade {
	trades := make([]provider.Trade, 0, len(pairs))
	for i := len(pairs) - 1; i >= 0; i-- {
		trades = append(trades, provider.Trade{
			Category:    "memecoin",
			Amount:      dec(pairs[i][0]),
			PnL:         dec(pairs[i][1]),
			HoldSeconds: 86400,
		})
	}
	return trades
}

func TestAnalyzeBehavior_CleanHistory(t *testing.T) {
	trades := chrono(
		[2]string{"100", "10"},
		[2]string{"100", "12"},
		[2]string{"100", "-5"},
		[2]string{"100", "8"}, // same size after the loss: clean
	)

	bp := AnalyzeBehavior(trades, DefaultParams())

	assert.Equal(t, 0, bp.ChasingCount)
	assert.Equal(t, 1, bp.CleanCount)
	assert.False(t, bp.Terminated)
	assert.True(t, bp.ChasingRatio.IsZero())
}

func TestAnalyzeBehavior_DetectsChasing(t *testing.T) {
	// Loss followed by a 2x position: classic martingale.
	trades := chrono(
		[2]string{"100", "-10"},
		[2]string{"200", "15"},
	)

	bp := AnalyzeBehavior(trades, DefaultParams())

	assert.Equal(t, 1, bp.ChasingCount)
	assert.Equal(t, 0, bp.CleanCount)
}

func TestAnalyzeBehavior_MultiplierBoundary(t *testing.T) {
	p := DefaultParams()

	t.Run("exactly 1.5x is not chasing", func(t *testing.T) {
		bp := AnalyzeBehavior(chrono(
			[2]string{"100", "-10"},
			[2]string{"150", "5"},
		), p)
		assert.Equal(t, 0, bp.ChasingCount)
		assert.Equal(t, 1, bp.CleanCount)
	})

	t.Run("just above 1.5x is chasing", func(t *testing.T) {
		bp := AnalyzeBehavior(chrono(
			[2]string{"100", "-10"},
			[2]string{"151", "5"},
		), p)
		assert.Equal(t, 1, bp.ChasingCount)
	})
}

func TestAnalyzeBehavior_EarlyTermination(t *testing.T) {
	p := DefaultParams()

	// One chase with no clean pairs: limit is (0+1)*0.2 = 0.2, and
	// chasing=1 > 0.2, so the scan stops after the very first chase.
	bp := AnalyzeBehavior(chrono(
		[2]string{"100", "-10"},
		[2]string{"300", "5"},
		[2]string{"100", "-10"},
		[2]string{"100", "5"},
	), p)

	assert.True(t, bp.Terminated)
	assert.Equal(t, 1, bp.ChasingCount)
	assert.Equal(t, 0, bp.CleanCount, "pairs after termination are never scanned")
}

func TestAnalyzeBehavior_TerminationBoundary(t *testing.T) {
	p := DefaultParams()

	// Build 9 clean loss pairs then 2 chases: after the 2nd chase,
	// chasing=2 > (9+1)*0.2 = 2 is false (strict), so the scan survives;
	// a 3rd chase crosses it.
	var pairs [][2]string
	for i := 0; i < 9; i++ {
		pairs = append(pairs, [2]string{"100", "-1"}, [2]string{"100", "1"})
	}
	pairs = append(pairs, [2]string{"100", "-1"}, [2]string{"300", "1"})
	pairs = append(pairs, [2]string{"100", "-1"}, [2]string{"300", "1"})

	bp := AnalyzeBehavior(chrono(pairs...), p)
	assert.False(t, bp.Terminated, "chasing == limit must not terminate")

	pairs = append(pairs, [2]string{"100", "-1"}, [2]string{"300", "1"})
	bp = AnalyzeBehavior(chrono(pairs...), p)
	assert.True(t, bp.Terminated)
}

func TestMaxDrawdown(t *testing.T) {
	t.Run("monotonic gains have zero drawdown", func(t *testing.T) {
		bp := AnalyzeBehavior(chrono(
			[2]string{"100", "10"},
			[2]string{"100", "10"},
			[2]string{"100", "10"},
		), DefaultParams())
		assert.True(t, bp.MaxDrawdown.IsZero())
	})

	t.Run("single 20% loss", func(t *testing.T) {
		bp := AnalyzeBehavior(chrono(
			[2]string{"100", "10"},
			[2]string{"100", "-20"},
		), DefaultParams())
		// Equity 1.0 -> 1.1 -> 0.88; drawdown (1.1-0.88)/1.1 = 0.2.
		assert.True(t, bp.MaxDrawdown.Equal(dec("0.2")), "got %s", bp.MaxDrawdown)
	})

	t.Run("recovery does not erase the trough", func(t *testing.T) {
		bp := AnalyzeBehavior(chrono(
			[2]string{"100", "-40"},
			[2]string{"100", "100"},
		), DefaultParams())
		assert.True(t, bp.MaxDrawdown.Equal(dec("0.4")), "got %s", bp.MaxDrawdown)
	})
}

func TestBehaviorScore(t *testing.T) {
	t.Run("clean profile scores 1", func(t *testing.T) {
		bp := BehaviorProfile{}
		assert.True(t, BehaviorScore(bp).Equal(dec("1")))
	})

	t.Run("chasing and drawdown reduce the score", func(t *testing.T) {
		bp := BehaviorProfile{
			ChasingRatio: dec("0.1"),
			MaxDrawdown:  dec("0.2"),
		}
		// 1 - 0.1*2 - 0.2 = 0.6
		assert.True(t, BehaviorScore(bp).Equal(dec("0.6")), "got %s", BehaviorScore(bp))
	})

	t.Run("penalties are capped", func(t *testing.T) {
		bp := BehaviorProfile{
			ChasingRatio: dec("0.9"),
			MaxDrawdown:  dec("0.9"),
		}
		assert.True(t, BehaviorScore(bp).IsZero())
	})
}

func TestAnalyzeBehavior_Deterministic(t *testing.T) {
	trades := chrono(
		[2]string{"100", "-10"},
		[2]string{"120", "5"},
		[2]string{"100", "-8"},
		[2]string{"180", "20"},
		[2]string{"90", "3"},
	)

	a := AnalyzeBehavior(trades, DefaultParams())
	b := AnalyzeBehavior(trades, DefaultParams())

	require.Equal(t, a.ChasingCount, b.ChasingCount)
	assert.Equal(t, a.ChasingRatio.String(), b.ChasingRatio.String())
	assert.Equal(t, a.MaxDrawdown.String(), b.MaxDrawdown.String())
}
