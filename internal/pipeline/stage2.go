package pipeline

import (
	"github.com/mirrortrade/mirrorscan/internal/provider"
	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Stage 2 -- risk behavior analysis
// Martingale detection with an early-termination cost bound, plus the
// drawdown ceiling. Budget: tens of milliseconds.
// ---------------------------------------------------------------------------

type stage2 struct {
	params risk.Params
	window int
}

func newStage2(params risk.Params, tradeWindow int) *stage2 {
	return &stage2{params: params, window: tradeWindow}
}

// windowed returns the most recent trades up to the configured window size.
// The provider delivers most recent first.
func (s *stage2) windowed(trades []provider.Trade) []provider.Trade {
	if len(trades) > s.window {
		return trades[:s.window]
	}
	return trades
}

// evaluate runs the behavior scan and returns the profile plus the
// rejection reasons, if any. The chasing check fires both when the scan
// terminated early at the ratio limit and when the completed scan's ratio
// still exceeds it.
func (s *stage2) evaluate(trades []provider.Trade) (risk.BehaviorProfile, []string) {
	bp := risk.AnalyzeBehavior(trades, s.params)

	var reasons []string
	if bp.Terminated || bp.ChasingRatio.GreaterThan(s.params.ChasingRatioLimit) {
		reasons = append(reasons, ReasonLossChasing)
	}
	if bp.MaxDrawdown.GreaterThan(s.params.DrawdownCeiling) {
		reasons = append(reasons, ReasonExcessiveDrawdown)
	}

	return bp, reasons
}
