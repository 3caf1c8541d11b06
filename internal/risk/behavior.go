package risk

import (
	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/provider"
)

// ---------------------------------------------------------------------------
// Risk behavior analysis
// Detects loss-chasing (martingale sizing after a loss) and excessive
// drawdown over the recent trade window.
// ---------------------------------------------------------------------------

// BehaviorProfile is the output of the Stage 2 behavior scan.
type BehaviorProfile struct {
	ChasingCount int             `json:"chasing_count"`
	CleanCount   int             `json:"clean_count"`
	ChasingRatio decimal.Decimal `json:"chasing_ratio"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"` // peak-to-trough fraction of equity
	Terminated   bool            `json:"terminated"`   // chasing scan stopped early at the ratio limit
	TradesSeen   int             `json:"trades_seen"`
}

// AnalyzeBehavior scans the trade window (most recent first) for martingale
// sizing and computes the maximum drawdown.
//
// The chasing scan walks consecutive pairs in chronological order: whenever
// a trade closed at a loss, the next trade's size is compared against
// ChaseSizeMultiplier times the losing trade's size; bigger increments the
// chasing counter, otherwise the clean counter. The scan terminates early
// once chasing > (clean+1) * ChasingRatioLimit -- the +1 keeps a single
// early chase from tripping the limit before any clean pair has been seen.
// Early termination bounds the worst-case scan cost, not just average cost.
func AnalyzeBehavior(trades []provider.Trade, p Params) BehaviorProfile {
	bp := BehaviorProfile{TradesSeen: len(trades)}

	// Chronological order: the provider returns most recent first.
	for i := len(trades) - 1; i >= 1; i-- {
		prev := trades[i]
		next := trades[i-1]

		if !prev.PnL.IsNegative() {
			continue
		}

		threshold := prev.Amount.Abs().Mul(p.ChaseSizeMultiplier)
		if next.Amount.Abs().GreaterThan(threshold) {
			bp.ChasingCount++
		} else {
			bp.CleanCount++
		}

		limit := decimal.NewFromInt(int64(bp.CleanCount + 1)).Mul(p.ChasingRatioLimit)
		if decimal.NewFromInt(int64(bp.ChasingCount)).GreaterThan(limit) {
			bp.Terminated = true
			break
		}
	}

	if total := bp.ChasingCount + bp.CleanCount; total > 0 {
		bp.ChasingRatio = decimal.NewFromInt(int64(bp.ChasingCount)).
			Div(decimal.NewFromInt(int64(total))).
			Round(scorePlaces)
	}

	bp.MaxDrawdown = maxDrawdown(trades)
	return bp
}

// maxDrawdown computes the maximum peak-to-trough equity decline over the
// window as a fraction of the peak. Equity compounds multiplicatively from 1
// using each trade's fractional return, oldest first.
func maxDrawdown(trades []provider.Trade) decimal.Decimal {
	equity := decimal.NewFromInt(1)
	peak := equity
	maxDD := decimal.Zero
	one := decimal.NewFromInt(1)

	for i := len(trades) - 1; i >= 0; i-- {
		equity = equity.Mul(one.Add(trades[i].Return()))
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			dd := peak.Sub(equity).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}

	return clamp01(maxDD).Round(scorePlaces)
}

// BehaviorScore maps a behavior profile onto the [0, 1] pillar score. A
// clean profile scores 1; chasing and drawdown each eat up to half the
// score.
func BehaviorScore(bp BehaviorProfile) decimal.Decimal {
	half := decimal.NewFromFloat(0.5)

	chasePenalty := bp.ChasingRatio.Mul(decimal.NewFromInt(2))
	if chasePenalty.GreaterThan(half) {
		chasePenalty = half
	}

	ddPenalty := bp.MaxDrawdown
	if ddPenalty.GreaterThan(half) {
		ddPenalty = half
	}

	score := decimal.NewFromInt(1).Sub(chasePenalty).Sub(ddPenalty)
	return clamp01(score).Round(scorePlaces)
}
