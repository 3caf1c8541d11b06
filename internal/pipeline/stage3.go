package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/provider"
	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Stage 3 -- full PILLAR scoring
// ---------------------------------------------------------------------------

type stage3 struct {
	params risk.Params
}

func newStage3(params risk.Params) *stage3 {
	return &stage3{params: params}
}

// verdict is the fully-scored outcome for a wallet that reached Stage 3.
type verdict struct {
	Pillars        risk.PillarScores
	Composite      decimal.Decimal
	Classification risk.Classification
	Confidence     decimal.Decimal
	Reasons        []string
}

// score runs the full framework over the trade window. The market-maker
// check runs first as an unconditional hard reject; the viral penalty
// applies only to wallets that survive it.
func (s *stage3) score(trades []provider.Trade, bd risk.CategoryBreakdown, bp risk.BehaviorProfile, viral bool) verdict {
	sp := risk.AnalyzeStructure(trades)

	v := verdict{
		Pillars: risk.PillarScores{
			Specialization: risk.SpecializationScore(bd, s.params),
			Behavior:       risk.BehaviorScore(bp),
			Structure:      risk.StructureScore(sp, s.params),
		},
		Confidence: risk.Confidence(len(trades)),
	}
	v.Composite = risk.Composite(v.Pillars, s.params.Weights)

	if risk.IsMarketMaker(sp, s.params) {
		v.Classification = risk.ClassReject
		v.Reasons = append(v.Reasons, ReasonMarketMaker)
		return v
	}

	if viral {
		v.Composite = risk.ApplyViralPenalty(v.Composite, s.params)
		v.Reasons = append(v.Reasons, ReasonViralPenalty)
	}

	v.Classification = risk.Classify(v.Composite, s.params)
	if v.Classification == risk.ClassReject {
		v.Reasons = append(v.Reasons, ReasonBelowWatchlist)
	}

	return v
}
