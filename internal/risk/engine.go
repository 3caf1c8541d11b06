package risk

import (
	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/provider"
)

// ---------------------------------------------------------------------------
// PILLAR scoring engine
// Specialization 35% + Risk Behavior 40% + Market Structure 25%
// Pure functions over trade records: no I/O, no clocks, no hidden state.
// All arithmetic is exact decimal with a fixed rounding rule so identical
// inputs reproduce identical scores bit-for-bit.
// ---------------------------------------------------------------------------

// scorePlaces is the fixed precision of every emitted score. Rounding is
// half-up (away from zero; scores are never negative).
const scorePlaces = 8

// Classification is the terminal verdict for a scanned wallet.
type Classification string

const (
	ClassTarget    Classification = "TARGET"
	ClassWatchlist Classification = "WATCHLIST"
	ClassReject    Classification = "REJECT"
)

func (c Classification) String() string { return string(c) }

// PillarScores holds the three weighted sub-scores, each in [0, 1].
type PillarScores struct {
	Specialization decimal.Decimal `json:"specialization"`
	Behavior       decimal.Decimal `json:"behavior"`
	Structure      decimal.Decimal `json:"structure"`
}

// Weights are the pillar weights; they must sum to 1.
type Weights struct {
	Specialization decimal.Decimal
	Behavior       decimal.Decimal
	Structure      decimal.Decimal
}

// Sum returns the exact weight total.
func (w Weights) Sum() decimal.Decimal {
	return w.Specialization.Add(w.Behavior).Add(w.Structure)
}

// DefaultWeights returns the standard pillar weighting.
func DefaultWeights() Weights {
	return Weights{
		Specialization: decimal.NewFromFloat(0.35),
		Behavior:       decimal.NewFromFloat(0.40),
		Structure:      decimal.NewFromFloat(0.25),
	}
}

// Params bundles every scoring constant. Built once from the validated
// framework config; immutable thereafter.
type Params struct {
	Weights            Weights
	TargetThreshold    decimal.Decimal
	WatchlistThreshold decimal.Decimal
	ViralPenalty       decimal.Decimal

	// Market-maker detection bounds.
	MMMaxHoldSeconds    decimal.Decimal
	MMWinRateLo         decimal.Decimal
	MMWinRateHi         decimal.Decimal
	MMMaxProfitPerTrade decimal.Decimal

	// Specialization scoring.
	CategoryPenaltyThreshold int
	CategoryPenaltyStep      decimal.Decimal

	// Behavior analysis.
	ChaseSizeMultiplier decimal.Decimal
	ChasingRatioLimit   decimal.Decimal
	DrawdownCeiling     decimal.Decimal
}

// DefaultParams returns the standard framework constants.
func DefaultParams() Params {
	return Params{
		Weights:                  DefaultWeights(),
		TargetThreshold:          decimal.NewFromFloat(0.70),
		WatchlistThreshold:       decimal.NewFromFloat(0.55),
		ViralPenalty:             decimal.NewFromFloat(0.30),
		MMMaxHoldSeconds:         decimal.NewFromInt(14400), // 4 hours
		MMWinRateLo:              decimal.NewFromFloat(0.48),
		MMWinRateHi:              decimal.NewFromFloat(0.52),
		MMMaxProfitPerTrade:      decimal.NewFromFloat(0.02),
		CategoryPenaltyThreshold: 3,
		CategoryPenaltyStep:      decimal.NewFromFloat(0.05),
		ChaseSizeMultiplier:      decimal.NewFromFloat(1.5),
		ChasingRatioLimit:        decimal.NewFromFloat(0.20),
		DrawdownCeiling:          decimal.NewFromFloat(0.35),
	}
}

// ---------------------------------------------------------------------------
// Category breakdown (drives Specialization and the generalist check)
// ---------------------------------------------------------------------------

// CategoryBreakdown summarizes traded volume per category.
type CategoryBreakdown struct {
	Volumes       map[string]decimal.Decimal
	Total         decimal.Decimal
	Dominant      string
	DominantShare decimal.Decimal
	Categories    int
}

// BreakdownByCategory aggregates absolute traded volume per category.
func BreakdownByCategory(trades []provider.Trade) CategoryBreakdown {
	bd := CategoryBreakdown{Volumes: make(map[string]decimal.Decimal)}

	for _, tr := range trades {
		vol := tr.Amount.Abs()
		bd.Volumes[tr.Category] = bd.Volumes[tr.Category].Add(vol)
		bd.Total = bd.Total.Add(vol)
	}
	bd.Categories = len(bd.Volumes)

	var dominantVol decimal.Decimal
	for cat, vol := range bd.Volumes {
		if bd.Dominant == "" || vol.GreaterThan(dominantVol) ||
			(vol.Equal(dominantVol) && cat < bd.Dominant) {
			dominantVol = vol
			bd.Dominant = cat
		}
	}
	if bd.Total.IsPositive() {
		bd.DominantShare = dominantVol.Div(bd.Total).Round(scorePlaces)
	}

	return bd
}

// SpecializationScore scores how concentrated the wallet's volume is in its
// dominant category, with a penalty as the category count grows past the
// threshold.
func SpecializationScore(bd CategoryBreakdown, p Params) decimal.Decimal {
	score := bd.DominantShare
	if extra := bd.Categories - p.CategoryPenaltyThreshold; extra > 0 {
		score = score.Sub(p.CategoryPenaltyStep.Mul(decimal.NewFromInt(int64(extra))))
	}
	return clamp01(score).Round(scorePlaces)
}

// ---------------------------------------------------------------------------
// Market structure
// ---------------------------------------------------------------------------

// StructureProfile captures the trade-shape statistics behind the market
// structure pillar.
type StructureProfile struct {
	AvgHoldSeconds decimal.Decimal `json:"avg_hold_seconds"`
	WinRate        decimal.Decimal `json:"win_rate"`
	ProfitPerTrade decimal.Decimal `json:"profit_per_trade"` // mean fractional return
	TradeCount     int             `json:"trade_count"`
}

// AnalyzeStructure computes hold-time, win-rate and per-trade profit stats.
func AnalyzeStructure(trades []provider.Trade) StructureProfile {
	sp := StructureProfile{TradeCount: len(trades)}
	if len(trades) == 0 {
		return sp
	}

	var holdSum, returnSum decimal.Decimal
	wins := 0
	for _, tr := range trades {
		holdSum = holdSum.Add(decimal.NewFromInt(tr.HoldSeconds))
		returnSum = returnSum.Add(tr.Return())
		if tr.PnL.IsPositive() {
			wins++
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	sp.AvgHoldSeconds = holdSum.Div(n).Round(scorePlaces)
	sp.WinRate = decimal.NewFromInt(int64(wins)).Div(n).Round(scorePlaces)
	sp.ProfitPerTrade = returnSum.Div(n).Round(scorePlaces)
	return sp
}

// IsMarketMaker reports whether the wallet matches the spread-capture
// pattern: short holds, near-coinflip win rate and negligible per-trade
// profit, all at once. A match is a hard REJECT that overrides every score.
func IsMarketMaker(sp StructureProfile, p Params) bool {
	if sp.TradeCount == 0 {
		return false
	}
	return sp.AvgHoldSeconds.LessThan(p.MMMaxHoldSeconds) &&
		sp.WinRate.GreaterThanOrEqual(p.MMWinRateLo) &&
		sp.WinRate.LessThanOrEqual(p.MMWinRateHi) &&
		sp.ProfitPerTrade.LessThan(p.MMMaxProfitPerTrade)
}

// StructureScore scores the market structure pillar. Each market-maker
// condition the wallet meets costs a quarter of the score; a wallet meeting
// all three never gets here (hard reject).
func StructureScore(sp StructureProfile, p Params) decimal.Decimal {
	if sp.TradeCount == 0 {
		return decimal.NewFromFloat(0.5) // neutral without data
	}

	score := decimal.NewFromInt(1)
	quarter := decimal.NewFromFloat(0.25)

	if sp.AvgHoldSeconds.LessThan(p.MMMaxHoldSeconds) {
		score = score.Sub(quarter)
	}
	if sp.WinRate.GreaterThanOrEqual(p.MMWinRateLo) && sp.WinRate.LessThanOrEqual(p.MMWinRateHi) {
		score = score.Sub(quarter)
	}
	if sp.ProfitPerTrade.LessThan(p.MMMaxProfitPerTrade) {
		score = score.Sub(quarter)
	}
	return clamp01(score).Round(scorePlaces)
}

// ---------------------------------------------------------------------------
// Composite + classification
// ---------------------------------------------------------------------------

// Composite returns the exact weighted sum of the pillar scores.
func Composite(pillars PillarScores, w Weights) decimal.Decimal {
	return pillars.Specialization.Mul(w.Specialization).
		Add(pillars.Behavior.Mul(w.Behavior)).
		Add(pillars.Structure.Mul(w.Structure)).
		Round(scorePlaces)
}

// ApplyViralPenalty subtracts the fixed penalty for known viral wallets,
// clamped at zero. Applied only to wallets that survived the market-maker
// check.
func ApplyViralPenalty(composite decimal.Decimal, p Params) decimal.Decimal {
	return clamp01(composite.Sub(p.ViralPenalty)).Round(scorePlaces)
}

// Classify maps a composite score onto a classification. Monotonic: a
// higher composite never yields a lower class.
func Classify(composite decimal.Decimal, p Params) Classification {
	switch {
	case composite.GreaterThanOrEqual(p.TargetThreshold):
		return ClassTarget
	case composite.GreaterThanOrEqual(p.WatchlistThreshold):
		return ClassWatchlist
	default:
		return ClassReject
	}
}

// Confidence estimates how much evidence backs a score from the available
// trade depth. 200 trades or more is full confidence.
func Confidence(tradeCount int) decimal.Decimal {
	if tradeCount <= 0 {
		return decimal.Zero
	}
	c := decimal.NewFromInt(int64(tradeCount)).Div(decimal.NewFromInt(200))
	return clamp01(c).Round(scorePlaces)
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.GreaterThan(one) {
		return one
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
