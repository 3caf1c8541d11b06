package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Scan results
// ---------------------------------------------------------------------------

// Rejection reason tags. Every finalized result carries the ordered list of
// tags that ended its scan.
const (
	ReasonInvalidAddress      = "invalid_address"
	ReasonBlacklisted         = "blacklisted"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonWalletTooNew        = "wallet_too_new"
	ReasonGeneralist          = "generalist"
	ReasonLossChasing         = "loss_chasing"
	ReasonExcessiveDrawdown   = "excessive_drawdown"
	ReasonMarketMaker         = "market_maker_pattern"
	ReasonBelowWatchlist      = "below_watchlist_threshold"
	ReasonViralPenalty        = "viral_penalty_applied"
	ReasonCircuitOpen         = "skipped_circuit_open"
	ReasonNotScanned          = "not_scanned"
	ReasonWalletNotFound      = "wallet_not_found"
	ReasonInvalidData         = "invalid_wallet_data"
	ReasonProviderError       = "provider_error"
)

// WalletScanResult is the immutable outcome of scanning one wallet. Created
// exactly once per wallet per batch.
type WalletScanResult struct {
	Address          string              `json:"address"`
	Classification   risk.Classification `json:"classification"`
	CompositeScore   decimal.Decimal     `json:"composite_score"`
	PillarScores     risk.PillarScores   `json:"pillar_scores"`
	Confidence       decimal.Decimal     `json:"confidence"`
	RejectionReasons []string            `json:"rejection_reasons,omitempty"`
	StageReached     int                 `json:"stage_reached"` // 0 = never scanned
	ScannedAt        time.Time           `json:"scanned_at"`    // always UTC
}

// IsTarget reports whether the wallet was classified for mirroring.
func (r WalletScanResult) IsTarget() bool {
	return r.Classification == risk.ClassTarget
}

// scanOutcome wraps a result with the bookkeeping the batch aggregator
// needs; it never leaves the package.
type scanOutcome struct {
	result     WalletScanResult
	durations  [3]time.Duration // per-stage wall time, zero when not reached
	isError    bool             // provider/internal failure
	isSkipped  bool             // circuit open
	notScanned bool             // abandoned by the batch deadline
}

func rejectAt(address string, stage int, reasons ...string) scanOutcome {
	return scanOutcome{
		result: WalletScanResult{
			Address:          address,
			Classification:   risk.ClassReject,
			RejectionReasons: reasons,
			StageReached:     stage,
			ScannedAt:        time.Now().UTC(),
		},
	}
}

func notScanned(address string) scanOutcome {
	out := rejectAt(address, 0, ReasonNotScanned)
	out.notScanned = true
	return out
}
