package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Wallet Data Provider contract
// The scan pipeline treats the upstream (indexer, RPC aggregator, whatever)
// as a black box behind this interface. Rate limiting, endpoint failover and
// retry/backoff all live on the provider side of the boundary.
// ---------------------------------------------------------------------------

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trade is a single closed trade from a wallet's history, most recent first.
type Trade struct {
	Timestamp   time.Time       `json:"timestamp"`
	Category    string          `json:"category"` // token/market category the trade belongs to
	Amount      decimal.Decimal `json:"amount"`   // position size in quote units
	Side        TradeSide       `json:"side"`
	PnL         decimal.Decimal `json:"pnl"`          // realized profit/loss in quote units
	HoldSeconds int64           `json:"hold_seconds"` // time the position was held
}

// Return is the trade's fractional return (pnl / amount).
// Zero-amount trades return a zero decimal.
func (t Trade) Return() decimal.Decimal {
	if t.Amount.IsZero() {
		return decimal.Zero
	}
	return t.PnL.Div(t.Amount)
}

// WalletMetadata is the cheap per-wallet summary used by early validation.
type WalletMetadata struct {
	Address    string `json:"address"`
	AgeDays    int    `json:"age_days"`
	TradeCount int    `json:"trade_count"`
}

// DataProvider fetches wallet data from upstream.
// Implementations must return errors from the taxonomy below so the caller
// can tell systemic failures from bad wallets.
type DataProvider interface {
	// TradeHistory returns the wallet's recent closed trades, most recent first.
	TradeHistory(ctx context.Context, address string) ([]Trade, error)

	// Metadata returns the wallet's age and trade count.
	Metadata(ctx context.Context, address string) (*WalletMetadata, error)
}

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// TransientDataError is a retryable upstream failure (network, rate limit).
// These are the only provider errors counted by the circuit breaker.
type TransientDataError struct {
	Op  string
	Err error
}

func (e *TransientDataError) Error() string {
	return fmt.Sprintf("transient data error in %s: %v", e.Op, e.Err)
}

func (e *TransientDataError) Unwrap() error { return e.Err }

// ValidationError means the wallet's data is malformed or insufficient.
// The wallet is excluded with a recorded reason; this is not a systemic
// failure and never trips the circuit breaker.
type ValidationError struct {
	Address string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid wallet data for %s: %s", e.Address, e.Reason)
}

// NotFoundError means the wallet does not exist upstream.
type NotFoundError struct {
	Address string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("wallet not found: %s", e.Address)
}
