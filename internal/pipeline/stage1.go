package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/config"
	"github.com/mirrortrade/mirrorscan/internal/provider"
	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Stage 1 -- basic validation
// Cheap, local checks that knock out the bulk of the candidate population
// before any expensive analysis. Budget: low tens of milliseconds.
// ---------------------------------------------------------------------------

type stage1 struct {
	cfg            config.Stage1Config
	dominanceFloor decimal.Decimal
	blacklist      map[string]struct{}
	viral          map[string]struct{}
}

func newStage1(fw *config.RiskFrameworkConfig) *stage1 {
	s := &stage1{
		cfg:            fw.Stage1,
		dominanceFloor: decimal.NewFromFloat(fw.Stage1.DominanceFloor),
		blacklist:      make(map[string]struct{}, len(fw.Blacklist)),
		viral:          make(map[string]struct{}, len(fw.ViralWallets)),
	}
	for _, addr := range fw.Blacklist {
		s.blacklist[addr] = struct{}{}
	}
	for _, addr := range fw.ViralWallets {
		s.viral[addr] = struct{}{}
	}
	return s
}

// base58Alphabet excludes 0, O, I and l.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Set = func() map[rune]struct{} {
	set := make(map[rune]struct{}, len(base58Alphabet))
	for _, r := range base58Alphabet {
		set[r] = struct{}{}
	}
	return set
}()

// validAddress checks the address is a plausible base58 wallet identifier.
func validAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	for _, r := range address {
		if _, ok := base58Set[r]; !ok {
			return false
		}
	}
	return true
}

// checkAddress runs the local-only checks: syntax and blacklist membership.
func (s *stage1) checkAddress(address string) (string, bool) {
	if !validAddress(address) {
		return ReasonInvalidAddress, false
	}
	if _, ok := s.blacklist[address]; ok {
		return ReasonBlacklisted, false
	}
	return "", true
}

// checkMetadata enforces the trade-count and wallet-age minimums.
func (s *stage1) checkMetadata(meta *provider.WalletMetadata) (string, bool) {
	if meta.TradeCount < s.cfg.MinTradeCount {
		return ReasonInsufficientHistory, false
	}
	if meta.AgeDays < s.cfg.MinAgeDays {
		return ReasonWalletTooNew, false
	}
	return "", true
}

// checkGeneralist rejects wallets that spray volume across many categories
// with no dominant one. Both conditions must hold: dominant share below the
// floor AND category count at or past the ceiling.
func (s *stage1) checkGeneralist(bd risk.CategoryBreakdown) (string, bool) {
	if bd.DominantShare.LessThan(s.dominanceFloor) && bd.Categories >= s.cfg.MaxCategories {
		return ReasonGeneralist, false
	}
	return "", true
}

// isViral reports whether the wallet is a known publicly-copied wallet.
// Viral wallets are not rejected here; they carry a scoring penalty at
// Stage 3.
func (s *stage1) isViral(address string) bool {
	_, ok := s.viral[address]
	return ok
}
