package provider

import (
	"context"
	"sync"
)

// StubProvider is a deterministic DataProvider for tests and dry runs.
// Responses are pre-loaded per address; unknown addresses return NotFoundError.
// Errors can be injected to exercise the breaker and worker error paths.
type StubProvider struct {
	mu       sync.Mutex
	trades   map[string][]Trade
	metadata map[string]*WalletMetadata

	// failNext, when non-nil, is returned by the next calls until cleared.
	failNext error

	historyCalls  int
	metadataCalls int
}

// NewStubProvider creates an empty stub provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{
		trades:   make(map[string][]Trade),
		metadata: make(map[string]*WalletMetadata),
	}
}

// SetWallet pre-loads a wallet's metadata and trade history.
func (s *StubProvider) SetWallet(address string, meta WalletMetadata, trades []Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta.Address = address
	s.metadata[address] = &meta
	s.trades[address] = trades
}

// FailWith makes every subsequent call return err until cleared with nil.
func (s *StubProvider) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// TradeHistory returns the pre-loaded trade list for the address.
func (s *StubProvider) TradeHistory(_ context.Context, address string) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.historyCalls++
	if s.failNext != nil {
		return nil, s.failNext
	}

	trades, ok := s.trades[address]
	if !ok {
		return nil, &NotFoundError{Address: address}
	}
	out := make([]Trade, len(trades))
	copy(out, trades)
	return out, nil
}

// Metadata returns the pre-loaded metadata for the address.
func (s *StubProvider) Metadata(_ context.Context, address string) (*WalletMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadataCalls++
	if s.failNext != nil {
		return nil, s.failNext
	}

	meta, ok := s.metadata[address]
	if !ok {
		return nil, &NotFoundError{Address: address}
	}
	cp := *meta
	return &cp, nil
}

// HistoryCalls returns the total number of TradeHistory invocations.
func (s *StubProvider) HistoryCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyCalls
}

// MetadataCalls returns the total number of Metadata invocations.
func (s *StubProvider) MetadataCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataCalls
}
