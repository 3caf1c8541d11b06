package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ---------------------------------------------------------------------------
// Upstream circuit breaker
// One breaker instance guards all data-provider calls for the pipeline. The
// state machine (CLOSED -> OPEN -> HALF_OPEN, single probe) comes from
// sony/gobreaker; this wrapper adds the error-rate trip policy, failure
// classification, and an OPEN-transition event for the notifier.
// ---------------------------------------------------------------------------

// Config tunes the breaker trip policy.
type Config struct {
	// ErrorRateThreshold opens the breaker when the window error rate
	// reaches this fraction (e.g. 0.10).
	ErrorRateThreshold float64

	// MinSamples is the minimum number of gated operations in the window
	// before the error rate is considered meaningful.
	MinSamples uint32

	// Window is how long counts accumulate while CLOSED before resetting.
	Window time.Duration

	// Cooldown is how long the breaker stays OPEN before admitting the
	// single HALF_OPEN probe.
	Cooldown time.Duration

	// IsSuccessful classifies an operation error: returning true means the
	// error is not a systemic failure and must not count against the
	// breaker. nil treats every non-nil error as a failure.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns the standard trip policy.
func DefaultConfig() Config {
	return Config{
		ErrorRateThreshold: 0.10,
		MinSamples:         100,
		Window:             60 * time.Second,
		Cooldown:           30 * time.Second,
	}
}

// CircuitOpenError is returned by Execute while the breaker is OPEN; the
// guarded function was not invoked.
type CircuitOpenError struct {
	CooldownUntil time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open until %s", e.CooldownUntil.UTC().Format(time.RFC3339))
}

// OpenEvent describes a CLOSED/HALF_OPEN -> OPEN transition.
type OpenEvent struct {
	ErrorRate     float64   `json:"error_rate"`
	WindowSize    uint32    `json:"window_size"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Snapshot is a point-in-time view of the breaker for monitoring.
type Snapshot struct {
	State         string    `json:"state"` // closed|open|half-open
	Requests      uint32    `json:"requests"`
	Failures      uint32    `json:"failures"`
	Successes     uint32    `json:"successes"`
	ErrorRate     float64   `json:"error_rate"`
	OpenedAt      time.Time `json:"opened_at,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// Breaker gates calls to the upstream data provider.
type Breaker struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker

	mu            sync.Mutex
	openedAt      time.Time
	cooldownUntil time.Time
	lastErrorRate float64
	lastWindow    uint32
	onOpen        func(OpenEvent)
}

// New creates a breaker with the given trip policy. onOpen, when non-nil, is
// invoked on every transition to OPEN (from the caller's goroutine that
// recorded the tripping failure).
func New(name string, cfg Config, onOpen func(OpenEvent)) *Breaker {
	b := &Breaker{cfg: cfg, onOpen: onOpen}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one HALF_OPEN probe
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinSamples {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(counts.Requests)
			if rate >= cfg.ErrorRateThreshold {
				b.mu.Lock()
				b.lastErrorRate = rate
				b.lastWindow = counts.Requests
				b.mu.Unlock()
				return true
			}
			return false
		},
		OnStateChange: b.onStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn through the breaker. While OPEN it returns a
// *CircuitOpenError without invoking fn. Every invocation outcome is
// recorded exactly once by the underlying state machine.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.mu.Lock()
		until := b.cooldownUntil
		b.mu.Unlock()
		return nil, &CircuitOpenError{CooldownUntil: until}
	}
	return out, err
}

// State returns a monitoring snapshot.
func (b *Breaker) State() Snapshot {
	counts := b.cb.Counts()

	snap := Snapshot{
		State:     b.cb.State().String(),
		Requests:  counts.Requests,
		Failures:  counts.TotalFailures,
		Successes: counts.TotalSuccesses,
	}
	if counts.Requests > 0 {
		snap.ErrorRate = float64(counts.TotalFailures) / float64(counts.Requests)
	}

	b.mu.Lock()
	snap.OpenedAt = b.openedAt
	snap.CooldownUntil = b.cooldownUntil
	b.mu.Unlock()

	return snap
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	now := time.Now().UTC()

	switch to {
	case gobreaker.StateOpen:
		b.mu.Lock()
		b.openedAt = now
		b.cooldownUntil = now.Add(b.cfg.Cooldown)
		event := OpenEvent{
			ErrorRate:     b.lastErrorRate,
			WindowSize:    b.lastWindow,
			CooldownUntil: b.cooldownUntil,
		}
		onOpen := b.onOpen
		b.mu.Unlock()

		log.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Float64("error_rate", event.ErrorRate).
			Uint32("window", event.WindowSize).
			Time("cooldown_until", event.CooldownUntil).
			Msg("breaker: OPENED")

		if onOpen != nil {
			onOpen(event)
		}

	case gobreaker.StateClosed:
		log.Info().Str("breaker", name).Str("from", from.String()).Msg("breaker: closed")

	case gobreaker.StateHalfOpen:
		log.Info().Str("breaker", name).Msg("breaker: half-open, admitting probe")
	}
}
