package notifier

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Notification surface
// The pipeline emits events here; delivery (chat bot, webhook, plain logs)
// is the embedding application's concern.
// ---------------------------------------------------------------------------

// TargetEvent is emitted for every wallet classified TARGET.
type TargetEvent struct {
	Address        string            `json:"address"`
	CompositeScore decimal.Decimal   `json:"composite_score"`
	PillarScores   risk.PillarScores `json:"pillar_scores"`
	Reasons        []string          `json:"reasons,omitempty"`
	At             time.Time         `json:"at"`
}

// BreakerEvent is emitted when the upstream circuit breaker opens.
type BreakerEvent struct {
	ErrorRate     float64   `json:"error_rate"`
	WindowSize    uint32    `json:"window_size"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Notifier receives pipeline events. Implementations must not block.
type Notifier interface {
	TargetFound(ev TargetEvent)
	BreakerOpened(ev BreakerEvent)
}

// LogNotifier writes events to the structured log. Default sink.
type LogNotifier struct{}

func (LogNotifier) TargetFound(ev TargetEvent) {
	log.Info().
		Str("address", ev.Address).
		Str("composite", ev.CompositeScore.String()).
		Str("specialization", ev.PillarScores.Specialization.String()).
		Str("behavior", ev.PillarScores.Behavior.String()).
		Str("structure", ev.PillarScores.Structure.String()).
		Msg("notifier: TARGET wallet found")
}

func (LogNotifier) BreakerOpened(ev BreakerEvent) {
	log.Warn().
		Float64("error_rate", ev.ErrorRate).
		Uint32("window", ev.WindowSize).
		Time("cooldown_until", ev.CooldownUntil).
		Msg("notifier: upstream circuit opened")
}

// ChanNotifier forwards events on channels for embedding applications.
// Sends never block: when a channel is full the event is dropped and logged.
type ChanNotifier struct {
	targets  chan TargetEvent
	breakers chan BreakerEvent
}

// NewChanNotifier creates a ChanNotifier with the given buffer size.
func NewChanNotifier(buffer int) *ChanNotifier {
	return &ChanNotifier{
		targets:  make(chan TargetEvent, buffer),
		breakers: make(chan BreakerEvent, buffer),
	}
}

// Targets returns the read-only TARGET event channel.
func (n *ChanNotifier) Targets() <-chan TargetEvent { return n.targets }

// Breakers returns the read-only breaker event channel.
func (n *ChanNotifier) Breakers() <-chan BreakerEvent { return n.breakers }

func (n *ChanNotifier) TargetFound(ev TargetEvent) {
	select {
	case n.targets <- ev:
	default:
		log.Warn().Str("address", ev.Address).Msg("notifier: target channel full, dropping event")
	}
}

func (n *ChanNotifier) BreakerOpened(ev BreakerEvent) {
	select {
	case n.breakers <- ev:
	default:
		log.Warn().Msg("notifier: breaker channel full, dropping event")
	}
}
