package notifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanNotifier_DeliversEvents(t *testing.T) {
	n := NewChanNotifier(4)

	n.TargetFound(TargetEvent{Address: "wallet-1", CompositeScore: decimal.NewFromFloat(0.8)})
	n.BreakerOpened(BreakerEvent{ErrorRate: 0.12, WindowSize: 100, CooldownUntil: time.Now()})

	select {
	case ev := <-n.Targets():
		assert.Equal(t, "wallet-1", ev.Address)
	default:
		t.Fatal("expected a target event")
	}

	select {
	case ev := <-n.Breakers():
		assert.Equal(t, uint32(100), ev.WindowSize)
	default:
		t.Fatal("expected a breaker event")
	}
}

func TestChanNotifier_DropsWhenFull(t *testing.T) {
	n := NewChanNotifier(1)

	n.TargetFound(TargetEvent{Address: "keep"})
	n.TargetFound(TargetEvent{Address: "dropped"}) // must not block

	ev := <-n.Targets()
	require.Equal(t, "keep", ev.Address)

	select {
	case ev := <-n.Targets():
		t.Fatalf("unexpected second event: %s", ev.Address)
	default:
	}
}
