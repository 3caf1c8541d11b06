package pipeline

import (
	"sync"
	"time"

	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Per-batch statistics
// Aggregation is commutative so worker completion order never matters.
// ---------------------------------------------------------------------------

// StageTiming aggregates observed latency for one pipeline stage.
type StageTiming struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// ScanStatistics summarizes one batch. Mutated only by the owning batch's
// workers; read-only once ScanBatch returns.
type ScanStatistics struct {
	BatchID        string         `json:"batch_id"`
	Total          int            `json:"total"`
	Stage1Rejected int            `json:"stage1_rejected"`
	Stage2Rejected int            `json:"stage2_rejected"`
	Stage3Rejected int            `json:"stage3_rejected"`
	Targets        int            `json:"targets"`
	Watchlist      int            `json:"watchlist"`
	Errors         int            `json:"errors"`
	Skipped        int            `json:"skipped"`     // circuit open
	NotScanned     int            `json:"not_scanned"` // abandoned at deadline
	StageTimings   [3]StageTiming `json:"stage_timings"`
	MemoryPeak     int64          `json:"memory_peak_bytes"` // peak cache footprint observed
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// statsCollector accumulates batch counters under a mutex while workers run.
type statsCollector struct {
	mu    sync.Mutex
	stats ScanStatistics

	totalMs [3]float64 // running latency sums per stage
}

func newStatsCollector(batchID string, total int) *statsCollector {
	return &statsCollector{
		stats: ScanStatistics{
			BatchID:   batchID,
			Total:     total,
			StartedAt: time.Now().UTC(),
		},
	}
}

// record folds one worker outcome into the counters.
func (c *statsCollector) record(out scanOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := out.result

	switch {
	case out.notScanned:
		c.stats.NotScanned++
	case out.isSkipped:
		c.stats.Skipped++
	case out.isError:
		c.stats.Errors++
	case res.Classification == risk.ClassTarget:
		c.stats.Targets++
	case res.Classification == risk.ClassWatchlist:
		c.stats.Watchlist++
	default:
		switch res.StageReached {
		case 1:
			c.stats.Stage1Rejected++
		case 2:
			c.stats.Stage2Rejected++
		case 3:
			c.stats.Stage3Rejected++
		}
	}

	for i, d := range out.durations {
		if d <= 0 {
			continue
		}
		ms := float64(d.Microseconds()) / 1000.0
		t := &c.stats.StageTimings[i]
		t.Count++
		c.totalMs[i] += ms
		if ms > t.MaxMs {
			t.MaxMs = ms
		}
	}
}

// observeMemory tracks the peak cache footprint seen during the batch.
func (c *statsCollector) observeMemory(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes > c.stats.MemoryPeak {
		c.stats.MemoryPeak = bytes
	}
}

// finalize computes the derived aggregates and returns the sealed stats.
func (c *statsCollector) finalize() *ScanStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.stats.StageTimings {
		t := &c.stats.StageTimings[i]
		if t.Count > 0 {
			t.MeanMs = c.totalMs[i] / float64(t.Count)
		}
	}
	c.stats.FinishedAt = time.Now().UTC()

	out := c.stats
	return &out
}
