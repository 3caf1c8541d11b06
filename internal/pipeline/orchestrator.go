package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mirrortrade/mirrorscan/internal/breaker"
	"github.com/mirrortrade/mirrorscan/internal/cache"
	"github.com/mirrortrade/mirrorscan/internal/config"
	"github.com/mirrortrade/mirrorscan/internal/health"
	"github.com/mirrortrade/mirrorscan/internal/notifier"
	"github.com/mirrortrade/mirrorscan/internal/provider"
	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// ---------------------------------------------------------------------------
// Pipeline orchestrator
// Drives a batch of candidate wallets through the three stages under a
// bounded worker pool. The caches and the circuit breaker are the only
// shared mutable state; both are internally synchronized and owned here,
// never by workers.
// ---------------------------------------------------------------------------

// Orchestrator owns the scan pipeline for one process.
type Orchestrator struct {
	fw     *config.RiskFrameworkConfig
	params risk.Params
	dp     provider.DataProvider
	brk    *breaker.Breaker
	notify notifier.Notifier

	respCache *cache.Cache[[]provider.Trade]
	analCache *cache.Cache[risk.BehaviorProfile]
	metaCache *cache.Cache[*provider.WalletMetadata]

	s1 *stage1
	s2 *stage2
	s3 *stage3
}

// New builds an orchestrator from a validated framework config. An invalid
// config fails construction with a *config.ConfigurationError; the pipeline
// never starts on one.
func New(fw *config.RiskFrameworkConfig, dp provider.DataProvider, notify notifier.Notifier) (*Orchestrator, error) {
	if err := fw.Validate(); err != nil {
		return nil, err
	}
	if notify == nil {
		notify = notifier.LogNotifier{}
	}

	params := fw.RiskParams()

	o := &Orchestrator{
		fw:     fw,
		params: params,
		dp:     dp,
		notify: notify,
		s1:     newStage1(fw),
		s2:     newStage2(params, fw.Stage2.TradeWindow),
		s3:     newStage3(params),
	}

	o.respCache = cache.New("response", fw.Caches.Response.MaxSize, fw.Caches.Response.TTL(), tradesBytes)
	o.analCache = cache.New("analysis", fw.Caches.Analysis.MaxSize, fw.Caches.Analysis.TTL(),
		func(risk.BehaviorProfile) int { return 96 })
	o.metaCache = cache.New("metadata", fw.Caches.Metadata.MaxSize, fw.Caches.Metadata.TTL(),
		func(*provider.WalletMetadata) int { return 64 })

	o.brk = breaker.New("wallet-data", breaker.Config{
		ErrorRateThreshold: fw.Breaker.ErrorRateThreshold,
		MinSamples:         uint32(fw.Breaker.MinSamples),
		Window:             time.Duration(fw.Breaker.WindowSeconds) * time.Second,
		Cooldown:           time.Duration(fw.Breaker.CooldownSeconds) * time.Second,
		IsSuccessful:       benignProviderError,
	}, func(ev breaker.OpenEvent) {
		notify.BreakerOpened(notifier.BreakerEvent{
			ErrorRate:     ev.ErrorRate,
			WindowSize:    ev.WindowSize,
			CooldownUntil: ev.CooldownUntil,
		})
	})

	return o, nil
}

// benignProviderError classifies provider errors for the breaker: bad
// wallets are not systemic failures, only transient upstream errors count.
func benignProviderError(err error) bool {
	if err == nil {
		return true
	}
	var ve *provider.ValidationError
	var nf *provider.NotFoundError
	return errors.As(err, &ve) || errors.As(err, &nf)
}

func tradesBytes(trades []provider.Trade) int {
	return len(trades) * 96
}

// ScanBatch runs every address through the pipeline under the configured
// concurrency limit. It always returns the full (possibly partial) result
// list plus statistics; per-wallet failures never escape. Result order is
// not guaranteed to match input order. A ctx deadline abandons wallets that
// have not started; in-flight wallets finish their current stage.
func (o *Orchestrator) ScanBatch(ctx context.Context, addresses []string) ([]WalletScanResult, *ScanStatistics) {
	batchID := uuid.New().String()
	collector := newStatsCollector(batchID, len(addresses))
	results := make([]WalletScanResult, 0, len(addresses))

	log.Info().
		Str("batch_id", batchID).
		Int("wallets", len(addresses)).
		Int("concurrency", o.fw.Concurrency).
		Msg("pipeline: batch started")

	var g errgroup.Group
	g.SetLimit(o.fw.Concurrency)

	var resMu sync.Mutex
	collect := func(out scanOutcome) {
		collector.record(out)
		collector.observeMemory(o.cacheFootprint())

		resMu.Lock()
		results = append(results, out.result)
		resMu.Unlock()

		if out.result.IsTarget() {
			o.notify.TargetFound(notifier.TargetEvent{
				Address:        out.result.Address,
				CompositeScore: out.result.CompositeScore,
				PillarScores:   out.result.PillarScores,
				Reasons:        out.result.RejectionReasons,
				At:             out.result.ScannedAt,
			})
		}
	}

	for _, addr := range addresses {
		addr := addr

		// Batch deadline: abandon anything not yet scheduled.
		if ctx.Err() != nil {
			collect(notScanned(addr))
			continue
		}

		g.Go(func() error {
			collect(o.scanWallet(ctx, addr))
			return nil
		})
	}

	g.Wait()
	stats := collector.finalize()

	log.Info().
		Str("batch_id", batchID).
		Int("targets", stats.Targets).
		Int("watchlist", stats.Watchlist).
		Int("stage1_rejected", stats.Stage1Rejected).
		Int("stage2_rejected", stats.Stage2Rejected).
		Int("stage3_rejected", stats.Stage3Rejected).
		Int("errors", stats.Errors).
		Int("skipped", stats.Skipped).
		Int("not_scanned", stats.NotScanned).
		Msg("pipeline: batch finished")

	return results, stats
}

// scanWallet runs one wallet through Stages 1..3. Every failure is caught
// here, at the worker boundary, and converted into a terminal result.
func (o *Orchestrator) scanWallet(ctx context.Context, address string) scanOutcome {
	if ctx.Err() != nil {
		return notScanned(address)
	}

	// Stage 1: basic validation
	s1Start := time.Now()

	if reason, ok := o.s1.checkAddress(address); !ok {
		out := rejectAt(address, 1, reason)
		out.durations[0] = time.Since(s1Start)
		return out
	}

	meta, errOut := o.fetchMetadata(ctx, address)
	if errOut != nil {
		errOut.durations[0] = time.Since(s1Start)
		return *errOut
	}

	if reason, ok := o.s1.checkMetadata(meta); !ok {
		out := rejectAt(address, 1, reason)
		out.durations[0] = time.Since(s1Start)
		return out
	}

	trades, errOut := o.fetchHistory(ctx, address)
	if errOut != nil {
		errOut.durations[0] = time.Since(s1Start)
		return *errOut
	}
	trades = o.s2.windowed(trades)

	bd := risk.BreakdownByCategory(trades)
	if reason, ok := o.s1.checkGeneralist(bd); !ok {
		out := rejectAt(address, 1, reason)
		out.durations[0] = time.Since(s1Start)
		return out
	}

	s1Dur := time.Since(s1Start)

	// Stage 2: risk behavior
	s2Start := time.Now()

	bp, ok := o.analCache.Get(address)
	var reasons []string
	if !ok {
		bp, reasons = o.s2.evaluate(trades)
		o.analCache.Set(address, bp)
	} else {
		reasons = o.rejectReasons(bp)
	}

	if len(reasons) > 0 {
		out := rejectAt(address, 2, reasons...)
		out.durations[0] = s1Dur
		out.durations[1] = time.Since(s2Start)
		return out
	}

	s2Dur := time.Since(s2Start)

	// Stage 3: full scoring
	s3Start := time.Now()

	v := o.s3.score(trades, bd, bp, o.s1.isViral(address))

	out := scanOutcome{
		result: WalletScanResult{
			Address:          address,
			Classification:   v.Classification,
			CompositeScore:   v.Composite,
			PillarScores:     v.Pillars,
			Confidence:       v.Confidence,
			RejectionReasons: v.Reasons,
			StageReached:     3,
			ScannedAt:        time.Now().UTC(),
		},
	}
	out.durations[0] = s1Dur
	out.durations[1] = s2Dur
	out.durations[2] = time.Since(s3Start)

	log.Debug().
		Str("address", address).
		Str("class", v.Classification.String()).
		Str("composite", v.Composite.String()).
		Msg("pipeline: wallet scored")

	return out
}

// rejectReasons re-applies the Stage 2 reject rules to a cached profile.
func (o *Orchestrator) rejectReasons(bp risk.BehaviorProfile) []string {
	var reasons []string
	if bp.Terminated || bp.ChasingRatio.GreaterThan(o.params.ChasingRatioLimit) {
		reasons = append(reasons, ReasonLossChasing)
	}
	if bp.MaxDrawdown.GreaterThan(o.params.DrawdownCeiling) {
		reasons = append(reasons, ReasonExcessiveDrawdown)
	}
	return reasons
}

// fetchMetadata reads through the metadata cache; misses go upstream
// through the circuit breaker.
func (o *Orchestrator) fetchMetadata(ctx context.Context, address string) (*provider.WalletMetadata, *scanOutcome) {
	if meta, ok := o.metaCache.Get(address); ok {
		return meta, nil
	}

	out, err := o.brk.Execute(func() (any, error) {
		return o.dp.Metadata(ctx, address)
	})
	if err != nil {
		fail := o.failureOutcome(address, 1, err)
		return nil, &fail
	}

	meta := out.(*provider.WalletMetadata)
	o.metaCache.Set(address, meta)
	return meta, nil
}

// fetchHistory reads through the response cache; misses go upstream through
// the circuit breaker.
func (o *Orchestrator) fetchHistory(ctx context.Context, address string) ([]provider.Trade, *scanOutcome) {
	if trades, ok := o.respCache.Get(address); ok {
		return trades, nil
	}

	out, err := o.brk.Execute(func() (any, error) {
		return o.dp.TradeHistory(ctx, address)
	})
	if err != nil {
		fail := o.failureOutcome(address, 1, err)
		return nil, &fail
	}

	trades := out.([]provider.Trade)
	o.respCache.Set(address, trades)
	return trades, nil
}

// failureOutcome maps a provider/breaker error onto a terminal result.
func (o *Orchestrator) failureOutcome(address string, stage int, err error) scanOutcome {
	var openErr *breaker.CircuitOpenError
	var ve *provider.ValidationError
	var nf *provider.NotFoundError

	switch {
	case errors.As(err, &openErr):
		out := rejectAt(address, stage, ReasonCircuitOpen)
		out.isSkipped = true
		return out
	case errors.As(err, &ve):
		return rejectAt(address, stage, ReasonInvalidData)
	case errors.As(err, &nf):
		return rejectAt(address, stage, ReasonWalletNotFound)
	default:
		log.Warn().Err(err).Str("address", address).Msg("pipeline: provider call failed")
		out := rejectAt(address, stage, ReasonProviderError)
		out.isError = true
		return out
	}
}

// cacheFootprint sums the approximate byte usage of the shared caches.
func (o *Orchestrator) cacheFootprint() int64 {
	return o.respCache.Stats().ApproxBytes +
		o.analCache.Stats().ApproxBytes +
		o.metaCache.Stats().ApproxBytes
}

// CacheStats exposes the three cache snapshots for external monitoring.
func (o *Orchestrator) CacheStats() []cache.Stats {
	return []cache.Stats{
		o.respCache.Stats(),
		o.analCache.Stats(),
		o.metaCache.Stats(),
	}
}

// BreakerState exposes the breaker snapshot for external monitoring.
func (o *Orchestrator) BreakerState() breaker.Snapshot {
	return o.brk.State()
}

// RegisterHealth wires the pipeline's shared components into the monitor.
func (o *Orchestrator) RegisterHealth(m *health.Monitor) {
	m.Register("breaker", func(context.Context) health.Component {
		snap := o.brk.State()
		c := health.Component{
			Status: health.StatusHealthy,
			Details: map[string]any{
				"state":      snap.State,
				"error_rate": snap.ErrorRate,
			},
		}
		if snap.State != "closed" {
			c.Status = health.StatusDegraded
			c.Message = "upstream circuit " + snap.State
			c.Details["cooldown_until"] = snap.CooldownUntil
		}
		return c
	})

	m.Register("caches", func(context.Context) health.Component {
		details := make(map[string]any, 3)
		for _, s := range o.CacheStats() {
			details[s.Name] = map[string]any{
				"size":         s.Size,
				"approx_bytes": s.ApproxBytes,
				"hits":         s.Hits,
				"misses":       s.Misses,
			}
		}
		return health.Component{Status: health.StatusHealthy, Details: details}
	})
}

// ClearCaches drops all cached upstream data and analysis results.
func (o *Orchestrator) ClearCaches() {
	o.respCache.Clear()
	o.analCache.Clear()
	o.metaCache.Clear()
}

// Params returns the immutable scoring parameters (useful for reporting).
func (o *Orchestrator) Params() risk.Params { return o.params }
