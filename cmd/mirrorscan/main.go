package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mirrortrade/mirrorscan/internal/config"
	"github.com/mirrortrade/mirrorscan/internal/health"
	"github.com/mirrortrade/mirrorscan/internal/notifier"
	"github.com/mirrortrade/mirrorscan/internal/pipeline"
	"github.com/mirrortrade/mirrorscan/internal/provider"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.yaml (defaults apply when empty)")
		walletsPath = flag.String("wallets", "", "file with one wallet address per line")
		jsonOut     = flag.Bool("json", false, "print scan results as JSON to stdout")
		listenAddr  = flag.String("listen", "", "serve /health on this address while scanning")
	)
	flag.Parse()

	// Load configuration before logger setup: the log level comes from it.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to load configuration")
	}

	setupLogging(cfg.General)

	log.Info().Msg("========================================")
	log.Info().Msg("MirrorScan Wallet Pipeline - Starting")
	log.Info().Msg("========================================")
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Int("concurrency", cfg.Framework.Concurrency).
		Float64("target_threshold", cfg.Framework.TargetThreshold).
		Msg("main: configuration loaded")

	addresses, err := loadAddresses(*walletsPath, flag.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to load wallet addresses")
	}
	if len(addresses) == 0 {
		log.Fatal().Msg("main: no wallet addresses given (use -wallets or args)")
	}

	// The upstream data provider plugs in here. The stub keeps the binary
	// runnable for dry runs and integration smoke tests.
	dp := provider.NewStubProvider()

	orch, err := pipeline.New(&cfg.Framework, dp, notifier.LogNotifier{})
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to build pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("main: shutdown signal received")
		cancel()
	}()

	if *listenAddr != "" {
		monitor := health.NewMonitor()
		orch.RegisterHealth(monitor)
		go func() {
			if err := monitor.Serve(ctx, *listenAddr); err != nil {
				log.Error().Err(err).Msg("main: health endpoint failed")
			}
		}()
	}

	started := time.Now()
	results, stats := orch.ScanBatch(ctx, addresses)

	log.Info().
		Str("batch_id", stats.BatchID).
		Int("total", stats.Total).
		Int("targets", stats.Targets).
		Int("watchlist", stats.Watchlist).
		Int("errors", stats.Errors).
		Int("skipped", stats.Skipped).
		Int("not_scanned", stats.NotScanned).
		Dur("elapsed", time.Since(started)).
		Int64("memory_peak_bytes", stats.MemoryPeak).
		Msg("main: batch complete")

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Error().Err(err).Msg("main: failed to encode results")
		}
	}

	log.Info().Msg("MirrorScan Wallet Pipeline - Shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogging(gen config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	level, err := zerolog.ParseLevel(gen.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if gen.LogFormat == "text" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	log.Logger = out.Level(level).With().
		Timestamp().
		Str("service", "mirrorscan").
		Logger()
}

// loadAddresses merges the wallets file (one address per line, # comments
// allowed) with any addresses given as plain arguments.
func loadAddresses(path string, args []string) ([]string, error) {
	var addresses []string

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			addresses = append(addresses, line)
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}

	addresses = append(addresses, args...)
	return addresses, nil
}
