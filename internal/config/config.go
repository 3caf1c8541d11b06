package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mirrortrade/mirrorscan/internal/risk"
)

// Config is the root configuration structure for mirrorscan.
type Config struct {
	General   GeneralConfig       `yaml:"general"`
	Framework RiskFrameworkConfig `yaml:"framework"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
}

// RiskFrameworkConfig holds every tunable of the scan pipeline. It is
// validated once at startup and immutable for the life of the orchestrator.
type RiskFrameworkConfig struct {
	Weights            WeightsConfig     `yaml:"weights"`
	TargetThreshold    float64           `yaml:"target_threshold"`
	WatchlistThreshold float64           `yaml:"watchlist_threshold"`
	ViralPenalty       float64           `yaml:"viral_penalty"`
	MarketMaker        MarketMakerConfig `yaml:"market_maker"`
	Stage1             Stage1Config      `yaml:"stage1"`
	Stage2             Stage2Config      `yaml:"stage2"`
	Caches             CachesConfig      `yaml:"caches"`
	Concurrency        int               `yaml:"concurrency"`
	Breaker            BreakerConfig     `yaml:"breaker"`

	// ViralWallets are penalized at scoring time; Blacklist rejects outright.
	ViralWallets []string `yaml:"viral_wallets"`
	Blacklist    []string `yaml:"blacklist"`
}

// WeightsConfig are the pillar weights; they must sum to 1.
type WeightsConfig struct {
	Specialization float64 `yaml:"specialization"`
	Behavior       float64 `yaml:"behavior"`
	Structure      float64 `yaml:"structure"`
}

type MarketMakerConfig struct {
	MaxHoldSeconds    int     `yaml:"max_hold_seconds"`
	WinRateLo         float64 `yaml:"win_rate_lo"`
	WinRateHi         float64 `yaml:"win_rate_hi"`
	MaxProfitPerTrade float64 `yaml:"max_profit_per_trade"`
}

type Stage1Config struct {
	MinTradeCount  int     `yaml:"min_trade_count"`
	MinAgeDays     int     `yaml:"min_age_days"`
	DominanceFloor float64 `yaml:"dominance_floor"`
	MaxCategories  int     `yaml:"max_categories"`
}

type Stage2Config struct {
	ChaseSizeMultiplier float64 `yaml:"chase_size_multiplier"`
	ChasingRatioLimit   float64 `yaml:"chasing_ratio_limit"`
	DrawdownCeiling     float64 `yaml:"drawdown_ceiling"`
	TradeWindow         int     `yaml:"trade_window"`
}

type CachesConfig struct {
	Response CacheConfig `yaml:"response"`
	Analysis CacheConfig `yaml:"analysis"`
	Metadata CacheConfig `yaml:"metadata"`
}

type CacheConfig struct {
	MaxSize    int `yaml:"max_size"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the configured TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type BreakerConfig struct {
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
	MinSamples         int     `yaml:"min_samples"`
	WindowSeconds      int     `yaml:"window_seconds"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
}

// ConfigurationError reports an invalid framework configuration. The
// pipeline never starts on one of these.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Load reads and parses a YAML configuration file, expands environment
// variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Framework.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a fully-populated, valid configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "mirrorscan-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	fw := &cfg.Framework
	if fw.Weights == (WeightsConfig{}) {
		fw.Weights = WeightsConfig{Specialization: 0.35, Behavior: 0.40, Structure: 0.25}
	}
	if fw.TargetThreshold == 0 {
		fw.TargetThreshold = 0.70
	}
	if fw.WatchlistThreshold == 0 {
		fw.WatchlistThreshold = 0.55
	}
	if fw.ViralPenalty == 0 {
		fw.ViralPenalty = 0.30
	}
	if fw.MarketMaker.MaxHoldSeconds == 0 {
		fw.MarketMaker.MaxHoldSeconds = 14400
	}
	if fw.MarketMaker.WinRateLo == 0 {
		fw.MarketMaker.WinRateLo = 0.48
	}
	if fw.MarketMaker.WinRateHi == 0 {
		fw.MarketMaker.WinRateHi = 0.52
	}
	if fw.MarketMaker.MaxProfitPerTrade == 0 {
		fw.MarketMaker.MaxProfitPerTrade = 0.02
	}
	if fw.Stage1.MinTradeCount == 0 {
		fw.Stage1.MinTradeCount = 50
	}
	if fw.Stage1.MinAgeDays == 0 {
		fw.Stage1.MinAgeDays = 30
	}
	if fw.Stage1.DominanceFloor == 0 {
		fw.Stage1.DominanceFloor = 0.50
	}
	if fw.Stage1.MaxCategories == 0 {
		fw.Stage1.MaxCategories = 5
	}
	if fw.Stage2.ChaseSizeMultiplier == 0 {
		fw.Stage2.ChaseSizeMultiplier = 1.5
	}
	if fw.Stage2.ChasingRatioLimit == 0 {
		fw.Stage2.ChasingRatioLimit = 0.20
	}
	if fw.Stage2.DrawdownCeiling == 0 {
		fw.Stage2.DrawdownCeiling = 0.35
	}
	if fw.Stage2.TradeWindow == 0 {
		fw.Stage2.TradeWindow = 100
	}
	if fw.Caches.Response.MaxSize == 0 {
		fw.Caches.Response = CacheConfig{MaxSize: 1000, TTLSeconds: 300}
	}
	if fw.Caches.Analysis.MaxSize == 0 {
		fw.Caches.Analysis = CacheConfig{MaxSize: 2000, TTLSeconds: 3600}
	}
	if fw.Caches.Metadata.MaxSize == 0 {
		fw.Caches.Metadata = CacheConfig{MaxSize: 500, TTLSeconds: 1800}
	}
	if fw.Concurrency == 0 {
		fw.Concurrency = 25
	}
	if fw.Breaker.ErrorRateThreshold == 0 {
		fw.Breaker.ErrorRateThreshold = 0.10
	}
	if fw.Breaker.MinSamples == 0 {
		fw.Breaker.MinSamples = 100
	}
	if fw.Breaker.WindowSeconds == 0 {
		fw.Breaker.WindowSeconds = 60
	}
	if fw.Breaker.CooldownSeconds == 0 {
		fw.Breaker.CooldownSeconds = 30
	}
}

// weightEpsilon is the tolerance on the pillar weight sum.
const weightEpsilon = 1e-9

// Validate rejects any invalid framework value. Fail fast: a bad config
// never reaches the pipeline.
func (fw *RiskFrameworkConfig) Validate() error {
	sum := fw.Weights.Specialization + fw.Weights.Behavior + fw.Weights.Structure
	if math.Abs(sum-1.0) > weightEpsilon {
		return &ConfigurationError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0, got %g", sum)}
	}
	for name, w := range map[string]float64{
		"weights.specialization": fw.Weights.Specialization,
		"weights.behavior":       fw.Weights.Behavior,
		"weights.structure":      fw.Weights.Structure,
	} {
		if w < 0 || w > 1 {
			return &ConfigurationError{Field: name, Reason: "must be in [0, 1]"}
		}
	}

	if fw.TargetThreshold <= 0 || fw.TargetThreshold > 1 {
		return &ConfigurationError{Field: "target_threshold", Reason: "must be in (0, 1]"}
	}
	if fw.WatchlistThreshold <= 0 || fw.WatchlistThreshold > 1 {
		return &ConfigurationError{Field: "watchlist_threshold", Reason: "must be in (0, 1]"}
	}
	if fw.TargetThreshold < fw.WatchlistThreshold {
		return &ConfigurationError{Field: "target_threshold", Reason: "must be >= watchlist_threshold"}
	}
	if fw.ViralPenalty < 0 || fw.ViralPenalty > 1 {
		return &ConfigurationError{Field: "viral_penalty", Reason: "must be in [0, 1]"}
	}

	mm := fw.MarketMaker
	if mm.MaxHoldSeconds <= 0 {
		return &ConfigurationError{Field: "market_maker.max_hold_seconds", Reason: "must be positive"}
	}
	if mm.WinRateLo < 0 || mm.WinRateHi > 1 || mm.WinRateLo > mm.WinRateHi {
		return &ConfigurationError{Field: "market_maker.win_rate", Reason: "band must satisfy 0 <= lo <= hi <= 1"}
	}
	if mm.MaxProfitPerTrade <= 0 {
		return &ConfigurationError{Field: "market_maker.max_profit_per_trade", Reason: "must be positive"}
	}

	if fw.Stage1.MinTradeCount <= 0 {
		return &ConfigurationError{Field: "stage1.min_trade_count", Reason: "must be positive"}
	}
	if fw.Stage1.MinAgeDays <= 0 {
		return &ConfigurationError{Field: "stage1.min_age_days", Reason: "must be positive"}
	}
	if fw.Stage1.DominanceFloor <= 0 || fw.Stage1.DominanceFloor > 1 {
		return &ConfigurationError{Field: "stage1.dominance_floor", Reason: "must be in (0, 1]"}
	}
	if fw.Stage1.MaxCategories <= 0 {
		return &ConfigurationError{Field: "stage1.max_categories", Reason: "must be positive"}
	}

	if fw.Stage2.ChaseSizeMultiplier <= 1 {
		return &ConfigurationError{Field: "stage2.chase_size_multiplier", Reason: "must be greater than 1"}
	}
	if fw.Stage2.ChasingRatioLimit <= 0 || fw.Stage2.ChasingRatioLimit >= 1 {
		return &ConfigurationError{Field: "stage2.chasing_ratio_limit", Reason: "must be in (0, 1)"}
	}
	if fw.Stage2.DrawdownCeiling <= 0 || fw.Stage2.DrawdownCeiling >= 1 {
		return &ConfigurationError{Field: "stage2.drawdown_ceiling", Reason: "must be in (0, 1)"}
	}
	if fw.Stage2.TradeWindow <= 0 {
		return &ConfigurationError{Field: "stage2.trade_window", Reason: "must be positive"}
	}

	for name, cc := range map[string]CacheConfig{
		"caches.response": fw.Caches.Response,
		"caches.analysis": fw.Caches.Analysis,
		"caches.metadata": fw.Caches.Metadata,
	} {
		if cc.MaxSize <= 0 {
			return &ConfigurationError{Field: name + ".max_size", Reason: "must be positive"}
		}
		if cc.TTLSeconds <= 0 {
			return &ConfigurationError{Field: name + ".ttl_seconds", Reason: "must be positive"}
		}
	}

	if fw.Concurrency <= 0 {
		return &ConfigurationError{Field: "concurrency", Reason: "must be positive"}
	}

	br := fw.Breaker
	if br.ErrorRateThreshold <= 0 || br.ErrorRateThreshold >= 1 {
		return &ConfigurationError{Field: "breaker.error_rate_threshold", Reason: "must be in (0, 1)"}
	}
	if br.MinSamples <= 0 {
		return &ConfigurationError{Field: "breaker.min_samples", Reason: "must be positive"}
	}
	if br.WindowSeconds <= 0 {
		return &ConfigurationError{Field: "breaker.window_seconds", Reason: "must be positive"}
	}
	if br.CooldownSeconds <= 0 {
		return &ConfigurationError{Field: "breaker.cooldown_seconds", Reason: "must be positive"}
	}

	return nil
}

// RiskParams converts the validated config into the exact-decimal scoring
// parameters used by the risk engine.
func (fw *RiskFrameworkConfig) RiskParams() risk.Params {
	return risk.Params{
		Weights: risk.Weights{
			Specialization: decimal.NewFromFloat(fw.Weights.Specialization),
			Behavior:       decimal.NewFromFloat(fw.Weights.Behavior),
			Structure:      decimal.NewFromFloat(fw.Weights.Structure),
		},
		TargetThreshold:          decimal.NewFromFloat(fw.TargetThreshold),
		WatchlistThreshold:       decimal.NewFromFloat(fw.WatchlistThreshold),
		ViralPenalty:             decimal.NewFromFloat(fw.ViralPenalty),
		MMMaxHoldSeconds:         decimal.NewFromInt(int64(fw.MarketMaker.MaxHoldSeconds)),
		MMWinRateLo:              decimal.NewFromFloat(fw.MarketMaker.WinRateLo),
		MMWinRateHi:              decimal.NewFromFloat(fw.MarketMaker.WinRateHi),
		MMMaxProfitPerTrade:      decimal.NewFromFloat(fw.MarketMaker.MaxProfitPerTrade),
		CategoryPenaltyThreshold: 3,
		CategoryPenaltyStep:      decimal.NewFromFloat(0.05),
		ChaseSizeMultiplier:      decimal.NewFromFloat(fw.Stage2.ChaseSizeMultiplier),
		ChasingRatioLimit:        decimal.NewFromFloat(fw.Stage2.ChasingRatioLimit),
		DrawdownCeiling:          decimal.NewFromFloat(fw.Stage2.DrawdownCeiling),
	}
}
