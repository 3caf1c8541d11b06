package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Framework.Validate())
	assert.Equal(t, 0.70, cfg.Framework.TargetThreshold)
	assert.Equal(t, 25, cfg.Framework.Concurrency)
	assert.Equal(t, 1000, cfg.Framework.Caches.Response.MaxSize)
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("SCAN_CONCURRENCY", "40")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
general:
  instance_id: test-1
  log_level: debug
framework:
  concurrency: ${SCAN_CONCURRENCY}
  target_threshold: 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-1", cfg.General.InstanceID)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 40, cfg.Framework.Concurrency)
	assert.Equal(t, 0.75, cfg.Framework.TargetThreshold)
	// Untouched fields get defaults.
	assert.Equal(t, 50, cfg.Framework.Stage1.MinTradeCount)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RiskFrameworkConfig)
		field  string
	}{
		{
			name:   "weights must sum to 1",
			mutate: func(fw *RiskFrameworkConfig) { fw.Weights.Behavior = 0.50 },
			field:  "weights",
		},
		{
			name:   "target threshold above 1",
			mutate: func(fw *RiskFrameworkConfig) { fw.TargetThreshold = 1.2 },
			field:  "target_threshold",
		},
		{
			name:   "target below watchlist",
			mutate: func(fw *RiskFrameworkConfig) { fw.TargetThreshold = 0.40 },
			field:  "target_threshold",
		},
		{
			name:   "inverted win-rate band",
			mutate: func(fw *RiskFrameworkConfig) { fw.MarketMaker.WinRateLo = 0.60 },
			field:  "market_maker.win_rate",
		},
		{
			name:   "chase multiplier must exceed 1",
			mutate: func(fw *RiskFrameworkConfig) { fw.Stage2.ChaseSizeMultiplier = 0.9 },
			field:  "stage2.chase_size_multiplier",
		},
		{
			name:   "negative cache size",
			mutate: func(fw *RiskFrameworkConfig) { fw.Caches.Analysis.MaxSize = -1 },
			field:  "caches.analysis.max_size",
		},
		{
			name:   "zero concurrency",
			mutate: func(fw *RiskFrameworkConfig) { fw.Concurrency = -5 },
			field:  "concurrency",
		},
		{
			name:   "breaker threshold out of range",
			mutate: func(fw *RiskFrameworkConfig) { fw.Breaker.ErrorRateThreshold = 1.5 },
			field:  "breaker.error_rate_threshold",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg.Framework)

			err := cfg.Framework.Validate()
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestValidate_WeightEpsilonTolerated(t *testing.T) {
	cfg := Default()
	// Binary float noise well inside the epsilon.
	cfg.Framework.Weights = WeightsConfig{
		Specialization: 0.35,
		Behavior:       0.40,
		Structure:      0.25,
	}
	assert.NoError(t, cfg.Framework.Validate())
}

func TestRiskParams_Conversion(t *testing.T) {
	cfg := Default()
	p := cfg.Framework.RiskParams()

	assert.True(t, p.Weights.Sum().Equal(p.Weights.Sum().Round(8)))
	assert.Equal(t, "0.7", p.TargetThreshold.String())
	assert.Equal(t, "14400", p.MMMaxHoldSeconds.String())
	assert.Equal(t, "1.5", p.ChaseSizeMultiplier.String())
}
