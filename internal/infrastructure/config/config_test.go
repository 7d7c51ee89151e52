package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/service"
	"github.com/bibbank/risk-engine/internal/infrastructure/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.GRPCAddress())
	assert.Equal(t, ":9088", cfg.HTTPAddress())
	assert.Equal(t, "risk.events", cfg.Kafka.EventsTopic)
	assert.Equal(t, "risk.batches", cfg.Kafka.BatchesTopic)
	assert.Equal(t, "info", cfg.Log.Level)

	engine, err := cfg.ToEngineConfig()
	require.NoError(t, err)

	want := service.DefaultEngineConfig()
	assert.True(t, want.Micro.MicroThreshold.Equal(engine.Micro.MicroThreshold))
	assert.True(t, want.Micro.CumulativeThreshold.Equal(engine.Micro.CumulativeThreshold))
	assert.Equal(t, want.Micro.Weights, engine.Micro.Weights)
	assert.Equal(t, want.Micro.MinCount, engine.Micro.MinCount)
	require.Len(t, engine.AmountPatterns.EvasionThresholds, len(want.AmountPatterns.EvasionThresholds))
	for i := range want.AmountPatterns.EvasionThresholds {
		assert.True(t, want.AmountPatterns.EvasionThresholds[i].Equal(engine.AmountPatterns.EvasionThresholds[i]))
	}
	assert.Equal(t, want.AmountPatterns.SpikeSigma, engine.AmountPatterns.SpikeSigma)
	assert.Equal(t, want.AmountPatterns.SpikeMinCount, engine.AmountPatterns.SpikeMinCount)
	assert.Equal(t, want.AmountPatterns.SpikeMinMonths, engine.AmountPatterns.SpikeMinMonths)
	assert.Equal(t, want.AmountPatterns.OutlierSigma, engine.AmountPatterns.OutlierSigma)
	assert.Equal(t, want.AmountPatterns.OutlierMinSamples, engine.AmountPatterns.OutlierMinSamples)
	assert.Equal(t, want.Statistical, engine.Statistical)
	assert.Equal(t, want.Behavior.SeverityWeights, engine.Behavior.SeverityWeights)
	assert.Equal(t, want.Behavior.Alpha, engine.Behavior.Alpha)
	assert.Equal(t, want.Aggregate, engine.Aggregate)
	assert.Equal(t, 10000, engine.CorpusCap)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RISK_GRPC_PORT", "7000")
	t.Setenv("RISK_ENGINE_BEHAVIOR_ALPHA", "0.5")
	t.Setenv("RISK_ENGINE_MICRO_MICRO_THRESHOLD", "0.05")
	t.Setenv("RISK_LEARNER_CORPUS_CAP", "250")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.GRPCAddress())

	engine, err := cfg.ToEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.5, engine.Behavior.Alpha)
	assert.Equal(t, "0.05", engine.Micro.MicroThreshold.String())
	assert.Equal(t, 250, engine.CorpusCap)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	body := []byte(`
http_port: "9999"
engine:
  amount_patterns:
    evasion_thresholds: ["2000", "1000"]
  aggregate:
    frequency_bands: [10, 60, 120]
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddress())

	engine, err := cfg.ToEngineConfig()
	require.NoError(t, err)
	require.Len(t, engine.AmountPatterns.EvasionThresholds, 2)
	assert.Equal(t, [3]int{10, 60, 120}, engine.Aggregate.FrequencyBands)
}

func TestToEngineConfig_Rejects(t *testing.T) {
	t.Run("malformed decimal", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Engine.Micro.TinyThreshold = "abc"

		_, err = cfg.ToEngineConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.micro.tiny_threshold")
	})

	t.Run("smoothing factor out of range", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Engine.Behavior.Alpha = 1.5

		_, err = cfg.ToEngineConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smoothing factor")
	})

	t.Run("wrong number of frequency bands", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Engine.Aggregate.FrequencyBands = []int{1, 2}

		_, err = cfg.ToEngineConfig()
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
