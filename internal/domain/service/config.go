package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

// MicroConfig tunes the micro-pattern detector.
type MicroConfig struct {
	MicroThreshold      decimal.Decimal
	TinyThreshold       decimal.Decimal
	CumulativeThreshold decimal.Decimal
	Weights             valueobject.FlagWeights
	MinCount            int
	TopN                int
	MicroRatio          float64
	TinyRatio           float64
	ResidueMinSamples   int
	ResidueDominance    float64
}

// AmountPatternConfig tunes the amount-shape detector.
type AmountPatternConfig struct {
	RoundUnit                      decimal.Decimal
	RoundMinimum                   decimal.Decimal
	EvasionMinWindow               decimal.Decimal
	EvasionThresholds              []decimal.Decimal
	EvasionWindowPct               float64
	ConcentrationThreshold         float64
	RoundContribution              int
	EvasionContribution            int
	ConcentrationMinCounterparties int
	// SpikeSigma and SpikeMinCount gate the per-counterparty monthly count
	// rule; SpikeMinMonths is the history it needs.
	SpikeSigma     float64
	SpikeMinCount  int
	SpikeMinMonths int
	// OutlierSigma and OutlierMinSamples gate the per-counterparty amount
	// outlier rule.
	OutlierSigma      float64
	OutlierMinSamples int
}

// StatisticalConfig tunes the three statistical lenses.
type StatisticalConfig struct {
	MediumSigma          float64
	HighSigma            float64
	IQRMultiplier        float64
	IsolationDistance    float64
	ParametricMinSamples int
	IQRMinSamples        int
	DensityNeighbor      int
	ParametricHighWeight int
	ParametricMedWeight  int
	IQRWeight            int
	DensityWeight        int
	PerAnomaly           int
	CorpusSeedLimit      int
}

// BehaviorConfig tunes the behavioural baseline manager.
type BehaviorConfig struct {
	LargeAmount       decimal.Decimal
	SeverityWeights   valueobject.SeverityWeights
	Alpha             float64
	FrequencyAnomaly  float64
	FrequencyHigh     float64
	AmountAnomaly     float64
	AmountHigh        float64
	PatternMixAnomaly float64
	PatternMixMedium  float64
}

// AggregateConfig tunes the risk aggregator.
type AggregateConfig struct {
	PatternWeight             float64
	BehaviorWeight            float64
	AnomalyWeight             float64
	FrequencyWeight           float64
	ProbabilityDamping        float64
	DegradedConfidencePenalty int
	// FrequencyBands are the upper bounds of the low, normal and elevated
	// transaction-count bands; FrequencyScores has one more entry for
	// counts above the last bound.
	FrequencyBands  [3]int
	FrequencyScores [4]int
}

// EngineConfig holds every tunable of the scoring pipeline.
type EngineConfig struct {
	Micro          MicroConfig
	AmountPatterns AmountPatternConfig
	Statistical    StatisticalConfig
	Behavior       BehaviorConfig
	Aggregate      AggregateConfig
	CorpusCap      int
}

// DefaultEngineConfig returns the stock configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Micro: MicroConfig{
			MicroThreshold:      decimal.RequireFromString("0.01"),
			TinyThreshold:       decimal.RequireFromString("0.001"),
			CumulativeThreshold: decimal.RequireFromString("1.00"),
			Weights:             valueobject.DefaultFlagWeights(),
			MinCount:            20,
			TopN:                10,
			MicroRatio:          0.5,
			TinyRatio:           0.3,
			ResidueMinSamples:   30,
			ResidueDominance:    0.6,
		},
		AmountPatterns: AmountPatternConfig{
			RoundUnit:        decimal.NewFromInt(100),
			RoundMinimum:     decimal.NewFromInt(1000),
			EvasionMinWindow: decimal.NewFromInt(100),
			EvasionThresholds: []decimal.Decimal{
				decimal.NewFromInt(1000),
				decimal.NewFromInt(2500),
				decimal.NewFromInt(5000),
				decimal.NewFromInt(10000),
				decimal.NewFromInt(25000),
				decimal.NewFromInt(50000),
			},
			EvasionWindowPct:               0.02,
			ConcentrationThreshold:         0.3,
			RoundContribution:              75,
			EvasionContribution:            85,
			ConcentrationMinCounterparties: 3,
			SpikeSigma:                     2,
			SpikeMinCount:                  10,
			SpikeMinMonths:                 3,
			OutlierSigma:                   3,
			OutlierMinSamples:              5,
		},
		Statistical: StatisticalConfig{
			MediumSigma:          2,
			HighSigma:            3,
			IQRMultiplier:        1.5,
			IsolationDistance:    1000,
			ParametricMinSamples: 3,
			IQRMinSamples:        4,
			DensityNeighbor:      4,
			ParametricHighWeight: 40,
			ParametricMedWeight:  25,
			IQRWeight:            30,
			DensityWeight:        15,
			PerAnomaly:           15,
			CorpusSeedLimit:      500,
		},
		Behavior: BehaviorConfig{
			LargeAmount:       decimal.NewFromInt(10000),
			SeverityWeights:   valueobject.SeverityWeights{High: 30, Medium: 15, Low: 5},
			Alpha:             0.3,
			FrequencyAnomaly:  0.5,
			FrequencyHigh:     1.0,
			AmountAnomaly:     0.75,
			AmountHigh:        1.5,
			PatternMixAnomaly: 0.5,
			PatternMixMedium:  1.0,
		},
		Aggregate: AggregateConfig{
			PatternWeight:             0.4,
			BehaviorWeight:            0.3,
			AnomalyWeight:             0.2,
			FrequencyWeight:           0.1,
			ProbabilityDamping:        0.8,
			DegradedConfidencePenalty: 20,
			FrequencyBands:            [3]int{5, 50, 100},
			FrequencyScores:           [4]int{10, 5, 20, 30},
		},
		CorpusCap: 10000,
	}
}

// Validate rejects configurations the detectors cannot run with.
func (c EngineConfig) Validate() error {
	switch {
	case !c.Micro.MicroThreshold.IsPositive():
		return fmt.Errorf("micro threshold must be positive")
	case c.Micro.TinyThreshold.GreaterThan(c.Micro.MicroThreshold):
		return fmt.Errorf("tiny threshold must not exceed micro threshold")
	case c.Micro.MinCount <= 0:
		return fmt.Errorf("micro min count must be positive")
	case c.Micro.TopN <= 0:
		return fmt.Errorf("micro top N must be positive")
	case c.Behavior.Alpha <= 0 || c.Behavior.Alpha > 1:
		return fmt.Errorf("smoothing factor must be in (0, 1], got %v", c.Behavior.Alpha)
	case c.Statistical.ParametricMinSamples < 2:
		return fmt.Errorf("parametric lens needs at least 2 samples")
	case c.Statistical.IQRMinSamples < 2:
		return fmt.Errorf("IQR lens needs at least 2 samples")
	case c.Statistical.DensityNeighbor < 1:
		return fmt.Errorf("density neighbour rank must be at least 1")
	case c.CorpusCap <= 0:
		return fmt.Errorf("corpus cap must be positive")
	case !c.AmountPatterns.RoundUnit.IsPositive():
		return fmt.Errorf("round unit must be positive")
	case c.AmountPatterns.SpikeMinMonths < 2:
		return fmt.Errorf("frequency spike rule needs at least 2 months")
	case c.AmountPatterns.OutlierMinSamples < 2:
		return fmt.Errorf("counterparty outlier rule needs at least 2 samples")
	}
	return nil
}
