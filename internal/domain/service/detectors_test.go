package service_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/service"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
)

func TestFeatureExtractor_Extract(t *testing.T) {
	ex := service.NewFeatureExtractor(500)
	tenant := uuid.New()
	batch := concat(
		batchOf(t, "Acme", "100", "250.50"),
		batchOf(t, "Globex", "40"),
	)

	t.Run("one vector per transaction with neutral history", func(t *testing.T) {
		vectors := ex.Extract(tenant, "acct-1", batch, nil)
		require.Len(t, vectors, 3)

		for _, v := range vectors {
			assert.Equal(t, model.NeutralHistoryFeature, v.HistoricalAmountRank)
			assert.GreaterOrEqual(t, v.Hour, 0.0)
			assert.LessOrEqual(t, v.Hour, 1.0)
			assert.GreaterOrEqual(t, v.Weekday, 0.0)
			assert.LessOrEqual(t, v.Weekday, 1.0)
		}
		assert.InDelta(t, 2.0/3.0, vectors[0].CounterpartyFreq, 1e-9)
		assert.InDelta(t, 1.0/3.0, vectors[2].CounterpartyFreq, 1e-9)
		assert.InDelta(t, 2.0/24.0, vectors[2].Velocity, 1e-9)
	})

	t.Run("idempotent for identical inputs", func(t *testing.T) {
		history := []model.CorpusEntry{{TenantID: tenant, SubjectID: "acct-1", Transactions: batchOf(t, "Old", "10", "1000")}}
		first := ex.Extract(tenant, "acct-1", batch, history)
		second := ex.Extract(tenant, "acct-1", batch, history)
		assert.Equal(t, first, second)
	})

	t.Run("velocity counts corpus history of the same subject only", func(t *testing.T) {
		history := []model.CorpusEntry{
			{TenantID: tenant, SubjectID: "acct-1", Transactions: batchOf(t, "Old", "10", "20")},
			{TenantID: tenant, SubjectID: "acct-2", Transactions: batchOf(t, "Other", "10", "20", "30")},
			{TenantID: uuid.New(), SubjectID: "acct-1", Transactions: batchOf(t, "Elsewhere", "10", "20")},
		}
		vectors := ex.Extract(tenant, "acct-1", batchOf(t, "New", "5"), history)
		require.Len(t, vectors, 1)
		// fixedNow itself plus the acct-1 corpus entry at fixedNow; the
		// second corpus transaction is one minute later and outside (ts-24h, ts].
		assert.InDelta(t, 2.0/24.0, vectors[0].Velocity, 1e-9)
	})

	t.Run("historical rank", func(t *testing.T) {
		history := []model.CorpusEntry{{TenantID: tenant, SubjectID: "x", Transactions: batchOf(t, "Old", "10", "20", "30", "40")}}
		vectors := ex.Extract(tenant, "acct-1", batchOf(t, "New", "25", "100"), history)
		assert.InDelta(t, 0.5, vectors[0].HistoricalAmountRank, 1e-9)
		assert.InDelta(t, 1.0, vectors[1].HistoricalAmountRank, 1e-9)
	})
}

func TestMicroPatternDetector(t *testing.T) {
	cfg := service.DefaultEngineConfig().Micro
	det := service.NewMicroPatternDetector(cfg)

	t.Run("high frequency micro vendor", func(t *testing.T) {
		amounts := make([]string, 150)
		for i := range amounts {
			amounts[i] = decimal.New(int64(2+i%9), -3).String()
		}
		report := det.Analyze(batchOf(t, "Skimmer LLC", amounts...), nil, fixedNow)

		require.Len(t, report.Vendors, 1)
		v := report.Vendors[0]
		assert.Equal(t, 150, v.Profile.MicroTransactions)
		assert.Contains(t, v.Flags, valueobject.FlagHighFrequencyMicro)
		assert.Contains(t, v.Flags, valueobject.FlagMajorityMicro)
		assert.NotContains(t, v.Flags, valueobject.FlagCumulativeMicro)
		assert.Equal(t, v.Score, report.Score)
		assert.LessOrEqual(t, v.Score, 100)
		assert.Len(t, v.SampleTransactions, 5)
	})

	t.Run("systematic residue", func(t *testing.T) {
		amounts := make([]string, 80)
		for i := range amounts {
			amounts[i] = "25.003"
		}
		report := det.Analyze(batchOf(t, "Rounding Ltd", amounts...), nil, fixedNow)

		require.Len(t, report.Vendors, 1)
		v := report.Vendors[0]
		assert.Equal(t, 80, v.Profile.ResidueHistogram[3])
		assert.Equal(t, []valueobject.SuspiciousFlag{valueobject.FlagSystematicResidue}, v.Flags)
		assert.Equal(t, 3, v.DominantResidue)
		assert.InDelta(t, 1.0, v.ResidueProportion, 1e-9)
		assert.Empty(t, v.SampleTransactions, "no micro amounts to sample")

		patterns := report.Patterns()
		require.Len(t, patterns, 1)
		assert.Equal(t, valueobject.PatternMicroSkimming, patterns[0].Type)
		assert.Equal(t, 1.0, patterns[0].Evidence["residue_proportion"])
	})

	t.Run("counterparty below min count is never flagged", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Tiny Co", "0.001", "0.002", "0.0005"), nil, fixedNow)
		assert.Empty(t, report.Vendors)
		assert.Zero(t, report.Score)
		require.Len(t, report.Deltas, 1)
		assert.Equal(t, 3, report.Deltas[0].MicroTransactions)
	})

	t.Run("stored profile pushes vendor over min count", func(t *testing.T) {
		stored := model.NewCounterpartyProfile("Repeat Co")
		for i := 0; i < 19; i++ {
			stored.Observe(decimal.RequireFromString("0.005"), cfg.MicroThreshold, cfg.TinyThreshold)
		}
		report := det.Analyze(batchOf(t, "Repeat Co", "0.005"), map[string]model.CounterpartyProfile{"Repeat Co": *stored}, fixedNow)

		require.Len(t, report.Vendors, 1)
		assert.Equal(t, 20, report.Vendors[0].Profile.MicroTransactions)
		require.Len(t, report.Deltas, 1)
		assert.Equal(t, 1, report.Deltas[0].TotalTransactions, "delta holds only this batch")
		assert.Equal(t, report.Vendors[0].Flags, report.Deltas[0].SuspiciousFlags)
	})

	t.Run("samples never include non-micro amounts", func(t *testing.T) {
		var amounts []string
		for i := 0; i < 30; i++ {
			amounts = append(amounts, "0.004", "-0.004", "0", "0.5")
		}
		report := det.Analyze(batchOf(t, "Mixed", amounts...), nil, fixedNow)
		require.Len(t, report.Vendors, 1)
		for _, id := range report.Vendors[0].SampleTransactions {
			var idx int
			_, err := fmt.Sscanf(id, "Mixed-%d", &idx)
			require.NoError(t, err)
			assert.Equal(t, "0.004", amounts[idx])
		}
	})

	t.Run("top N", func(t *testing.T) {
		small := cfg
		small.TopN = 2
		d := service.NewMicroPatternDetector(small)

		var batch []model.Transaction
		for _, name := range []string{"A", "B", "C"} {
			amounts := make([]string, 25)
			for i := range amounts {
				amounts[i] = "0.005"
			}
			batch = append(batch, batchOf(t, name, amounts...)...)
		}
		report := d.Analyze(batch, nil, fixedNow)
		assert.Len(t, report.Vendors, 2)
		assert.Len(t, report.Deltas, 3)
	})
}

func TestAmountPatternDetector(t *testing.T) {
	det := service.NewAmountPatternDetector(service.DefaultEngineConfig().AmountPatterns)

	t.Run("round dollar", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Shell Co", "5000", "10000", "15000", "7500", "12500"))

		require.Len(t, report.Patterns, 5)
		for _, p := range report.Patterns {
			assert.Equal(t, valueobject.PatternRoundDollar, p.Type)
			assert.Equal(t, "Round Dollar Pattern", p.Type.Label())
			assert.Equal(t, 75, p.Contribution)
		}
		assert.Equal(t, 75, report.Score)
	})

	t.Run("threshold evasion", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Threshold Evader Corp", "4999", "9999", "4950", "24999", "9899"))

		var thresholds []string
		for _, p := range report.Patterns {
			if p.Type == valueobject.PatternThresholdEvasion {
				thresholds = append(thresholds, p.Evidence["threshold"].(string))
				assert.Equal(t, 85, p.Contribution)
			}
		}
		assert.Equal(t, []string{"5000", "10000", "5000", "25000", "10000"}, thresholds)
		assert.Equal(t, 85, report.Score)
	})

	t.Run("amount at the threshold is not evasion", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Acme", "10000.00", "4899", "-4999"))
		for _, p := range report.Patterns {
			assert.NotEqual(t, valueobject.PatternThresholdEvasion, p.Type)
		}
	})

	t.Run("vendor concentration", func(t *testing.T) {
		batch := concat(
			batchOf(t, "Big", "800"),
			batchOf(t, "Small", "100"),
			batchOf(t, "Smaller", "100"),
		)
		report := det.Analyze(batch)
		require.Len(t, report.Patterns, 1)
		assert.Equal(t, valueobject.PatternVendorConcentration, report.Patterns[0].Type)
		assert.Equal(t, 95, report.Patterns[0].Contribution)
	})

	t.Run("concentration needs enough counterparties", func(t *testing.T) {
		report := det.Analyze(concat(batchOf(t, "Big", "800"), batchOf(t, "Small", "100")))
		assert.Empty(t, report.Patterns)
	})

	t.Run("frequency spike", func(t *testing.T) {
		report := det.Analyze(monthlyBatch(t, "Office Supplies Inc", 1, 1, 1, 1, 1, 12))

		require.Len(t, report.Patterns, 1)
		p := report.Patterns[0]
		assert.Equal(t, valueobject.PatternFrequencySpike, p.Type)
		assert.Equal(t, "Frequency Spike", p.Type.Label())
		assert.Equal(t, "2024-03", p.Evidence["month"])
		assert.Equal(t, 12, p.Evidence["count"])
		assert.Equal(t, 90, p.Contribution, "50 + 9.17*5 capped at 90")
		assert.Equal(t, 90, report.Score)
	})

	t.Run("frequency spike needs ten payments in the month", func(t *testing.T) {
		report := det.Analyze(monthlyBatch(t, "Office Supplies Inc", 1, 1, 1, 1, 1, 8))
		assert.Empty(t, report.Patterns)
	})

	t.Run("frequency spike needs enough months", func(t *testing.T) {
		report := det.Analyze(monthlyBatch(t, "Office Supplies Inc", 1, 12))
		assert.Empty(t, report.Patterns)
	})

	t.Run("counterparty outlier", func(t *testing.T) {
		amounts := make([]string, 10)
		for i := range amounts {
			amounts[i] = "100.10"
		}
		report := det.Analyze(batchOf(t, "Acme", append(amounts, "5000.37")...))

		require.Len(t, report.Patterns, 1)
		p := report.Patterns[0]
		assert.Equal(t, valueobject.PatternCounterpartyOutlier, p.Type)
		assert.Equal(t, "Acme-10", p.Evidence["transaction_id"])
		assert.InDelta(t, 10/math.Sqrt(11), p.Evidence["sigma"].(float64), 1e-9)
		assert.Equal(t, 70, p.Contribution)
		assert.Equal(t, valueobject.SeverityMedium, p.Severity)
	})

	t.Run("counterparty outlier needs enough payments", func(t *testing.T) {
		loose := service.DefaultEngineConfig().AmountPatterns
		loose.OutlierSigma = 1
		d := service.NewAmountPatternDetector(loose)

		assert.Empty(t, d.Analyze(batchOf(t, "Acme", "10", "10", "10", "100")).Patterns)

		report := d.Analyze(batchOf(t, "Acme", "10", "10", "10", "10", "100"))
		require.Len(t, report.Patterns, 1)
		assert.Equal(t, "Acme-4", report.Patterns[0].Evidence["transaction_id"])
	})
}

// monthlyBatch spreads payments to one counterparty over consecutive
// calendar months ending in the month of fixedNow.
func monthlyBatch(t *testing.T, counterparty string, perMonth ...int) []model.Transaction {
	t.Helper()
	var inputs []model.TransactionInput
	for m, n := range perMonth {
		month := fixedNow.AddDate(0, m-len(perMonth)+1, 0)
		for i := 0; i < n; i++ {
			inputs = append(inputs, model.TransactionInput{
				ID:           fmt.Sprintf("%s-%d-%d", counterparty, m, i),
				Amount:       decimal.RequireFromString("42.17"),
				Counterparty: counterparty,
				Timestamp:    month.Add(-time.Duration(i) * time.Minute),
			})
		}
	}
	batch, err := model.NewBatch(inputs, fixedNow)
	require.NoError(t, err)
	return batch
}

func parametricWeight(o []service.Outlier, id string) int {
	for _, out := range o {
		if out.TransactionID != id {
			continue
		}
		for _, f := range out.Findings {
			if f.Lens == valueobject.LensParametric {
				return f.Weight
			}
		}
	}
	return 0
}

func TestStatisticalDetector(t *testing.T) {
	cfg := service.DefaultEngineConfig().Statistical
	det := service.NewStatisticalDetector(cfg)

	t.Run("lenses abstain below their sample guards", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Acme", "10", "1000000"), nil)
		assert.Empty(t, report.Outliers)
		assert.Zero(t, report.Score)
		require.Len(t, report.Abstentions, 3)
		assert.Equal(t, string(valueobject.LensParametric), report.Abstentions[0].Lens)
		assert.Equal(t, 3, report.Abstentions[0].Need)
	})

	t.Run("reference data does not lift the guard", func(t *testing.T) {
		reference := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
		report := det.Analyze(batchOf(t, "Acme", "10", "1000000"), reference)
		assert.Empty(t, report.Outliers)
	})

	t.Run("three lenses fire on an isolated outlier", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Acme", "10", "11", "12", "13", "14", "15", "16", "17", "5000"), nil)

		require.Len(t, report.Outliers, 1)
		o := report.Outliers[0]
		assert.Equal(t, "Acme-8", o.TransactionID)
		require.Len(t, o.Findings, 3)
		assert.Equal(t, valueobject.LensParametric, o.Findings[0].Lens)
		assert.Equal(t, valueobject.SeverityMedium, o.Findings[0].Severity)
		assert.Equal(t, valueobject.LensIQR, o.Findings[1].Lens)
		assert.Contains(t, o.Findings[1].Reason, "Q1 11.25, Q3 15.75")
		assert.Equal(t, valueobject.LensDensity, o.Findings[2].Lens)
		assert.Equal(t, 70, o.Score)
		assert.Equal(t, 15, report.Score)
		assert.Empty(t, report.Abstentions)

		patterns := report.Patterns()
		require.Len(t, patterns, 1)
		assert.Equal(t, valueobject.SeverityMedium, patterns[0].Severity)
		assert.Contains(t, patterns[0].Description, "σ")
	})

	t.Run("parametric contribution is monotone in the amount", func(t *testing.T) {
		base := make([]string, 19)
		for i := range base {
			base[i] = decimal.NewFromInt(int64(100 + i)).String()
		}
		prev := 0
		for _, x := range []string{"150", "200", "300", "500", "1000", "5000", "50000"} {
			batch := concat(batchOf(t, "Acme", base...), batchOf(t, "Target", x))
			w := parametricWeight(det.Analyze(batch, nil).Outliers, "Target-0")
			assert.GreaterOrEqual(t, w, prev, "amount %s", x)
			prev = w
		}
		assert.Equal(t, cfg.ParametricHighWeight, prev)
	})

	t.Run("constant amounts produce no outliers", func(t *testing.T) {
		report := det.Analyze(batchOf(t, "Acme", "5", "5", "5", "5", "5", "5"), nil)
		assert.Empty(t, report.Outliers)
	})

	t.Run("batch score is capped", func(t *testing.T) {
		var amounts []string
		for i := 0; i < 10; i++ {
			amounts = append(amounts, decimal.NewFromInt(int64(i*5000)).String())
		}
		report := det.Analyze(batchOf(t, "Spread", amounts...), nil)
		assert.LessOrEqual(t, report.Score, 100)
		assert.Equal(t, 100, report.Score)
	})
}

func TestBehaviorManager(t *testing.T) {
	cfg := service.DefaultEngineConfig()
	mgr := service.NewBehaviorManager(cfg)

	t.Run("stats", func(t *testing.T) {
		batch := batchOf(t, "Acme", "0.005", "12000", "2000", "-86")
		features := service.NewFeatureExtractor(0).Extract(uuid.Nil, "acct-1", batch, nil)
		stats := mgr.Stats(batch, features)

		assert.Equal(t, 4, stats.Count)
		assert.InDelta(t, (0.005+12000+2000+86)/4, stats.AverageAmount, 1e-9)
		assert.InDelta(t, 0.25, stats.PatternMix.Micro, 1e-9)
		assert.InDelta(t, 0.25, stats.PatternMix.Large, 1e-9)
		assert.InDelta(t, 0.5, stats.PatternMix.Round, 1e-9)
		// Trailing counts 1, 2, 3, 4 within one day.
		assert.InDelta(t, 2.5, stats.Frequency, 1e-9)
	})

	t.Run("cold start yields no deviations", func(t *testing.T) {
		report := mgr.Analyze(model.BatchStats{AverageAmount: 1e6, Frequency: 50}, model.BehaviorBaseline{})
		assert.True(t, report.ColdStart)
		assert.Empty(t, report.Deviations)
		assert.Zero(t, report.Score)
	})

	t.Run("zero baseline fields are skipped", func(t *testing.T) {
		baseline := model.BehaviorBaseline{SubjectID: "acct-1", UpdateCount: 3, AverageAmount: 100}
		report := mgr.Analyze(model.BatchStats{AverageAmount: 100, Frequency: 40, PatternMix: model.PatternMix{Micro: 1}}, baseline)
		assert.Empty(t, report.Deviations)
	})

	tests := []struct {
		name     string
		stats    model.BatchStats
		wantType valueobject.PatternType
		wantSev  valueobject.Severity
		score    int
	}{
		{"amount medium", model.BatchStats{AverageAmount: 200, Frequency: 2, PatternMix: model.PatternMix{Round: 0.5}}, valueobject.PatternAmountDeviation, valueobject.SeverityMedium, 15},
		{"amount high", model.BatchStats{AverageAmount: 300, Frequency: 2, PatternMix: model.PatternMix{Round: 0.5}}, valueobject.PatternAmountDeviation, valueobject.SeverityHigh, 30},
		{"frequency medium", model.BatchStats{AverageAmount: 100, Frequency: 3.5, PatternMix: model.PatternMix{Round: 0.5}}, valueobject.PatternFrequencyDeviation, valueobject.SeverityMedium, 15},
		{"frequency high", model.BatchStats{AverageAmount: 100, Frequency: 5, PatternMix: model.PatternMix{Round: 0.5}}, valueobject.PatternFrequencyDeviation, valueobject.SeverityHigh, 30},
		{"pattern mix low", model.BatchStats{AverageAmount: 100, Frequency: 2, PatternMix: model.PatternMix{Round: 0.2}}, valueobject.PatternMixDeviation, valueobject.SeverityLow, 5},
		{"pattern mix medium", model.BatchStats{AverageAmount: 100, Frequency: 2, PatternMix: model.PatternMix{Round: 1.2}}, valueobject.PatternMixDeviation, valueobject.SeverityMedium, 15},
	}
	baseline := model.BehaviorBaseline{
		SubjectID: "acct-1", UpdateCount: 1, AverageAmount: 100, Frequency: 2,
		PatternMix: model.PatternMix{Round: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := mgr.Analyze(tt.stats, baseline)
			require.Len(t, report.Deviations, 1)
			assert.Equal(t, tt.wantType, report.Deviations[0].Type)
			assert.Equal(t, tt.wantSev, report.Deviations[0].Severity)
			assert.Equal(t, tt.score, report.Score)
			require.Len(t, report.Patterns(), 1)
		})
	}

	t.Run("update with unchanged average keeps it", func(t *testing.T) {
		b := model.NewBaselineFromStats(uuid.Nil, "acct-1", model.BatchStats{AverageAmount: 100}, fixedNow)
		next := mgr.Update(b, model.BatchStats{AverageAmount: 100}, fixedNow.Add(time.Hour))
		assert.Equal(t, 100.0, next.AverageAmount)
		assert.Equal(t, 2, next.UpdateCount)
	})
}

func TestAggregator(t *testing.T) {
	agg := service.NewAggregator(service.DefaultEngineConfig().Aggregate)

	t.Run("frequency bands", func(t *testing.T) {
		cases := map[int]int{0: 10, 4: 10, 5: 5, 50: 5, 51: 20, 100: 20, 101: 30, 5000: 30}
		for n, want := range cases {
			assert.Equal(t, want, agg.FrequencyRisk(n), "count %d", n)
		}
	})

	t.Run("quiet batch", func(t *testing.T) {
		v := agg.Aggregate(service.AggregateInput{TransactionCount: 3})
		assert.Equal(t, 1, v.OverallScore)
		assert.Equal(t, 1, v.Probability)
		assert.Equal(t, 100, v.Confidence)
		require.Len(t, v.Recommendations, 1)
		assert.Equal(t, valueobject.PriorityLow, v.Recommendations[0].Priority)
	})

	t.Run("weighted blend with disagreement", func(t *testing.T) {
		v := agg.Aggregate(service.AggregateInput{Pattern: 100, TransactionCount: 10})
		assert.Equal(t, 41, v.OverallScore)
		assert.Equal(t, 33, v.Probability)
		assert.Equal(t, 5, v.Confidence)
		assert.Equal(t, model.SubScores{Pattern: 100, Frequency: 5}, v.SubScores)

		var actions []string
		for _, r := range v.Recommendations {
			actions = append(actions, r.Action)
		}
		assert.Equal(t, []string{"Enhanced monitoring", "Pattern review", "Micro-skimming investigation"}, actions)
	})

	t.Run("critical tier", func(t *testing.T) {
		v := agg.Aggregate(service.AggregateInput{Pattern: 100, Behavior: 100, Anomaly: 100, TransactionCount: 200})
		assert.Equal(t, 93, v.OverallScore)
		assert.Equal(t, 74, v.Probability)
		assert.Equal(t, valueobject.PriorityCritical, v.Recommendations[0].Priority)
		assert.Len(t, v.Recommendations, 5)
	})

	t.Run("agreeing sub-scores give high confidence", func(t *testing.T) {
		v := agg.Aggregate(service.AggregateInput{Pattern: 30, Behavior: 30, Anomaly: 30, TransactionCount: 200})
		assert.Equal(t, 100, v.Confidence)
	})

	t.Run("degraded penalty", func(t *testing.T) {
		v := agg.Aggregate(service.AggregateInput{TransactionCount: 3, Degraded: true})
		assert.Equal(t, 80, v.Confidence)
	})

	t.Run("probability never exceeds the overall score", func(t *testing.T) {
		for p := 0; p <= 100; p += 10 {
			v := agg.Aggregate(service.AggregateInput{Pattern: p, Behavior: p, Anomaly: p, TransactionCount: 60})
			assert.LessOrEqual(t, v.Probability, v.OverallScore)
			assert.LessOrEqual(t, v.OverallScore, 100)
		}
	})
}
