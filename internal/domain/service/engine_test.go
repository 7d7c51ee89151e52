package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/service"
	"github.com/bibbank/risk-engine/internal/domain/valueobject"
	"github.com/bibbank/risk-engine/internal/infrastructure/memory"
)

func newTestEngine(t *testing.T, store *memory.Store) (*service.Engine, *service.Learner) {
	t.Helper()
	cfg := service.DefaultEngineConfig()
	engine, err := service.NewEngine(cfg, store, store, store, discardLogger(),
		service.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	learner := service.NewLearner(store, store, store, engine.Behavior(), service.NewSubjectLocks(), nil, discardLogger())
	return engine, learner
}

func TestEngine_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is an input error", func(t *testing.T) {
		engine, _ := newTestEngine(t, memory.NewStore(10))
		_, err := engine.Analyze(ctx, testTenant, "acct-1", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrInvalidInput))
	})

	t.Run("round dollar batch", func(t *testing.T) {
		engine, _ := newTestEngine(t, memory.NewStore(10))
		out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Shell Co", "5000", "10000", "15000", "7500", "12500"))
		require.NoError(t, err)

		round := 0
		for _, p := range out.Result.DetectedPatterns {
			if p.Type == valueobject.PatternRoundDollar {
				round++
				assert.Equal(t, 75, p.Contribution)
			}
		}
		assert.Equal(t, 5, round)
		assert.Equal(t, 75, out.Result.SubScores.Pattern)
		assert.Equal(t, 5, out.Result.SubScores.Frequency)
		assert.Zero(t, out.Result.SubScores.Behavior, "cold start")
		assert.Equal(t, valueobject.RiskLevelFromScore(out.Result.OverallScore), out.Result.RiskLevel)
		assert.Empty(t, out.Result.Warnings)
		assert.NotEmpty(t, out.Result.Recommendations)
	})

	t.Run("engine never writes state", func(t *testing.T) {
		store := memory.NewStore(10)
		engine, _ := newTestEngine(t, store)
		_, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "10", "20", "30"))
		require.NoError(t, err)

		assert.Zero(t, store.CorpusLen(testTenant))
		b, err := store.GetBaseline(ctx, testTenant, "acct-1")
		require.NoError(t, err)
		assert.True(t, b.IsZero())
	})

	t.Run("cancelled context abandons the analysis", func(t *testing.T) {
		engine, _ := newTestEngine(t, memory.NewStore(10))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := engine.Analyze(cctx, testTenant, "acct-1", batchOf(t, "Acme", "10"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestEngine_DegradesOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	baselines := &mockBaselineStore{
		getFunc: func(context.Context, string) (model.BehaviorBaseline, error) { return model.BehaviorBaseline{}, boom },
	}
	corpus := &mockCorpusStore{
		recentFunc: func(context.Context, int) ([]model.CorpusEntry, error) { return nil, boom },
	}
	counterparties := &mockCounterpartyStore{
		getFunc: func(context.Context, []string) (map[string]model.CounterpartyProfile, error) { return nil, boom },
	}

	engine, err := service.NewEngine(service.DefaultEngineConfig(), baselines, corpus, counterparties, discardLogger())
	require.NoError(t, err)

	out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "10", "20", "30"))
	require.NoError(t, err, "persistence failures never abort the analysis")

	assert.Len(t, out.Result.Warnings, 3)
	for _, w := range out.Result.Warnings {
		assert.Contains(t, w, "connection refused")
	}
	assert.True(t, out.BaselineUnavailable)
	assert.Zero(t, out.Result.SubScores.Behavior)
	assert.Equal(t, 80, out.Result.Confidence, "degraded penalty applied")

	learner := service.NewLearner(baselines, corpus, counterparties, engine.Behavior(), service.NewSubjectLocks(), nil, discardLogger())
	warnings := learner.Learn(ctx, out)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "baseline update skipped")
	assert.Len(t, corpus.appended, 1, "corpus append is independent of the baseline")
}

func TestLearner_Learn(t *testing.T) {
	ctx := context.Background()

	t.Run("baseline smoothing with unchanged behaviour", func(t *testing.T) {
		store := memory.NewStore(10)
		engine, learner := newTestEngine(t, store)

		for i := 0; i < 2; i++ {
			out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "50", "150"))
			require.NoError(t, err)
			assert.Empty(t, learner.Learn(ctx, out))
		}

		b, err := store.GetBaseline(ctx, testTenant, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, 100.0, b.AverageAmount)
		assert.Equal(t, 2, b.UpdateCount)
		assert.Equal(t, 2, store.CorpusLen(testTenant))
	})

	t.Run("counterparty profiles accumulate", func(t *testing.T) {
		store := memory.NewStore(10)
		engine, learner := newTestEngine(t, store)

		for i := 0; i < 3; i++ {
			out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "0.005", "12.003"))
			require.NoError(t, err)
			learner.Learn(ctx, out)
		}

		profiles, err := store.GetProfiles(ctx, testTenant, []string{"Acme"})
		require.NoError(t, err)
		p := profiles["Acme"]
		assert.Equal(t, 6, p.TotalTransactions)
		assert.Equal(t, p.TotalTransactions, p.ResidueSamples())
		assert.Equal(t, 3, p.MicroTransactions)
		assert.Equal(t, "36.024", p.TotalAmount.String())
	})

	t.Run("cancelled context leaves state untouched", func(t *testing.T) {
		store := memory.NewStore(10)
		engine, learner := newTestEngine(t, store)
		out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "10"))
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		warnings := learner.Learn(cctx, out)

		require.Len(t, warnings, 1)
		assert.Zero(t, store.CorpusLen(testTenant))
		b, err := store.GetBaseline(ctx, testTenant, "acct-1")
		require.NoError(t, err)
		assert.True(t, b.IsZero())
	})

	t.Run("corpus stays bounded", func(t *testing.T) {
		store := memory.NewStore(3)
		engine, learner := newTestEngine(t, store)
		for i := 0; i < 5; i++ {
			out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "10"))
			require.NoError(t, err)
			learner.Learn(ctx, out)
			assert.LessOrEqual(t, store.CorpusLen(testTenant), 3)
		}
	})

	t.Run("write failures surface as warnings", func(t *testing.T) {
		store := memory.NewStore(10)
		engine, _ := newTestEngine(t, store)
		out, err := engine.Analyze(ctx, testTenant, "acct-1", batchOf(t, "Acme", "10"))
		require.NoError(t, err)

		failing := errors.New("timeout")
		learner := service.NewLearner(
			&mockBaselineStore{setFunc: func(context.Context, model.BehaviorBaseline) error { return failing }},
			&mockCorpusStore{appendFunc: func(context.Context, model.CorpusEntry) error { return failing }},
			&mockCounterpartyStore{applyFunc: func(context.Context, []model.CounterpartyProfile) error { return failing }},
			engine.Behavior(), service.NewSubjectLocks(), nil, discardLogger(),
		)
		warnings := learner.Learn(ctx, out)
		require.Len(t, warnings, 3)
		for _, w := range warnings {
			assert.Contains(t, w, "persistence failure")
		}
	})
}

func TestLearner_ConcurrentSameSubject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(100)
	engine, learner := newTestEngine(t, store)

	const workers = 20
	batches := make([][]model.Transaction, workers)
	for i := range batches {
		batches[i] = batchOf(t, fmt.Sprintf("Vendor %d", i), "100")
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := engine.Analyze(ctx, testTenant, "acct-1", batches[i])
			if !assert.NoError(t, err) {
				return
			}
			assert.Empty(t, learner.Learn(ctx, out))
		}(i)
	}
	wg.Wait()

	b, err := store.GetBaseline(ctx, testTenant, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, workers, b.UpdateCount, "no lost baseline updates")
	assert.Equal(t, workers, store.CorpusLen(testTenant))
}

func TestEngine_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(100)
	engine, learner := newTestEngine(t, store)
	tenantA, tenantB := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		out, err := engine.Analyze(ctx, tenantA, "acct-1", batchOf(t, "Acme", "100", "100"))
		require.NoError(t, err)
		require.Empty(t, learner.Learn(ctx, out))
	}

	out, err := engine.Analyze(ctx, tenantB, "acct-1", batchOf(t, "Acme", "1000", "1000", "1000", "1000"))
	require.NoError(t, err)
	assert.Zero(t, out.Result.SubScores.Behavior, "tenant B starts cold")
	for _, p := range out.Result.DetectedPatterns {
		assert.NotEqual(t, valueobject.PatternAmountDeviation, p.Type)
		assert.NotEqual(t, valueobject.PatternFrequencyDeviation, p.Type)
	}
	// Only tenant B's own four transactions fall in the velocity window.
	require.Len(t, out.Features, 4)
	assert.InDelta(t, 4.0/24.0, out.Features[3].Velocity, 1e-9)
	require.Empty(t, learner.Learn(ctx, out))

	a, err := store.GetBaseline(ctx, tenantA, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.AverageAmount)
	assert.Equal(t, 2, a.UpdateCount)

	b, err := store.GetBaseline(ctx, tenantB, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, b.AverageAmount)
	assert.Equal(t, 1, b.UpdateCount)
	assert.Equal(t, tenantB, b.TenantID)

	assert.Equal(t, 2, store.CorpusLen(tenantA))
	assert.Equal(t, 1, store.CorpusLen(tenantB))

	profiles, err := store.GetProfiles(ctx, tenantB, []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 4, profiles["Acme"].TotalTransactions)
}

func TestSubjectLocks_ReleasesEntries(t *testing.T) {
	locks := service.NewSubjectLocks()
	unlock := locks.Lock("a")
	assert.Equal(t, 1, locks.Len())
	unlock()
	assert.Zero(t, locks.Len())
}
