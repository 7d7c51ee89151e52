//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/model"
	riskredis "github.com/bibbank/risk-engine/internal/infrastructure/redis"
	"github.com/bibbank/risk-engine/internal/testutil"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRedisContainer(ctx, t)

	t.Run("unknown baseline is zero", func(t *testing.T) {
		store := riskredis.NewStore(rc.Client, "t1", 10)
		b, err := store.GetBaseline(ctx, testutil.TestTenantID, "acct-1")
		require.NoError(t, err)
		assert.True(t, b.IsZero())
		assert.Equal(t, "acct-1", b.SubjectID)
		assert.Equal(t, testutil.TestTenantID, b.TenantID)
	})

	t.Run("baseline round trip", func(t *testing.T) {
		store := riskredis.NewStore(rc.Client, "t2", 10)
		want := model.NewBaselineFromStats(testutil.TestTenantID, "acct-1", model.BatchStats{AverageAmount: 120, Frequency: 4, Count: 3}, testutil.TestNow)
		require.NoError(t, store.SetBaseline(ctx, want))

		got, err := store.GetBaseline(ctx, testutil.TestTenantID, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, want.AverageAmount, got.AverageAmount)
		assert.Equal(t, 1, got.UpdateCount)
		assert.True(t, want.LastUpdated.Equal(got.LastUpdated))

		other, err := store.GetBaseline(ctx, uuid.New(), "acct-1")
		require.NoError(t, err)
		assert.True(t, other.IsZero(), "baselines are per tenant")
	})

	t.Run("corpus is bounded and newest first", func(t *testing.T) {
		store := riskredis.NewStore(rc.Client, "t3", 3)
		for i := 0; i < 5; i++ {
			tx, err := model.NewTransaction(model.TransactionInput{
				ID:           fmt.Sprintf("t-%d", i),
				Amount:       decimal.NewFromInt(int64(10 + i)),
				Counterparty: "Acme",
			}, 0, testutil.TestNow)
			require.NoError(t, err)
			require.NoError(t, store.AppendEntry(ctx, model.CorpusEntry{
				Timestamp:    testutil.TestNow,
				TenantID:     testutil.TestTenantID,
				SubjectID:    "acct-1",
				Transactions: []model.Transaction{tx},
			}))
		}

		n, err := store.CorpusLen(ctx, testutil.TestTenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		foreign, err := store.RecentEntries(ctx, uuid.New(), 0)
		require.NoError(t, err)
		assert.Empty(t, foreign)

		entries, err := store.RecentEntries(ctx, testutil.TestTenantID, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "t-4", entries[0].Transactions[0].ID())
		assert.Equal(t, "14", entries[0].Transactions[0].Amount().String())
	})

	t.Run("concurrent appends respect the cap", func(t *testing.T) {
		store := riskredis.NewStore(rc.Client, "t4", 5)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.AppendEntry(ctx, model.CorpusEntry{TenantID: testutil.TestTenantID, SubjectID: "acct-2", Timestamp: testutil.TestNow}))
			}()
		}
		wg.Wait()

		n, err := store.CorpusLen(ctx, testutil.TestTenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("baseline updates from separate clients are not lost", func(t *testing.T) {
		// Two stores over the same keys stand in for two riskd replicas.
		replicas := []*riskredis.Store{
			riskredis.NewStore(rc.Client, "t5", 10),
			riskredis.NewStore(rc.Client, "t5", 10),
		}
		bump := func(b model.BehaviorBaseline) model.BehaviorBaseline {
			return b.Blend(model.BatchStats{AverageAmount: 100, Count: 1}, 0.3, testutil.TestNow)
		}

		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(store *riskredis.Store) {
				defer wg.Done()
				_, err := store.UpdateBaseline(ctx, testutil.TestTenantID, "acct-3", bump)
				assert.NoError(t, err)
			}(replicas[i%2])
		}
		wg.Wait()

		got, err := replicas[0].GetBaseline(ctx, testutil.TestTenantID, "acct-3")
		require.NoError(t, err)
		assert.Equal(t, writers, got.UpdateCount)
		assert.Equal(t, 100.0, got.AverageAmount)
	})
}
