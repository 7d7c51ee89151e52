package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/risk-engine/internal/domain/model"
)

var (
	fixedNow   = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	testTenant = uuid.MustParse("7b0d7c2e-4f4a-4a8e-9a57-0d6c9a3f1e21")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// batchOf builds a batch for one counterparty from decimal strings.
func batchOf(t *testing.T, counterparty string, amounts ...string) []model.Transaction {
	t.Helper()
	inputs := make([]model.TransactionInput, 0, len(amounts))
	for i, a := range amounts {
		inputs = append(inputs, model.TransactionInput{
			ID:           fmt.Sprintf("%s-%d", counterparty, i),
			Amount:       decimal.RequireFromString(a),
			Counterparty: counterparty,
			Timestamp:    fixedNow.Add(time.Duration(i) * time.Minute),
		})
	}
	batch, err := model.NewBatch(inputs, fixedNow)
	require.NoError(t, err)
	return batch
}

func concat(batches ...[]model.Transaction) []model.Transaction {
	var out []model.Transaction
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// --- Mock stores ---

type mockBaselineStore struct {
	getFunc func(ctx context.Context, subjectID string) (model.BehaviorBaseline, error)
	setFunc func(ctx context.Context, b model.BehaviorBaseline) error
}

func (m *mockBaselineStore) GetBaseline(ctx context.Context, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, subjectID)
	}
	return model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}, nil
}

func (m *mockBaselineStore) SetBaseline(ctx context.Context, b model.BehaviorBaseline) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, b)
	}
	return nil
}

type mockCorpusStore struct {
	appendFunc func(ctx context.Context, e model.CorpusEntry) error
	recentFunc func(ctx context.Context, limit int) ([]model.CorpusEntry, error)
	appended   []model.CorpusEntry
}

func (m *mockCorpusStore) AppendEntry(ctx context.Context, e model.CorpusEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, e)
	}
	m.appended = append(m.appended, e)
	return nil
}

func (m *mockCorpusStore) RecentEntries(ctx context.Context, _ uuid.UUID, limit int) ([]model.CorpusEntry, error) {
	if m.recentFunc != nil {
		return m.recentFunc(ctx, limit)
	}
	return nil, nil
}

type mockCounterpartyStore struct {
	getFunc   func(ctx context.Context, names []string) (map[string]model.CounterpartyProfile, error)
	applyFunc func(ctx context.Context, deltas []model.CounterpartyProfile) error
}

func (m *mockCounterpartyStore) GetProfiles(ctx context.Context, _ uuid.UUID, names []string) (map[string]model.CounterpartyProfile, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, names)
	}
	return nil, nil
}

func (m *mockCounterpartyStore) ApplyDeltas(ctx context.Context, _ uuid.UUID, deltas []model.CounterpartyProfile) error {
	if m.applyFunc != nil {
		return m.applyFunc(ctx, deltas)
	}
	return nil
}
