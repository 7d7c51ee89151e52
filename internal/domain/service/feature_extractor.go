package service

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/domain/model"
)

// VelocityWindow is the trailing window used for the velocity feature.
const VelocityWindow = 24 * time.Hour

// FeatureExtractor projects transactions into feature vectors. It is a pure
// function of the batch and the historical context.
type FeatureExtractor struct {
	historyLimit int
}

// NewFeatureExtractor creates a FeatureExtractor that reads at most
// historyLimit corpus amounts for the historical rank feature.
func NewFeatureExtractor(historyLimit int) *FeatureExtractor {
	return &FeatureExtractor{historyLimit: historyLimit}
}

// Extract returns one FeatureVector per transaction, in batch order. The
// velocity timeline only counts corpus entries of the same tenant and subject.
func (e *FeatureExtractor) Extract(tenantID uuid.UUID, subjectID string, batch []model.Transaction, history []model.CorpusEntry) []model.FeatureVector {
	if len(batch) == 0 {
		return nil
	}

	counterpartyCounts := make(map[string]int, len(batch))
	for _, t := range batch {
		counterpartyCounts[t.Counterparty()]++
	}

	// Timeline of every same-subject transaction, batch plus corpus.
	timeline := model.SubjectTimestamps(history, tenantID, subjectID)
	for _, t := range batch {
		timeline = append(timeline, t.Timestamp())
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })

	historical := absAll(model.CorpusAmounts(history, e.historyLimit))
	sort.Float64s(historical)

	n := float64(len(batch))
	vectors := make([]model.FeatureVector, 0, len(batch))
	for _, t := range batch {
		amount := math.Abs(t.AmountFloat())
		ts := t.Timestamp()

		vectors = append(vectors, model.FeatureVector{
			TransactionID:        t.ID(),
			LogAmount:            math.Log1p(amount),
			Hour:                 float64(ts.Hour()) / 23,
			Weekday:              float64(ts.Weekday()) / 6,
			CounterpartyFreq:     float64(counterpartyCounts[t.Counterparty()]) / n,
			Velocity:             float64(countInWindow(timeline, ts)) / 24,
			HistoricalAmountRank: percentileRank(historical, amount),
		})
	}
	return vectors
}

// countInWindow counts timestamps in (ts-VelocityWindow, ts] of a sorted
// timeline.
func countInWindow(sorted []time.Time, ts time.Time) int {
	start := ts.Add(-VelocityWindow)
	lo := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(start) })
	hi := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(ts) })
	return hi - lo
}

// percentileRank returns the mid-rank of v within sorted, or the neutral
// midpoint when there is no history.
func percentileRank(sorted []float64, v float64) float64 {
	if len(sorted) == 0 {
		return model.NeutralHistoryFeature
	}
	below := sort.SearchFloat64s(sorted, v)
	upTo := sort.Search(len(sorted), func(i int) bool { return sorted[i] > v })
	equal := upTo - below
	return (float64(below) + 0.5*float64(equal)) / float64(len(sorted))
}

func absAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}
