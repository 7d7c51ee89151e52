package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/bibbank/risk-engine/internal/application/dto"
	"github.com/bibbank/risk-engine/internal/domain/model"
)

// TenantHeader carries the tenant when the message body omits it.
const TenantHeader = "tenant_id"

// MessageReader is the subset of *kafkago.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Analyzer runs one batch through the analysis use case.
type Analyzer interface {
	Execute(ctx context.Context, req dto.AnalyzeTransactionsRequest) (dto.AnalysisResponse, error)
}

// BatchConsumer feeds transaction batches from a topic into the analysis
// use case. Malformed and invalid batches are logged and committed so they
// do not block the partition. Any other failure is retried on the same
// message; no later offset is committed until it succeeds. When the retry
// budget runs out Start returns, leaving the offset uncommitted so the
// group redelivers it.
type BatchConsumer struct {
	reader     MessageReader
	analyzer   Analyzer
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// ConsumerOption configures a BatchConsumer.
type ConsumerOption func(*BatchConsumer)

// WithBackOff replaces the retry policy used for failed batches.
func WithBackOff(fn func() backoff.BackOff) ConsumerOption {
	return func(c *BatchConsumer) { c.newBackOff = fn }
}

// NewBatchConsumer creates a consumer.
func NewBatchConsumer(reader MessageReader, analyzer Analyzer, logger *slog.Logger, opts ...ConsumerOption) *BatchConsumer {
	c := &BatchConsumer{reader: reader, analyzer: analyzer, logger: logger, newBackOff: defaultBackOff}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// Start consumes until ctx is cancelled.
func (c *BatchConsumer) Start(ctx context.Context) error {
	c.logger.Info("batch consumer starting")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("batch consumer stopping due to context cancellation")
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}

		if err := c.process(ctx, m); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("batch consumer stopping due to context cancellation")
				return nil
			}
			return fmt.Errorf("analyzing offset %d of %s/%d: %w", m.Offset, m.Topic, m.Partition, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("commit error",
				"topic", m.Topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

// process runs handle until it succeeds, the policy gives up or ctx ends.
func (c *BatchConsumer) process(ctx context.Context, m kafkago.Message) error {
	policy := backoff.WithContext(c.newBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		return c.handle(ctx, m)
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("batch analysis failed, retrying",
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
			"retry_in", wait,
			"error", err,
		)
	})
}

func (c *BatchConsumer) handle(ctx context.Context, m kafkago.Message) error {
	var req dto.AnalyzeTransactionsRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		c.logger.Warn("dropping malformed batch", "offset", m.Offset, "error", err)
		return nil
	}
	if req.TenantID == uuid.Nil {
		for _, h := range m.Headers {
			if h.Key != TenantHeader {
				continue
			}
			if id, err := uuid.ParseBytes(h.Value); err == nil {
				req.TenantID = id
			}
		}
	}

	resp, err := c.analyzer.Execute(ctx, req)
	if errors.Is(err, model.ErrInvalidInput) {
		c.logger.Info("dropping invalid batch", "offset", m.Offset, "subject_id", req.SubjectID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Debug("batch analyzed",
		"analysis_id", resp.ID,
		"subject_id", resp.SubjectID,
		"overall_score", resp.OverallScore,
	)
	return nil
}

// Close closes the reader.
func (c *BatchConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}
