package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/application/usecase"
	"github.com/bibbank/risk-engine/internal/domain/event"
	"github.com/bibbank/risk-engine/internal/domain/port"
	"github.com/bibbank/risk-engine/internal/domain/service"
	"github.com/bibbank/risk-engine/internal/infrastructure/badger"
	"github.com/bibbank/risk-engine/internal/infrastructure/config"
	"github.com/bibbank/risk-engine/internal/infrastructure/observability"
)

// localTenant owns analyses created without --tenant.
var localTenant = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// app is the offline wiring: every port is served by one Badger store.
type app struct {
	store    *badger.Store
	analyze  *usecase.AnalyzeTransactions
	get      *usecase.GetAnalysis
	list     *usecase.ListAnalyses
	tenantID uuid.UUID
}

func openApp(opts *rootOptions) (*app, error) {
	tenantID, err := uuid.Parse(opts.tenant)
	if err != nil {
		return nil, fmt.Errorf("invalid --tenant: %w", err)
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return nil, err
	}

	logger := observability.InitLogger(observability.LogConfig{
		Output: os.Stderr,
		Level:  opts.logLevel,
		Format: "text",
	})

	if opts.dbPath != "" {
		if err := os.MkdirAll(opts.dbPath, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := badger.Open(opts.dbPath, engineCfg.CorpusCap)
	if err != nil {
		return nil, err
	}

	engine, err := service.NewEngine(engineCfg, store, store, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	learner := service.NewLearner(store, store, store, engine.Behavior(), service.NewSubjectLocks(), nil, logger)

	return &app{
		store:    store,
		analyze:  usecase.NewAnalyzeTransactions(store, logPublisher{logger: logger}, engine, learner, logger),
		get:      usecase.NewGetAnalysis(store),
		list:     usecase.NewListAnalyses(store),
		tenantID: tenantID,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// logPublisher stands in for the alerting collaborator offline: events are
// logged instead of sent.
type logPublisher struct {
	logger *slog.Logger
}

var _ port.EventPublisher = logPublisher{}

func (p logPublisher) Publish(ctx context.Context, events ...event.DomainEvent) error {
	for _, e := range events {
		p.logger.InfoContext(ctx, "domain event",
			slog.String("event_type", e.EventType()),
			slog.String("aggregate_id", e.AggregateID().String()),
		)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
