// Command riskd serves the transaction risk scoring engine over gRPC, with
// health and metrics on HTTP and an optional Kafka batch feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/bibbank/risk-engine/internal/application/usecase"
	"github.com/bibbank/risk-engine/internal/auth"
	"github.com/bibbank/risk-engine/internal/domain/service"
	"github.com/bibbank/risk-engine/internal/infrastructure/config"
	"github.com/bibbank/risk-engine/internal/infrastructure/kafka"
	"github.com/bibbank/risk-engine/internal/infrastructure/metrics"
	"github.com/bibbank/risk-engine/internal/infrastructure/observability"
	"github.com/bibbank/risk-engine/internal/infrastructure/postgres"
	"github.com/bibbank/risk-engine/internal/infrastructure/redis"
	grpcpresentation "github.com/bibbank/risk-engine/internal/presentation/grpc"
	"github.com/bibbank/risk-engine/internal/presentation/rest"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("risk-engine exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration.
	cfg, err := config.Load(os.Getenv("RISK_CONFIG_FILE"))
	if err != nil {
		return err
	}
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return err
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("starting risk-engine",
		slog.String("http_port", cfg.HTTPPort),
		slog.String("grpc_port", cfg.GRPCPort),
		slog.String("environment", cfg.Environment),
	)

	// Tracing and metrics.
	shutdownTracer, err := observability.InitTracer(ctx, observability.TraceConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    true,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", slog.String("error", err.Error()))
		shutdownTracer = func(context.Context) error { return nil }
	}

	meterProvider, metricsHandler, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	recorder, err := metrics.NewRecorder(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	// Database connection and schema.
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.Postgres.MigrationsPath); err != nil {
		return err
	}
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(dbCtx, postgres.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	dbCancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Key-value collaborator.
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := redis.NewStore(redisClient, cfg.Redis.KeyPrefix, engineCfg.CorpusCap)

	// Alerting collaborator.
	kafkaCfg := kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		SASLEnabled:   cfg.Kafka.SASLMechanism != "",
		SASLMechanism: cfg.Kafka.SASLMechanism,
		SASLUsername:  cfg.Kafka.SASLUsername,
		SASLPassword:  cfg.Kafka.SASLPassword,
		TLS:           cfg.Kafka.TLS,
	}
	writer, err := kafka.NewWriter(kafkaCfg, cfg.Kafka.EventsTopic)
	if err != nil {
		return fmt.Errorf("failed to create kafka writer: %w", err)
	}
	publisher := kafka.NewPublisher(writer, cfg.Kafka.EventsTopic, logger)
	defer publisher.Close()

	// Domain services and use cases.
	analysisRepo := postgres.NewAnalysisRepository(pool)
	counterpartyRepo := postgres.NewCounterpartyRepository(pool)

	engine, err := service.NewEngine(engineCfg, kv, kv, counterpartyRepo, logger, service.WithMetrics(recorder))
	if err != nil {
		return err
	}
	learner := service.NewLearner(kv, kv, counterpartyRepo, engine.Behavior(), service.NewSubjectLocks(), recorder, logger)

	analyzeUC := usecase.NewAnalyzeTransactions(analysisRepo, publisher, engine, learner, logger)
	getUC := usecase.NewGetAnalysis(analysisRepo)
	listUC := usecase.NewListAnalyses(analysisRepo)

	// gRPC server.
	interceptor, err := authInterceptor(cfg.Auth, logger)
	if err != nil {
		return err
	}
	grpcServer, err := grpcpresentation.NewServer(
		grpcpresentation.NewRiskEngineHandler(analyzeUC, getUC, listUC, logger),
		grpcpresentation.ServerConfig{
			Address:    cfg.GRPCAddress(),
			CertFile:   cfg.TLS.CertFile,
			KeyFile:    cfg.TLS.KeyFile,
			Reflection: cfg.Environment == "development",
		},
		interceptor,
		logger,
	)
	if err != nil {
		return err
	}

	// HTTP server (health checks and metrics).
	health := rest.NewHealthHandler(cfg.ServiceName, map[string]rest.CheckFunc{
		"postgres": func(ctx context.Context) error { return postgres.HealthCheck(ctx, pool) },
		"redis":    kv.HealthCheck,
	}, metricsHandler, logger)
	httpMux := http.NewServeMux()
	health.RegisterRoutes(httpMux)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      httpMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start everything; the first failure or a signal stops the rest.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Start(); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server starting", slog.String("address", cfg.HTTPAddress()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if cfg.Kafka.ConsumeBatches {
		reader, err := kafka.NewReader(kafkaCfg, cfg.Kafka.BatchesTopic)
		if err != nil {
			return fmt.Errorf("failed to create kafka reader: %w", err)
		}
		consumer := kafka.NewBatchConsumer(reader, analyzeUC, logger)
		defer consumer.Close()

		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil {
				return fmt.Errorf("batch consumer error: %w", err)
			}
			return nil
		})
	}

	logger.Info("risk-engine started",
		slog.String("grpc_address", cfg.GRPCAddress()),
		slog.String("http_address", cfg.HTTPAddress()),
	)

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down risk-engine")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		grpcServer.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("meter provider shutdown error", slog.String("error", err.Error()))
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("risk-engine stopped")
	return nil
}

func authInterceptor(cfg config.AuthSettings, logger *slog.Logger) (grpc.UnaryServerInterceptor, error) {
	if cfg.Disabled {
		logger.Warn("authentication disabled; trusting the x-tenant-id header")
		return auth.TrustedTenantInterceptor(), nil
	}
	jwtService, err := auth.NewJWTServiceFromFile(cfg.PublicKeyFile, cfg.JWTSecret, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}
	return auth.UnaryServerInterceptor(jwtService, grpcpresentation.HealthCheckMethods...), nil
}
