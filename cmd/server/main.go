package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/banking/kyc-risk-service/internal/api"
	"github.com/banking/kyc-risk-service/internal/cache"
	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/events"
	"github.com/banking/kyc-risk-service/internal/metrics"
	"github.com/banking/kyc-risk-service/internal/narrative"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
	"github.com/banking/kyc-risk-service/internal/refdata"
	"github.com/banking/kyc-risk-service/internal/repository"
	"github.com/banking/kyc-risk-service/internal/screening"
	"github.com/banking/kyc-risk-service/internal/telemetry"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, cfg.Telemetry.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", logger.ErrorField(err))
	}
	log.Info("Server exited properly")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing and metrics
	tracing, err := telemetry.Setup(ctx, &cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", logger.ErrorField(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 4. Reference data and sanctions list
	tables := refdata.Defaults()
	if cfg.RefData.TablesPath != "" {
		if tables, err = refdata.LoadFile(cfg.RefData.TablesPath); err != nil {
			return err
		}
	}
	log.Info("reference data loaded",
		zap.Int("jurisdictions", tables.Jurisdictions.Len()),
		zap.Int("occupations", tables.Occupations.Len()),
		zap.Int("email_domains", tables.EmailDomains.Len()),
	)

	var sanctionsCache *cache.SanctionsCache
	if cfg.Redis.Enabled {
		if sanctionsCache, err = cache.NewSanctionsCache(&cfg.Redis); err != nil {
			return err
		}
		defer sanctionsCache.Close()
	}
	sanctions, err := loadSanctions(ctx, cfg, sanctionsCache, log)
	if err != nil {
		return err
	}

	// 5. Screening engine
	engine := screening.NewEngine(
		screening.NewSanctionsMatcher(&cfg.Screening, log),
		screening.NewRiskCalculator(&cfg.Screening),
		tables,
		sanctions,
		&cfg.Screening,
		log,
		m,
	)

	deps := api.Deps{
		Engine:   engine,
		Gatherer: reg,
		Config:   cfg,
		Logger:   log,
	}

	// 6. Optional adapters
	if cfg.Database.Enabled {
		repo, err := repository.New(&cfg.Database)
		if err != nil {
			return err
		}
		defer repo.Close()
		deps.Repository = repo
	}

	if cfg.Kafka.Enabled {
		producer, err := events.NewSyncProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		publisher := events.NewPublisher(producer, &cfg.Kafka, log, m)
		defer publisher.Close()
		deps.Publisher = publisher
	}

	var explainer narrative.Explainer = narrative.NewTemplateExplainer()
	if cfg.Narrative.Enabled {
		if explainer, err = narrative.NewLLMExplainer(&cfg.Narrative, log); err != nil {
			return err
		}
	}
	deps.Annotator = narrative.NewAnnotator(explainer, cfg.Narrative.Concurrency, m)

	// 7. Start Server (Graceful Shutdown)
	e := api.NewServer(deps)
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("Server started", zap.String("addr", serverAddr), zap.Int("sanctions_entries", engine.SanctionsCount()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// loadSanctions prefers the Redis snapshot and falls back to the JSON file,
// refreshing Redis from the file when it had nothing.
func loadSanctions(ctx context.Context, cfg *config.Config, c *cache.SanctionsCache, log *logger.Logger) ([]domain.SanctionsEntry, error) {
	if c != nil {
		entries, ok, err := c.Entries(ctx)
		if err != nil {
			log.Warn("sanctions cache unavailable, reading file", logger.ErrorField(err))
		} else if ok {
			updated, _ := c.LastUpdate(ctx)
			log.Info("sanctions list loaded from cache", zap.Int("entries", len(entries)), zap.Time("updated_at", updated))
			return entries, nil
		}
	}

	if cfg.RefData.SanctionsPath == "" {
		log.Warn("no sanctions list configured, screening without one")
		return nil, nil
	}
	entries, err := refdata.LoadSanctionsFile(cfg.RefData.SanctionsPath)
	if err != nil {
		return nil, err
	}
	log.Info("sanctions list loaded from file", zap.String("path", cfg.RefData.SanctionsPath), zap.Int("entries", len(entries)))

	if c != nil {
		if err := c.StoreEntries(ctx, entries, cfg.Redis.SanctionsCacheTTL); err != nil {
			log.Warn("failed to refresh sanctions cache", logger.ErrorField(err))
		}
	}
	return entries, nil
}
