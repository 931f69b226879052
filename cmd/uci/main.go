// Command uci serves the Urban Comfort Index API. It optionally consumes
// signals from Kafka, publishes computed scores, and recomputes every unit's
// score on a fixed interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/urban-comfort-index/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/urban-comfort-index/internal/adapter/kafka"
	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/adapter/sqlitestore"
	"github.com/couchcryptid/urban-comfort-index/internal/adapter/unitcache"
	"github.com/couchcryptid/urban-comfort-index/internal/config"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/pipeline"
	"github.com/couchcryptid/urban-comfort-index/internal/scoring"
)

// readiness is ready when every component is.
type readiness []sharedobs.ReadinessChecker

func (rs readiness) CheckReadiness(ctx context.Context) error {
	for _, r := range rs {
		if err := r.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

type storage interface {
	domain.Repository
	sharedobs.ReadinessChecker
}

func openStore(ctx context.Context, cfg *config.Config) (storage, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memstore.New(), func() error { return nil }, nil
	default:
		s, err := sqlitestore.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	repo := unitcache.New(store, cfg.UnitCacheSize, metrics)
	logger.Info("store opened", "driver", cfg.StoreDriver, "unit_cache_size", cfg.UnitCacheSize)

	checks := readiness{store}

	var publisher scoring.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
	}

	svc := scoring.NewService(repo, publisher, scoring.Options{
		WindowWeeks: cfg.WindowWeeks,
		UsePigeon:   cfg.UsePigeon,
		Weights:     cfg.Weights,
	}, logger, metrics)

	var wg sync.WaitGroup

	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		rescore := func(ctx context.Context, unitID, date string) error {
			return svc.RescoreAfterIngest(ctx, unitID, date, cfg.WindowWeeks, cfg.UsePigeon)
		}
		p := pipeline.New(reader, pipeline.NewTransformer(logger), pipeline.NewStoreLoader(repo, logger), rescore, logger, metrics, cfg.BatchSize)
		checks = append(checks, p)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
		logger.Info("kafka ingestion enabled", "topic", cfg.KafkaSignalTopic, "score_topic", cfg.KafkaScoreTopic)
	}

	if cfg.ScoreInterval > 0 {
		sched := scoring.NewScheduler(svc, clockwork.NewRealClock(), cfg.ScoreInterval, logger)
		checks = append(checks, sched)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, checks, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := closeStore(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
