package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/brasilapi"
	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/gemini"
	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/cep-weather-assistant/internal/adapter/kafka"
	"github.com/couchcryptid/cep-weather-assistant/internal/chat"
	"github.com/couchcryptid/cep-weather-assistant/internal/config"
	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/intent"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
	"github.com/couchcryptid/cep-weather-assistant/internal/resolver"
	"github.com/couchcryptid/cep-weather-assistant/internal/session"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var provider domain.Provider = brasilapi.NewClient(cfg.BrasilAPIBaseURL, brasilapi.Paths{
		ZipLookup:  cfg.ZipLookupPath,
		CitySearch: cfg.CitySearchPath,
		Weather:    cfg.WeatherPath,
	}, cfg.ProviderTimeout, cfg.ProviderRateLimit, logger, metrics)
	if cfg.ProviderCacheSize > 0 {
		provider = brasilapi.NewCachedProvider(provider, cfg.ProviderCacheSize, metrics)
	}
	logger.Info("brasilapi provider configured",
		"base_url", cfg.BrasilAPIBaseURL,
		"timeout", cfg.ProviderTimeout,
		"rate_limit", cfg.ProviderRateLimit,
		"cache_size", cfg.ProviderCacheSize,
	)

	// AI classification is feature-flagged via GEMINI_ENABLED / GEMINI_API_KEY.
	var classifier domain.Classifier
	if cfg.GeminiEnabled {
		classifier = gemini.NewClassifier(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, logger)
		metrics.ClassifierEnabled.Set(1)
		logger.Info("gemini classification enabled", "model", cfg.GeminiModel, "timeout", cfg.ClassifierTimeout)
	} else {
		logger.Info("gemini classification disabled, using keyword rules")
	}

	interpreter := intent.New(classifier, cfg.ClassifierTimeout, logger, metrics)
	engine := resolver.New(interpreter, provider, logger, metrics)
	store := session.NewStore(cfg.SessionTTL, cfg.SessionMaxTurns, metrics)

	var (
		publisher chat.Publisher
		writer    *kafkaadapter.OutcomeWriter
	)
	if cfg.PublishOutcomes() {
		writer = kafkaadapter.NewOutcomeWriter(cfg, logger, metrics)
		publisher = writer
		logger.Info("outcome publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaOutcomeTopic)
	}

	svc := chat.NewService(engine, store, publisher, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return store.RunJanitor(gctx, janitorInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		svc.Drain()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
