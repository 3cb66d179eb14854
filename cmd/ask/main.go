// Command ask is an interactive terminal client: each line read from stdin
// is resolved as one turn of a single in-process conversation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/brasilapi"
	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/gemini"
	"github.com/couchcryptid/cep-weather-assistant/internal/chat"
	"github.com/couchcryptid/cep-weather-assistant/internal/config"
	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/intent"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
	"github.com/couchcryptid/cep-weather-assistant/internal/resolver"
	"github.com/couchcryptid/cep-weather-assistant/internal/session"
)

func main() {
	asJSON := flag.Bool("json", false, "print each outcome as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout carries only replies (or the -json stream).
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := observability.NewTerminalLogger(cfg, os.Stderr)
	metrics := observability.NewUnregisteredMetrics()

	var provider domain.Provider = brasilapi.NewClient(cfg.BrasilAPIBaseURL, brasilapi.Paths{
		ZipLookup:  cfg.ZipLookupPath,
		CitySearch: cfg.CitySearchPath,
		Weather:    cfg.WeatherPath,
	}, cfg.ProviderTimeout, cfg.ProviderRateLimit, logger, metrics)
	if cfg.ProviderCacheSize > 0 {
		provider = brasilapi.NewCachedProvider(provider, cfg.ProviderCacheSize, metrics)
	}

	var classifier domain.Classifier
	if cfg.GeminiEnabled {
		classifier = gemini.NewClassifier(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, logger)
	}

	engine := resolver.New(intent.New(classifier, cfg.ClassifierTimeout, logger, metrics), provider, logger, metrics)
	svc := chat.NewService(engine, session.NewStore(cfg.SessionTTL, cfg.SessionMaxTurns, metrics), nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, svc, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *chat.Service, asJSON bool) error {
	fmt.Fprintln(os.Stderr, "Pergunte por um CEP ou pela previsão do tempo (Ctrl+D para sair).")

	var conversationID string
	scanner := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return scanner.Err()
		}

		reply, err := svc.Handle(ctx, conversationID, scanner.Text())
		if errors.Is(err, chat.ErrEmptyMessage) {
			continue
		}
		if err != nil {
			return err
		}
		conversationID = reply.ConversationID

		if asJSON {
			if err := enc.Encode(reply.Outcome); err != nil {
				return fmt.Errorf("encode outcome: %w", err)
			}
			continue
		}
		if reply.Outcome.InitialMessage != "" {
			fmt.Fprintln(os.Stderr, reply.Outcome.InitialMessage)
		}
		fmt.Println(reply.Outcome.FinalMessage)
		fmt.Println()

		if ctx.Err() != nil {
			return nil
		}
	}
}
