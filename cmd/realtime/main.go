// Package main provides the CLI entry point for the realtime engine.
//
// The engine is the websocket layer of the chat backend: it tracks which
// connections are present in which rooms, fans events out to room members
// across every server process, and brokers AI-assistant exchanges.
//
// # Basic Usage
//
// Start the server:
//
//	realtime serve --config realtime.yaml
//
// # Environment Variables
//
// Values in the config file are env-expanded, so secrets are typically
// referenced as ${JWT_SECRET}, ${ANTHROPIC_API_KEY}, ${REDIS_URL}.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Rostammahabadi/better-slack-backend/internal/auth"
	"github.com/Rostammahabadi/better-slack-backend/internal/bot"
	"github.com/Rostammahabadi/better-slack-backend/internal/broadcast"
	"github.com/Rostammahabadi/better-slack-backend/internal/config"
	"github.com/Rostammahabadi/better-slack-backend/internal/gateway"
	"github.com/Rostammahabadi/better-slack-backend/internal/observability"
	"github.com/Rostammahabadi/better-slack-backend/internal/rooms"
	"github.com/Rostammahabadi/better-slack-backend/internal/router"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "realtime",
		Short:        "Realtime presence and room-coordination engine",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime engine",
		Long: `Start the realtime engine.

The server accepts websocket connections on /ws, serves Prometheus
metrics on /metrics and a liveness probe on /health. With a redis URL
configured, room events fan out across all server processes; without
one the engine runs single-node with in-process fanout.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  realtime serve

  # Start with custom config
  realtime serve --config /etc/realtime/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		EnableInsecure: cfg.Observability.Insecure,
	})

	logger.Info(ctx, "starting realtime engine",
		"version", version,
		"addr", cfg.Server.Addr(),
		"redis", cfg.Redis.URL != "",
		"bot", cfg.Bot.APIKey != "",
		"jwt_verification", cfg.Auth.JWTSecret != "",
	)

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}
	defer adapter.Close()

	var completer bot.Completer
	if cfg.Bot.APIKey != "" {
		completer, err = bot.NewAnthropicCompleter(bot.AnthropicConfig{
			APIKey:    cfg.Bot.APIKey,
			Model:     cfg.Bot.Model,
			MaxTokens: cfg.Bot.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("failed to build assistant: %w", err)
		}
	} else {
		logger.Warn(ctx, "no assistant api key configured; bot:message is disabled")
	}

	registry := rooms.NewRegistry()
	srv := gateway.New(gateway.Config{
		Auth:          auth.NewService(cfg.Auth.JWTSecret),
		Registry:      registry,
		Adapter:       adapter,
		AllowedOrigin: cfg.Server.FrontendOrigin,
		PingInterval:  cfg.Heartbeat.PingInterval,
		PongTimeout:   cfg.Heartbeat.PongTimeout,
		SendBuffer:    cfg.Heartbeat.SendBuffer,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})
	srv.SetDispatcher(router.New(router.Config{
		Registry:   registry,
		Emitter:    srv,
		Completer:  completer,
		BotTimeout: cfg.Bot.Timeout,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	}))

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"healthy"}`)
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown incomplete", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown incomplete", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("realtime.yaml"); err == nil {
			path = "realtime.yaml"
		} else {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// buildAdapter picks the fanout transport: redis when configured, an
// in-process bus otherwise.
func buildAdapter(cfg *config.Config, logger *observability.Logger) (broadcast.Adapter, error) {
	if cfg.Redis.URL == "" {
		logger.Warn(context.Background(), "no redis url configured; running single-node fanout")
		return broadcast.NewBus().NewAdapter(), nil
	}
	adapter, err := broadcast.NewRedisAdapter(cfg.Redis.URL, cfg.Redis.Channel, logger.Slog())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return adapter, nil
}
