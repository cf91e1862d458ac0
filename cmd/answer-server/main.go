package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/VenkatGGG/formfill/internal/answercache"
	"github.com/VenkatGGG/formfill/internal/answering"
	"github.com/VenkatGGG/formfill/internal/api"
	"github.com/VenkatGGG/formfill/internal/config"
	"github.com/VenkatGGG/formfill/internal/inference"
	"github.com/VenkatGGG/formfill/internal/question"
)

const shutdownTimeoutFloor = time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "answer-server",
		Short:         "Serve cached, model-backed answers to form questions",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			cfg, err := config.LoadServer()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			logger := newLogger(cfg.LogFormat, cfg.LogLevel)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("answer server failed", "err", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	return cmd
}

func run(ctx context.Context, cfg config.Server, logger *slog.Logger) error {
	store, closer, err := answercache.Open(ctx, answercache.Options{
		Backend:     cfg.CacheBackend,
		FilePath:    cfg.CacheFile,
		BadgerDir:   cfg.CacheDir,
		RedisAddr:   cfg.RedisAddr,
		RedisPrefix: cfg.RedisPrefix,
		PostgresDSN: cfg.DatabaseURL,
		HotSize:     cfg.CacheHotSize,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("open answer cache: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("close answer cache", "err", err)
		}
	}()
	logger.Info("answer cache ready", "backend", cfg.CacheBackend, "hot_size", cfg.CacheHotSize)

	gateway, err := inference.NewOpenRouterGateway(inference.OpenRouterOptions{
		APIKey:           cfg.OpenRouterAPIKey,
		Model:            cfg.OpenRouterModel,
		BaseURL:          cfg.OpenRouterBaseURL,
		Timeout:          cfg.InferenceTimeout,
		ExtractImageText: cfg.ExtractImageText,
		Logger:           logger,
	})
	if err != nil {
		return &config.ConfigurationError{Key: "OPENROUTER_API_KEY", Reason: err.Error()}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var hasher answering.ImageHasher
	if cfg.ImageHashing {
		hasher = question.NewImageHasher(cfg.ImageHashTimeout)
	}
	service, err := answering.NewService(answering.Options{
		Store:   store,
		Gateway: gateway,
		Hasher:  hasher,
		Metrics: answering.NewMetrics(registry),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(api.Options{
		Answers:         service,
		Logger:          logger,
		RoutePrefix:     cfg.RoutePrefix,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		APIKey:          cfg.APIKey,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if cfg.TLSPartial() {
		logger.Warn("TLS_CERT_FILE and TLS_KEY_FILE must both be set; serving plain HTTP")
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			logger.Info("answer server listening", "addr", addr, "scheme", "https", "model", cfg.OpenRouterModel)
			err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Info("answer server listening", "addr", addr, "scheme", "http", "model", cfg.OpenRouterModel)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down answer server")
	timeout := cfg.ShutdownTimeout
	if timeout < shutdownTimeoutFloor {
		timeout = shutdownTimeoutFloor
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
