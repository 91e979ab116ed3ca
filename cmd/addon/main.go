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

	"github.com/getsentry/sentry-go"

	"github.com/mhrabovsky/titulky/internal/cache"
	"github.com/mhrabovsky/titulky/internal/client"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/metadata"
	"github.com/mhrabovsky/titulky/internal/metrics"
	"github.com/mhrabovsky/titulky/internal/server"
)

func main() {
	cfg := config.GetConfig()
	logger := config.GetLogger()

	logger.Info().
		Str("titulky_domain", cfg.TitulkyDomain).
		Bool("credentials_configured", cfg.Username != "").
		Str("cache_provider", cfg.Cache.Provider).
		Int("server_port", cfg.Server.Port).
		Msg("Application started with configuration")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn().Err(err).Msg("Sentry initialization failed, continuing without it")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	blobCache, err := cache.New(cfg.Cache.Provider, cache.Options{
		Size:          cfg.Cache.Size,
		TTL:           config.ParseDurationOr(cfg.Cache.TTL, time.Hour),
		RedisAddress:  cfg.Cache.RedisAddress,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		Name:          "subtitles",
	})
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Cache.Provider).Msg("Failed to create cache")
	}

	titulky := client.NewClient(cfg, blobCache)
	defer func() {
		if err := titulky.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close client")
		}
	}()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resolver := metadata.NewOMDBResolver(httpClient, "", cfg.OmdbAPIKey)
	playback := metadata.NewRealDebridClient(httpClient, "")

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Server.Address, cfg.Metrics.Port)
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("Starting Prometheus metrics HTTP server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg("Failed to serve metrics")
			}
		}()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown metrics server")
			}
		}()
	}

	addon := server.New(titulky, resolver, playback)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler: addon.Router(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		}
	}()

	logger.Info().Str("address", httpServer.Addr).Msg("Starting addon HTTP server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Failed to serve HTTP")
	}

	logger.Info().Msg("Server stopped gracefully")
}
