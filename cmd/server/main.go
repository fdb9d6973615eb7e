// Command server runs the event extraction HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventparse/chrono/internal/api"
	"github.com/eventparse/chrono/internal/cache"
	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/database"
	"github.com/eventparse/chrono/internal/llm"
	"github.com/eventparse/chrono/internal/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	generateConfig := flag.Bool("generate-config", false, "write a sample configuration file and exit")
	flag.Parse()

	if *generateConfig {
		if err := config.GenerateSample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	store, err := database.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	provider, err := llm.NewProvider(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LLM provider")
	}
	if provider != nil {
		log.Info().Str("provider", provider.Name()).Msg("Semantic backend configured")
	} else {
		log.Info().Msg("No semantic backend configured, running pattern and backup strategies only")
	}

	resultCache := cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	orch := pipeline.New(cfg, nil, pipeline.NewProviderStrategy(provider), resultCache)

	// Periodic cache sweep so expired entries do not linger until the next
	// lookup touches them.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Cache.SweepSchedule, func() {
		if removed := resultCache.CleanupExpired(); removed > 0 {
			log.Debug().Int("removed", removed).Msg("Cache sweep complete")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Cache.SweepSchedule).Msg("Invalid cache sweep schedule")
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(cfg, orch, resultCache, store, provider)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PipelineTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
