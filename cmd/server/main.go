package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightcipher/dreamjournal/internal/api"
	"github.com/nightcipher/dreamjournal/internal/auth"
	"github.com/nightcipher/dreamjournal/internal/config"
	"github.com/nightcipher/dreamjournal/internal/core"
	"github.com/nightcipher/dreamjournal/internal/platform/logger"
	"github.com/nightcipher/dreamjournal/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("dreamjournal", cfg.LogLevel)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	// Initialize AI adapter; a missing API key is reported per call, not here.
	llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, cfg.GenModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI adapter")
	}
	defer llmService.Close()
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set; entries will be created without AI metadata")
	}

	dreamService := core.NewDreamService(dbStore, llmService, llmService.ModelName(), log)

	tokens := auth.NewTokens(cfg.JWTSecret)
	apiHandler := api.NewAPIHandler(dbStore, dreamService, tokens, log)
	router := api.NewRouter(apiHandler, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", srv.Addr).Msg("server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}
