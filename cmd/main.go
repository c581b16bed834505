// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventtix/eventtix/internal/auth"
	"github.com/eventtix/eventtix/internal/config"
	"github.com/eventtix/eventtix/internal/database"
	"github.com/eventtix/eventtix/internal/handler"
	"github.com/eventtix/eventtix/internal/repository"
	"github.com/eventtix/eventtix/internal/service"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	// ── 1. Pick the store backend ────────────────────────────────────────
	var store repository.Store
	switch cfg.Store {
	case config.StoreMemory:
		store = repository.NewMemoryStore()
		logger.Info().Msg("using in-memory store")
	default:
		pool, err := database.NewPool(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to database")
		}
		defer pool.Close()
		if err := repository.InitializeDBSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("initialize schema")
		}
		store = repository.NewPostgresStore(pool)
		logger.Info().Msg("connected to postgres")
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	bookingSvc := service.NewBookingService(store)
	userSvc := service.NewUserService(store, tokens)
	h := handler.New(bookingSvc, userSvc, logger)

	// ── 3. Build the router ──────────────────────────────────────────────
	r := handler.NewRouter(h, tokens, logger)

	// ── 4. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
