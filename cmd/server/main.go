package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barchat/internal/auth"
	"barchat/internal/config"
	"barchat/internal/database"
	"barchat/internal/directory"
	"barchat/internal/handlers"
	"barchat/internal/logging"
	ws "barchat/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail fast when either collaborator is unreachable at startup; the
	// broker never admits connections it cannot serve.
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to message store")
	}
	defer db.Close()

	venues, err := directory.NewMongoDirectory(ctx, cfg.Directory)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to venue directory")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = venues.Close(disconnectCtx)
	}()

	store := database.NewBreakerStore(db)
	lookup := directory.NewBreakerLookup(venues)

	authService := auth.NewService(db, cfg)

	registry := ws.NewRegistry()
	broker := ws.NewBroker(registry, store, cfg.Chat.PersistTimeout)
	gate := ws.NewGate(authService, lookup, cfg.Chat.GeofenceRadiusKm, cfg.Chat.AdmitTimeout,
		store.Available, lookup.Available)

	authHandlers := handlers.NewAuthHandlers(authService)
	wsHandlers := handlers.NewWebSocketHandlers(gate, registry, broker, cfg.Chat)
	healthHandlers := handlers.NewHealthHandlers(map[string]handlers.Pinger{
		"message_store":   db,
		"venue_directory": venues,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/register", authHandlers.Register)
		r.Post("/login", authHandlers.Login)
	})

	r.Get("/ws", wsHandlers.HandleWebSocket)
	r.Get("/healthz", healthHandlers.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logging.Info().Str("addr", cfg.Server.Addr).Msg("broker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown failed")
	}

	// No persistence obligation for in-flight broadcasts; membership is
	// not durable across restarts.
	registry.Shutdown()
	logging.Info().Msg("broker stopped")
}
