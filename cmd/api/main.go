package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"marginalia/api/internal/aggregate"
	"marginalia/api/internal/app"
	"marginalia/api/internal/config"
	"marginalia/api/internal/session"
	"marginalia/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	aggStore, err := aggregate.NewRedisStore(cfg.RedisURL, cfg.AggregatePrefix)
	if err != nil {
		logger.Fatal("aggregate store connection failed", zap.Error(err))
	}
	defer aggStore.Close()

	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal("session store connection failed", zap.Error(err))
	}
	defer sessionStore.Close()

	service := app.New(cfg, dataStore, aggStore, sessionStore, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("marginalia api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
