package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealwise"
	"mealwise/app"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	_, _, otelShutdown, err := mealwise.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("SETUP: Failed to build pipeline", "error", err)
		return
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      a.Handler(),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
	}

	go func() {
		slog.Info("SETUP: Starting HTTP server", "address", cfg.Server.Address, "timeout", cfg.Server.RequestTimeout)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("SETUP: Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("RESULT: Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("RESULT: Server forced to shutdown", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("RESULT: Failed to drain pipeline", "error", err)
	}

	slog.Info("RESULT: Server exited")
}
