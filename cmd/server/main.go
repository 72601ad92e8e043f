package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/huddlechat/huddle/internal/room"
	"github.com/huddlechat/huddle/internal/server"
)

// Exit codes to provide meaningful status to the operating system or a
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "huddle terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components and manages the server lifecycle, so that
// deferred cleanup executes before the process exits.
func run() (int, error) {
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: server.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	registry := room.NewRegistry(cfg.MaxParticipants)
	store := room.NewStore()
	router := room.NewRouter(registry, store, logger)

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	hub := server.NewHub(router, metrics, logger)
	go hub.Run()
	logger.Info("hub started", "max_participants", cfg.MaxParticipants)

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, cfg, logger))

	errCh := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return exitRuntime, err
	case sig := <-sigCh:
		logger.Info("received signal; shutting down", "signal", sig.String())
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return exitRuntime, err
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
