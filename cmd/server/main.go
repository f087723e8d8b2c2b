package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/server"
	"github.com/iudanet/forwardsync/internal/server/handlers"
	"github.com/iudanet/forwardsync/internal/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	port := flag.Int("port", server.DefaultPort, "Port to listen on (0 = any free port)")
	dbPath := flag.String("db", "forwardsync.db", "Path to local database")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(logger, *port, *dbPath); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, port int, dbPath string) error {
	ctx := context.Background()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	eng := engine.New(store, logger)
	handler := handlers.NewSyncHandler(logger, eng)
	srv := server.New(logger, handler)

	addr, err := srv.Start(port)
	if err != nil {
		return err
	}
	logger.Info("peers can connect to this device", "addr", addr)

	// Ждем сигнал остановки
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

func printVersion() {
	fmt.Printf("ForwardSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
