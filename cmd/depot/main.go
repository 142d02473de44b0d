// Depot is a device inventory service. It tracks physical units through
// their lifecycle and exposes a REST API for intake, reservation,
// deployment, maintenance, and retirement.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/depotlabs/depot/internal/config"
	"github.com/depotlabs/depot/internal/event"
	"github.com/depotlabs/depot/internal/inventory"
	"github.com/depotlabs/depot/internal/notify"
	"github.com/depotlabs/depot/internal/registry"
	"github.com/depotlabs/depot/internal/server"
	"github.com/depotlabs/depot/internal/store"
	"github.com/depotlabs/depot/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *configPath); err != nil {
		logger.Fatal("depot exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.GetString("storage.path"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	bus := event.NewBus(logger.Named("bus"))

	reg := registry.New(logger)
	if err := reg.Register(inventory.New()); err != nil {
		return err
	}
	if err := reg.Register(notify.New()); err != nil {
		return err
	}

	if err := reg.InitAll(cfg, db, bus); err != nil {
		return fmt.Errorf("init modules: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.StartAll(ctx); err != nil {
		return fmt.Errorf("start modules: %w", err)
	}

	addr := cfg.GetString("server.host") + ":" + cfg.GetString("server.port")
	srv := server.New(addr, reg, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("depot started",
		zap.String("addr", addr),
		zap.String("version", version.Short()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	cancel()
	reg.StopAll()

	logger.Info("depot stopped")
	return nil
}
