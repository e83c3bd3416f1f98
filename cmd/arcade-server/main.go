package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/api"
	"github.com/MJE43/neon-arcade/internal/app"
	"github.com/MJE43/neon-arcade/internal/config"
	"github.com/MJE43/neon-arcade/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logging.New("arcade-server", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	v := api.GetVersionInfo()
	log.Info("starting service",
		zap.String("version", v.EngineVersion),
		zap.String("commit", v.GitCommit),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("engine init", zap.Error(err))
	}
	core.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           core.Server().Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("api srv", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// after the listener so no bet lands between settling and close
	if err := core.Shutdown(shutdownCtx); err != nil {
		log.Error("engine shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
