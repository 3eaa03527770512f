package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"launchpad/internal/app"
	"launchpad/internal/config"
	"launchpad/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: config/apply.yaml when present)")
	port := flag.String("port", "", "HTTP port (overrides http.port)")
	flag.Parse()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.HTTPPort = *port
	}

	log := logger.New(cfg.LogLevel)
	logger.SetDefault(log)
	if !cfg.IsProductionSecret() {
		log.Warnw("auth.jwt_secret is the default value")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Errorw("startup failed", "error", err)
		os.Exit(1)
	}
	if err := a.Sessions.Start(); err != nil {
		log.Errorw("start idle sweep", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTPPort, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("listen", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	a.Close(shutdownCtx)
	log.Infow("server exited")
}
