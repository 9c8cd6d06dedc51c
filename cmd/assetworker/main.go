package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"asset-pipeline/internal/config"
	"asset-pipeline/internal/http/middleware"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/render"
	"asset-pipeline/internal/worker"
	"asset-pipeline/internal/workerclient"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

const (
	envFilePath      = ".env"
	serverAddrPrefix = ":"
	wakeBodyLimit    = "64K"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envErr := godotenv.Load(envFilePath)

	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	if envErr != nil {
		log.Debug("env file not loaded, using process environment")
	}

	newAPI := func(token string) worker.API {
		return workerclient.New(cfg.APIBaseURL, token, cfg.HTTPTimeout)
	}
	runner := worker.NewRunner(newAPI, render.NewCardRenderer(), cfg.PollBatch, cfg.DrainTimeout, log)
	wake := worker.NewWakeHandler(runner, cfg.APIBaseURL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomiddleware.Recover())
	e.GET("/health", wake.Health)
	e.POST("/wake", wake.Wake, echomiddleware.BodyLimit(wakeBodyLimit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("worker listening", "port", cfg.ListenPort, "api", cfg.APIBaseURL)
		if err := e.Start(serverAddrPrefix + cfg.ListenPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("wake server shutdown", "error", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Warn("drain cut short; leased jobs will be swept", "error", err)
	}
	return nil
}
