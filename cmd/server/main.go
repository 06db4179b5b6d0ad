package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Tyrowin/chathub/internal/logger"
	"github.com/Tyrowin/chathub/internal/server"
	"github.com/Tyrowin/chathub/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	config := server.NewConfigFromEnv()

	log, level, err := logger.New(config.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "chathub")
	switch {
	case errors.Is(err, tracing.ErrNoExporter):
		log.Debug("tracing disabled", zap.Error(err))
	case err != nil:
		log.Warn("tracing init failed", zap.Error(err))
	default:
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(config, log, reg)
	srv.ServeLogLevel(level)
	srv.Start()

	httpServer := server.CreateServer(srv.Config().Port, srv.Routes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	if err := srv.ShutdownHTTP(httpServer, shutdownTimeout); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		log.Warn("hub shutdown incomplete", zap.Error(err))
	}
	return nil
}
