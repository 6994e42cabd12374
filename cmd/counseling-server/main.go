package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"counseling/backend/internal/app"
	"counseling/backend/internal/config"
	grpcTransport "counseling/backend/internal/transport/grpc"
	httpTransport "counseling/backend/internal/transport/http"
)

const (
	serviceName    = "counseling-server"
	healthInterval = 10 * time.Second
	version        = "dev"
)

func main() {
	log := app.NewLogger(serviceName, "info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = app.NewLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Wire(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer deps.Close(log)

	health := httpTransport.NewHealthHandler(serviceName, version).
		AddCheck("postgres", deps.PingDB, true).
		AddCheck("redis", deps.PingRedis, false)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpTransport.NewRouter(httpTransport.RouterConfig{
			Scheduling:    deps.Scheduling,
			Notifications: deps.Notifications,
			Health:        health,
			Log:           log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcTransport.NewServer(log, cfg.RequestTimeout)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	go grpcTransport.ReportHealth(ctx, healthServer, log, healthInterval, map[string]grpcTransport.Check{
		"postgres": deps.PingDB,
		"redis":    deps.PingRedis,
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}
	grpcTransport.Shutdown(log, grpcServer, cfg.ShutdownTimeout)
}
