package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatewaylabs/api-gateway/config"
	"github.com/gatewaylabs/api-gateway/internal/circuitbreaker"
	"github.com/gatewaylabs/api-gateway/internal/gateway"
	"github.com/gatewaylabs/api-gateway/internal/healthcache"
	"github.com/gatewaylabs/api-gateway/internal/httpserver"
	"github.com/gatewaylabs/api-gateway/internal/metrics"
	"github.com/gatewaylabs/api-gateway/internal/proxy"
	"github.com/gatewaylabs/api-gateway/internal/registry"
	"github.com/gatewaylabs/api-gateway/internal/tracker"
	"github.com/gatewaylabs/api-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("failed to build service registry", slog.Any("err", err))
		os.Exit(1)
	}

	timings, err := parseTimings(cfg.Gateway)
	if err != nil {
		log.Error("failed to parse gateway timings", slog.Any("err", err))
		os.Exit(1)
	}

	m := metrics.New()
	breakers := circuitbreaker.NewRegistry(cfg.Gateway.FailureThreshold, timings.cooldown)
	probe := healthcache.NewProbe(timings.probeTimeout, log)
	health := healthcache.New(probe, timings.healthTTL, log, m)

	dispatcher := proxy.NewDispatcher(log, reg, breakers, health, m, timings.proxyTimeout, timings.cooldown)
	gatewayHandler := gateway.NewHandler(log, reg, health, cfg.Gateway.Version)
	requestTracker := tracker.New(log, m, cfg.Gateway.Version)

	mux := setupRouter(requestTracker, gatewayHandler, dispatcher, m)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.String("version", cfg.Gateway.Version),
		slog.Int("services", len(reg.Routes())))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config, log *slog.Logger) (*registry.Registry, error) {
	routes := make([]*registry.Route, 0, len(cfg.Services))

	for _, svc := range cfg.Services {
		route, err := registry.NewRoute(svc.Name, svc.URL, svc.PathPrefixes, svc.HealthPath)
		if err != nil {
			log.Error("Failed to build route",
				slog.String("service", svc.Name),
				slog.String("url", svc.URL),
				slog.String("error", err.Error()))
			return nil, err
		}

		log.Info("Registered service",
			slog.String("service", svc.Name),
			slog.String("url", route.BaseURL().String()),
			slog.Any("prefixes", svc.PathPrefixes))

		routes = append(routes, route)
	}

	if len(routes) == 0 {
		return nil, errors.New("no services configured")
	}

	return registry.NewRegistry(routes), nil
}

type timings struct {
	cooldown     time.Duration
	healthTTL    time.Duration
	probeTimeout time.Duration
	proxyTimeout time.Duration
}

func parseTimings(gc config.GatewayConfig) (timings, error) {
	var t timings
	var err error

	if t.cooldown, err = time.ParseDuration(gc.CooldownPeriod); err != nil {
		return t, err
	}
	if t.healthTTL, err = time.ParseDuration(gc.HealthCacheTTL); err != nil {
		return t, err
	}
	if t.probeTimeout, err = time.ParseDuration(gc.ProbeTimeout); err != nil {
		return t, err
	}
	if t.proxyTimeout, err = time.ParseDuration(gc.ProxyTimeout); err != nil {
		return t, err
	}

	return t, nil
}
