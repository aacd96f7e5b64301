package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"alertcharts/internal/alerting"
	"alertcharts/internal/config"
	"alertcharts/internal/dashboard"
	"alertcharts/internal/logger"
	"alertcharts/internal/server"
	"alertcharts/internal/storage"
	"alertcharts/internal/watch"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", ":8080", "address for the web server")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New("alertcharts", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	registry, err := alerting.NewRegistry(cfg.DataSources, cfg.AlertIndex, lg)
	if err != nil {
		lg.Fatal("init data sources", zap.Error(err))
	}
	lg.Info("data sources loaded",
		zap.Int("count", len(registry.Clients())),
		zap.String("default", registry.DefaultID()),
	)

	cache, err := storage.NewAlertCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	if err != nil {
		lg.Fatal("init cache", zap.Error(err))
	}

	metrics := server.NewMetrics()
	svc := dashboard.NewService(registry, cache, metrics, lg.Named("dashboard"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := watch.NewRefresher(svc, cfg.Watch, lg.Named("refresher"))
	if err := refresher.Start(ctx); err != nil {
		lg.Fatal("start refresher", zap.Error(err))
	}
	defer refresher.Stop()

	var prober *watch.Prober
	if cfg.Probe.Enabled {
		targets := make([]watch.Pinger, 0, len(registry.Clients()))
		for _, cli := range registry.Clients() {
			targets = append(targets, cli)
		}
		prober = watch.NewProber(targets, time.Duration(cfg.Probe.IntervalSeconds)*time.Second, cfg.Probe.HistorySize, lg.Named("prober"))
		prober.Start()
		defer prober.Stop()
	}

	srv := server.New(*addr, svc, server.Options{
		Prober:       prober,
		Metrics:      metrics,
		Logger:       lg.Named("http"),
		PushInterval: time.Duration(cfg.Stream.PushIntervalSeconds) * time.Second,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Warn("server shutdown", zap.Error(err))
		}
	}()

	lg.Info("alertcharts listening", zap.String("addr", *addr))
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("server error", zap.Error(err))
	}
}
