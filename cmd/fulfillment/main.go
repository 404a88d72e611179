package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/config"
	"fulfillment-tracker/internal/microservices/notificator"
	"fulfillment-tracker/internal/microservices/tracker"
)

func main() {
	mode := flag.String("mode", "", "tracking-service | notification-subscriber | migrate")
	cfgPath := flag.String("config", "config.yaml", "path to YAML config")
	port := flag.Int("port", 0, "tracking-service: http port, overrides config")
	store := flag.String("store", tracker.StorePostgres, "tracking-service: postgres | memory")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	logger.Configure(cfg.Log.Level, os.Stdout)

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "tracking-service":
		err = tracker.Start(ctx, cfg, *store, logger.New("tracking-service"))
	case "notification-subscriber":
		lg.Info("service_started", map[string]any{"mode": "notification-subscriber"})
		err = notificator.Start(ctx, cfg, logger.New("notification-subscriber"))
	case "migrate":
		err = tracker.Migrate(ctx, cfg, logger.New("migrate"))
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: tracking-service | notification-subscriber | migrate")
		os.Exit(2)
	}
	if err != nil {
		lg.Error("fatal", err, map[string]any{"mode": *mode})
		os.Exit(1)
	}
}
