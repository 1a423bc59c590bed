package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roommon/internal/api"
	"roommon/internal/config"
	"roommon/internal/engine"
	"roommon/internal/fhir"
	"roommon/internal/hub"
	"roommon/internal/ingest"
	"roommon/internal/logging"
	"roommon/internal/pipeline"
	"roommon/internal/storage"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	var (
		cfgMgr *config.Manager
		err    error
	)
	if *configPath != "" {
		cfgMgr, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfgMgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgMgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("room monitor starting", "version", version, "source_mode", cfg.Source.Mode, "storage_driver", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := store.Init(initCtx); err != nil {
		cancel()
		logger.Error("storage schema init failed", "err", err)
		os.Exit(1)
	}
	cancel()
	defer store.Close()

	writer := storage.NewWriter(store, cfg.Storage, logging.ForComponent(logger, "storage"))
	feed := hub.NewHub(cfg.Feed.SubscriberBuffer, logging.ForComponent(logger, "hub"))
	eng := engine.NewEngine(cfgMgr, logging.ForComponent(logger, "engine"))
	builder := fhir.NewBuilder("Patient/room-101", "Room 101 Occupant")

	source, fallback := buildSources(cfg, logger)
	defer source.Close()

	pipe := pipeline.New(source, fallback, eng, writer, feed, cfg.Source.ChannelBuffer, logging.ForComponent(logger, "pipeline"))

	api.Start(ctx, cfgMgr, store, writer, feed, builder, eng, pipe.Stats(), logging.ForComponent(logger, "api"), version)

	if *configPath != "" {
		go cfgMgr.Watch(3*time.Second,
			func(c *config.Config) {
				logger.Info("config reloaded",
					"sound_threshold", c.Monitor.SoundThreshold,
					"inactivity_seconds", c.Monitor.InactivitySeconds,
				)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done(),
		)
	}

	if err := pipe.Run(ctx); err != nil {
		logger.Error("pipeline stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("room monitor stopped")
}

// buildSources returns the configured source plus the mock fallback used
// when a live serial link exhausts its reconnect budget.
func buildSources(cfg *config.Config, logger *slog.Logger) (ingest.Source, ingest.Source) {
	switch strings.ToLower(cfg.Source.Mode) {
	case "serial":
		source := ingest.NewSerialSource(cfg.Source.Serial, logging.ForComponent(logger, "serial"))
		if cfg.Source.FallbackToMock {
			return source, ingest.NewMockSource(cfg.Source.Mock)
		}
		return source, nil
	case "kafka":
		source := ingest.NewKafkaSource(cfg.Source.Kafka, logging.ForComponent(logger, "kafka"))
		if cfg.Source.FallbackToMock {
			return source, ingest.NewMockSource(cfg.Source.Mock)
		}
		return source, nil
	default:
		return ingest.NewMockSource(cfg.Source.Mock), nil
	}
}
