package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel/internal/alerts"
	"sentinel/internal/api"
	"sentinel/internal/catalog"
	"sentinel/internal/config"
	"sentinel/internal/engine"
	"sentinel/internal/ingest"
	"sentinel/internal/logging"
	"sentinel/internal/metrics"
	"sentinel/internal/model"
	"sentinel/internal/storage"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	writeConfig := flag.Bool("write-config", false, "write the default config to the given path and exit")
	flag.Parse()

	if *writeConfig {
		path := config.ResolvePath(*configPath)
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			fmt.Fprintln(os.Stderr, "write config:", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
		return
	}

	var (
		manager *config.Manager
		err     error
	)
	if *configPath != "" {
		manager, err = config.NewManager(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	} else {
		manager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("sentinel starting", "version", version, "config", manager.Path())

	products, err := catalog.LoadProducts(cfg.Catalog.ProductsPath, logger)
	if err != nil {
		logger.Error("load product catalog", "path", cfg.Catalog.ProductsPath, "error", err)
		os.Exit(1)
	}
	customers, err := catalog.LoadCustomers(cfg.Catalog.CustomersPath, logger)
	if err != nil {
		logger.Error("load customer catalog", "path", cfg.Catalog.CustomersPath, "error", err)
		os.Exit(1)
	}
	logger.Info("catalogs loaded", "products", len(products), "customers", len(customers))

	writer, err := alerts.NewWriter(cfg.Output.EventsFile, logger)
	if err != nil {
		logger.Error("open output sink", "path", cfg.Output.EventsFile, "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := store.Init(initCtx); err != nil {
			initCancel()
			logger.Error("init storage", "error", err)
			os.Exit(1)
		}
		initCancel()
		defer store.Close()
	}

	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	metricStore := metrics.NewStore(0)
	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), metricStore, alertStore, writer, store, products, customers)

	events := make(chan model.Event, cfg.Ingest.ChannelBuffer)
	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartStream(ctx, manager, events, ingestLogger)
	ingest.StartReplay(ctx, manager, events, ingestLogger)
	ingest.StartKafka(ctx, manager, events, ingestLogger)

	api.Start(ctx, manager, metricStore, alertStore, eng, logging.Component(logger, "api"), version)

	if manager.Path() != "" {
		stopWatch := make(chan struct{})
		defer close(stopWatch)
		go manager.Watch(10*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "path", manager.Path())
				eng.UpdateConfig(next)
			},
			func(err error) {
				logger.Warn("config reload failed", "error", err)
			},
			stopWatch)
	}

	done := make(chan struct{})
	go func() {
		eng.Run(ctx, events)
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())
	cancel()
	<-done

	// Queued alerts that no consumer pulled still reach disk.
	remaining := alertStore.DrainAll()
	if len(remaining) > 0 {
		if err := alerts.ExportJSONL(cfg.Output.JSONLFile, remaining); err != nil {
			logger.Error("export remaining alerts", "path", cfg.Output.JSONLFile, "error", err)
		} else {
			logger.Info("exported remaining alerts", "path", cfg.Output.JSONLFile, "count", len(remaining))
		}
	}
	logger.Info("sentinel stopped")
}
