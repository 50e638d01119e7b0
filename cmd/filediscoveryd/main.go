// Command filediscoveryd is the multi-tenant scheduled file-discovery
// service's single daemon process (§2): it runs the scheduler loop, the
// message handlers it dispatches to, and a Prometheus metrics endpoint in
// one binary, wired for an embedded buntdb-backed store and an in-process
// (or file-queue-durable) bus.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/bus"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/clock"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/config"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/filecheck"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/handler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/logging"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/schedule"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/scheduler"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/secretstore"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/store"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "filediscoveryd"
	app.Usage = "runs the multi-tenant scheduled file-discovery service"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a YAML config file", Value: ""},
		cli.BoolFlag{Name: "durable-bus", Usage: "use the buntdb-backed file queue bus instead of the in-memory bus"},
	}
	app.Action = func(c *cli.Context) error {
		return run(c.String("config"), c.Bool("durable-bus"))
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, durableBus bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, os.Stdout)

	if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
		return err
	}

	configs, err := store.NewConfigurationStore(filepath.Join(cfg.StorePath, "configurations.db"))
	if err != nil {
		return err
	}
	defer configs.Close()
	executions, err := store.NewExecutionStore(filepath.Join(cfg.StorePath, "executions.db"))
	if err != nil {
		return err
	}
	defer executions.Close()
	discoveries, err := store.NewDiscoveryStore(filepath.Join(cfg.StorePath, "discoveries.db"))
	if err != nil {
		return err
	}
	defer discoveries.Close()
	processed, err := store.NewProcessedStore(filepath.Join(cfg.StorePath, "processed.db"))
	if err != nil {
		return err
	}
	defer processed.Close()

	clk := &clock.Real{}
	secrets := secretstore.NewCachingResolver(secretstore.InMemorySource{}, clk)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var b bus.Bus
	if durableBus {
		if err := os.MkdirAll(cfg.BusQueueDir, 0o755); err != nil {
			return err
		}
		fqb, err := bus.NewFileQueueBus(cfg.BusQueueDir)
		if err != nil {
			return err
		}
		defer fqb.Close()
		b = fqb
	} else {
		b = bus.NewMemoryBus()
	}

	svc := filecheck.NewService(executions, discoveries, b, clk, secrets, log, metrics)

	loop := scheduler.New(configs, b, clk, log, metrics, cfg.MaxConcurrentChecks, cfg.PollingIntervalSeconds, cfg.ExecutionWindowMinutes)

	configHandlers := &handler.ConfigurationHandlers{Configs: configs, Bus: b, Clock: clk, Evaluator: schedule.NewEvaluator(), Log: log}
	configHandlers.Register(b)

	executeHandler := &handler.ExecuteFileCheckHandler{Configs: configs, Service: svc, Bus: b, Clock: clk, Log: log, Scheduler: loop}
	b.Handle(bus.TypeExecuteFileCheck, executeHandler.Handle)

	processHandler := &handler.ProcessDiscoveredFileHandler{Configs: configs, Discoveries: discoveries, Processed: processed, Secrets: secrets, Bus: b, Clock: clk, Log: log}
	b.Handle(bus.TypeProcessDiscoveredFile, processHandler.Handle)

	if fqb, ok := b.(*bus.FileQueueBus); ok {
		if err := fqb.Recover(context.Background()); err != nil {
			log.WithError(err).Errorf("filediscoveryd: queue recovery failed")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("filediscoveryd: metrics server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infof("filediscoveryd: shutdown signal received")
		loop.Stop()
		cancel()
		_ = metricsServer.Shutdown(context.Background())
	}()

	log.Infof("filediscoveryd: starting scheduler loop")
	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Errorf("filediscoveryd: scheduler loop exited with error")
	}
	return nil
}
