package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantarax/replaybuffer/internal/apiserver"
	"github.com/quantarax/replaybuffer/internal/checkpoint"
	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/config"
	"github.com/quantarax/replaybuffer/internal/observability"
	"github.com/quantarax/replaybuffer/internal/service"
	"github.com/quantarax/replaybuffer/internal/table"
	"github.com/quantarax/replaybuffer/internal/validation"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	grpcAddr := flag.String("grpc-addr", "", "gRPC server address (overrides config)")
	restAddr := flag.String("rest-addr", "", "REST server address (overrides config)")
	observAddr := flag.String("observ-addr", "", "Observability server address (overrides config)")
	flag.Parse()

	logger := observability.NewLogger("replaybufferd", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("1.0.0")

	if shutdown, err := observability.InitTracing(context.Background(), "replaybufferd"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("replay buffer daemon starting")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err, "failed to load config")
	}
	if *grpcAddr != "" {
		cfg.GRPCAddress = *grpcAddr
	}
	if *restAddr != "" {
		cfg.RESTAddress = *restAddr
	}
	if *observAddr != "" {
		cfg.ObservAddress = *observAddr
	}
	logger.Info("configuration loaded")

	for _, addr := range []string{cfg.GRPCAddress, cfg.RESTAddress, cfg.ObservAddress} {
		if err := validation.ValidateAddr(addr); err != nil {
			logger.Fatal(err, "invalid listen address "+addr)
		}
	}

	store := chunkstore.NewStore()

	tables := make([]table.Table, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		tables = append(tables, table.NewMemTable(tc.Name, tc.SamplesPerSecond, tc.Burst, tc.DefaultBatchSize))
	}

	var checkpointer checkpoint.Checkpointer
	if cfg.DataDirectory != "" {
		var cpErr error
		if cfg.S3Bucket != "" {
			var cp *checkpoint.S3Checkpointer
			cp, cpErr = checkpoint.NewS3Checkpointer(context.Background(), cfg.DataDirectory, cfg.S3Bucket, cfg.S3Prefix)
			checkpointer = cp
		} else {
			var cp *checkpoint.FileCheckpointer
			cp, cpErr = checkpoint.Open(cfg.DataDirectory)
			checkpointer = cp
		}
		if cpErr != nil {
			logger.Fatal(cpErr, "failed to open checkpointer")
		}
	}

	svc := service.New(store, checkpointer, logger, metrics)
	if err := svc.Initialize(context.Background(), tables); err != nil {
		logger.Fatal(err, "failed to initialize service")
	}
	logger.Info("registry initialized")

	healthChecker.RegisterCheck("chunk_store", observability.ChunkStoreCheck(store.Closed))
	healthChecker.RegisterCheck("checkpointer", observability.CheckpointerCheck(checkpointer != nil))
	healthChecker.RegisterCheck("memory", observability.MemoryCheck(90))

	go startObservabilityServer(cfg.ObservAddress, metrics, healthChecker, logger)

	grpcStop, restStop, err := apiserver.StartAPIServers(context.Background(), cfg.GRPCAddress, cfg.RESTAddress, svc, metrics, nil)
	if err != nil {
		logger.Fatal(err, "failed to start API servers")
	}
	logger.Info("API servers started: gRPC on " + cfg.GRPCAddress + ", REST on " + cfg.RESTAddress)

	var scheduler *service.Scheduler
	if cfg.CheckpointCron != "" && checkpointer != nil {
		scheduler, err = service.NewScheduler(svc, cfg.CheckpointCron)
		if err != nil {
			logger.Fatal(err, "failed to build checkpoint scheduler")
		}
		scheduler.Start()
		logger.Info("scheduled auto-checkpointing enabled: " + cfg.CheckpointCron)
	}

	logger.Info("replay buffer daemon running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	if scheduler != nil {
		scheduler.Stop()
	}
	grpcStop()
	restStop()
	if err := svc.Close(); err != nil {
		logger.Error(err, "error closing service")
	}

	logger.Info("replay buffer daemon stopped")
}

func startObservabilityServer(addr string, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("observability server listening on " + addr + " (metrics, health, pprof)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(err, "observability server error")
	}
}
