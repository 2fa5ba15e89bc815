package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/23skdu/quiver/internal/diskmat"
	"github.com/23skdu/quiver/internal/integrate"
	"github.com/23skdu/quiver/internal/logging"
	"github.com/23skdu/quiver/internal/serve"
)

func main() {
	// .env is optional; real deployments set QUIVER_* directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("QUIVER", &cfg); err != nil {
		os.Stderr.WriteString("failed to process config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := ValidateConfig(&cfg); err != nil {
		os.Stderr.WriteString("invalid config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
	})
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	go func() {
		logger.Info("starting metrics server", zap.String("address", cfg.MetricsAddr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	store, err := diskmat.Open(cfg.ReferencePath)
	if err != nil {
		logger.Fatal("failed to open reference matrix", zap.Error(err))
	}
	reference, err := store.ReadAll()
	if err != nil {
		logger.Fatal("failed to read reference matrix", zap.Error(err))
	}
	_ = store.Close()

	fields, err := diskmat.ReadLabels(cfg.ReferencePath, reference.Cells())
	if err != nil {
		logger.Fatal("failed to read reference labels", zap.Error(err))
	}
	logger.Info("reference atlas loaded",
		zap.String("dataset", reference.Name()),
		zap.Int("cells", reference.NumCells()),
		zap.Int("features", reference.NumFeatures()),
		zap.Int("fields", len(fields)))

	opts := integrate.DefaultOptions()
	opts.Method = cfg.Method
	opts.Dims = cfg.Dims
	opts.Anchors.KAnchor = cfg.KAnchor
	opts.Anchors.KScore = cfg.KScore
	opts.Anchors.KFilter = cfg.KFilter
	opts.Weights.KWeight = cfg.KWeight
	opts.Logger = logger

	server, err := serve.NewMappingServer(serve.Config{
		Reference: reference,
		Fields:    fields,
		Options:   opts,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build mapping server", zap.Error(err))
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err), zap.String("address", cfg.ListenAddr))
	}

	grpcServer := grpc.NewServer(cfg.BuildGRPCServerOptions()...)
	flight.RegisterFlightServiceServer(grpcServer, server)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		logger.Info("shutting down", zap.String("signal", s.String()))
		grpcServer.GracefulStop()
	}()

	logger.Info("quiverd flight server starting", zap.String("address", cfg.ListenAddr))
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}
