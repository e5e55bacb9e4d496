package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/trajectory-planner/core"
	"github.com/signalsfoundry/trajectory-planner/internal/logging"
	"github.com/signalsfoundry/trajectory-planner/internal/nbi"
	"github.com/signalsfoundry/trajectory-planner/internal/observability"
	"github.com/signalsfoundry/trajectory-planner/kb"
)

// Config holds the server's runtime settings.
type Config struct {
	ListenAddress     string
	MetricsAddress    string
	ModelsPath        string
	EvaluationSamples int
	Tracing           observability.TracingConfig
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the planner gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.ModelsPath, "models", "", "Path to a JSON file with additional physical models")
	flag.IntVar(&cfg.EvaluationSamples, "eval-samples", core.DefaultEvaluationSamples, "Trajectory samples used while searching for the launch velocity")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingCfg, err := observability.TracingConfigFromEnv()
	if err != nil {
		log.Error(ctx, "invalid tracing configuration", logging.Err(err))
		os.Exit(1)
	}
	cfg.Tracing = tracingCfg

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "planner server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the planner on lis until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	catalog := kb.NewWithDefaults()
	loadModels(ctx, log, catalog, cfg.ModelsPath)

	tracingCfg := cfg.Tracing
	tracingCfg.Deployment = observability.PlannerDeployment{
		Models:            catalog.ListModels(),
		EvaluationSamples: cfg.EvaluationSamples,
		MaxStep:           core.DefaultMaxStep,
	}
	tracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			log.Warn(context.Background(), "tracing shutdown failed", logging.Err(err))
		}
	}()

	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	opts := []core.PlannerOption{core.WithMetricsRecorder(collector)}
	if cfg.EvaluationSamples > 0 {
		opts = append(opts, core.WithEvaluationSamples(cfg.EvaluationSamples))
	}
	svc := nbi.NewPlannerService(catalog, log, opts...)
	defer svc.Close()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			nbi.RequestIDUnaryServerInterceptor(log),
			nbi.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	nbi.RegisterPlannerServiceServer(server, svc)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	log.Info(ctx, "starting planner gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Any("models", catalog.ListModels()),
	)

	var result error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down planner server")
		server.GracefulStop()
		<-serveErr
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			result = fmt.Errorf("serve: %w", err)
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func loadModels(ctx context.Context, log logging.Logger, catalog *kb.KnowledgeBase, path string) {
	if path == "" {
		return
	}
	n, err := catalog.LoadFile(path)
	if err != nil {
		log.Warn(ctx, "skipping physical model load", logging.String("path", path), logging.Err(err))
		return
	}
	log.Info(ctx, "loaded physical models", logging.String("path", path), logging.Int("count", n))
}
