package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/trajectory-planner/internal/logging"
)

const (
	defaultServiceName  = "trajectory-planner"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig governs how planner tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // key into the exporter registry: stdout, otlp
	Endpoint    string // OTLP collector address
	SampleRatio float64

	// Deployment is stamped on the trace resource so spans from servers
	// running different model catalogs or resolutions can be told apart.
	Deployment PlannerDeployment
}

// PlannerDeployment describes how a planner process is configured.
type PlannerDeployment struct {
	Models            []string
	EvaluationSamples int
	MaxStep           float64 // seconds
}

func (d PlannerDeployment) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if len(d.Models) > 0 {
		models := append([]string(nil), d.Models...)
		sort.Strings(models)
		attrs = append(attrs, attribute.StringSlice("planner.models", models))
	}
	if d.EvaluationSamples > 0 {
		attrs = append(attrs, attribute.Int("planner.evaluation_samples", d.EvaluationSamples))
	}
	if d.MaxStep > 0 {
		attrs = append(attrs, attribute.Float64("planner.integrator.max_step_seconds", d.MaxStep))
	}
	return attrs
}

type exporterFactory func(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"stdout": func(context.Context, TracingConfig) (sdktrace.SpanExporter, error) {
		// Stdout belongs to the CLI's JSON output; spans go to stderr.
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithoutTimestamps())
	},
	"otlp": func(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	},
}

// TracingConfigFromEnv reads PLANNER_TRACING_* and PLANNER_OTLP_ENDPOINT.
func TracingConfigFromEnv() (TracingConfig, error) {
	return TracingConfigFromLookup(os.Getenv)
}

// TracingConfigFromLookup builds a TracingConfig from an environment-style
// lookup. Malformed values are reported rather than replaced.
func TracingConfigFromLookup(getenv func(string) string) (TracingConfig, error) {
	cfg := TracingConfig{
		ServiceName: defaultServiceName,
		Exporter:    "stdout",
		Endpoint:    getenv("PLANNER_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}

	if raw := getenv("PLANNER_TRACING_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("PLANNER_TRACING_ENABLED: %w", err)
		}
		cfg.Enabled = enabled
	}
	if name := getenv("PLANNER_TRACING_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}
	if exp := strings.ToLower(getenv("PLANNER_TRACING_EXPORTER")); exp != "" {
		if _, ok := exporters[exp]; !ok {
			return cfg, fmt.Errorf("PLANNER_TRACING_EXPORTER: unsupported exporter %q", exp)
		}
		cfg.Exporter = exp
	}
	if raw := getenv("PLANNER_TRACING_SAMPLE_RATIO"); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return cfg, fmt.Errorf("PLANNER_TRACING_SAMPLE_RATIO: want a number in [0, 1], got %q", raw)
		}
		cfg.SampleRatio = ratio
	}
	return cfg, nil
}

// Tracing owns the process tracer provider.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// InitTracing installs the global tracer provider and propagators. When
// tracing is disabled a noop provider is installed and Shutdown does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Info(ctx, "tracing disabled")
		return &Tracing{}, nil
	}

	factory, ok := exporters[strings.ToLower(cfg.Exporter)]
	if !ok {
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
	exp, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res, err := plannerResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
		logging.Any("models", cfg.Deployment.Models),
	)
	return &Tracing{provider: tp}, nil
}

func plannerResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.namespace", "planner"),
	}, cfg.Deployment.attributes()...)

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes pending spans, giving up after a few seconds.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return t.provider.Shutdown(ctx)
}
