package observability

import (
	"time"

	"github.com/smallbiznis/flagship/internal/observability/logger"
	"github.com/smallbiznis/flagship/internal/observability/metrics"
	"github.com/smallbiznis/flagship/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		loggerConfig,
		logger.New,
	),
	fx.Provide(
		tracingConfig,
		tracing.NewProvider,
	),
	fx.Provide(
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.ReconcileWithConfig(cfg) }),
)

// Evaluation requests dominate volume; outside debug the sampler keeps
// the first entries of each second and one in a thousand afterwards.
func loggerConfig(cfg Config) logger.Config {
	lc := logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
		SamplingInitial:     100,
		SamplingThereafter:  1000,
		SamplingWindow:      time.Second,
	}
	if cfg.Debug() {
		lc.SamplingThereafter = 1
	}
	return lc
}

func tracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func metricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
