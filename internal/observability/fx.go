package observability

import (
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/observability/logger"
	"github.com/smallbiznis/routepay/internal/observability/metrics"
	"github.com/smallbiznis/routepay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires logging, tracing and metrics. The gorm logger and the
// scheduler collectors are built eagerly so the first upload does not pay
// for registration.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:        cfg.ServiceName,
				Environment:        cfg.Environment,
				Version:            cfg.Version,
				Level:              cfg.Telemetry.LogLevel,
				Format:             cfg.Telemetry.LogFormat,
				Debug:              cfg.Debug(),
				SamplingInitial:    cfg.Telemetry.LogSampleInitial,
				SamplingThereafter: cfg.Telemetry.LogSampleAfter,
			}
		},
		logger.New,
		func(cfg Config, log *zap.Logger) *logger.GormLogger {
			gormCfg := logger.DefaultGormLoggerConfig()
			gormCfg.Level = logger.ParseGormLevel(cfg.Telemetry.LogLevel)
			return logger.NewGormLogger(log, gormCfg)
		},
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Telemetry.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Telemetry.OTLPEndpoint,
				ExporterProtocol: cfg.Telemetry.OTLPProtocol,
				SamplingRatio:    cfg.Telemetry.SamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Telemetry.OtelEnabled,
				ExporterEndpoint: cfg.Telemetry.OTLPEndpoint,
				ExporterProtocol: cfg.Telemetry.OTLPProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		func() lock.WaitObserver { return metrics.Scheduler().ObserveLockWait },
	),
	fx.Invoke(func(*sdktrace.TracerProvider, *logger.GormLogger) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)
