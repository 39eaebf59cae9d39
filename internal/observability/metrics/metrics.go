package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	rowsIngested   metric.Int64Counter
	rowsSkipped    metric.Int64Counter
	geocodeLookups metric.Int64Counter
	geocodeLatency metric.Float64Histogram
	payrollWrites  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "routepay"
	}
	meter := provider.Meter(name)

	rowsIngested, err := meter.Int64Counter("routepay_upload_rows_ingested_total")
	if err != nil {
		return nil, err
	}
	rowsSkipped, err := meter.Int64Counter("routepay_upload_rows_skipped_total")
	if err != nil {
		return nil, err
	}
	geocodeLookups, err := meter.Int64Counter("routepay_geocode_lookups_total")
	if err != nil {
		return nil, err
	}
	geocodeLatency, err := meter.Float64Histogram("routepay_geocode_lookup_seconds")
	if err != nil {
		return nil, err
	}
	payrollWrites, err := meter.Int64Counter("routepay_payroll_records_written_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rowsIngested:   rowsIngested,
		rowsSkipped:    rowsSkipped,
		geocodeLookups: geocodeLookups,
		geocodeLatency: geocodeLatency,
		payrollWrites:  payrollWrites,
	}, nil
}

// RecordRowIngested counts an inserted delivery row by reconciliation status.
func (m *Metrics) RecordRowIngested(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.rowsIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRowsSkipped counts duplicate or rejected rows.
func (m *Metrics) RecordRowsSkipped(ctx context.Context, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.rowsSkipped.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordGeocodeLookup counts one provider call for a resolver tier.
func (m *Metrics) RecordGeocodeLookup(ctx context.Context, tier, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.geocodeLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.geocodeLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPayrollWrite counts payroll record mutations by kind.
func (m *Metrics) RecordPayrollWrite(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.payrollWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Driver codes and barcodes are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":      {},
	"reason":      {},
	"tier":        {},
	"outcome":     {},
	"kind":        {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
