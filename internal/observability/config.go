package observability

import (
	"strings"

	"github.com/smallbiznis/routepay/internal/config"
)

// Config is the telemetry view of the process configuration.
// Tracing and OTLP metrics are opt-in; prometheus metrics are always on.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Telemetry config.TelemetryConfig
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "routepay"
	}
	tel := cfg.Telemetry
	if tel.OTLPProtocol != "http" {
		tel.OTLPProtocol = "grpc"
	}
	if tel.SamplingRatio < 0 || tel.SamplingRatio > 1 {
		tel.SamplingRatio = 0.1
	}
	return Config{
		ServiceName: serviceName,
		Environment: strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   tel,
	}
}

// Debug is true for debug log level and for local environments.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
