package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	Timezone    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	RunMigrations     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Geocode   GeocodeConfig
	Payroll   PayrollConfig
	Airtable  AirtableConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// GeocodeConfig controls the address resolution cascade.
type GeocodeConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	Concurrency    int
	BiasRadiusM    float64
}

// PayrollConfig controls ingestion and aggregation behavior.
type PayrollConfig struct {
	MatchThresholdKm  float64
	RecalcConcurrency int
	RecalcInterval    time.Duration
	LockTTL           time.Duration
	MaxUploadBytes    int64
}

// AirtableConfig points the reference sync at an Airtable base.
type AirtableConfig struct {
	APIKey      string
	BaseID      string
	BaseURL     string
	DriverTable string
	RouteTable  string
}

// RateLimitConfig throttles manifest uploads per driver. A zero rate
// disables the limiter.
type RateLimitConfig struct {
	UploadsPerMinute float64
	UploadBurst      int
}

// TelemetryConfig feeds logging, tracing and OTLP metrics export. The
// exporter protocol is grpc or http.
type TelemetryConfig struct {
	LogLevel         string
	LogFormat        string
	LogSampleInitial int
	LogSampleAfter   int

	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "routepay"),
		AppVersion:  getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment: getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Timezone:    getenv("APP_TIMEZONE", "UTC"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "routepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RunMigrations:     getenvBool("DATABASE_RUN_MIGRATIONS", true),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Geocode: GeocodeConfig{
			APIKey:         strings.TrimSpace(getenv("GOOGLE_MAPS_API_KEY", "")),
			BaseURL:        getenv("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com"),
			RequestTimeout: getenvDuration("GEOCODE_REQUEST_TIMEOUT", 5*time.Second),
			Concurrency:    getenvInt("GEOCODE_CONCURRENCY", 5),
			BiasRadiusM:    getenvFloat("GEOCODE_BIAS_RADIUS_M", 50_000),
		},
		Payroll: PayrollConfig{
			MatchThresholdKm:  getenvFloat("MATCH_THRESHOLD_KM", 15),
			RecalcConcurrency: getenvInt("RECALC_CONCURRENCY", 4),
			RecalcInterval:    getenvDuration("RECALC_INTERVAL", 0),
			LockTTL:           getenvDuration("DRIVER_LOCK_TTL", 2*time.Minute),
			MaxUploadBytes:    getenvInt64("MAX_UPLOAD_BYTES", 20<<20),
		},
		Airtable: AirtableConfig{
			APIKey:      strings.TrimSpace(getenv("AIRTABLE_API_KEY", "")),
			BaseID:      strings.TrimSpace(getenv("AIRTABLE_BASE_ID", "")),
			BaseURL:     getenv("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),
			DriverTable: getenv("AIRTABLE_DRIVER_TABLE", "Drivers"),
			RouteTable:  getenv("AIRTABLE_ROUTE_TABLE", "Routes"),
		},
		RateLimit: RateLimitConfig{
			UploadsPerMinute: getenvFloat("UPLOAD_RATE_PER_MINUTE", 0),
			UploadBurst:      getenvInt("UPLOAD_RATE_BURST", 5),
		},
		Telemetry: TelemetryConfig{
			LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			LogSampleInitial: getenvInt("LOG_SAMPLE_INITIAL", 100),
			LogSampleAfter:   getenvInt("LOG_SAMPLE_THEREAFTER", 100),
			OtelEnabled:      getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:     strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:     strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}

	return cfg
}

// Location resolves the configured timezone used for calendar-day boundaries.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
