package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	instance *Config
	once     sync.Once
)

// Config represents the complete proxy server configuration
// Aggregates all component configurations for centralized management
// Loaded from a YAML file overlaid on defaults; environment variables are not read
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit" json:"rateLimit"`
	OriginPool OriginPoolConfig `yaml:"originPool" json:"originPool"`
	Tracing    TracingConfig    `yaml:"tracing" json:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig defines the raw-socket listener's configuration parameters
// Controls accept-loop behavior: listen address, request header size limit
// and graceful shutdown timeout (the origin read timeout is in OriginPoolConfig)
type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr" json:"listenAddr" default:":8080"`
	MaxHeaderBytes    int           `yaml:"maxHeaderBytes" json:"maxHeaderBytes" default:"65536"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" default:"30s"`
}

// CacheConfig bounds the cache core directly: Capacity is C1's entry
// count, MaxChunkSize is C3's per-read buffer size.
type CacheConfig struct {
	Capacity     int `yaml:"capacity" json:"capacity" default:"1000"`
	MaxChunkSize int `yaml:"maxChunkSize" json:"maxChunkSize" default:"32768"`
}

// RateLimitConfig defines rate limiting configuration
// Controls request rate limits using token bucket algorithm
type RateLimitConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled" default:"true"`
	Capacity   int  `yaml:"capacity" json:"capacity" default:"100"`
	RefillRate int  `yaml:"refillRate" json:"refillRate" default:"10"`
}

// OriginPoolConfig controls the per-origin-host keep-alive connection
// pool: how many connections may be held open to a single host, how
// connections are chosen for reuse, and timeouts for dialing, idling,
// and the origin read deadline imposed before FetchAndStream runs.
type OriginPoolConfig struct {
	Algorithm   string        `yaml:"algorithm" json:"algorithm" default:"round-robin"`
	MaxPerHost  int           `yaml:"maxPerHost" json:"maxPerHost" default:"8"`
	DialTimeout time.Duration `yaml:"dialTimeout" json:"dialTimeout" default:"5s"`
	IdleTimeout time.Duration `yaml:"idleTimeout" json:"idleTimeout" default:"90s"`
	ReadTimeout time.Duration `yaml:"readTimeout" json:"readTimeout" default:"60s"`
	WarmHosts   []string      `yaml:"warmHosts" json:"warmHosts"`
}

// TracingConfig defines OpenTelemetry tracing configuration
// Controls distributed tracing and observability
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled" default:"false"`
	ServiceName    string  `yaml:"serviceName" json:"serviceName" default:"cacheproxy"`
	ServiceVersion string  `yaml:"serviceVersion" json:"serviceVersion" default:"1.0.0"`
	Environment    string  `yaml:"environment" json:"environment" default:"development"`
	JaegerEndpoint string  `yaml:"jaegerEndpoint" json:"jaegerEndpoint"`
	OTLPEndpoint   string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRatio  float64 `yaml:"samplingRatio" json:"samplingRatio" default:"0.1"`
}

// MetricsConfig controls the Prometheus exposition endpoint, served over
// plain net/http independently of the raw-socket data plane.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" default:"true"`
	ListenAddr string `yaml:"listenAddr" json:"listenAddr" default:":9090"`
}

// LoggingConfig controls the structured logger's minimum level.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" default:"info"`
}

// DefaultConfig returns configuration with sensible defaults
// Provides baseline configuration for development and testing
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxHeaderBytes:  64 * 1024,
			ShutdownTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Capacity:     1000,
			MaxChunkSize: 32 * 1024,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			Capacity:   100,
			RefillRate: 10,
		},
		OriginPool: OriginPoolConfig{
			Algorithm:   "round-robin",
			MaxPerHost:  8,
			DialTimeout: 5 * time.Second,
			IdleTimeout: 90 * time.Second,
			ReadTimeout: 60 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "cacheproxy",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			SamplingRatio:  0.1,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetInstance returns the singleton config instance
// Uses sync.Once to ensure thread-safe lazy initialisation
func GetInstance() *Config {
	once.Do(func() {
		instance = DefaultConfig()
	})
	return instance
}

// LoadConfig loads configuration from a YAML file and installs it as the
// singleton instance. A missing file is not an error: the defaults are
// used as-is.
func LoadConfig(path string) error {
	cfg, err := loadFromFile(path)
	if err != nil {
		return err
	}

	once.Do(func() {
		instance = cfg
	})
	return nil
}

// loadFromFile reads configuration from a YAML file, starting from
// DefaultConfig so any field the file omits keeps its default value.
func loadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
