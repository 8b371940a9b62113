// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Sharq holds the knobs for the queue engine itself: key namespace, the
// default and floor rate-limit intervals, how long a dequeued job may stay
// in the active set before a requeue sweep recovers it, and how often that
// sweep runs.
type Sharq struct {
	KeyPrefix         string        `mapstructure:"key_prefix"`
	DefaultIntervalMS int64         `mapstructure:"default_interval_ms"`
	IntervalFloorMS   int64         `mapstructure:"interval_floor_ms"`
	JobExpireInterval time.Duration `mapstructure:"job_expire_interval"`
	RequeueInterval   time.Duration `mapstructure:"requeue_interval"`
}

type Worker struct {
	Count        int           `mapstructure:"count"`
	QueueTypes   []string      `mapstructure:"queue_types"`
	BreakerPause time.Duration `mapstructure:"breaker_pause"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Producer drives the bundled demo producer, which walks ScanDir and
// enqueues one job per discovered file, deriving queue type and id from
// path segments.
type Producer struct {
	ScanDir         string   `mapstructure:"scan_dir"`
	IncludeGlobs    []string `mapstructure:"include_globs"`
	ExcludeGlobs    []string `mapstructure:"exclude_globs"`
	DefaultType     string   `mapstructure:"default_type"`
	RateLimitPerSec int      `mapstructure:"rate_limit_per_sec"`
	RateLimitKey    string   `mapstructure:"rate_limit_key"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type TracingConfig struct {
	Enabled            bool              `mapstructure:"enabled"`
	Endpoint           string            `mapstructure:"endpoint"`
	Environment        string            `mapstructure:"environment"`
	SamplingStrategy   string            `mapstructure:"sampling_strategy"`
	SamplingRate       float64           `mapstructure:"sampling_rate"`
	BatchTimeout       time.Duration     `mapstructure:"batch_timeout"`
	MaxExportBatchSize int               `mapstructure:"max_export_batch_size"`
	Headers            map[string]string `mapstructure:"headers"`
	Insecure           bool              `mapstructure:"insecure"`
	PropagationFormat  string            `mapstructure:"propagation_format"`
	AttributeAllowlist []string          `mapstructure:"attribute_allowlist"`
	RedactSensitive    bool              `mapstructure:"redact_sensitive"`
}

// Tracing is a backwards-compatible alias.
type Tracing = TracingConfig

type ObservabilityConfig struct {
	MetricsPort         int           `mapstructure:"metrics_port"`
	LogLevel            string        `mapstructure:"log_level"`
	Tracing             TracingConfig `mapstructure:"tracing"`
	ReadySampleInterval time.Duration `mapstructure:"ready_sample_interval"`
}

// Observability is a backwards-compatible alias.
type Observability = ObservabilityConfig

type Config struct {
	Redis          Redis          `mapstructure:"redis"`
	Sharq          Sharq          `mapstructure:"sharq"`
	Worker         Worker         `mapstructure:"worker"`
	Producer       Producer       `mapstructure:"producer"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Sharq: Sharq{
			KeyPrefix:         "sharq",
			DefaultIntervalMS: 5000,
			IntervalFloorMS:   1000,
			JobExpireInterval: 5 * time.Minute,
			RequeueInterval:   30 * time.Second,
		},
		Worker: Worker{
			Count:        16,
			QueueTypes:   []string{"default"},
			BreakerPause: 100 * time.Millisecond,
			PollInterval: 200 * time.Millisecond,
		},
		Producer: Producer{
			ScanDir:         "./data",
			IncludeGlobs:    []string{"**/*"},
			ExcludeGlobs:    []string{"**/*.tmp", "**/.DS_Store"},
			DefaultType:     "default",
			RateLimitPerSec: 100,
			RateLimitKey:    "sharq:rate_limit:producer",
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: Observability{
			MetricsPort:         9090,
			LogLevel:            "info",
			Tracing:             Tracing{Enabled: false},
			ReadySampleInterval: 2 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("sharq.key_prefix", def.Sharq.KeyPrefix)
	v.SetDefault("sharq.default_interval_ms", def.Sharq.DefaultIntervalMS)
	v.SetDefault("sharq.interval_floor_ms", def.Sharq.IntervalFloorMS)
	v.SetDefault("sharq.job_expire_interval", def.Sharq.JobExpireInterval)
	v.SetDefault("sharq.requeue_interval", def.Sharq.RequeueInterval)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.queue_types", def.Worker.QueueTypes)
	v.SetDefault("worker.breaker_pause", def.Worker.BreakerPause)
	v.SetDefault("worker.poll_interval", def.Worker.PollInterval)

	v.SetDefault("producer.scan_dir", def.Producer.ScanDir)
	v.SetDefault("producer.include_globs", def.Producer.IncludeGlobs)
	v.SetDefault("producer.exclude_globs", def.Producer.ExcludeGlobs)
	v.SetDefault("producer.default_type", def.Producer.DefaultType)
	v.SetDefault("producer.rate_limit_per_sec", def.Producer.RateLimitPerSec)
	v.SetDefault("producer.rate_limit_key", def.Producer.RateLimitKey)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.ready_sample_interval", def.Observability.ReadySampleInterval)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if len(cfg.Worker.QueueTypes) == 0 {
		return fmt.Errorf("worker.queue_types must be non-empty")
	}
	if cfg.Sharq.KeyPrefix == "" {
		return fmt.Errorf("sharq.key_prefix must be non-empty")
	}
	if cfg.Sharq.IntervalFloorMS <= 0 {
		return fmt.Errorf("sharq.interval_floor_ms must be > 0")
	}
	if cfg.Sharq.DefaultIntervalMS < cfg.Sharq.IntervalFloorMS {
		return fmt.Errorf("sharq.default_interval_ms must be >= sharq.interval_floor_ms")
	}
	if cfg.Sharq.JobExpireInterval <= 0 {
		return fmt.Errorf("sharq.job_expire_interval must be > 0")
	}
	if cfg.Sharq.RequeueInterval <= 0 {
		return fmt.Errorf("sharq.requeue_interval must be > 0")
	}
	if cfg.Producer.RateLimitPerSec < 0 {
		return fmt.Errorf("producer.rate_limit_per_sec must be >= 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
