package config

import (
	"time"

	"github.com/costwarden/costwarden/pkg/telemetry"
)

// Config is the root configuration for the warden pipeline.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" validate:"required"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Safety     SafetyConfig     `yaml:"safety"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Engine     EngineConfig     `yaml:"engine"`
	Policy     PolicyConfig     `yaml:"policy"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path            string        `yaml:"path" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ResilienceConfig configures retries, rate limiting, and circuit breaking.
// These knobs are hot-reloadable through the config watcher.
type ResilienceConfig struct {
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0,lte=20"`
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gt=0"`
	Multiplier   float64       `yaml:"multiplier" validate:"gte=1"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gt=0"`

	// RateLimits maps a service target to its calls-per-second budget.
	RateLimits map[string]int `yaml:"rate_limits" validate:"dive,gt=0"`

	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold" validate:"gt=0"`
	BreakerSuccessThreshold int           `yaml:"breaker_success_threshold" validate:"gt=0"`
	BreakerRecoveryTimeout  time.Duration `yaml:"breaker_recovery_timeout" validate:"gt=0"`
}

// SafetyConfig configures risk assessment escalation.
type SafetyConfig struct {
	// MonthlyCostThreshold is the monthly cost above which risk escalates
	// one level.
	MonthlyCostThreshold float64 `yaml:"monthly_cost_threshold" validate:"gte=0"`

	// ProductionTags are resource tag values that mark production workloads.
	ProductionTags []string `yaml:"production_tags"`

	// CriticalTags are resource tag values that mark critical workloads.
	CriticalTags []string `yaml:"critical_tags"`
}

// ApprovalConfig configures the approval workflow manager.
type ApprovalConfig struct {
	// SweepInterval is how often timed-out workflows are checked.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`

	// EscalationExtension is the fixed timeout increment applied on each
	// escalation.
	EscalationExtension time.Duration `yaml:"escalation_extension" validate:"gt=0"`
}

// EngineConfig configures the execution engine.
type EngineConfig struct {
	// DryRun forces all executions to synthesize results without mutating.
	DryRun bool `yaml:"dry_run"`

	// MaxParallel bounds the parallel batch worker pool.
	MaxParallel int `yaml:"max_parallel" validate:"gt=0"`

	// ItemTimeout limits each batch item's execution time.
	ItemTimeout time.Duration `yaml:"item_timeout" validate:"gt=0"`

	// SchedulerInterval is how often due scheduled executions are processed.
	SchedulerInterval time.Duration `yaml:"scheduler_interval" validate:"gt=0"`
}

// PolicyConfig configures the guardrail policy engine.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir holds additional Rego policy files loaded next to the builtins.
	Dir string `yaml:"dir"`

	// WatchChanges reloads policies when files in Dir change.
	WatchChanges bool `yaml:"watch_changes"`
}

// TelemetryConfig is the YAML-facing telemetry section. It maps onto
// telemetry.Config, which stays tag-free for library consumers.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`
	LogOutput string `yaml:"log_output"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddress string `yaml:"metrics_address"`

	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	SamplingRate    float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`

	EventsEnabled    bool `yaml:"events_enabled"`
	EventsBufferSize int  `yaml:"events_buffer_size" validate:"gte=0"`
}

// ToTelemetry converts the YAML-facing section into a telemetry.Config,
// filling unset fields from the telemetry defaults.
func (tc TelemetryConfig) ToTelemetry() *telemetry.Config {
	cfg := telemetry.DefaultConfig()

	if tc.ServiceName != "" {
		cfg.ServiceName = tc.ServiceName
	}
	if tc.ServiceVersion != "" {
		cfg.ServiceVersion = tc.ServiceVersion
	}
	if tc.Environment != "" {
		cfg.Environment = tc.Environment
	}
	if tc.LogLevel != "" {
		cfg.Logging.Level = tc.LogLevel
	}
	if tc.LogFormat != "" {
		cfg.Logging.Format = tc.LogFormat
	}
	if tc.LogOutput != "" {
		cfg.Logging.Output = tc.LogOutput
	}

	cfg.Metrics.Enabled = tc.MetricsEnabled
	if tc.MetricsAddress != "" {
		cfg.Metrics.ListenAddress = tc.MetricsAddress
	}

	cfg.Tracing.Enabled = tc.TracingEnabled
	if tc.TracingExporter != "" {
		cfg.Tracing.Exporter = tc.TracingExporter
	}
	if tc.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = tc.TracingEndpoint
	}
	if tc.SamplingRate > 0 {
		cfg.Tracing.SamplingRate = tc.SamplingRate
	}

	cfg.Events.Enabled = tc.EventsEnabled
	if tc.EventsBufferSize > 0 {
		cfg.Events.BufferSize = tc.EventsBufferSize
	}

	return cfg
}
