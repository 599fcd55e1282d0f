package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Default returns a configuration with working defaults. A config file
// overrides individual fields.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "warden.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Resilience: ResilienceConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     60 * time.Second,
			RateLimits: map[string]int{
				"compute":    20,
				"database":   10,
				"storage":    30,
				"serverless": 15,
			},
			BreakerFailureThreshold: 5,
			BreakerSuccessThreshold: 2,
			BreakerRecoveryTimeout:  30 * time.Second,
		},
		Safety: SafetyConfig{
			MonthlyCostThreshold: 1000,
			ProductionTags:       []string{"production", "prod"},
			CriticalTags:         []string{"critical", "do-not-touch"},
		},
		Approval: ApprovalConfig{
			SweepInterval:       5 * time.Minute,
			EscalationExtension: 24 * time.Hour,
		},
		Engine: EngineConfig{
			DryRun:            false,
			MaxParallel:       5,
			ItemTimeout:       10 * time.Minute,
			SchedulerInterval: time.Minute,
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "costwarden",
			LogLevel:         "info",
			LogFormat:        "json",
			EventsEnabled:    true,
			EventsBufferSize: 1000,
		},
	}
}

// Load reads a YAML config file, applies it over the defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes over the defaults and validates the
// result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
