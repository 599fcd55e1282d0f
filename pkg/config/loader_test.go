package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
database:
  path: /tmp/test-warden.db
resilience:
  max_retries: 5
  rate_limits:
    compute: 50
engine:
  dry_run: true
  max_parallel: 10
telemetry:
  log_level: debug
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test-warden.db" {
		t.Errorf("Database.Path = %q, want /tmp/test-warden.db", cfg.Database.Path)
	}
	if cfg.Resilience.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Resilience.MaxRetries)
	}
	if cfg.Resilience.RateLimits["compute"] != 50 {
		t.Errorf("RateLimits[compute] = %d, want 50", cfg.Resilience.RateLimits["compute"])
	}
	if !cfg.Engine.DryRun {
		t.Error("Engine.DryRun = false, want true")
	}
	if cfg.Engine.MaxParallel != 10 {
		t.Errorf("MaxParallel = %d, want 10", cfg.Engine.MaxParallel)
	}
	if cfg.Telemetry.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Telemetry.LogLevel)
	}

	// Untouched defaults survive.
	if cfg.Resilience.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", cfg.Resilience.InitialDelay)
	}
	if cfg.Approval.EscalationExtension != 24*time.Hour {
		t.Errorf("EscalationExtension = %v, want 24h", cfg.Approval.EscalationExtension)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "negative retries",
			yaml: "resilience:\n  max_retries: -1\n",
		},
		{
			name: "zero worker pool",
			yaml: "engine:\n  max_parallel: 0\n",
		},
		{
			name: "bad log level",
			yaml: "telemetry:\n  log_level: verbose\n",
		},
		{
			name: "sampling rate above one",
			yaml: "telemetry:\n  sampling_rate: 1.5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/warden.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	data := []byte("database:\n  path: " + filepath.Join(dir, "warden.db") + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path == "warden.db" {
		t.Error("expected database path override from file")
	}
}

func TestToTelemetryMapsFields(t *testing.T) {
	tc := TelemetryConfig{
		ServiceName:     "warden-test",
		LogLevel:        "warn",
		LogFormat:       "console",
		MetricsEnabled:  true,
		MetricsAddress:  ":9999",
		TracingEnabled:  true,
		TracingExporter: "stdout",
		SamplingRate:    0.5,
	}

	cfg := tc.ToTelemetry()
	if cfg.ServiceName != "warden-test" {
		t.Errorf("ServiceName = %q, want warden-test", cfg.ServiceName)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddress != ":9999" {
		t.Errorf("metrics = %+v, want enabled on :9999", cfg.Metrics)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("tracing = %+v, want stdout exporter", cfg.Tracing)
	}
	if cfg.Tracing.SamplingRate != 0.5 {
		t.Errorf("SamplingRate = %v, want 0.5", cfg.Tracing.SamplingRate)
	}
}
