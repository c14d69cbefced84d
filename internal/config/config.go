package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Analyzer holds the tuning knobs of the session analyzer. The struct is
// passed by value and never mutated after loading.
type Analyzer struct {
	SSHPort               uint16 `yaml:"ssh_port"`
	SizeToleranceBytes    uint8  `yaml:"size_tolerance_bytes"`
	PairingDeadlineMS     uint32 `yaml:"pairing_deadline_ms"`
	EchoWindowMS          uint32 `yaml:"echo_window_ms"`
	HasshIncludeLanguages bool   `yaml:"hassh_include_languages"`
}

// PairingDeadline returns the keystroke/echo pairing deadline as a duration.
func (a Analyzer) PairingDeadline() time.Duration {
	return time.Duration(a.PairingDeadlineMS) * time.Millisecond
}

// EchoWindow returns the echo latency window as a duration.
func (a Analyzer) EchoWindow() time.Duration {
	return time.Duration(a.EchoWindowMS) * time.Millisecond
}

// ClickHouseConfig configures the optional session export to ClickHouse.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig configures the optional report publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// OutputConfig controls the on-disk report writers.
type OutputConfig struct {
	Dir  string `yaml:"dir"`
	JSON bool   `yaml:"json"`
}

// Config is the top-level configuration struct for the analyzer binary.
type Config struct {
	Analyzer   Analyzer         `yaml:"analyzer"`
	Output     OutputConfig     `yaml:"output"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Analyzer: Analyzer{
			SSHPort:            22,
			SizeToleranceBytes: 8,
			PairingDeadlineMS:  2000,
			EchoWindowMS:       250,
		},
		NATS: NATSConfig{
			Subject: "sshniff.reports",
		},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct with defaults applied to unset fields.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if cfg.Analyzer.SSHPort == 0 {
		cfg.Analyzer.SSHPort = 22
	}
	if cfg.Analyzer.PairingDeadlineMS == 0 {
		cfg.Analyzer.PairingDeadlineMS = 2000
	}
	if cfg.Analyzer.EchoWindowMS == 0 {
		cfg.Analyzer.EchoWindowMS = 250
	}

	return cfg, nil
}
