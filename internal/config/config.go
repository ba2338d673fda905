package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolsConfig names the external binaries the pipeline drives.
type ToolsConfig struct {
	Collector string `yaml:"collector"`
	Replay    string `yaml:"replay"`
	Dump      string `yaml:"dump"`
}

// CaptureConfig holds the collector session parameters. Durations are
// strings in Go duration syntax ("2s", "500ms").
type CaptureConfig struct {
	Endpoint string `yaml:"endpoint"`
	BindWait string `yaml:"bind_wait"`
	StopWait string `yaml:"stop_wait"`
}

// Config is the top-level configuration for a conversion batch.
type Config struct {
	InputDir     string        `yaml:"input_dir"`
	ScratchDir   string        `yaml:"scratch_dir"`
	OutputDir    string        `yaml:"output_dir"`
	Merge        bool          `yaml:"merge"`
	MergedOutput string        `yaml:"merged_output"`
	TraceExt     string        `yaml:"trace_ext"`
	HistoryDB    string        `yaml:"history_db"`
	Tools        ToolsConfig   `yaml:"tools"`
	Capture      CaptureConfig `yaml:"capture"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		InputDir:     ".",
		ScratchDir:   "nfcapd-scratch",
		OutputDir:    "nf-out",
		MergedOutput: "merged.nf",
		TraceExt:     ".pcap",
		Tools: ToolsConfig{
			Collector: "nfcapd",
			Replay:    "softflowd",
			Dump:      "nfdump",
		},
		Capture: CaptureConfig{
			Endpoint: "127.0.0.1:9995",
			BindWait: "2s",
			StopWait: "10s",
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the duration fields and the endpoint.
func (c *Config) Validate() error {
	if _, err := c.BindWait(); err != nil {
		return fmt.Errorf("invalid bind_wait: %w", err)
	}
	if _, err := c.StopWait(); err != nil {
		return fmt.Errorf("invalid stop_wait: %w", err)
	}
	if c.Capture.Endpoint == "" {
		return fmt.Errorf("capture endpoint must not be empty")
	}
	return nil
}

// BindWait parses the configured collector bind wait.
func (c *Config) BindWait() (time.Duration, error) {
	return time.ParseDuration(c.Capture.BindWait)
}

// StopWait parses the configured collector stop wait.
func (c *Config) StopWait() (time.Duration, error) {
	return time.ParseDuration(c.Capture.StopWait)
}
