package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the replay buffer daemon's configuration.
type Config struct {
	GRPCAddress      string        `yaml:"grpc_address"`
	RESTAddress      string        `yaml:"rest_address"`
	ObservAddress    string        `yaml:"observ_address"`
	DataDirectory    string        `yaml:"data_directory"`
	MaxSampleFrame   int           `yaml:"max_sample_frame_bytes"`
	InsertQueueDepth int           `yaml:"insert_queue_depth"`
	CheckpointCron   string        `yaml:"checkpoint_cron"`
	CheckpointKeep   int           `yaml:"checkpoint_keep"`
	S3Bucket         string        `yaml:"s3_bucket"`
	S3Prefix         string        `yaml:"s3_prefix"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
	Tables           []TableConfig `yaml:"tables"`
}

// TableConfig describes one priority table to install at startup (§3
// "Registry").
type TableConfig struct {
	Name             string  `yaml:"name"`
	SamplesPerSecond float64 `yaml:"samples_per_second"`
	Burst            int     `yaml:"burst"`
	DefaultBatchSize int64   `yaml:"default_batch_size"`
}

// kMaxSampleResponseSizeBytes, spec §4.6/§6.
const DefaultMaxSampleFrameBytes = 40 * 1024 * 1024

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "replaybuffer")

	return &Config{
		GRPCAddress:      "127.0.0.1:9090",
		RESTAddress:      "127.0.0.1:8080",
		ObservAddress:    "127.0.0.1:8081",
		DataDirectory:    dataDir,
		MaxSampleFrame:   DefaultMaxSampleFrameBytes,
		InsertQueueDepth: 1,
		CheckpointKeep:   1,
		ShutdownGrace:    10 * time.Second,
		Tables: []TableConfig{
			{Name: "default", SamplesPerSecond: 0, Burst: 64, DefaultBatchSize: 4},
		},
	}
}

// LoadConfig reads a YAML config file, falling back to defaults for any field
// left unset. An empty path returns DefaultConfig() unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.MaxSampleFrame <= 0 {
		cfg.MaxSampleFrame = DefaultMaxSampleFrameBytes
	}
	if cfg.InsertQueueDepth <= 0 {
		cfg.InsertQueueDepth = 1
	}
	if cfg.CheckpointKeep <= 0 {
		cfg.CheckpointKeep = 1
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = DefaultConfig().Tables
	}
	return cfg, nil
}
