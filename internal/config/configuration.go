package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const ConfigurationTemplate = `{
  "data_directory_path": "./data",
  "write_ahead_log_file_path": "./data/kv_store.log",
  "snapshot_file_path": "./data/kv_store.snapshot",
  "log_directory_path": "./logs",
  "tcp_port": 8080,
  "http_stats_port": 8081,
  "snapshot_interval": 10,
  "bloom_filter_bits": 1000,
  "bloom_filter_hashes": 5,
  "maximum_cpu_count": 0,
  "log_severity_level": "INFO"
}`

const (
	DefaultTCPPort           = 8080
	DefaultHTTPStatsPort     = 8081
	DefaultSnapshotInterval  = 10
	DefaultBloomFilterBits   = 1000
	DefaultBloomFilterHashes = 5
)

// SystemConfiguration describes everything the boundary needs to bring the
// store up: where its durable files live, which ports to listen on, and how
// often to snapshot. The core itself never reads this type - it only ever
// sees the resolved paths and bloom parameters passed to store.New.
type SystemConfiguration struct {
	DataDirectoryPath     string `json:"data_directory_path"`
	WriteAheadLogFilePath string `json:"write_ahead_log_file_path"`
	SnapshotFilePath      string `json:"snapshot_file_path"`
	LogDirectoryPath      string `json:"log_directory_path"`
	TCPPort               int    `json:"tcp_port"`
	HTTPStatsPort         int    `json:"http_stats_port"`
	SnapshotInterval      int    `json:"snapshot_interval"`
	BloomFilterBits       uint   `json:"bloom_filter_bits"`
	BloomFilterHashes     uint   `json:"bloom_filter_hashes"`
	MaximumCpuCount       int    `json:"maximum_cpu_count"`
	LogSeverityLevel      string `json:"log_severity_level"`
}

// LoadConfigurationFromFile resolves configuration in four layers, lowest
// priority first: built-in defaults, a sibling .env file (if present),
// process environment variables (KVSTORE_*), then an explicit JSON config
// file. The .env file never overrides a variable already set in the
// environment. Each layer only overrides fields it sets.
func LoadConfigurationFromFile(filePath string) (SystemConfiguration, error) {
	_ = godotenv.Load()

	config := SystemConfiguration{
		DataDirectoryPath:     "./data",
		WriteAheadLogFilePath: "./data/kv_store.log",
		SnapshotFilePath:      "./data/kv_store.snapshot",
		LogDirectoryPath:      "./logs",
		TCPPort:               DefaultTCPPort,
		HTTPStatsPort:         DefaultHTTPStatsPort,
		SnapshotInterval:      DefaultSnapshotInterval,
		BloomFilterBits:       DefaultBloomFilterBits,
		BloomFilterHashes:     DefaultBloomFilterHashes,
		MaximumCpuCount:       0,
		LogSeverityLevel:      "INFO",
	}

	applyEnvOverrides(&config)

	if filePath != "" {
		file, err := os.Open(filePath)
		if err != nil {
			return config, fmt.Errorf("failed to open configuration file: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return config, fmt.Errorf("failed to decode configuration json: %w", err)
		}
	}
	return config, nil
}

func applyEnvOverrides(config *SystemConfiguration) {
	if v := os.Getenv("KVSTORE_DATA_DIR"); v != "" {
		config.DataDirectoryPath = v
	}
	if v := os.Getenv("KVSTORE_TCP_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &config.TCPPort)
	}
	if v := os.Getenv("KVSTORE_HTTP_STATS_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &config.HTTPStatsPort)
	}
	if v := os.Getenv("KVSTORE_LOG_LEVEL"); v != "" {
		config.LogSeverityLevel = v
	}
}
