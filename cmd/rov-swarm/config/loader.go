package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/rov-simulations/pkg/logger"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ROV_"

var (
	validLevels     = []string{"debug", "info", "warn", "error"}
	validOverflows  = []string{"drop_newest", "drop_oldest"}
	validClassifier = []string{"rules", "offline"}
)

// LoadConfig loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadConfig(path string) (*SimulationConfig, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML over the defaults
	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads config from file or returns default, with environment overrides
func LoadConfigOrDefault(path string) (*SimulationConfig, error) {
	log := logger.WithPrefix("config")

	var config *SimulationConfig
	var err error

	if path != "" {
		config, err = LoadConfig(path)
		if err != nil {
			// Log error but continue with the search paths
			log.Warnf("Could not load config from %s: %v", path, err)
			config = nil
		}
	}

	// Try default locations if no config loaded yet
	if config == nil {
		defaultPaths := []string{
			"config.yaml",
			"rov-swarm.yaml",
			filepath.Join("cmd", "rov-swarm", "config.yaml"),
		}

		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				config, err = LoadConfig(p)
				if err == nil {
					log.Infof("Loaded config from: %s", p)
					break
				}
				log.Warnf("Skipping %s: %v", p, err)
			}
		}
	}

	// Use default config if still no config loaded
	if config == nil {
		log.Info("Using default configuration")
		config = GetDefaultConfig()
	}

	// Always apply environment variable overrides
	MergeWithEnvironment(config)

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *SimulationConfig, path string) error {
	// Validate before saving
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// MergeWithCLIOverrides applies CLI parameter overrides to the configuration.
// Values arrive typed as the simulation.yaml parameter declares them.
func MergeWithCLIOverrides(config *SimulationConfig, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "num_rovs":
			if count, ok := asInt(value); ok && count > 0 {
				config.Fleet.NumROVs = count
			}
		case "num_obstacles":
			if count, ok := asInt(value); ok && count >= 0 {
				config.Fleet.NumObstacles = count
			}
		case "max_ticks":
			if count, ok := asInt(value); ok && count >= 0 {
				config.Simulation.MaxTicks = count
			}
		case "seed":
			if seed, ok := asInt(value); ok {
				config.Simulation.Seed = int64(seed)
			}
		case "loss":
			if p, ok := asFloat(value); ok && p >= 0 && p <= 1 {
				config.Channel.Loss = p
			}
		case "follower_noise":
			if f, ok := asFloat(value); ok && f >= 0 {
				config.Channel.FollowerNoise = f
			}
		case "leader_noise":
			if f, ok := asFloat(value); ok && f >= 0 {
				config.Channel.LeaderNoise = f
			}
		case "delay":
			if d, ok := asDuration(value); ok && d >= 0 {
				config.Channel.Delay = d
			}
		case "update_interval":
			if d, ok := asDuration(value); ok && d >= 0 {
				config.Simulation.UpdateInterval = d
			}
		case "overflow":
			if policy, ok := value.(string); ok && slices.Contains(validOverflows, policy) {
				config.Channel.Overflow = policy
			}
		case "inbox_capacity":
			if n, ok := asInt(value); ok && n >= 0 {
				config.Channel.InboxCapacity = n
			}
		case "hazard_enabled":
			if enable, ok := value.(bool); ok {
				config.Hazard.Enabled = enable
			}
		case "classifier":
			if kind, ok := value.(string); ok && slices.Contains(validClassifier, kind) {
				config.Hazard.Classifier = kind
			}
		case "parallel_nodes":
			if enable, ok := value.(bool); ok {
				config.Performance.ParallelNodes = enable
			}
		case "enable_aar":
			if enable, ok := value.(bool); ok {
				config.Logging.EnableAAR = enable
			}
		case "log_level":
			if level, ok := value.(string); ok && slices.Contains(validLevels, level) {
				config.Logging.ConsoleLevel = level
			}
		case "publish_addr":
			if addr, ok := value.(string); ok {
				config.Telemetry.PublishAddr = addr
			}
		case "metrics_addr":
			if addr, ok := value.(string); ok {
				config.Metrics.ListenAddr = addr
			}
		}
	}
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func asDuration(value interface{}) (time.Duration, bool) {
	switch v := value.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	}
	return 0, false
}

// LoadConfigWithOverrides loads config and applies both environment and CLI overrides
func LoadConfigWithOverrides(path string, cliOverrides map[string]interface{}) (*SimulationConfig, error) {
	config, err := LoadConfigOrDefault(path)
	if err != nil {
		return nil, err
	}

	// Apply CLI overrides after environment variables
	if cliOverrides != nil {
		MergeWithCLIOverrides(config, cliOverrides)
	}

	// Final validation
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after overrides: %w", err)
	}

	return config, nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// MergeWithEnvironment merges config with ROV_* environment variables
func MergeWithEnvironment(config *SimulationConfig) {
	// Override simulation pacing
	if v := env("UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.UpdateInterval = d
		}
	}

	if v := env("MAX_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			config.Simulation.MaxTicks = n
		}
	}

	if v := env("SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = seed
		}
	}

	// Override fleet size
	if v := env("NUM_ROVS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Fleet.NumROVs = n
		}
	}

	if v := env("NUM_OBSTACLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			config.Fleet.NumObstacles = n
		}
	}

	// Override channel model
	if v := env("CHANNEL_LOSS"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil && p >= 0 && p <= 1 {
			config.Channel.Loss = p
		}
	}

	if v := env("CHANNEL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			config.Channel.Delay = d
		}
	}

	// Override hazard reactions
	if v := env("HAZARD_ENABLED"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Hazard.Enabled = enable
		}
	}

	if v := env("CLASSIFIER"); v != "" {
		if kind := strings.ToLower(v); slices.Contains(validClassifier, kind) {
			config.Hazard.Classifier = kind
		}
	}

	// Override logging level
	if v := env("LOG_LEVEL"); v != "" {
		if level := strings.ToLower(v); slices.Contains(validLevels, level) {
			config.Logging.ConsoleLevel = level
		}
	}

	// Override AAR settings
	if v := env("ENABLE_AAR"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Logging.EnableAAR = enable
		}
	}

	if v := env("AAR_OUTPUT_PATH"); v != "" {
		config.Logging.AAROutputPath = v
	}

	// Override performance settings
	if v := env("PARALLEL_NODES"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Performance.ParallelNodes = enable
		}
	}

	// Override output addresses
	if v := env("TELEMETRY_ADDR"); v != "" {
		config.Telemetry.PublishAddr = v
	}

	if v := env("METRICS_ADDR"); v != "" {
		config.Metrics.ListenAddr = v
	}
}
