package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
)

func TestLoadConfig(t *testing.T) {
	// Test loading the shipped config.yaml file
	config, err := LoadConfig("../config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Simulation.Name != "rov-swarm" {
		t.Errorf("Expected simulation name 'rov-swarm', got '%s'", config.Simulation.Name)
	}

	if config.Simulation.TimeStep != 100*time.Millisecond {
		t.Errorf("Expected time step 100ms, got %v", config.Simulation.TimeStep)
	}

	if config.Fleet.NumROVs != 4 {
		t.Errorf("Expected 4 ROVs, got %d", config.Fleet.NumROVs)
	}

	if config.Fleet.NumObstacles != 15 {
		t.Errorf("Expected 15 obstacles, got %d", config.Fleet.NumObstacles)
	}

	if config.Fleet.LeaderTarget != (Waypoint{X: 40, Z: 60, Depth: 0}) {
		t.Errorf("Unexpected leader target: %+v", config.Fleet.LeaderTarget)
	}

	if config.Channel.Delay != 500*time.Millisecond {
		t.Errorf("Expected delay 500ms, got %v", config.Channel.Delay)
	}

	if config.Channel.Loss != 0.1 {
		t.Errorf("Expected loss 0.1, got %f", config.Channel.Loss)
	}

	if config.Channel.LeaderNoise != 0.05 {
		t.Errorf("Expected leader noise 0.05, got %f", config.Channel.LeaderNoise)
	}

	if !config.Hazard.Enabled || config.Hazard.Classifier != "rules" {
		t.Errorf("Expected rules classifier enabled, got enabled=%t classifier=%s", config.Hazard.Enabled, config.Hazard.Classifier)
	}

	if config.Hazard.Collision != 8 {
		t.Errorf("Expected collision distance 8, got %f", config.Hazard.Collision)
	}
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("channel:\n  loss: 0.3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if config.Channel.Loss != 0.3 {
		t.Errorf("Expected loss 0.3, got %f", config.Channel.Loss)
	}
	if config.Fleet.NumROVs != 4 {
		t.Errorf("Expected default fleet size 4, got %d", config.Fleet.NumROVs)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}

	if config.Simulation.Name != "rov-swarm" {
		t.Errorf("Expected default simulation name 'rov-swarm', got '%s'", config.Simulation.Name)
	}

	leader := config.ChannelSettings(controllers.Leader)
	if leader.Noise != 0.05 || leader.Overflow != acoustic.DropNewest {
		t.Errorf("Unexpected leader channel settings: %+v", leader)
	}

	follower := config.ChannelSettings(controllers.Follower)
	if follower.Noise != 0.1 {
		t.Errorf("Expected follower noise 0.1, got %f", follower.Noise)
	}

	for node, wantX := range map[int]float64{1: 35, 2: 40, 3: 45} {
		if got := config.FollowerTarget(node); got.X != wantX || got.Z != 50 || got.Depth != -10 {
			t.Errorf("Follower %d target: got %+v", node, got)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *SimulationConfig)
		wantErr string
	}{
		{
			name:    "empty name",
			mutate:  func(c *SimulationConfig) { c.Simulation.Name = "" },
			wantErr: "Simulation.Name",
		},
		{
			name:    "zero time step",
			mutate:  func(c *SimulationConfig) { c.Simulation.TimeStep = 0 },
			wantErr: "Simulation.TimeStep",
		},
		{
			name:    "no vehicles",
			mutate:  func(c *SimulationConfig) { c.Fleet.NumROVs = 0 },
			wantErr: "Fleet.NumROVs",
		},
		{
			name:    "loss above one",
			mutate:  func(c *SimulationConfig) { c.Channel.Loss = 1.5 },
			wantErr: "Channel.Loss",
		},
		{
			name:    "unknown overflow policy",
			mutate:  func(c *SimulationConfig) { c.Channel.Overflow = "drop_all" },
			wantErr: "Channel.Overflow",
		},
		{
			name:    "unknown classifier",
			mutate:  func(c *SimulationConfig) { c.Hazard.Classifier = "gat" },
			wantErr: "Hazard.Classifier",
		},
		{
			name: "collision beyond disconnect",
			mutate: func(c *SimulationConfig) {
				c.Hazard.Collision = 40
			},
			wantErr: "collision distance",
		},
		{
			name:   "valid config",
			mutate: func(c *SimulationConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			err := config.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected validation error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	config := GetDefaultConfig()

	t.Setenv("ROV_NUM_ROVS", "6")
	t.Setenv("ROV_CHANNEL_LOSS", "0.25")
	t.Setenv("ROV_CHANNEL_DELAY", "1s")
	t.Setenv("ROV_HAZARD_ENABLED", "false")
	t.Setenv("ROV_LOG_LEVEL", "DEBUG")
	t.Setenv("ROV_NUM_OBSTACLES", "-3")

	MergeWithEnvironment(config)

	if config.Fleet.NumROVs != 6 {
		t.Errorf("Expected 6 ROVs, got %d", config.Fleet.NumROVs)
	}

	if config.Channel.Loss != 0.25 {
		t.Errorf("Expected loss 0.25, got %f", config.Channel.Loss)
	}

	if config.Channel.Delay != time.Second {
		t.Errorf("Expected delay 1s, got %v", config.Channel.Delay)
	}

	if config.Hazard.Enabled {
		t.Errorf("Expected hazard detection disabled")
	}

	if config.Logging.ConsoleLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", config.Logging.ConsoleLevel)
	}

	if config.Fleet.NumObstacles != 15 {
		t.Errorf("Negative obstacle count should be ignored, got %d", config.Fleet.NumObstacles)
	}
}

func TestCLIOverrides(t *testing.T) {
	config := GetDefaultConfig()

	overrides := map[string]interface{}{
		"num_rovs":       8,
		"loss":           0.0,
		"delay":          "250ms",
		"overflow":       "drop_oldest",
		"hazard_enabled": false,
		"classifier":     "bogus",
		"max_ticks":      float64(300),
	}

	MergeWithCLIOverrides(config, overrides)

	if config.Fleet.NumROVs != 8 {
		t.Errorf("Expected 8 ROVs, got %d", config.Fleet.NumROVs)
	}

	if config.Channel.Loss != 0 {
		t.Errorf("Expected loss 0, got %f", config.Channel.Loss)
	}

	if config.Channel.Delay != 250*time.Millisecond {
		t.Errorf("Expected delay 250ms, got %v", config.Channel.Delay)
	}

	if config.Channel.Overflow != "drop_oldest" {
		t.Errorf("Expected overflow drop_oldest, got %s", config.Channel.Overflow)
	}

	if config.Hazard.Enabled {
		t.Errorf("Expected hazard detection disabled")
	}

	if config.Hazard.Classifier != "rules" {
		t.Errorf("Invalid classifier should be ignored, got %s", config.Hazard.Classifier)
	}

	if config.Simulation.MaxTicks != 300 {
		t.Errorf("Expected 300 max ticks, got %d", config.Simulation.MaxTicks)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rov.yaml")
	config := GetDefaultConfig()
	config.Channel.Delay = 750 * time.Millisecond

	if err := SaveConfig(config, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Channel.Delay != 750*time.Millisecond {
		t.Errorf("Expected delay 750ms after reload, got %v", loaded.Channel.Delay)
	}
}
