package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// SimulationConfig holds the complete simulation configuration
type SimulationConfig struct {
	// Basic simulation settings
	Simulation SimulationSettings `yaml:"simulation"`

	// Fleet composition and initial routes
	Fleet FleetConfig `yaml:"fleet"`

	// Acoustic link parameters
	Channel ChannelConfig `yaml:"channel"`

	// Guidance law tuning
	Guidance GuidanceConfig `yaml:"guidance"`

	// Hazard detection
	Hazard HazardConfig `yaml:"hazard"`

	// Performance settings
	Performance PerformanceConfig `yaml:"performance"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry stream to the render host
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// SimulationSettings holds basic simulation settings
type SimulationSettings struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	// UpdateInterval is the wall time between ticks; 0 runs as fast as possible.
	UpdateInterval time.Duration `yaml:"update_interval" validate:"gte=0"`
	// TimeStep is the simulated time each tick advances.
	TimeStep time.Duration `yaml:"time_step" validate:"gt=0"`
	// MaxTicks stops the run after this many ticks; 0 means no limit.
	MaxTicks int `yaml:"max_ticks" validate:"gte=0"`
	// Seed makes spawn positions and channel draws reproducible; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// Waypoint is a go-to target in the horizontal plane plus a depth
type Waypoint struct {
	X     float64 `yaml:"x"`
	Z     float64 `yaml:"z"`
	Depth float64 `yaml:"depth"`
}

// FleetConfig defines the vehicles and the field they operate in
type FleetConfig struct {
	NumROVs      int     `yaml:"num_rovs" validate:"gte=1,lte=64"`
	NumObstacles int     `yaml:"num_obstacles" validate:"gte=0"`
	SpawnRadius  float64 `yaml:"spawn_radius" validate:"gt=0"`
	SpawnDepth   float64 `yaml:"spawn_depth" validate:"lte=0"`
	// LeaderTarget is the first route given to the leader.
	LeaderTarget Waypoint `yaml:"leader_target"`
	// FollowerTarget is the base follower route; follower n is shifted by
	// n*FollowerSpacing along X.
	FollowerTarget  Waypoint `yaml:"follower_target"`
	FollowerSpacing float64  `yaml:"follower_spacing"`
}

// ChannelConfig defines the acoustic link
type ChannelConfig struct {
	LeaderNoise   float64       `yaml:"leader_noise" validate:"gte=0"`
	FollowerNoise float64       `yaml:"follower_noise" validate:"gte=0"`
	Loss          float64       `yaml:"loss" validate:"gte=0,lte=1"`
	Delay         time.Duration `yaml:"delay" validate:"gte=0"`
	InboxCapacity int           `yaml:"inbox_capacity" validate:"gte=0"`
	Overflow      string        `yaml:"overflow" validate:"omitempty,oneof=drop_newest drop_oldest"`
	// BroadcastIntervalTicks is how often the leader broadcasts its position.
	BroadcastIntervalTicks int `yaml:"broadcast_interval_ticks" validate:"gte=1"`
}

// GuidanceConfig defines controller tuning
type GuidanceConfig struct {
	SpeedLimit      float64 `yaml:"speed_limit" validate:"gt=0"`
	LeaderArrival   float64 `yaml:"leader_arrival" validate:"gt=0"`
	FollowerArrival float64 `yaml:"follower_arrival" validate:"gt=0"`
	DeadZone        float64 `yaml:"dead_zone" validate:"gte=0"`
}

// HazardConfig defines hazard detection
type HazardConfig struct {
	// Enabled feeds classifier output to the fleet; when false every code is nominal.
	Enabled    bool          `yaml:"enabled"`
	Classifier string        `yaml:"classifier" validate:"oneof=rules offline"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`

	LeaderRange       float64 `yaml:"leader_range" validate:"gt=0"`
	Disconnect        float64 `yaml:"disconnect" validate:"gt=0"`
	Obstacle          float64 `yaml:"obstacle" validate:"gt=0"`
	Collision         float64 `yaml:"collision" validate:"gt=0"`
	ObstacleClearance float64 `yaml:"obstacle_clearance" validate:"gte=0"`
}

// PerformanceConfig defines performance settings
type PerformanceConfig struct {
	ParallelNodes bool `yaml:"parallel_nodes"`
	MaxWorkers    int  `yaml:"max_workers" validate:"gte=0"`
}

// LoggingConfig defines logging and reporting settings
type LoggingConfig struct {
	ConsoleLevel  string `yaml:"console_level" validate:"oneof=debug info warn error"`
	EnableAAR     bool   `yaml:"enable_aar"`
	AARFormat     string `yaml:"aar_format" validate:"oneof=yaml json markdown"`
	AAROutputPath string `yaml:"aar_output_path"`
	// StatusEveryTicks controls how often the fleet status table is printed; 0 disables it.
	StatusEveryTicks int `yaml:"status_every_ticks" validate:"gte=0"`
}

// TelemetryConfig defines the vehicle state stream
type TelemetryConfig struct {
	// PublishAddr is a mangos URL such as tcp://127.0.0.1:40899; empty disables publishing.
	PublishAddr   string        `yaml:"publish_addr"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gt=0"`
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	// ListenAddr serves /metrics when set, for example :9464.
	ListenAddr string `yaml:"listen_addr"`
}

// Validate checks if the configuration is valid
func (c *SimulationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Hazard.Collision >= c.Hazard.Disconnect {
		return fmt.Errorf("collision distance must be less than disconnect distance")
	}

	if err := c.ChannelSettings(controllers.Leader).Validate(); err != nil {
		return fmt.Errorf("leader channel: %w", err)
	}
	if err := c.ChannelSettings(controllers.Follower).Validate(); err != nil {
		return fmt.Errorf("follower channel: %w", err)
	}

	return nil
}

// formatValidationError turns the first validator error into a readable message
func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, e := range validationErrs {
		field := strings.TrimPrefix(e.Namespace(), "SimulationConfig.")
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s is required", field)
		case "gt", "gte", "lt", "lte":
			return fmt.Errorf("%s must be %s %s, got %v", field, comparison(e.Tag()), e.Param(), e.Value())
		case "oneof":
			return fmt.Errorf("%s must be one of [%s], got %q", field, e.Param(), e.Value())
		default:
			return fmt.Errorf("%s failed %s validation", field, e.Tag())
		}
	}
	return err
}

func comparison(tag string) string {
	switch tag {
	case "gt":
		return "greater than"
	case "gte":
		return "at least"
	case "lt":
		return "less than"
	default:
		return "at most"
	}
}

// ChannelSettings returns the modem parameters for a vehicle of the given role
func (c *SimulationConfig) ChannelSettings(role controllers.Role) acoustic.ChannelSettings {
	noise := c.Channel.FollowerNoise
	if role == controllers.Leader {
		noise = c.Channel.LeaderNoise
	}
	overflow := acoustic.OverflowPolicy(c.Channel.Overflow)
	if overflow == "" {
		overflow = acoustic.DropNewest
	}
	return acoustic.ChannelSettings{
		Loss:          c.Channel.Loss,
		Noise:         noise,
		Delay:         c.Channel.Delay,
		InboxCapacity: c.Channel.InboxCapacity,
		Overflow:      overflow,
	}
}

// GuidanceSettings returns the controller tuning
func (c *SimulationConfig) GuidanceSettings() controllers.Settings {
	return controllers.Settings{
		SpeedLimit:      c.Guidance.SpeedLimit,
		LeaderArrival:   c.Guidance.LeaderArrival,
		FollowerArrival: c.Guidance.FollowerArrival,
		DeadZone:        c.Guidance.DeadZone,
	}
}

// Thresholds returns the hazard detection distances
func (c *SimulationConfig) Thresholds() hazard.Thresholds {
	return hazard.Thresholds{
		LeaderRange:       c.Hazard.LeaderRange,
		Disconnect:        c.Hazard.Disconnect,
		Obstacle:          c.Hazard.Obstacle,
		Collision:         c.Hazard.Collision,
		ObstacleClearance: c.Hazard.ObstacleClearance,
	}
}

// FollowerTarget returns the initial route of the follower with the given node id
func (c *SimulationConfig) FollowerTarget(node int) Waypoint {
	wp := c.Fleet.FollowerTarget
	wp.X += float64(node) * c.Fleet.FollowerSpacing
	return wp
}

// String returns a human-readable representation of the configuration
func (c *SimulationConfig) String() string {
	telemetry := "disabled"
	if c.Telemetry.PublishAddr != "" {
		telemetry = c.Telemetry.PublishAddr
	}
	return fmt.Sprintf(`Simulation Configuration:
  Name: %s
  Description: %s
  Update Interval: %v
  Time Step: %v
  Max Ticks: %d

Fleet:
  ROVs: %d
  Obstacles: %d
  Leader Target: (%.1f, %.1f) depth %.1f

Channel:
  Loss: %.2f
  Noise: leader %.2f, follower %.2f
  Delay: %v
  Broadcast Every: %d ticks

Hazard:
  Enabled: %t
  Classifier: %s

Performance:
  Parallel Nodes: %t
  Max Workers: %d

Logging:
  Console Level: %s
  AAR Enabled: %t
  AAR Format: %s

Telemetry: %s`,
		c.Simulation.Name,
		c.Simulation.Description,
		c.Simulation.UpdateInterval,
		c.Simulation.TimeStep,
		c.Simulation.MaxTicks,
		c.Fleet.NumROVs,
		c.Fleet.NumObstacles,
		c.Fleet.LeaderTarget.X, c.Fleet.LeaderTarget.Z, c.Fleet.LeaderTarget.Depth,
		c.Channel.Loss,
		c.Channel.LeaderNoise, c.Channel.FollowerNoise,
		c.Channel.Delay,
		c.Channel.BroadcastIntervalTicks,
		c.Hazard.Enabled,
		c.Hazard.Classifier,
		c.Performance.ParallelNodes,
		c.Performance.MaxWorkers,
		c.Logging.ConsoleLevel,
		c.Logging.EnableAAR,
		c.Logging.AARFormat,
		telemetry,
	)
}

// GetDefaultConfig returns the stock four-vehicle scenario
func GetDefaultConfig() *SimulationConfig {
	guidance := controllers.DefaultSettings()
	thresholds := hazard.DefaultThresholds()

	return &SimulationConfig{
		Simulation: SimulationSettings{
			Name:           "rov-swarm",
			Description:    "Underwater ROV swarm over an acoustic link",
			UpdateInterval: 100 * time.Millisecond,
			TimeStep:       100 * time.Millisecond,
			MaxTicks:       0,
		},

		Fleet: FleetConfig{
			NumROVs:         4,
			NumObstacles:    15,
			SpawnRadius:     10,
			SpawnDepth:      -2,
			LeaderTarget:    Waypoint{X: 40, Z: 60, Depth: 0},
			FollowerTarget:  Waypoint{X: 30, Z: 50, Depth: -10},
			FollowerSpacing: 5,
		},

		Channel: ChannelConfig{
			LeaderNoise:            0.05,
			FollowerNoise:          0.1,
			Loss:                   0.1,
			Delay:                  500 * time.Millisecond,
			InboxCapacity:          0,
			Overflow:               string(acoustic.DropNewest),
			BroadcastIntervalTicks: 10,
		},

		Guidance: GuidanceConfig{
			SpeedLimit:      guidance.SpeedLimit,
			LeaderArrival:   guidance.LeaderArrival,
			FollowerArrival: guidance.FollowerArrival,
			DeadZone:        guidance.DeadZone,
		},

		Hazard: HazardConfig{
			Enabled:           true,
			Classifier:        hazard.KindRules,
			Timeout:           50 * time.Millisecond,
			LeaderRange:       thresholds.LeaderRange,
			Disconnect:        thresholds.Disconnect,
			Obstacle:          thresholds.Obstacle,
			Collision:         thresholds.Collision,
			ObstacleClearance: thresholds.ObstacleClearance,
		},

		Performance: PerformanceConfig{
			ParallelNodes: false,
			MaxWorkers:    4,
		},

		Logging: LoggingConfig{
			ConsoleLevel:     "info",
			EnableAAR:        true,
			AARFormat:        "yaml",
			AAROutputPath:    "./reports/",
			StatusEveryTicks: 50,
		},

		Telemetry: TelemetryConfig{
			BatchSize:     16,
			FlushInterval: 250 * time.Millisecond,
		},
	}
}
