package simulation

import (
	"context"
)

// Simulation defines the interface that all simulations must implement
type Simulation interface {
	// Name returns the name of the simulation
	Name() string

	// Description returns a brief description of what the simulation does
	Description() string

	// Configure sets up the simulation with the provided parameters
	Configure(params map[string]interface{}) error

	// Run executes the simulation until ctx is done, Stop is called or the
	// configured tick budget is spent
	Run(ctx context.Context) error

	// Stop gracefully shuts down the simulation
	Stop() error
}

// VehicleStatus is an operator-facing snapshot of one vehicle
type VehicleStatus struct {
	NodeID  int
	Role    string
	State   string
	Hazard  string
	X, Y, Z float64
	Battery float64
}

// Commandable is implemented by simulations that accept operator commands
// while running
type Commandable interface {
	// GoTo assigns a target. A nil depth keeps the vehicle's current depth
	// and a nil ai leaves hazard reactions unchanged.
	GoTo(node int, x, z float64, depth *float64, ai *bool) error

	// Halt clears a vehicle's target and stops it
	Halt(node int) error

	// Status reports every vehicle in node order
	Status() []VehicleStatus
}
