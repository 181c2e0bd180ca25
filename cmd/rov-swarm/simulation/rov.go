package simulation

import (
	"math"
	"sync"
	"time"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
)

// Kinematic constants of the vehicle host
const (
	Friction      = 0.95
	ThrustFactor  = 0.5
	Buoyancy      = 2.0
	BatteryDrain  = 0.01
	MovingSpeed   = 0.01
	LeaderFloor   = -2.0
	LeaderCeiling = 0.5
	FollowerFloor = -100.0
)

// ROV is the headless stand-in for the physics host. It integrates thrust
// into velocity once per step and implements controllers.Vehicle.
type ROV struct {
	mu       sync.RWMutex
	id       int
	role     controllers.Role
	position core.Vector3D
	velocity core.Vector3D
	battery  float64
	dt       float64
}

var _ controllers.Vehicle = (*ROV)(nil)

// NewROV creates a vehicle at pos with a full battery. dt is the simulated
// time covered by one step.
func NewROV(id int, role controllers.Role, pos core.Vector3D, dt time.Duration) *ROV {
	return &ROV{
		id:       id,
		role:     role,
		position: pos,
		battery:  100.0,
		dt:       dt.Seconds(),
	}
}

func (r *ROV) ID() int                { return r.id }
func (r *ROV) Role() controllers.Role { return r.role }

func (r *ROV) Position() core.Vector3D {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}

func (r *ROV) Velocity() core.Vector3D {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.velocity
}

func (r *ROV) Battery() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battery
}

// Move applies one axis command. A drained vehicle ignores thrust and a
// leader cannot dive.
func (r *ROV) Move(cmd controllers.ThrustCommand, magnitude float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.battery <= 0 {
		return
	}
	thrust := magnitude * ThrustFactor * r.dt

	switch cmd {
	case controllers.ThrustForward:
		r.velocity.Z += thrust
	case controllers.ThrustBack:
		r.velocity.Z -= thrust
	case controllers.ThrustRight:
		r.velocity.X += thrust
	case controllers.ThrustLeft:
		r.velocity.X -= thrust
	case controllers.ThrustUp:
		r.velocity.Y += thrust
	case controllers.ThrustDown:
		if r.role != controllers.Leader {
			r.velocity.Y -= thrust
		}
	case controllers.ThrustStop:
		r.velocity = core.Vector3D{}
	}
}

// Step advances the vehicle by one time step
func (r *ROV) Step() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.position = r.position.Add(r.velocity.Scale(r.dt))
	r.velocity = r.velocity.Scale(Friction)

	if r.role == controllers.Leader {
		if r.position.Y < 0 {
			r.velocity.Y += Buoyancy * r.dt
			if r.position.Y > -0.5 {
				r.velocity.Y *= 0.5
			}
		}
		if r.position.Y < LeaderFloor {
			r.position.Y = LeaderFloor
		}
		if r.position.Y > LeaderCeiling {
			r.position.Y = LeaderCeiling
			r.velocity.Y = 0
		}
	} else {
		if r.position.Y > 0 {
			r.position.Y = 0
			r.velocity.Y = 0
		}
		if r.position.Y < FollowerFloor {
			r.position.Y = FollowerFloor
			r.velocity.Y = 0
		}
	}

	if r.velocity.Magnitude() > MovingSpeed {
		r.battery = math.Max(0, r.battery-BatteryDrain*r.dt)
	}
}

// Snapshot returns position, velocity and battery under one lock
func (r *ROV) Snapshot() (core.Vector3D, core.Vector3D, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position, r.velocity, r.battery
}
