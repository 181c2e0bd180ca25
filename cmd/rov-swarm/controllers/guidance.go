package controllers

import (
	"sync"
	"time"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// Role selects the guidance policy of a controller
type Role int

const (
	Follower Role = iota
	Leader
)

func (r Role) String() string {
	if r == Leader {
		return "leader"
	}
	return "follower"
}

// ThrustCommand is an axis command understood by the vehicle host
type ThrustCommand string

const (
	ThrustForward ThrustCommand = "forward"
	ThrustBack    ThrustCommand = "back"
	ThrustLeft    ThrustCommand = "left"
	ThrustRight   ThrustCommand = "right"
	ThrustUp      ThrustCommand = "up"
	ThrustDown    ThrustCommand = "down"
	ThrustStop    ThrustCommand = "stop"
)

// Thrust is one command issued to the host during an update
type Thrust struct {
	Command   ThrustCommand
	Magnitude float64
}

// Vehicle is the host-owned kinematic state of one ROV. Controllers only read
// it and push thrust through Move.
type Vehicle interface {
	Position() core.Vector3D
	Velocity() core.Vector3D
	Battery() float64
	Move(cmd ThrustCommand, magnitude float64)
}

// State is the guidance mode derived from the controller flags
type State int

const (
	StateNoTarget State = iota
	StateSeeking
	StateManual
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateManual:
		return "manual"
	default:
		return "no_target"
	}
}

// Settings tune the guidance law
type Settings struct {
	SpeedLimit      float64 `yaml:"speed_limit"`
	LeaderArrival   float64 `yaml:"leader_arrival"`
	FollowerArrival float64 `yaml:"follower_arrival"`
	DeadZone        float64 `yaml:"dead_zone"`
}

// DefaultSettings returns the stock guidance tuning
func DefaultSettings() Settings {
	return Settings{
		SpeedLimit:      100,
		LeaderArrival:   1.0,
		FollowerArrival: 1.5,
		DeadZone:        0.1,
	}
}

// Policy constants
var (
	leaderObstacleBias   = core.Vec(1, 0, 0)
	followerObstacleLift = core.Vec(0, 1, 0)
	followerDriftLift    = core.Vec(0, 0.2, 0)
)

const (
	followerObstacleBackoff = -0.5
	followerCollisionRecoil = -1.5
	followerHeadingBlend    = 0.1
	followerObstacleGain    = 0.5
	followerOutOfRangeGain  = 1.5
)

// LeaderFix is the most recent leader position heard over the acoustic link
type LeaderFix struct {
	Position core.Vector3D
	SentAt   time.Time
	PacketID string
}

// GuidanceController steers one vehicle toward its target. Leader and
// follower share the record; Update selects the policy by role.
type GuidanceController struct {
	mu sync.Mutex

	id          acoustic.NodeID
	role        Role
	settings    Settings
	vehicle     Vehicle
	modem       *acoustic.Modem
	leaderModem *acoustic.Modem
	log         logger.Logger

	target         *core.Vector3D
	manualOverride bool
	aiEnabled      bool

	lastHazard   hazard.Code
	lastCommands []Thrust
	leaderFix    *LeaderFix
}

// NewLeader creates the controller for the fleet leader
func NewLeader(id acoustic.NodeID, vehicle Vehicle, modem *acoustic.Modem, settings Settings) *GuidanceController {
	return newController(id, Leader, vehicle, modem, nil, settings)
}

// NewFollower creates a follower controller. leaderModem may be nil when the
// follower has no leader to listen to.
func NewFollower(id acoustic.NodeID, vehicle Vehicle, modem, leaderModem *acoustic.Modem, settings Settings) *GuidanceController {
	return newController(id, Follower, vehicle, modem, leaderModem, settings)
}

func newController(id acoustic.NodeID, role Role, vehicle Vehicle, modem, leaderModem *acoustic.Modem, settings Settings) *GuidanceController {
	return &GuidanceController{
		id:          id,
		role:        role,
		settings:    settings,
		vehicle:     vehicle,
		modem:       modem,
		leaderModem: leaderModem,
		aiEnabled:   true,
		log:         logger.WithPrefix("gnc").WithField("node", int(id)),
	}
}

func (c *GuidanceController) ID() acoustic.NodeID    { return c.id }
func (c *GuidanceController) Role() Role             { return c.role }
func (c *GuidanceController) Vehicle() Vehicle       { return c.vehicle }
func (c *GuidanceController) Modem() *acoustic.Modem { return c.modem }

// AssignTarget sets the point the controller steers toward
func (c *GuidanceController) AssignTarget(x, y, z float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := core.Vec(x, y, z)
	c.target = &target
}

// Engage hands the controller back to guidance: manual override off, AI set
// to ai and target assigned in one step, so a concurrent Update sees either
// the old route or the new one.
func (c *GuidanceController) Engage(target core.Vector3D, ai bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualOverride = false
	c.aiEnabled = ai
	c.target = &target
}

// Target returns a copy of the current target
func (c *GuidanceController) Target() (core.Vector3D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return core.Vector3D{}, false
	}
	return *c.target, true
}

func (c *GuidanceController) SetManualOverride(manual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualOverride = manual
}

func (c *GuidanceController) ManualOverride() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manualOverride
}

// SetAIEnabled toggles hazard reactivity. With AI off the controller keeps
// navigating but treats every hazard code as nominal.
func (c *GuidanceController) SetAIEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aiEnabled = enabled
}

func (c *GuidanceController) AIEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aiEnabled
}

// State reports the current guidance mode
func (c *GuidanceController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.manualOverride:
		return StateManual
	case c.target == nil:
		return StateNoTarget
	default:
		return StateSeeking
	}
}

// LastHazard returns the code passed to the most recent Update, after
// normalization and before the AI switch is applied
func (c *GuidanceController) LastHazard() hazard.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHazard
}

// LastCommands returns the thrust issued by the most recent Update
func (c *GuidanceController) LastCommands() []Thrust {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Thrust, len(c.lastCommands))
	copy(out, c.lastCommands)
	return out
}

// Update runs one guidance step for the given hazard code and returns the
// thrust it issued. It never fails; an inert controller returns nil.
func (c *GuidanceController) Update(code hazard.Code) []Thrust {
	c.mu.Lock()
	defer c.mu.Unlock()

	code = code.Normalize()
	c.lastHazard = code
	c.lastCommands = nil

	if c.manualOverride || c.target == nil {
		return nil
	}
	if !c.aiEnabled {
		code = hazard.Nominal
	}

	delta := c.target.Subtract(c.vehicle.Position())
	if delta.Magnitude() < c.arrival() {
		return nil
	}

	// The leader never dives; the clamp applies from the next tick on.
	if c.role == Leader && c.target.Y < 0 {
		c.target.Y = 0
	}

	heading := delta.Normalize()
	vector, gain := c.steer(code, heading)
	c.lastCommands = c.thrust(vector, gain)
	return c.lastCommands
}

func (c *GuidanceController) arrival() float64 {
	if c.role == Leader {
		return c.settings.LeaderArrival
	}
	return c.settings.FollowerArrival
}

// steer applies the role policy to the seek heading
func (c *GuidanceController) steer(code hazard.Code, heading core.Vector3D) (core.Vector3D, float64) {
	if c.role == Leader {
		switch code {
		case hazard.Obstacle:
			return heading.Add(leaderObstacleBias), 1
		case hazard.Collision:
			return core.Vector3D{}, 1
		default:
			return heading, 1
		}
	}

	gain := 1.0
	var avoid core.Vector3D
	switch code {
	case hazard.Obstacle:
		avoid = followerObstacleLift.Add(heading.Scale(followerObstacleBackoff))
		gain = followerObstacleGain
	case hazard.Collision:
		avoid = heading.Scale(followerCollisionRecoil)
	case hazard.Disconnected:
		avoid = followerDriftLift
	case hazard.OutOfRange:
		gain = followerOutOfRangeGain
	}

	if code == hazard.Nominal || code == hazard.OutOfRange {
		return heading, gain
	}
	return avoid.Add(heading.Scale(followerHeadingBlend)), gain
}

// thrust converts a steering vector into per-axis commands. Components inside
// the dead zone produce nothing; a zero vector produces no commands at all.
func (c *GuidanceController) thrust(v core.Vector3D, gain float64) []Thrust {
	if v.IsZero() {
		return nil
	}

	power := c.settings.SpeedLimit * gain
	var out []Thrust
	axis := func(component float64, positive, negative ThrustCommand) {
		switch {
		case component > c.settings.DeadZone:
			out = append(out, Thrust{Command: positive, Magnitude: component * power})
		case component < -c.settings.DeadZone:
			out = append(out, Thrust{Command: negative, Magnitude: -component * power})
		}
	}
	axis(v.X, ThrustRight, ThrustLeft)
	axis(v.Y, ThrustUp, ThrustDown)
	axis(v.Z, ThrustForward, ThrustBack)

	for _, t := range out {
		c.vehicle.Move(t.Command, t.Magnitude)
	}
	return out
}

// Halt clears the target and tells the host to stop the vehicle
func (c *GuidanceController) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = nil
	c.lastCommands = []Thrust{{Command: ThrustStop}}
	c.vehicle.Move(ThrustStop, 0)
}

// UpdateDirectory hands the peer directory to this controller's modem
func (c *GuidanceController) UpdateDirectory(dir acoustic.Directory) {
	if c.modem != nil {
		c.modem.UpdateDirectory(dir)
	}
}

// Broadcast sends the vehicle position to every directory peer. Only the
// leader broadcasts; followers return 0.
func (c *GuidanceController) Broadcast() int {
	if c.role != Leader || c.modem == nil {
		return 0
	}
	return c.modem.BroadcastPosition(c.vehicle.Position())
}

// Listen drains the packets that have arrived at this node. Followers record
// the newest leader position among them; leaders keep no fix.
func (c *GuidanceController) Listen() []acoustic.Packet {
	if c.modem == nil {
		return nil
	}
	packets := c.modem.ReceiveReady()
	if c.role == Leader {
		return packets
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range packets {
		if p.Kind != acoustic.KindPositionBroadcast {
			continue
		}
		if c.leaderModem != nil && p.Sender != c.leaderModem.ID() {
			continue
		}
		vec, ok := p.Vector()
		if !ok {
			continue
		}
		pos, ok := core.FromComponents(vec)
		if !ok {
			c.log.Debugf("Ignoring malformed position broadcast %s", p.ID)
			continue
		}
		c.leaderFix = &LeaderFix{Position: pos, SentAt: p.SentAt, PacketID: p.ID}
	}
	return packets
}

// LeaderFix returns the last leader position heard, if any
func (c *GuidanceController) LeaderFix() (LeaderFix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leaderFix == nil {
		return LeaderFix{}, false
	}
	return *c.leaderFix, true
}
