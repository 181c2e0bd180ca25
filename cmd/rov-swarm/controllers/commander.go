package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

// ErrInvalidNodeID is returned when a command addresses a node the fleet
// does not have
var ErrInvalidNodeID = errors.New("invalid node id")

// FleetCommander owns the guidance controllers of a fleet. The controller at
// index i always drives node i.
type FleetCommander struct {
	mu          sync.RWMutex
	controllers []*GuidanceController
	log         logger.Logger
}

// NewFleetCommander creates an empty commander. A nil logger uses the
// process default.
func NewFleetCommander(log logger.Logger) *FleetCommander {
	if log == nil {
		log = logger.Default()
	}
	return &FleetCommander{log: log.WithPrefix("commander")}
}

// Add registers the controller for the next node. The controller's ID must
// equal its position in the fleet.
func (fc *FleetCommander) Add(c *GuidanceController) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if int(c.ID()) != len(fc.controllers) {
		return fmt.Errorf("controller for node %d added at index %d", c.ID(), len(fc.controllers))
	}
	fc.controllers = append(fc.controllers, c)
	return nil
}

// Len returns the fleet size
func (fc *FleetCommander) Len() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.controllers)
}

// Controllers returns the controllers in node order
func (fc *FleetCommander) Controllers() []*GuidanceController {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	out := make([]*GuidanceController, len(fc.controllers))
	copy(out, fc.controllers)
	return out
}

// Controller returns the controller for id
func (fc *FleetCommander) Controller(id int) (*GuidanceController, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	if id < 0 || id >= len(fc.controllers) {
		return nil, fmt.Errorf("%w: %d (fleet has %d vehicles)", ErrInvalidNodeID, id, len(fc.controllers))
	}
	return fc.controllers[id], nil
}

type dispatchOptions struct {
	depth *float64
	ai    bool
}

// DispatchOption adjusts a DispatchTarget call
type DispatchOption func(*dispatchOptions)

// WithDepth sets the target depth. Without it the vehicle's current depth
// is kept.
func WithDepth(y float64) DispatchOption {
	return func(o *dispatchOptions) { o.depth = &y }
}

// WithAI sets whether the vehicle reacts to hazards on the way. Default true.
func WithAI(enabled bool) DispatchOption {
	return func(o *dispatchOptions) { o.ai = enabled }
}

// DispatchTarget sends vehicle id to (x, z). Autopilot is re-engaged. An
// unknown id returns ErrInvalidNodeID and changes nothing.
func (fc *FleetCommander) DispatchTarget(id int, x, z float64, opts ...DispatchOption) error {
	c, err := fc.Controller(id)
	if err != nil {
		fc.log.Errorf("Rejected go-to: %v", err)
		return err
	}

	o := dispatchOptions{ai: true}
	for _, opt := range opts {
		opt(&o)
	}
	depth := c.Vehicle().Position().Y
	if o.depth != nil {
		depth = *o.depth
	}

	c.Engage(core.Vec(x, depth, z), o.ai)

	aiState := "on"
	if !o.ai {
		aiState = "off (blind)"
	}
	fc.log.WithField("node", id).Infof("Route set to x=%.1f z=%.1f depth=%.1f, AI %s", x, z, depth, aiState)
	return nil
}

// Stop clears the target of vehicle id and halts it
func (fc *FleetCommander) Stop(id int) error {
	c, err := fc.Controller(id)
	if err != nil {
		fc.log.Errorf("Rejected stop: %v", err)
		return err
	}
	c.Halt()
	fc.log.WithField("node", id).Warn("Stopping vehicle")
	return nil
}

// Tick updates controller i with codes[i]. Controllers without a code are
// skipped. It returns the number of controllers updated.
func (fc *FleetCommander) Tick(codes []hazard.Code) int {
	controllers := fc.Controllers()
	n := min(len(controllers), len(codes))
	for i := 0; i < n; i++ {
		controllers[i].Update(codes[i])
	}
	return n
}

// TickConcurrent is Tick with controllers updated in parallel, at most limit
// at a time. Nodes only touch their own vehicle during an update.
func (fc *FleetCommander) TickConcurrent(ctx context.Context, codes []hazard.Code, limit int) (int, error) {
	controllers := fc.Controllers()
	n := min(len(controllers), len(codes))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		c, code := controllers[i], codes[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.Update(code)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return n, fmt.Errorf("fleet tick: %w", err)
	}
	return n, nil
}

// DistributeDirectory hands dir to the leaders only. Followers learn about
// the leader from its broadcasts. It returns the number of leaders updated.
func (fc *FleetCommander) DistributeDirectory(dir acoustic.Directory) int {
	updated := 0
	for _, c := range fc.Controllers() {
		if c.Role() != Leader {
			continue
		}
		c.UpdateDirectory(dir)
		updated++
	}
	fc.log.Debugf("Directory of %d modems distributed to %d leader(s)", len(dir), updated)
	return updated
}

// Leader returns the first leader in the fleet
func (fc *FleetCommander) Leader() (*GuidanceController, bool) {
	for _, c := range fc.Controllers() {
		if c.Role() == Leader {
			return c, true
		}
	}
	return nil, false
}
