package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/acoustic"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/config"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/reporting"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/telemetry"
	"github.com/picogrid/rov-simulations/pkg/logger"
	"github.com/picogrid/rov-simulations/pkg/simulation"
)

// Name is the registry name of the simulation
const Name = "ROV Swarm"

// ROVSwarmSimulation runs a leader/follower ROV fleet over a lossy acoustic
// link. Each tick classifies hazards, updates every guidance controller,
// exchanges acoustic traffic and integrates vehicle kinematics.
type ROVSwarmSimulation struct {
	config *config.SimulationConfig
	simID  string
	log    logger.Logger

	// Fleet
	clock      *core.ManualClock
	network    *acoustic.Network
	commander  *controllers.FleetCommander
	rovs       []*ROV
	obstacles  []Obstacle
	classifier hazard.Classifier

	// Reporting
	metrics      *reporting.Metrics
	simLogger    *reporting.SimulationLogger
	aarGenerator *reporting.AARGenerator

	// Telemetry
	updateBuffer  *core.UpdateBuffer
	publisher     *telemetry.Publisher
	metricsServer *http.Server

	// Per-node bookkeeping, touched only by the tick loop
	lastCodes   []hazard.Code
	hazardHist  []map[string]int
	leaderFixes []int
	fallbacks   int

	tick     atomic.Uint64
	stepMu   sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

var (
	_ simulation.Simulation  = (*ROVSwarmSimulation)(nil)
	_ simulation.Commandable = (*ROVSwarmSimulation)(nil)
)

// NewROVSwarmSimulation creates a new instance of the ROV swarm simulation
func NewROVSwarmSimulation() simulation.Simulation {
	return &ROVSwarmSimulation{
		stopChan: make(chan struct{}),
		log:      logger.WithPrefix("rov-swarm"),
	}
}

// NewWithConfig creates a simulation from an already validated configuration
// and assembles the fleet
func NewWithConfig(cfg *config.SimulationConfig) (*ROVSwarmSimulation, error) {
	s := &ROVSwarmSimulation{
		config:   cfg,
		stopChan: make(chan struct{}),
		log:      logger.WithPrefix("rov-swarm"),
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the simulation name
func (s *ROVSwarmSimulation) Name() string {
	return Name
}

// Description returns the simulation description
func (s *ROVSwarmSimulation) Description() string {
	return "Leader/follower ROV fleet with a lossy, noisy, delayed acoustic link and hazard-reactive guidance"
}

// Configure loads the configuration file named by the "config_file" parameter
// (or the default search paths) and applies the remaining parameters as
// overrides
func (s *ROVSwarmSimulation) Configure(params map[string]interface{}) error {
	s.log.Info("Configuring ROV swarm simulation...")

	path, _ := params["config_file"].(string)
	cfg, err := config.LoadConfigWithOverrides(path, params)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.ConsoleLevel))
	s.config = cfg

	s.log.Infof("Configuration: %d ROVs, %d obstacles, loss %.2f, delay %v",
		cfg.Fleet.NumROVs, cfg.Fleet.NumObstacles, cfg.Channel.Loss, cfg.Channel.Delay)

	return s.initialize()
}

// Config returns the active configuration
func (s *ROVSwarmSimulation) Config() *config.SimulationConfig {
	return s.config
}

// Commander exposes the fleet commander
func (s *ROVSwarmSimulation) Commander() *controllers.FleetCommander {
	return s.commander
}

// Metrics exposes the Prometheus collectors
func (s *ROVSwarmSimulation) Metrics() *reporting.Metrics {
	return s.metrics
}

// Ticks returns the number of completed ticks
func (s *ROVSwarmSimulation) Ticks() uint64 {
	return s.tick.Load()
}

// initialize assembles the fleet: one leader at node 0, followers after it,
// every modem joined to the network and the directory handed to the leader.
func (s *ROVSwarmSimulation) initialize() error {
	if s.config == nil {
		return fmt.Errorf("simulation not configured")
	}
	cfg := s.config

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s.simID = uuid.New().String()
	s.simLogger = reporting.NewSimulationLogger(s.simID)
	s.metrics = reporting.NewMetrics()
	s.aarGenerator = reporting.NewAARGenerator(s.simLogger, reporting.AARConfig{
		OutputDir:        cfg.Logging.AAROutputPath,
		Format:           cfg.Logging.AARFormat,
		DetailLevel:      "detailed",
		SimulationConfig: configAsMap(cfg),
	})

	classifier, err := hazard.NewClassifier(cfg.Hazard.Classifier)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	s.classifier = classifier

	s.clock = core.NewManualClock(time.Unix(0, 0))
	s.network = acoustic.NewNetwork(s.clock, s.metrics, rng.Int63())
	s.commander = controllers.NewFleetCommander(logger.WithPrefix("commander"))
	s.obstacles = SpawnObstacles(rng, cfg.Fleet.NumObstacles)

	n := cfg.Fleet.NumROVs
	spawns := SpawnPositions(rng, n, cfg.Fleet.SpawnRadius, cfg.Fleet.SpawnDepth)
	settings := cfg.GuidanceSettings()

	s.rovs = make([]*ROV, 0, n)
	var leaderModem *acoustic.Modem
	for i := 0; i < n; i++ {
		role := controllers.Follower
		if i == 0 {
			role = controllers.Leader
		}

		modem, err := s.network.Join(cfg.ChannelSettings(role))
		if err != nil {
			return fmt.Errorf("failed to join ROV %d to the acoustic network: %w", i, err)
		}

		rov := NewROV(i, role, spawns[i], cfg.Simulation.TimeStep)
		var ctrl *controllers.GuidanceController
		if role == controllers.Leader {
			leaderModem = modem
			ctrl = controllers.NewLeader(acoustic.NodeID(i), rov, modem, settings)
		} else {
			ctrl = controllers.NewFollower(acoustic.NodeID(i), rov, modem, leaderModem, settings)
		}

		if err := s.commander.Add(ctrl); err != nil {
			return err
		}
		s.rovs = append(s.rovs, rov)
	}

	s.commander.DistributeDirectory(s.network.Directory())

	s.lastCodes = hazard.NominalCodes(n)
	s.hazardHist = make([]map[string]int, n)
	for i := range s.hazardHist {
		s.hazardHist[i] = make(map[string]int)
	}
	s.leaderFixes = make([]int, n)
	s.fallbacks = 0
	s.tick.Store(0)

	// A stopped run leaves stopChan closed; reconfiguring rearms it.
	s.stopChan = make(chan struct{})
	s.stopOnce = sync.Once{}

	s.log.Infof("Fleet assembled: 1 leader, %d followers, %d obstacles", n-1, len(s.obstacles))

	// Routes are set before Run so operator commands issued while the run
	// starts up are not overwritten.
	s.dispatchInitialRoutes()
	return nil
}

// dispatchInitialRoutes sends the leader to the surface waypoint and spreads
// the followers along the follower waypoint
func (s *ROVSwarmSimulation) dispatchInitialRoutes() {
	cfg := s.config
	for i := range s.rovs {
		wp := cfg.Fleet.LeaderTarget
		if i > 0 {
			wp = cfg.FollowerTarget(i)
		}
		depth := wp.Depth
		if err := s.GoTo(i, wp.X, wp.Z, &depth, nil); err != nil {
			s.log.Warnf("Initial route for ROV %d rejected: %v", i, err)
		}
	}
}

// Run executes the simulation
func (s *ROVSwarmSimulation) Run(ctx context.Context) error {
	if s.config == nil || s.commander == nil {
		return fmt.Errorf("simulation not configured")
	}
	s.log.Infof("Starting %s simulation", s.Name())

	if err := s.startOutputs(); err != nil {
		return err
	}
	defer s.closeOutputs()

	s.updateBuffer.Start(ctx)
	defer s.updateBuffer.Stop()

	err := s.runSimulationLoop(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if ferr := s.updateBuffer.Flush(flushCtx); ferr != nil {
		s.simLogger.LogError("Final telemetry flush failed", ferr, map[string]interface{}{
			"pending": s.updateBuffer.GetPendingCount(),
		})
	}
	cancel()

	s.simLogger.PrintSummary()

	if s.config.Logging.EnableAAR {
		if aerr := s.generateAAR(); aerr != nil {
			s.simLogger.LogError("Failed to generate AAR", aerr, nil)
		}
	}

	return err
}

func (s *ROVSwarmSimulation) startOutputs() error {
	cfg := s.config

	var sink core.Sink
	if cfg.Telemetry.PublishAddr != "" {
		publisher, err := telemetry.Listen(cfg.Telemetry.PublishAddr)
		if err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}
		s.publisher = publisher
		sink = publisher
	}
	s.updateBuffer = core.NewUpdateBuffer(sink, cfg.Telemetry.BatchSize, cfg.Telemetry.FlushInterval)

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.simLogger.LogError("Metrics server stopped", err, map[string]interface{}{
					"addr": cfg.Metrics.ListenAddr,
				})
			}
		}()
		s.log.Infof("Serving metrics on http://%s/metrics", cfg.Metrics.ListenAddr)
	}
	return nil
}

func (s *ROVSwarmSimulation) closeOutputs() {
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsServer.Shutdown(ctx)
		cancel()
		s.metricsServer = nil
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
		s.publisher = nil
	}
}

func (s *ROVSwarmSimulation) runSimulationLoop(ctx context.Context) error {
	s.log.Info("Starting main simulation loop...")

	var ticks <-chan time.Time
	if interval := s.config.Simulation.UpdateInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	maxTicks := uint64(s.config.Simulation.MaxTicks)
	for {
		if maxTicks > 0 && s.tick.Load() >= maxTicks {
			s.log.Infof("Tick budget of %d reached", maxTicks)
			return nil
		}

		if ticks != nil {
			select {
			case <-ctx.Done():
				s.log.Info("Simulation cancelled by context")
				return ctx.Err()
			case <-s.stopChan:
				s.log.Info("Simulation stopped by user")
				return nil
			case <-ticks:
			}
		} else {
			select {
			case <-ctx.Done():
				s.log.Info("Simulation cancelled by context")
				return ctx.Err()
			case <-s.stopChan:
				s.log.Info("Simulation stopped by user")
				return nil
			default:
			}
		}

		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Errorf("Error executing simulation phases: %v", err)
		}
	}
}

// Step runs one tick. Phase errors are reported but never stop the tick;
// the joined error is returned for logging.
func (s *ROVSwarmSimulation) Step(ctx context.Context) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	start := time.Now()
	tick := s.tick.Load()

	codes := s.executeClassification(ctx, tick)

	var errs []error
	if err := s.executeGuidance(ctx, codes); err != nil {
		errs = append(errs, fmt.Errorf("guidance phase failed: %w", err))
	}
	if err := s.executeCommunication(ctx, tick); err != nil {
		errs = append(errs, fmt.Errorf("communication phase failed: %w", err))
	}
	s.executeKinematics()
	s.executeReporting(tick, codes)

	s.tick.Add(1)
	s.metrics.RecordTick(time.Since(start))

	return errors.Join(errs...)
}

// executeClassification builds the feature graph and asks the classifier
// for one code per node, falling back to nominal codes on failure
func (s *ROVSwarmSimulation) executeClassification(ctx context.Context, tick uint64) []hazard.Code {
	n := len(s.rovs)
	if !s.config.Hazard.Enabled {
		return hazard.NominalCodes(n)
	}

	nodes := make([]hazard.NodeState, n)
	for i, rov := range s.rovs {
		pos, vel, battery := rov.Snapshot()
		nodes[i] = hazard.NodeState{
			Position: pos,
			Velocity: vel,
			Battery:  battery,
			Leader:   rov.Role() == controllers.Leader,
		}
	}
	graph, _ := hazard.BuildGraph(nodes, obstaclePositions(s.obstacles), s.config.Thresholds())

	classifyCtx := ctx
	if timeout := s.config.Hazard.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		classifyCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	codes, err := hazard.ClassifyOrNominal(classifyCtx, s.classifier, graph, s.log)
	if err != nil {
		s.fallbacks++
		s.metrics.ClassifierFallbacks.Inc()
		s.simLogger.LogClassifierFallback(tick, err)
	}
	return codes
}

func (s *ROVSwarmSimulation) executeGuidance(ctx context.Context, codes []hazard.Code) error {
	if s.config.Performance.ParallelNodes {
		_, err := s.commander.TickConcurrent(ctx, codes, s.config.Performance.MaxWorkers)
		return err
	}
	s.commander.Tick(codes)
	return nil
}

// executeCommunication broadcasts the leader position on schedule and lets
// every node drain its inbox
func (s *ROVSwarmSimulation) executeCommunication(ctx context.Context, tick uint64) error {
	if interval := uint64(s.config.Channel.BroadcastIntervalTicks); interval > 0 && tick%interval == 0 {
		if leader, ok := s.commander.Leader(); ok {
			sent := leader.Broadcast()
			s.simLogger.LogBroadcast(tick, sent, s.network.Len()-1)
		}
	}

	ctrls := s.commander.Controllers()
	fixes := make([]int, len(ctrls))

	if !s.config.Performance.ParallelNodes {
		for i, c := range ctrls {
			fixes[i] = countLeaderFixes(c.Listen())
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		if limit := s.config.Performance.MaxWorkers; limit > 0 {
			g.SetLimit(limit)
		}
		for i, c := range ctrls {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fixes[i] = countLeaderFixes(c.Listen())
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i, n := range fixes {
		s.leaderFixes[i] += n
	}
	return nil
}

func countLeaderFixes(packets []acoustic.Packet) int {
	n := 0
	for _, p := range packets {
		if p.Kind == acoustic.KindPositionBroadcast {
			n++
		}
	}
	return n
}

func (s *ROVSwarmSimulation) executeKinematics() {
	for _, rov := range s.rovs {
		rov.Step()
	}
	s.clock.Advance(s.config.Simulation.TimeStep)
}

func (s *ROVSwarmSimulation) executeReporting(tick uint64, codes []hazard.Code) {
	s.metrics.RecordHazards(codes)

	for i, c := range s.commander.Controllers() {
		code := codes[i]
		if code != s.lastCodes[i] {
			s.simLogger.LogHazardChange(tick, i, s.lastCodes[i], code)
			s.lastCodes[i] = code
		}
		s.hazardHist[i][code.String()]++

		pos, vel, battery := s.rovs[i].Snapshot()
		s.metrics.SetBattery(i, battery)

		buffer := s.updateBufferOrNil()
		buffer.QueueState(core.VehicleUpdate{
			NodeID:   i,
			Role:     c.Role().String(),
			Tick:     tick,
			Position: pos,
			Velocity: vel,
			Battery:  battery,
			Hazard:   code.String(),
		})
		for _, t := range c.LastCommands() {
			buffer.QueueCommand(i, string(t.Command))
			s.metrics.RecordThrust(string(t.Command))
		}
	}

	pending := s.network.Pending()
	s.metrics.PendingPackets.Set(float64(pending))
	s.simLogger.UpdateMetric("pending_packets", float64(pending), "packets")

	if every := s.config.Logging.StatusEveryTicks; every > 0 && tick%uint64(every) == 0 {
		s.logStatus(tick)
	}
}

// updateBufferOrNil lets Step run before Run has wired the telemetry buffer
func (s *ROVSwarmSimulation) updateBufferOrNil() *core.UpdateBuffer {
	if s.updateBuffer == nil {
		s.updateBuffer = core.NewUpdateBuffer(nil, s.config.Telemetry.BatchSize, s.config.Telemetry.FlushInterval)
	}
	return s.updateBuffer
}

func (s *ROVSwarmSimulation) logStatus(tick uint64) {
	table := logger.NewTable("ROV", "Role", "State", "Position", "Battery", "Hazard")
	for _, st := range s.Status() {
		table.AddRow(
			fmt.Sprintf("%d", st.NodeID),
			st.Role,
			st.State,
			core.Vec(st.X, st.Y, st.Z).String(),
			fmt.Sprintf("%.1f%%", st.Battery),
			st.Hazard,
		)
	}
	s.log.Infof("Tick %d | simulated %v | %d packets in flight", tick, s.clock.Now().Sub(time.Unix(0, 0)), s.network.Pending())
	table.Print()
}

// GoTo assigns a target to a vehicle. The leader's depth is clamped to the
// surface by its controller.
func (s *ROVSwarmSimulation) GoTo(node int, x, z float64, depth *float64, ai *bool) error {
	var opts []controllers.DispatchOption
	if depth != nil {
		opts = append(opts, controllers.WithDepth(*depth))
	}
	if ai != nil {
		opts = append(opts, controllers.WithAI(*ai))
	}

	tick := s.tick.Load()
	if err := s.commander.DispatchTarget(node, x, z, opts...); err != nil {
		s.simLogger.LogCommandRejected(tick, fmt.Sprintf("go_to(%d)", node), err)
		return err
	}

	ctrl, _ := s.commander.Controller(node)
	target, _ := ctrl.Target()
	s.simLogger.LogDispatch(tick, node, target.X, target.Y, target.Z, ctrl.AIEnabled())
	return nil
}

// Halt stops a vehicle and clears its target
func (s *ROVSwarmSimulation) Halt(node int) error {
	tick := s.tick.Load()
	if err := s.commander.Stop(node); err != nil {
		s.simLogger.LogCommandRejected(tick, fmt.Sprintf("stop(%d)", node), err)
		return err
	}
	s.simLogger.LogStop(tick, node)
	return nil
}

// Status reports every vehicle in node order
func (s *ROVSwarmSimulation) Status() []simulation.VehicleStatus {
	ctrls := s.commander.Controllers()
	out := make([]simulation.VehicleStatus, 0, len(ctrls))
	for i, c := range ctrls {
		pos, _, battery := s.rovs[i].Snapshot()
		out = append(out, simulation.VehicleStatus{
			NodeID:  i,
			Role:    c.Role().String(),
			State:   c.State().String(),
			Hazard:  c.LastHazard().String(),
			X:       pos.X,
			Y:       pos.Y,
			Z:       pos.Z,
			Battery: battery,
		})
	}
	return out
}

// FleetReport collects the end-of-run state for the AAR
func (s *ROVSwarmSimulation) FleetReport() reporting.FleetReport {
	settings := s.config.GuidanceSettings()
	ctrls := s.commander.Controllers()

	nodes := make([]reporting.NodeReport, 0, len(ctrls))
	for i, c := range ctrls {
		pos, _, battery := s.rovs[i].Snapshot()
		report := reporting.NodeReport{
			NodeID:      i,
			Role:        c.Role().String(),
			State:       c.State().String(),
			Position:    pos,
			Battery:     battery,
			FinalHazard: s.lastCodes[i].String(),
			Hazards:     s.hazardHist[i],
			LeaderFixes: s.leaderFixes[i],
		}
		if target, ok := c.Target(); ok {
			report.Target = &target
			arrival := settings.FollowerArrival
			if c.Role() == controllers.Leader {
				arrival = settings.LeaderArrival
			}
			report.Arrived = pos.DistanceTo(target) < arrival
		}
		nodes = append(nodes, report)
	}

	link := s.metrics.Snapshot()
	link.Pending = s.network.Pending()

	return reporting.FleetReport{
		Ticks:               s.tick.Load(),
		SimulatedTime:       s.clock.Now().Sub(time.Unix(0, 0)),
		ClassifierFallbacks: s.fallbacks,
		Nodes:               nodes,
		Link:                link,
	}
}

func (s *ROVSwarmSimulation) generateAAR() error {
	s.log.Info("Generating After Action Report...")

	aar, err := s.aarGenerator.GenerateAAR(s.FleetReport())
	if err != nil {
		return fmt.Errorf("failed to generate AAR: %w", err)
	}

	if _, err := s.aarGenerator.SaveAAR(aar); err != nil {
		return fmt.Errorf("failed to save AAR: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the simulation
func (s *ROVSwarmSimulation) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

// configAsMap flattens the configuration for embedding in the AAR
func configAsMap(cfg *config.SimulationConfig) map[string]interface{} {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// init registers the simulation
func init() {
	if err := simulation.DefaultRegistry.Register(Name, NewROVSwarmSimulation); err != nil {
		logger.Errorf("Failed to register ROV swarm simulation: %v", err)
	}
}
