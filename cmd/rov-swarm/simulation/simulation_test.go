package simulation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/config"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/controllers"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard"
	"github.com/picogrid/rov-simulations/pkg/logger"
	"github.com/picogrid/rov-simulations/pkg/simulation"
)

func testConfig(t *testing.T) *config.SimulationConfig {
	t.Helper()
	logger.SetLevel(logger.ErrorLevel)

	cfg := config.GetDefaultConfig()
	cfg.Simulation.UpdateInterval = 0
	cfg.Simulation.Seed = 7
	cfg.Fleet.NumObstacles = 0
	cfg.Channel.Delay = 0
	cfg.Channel.Loss = 0
	cfg.Channel.BroadcastIntervalTicks = 1
	cfg.Logging.EnableAAR = false
	cfg.Logging.StatusEveryTicks = 0
	cfg.Logging.AAROutputPath = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestSimulation(t *testing.T, cfg *config.SimulationConfig) *ROVSwarmSimulation {
	t.Helper()
	sim, err := NewWithConfig(cfg)
	require.NoError(t, err)
	sim.simLogger.SetOutput(&discard{})
	return sim
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func stepN(t *testing.T, sim *ROVSwarmSimulation, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, sim.Step(context.Background()))
	}
}

func TestSimulationIsRegistered(t *testing.T) {
	sim, err := simulation.DefaultRegistry.Get(Name)
	require.NoError(t, err)
	assert.Equal(t, Name, sim.Name())
	assert.Implements(t, (*simulation.Commandable)(nil), sim)
}

func TestFleetAssembly(t *testing.T) {
	sim := newTestSimulation(t, testConfig(t))

	ctrls := sim.Commander().Controllers()
	require.Len(t, ctrls, 4)
	assert.Equal(t, controllers.Leader, ctrls[0].Role())
	for i, c := range ctrls[1:] {
		assert.Equal(t, controllers.Follower, c.Role(), "node %d", i+1)
	}

	// Only the leader knows the directory, so only the leader can address peers.
	assert.Equal(t, 3, ctrls[0].Broadcast())
	assert.Zero(t, ctrls[1].Broadcast())

	for _, st := range sim.Status() {
		assert.Equal(t, -2.0, st.Y)
		assert.Equal(t, 100.0, st.Battery)
		assert.Equal(t, "seeking", st.State, "initial route for node %d", st.NodeID)
	}
}

func TestConfigureAppliesOverrides(t *testing.T) {
	logger.SetLevel(logger.ErrorLevel)
	sim := NewROVSwarmSimulation()

	err := sim.Configure(map[string]interface{}{
		"config_file": filepath.Join(t.TempDir(), "missing.yaml"),
		"num_rovs":    3,
		"seed":        9,
	})
	require.NoError(t, err)

	swarm := sim.(*ROVSwarmSimulation)
	assert.Equal(t, 3, swarm.Commander().Len())
	assert.Equal(t, int64(9), swarm.Config().Simulation.Seed)
}

func TestGoToAndHalt(t *testing.T) {
	sim := newTestSimulation(t, testConfig(t))
	initial := sim.simLogger.GetSummary().EventCounts["dispatch"]
	assert.Equal(t, 4, initial)

	depth := -25.0
	require.NoError(t, sim.GoTo(2, 10, 20, &depth, nil))
	ctrl, err := sim.Commander().Controller(2)
	require.NoError(t, err)
	target, ok := ctrl.Target()
	require.True(t, ok)
	assert.Equal(t, -25.0, target.Y)
	assert.Equal(t, "seeking", sim.Status()[2].State)

	require.NoError(t, sim.Halt(2))
	_, ok = ctrl.Target()
	assert.False(t, ok)
	assert.Equal(t, "no_target", sim.Status()[2].State)

	assert.ErrorIs(t, sim.GoTo(17, 0, 0, nil, nil), controllers.ErrInvalidNodeID)
	assert.ErrorIs(t, sim.Halt(-1), controllers.ErrInvalidNodeID)

	summary := sim.simLogger.GetSummary()
	assert.Equal(t, initial+1, summary.EventCounts["dispatch"])
	assert.Equal(t, 1, summary.EventCounts["stop"])
	assert.Equal(t, 2, summary.EventCounts["command"])
}

func TestGoToWithAIDisabled(t *testing.T) {
	sim := newTestSimulation(t, testConfig(t))

	ai := false
	require.NoError(t, sim.GoTo(1, 5, 5, nil, &ai))
	ctrl, err := sim.Commander().Controller(1)
	require.NoError(t, err)
	assert.False(t, ctrl.AIEnabled())
}

func TestStepMovesLeaderTowardTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hazard.Enabled = false
	sim := newTestSimulation(t, cfg)

	leader := sim.rovs[0]
	target, ok := sim.Commander().Controllers()[0].Target()
	require.True(t, ok)
	before := leader.Position().DistanceTo(target)

	stepN(t, sim, 5)

	assert.Less(t, leader.Position().DistanceTo(target), before)
	assert.Equal(t, uint64(5), sim.Ticks())
	assert.Equal(t, 5*cfg.Simulation.TimeStep, sim.clock.Now().Sub(time.Unix(0, 0)))
	assert.Less(t, leader.Battery(), 100.0)
}

type recordingSink struct {
	batches [][]core.VehicleUpdate
}

func (r *recordingSink) Publish(_ context.Context, batch []core.VehicleUpdate) error {
	r.batches = append(r.batches, batch)
	return nil
}

func TestStepQueuesTelemetryWithCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hazard.Enabled = false
	sim := newTestSimulation(t, cfg)
	sink := &recordingSink{}
	sim.updateBuffer = core.NewUpdateBuffer(sink, 16, time.Hour)

	stepN(t, sim, 2)
	require.NoError(t, sim.updateBuffer.Flush(context.Background()))

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Len(t, batch, 4)
	for _, u := range batch {
		assert.Equal(t, uint64(1), u.Tick, "node %d", u.NodeID)
		assert.NotEmpty(t, u.Commands, "node %d carries the thrust of both ticks", u.NodeID)
	}
}

func TestFollowersHearLeaderBroadcasts(t *testing.T) {
	sim := newTestSimulation(t, testConfig(t))

	stepN(t, sim, 3)

	for _, c := range sim.Commander().Controllers()[1:] {
		fix, ok := c.LeaderFix()
		require.True(t, ok, "node %d heard nothing", c.ID())
		assert.InDelta(t, sim.rovs[0].Position().X, fix.Position.X, 5)
	}
	assert.Zero(t, sim.leaderFixes[0])
	assert.Equal(t, 3, sim.leaderFixes[1])

	snap := sim.Metrics().Snapshot()
	assert.Equal(t, 9, snap.Sent)
	assert.Equal(t, 9, snap.Delivered)
}

func TestOfflineClassifierFallsBackToNominal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hazard.Classifier = hazard.KindOffline
	sim := newTestSimulation(t, cfg)

	stepN(t, sim, 4)

	assert.Equal(t, 4, sim.fallbacks)
	for _, c := range sim.Commander().Controllers() {
		assert.Equal(t, hazard.Nominal, c.LastHazard())
	}
	assert.Equal(t, 4, sim.simLogger.GetSummary().EventCounts["classifier"])
}

func TestParallelStepMatchesSequential(t *testing.T) {
	seq := testConfig(t)
	seq.Hazard.Enabled = false
	par := testConfig(t)
	par.Hazard.Enabled = false
	par.Performance.ParallelNodes = true
	par.Performance.MaxWorkers = 2

	a := newTestSimulation(t, seq)
	b := newTestSimulation(t, par)
	stepN(t, a, 10)
	stepN(t, b, 10)

	for i := range a.rovs {
		assert.Equal(t, a.rovs[i].Position(), b.rovs[i].Position(), "node %d", i)
	}
}

func TestRunStopsAtTickBudgetAndWritesAAR(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.MaxTicks = 25
	cfg.Logging.EnableAAR = true
	cfg.Logging.AARFormat = "json"
	sim := newTestSimulation(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sim.Run(ctx))
	assert.Equal(t, uint64(25), sim.Ticks())

	entries, err := os.ReadDir(cfg.Logging.AAROutputPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))

	report := sim.FleetReport()
	assert.Equal(t, uint64(25), report.Ticks)
	require.Len(t, report.Nodes, 4)
	assert.NotNil(t, report.Nodes[0].Target)
	assert.Equal(t, "leader", report.Nodes[0].Role)
}

func TestRunEndsOnStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.UpdateInterval = time.Millisecond
	sim := newTestSimulation(t, cfg)

	done := make(chan error, 1)
	go func() { done <- sim.Run(context.Background()) }()

	require.Eventually(t, func() bool { return sim.Ticks() > 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, sim.Stop())
	require.NoError(t, sim.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestGoToBeforeRunIsKept(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.MaxTicks = 1
	sim := newTestSimulation(t, cfg)

	depth := -42.0
	require.NoError(t, sim.GoTo(1, 5, 5, &depth, nil))
	require.NoError(t, sim.Run(context.Background()))

	target, ok := sim.Commander().Controllers()[1].Target()
	require.True(t, ok)
	assert.Equal(t, 5.0, target.X)
	assert.Equal(t, -42.0, target.Y)
	assert.Equal(t, 5.0, target.Z)
}

func TestRunAfterStopAndReconfigure(t *testing.T) {
	logger.SetLevel(logger.ErrorLevel)
	sim := NewROVSwarmSimulation()
	params := map[string]interface{}{
		"config_file":     filepath.Join(t.TempDir(), "missing.yaml"),
		"max_ticks":       5,
		"update_interval": "0s",
		"enable_aar":      false,
		"log_level":       "error",
	}
	require.NoError(t, sim.Configure(params))
	require.NoError(t, sim.Stop())
	require.NoError(t, sim.Run(context.Background()))
	swarm := sim.(*ROVSwarmSimulation)
	assert.Zero(t, swarm.Ticks())

	require.NoError(t, sim.Configure(params))
	require.NoError(t, sim.Run(context.Background()))
	assert.Equal(t, uint64(5), swarm.Ticks())
}

func TestRunHonoursContextCancel(t *testing.T) {
	sim := newTestSimulation(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sim.Run(ctx), context.Canceled)
}

func TestRunRequiresConfiguration(t *testing.T) {
	sim := NewROVSwarmSimulation()
	assert.Error(t, sim.Run(context.Background()))
}
