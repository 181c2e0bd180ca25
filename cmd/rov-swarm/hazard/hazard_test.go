package hazard

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

func TestCodeNormalize(t *testing.T) {
	for _, c := range []Code{Nominal, Obstacle, Collision, Disconnected, OutOfRange} {
		assert.Equal(t, c, c.Normalize())
	}
	for _, c := range []Code{4, -1, 6, 42} {
		assert.Equal(t, Nominal, c.Normalize(), "code %d", c)
		assert.Equal(t, "-", c.String())
	}
}

func fleetState(positions ...core.Vector3D) []NodeState {
	nodes := make([]NodeState, len(positions))
	for i, p := range positions {
		nodes[i] = NodeState{Position: p, Battery: 100, Leader: i == 0}
	}
	return nodes
}

func TestBuildGraphRules(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		nodes     []NodeState
		obstacles []core.Vector3D
		want      []Code
	}{
		{
			name:  "tight formation is nominal",
			nodes: fleetState(core.Vec(0, 0, 0), core.Vec(10, 0, 0), core.Vec(0, 0, 10)),
			want:  []Code{Nominal, Nominal, Nominal},
		},
		{
			name:  "peers closer than collision distance",
			nodes: fleetState(core.Vec(0, 0, 0), core.Vec(5, 0, 0), core.Vec(0, 0, 20)),
			want:  []Code{Collision, Collision, Nominal},
		},
		{
			name:  "isolated follower beyond leader range",
			nodes: fleetState(core.Vec(0, 0, 0), core.Vec(20, 0, 0), core.Vec(100, 0, 0)),
			want:  []Code{Nominal, Nominal, Disconnected},
		},
		{
			name:      "obstacle overrides disconnection",
			nodes:     fleetState(core.Vec(0, 0, 0), core.Vec(20, 0, 0), core.Vec(100, 0, 0)),
			obstacles: []core.Vector3D{core.Vec(100, -20, 0)},
			want:      []Code{Nominal, Nominal, Obstacle},
		},
		{
			name:  "follower in a far pair is out of leader range",
			nodes: fleetState(core.Vec(0, 0, 0), core.Vec(10, 0, 0), core.Vec(70, 0, 0), core.Vec(80, 0, 0)),
			want:  []Code{Nominal, Nominal, OutOfRange, OutOfRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph, codes := BuildGraph(tt.nodes, tt.obstacles, th)
			assert.Equal(t, tt.want, codes)
			require.Equal(t, len(tt.nodes), graph.NumNodes())
			for i, row := range graph.Features {
				assert.InDelta(t, float64(tt.want[i])/5, row[FeatureHazard], 1e-12)
			}
		})
	}
}

func TestBuildGraphFeaturesAndEdges(t *testing.T) {
	nodes := []NodeState{
		{Position: core.Vec(0, -1, 0), Velocity: core.Vec(0.5, 0, 1.5), Battery: 80, Leader: true},
		{Position: core.Vec(20, -10, 0), Battery: 50},
		{Position: core.Vec(200, -10, 0), Battery: 100},
	}
	graph, _ := BuildGraph(nodes, nil, DefaultThresholds())

	leader := graph.Features[0]
	assert.InDelta(t, 0.8, leader[FeatureBattery], 1e-12)
	assert.InDelta(t, 0.9, leader[FeatureLinkQuality], 1e-12)
	assert.InDelta(t, 0.01, leader[FeatureDepth], 1e-12)
	assert.InDelta(t, 0.5, leader[FeatureVelocityX], 1e-12)
	assert.InDelta(t, 1.5, leader[FeatureVelocityZ], 1e-12)
	assert.Equal(t, 1.0, leader[FeatureRole])
	assert.Equal(t, 0.0, graph.Features[1][FeatureRole])

	assert.ElementsMatch(t, []Edge{{From: 0, To: 1}, {From: 1, To: 0}}, graph.Edges)
}

func TestRuleClassifierDecodesHazardColumn(t *testing.T) {
	nodes := fleetState(core.Vec(0, 0, 0), core.Vec(5, 0, 0), core.Vec(100, 0, 0))
	graph, want := BuildGraph(nodes, nil, DefaultThresholds())

	got, err := RuleClassifier{}.Classify(context.Background(), graph)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRuleClassifierHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RuleClassifier{}.Classify(ctx, Graph{Features: make([]Features, 2)})
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(KindRules)
	require.NoError(t, err)
	assert.IsType(t, RuleClassifier{}, c)

	c, err = NewClassifier(KindOffline)
	require.NoError(t, err)
	assert.IsType(t, Offline{}, c)

	_, err = NewClassifier("gat")
	assert.Error(t, err)
}

func quietLogger(buf *bytes.Buffer) logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.DebugLevel, Writer: buf, NoColor: true})
}

func TestClassifyOrNominalFallsBackOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockClassifier(ctrl)
	graph := Graph{Features: make([]Features, 3)}

	mock.EXPECT().
		Classify(gomock.Any(), graph).
		Return(nil, errors.New("model weights missing"))

	var buf bytes.Buffer
	codes, err := ClassifyOrNominal(context.Background(), mock, graph, quietLogger(&buf))

	assert.Equal(t, []Code{Nominal, Nominal, Nominal}, codes)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Contains(t, buf.String(), "model weights missing")
}

func TestClassifyOrNominalRejectsWrongLength(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockClassifier(ctrl)
	graph := Graph{Features: make([]Features, 2)}

	mock.EXPECT().Classify(gomock.Any(), gomock.Any()).Return([]Code{Collision}, nil)

	codes, err := ClassifyOrNominal(context.Background(), mock, graph, nil)
	assert.Equal(t, []Code{Nominal, Nominal}, codes)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}

func TestClassifyOrNominalNormalizesUnknownCodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockClassifier(ctrl)
	graph := Graph{Features: make([]Features, 3)}

	mock.EXPECT().Classify(gomock.Any(), gomock.Any()).Return([]Code{4, Collision, 9}, nil)

	codes, err := ClassifyOrNominal(context.Background(), mock, graph, nil)
	require.NoError(t, err)
	assert.Equal(t, []Code{Nominal, Collision, Nominal}, codes)
}

func TestClassifyOrNominalWithoutClassifier(t *testing.T) {
	codes, err := ClassifyOrNominal(context.Background(), nil, Graph{Features: make([]Features, 1)}, nil)
	assert.Equal(t, []Code{Nominal}, codes)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)

	codes, err = ClassifyOrNominal(context.Background(), Offline{}, Graph{Features: make([]Features, 2)}, nil)
	assert.Len(t, codes, 2)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}
