package hazard

import (
	"math"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
)

// FeatureCount is the width of a node feature row
const FeatureCount = 7

// Feature columns
const (
	FeatureHazard = iota
	FeatureBattery
	FeatureLinkQuality
	FeatureDepth
	FeatureVelocityX
	FeatureVelocityZ
	FeatureRole
)

// nominalLinkQuality is reported for every node until link quality is measured.
const nominalLinkQuality = 0.9

// Features is one node's row in the classifier input
type Features [FeatureCount]float64

// Edge is a directed link between two nodes in communication range
type Edge struct {
	From int
	To   int
}

// Graph is the classifier input: one feature row per node, in NodeID order.
type Graph struct {
	Features []Features
	Edges    []Edge
}

// NumNodes returns the number of feature rows
func (g Graph) NumNodes() int { return len(g.Features) }

// NodeState is the kinematic snapshot the graph is built from
type NodeState struct {
	Position core.Vector3D
	Velocity core.Vector3D
	Battery  float64
	Leader   bool
}

// Thresholds are the distances that trigger each hazard code
type Thresholds struct {
	LeaderRange       float64
	Disconnect        float64
	Obstacle          float64
	Collision         float64
	ObstacleClearance float64
}

// DefaultThresholds returns the stock detection distances
func DefaultThresholds() Thresholds {
	return Thresholds{
		LeaderRange:       60,
		Disconnect:        35,
		Obstacle:          20,
		Collision:         8,
		ObstacleClearance: 6,
	}
}

// BuildGraph turns the fleet's kinematic state into a feature graph. The
// hazard column carries the proximity rule's code scaled to [0, 1]; the
// codes themselves are returned alongside.
//
// Rules are applied in order, later ones overriding earlier ones: out of
// leader range, disconnected from every peer, near an obstacle, about to
// collide with a peer.
func BuildGraph(nodes []NodeState, obstacles []core.Vector3D, th Thresholds) (Graph, []Code) {
	n := len(nodes)
	graph := Graph{Features: make([]Features, n)}
	codes := make([]Code, n)

	leader := -1
	for i, node := range nodes {
		if node.Leader {
			leader = i
			break
		}
	}

	for i, node := range nodes {
		code := Nominal

		if leader >= 0 && i != leader && node.Position.DistanceTo(nodes[leader].Position) > th.LeaderRange {
			code = OutOfRange
		}

		nearestPeer := math.Inf(1)
		for j := range nodes {
			if i == j {
				continue
			}
			d := node.Position.DistanceTo(nodes[j].Position)
			nearestPeer = math.Min(nearestPeer, d)
			if d < th.Disconnect {
				graph.Edges = append(graph.Edges, Edge{From: i, To: j})
			}
		}
		if n > 1 && nearestPeer > th.Disconnect {
			code = Disconnected
		}

		for _, rock := range obstacles {
			if node.Position.DistanceTo(rock)-th.ObstacleClearance < th.Obstacle {
				code = Obstacle
				break
			}
		}

		if nearestPeer < th.Collision {
			code = Collision
		}

		role := 0.0
		if node.Leader {
			role = 1
		}
		codes[i] = code
		graph.Features[i] = Features{
			FeatureHazard:      float64(code) / float64(OutOfRange),
			FeatureBattery:     node.Battery / 100,
			FeatureLinkQuality: nominalLinkQuality,
			FeatureDepth:       math.Abs(node.Position.Y) / 100,
			FeatureVelocityX:   node.Velocity.X,
			FeatureVelocityZ:   node.Velocity.Z,
			FeatureRole:        role,
		}
	}

	return graph, codes
}
