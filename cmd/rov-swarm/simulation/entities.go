package simulation

import (
	"math/rand"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/core"
)

// Obstacle field bounds
const (
	ObstacleMinX     = -40.0
	ObstacleMaxX     = 40.0
	ObstacleMinZ     = 0.0
	ObstacleMaxZ     = 80.0
	ObstacleMinY     = -90.0
	ObstacleMaxY     = -10.0
	ObstacleMinScale = 4.0
	ObstacleMaxScale = 12.0
)

// Obstacle is a rock on the sea floor
type Obstacle struct {
	Position core.Vector3D `json:"position" yaml:"position"`
	Scale    core.Vector3D `json:"scale" yaml:"scale"`
}

// SpawnObstacles scatters n rocks over the field
func SpawnObstacles(rng *rand.Rand, n int) []Obstacle {
	obstacles := make([]Obstacle, 0, n)
	for i := 0; i < n; i++ {
		obstacles = append(obstacles, Obstacle{
			Position: core.Vec(
				uniform(rng, ObstacleMinX, ObstacleMaxX),
				uniform(rng, ObstacleMinY, ObstacleMaxY),
				uniform(rng, ObstacleMinZ, ObstacleMaxZ),
			),
			Scale: core.Vec(
				uniform(rng, ObstacleMinScale, ObstacleMaxScale),
				uniform(rng, ObstacleMinScale, ObstacleMaxScale),
				uniform(rng, ObstacleMinScale, ObstacleMaxScale),
			),
		})
	}
	return obstacles
}

// SpawnPositions places n vehicles in a square of half-width radius around
// the origin, all at the same depth
func SpawnPositions(rng *rand.Rand, n int, radius, depth float64) []core.Vector3D {
	positions := make([]core.Vector3D, 0, n)
	for i := 0; i < n; i++ {
		positions = append(positions, core.Vec(
			uniform(rng, -radius, radius),
			depth,
			uniform(rng, -radius, radius),
		))
	}
	return positions
}

func obstaclePositions(obstacles []Obstacle) []core.Vector3D {
	positions := make([]core.Vector3D, len(obstacles))
	for i, o := range obstacles {
		positions[i] = o.Position
	}
	return positions
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
