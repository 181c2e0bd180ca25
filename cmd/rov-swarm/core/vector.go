package core

import (
	"fmt"
	"math"
)

// Vector3D is a position, velocity or direction in the simulation frame.
// Y is vertical: 0 is the water surface and depth is negative.
type Vector3D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vec returns a Vector3D from its components
func Vec(x, y, z float64) Vector3D {
	return Vector3D{X: x, Y: y, Z: z}
}

func (v Vector3D) Add(other Vector3D) Vector3D {
	return Vector3D{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

func (v Vector3D) Subtract(other Vector3D) Vector3D {
	return Vector3D{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

func (v Vector3D) Scale(s float64) Vector3D {
	return Vector3D{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector3D) Negate() Vector3D {
	return v.Scale(-1)
}

func (v Vector3D) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector, or v unchanged when it has no length
func (v Vector3D) Normalize() Vector3D {
	mag := v.Magnitude()
	if mag == 0 {
		return v
	}
	return v.Scale(1.0 / mag)
}

func (v Vector3D) DistanceTo(other Vector3D) float64 {
	return v.Subtract(other).Magnitude()
}

func (v Vector3D) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Components returns the vector as a numeric payload
func (v Vector3D) Components() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// FromComponents is the inverse of Components. It reports false unless
// exactly three values are given.
func FromComponents(values []float64) (Vector3D, bool) {
	if len(values) != 3 {
		return Vector3D{}, false
	}
	return Vector3D{X: values[0], Y: values[1], Z: values[2]}, true
}

func (v Vector3D) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
