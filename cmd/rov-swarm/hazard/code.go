package hazard

// Code is a per-node hazard classification
type Code int

const (
	Nominal      Code = 0
	Obstacle     Code = 1
	Collision    Code = 2
	Disconnected Code = 3
	// 4 is reserved and never produced.
	OutOfRange Code = 5
)

// Known reports whether c is one of the defined codes
func (c Code) Known() bool {
	switch c {
	case Nominal, Obstacle, Collision, Disconnected, OutOfRange:
		return true
	}
	return false
}

// Normalize maps every unrecognized code to Nominal
func (c Code) Normalize() Code {
	if c.Known() {
		return c
	}
	return Nominal
}

// String returns the status label shown next to a vehicle
func (c Code) String() string {
	switch c {
	case Nominal:
		return "OK"
	case Obstacle:
		return "OBSTACLE"
	case Collision:
		return "COLLISION"
	case Disconnected:
		return "DISCONNECTED"
	case OutOfRange:
		return "OUT_OF_RANGE"
	default:
		return "-"
	}
}

// NominalCodes returns n Nominal codes
func NominalCodes(n int) []Code {
	return make([]Code, n)
}
