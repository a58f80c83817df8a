package builtin

import "math/rand/v2"

// Roller is the source of die results.
type Roller interface {
	// IntN returns a uniformly distributed integer in [0, n).
	IntN(n int) int
}

type randRoller struct{}

func (randRoller) IntN(n int) int { return rand.IntN(n) }

// DefaultRoller rolls with math/rand/v2's automatically seeded global source.
// It is safe for concurrent use.
var DefaultRoller Roller = randRoller{}

// roll returns one result of a die with the given number of sides.
func roll(r Roller, sides int) int {
	return r.IntN(sides) + 1
}
