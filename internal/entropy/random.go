// Package entropy provides the seeded random sources used by the simulation.
// Every stochastic component owns its own generator derived from the run seed.
// There is no process-wide generator, so runs reproduce under parallel dispatch.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
)

// Stream offsets keep independent components from sharing a sequence.
const (
	StreamEnvironment int64 = 100
	StreamAgents      int64 = 300
	StreamWeather     int64 = 400
)

// Derive returns the seed for one member of a stream. Neighboring indexes
// are mixed (splitmix64) so agents with consecutive IDs get unrelated sequences.
func Derive(seed, stream, index int64) int64 {
	z := uint64(seed) + uint64(stream)*0x9E3779B97F4A7C15 + uint64(index)*0xBF58476D1CE4E5B9
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return int64(z)
}

// New returns a generator for the given seed.
func New(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed))
}

// Gauss returns a normal sample with mean mu and standard deviation sigma.
// A zero sigma returns mu without consuming the generator.
func Gauss(rng *mrand.Rand, mu, sigma float64) float64 {
	if sigma == 0 {
		return mu
	}
	return mu + sigma*rng.NormFloat64()
}

// Uniform returns a sample in [lo, hi). An empty interval returns lo without
// consuming the generator.
func Uniform(rng *mrand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*rng.Float64()
}

// CryptoSeed returns a non-zero seed from crypto/rand. Used when a run is
// configured with seed 0, so the chosen seed can still be logged and replayed.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) & math.MaxInt64)
	if seed == 0 {
		return 1
	}
	return seed
}
