package testutil

import (
	"math/rand"

	"github.com/google/gofuzz"
	. "github.com/onsi/ginkgo"
)

// Test randomness hangs off the ginkgo seed, so a failing run is
// replayed with --seed.
var (
	source = rand.NewSource(GinkgoRandomSeed())

	// Rand is the suite wide generator. Goroutines take their own
	// from NewSeeded before they start instead of sharing it.
	Rand = rand.New(source)

	// Fuzz fills the value pointed to with random content.
	Fuzz = newFuzzer().Fuzz
)

func newFuzzer() *fuzz.Fuzzer {
	f := fuzz.New()
	f.RandSource(source)
	return f
}

// NewSeeded returns an independent generator seeded from Rand.
func NewSeeded() *rand.Rand {
	return rand.New(rand.NewSource(Rand.Int63()))
}
