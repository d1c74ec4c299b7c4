package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue folds the world seed and a label into a stable
// 64-bit seed. The same inputs always yield the same value on every machine.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// TickRNG derives the generator scoped to (world seed, tick, entity). Any
// randomness consumed inside the step must come from here; an unscoped global
// generator would diverge between server and predictor.
func TickRNG(rootSeed string, tick Tick, entity EntityID) *rand.Rand {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(tick))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(entity))
	hasher.Write(buf[:])
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return rand.New(rand.NewSource(int64(sum)))
}
