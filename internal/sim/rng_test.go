package sim

import "testing"

func TestTickRNGReproducible(t *testing.T) {
	first := TickRNG("seed", 42, 7)
	second := TickRNG("seed", 42, 7)
	for i := 0; i < 8; i++ {
		a, b := first.Float64(), second.Float64()
		if a != b {
			t.Fatalf("draw %d diverged: %f vs %f", i, a, b)
		}
	}
}

func TestTickRNGScopeIsolation(t *testing.T) {
	base := TickRNG("seed", 42, 7).Uint64()
	cases := map[string]uint64{
		"different seed":   TickRNG("other", 42, 7).Uint64(),
		"different tick":   TickRNG("seed", 43, 7).Uint64(),
		"different entity": TickRNG("seed", 42, 8).Uint64(),
	}
	matches := 0
	for name, draw := range cases {
		if draw == base {
			t.Logf("%s produced a colliding first draw", name)
			matches++
		}
	}
	if matches == len(cases) {
		t.Fatalf("every scope produced the same stream, scoping is broken")
	}
}

func TestDeterministicSeedValueNeverZero(t *testing.T) {
	if DeterministicSeedValue("", "") == 0 {
		t.Fatalf("seed value must never be zero")
	}
}
