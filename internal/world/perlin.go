package world

import (
	"math"

	"github.com/aquilax/go-perlin"

	"voxelrift/internal/sim"
)

const (
	perlinAlpha      = 2.0
	perlinBeta       = 2.0
	perlinOctaves    = 3
	terrainScale     = 0.015
	terrainBaseLevel = 4.0
	terrainAmplitude = 8.0
	waterLevel       = 3
)

// PerlinProvider generates deterministic rolling terrain from a seed. It
// doubles as the simulation's collision surface so the server and any replay
// agree on ground height.
type PerlinProvider struct {
	noise *perlin.Perlin
}

// NewPerlinProvider derives the noise source from the world seed.
func NewPerlinProvider(seed string) *PerlinProvider {
	return &PerlinProvider{
		noise: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, sim.DeterministicSeedValue(seed, "terrain")),
	}
}

// GroundHeight implements sim.Terrain with the continuous noise surface.
func (p *PerlinProvider) GroundHeight(x, z float64) float64 {
	if p == nil {
		return 0
	}
	sample := p.noise.Noise2D(x*terrainScale, z*terrainScale)
	return terrainBaseLevel + sample*terrainAmplitude
}

// ChunkAt implements Provider. Blocks are solid up to the sampled surface:
// stone below, dirt near the top, grass capping the column, water filling
// low columns.
func (p *PerlinProvider) ChunkAt(pos ChunkPos) (ChunkData, error) {
	chunk := NewChunkData(pos)
	for x := 0; x < ChunkSize; x++ {
		for z := 0; z < ChunkSize; z++ {
			worldX := float64(pos.X*ChunkSize + x)
			worldZ := float64(pos.Z*ChunkSize + z)
			surface := int(math.Floor(p.GroundHeight(worldX, worldZ)))
			if surface < 0 {
				surface = 0
			}
			if surface >= ChunkSize {
				surface = ChunkSize - 1
			}
			for y := 0; y <= surface; y++ {
				switch {
				case y == surface && surface > waterLevel:
					chunk.SetBlock(x, y, z, BlockGrass)
				case y >= surface-2:
					chunk.SetBlock(x, y, z, BlockDirt)
				default:
					chunk.SetBlock(x, y, z, BlockStone)
				}
			}
			for y := surface + 1; y <= waterLevel; y++ {
				chunk.SetBlock(x, y, z, BlockWater)
			}
		}
	}
	return chunk, nil
}

var _ Provider = (*PerlinProvider)(nil)
var _ sim.Terrain = (*PerlinProvider)(nil)
