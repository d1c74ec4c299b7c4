package sim

const spawnHealth = 20.0

// SpawnEntity places a new entity on the terrain from its id alone, so every
// process that spawns the same id produces the same state.
func SpawnEntity(id EntityID, terrain Terrain) EntityState {
	idx := uint64(id) - 1
	x := float64(idx%4)*3 + 0.5
	z := float64((idx/4)%4)*3 + 0.5
	var y float64
	if terrain != nil {
		y = terrain.GroundHeight(x, z)
	}
	return EntityState{
		ID:        id,
		X:         x,
		Y:         y,
		Z:         z,
		Health:    spawnHealth,
		MaxHealth: spawnHealth,
		Grounded:  true,
	}
}
