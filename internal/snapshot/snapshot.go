// Package snapshot turns authoritative world states into keyframes and
// per-client delta patches, and keeps the rolling keyframe journal used to
// serve resyncs.
package snapshot

import (
	"time"

	"voxelrift/internal/sim"
)

// Snapshot is an immutable capture of the world at a tick. Entities are
// stored in ascending id order so encoding a snapshot is reproducible.
type Snapshot struct {
	Tick       sim.Tick          `json:"tick"`
	Sequence   uint64            `json:"sequence"`
	Seed       string            `json:"seed"`
	Entities   []sim.EntityState `json:"entities,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Capture flattens a world state into a snapshot tagged with the given
// journal sequence.
func Capture(world sim.WorldState, sequence uint64) Snapshot {
	snap := Snapshot{
		Tick:     world.Tick,
		Sequence: sequence,
		Seed:     world.Seed,
		Entities: make([]sim.EntityState, 0, len(world.Entities)),
	}
	for _, id := range world.SortedEntityIDs() {
		snap.Entities = append(snap.Entities, world.Entities[id])
	}
	return snap
}

// World rebuilds a mutable world state from the snapshot.
func (s Snapshot) World() sim.WorldState {
	world := sim.NewWorldState(s.Seed)
	world.Tick = s.Tick
	for _, entity := range s.Entities {
		world.Entities[entity.ID] = entity
	}
	return world
}

// Entity returns the entity with the given id, if present.
func (s Snapshot) Entity(id sim.EntityID) (sim.EntityState, bool) {
	for _, entity := range s.Entities {
		if entity.ID == id {
			return entity, true
		}
	}
	return sim.EntityState{}, false
}
