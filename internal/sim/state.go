package sim

import "sort"

// EntityID is a stable, server-assigned identifier. IDs are never reused
// within a session lifetime so delta encoding can never confuse a despawned
// entity with a later spawn.
type EntityID uint64

// EntityState is the full deterministic per-entity state for one tick. Every
// field here participates in gameplay logic and therefore in determinism.
type EntityState struct {
	ID        EntityID `json:"id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Z         float64  `json:"z"`
	VX        float64  `json:"vx"`
	VY        float64  `json:"vy"`
	VZ        float64  `json:"vz"`
	Yaw       float64  `json:"yaw"`
	Health    float64  `json:"health"`
	MaxHealth float64  `json:"maxHealth"`
	Hunger    float64  `json:"hunger"`

	// Carried movement intent. A tick with no command for this entity keeps
	// integrating the previous intent, so a single dropped packet never
	// freezes an entity.
	IntentDX float64 `json:"intentDX,omitempty"`
	IntentDZ float64 `json:"intentDZ,omitempty"`
	Grounded bool    `json:"grounded,omitempty"`
}

// WorldState is the complete simulation state for one tick. It is fully
// reproducible from (seed, ordered command history).
type WorldState struct {
	Tick     Tick                     `json:"tick"`
	Seed     string                   `json:"seed"`
	Entities map[EntityID]EntityState `json:"entities"`
}

// NewWorldState constructs an empty world anchored on the given seed.
func NewWorldState(seed string) WorldState {
	return WorldState{
		Seed:     seed,
		Entities: make(map[EntityID]EntityState),
	}
}

// Clone deep-copies the world so callers can mutate the result freely.
func (w WorldState) Clone() WorldState {
	cloned := w
	cloned.Entities = make(map[EntityID]EntityState, len(w.Entities))
	for id, entity := range w.Entities {
		cloned.Entities[id] = entity
	}
	return cloned
}

// SortedEntityIDs returns every entity id in ascending order. All iteration
// inside the step goes through this to keep map ordering out of the results.
func (w WorldState) SortedEntityIDs() []EntityID {
	ids := make([]EntityID, 0, len(w.Entities))
	for id := range w.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
