package replay

import "voxelrift/internal/sim"

// Event kinds in a state-event log.
const (
	EventSpawn   = "spawn"
	EventUpdate  = "update"
	EventDespawn = "despawn"
)

// StateEvent is one observable consequence of a step: an entity appearing,
// moving, or vanishing. Two runs of the same session must produce identical
// event streams.
type StateEvent struct {
	Kind   string       `json:"kind"`
	Tick   sim.Tick     `json:"tick"`
	Entity sim.EntityID `json:"entity"`
	X      float64      `json:"x,omitempty"`
	Y      float64      `json:"y,omitempty"`
	Z      float64      `json:"z,omitempty"`
	Yaw    float64      `json:"yaw,omitempty"`
}

// EventsBetween derives the events for the transition from prev to next,
// ordered by entity id so the stream is deterministic.
func EventsBetween(prev, next sim.WorldState) []StateEvent {
	var events []StateEvent
	for _, id := range next.SortedEntityIDs() {
		entity := next.Entities[id]
		event := StateEvent{
			Tick:   next.Tick,
			Entity: id,
			X:      entity.X,
			Y:      entity.Y,
			Z:      entity.Z,
			Yaw:    entity.Yaw,
		}
		before, existed := prev.Entities[id]
		switch {
		case !existed:
			event.Kind = EventSpawn
		case before != entity:
			event.Kind = EventUpdate
		default:
			continue
		}
		events = append(events, event)
	}
	for _, id := range prev.SortedEntityIDs() {
		if _, ok := next.Entities[id]; !ok {
			events = append(events, StateEvent{Kind: EventDespawn, Tick: next.Tick, Entity: id})
		}
	}
	return events
}
