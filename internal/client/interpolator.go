package client

import (
	"voxelrift/internal/sim"
)

// EntityInterpolator smooths remote entities between received snapshots.
// Remote entities are never predicted: each new authoritative state becomes a
// target that the rendered position eases toward over the following ticks.
type EntityInterpolator struct {
	speed   float64
	current map[sim.EntityID]sim.EntityState
	bases   map[sim.EntityID]sim.EntityState
	targets map[sim.EntityID]sim.EntityState
	alphas  map[sim.EntityID]float64
}

// NewEntityInterpolator constructs an interpolator. Speed is the alpha
// increment per Advance call: 0.25 reaches the target in four ticks.
func NewEntityInterpolator(speed float64) *EntityInterpolator {
	if speed <= 0 || speed > 1 {
		speed = 0.25
	}
	return &EntityInterpolator{
		speed:   speed,
		current: make(map[sim.EntityID]sim.EntityState),
		bases:   make(map[sim.EntityID]sim.EntityState),
		targets: make(map[sim.EntityID]sim.EntityState),
		alphas:  make(map[sim.EntityID]float64),
	}
}

// SetTarget installs a new authoritative state for an entity. The first
// observation of an entity lands directly with no easing.
func (e *EntityInterpolator) SetTarget(state sim.EntityState) {
	if e == nil {
		return
	}
	if _, ok := e.current[state.ID]; !ok {
		e.current[state.ID] = state
		return
	}
	e.bases[state.ID] = e.current[state.ID]
	e.targets[state.ID] = state
	e.alphas[state.ID] = 0
}

// Remove forgets an entity.
func (e *EntityInterpolator) Remove(id sim.EntityID) {
	if e == nil {
		return
	}
	delete(e.current, id)
	delete(e.bases, id)
	delete(e.targets, id)
	delete(e.alphas, id)
}

// Advance moves every easing entity one step toward its target.
func (e *EntityInterpolator) Advance() {
	if e == nil {
		return
	}
	for id, target := range e.targets {
		alpha := e.alphas[id] + e.speed
		if alpha >= 1 {
			e.current[id] = target
			delete(e.bases, id)
			delete(e.targets, id)
			delete(e.alphas, id)
			continue
		}
		e.alphas[id] = alpha
		e.current[id] = lerpEntity(e.bases[id], target, alpha)
	}
}

// State returns the rendered state for an entity.
func (e *EntityInterpolator) State(id sim.EntityID) (sim.EntityState, bool) {
	if e == nil {
		return sim.EntityState{}, false
	}
	state, ok := e.current[id]
	return state, ok
}

// IDs returns the ids currently tracked.
func (e *EntityInterpolator) IDs() []sim.EntityID {
	if e == nil {
		return nil
	}
	ids := make([]sim.EntityID, 0, len(e.current))
	for id := range e.current {
		ids = append(ids, id)
	}
	return ids
}

func lerpEntity(from, to sim.EntityState, t float64) sim.EntityState {
	result := to
	result.X = from.X + (to.X-from.X)*t
	result.Y = from.Y + (to.Y-from.Y)*t
	result.Z = from.Z + (to.Z-from.Z)*t
	result.Yaw = from.Yaw + (to.Yaw-from.Yaw)*t
	return result
}
