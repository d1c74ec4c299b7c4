package sim

import (
	"math"
	"sort"
)

// Terrain exposes the read-only collision surface supplied by the world
// collaborator. Implementations must be pure with respect to their inputs:
// the same coordinates always report the same ground height.
type Terrain interface {
	GroundHeight(x, z float64) float64
}

// FlatTerrain is the zero-height fallback used when no chunk provider is
// wired in, primarily by tests.
type FlatTerrain struct{}

// GroundHeight implements Terrain.
func (FlatTerrain) GroundHeight(x, z float64) float64 { return 0 }

// StepConfig tunes the movement and survival constants consumed by the step.
type StepConfig struct {
	TickRate      int     `json:"tickRate"`
	MoveSpeed     float64 `json:"moveSpeed"`
	Gravity       float64 `json:"gravity"`
	JumpVelocity  float64 `json:"jumpVelocity"`
	HungerPerTick float64 `json:"hungerPerTick"`
	StrikeRange   float64 `json:"strikeRange"`
	StrikeDamage  float64 `json:"strikeDamage"`
	StrikeJitter  float64 `json:"strikeJitter"`
}

// DefaultStepConfig returns the reference tuning at 20 Hz.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		TickRate:      DefaultTickRate,
		MoveSpeed:     4.3,
		Gravity:       32.0,
		JumpVelocity:  9.0,
		HungerPerTick: 0.0005,
		StrikeRange:   3.0,
		StrikeDamage:  4.0,
		StrikeJitter:  1.0,
	}
}

// Step is the authoritative state transition shared verbatim between the
// server loop and the client predictor. It is referentially transparent:
// given the same prior state, command set, terrain, and config it produces
// bit-identical results on every machine. It never reads wall-clock time and
// never touches a process-wide generator.
//
// Commands addressed to the tick are sorted by (owner, sequence) before
// application so arrival order at the server can never change the outcome.
func Step(prev WorldState, commands []Command, terrain Terrain, cfg StepConfig) WorldState {
	next := prev.Clone()
	next.Tick = prev.Tick + 1
	if terrain == nil {
		terrain = FlatTerrain{}
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	dt := 1.0 / float64(cfg.TickRate)

	sorted := make([]Command, len(commands))
	copy(sorted, commands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	for _, cmd := range sorted {
		entity, ok := next.Entities[cmd.Owner]
		if !ok {
			continue
		}
		switch cmd.Type {
		case CommandMove:
			if cmd.Move == nil {
				continue
			}
			dx, dz := normalizeAxes(cmd.Move.DX, cmd.Move.DZ)
			entity.IntentDX = dx
			entity.IntentDZ = dz
			entity.Yaw = cmd.Move.Yaw
			if cmd.Move.Jump && entity.Grounded {
				entity.VY = cfg.JumpVelocity
				entity.Grounded = false
			}
			next.Entities[cmd.Owner] = entity
		case CommandAction:
			if cmd.Action == nil {
				continue
			}
			applyAction(&next, cmd, cfg)
		}
	}

	for _, id := range next.SortedEntityIDs() {
		entity := next.Entities[id]
		integrate(&entity, terrain, cfg, dt)
		next.Entities[id] = entity
	}
	return next
}

func normalizeAxes(dx, dz float64) (float64, float64) {
	length := math.Hypot(dx, dz)
	if length > 1 {
		dx /= length
		dz /= length
	}
	return dx, dz
}

func integrate(entity *EntityState, terrain Terrain, cfg StepConfig, dt float64) {
	entity.VX = entity.IntentDX * cfg.MoveSpeed
	entity.VZ = entity.IntentDZ * cfg.MoveSpeed
	entity.X += entity.VX * dt
	entity.Z += entity.VZ * dt

	entity.VY -= cfg.Gravity * dt
	entity.Y += entity.VY * dt

	ground := terrain.GroundHeight(entity.X, entity.Z)
	if entity.Y <= ground {
		entity.Y = ground
		entity.VY = 0
		entity.Grounded = true
	} else {
		entity.Grounded = false
	}

	entity.Hunger += cfg.HungerPerTick
	if entity.Hunger > 1 {
		entity.Hunger = 1
	}
}

// applyAction resolves an action intent against the post-intent world. The
// only randomness, strike jitter, comes from the tick-and-entity scoped
// generator so replaying the same command history reproduces it exactly.
func applyAction(world *WorldState, cmd Command, cfg StepConfig) {
	if cmd.Action.Name != "strike" {
		return
	}
	attacker, ok := world.Entities[cmd.Owner]
	if !ok {
		return
	}
	targetID, found := nearestTarget(world, attacker, cfg.StrikeRange)
	if !found {
		return
	}
	target := world.Entities[targetID]
	damage := cfg.StrikeDamage
	if cfg.StrikeJitter > 0 {
		rng := TickRNG(world.Seed, world.Tick, cmd.Owner)
		damage += rng.Float64() * cfg.StrikeJitter
	}
	target.Health -= damage
	if target.Health < 0 {
		target.Health = 0
	}
	world.Entities[targetID] = target
}

func nearestTarget(world *WorldState, attacker EntityState, radius float64) (EntityID, bool) {
	best := EntityID(0)
	bestDist := radius
	found := false
	for _, id := range world.SortedEntityIDs() {
		if id == attacker.ID {
			continue
		}
		candidate := world.Entities[id]
		dx := candidate.X - attacker.X
		dy := candidate.Y - attacker.Y
		dz := candidate.Z - attacker.Z
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist <= bestDist {
			if !found || dist < bestDist || id < best {
				best = id
				bestDist = dist
				found = true
			}
		}
	}
	return best, found
}
