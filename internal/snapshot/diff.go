package snapshot

import "voxelrift/internal/sim"

// Diff computes the patches that transform base into target. Patches are
// emitted in ascending entity id order, field patches before structural
// removals are not needed because removals carry no payload. Applying the
// result to base with Apply yields a snapshot equivalent to target.
func Diff(base, target Snapshot) []Patch {
	patches := make([]Patch, 0)
	baseByID := make(map[sim.EntityID]sim.EntityState, len(base.Entities))
	for _, entity := range base.Entities {
		baseByID[entity.ID] = entity
	}

	seen := make(map[sim.EntityID]struct{}, len(target.Entities))
	for _, entity := range target.Entities {
		seen[entity.ID] = struct{}{}
		prev, ok := baseByID[entity.ID]
		if !ok {
			patches = append(patches, Patch{Kind: PatchEntitySpawned, EntityID: entity.ID, Payload: SpawnPayload{Entity: entity}})
			continue
		}
		patches = append(patches, diffEntity(prev, entity)...)
	}

	for _, entity := range base.Entities {
		if _, ok := seen[entity.ID]; !ok {
			patches = append(patches, Patch{Kind: PatchEntityRemoved, EntityID: entity.ID})
		}
	}
	return patches
}

func diffEntity(prev, next sim.EntityState) []Patch {
	var patches []Patch
	if prev.X != next.X || prev.Y != next.Y || prev.Z != next.Z || prev.Grounded != next.Grounded {
		patches = append(patches, Patch{Kind: PatchEntityPos, EntityID: next.ID, Payload: PosPayload{X: next.X, Y: next.Y, Z: next.Z, Grounded: next.Grounded}})
	}
	if prev.VX != next.VX || prev.VY != next.VY || prev.VZ != next.VZ {
		patches = append(patches, Patch{Kind: PatchEntityVel, EntityID: next.ID, Payload: VelPayload{VX: next.VX, VY: next.VY, VZ: next.VZ}})
	}
	if prev.Yaw != next.Yaw {
		patches = append(patches, Patch{Kind: PatchEntityYaw, EntityID: next.ID, Payload: YawPayload{Yaw: next.Yaw}})
	}
	if prev.IntentDX != next.IntentDX || prev.IntentDZ != next.IntentDZ {
		patches = append(patches, Patch{Kind: PatchEntityIntent, EntityID: next.ID, Payload: IntentPayload{DX: next.IntentDX, DZ: next.IntentDZ}})
	}
	if prev.Health != next.Health || prev.MaxHealth != next.MaxHealth {
		patches = append(patches, Patch{Kind: PatchEntityHealth, EntityID: next.ID, Payload: HealthPayload{Health: next.Health, MaxHealth: next.MaxHealth}})
	}
	if prev.Hunger != next.Hunger {
		patches = append(patches, Patch{Kind: PatchEntityHunger, EntityID: next.ID, Payload: HungerPayload{Hunger: next.Hunger}})
	}
	return patches
}

// Apply replays patches on top of base and returns the resulting snapshot
// tagged with the given tick and sequence. Unknown patch kinds and patches
// for entities the base does not contain are skipped rather than failing:
// a delta stream is best effort and the keyframe path corrects any drift.
func Apply(base Snapshot, patches []Patch, tick sim.Tick, sequence uint64) Snapshot {
	world := base.World()
	for _, patch := range patches {
		switch patch.Kind {
		case PatchEntitySpawned:
			if payload, ok := patch.Payload.(SpawnPayload); ok {
				world.Entities[patch.EntityID] = payload.Entity
			}
		case PatchEntityRemoved:
			delete(world.Entities, patch.EntityID)
		default:
			entity, ok := world.Entities[patch.EntityID]
			if !ok {
				continue
			}
			applyField(&entity, patch)
			world.Entities[patch.EntityID] = entity
		}
	}
	world.Tick = tick
	result := Capture(world, sequence)
	result.RecordedAt = base.RecordedAt
	return result
}

func applyField(entity *sim.EntityState, patch Patch) {
	switch payload := patch.Payload.(type) {
	case PosPayload:
		entity.X, entity.Y, entity.Z, entity.Grounded = payload.X, payload.Y, payload.Z, payload.Grounded
	case VelPayload:
		entity.VX, entity.VY, entity.VZ = payload.VX, payload.VY, payload.VZ
	case YawPayload:
		entity.Yaw = payload.Yaw
	case IntentPayload:
		entity.IntentDX, entity.IntentDZ = payload.DX, payload.DZ
	case HealthPayload:
		entity.Health = payload.Health
		if payload.MaxHealth != 0 {
			entity.MaxHealth = payload.MaxHealth
		}
	case HungerPayload:
		entity.Hunger = payload.Hunger
	}
}
