package snapshot

import "voxelrift/internal/sim"

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	PatchEntitySpawned PatchKind = "entity_spawned"
	PatchEntityRemoved PatchKind = "entity_removed"
	PatchEntityPos     PatchKind = "entity_pos"
	PatchEntityVel     PatchKind = "entity_vel"
	PatchEntityYaw     PatchKind = "entity_yaw"
	PatchEntityIntent  PatchKind = "entity_intent"
	PatchEntityHealth  PatchKind = "entity_health"
	PatchEntityHunger  PatchKind = "entity_hunger"
)

// Patch represents a diff entry applied to a client's view of the world.
type Patch struct {
	Kind     PatchKind    `json:"kind"`
	EntityID sim.EntityID `json:"entityId"`
	Payload  any          `json:"payload,omitempty"`
}

// SpawnPayload carries the full entity record for a spawn patch.
type SpawnPayload struct {
	Entity sim.EntityState `json:"entity"`
}

// PosPayload captures the coordinates and ground contact for a position patch.
type PosPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Grounded bool    `json:"grounded"`
}

// VelPayload captures the velocity vector for a velocity patch.
type VelPayload struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	VZ float64 `json:"vz"`
}

// YawPayload captures the heading for a yaw patch.
type YawPayload struct {
	Yaw float64 `json:"yaw"`
}

// IntentPayload captures the carried movement intent for an intent patch.
type IntentPayload struct {
	DX float64 `json:"dx"`
	DZ float64 `json:"dz"`
}

// HealthPayload captures the health pool for a health patch.
type HealthPayload struct {
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth,omitempty"`
}

// HungerPayload captures the hunger level for a hunger patch.
type HungerPayload struct {
	Hunger float64 `json:"hunger"`
}
