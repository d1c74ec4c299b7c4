// Package simulation publishes the tick-loop structured events.
package simulation

import (
	"context"
	"time"

	"voxelrift/logging"
)

const (
	// EventTickOverrun is emitted when a step exceeds the tick budget.
	EventTickOverrun logging.EventType = "simulation.tick_overrun"
	// EventKeyframeRecorded is emitted when the journal stores a keyframe.
	EventKeyframeRecorded logging.EventType = "simulation.keyframe_recorded"
	// EventEntitySpawned is emitted when an entity enters the world.
	EventEntitySpawned logging.EventType = "simulation.entity_spawned"
	// EventEntityRemoved is emitted when an entity leaves the world.
	EventEntityRemoved logging.EventType = "simulation.entity_removed"
)

// OverrunPayload captures how far a step ran past its budget.
type OverrunPayload struct {
	Duration time.Duration `json:"duration_ns"`
	Budget   time.Duration `json:"budget_ns"`
	Catchup  int           `json:"catchup_steps"`
}

// TickOverrun publishes a warning when a simulation step blows its budget.
func TickOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload OverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// KeyframePayload captures a recorded keyframe and what it displaced.
type KeyframePayload struct {
	Sequence       uint64 `json:"sequence"`
	EvictedExpired int    `json:"evicted_expired,omitempty"`
	EvictedCount   int    `json:"evicted_count,omitempty"`
}

// KeyframeRecorded publishes a debug event for a stored keyframe.
func KeyframeRecorded(ctx context.Context, pub logging.Publisher, tick uint64, payload KeyframePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventKeyframeRecorded,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// EntitySpawned publishes an informational event for a new entity.
func EntitySpawned(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.SubjectRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntitySpawned,
		Tick:     tick,
		Subject:  entity,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
	})
}

// EntityRemoved publishes an informational event for a departed entity.
func EntityRemoved(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.SubjectRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityRemoved,
		Tick:     tick,
		Subject:  entity,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
	})
}
