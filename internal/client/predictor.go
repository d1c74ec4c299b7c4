// Package client implements the prediction side of the netcode: local
// re-execution of the shared simulation step against unacknowledged commands,
// reconciliation against authoritative snapshots, and interpolation of
// entities the local player does not own.
package client

import (
	"math"
	"time"

	"voxelrift/internal/sim"
	"voxelrift/internal/snapshot"
)

// Defaults for the reconciliation tuning knobs. All of them are
// configuration, not structure: deployments may override per Config.
const (
	DefaultRingCapacity = 64
	DefaultEpsilon      = 0.05
	DefaultHardBound    = 1.0
	DefaultInterpWindow = 100 * time.Millisecond
)

// Config tunes the predictor.
type Config struct {
	RingCapacity int
	// Epsilon is the divergence below which a prediction counts as correct.
	Epsilon float64
	// HardBound is the divergence above which the correction snaps with no
	// smoothing, because the discontinuity is legitimate (teleport, respawn).
	HardBound float64
	// InterpWindow is how long a soft correction is blended visually.
	InterpWindow time.Duration
	Step         sim.StepConfig
	Terrain      sim.Terrain
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		RingCapacity: DefaultRingCapacity,
		Epsilon:      DefaultEpsilon,
		HardBound:    DefaultHardBound,
		InterpWindow: DefaultInterpWindow,
		Step:         sim.DefaultStepConfig(),
		Terrain:      sim.FlatTerrain{},
	}
}

// OutcomeKind classifies a reconciliation result.
type OutcomeKind string

const (
	// OutcomeConfirmed means the prediction matched within epsilon.
	OutcomeConfirmed OutcomeKind = "confirmed"
	// OutcomeReplayed means the divergence was soft-corrected by replaying
	// stored commands on top of the authoritative state.
	OutcomeReplayed OutcomeKind = "replayed"
	// OutcomeSnapped means the divergence exceeded the hard bound and local
	// state jumped to the authoritative value with no smoothing.
	OutcomeSnapped OutcomeKind = "snapped"
	// OutcomeDesync means the authoritative tick fell outside retained
	// history and prediction restarted from the authoritative state.
	OutcomeDesync OutcomeKind = "desync"
)

// Outcome reports what a Reconcile call did.
type Outcome struct {
	Kind              OutcomeKind
	AuthoritativeTick sim.Tick
	ErrorDistance     float64
	ReplayedTicks     int
}

type ringEntry struct {
	tick    sim.Tick
	command sim.Command
	state   sim.EntityState
}

// Predictor runs the shared simulation step locally for the player's own
// entity and keeps the (tick, command, predicted state) history needed to
// reconcile against authoritative snapshots. It predicts only the owned
// entity; everything else is rendered from snapshots via the interpolator.
//
// The predictor is single-writer: Predict and Reconcile must be called from
// the same goroutine. Renderers read through value-returning accessors.
type Predictor struct {
	cfg  Config
	self sim.EntityID

	world         sim.WorldState
	clientTick    sim.Tick
	lastConfirmed sim.Tick
	sequence      uint32

	ring []ringEntry

	offset      [3]float64
	offsetSetAt time.Time
	offsetLive  bool

	metrics PredictionMetrics
}

// NewPredictor starts predicting from the given authoritative base state.
// The base should come from the join keyframe.
func NewPredictor(self sim.EntityID, base snapshot.Snapshot, cfg Config) *Predictor {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.HardBound <= cfg.Epsilon {
		cfg.HardBound = DefaultHardBound
	}
	if cfg.InterpWindow <= 0 {
		cfg.InterpWindow = DefaultInterpWindow
	}
	if cfg.Terrain == nil {
		cfg.Terrain = sim.FlatTerrain{}
	}
	p := &Predictor{
		cfg:  cfg,
		self: self,
		ring: make([]ringEntry, 0, cfg.RingCapacity),
	}
	p.adoptAuthoritative(base)
	return p
}

// adoptAuthoritative hard-sets local state to a snapshot and restarts
// prediction from its tick.
func (p *Predictor) adoptAuthoritative(snap snapshot.Snapshot) {
	world := sim.NewWorldState(snap.Seed)
	world.Tick = snap.Tick
	if own, ok := snap.Entity(p.self); ok {
		world.Entities[p.self] = own
	}
	p.world = world
	p.clientTick = snap.Tick
	p.lastConfirmed = snap.Tick
	p.ring = p.ring[:0]
	p.offsetLive = false
}

// Predict samples one local tick: it builds the command for the given intent,
// steps the owned entity forward with the shared step, stores the result in
// the ring, and returns the command for sending on the input lane.
func (p *Predictor) Predict(move sim.MoveIntent) (sim.Command, sim.EntityState) {
	p.clientTick++
	p.sequence++
	cmd := sim.Command{
		Tick:           p.clientTick,
		Sequence:       p.sequence,
		Owner:          p.self,
		Type:           sim.CommandMove,
		Move:           &move,
		ClientSendTick: p.lastConfirmed,
	}

	p.world = sim.Step(p.world, []sim.Command{cmd}, p.cfg.Terrain, p.cfg.Step)
	entry := ringEntry{tick: p.clientTick, command: cmd, state: p.world.Entities[p.self]}
	if len(p.ring) >= p.cfg.RingCapacity {
		copy(p.ring, p.ring[1:])
		p.ring[len(p.ring)-1] = entry
	} else {
		p.ring = append(p.ring, entry)
	}
	p.metrics.notePrediction()
	return cmd, entry.state
}

// Reconcile processes an authoritative snapshot for the owned entity.
//
// The decision ladder follows the retained history: an authoritative tick
// older than the oldest ring entry cannot be replayed (those commands are
// gone) and forces a desync restart; within history, divergence below
// epsilon confirms the prediction, divergence within the hard bound replays
// stored commands on top of the authoritative state and smooths the visible
// difference, and anything larger snaps outright.
func (p *Predictor) Reconcile(snap snapshot.Snapshot, now time.Time) Outcome {
	tick := snap.Tick

	if tick > p.clientTick || len(p.ring) == 0 || tick < p.ring[0].tick {
		p.metrics.noteDesync()
		p.adoptAuthoritative(snap)
		return Outcome{Kind: OutcomeDesync, AuthoritativeTick: tick}
	}

	entry, ok := p.entryFor(tick)
	if !ok {
		p.metrics.noteDesync()
		p.adoptAuthoritative(snap)
		return Outcome{Kind: OutcomeDesync, AuthoritativeTick: tick}
	}

	authoritative, present := snap.Entity(p.self)
	if !present {
		// The server no longer knows this entity. Nothing to predict.
		p.metrics.noteDesync()
		p.adoptAuthoritative(snap)
		return Outcome{Kind: OutcomeDesync, AuthoritativeTick: tick}
	}

	p.lastConfirmed = tick
	divergence := distance(entry.state, authoritative)

	if divergence < p.cfg.Epsilon {
		p.confirmThrough(tick)
		return Outcome{Kind: OutcomeConfirmed, AuthoritativeTick: tick, ErrorDistance: divergence}
	}

	p.metrics.noteMismatch(divergence)
	preCorrection := p.world.Entities[p.self]
	replayed := p.replayFrom(snap, authoritative)

	if divergence > p.cfg.HardBound {
		p.offsetLive = false
		return Outcome{Kind: OutcomeSnapped, AuthoritativeTick: tick, ErrorDistance: divergence, ReplayedTicks: replayed}
	}

	corrected := p.world.Entities[p.self]
	p.offset = [3]float64{preCorrection.X - corrected.X, preCorrection.Y - corrected.Y, preCorrection.Z - corrected.Z}
	p.offsetSetAt = now
	p.offsetLive = true
	return Outcome{Kind: OutcomeReplayed, AuthoritativeTick: tick, ErrorDistance: divergence, ReplayedTicks: replayed}
}

// replayFrom rebases the ring on the authoritative state at snap.Tick and
// re-runs the shared step for every later tick using the commands that were
// originally predicted with, never re-sampled input.
func (p *Predictor) replayFrom(snap snapshot.Snapshot, authoritative sim.EntityState) int {
	world := sim.NewWorldState(snap.Seed)
	world.Tick = snap.Tick
	world.Entities[p.self] = authoritative

	kept := p.ring[:0]
	replayed := 0
	for _, entry := range p.ring {
		if entry.tick <= snap.Tick {
			continue
		}
		world = sim.Step(world, []sim.Command{entry.command}, p.cfg.Terrain, p.cfg.Step)
		entry.state = world.Entities[p.self]
		kept = append(kept, entry)
		replayed++
	}
	p.ring = kept
	p.world = world
	return replayed
}

// confirmThrough drops ring entries at or before the confirmed tick.
func (p *Predictor) confirmThrough(tick sim.Tick) {
	idx := 0
	for idx < len(p.ring) && p.ring[idx].tick <= tick {
		idx++
	}
	if idx > 0 {
		copy(p.ring, p.ring[idx:])
		p.ring = p.ring[:len(p.ring)-idx]
	}
}

func (p *Predictor) entryFor(tick sim.Tick) (ringEntry, bool) {
	for i := len(p.ring) - 1; i >= 0; i-- {
		if p.ring[i].tick == tick {
			return p.ring[i], true
		}
	}
	return ringEntry{}, false
}

// Self returns the current predicted state of the owned entity.
func (p *Predictor) Self() sim.EntityState {
	return p.world.Entities[p.self]
}

// VisualPosition returns the render position of the owned entity: the
// predicted position plus the decaying correction offset from the last soft
// reconcile. After the interpolation window the offset is fully gone.
func (p *Predictor) VisualPosition(now time.Time) (float64, float64, float64) {
	self := p.world.Entities[p.self]
	if !p.offsetLive {
		return self.X, self.Y, self.Z
	}
	elapsed := now.Sub(p.offsetSetAt)
	if elapsed >= p.cfg.InterpWindow {
		p.offsetLive = false
		return self.X, self.Y, self.Z
	}
	remaining := 1 - float64(elapsed)/float64(p.cfg.InterpWindow)
	return self.X + p.offset[0]*remaining, self.Y + p.offset[1]*remaining, self.Z + p.offset[2]*remaining
}

// ClientTick reports the latest locally predicted tick.
func (p *Predictor) ClientTick() sim.Tick { return p.clientTick }

// OldestBuffered reports the oldest tick still replayable.
func (p *Predictor) OldestBuffered() (sim.Tick, bool) {
	if len(p.ring) == 0 {
		return 0, false
	}
	return p.ring[0].tick, true
}

// PendingCount reports how many predictions await confirmation.
func (p *Predictor) PendingCount() int { return len(p.ring) }

// Metrics returns a copy of the prediction counters.
func (p *Predictor) Metrics() PredictionMetrics { return p.metrics }

func distance(a, b sim.EntityState) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
