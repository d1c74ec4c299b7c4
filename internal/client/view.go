package client

import (
	"errors"
	"fmt"
	"time"

	"voxelrift/internal/net/channel"
	"voxelrift/internal/sim"
	"voxelrift/internal/snapshot"
)

// ErrUnknownBase indicates a delta arrived against a tick the view does not
// hold, so the caller must request a full keyframe.
var ErrUnknownBase = errors.New("delta base tick not held")

// View is the client's assembled picture of the world: the predictor for the
// owned entity, the interpolator for everyone else, and the bookkeeping that
// applies keyframes and deltas in tick order.
type View struct {
	self      sim.EntityID
	predictor *Predictor
	interp    *EntityInterpolator
	filter    *channel.FreshnessFilter

	latest    snapshot.Snapshot
	hasLatest bool
}

// NewView builds a view from the join keyframe.
func NewView(self sim.EntityID, join snapshot.Snapshot, cfg Config) *View {
	view := &View{
		self:      self,
		predictor: NewPredictor(self, join, cfg),
		interp:    NewEntityInterpolator(0.25),
		filter:    channel.NewFreshnessFilter(),
		latest:    join,
		hasLatest: true,
	}
	view.retarget(join)
	return view
}

// Predictor exposes the owned-entity predictor.
func (v *View) Predictor() *Predictor { return v.predictor }

// Interpolator exposes the remote-entity interpolator.
func (v *View) Interpolator() *EntityInterpolator { return v.interp }

// ApplyKeyframe replaces the delta base with a full snapshot and reconciles.
func (v *View) ApplyKeyframe(snap snapshot.Snapshot, now time.Time) Outcome {
	// A keyframe re-bases the delta lane, so the freshness cursor restarts.
	v.filter.Reset(channel.EntityDelta)
	if !v.filter.Accept(channel.EntityDelta, uint64(snap.Tick)) {
		return Outcome{Kind: OutcomeConfirmed, AuthoritativeTick: snap.Tick}
	}
	v.latest = snap
	v.hasLatest = true
	v.retarget(snap)
	return v.predictor.Reconcile(snap, now)
}

// ApplyDelta patches the held base snapshot and reconciles. Stale deltas are
// dropped by the lane's freshness filter; a delta against a base the view no
// longer holds returns ErrUnknownBase so the session can nack for a keyframe.
func (v *View) ApplyDelta(tick, baseTick sim.Tick, patches []snapshot.Patch, now time.Time) (Outcome, error) {
	if !v.filter.Accept(channel.EntityDelta, uint64(tick)) {
		return Outcome{}, nil
	}
	if !v.hasLatest || v.latest.Tick != baseTick {
		return Outcome{}, fmt.Errorf("%w: have %d, delta base %d", ErrUnknownBase, v.latest.Tick, baseTick)
	}
	next := snapshot.Apply(v.latest, patches, tick, v.latest.Sequence+1)
	v.latest = next
	v.retarget(next)
	return v.predictor.Reconcile(next, now), nil
}

// LatestTick reports the newest applied authoritative tick.
func (v *View) LatestTick() (sim.Tick, bool) {
	if !v.hasLatest {
		return 0, false
	}
	return v.latest.Tick, true
}

func (v *View) retarget(snap snapshot.Snapshot) {
	seen := make(map[sim.EntityID]struct{}, len(snap.Entities))
	for _, entity := range snap.Entities {
		if entity.ID == v.self {
			continue
		}
		seen[entity.ID] = struct{}{}
		v.interp.SetTarget(entity)
	}
	for _, id := range v.interp.IDs() {
		if _, ok := seen[id]; !ok {
			v.interp.Remove(id)
		}
	}
}
