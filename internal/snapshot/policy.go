package snapshot

import (
	"fmt"
	"time"

	"voxelrift/internal/sim"
)

// Resync reasons reported by AckPolicy.
const (
	ResyncNeverAcked = "never_acked"
	ResyncAckTimeout = "ack_timeout"
	ResyncBaseLost   = "base_evicted"
)

// AckPolicy decides, per connection, whether the next broadcast can be a
// delta against the last acknowledged keyframe or must fall back to a full
// snapshot. A connection that stops acking gets a full frame after the
// timeout instead of an ever-growing delta chain.
type AckPolicy struct {
	timeout    time.Duration
	ackedTick  sim.Tick
	acked      bool
	lastAckAt  time.Time
	forced     string
	forceCount uint64
}

// NewAckPolicy constructs a policy with the given ack timeout.
func NewAckPolicy(timeout time.Duration) *AckPolicy {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AckPolicy{timeout: timeout}
}

// NoteAck records that the client acknowledged the keyframe at tick.
// Acks arriving out of order never move the base backwards.
func (p *AckPolicy) NoteAck(tick sim.Tick, now time.Time) {
	if p == nil {
		return
	}
	if p.acked && tick < p.ackedTick {
		return
	}
	p.ackedTick = tick
	p.acked = true
	p.lastAckAt = now
}

// NoteBaseEvicted forces a full frame because the journal no longer retains
// the acked base.
func (p *AckPolicy) NoteBaseEvicted() {
	if p == nil {
		return
	}
	p.forced = ResyncBaseLost
}

// Base returns the tick to diff against, or false when the next broadcast
// must be a full keyframe.
func (p *AckPolicy) Base(now time.Time) (sim.Tick, bool) {
	if p == nil {
		return 0, false
	}
	if p.forced != "" {
		return 0, false
	}
	if !p.acked {
		return 0, false
	}
	if now.Sub(p.lastAckAt) > p.timeout {
		p.forced = ResyncAckTimeout
		return 0, false
	}
	return p.ackedTick, true
}

// ConsumeResync reports why the policy degraded to a full frame and clears
// the pending reason. The returned count grows monotonically so callers can
// rate-limit their logging.
func (p *AckPolicy) ConsumeResync() (string, uint64, bool) {
	if p == nil {
		return "", 0, false
	}
	reason := p.forced
	if reason == "" {
		if !p.acked {
			reason = ResyncNeverAcked
		} else {
			return "", 0, false
		}
	}
	p.forced = ""
	p.forceCount++
	return reason, p.forceCount, true
}

// AckedTick reports the newest acknowledged tick.
func (p *AckPolicy) AckedTick() (sim.Tick, bool) {
	if p == nil || !p.acked {
		return 0, false
	}
	return p.ackedTick, true
}

// Summary renders the policy state for diagnostics.
func (p *AckPolicy) Summary() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("acked=%v ackedTick=%d forced=%q forceCount=%d", p.acked, p.ackedTick, p.forced, p.forceCount)
}
