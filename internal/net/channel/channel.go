// Package channel defines the logical message lanes multiplexed over a single
// websocket connection and the delivery profile each lane promises.
package channel

import "fmt"

// ID identifies a logical lane. The id travels in every frame so either side
// can apply the lane's delivery rules from the framing alone.
type ID uint8

const (
	// Input carries client command bundles. Unreliable and unordered: a
	// stale bundle is worthless, so nothing is retried or reordered.
	Input ID = 0
	// ChunkStream carries terrain chunk payloads. Reliable and ordered: a
	// gap would leave a hole in the world.
	ChunkStream ID = 1
	// EntityDelta carries per-tick snapshot deltas. Unreliable with a
	// freshness filter: only the newest tick matters.
	EntityDelta ID = 2
	// Chat carries player chat. Reliable and ordered.
	Chat ID = 3
	// Diagnostics carries telemetry echoes and debug payloads. Unreliable.
	Diagnostics ID = 4
)

// Profile describes how a lane treats loss and ordering.
type Profile struct {
	Name     string
	Reliable bool
	Ordered  bool
	// FreshnessFiltered lanes drop any frame whose tick does not exceed the
	// newest tick already accepted on the lane.
	FreshnessFiltered bool
}

var profiles = map[ID]Profile{
	Input:       {Name: "input", Reliable: false, Ordered: false},
	ChunkStream: {Name: "chunk_stream", Reliable: true, Ordered: true},
	EntityDelta: {Name: "entity_delta", Reliable: false, Ordered: false, FreshnessFiltered: true},
	Chat:        {Name: "chat", Reliable: true, Ordered: true},
	Diagnostics: {Name: "diagnostics", Reliable: false, Ordered: false},
}

// ProfileFor returns the delivery profile for a lane.
func ProfileFor(id ID) (Profile, bool) {
	profile, ok := profiles[id]
	return profile, ok
}

// String renders the lane name for logs.
func (id ID) String() string {
	if profile, ok := profiles[id]; ok {
		return profile.Name
	}
	return fmt.Sprintf("channel(%d)", uint8(id))
}

// FreshnessFilter tracks the newest tick accepted per freshness-filtered
// lane. It is receiver-side state: the sender never needs to know what was
// dropped.
type FreshnessFilter struct {
	newest map[ID]uint64
	seen   map[ID]bool
}

// NewFreshnessFilter constructs an empty filter.
func NewFreshnessFilter() *FreshnessFilter {
	return &FreshnessFilter{
		newest: make(map[ID]uint64),
		seen:   make(map[ID]bool),
	}
}

// Accept reports whether a frame on the lane tagged with the given tick
// should be processed. Lanes without freshness filtering always accept. A
// frame whose tick is at or below the newest accepted tick is dropped so
// late or duplicate deltas can never rewind the view.
func (f *FreshnessFilter) Accept(id ID, tick uint64) bool {
	if f == nil {
		return true
	}
	profile, ok := profiles[id]
	if !ok || !profile.FreshnessFiltered {
		return true
	}
	if f.seen[id] && tick <= f.newest[id] {
		return false
	}
	f.seen[id] = true
	f.newest[id] = tick
	return true
}

// Newest reports the most recent accepted tick for the lane.
func (f *FreshnessFilter) Newest(id ID) (uint64, bool) {
	if f == nil {
		return 0, false
	}
	return f.newest[id], f.seen[id]
}

// Reset clears the lane's state, used when a full resync re-bases the view.
func (f *FreshnessFilter) Reset(id ID) {
	if f == nil {
		return
	}
	delete(f.newest, id)
	delete(f.seen, id)
}
