package snapshot

import (
	"sync"
	"time"

	"voxelrift/internal/sim"
)

// Eviction reasons reported by RecordKeyframe.
const (
	EvictExpired = "expired"
	EvictCount   = "count"
)

// KeyframeEviction describes a keyframe removed from the journal and why.
type KeyframeEviction struct {
	Sequence uint64   `json:"sequence"`
	Tick     sim.Tick `json:"tick"`
	Reason   string   `json:"reason,omitempty"`
}

// KeyframeRecordResult reports journal state after storing a keyframe.
type KeyframeRecordResult struct {
	Size           int                `json:"size"`
	OldestSequence uint64             `json:"oldestSequence"`
	NewestSequence uint64             `json:"newestSequence"`
	Evicted        []KeyframeEviction `json:"evicted,omitempty"`
}

// Journal keeps a rolling buffer of recent keyframes so delta recovery and
// late joins can rehydrate from a known base. Frames age out by count and by
// wall-clock retention, whichever trips first.
type Journal struct {
	mu        sync.RWMutex
	frames    []Snapshot
	sequence  uint64
	maxFrames int
	maxAge    time.Duration
	now       func() time.Time
}

// NewJournal constructs a journal with the configured capacity and retention.
func NewJournal(keyframeCapacity int, maxAge time.Duration) *Journal {
	if keyframeCapacity < 0 {
		keyframeCapacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		frames:    make([]Snapshot, 0, keyframeCapacity),
		maxFrames: keyframeCapacity,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Record captures the world into the journal and returns the stored snapshot
// together with the eviction report.
func (j *Journal) Record(world sim.WorldState) (Snapshot, KeyframeRecordResult) {
	if j == nil {
		return Snapshot{}, KeyframeRecordResult{}
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++
	frame := Capture(world, j.sequence)
	frame.RecordedAt = j.now()

	if j.maxFrames == 0 {
		j.frames = j.frames[:0]
		return frame, KeyframeRecordResult{NewestSequence: frame.Sequence}
	}
	j.frames = append(j.frames, frame)

	evicted := make([]KeyframeEviction, 0)
	if j.maxAge > 0 {
		cutoff := frame.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.frames) {
			if !j.frames[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.frames[idx].Sequence,
				Tick:     j.frames[idx].Tick,
				Reason:   EvictExpired,
			})
			idx++
		}
		if idx > 0 {
			copy(j.frames, j.frames[idx:])
			j.frames = j.frames[:len(j.frames)-idx]
		}
	}

	if len(j.frames) > j.maxFrames {
		overflow := len(j.frames) - j.maxFrames
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.frames[i].Sequence,
				Tick:     j.frames[i].Tick,
				Reason:   EvictCount,
			})
		}
		copy(j.frames, j.frames[overflow:])
		j.frames = j.frames[:len(j.frames)-overflow]
	}

	size := len(j.frames)
	result := KeyframeRecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.OldestSequence = j.frames[0].Sequence
		result.NewestSequence = j.frames[size-1].Sequence
	}
	return frame, result
}

// ByTick returns the keyframe captured at the given tick.
func (j *Journal) ByTick(tick sim.Tick) (Snapshot, bool) {
	if j == nil {
		return Snapshot{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.frames) - 1; i >= 0; i-- {
		if j.frames[i].Tick == tick {
			return j.frames[i], true
		}
	}
	return Snapshot{}, false
}

// BySequence returns the keyframe tagged with the given journal sequence.
func (j *Journal) BySequence(sequence uint64) (Snapshot, bool) {
	if j == nil {
		return Snapshot{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.frames) - 1; i >= 0; i-- {
		if j.frames[i].Sequence == sequence {
			return j.frames[i], true
		}
	}
	return Snapshot{}, false
}

// Latest returns the newest keyframe, if any.
func (j *Journal) Latest() (Snapshot, bool) {
	if j == nil {
		return Snapshot{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.frames) == 0 {
		return Snapshot{}, false
	}
	return j.frames[len(j.frames)-1], true
}

// Window reports the buffer size and the oldest and newest retained ticks.
func (j *Journal) Window() (int, sim.Tick, sim.Tick) {
	if j == nil {
		return 0, 0, 0
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.frames) == 0 {
		return 0, 0, 0
	}
	return len(j.frames), j.frames[0].Tick, j.frames[len(j.frames)-1].Tick
}
