package world

import "sort"

// Streamer tracks which chunks a single client holds and hands out the next
// chunks to send, nearest first. Chunks that fall far enough outside the view
// radius are forgotten so they stream again when the client returns.
type Streamer struct {
	radius      int
	evictMargin int
	focus       ChunkPos
	hasFocus    bool
	sent        map[ChunkPos]struct{}
}

// NewStreamer constructs a streamer with the given view radius in chunks.
func NewStreamer(radius int) *Streamer {
	if radius < 0 {
		radius = 0
	}
	return &Streamer{
		radius:      radius,
		evictMargin: 2,
		sent:        make(map[ChunkPos]struct{}),
	}
}

// SetFocus moves the streaming center, usually the chunk under the player.
// Chunks beyond radius plus the eviction margin are dropped from the sent set.
func (s *Streamer) SetFocus(focus ChunkPos) {
	if s == nil {
		return
	}
	s.focus = focus
	s.hasFocus = true
	limit := s.radius + s.evictMargin
	for pos := range s.sent {
		if chebyshev(pos, focus) > limit {
			delete(s.sent, pos)
		}
	}
}

// Next returns up to budget chunk positions to send, closest to the focus
// first, and marks them sent. Ties break on (x, z) so the order is stable.
func (s *Streamer) Next(budget int) []ChunkPos {
	if s == nil || !s.hasFocus || budget <= 0 {
		return nil
	}
	pending := make([]ChunkPos, 0, budget)
	for dx := -s.radius; dx <= s.radius; dx++ {
		for dz := -s.radius; dz <= s.radius; dz++ {
			pos := ChunkPos{X: s.focus.X + dx, Z: s.focus.Z + dz}
			if _, ok := s.sent[pos]; !ok {
				pending = append(pending, pos)
			}
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		di, dj := sqDist(pending[i], s.focus), sqDist(pending[j], s.focus)
		if di != dj {
			return di < dj
		}
		if pending[i].X != pending[j].X {
			return pending[i].X < pending[j].X
		}
		return pending[i].Z < pending[j].Z
	})
	if len(pending) > budget {
		pending = pending[:budget]
	}
	for _, pos := range pending {
		s.sent[pos] = struct{}{}
	}
	return pending
}

// Invalidate forgets a chunk so the next Next call resends it, used when the
// terrain at that position changes.
func (s *Streamer) Invalidate(pos ChunkPos) {
	if s == nil {
		return
	}
	delete(s.sent, pos)
}

// Pending reports how many chunks inside the radius are still unsent.
func (s *Streamer) Pending() int {
	if s == nil || !s.hasFocus {
		return 0
	}
	count := 0
	for dx := -s.radius; dx <= s.radius; dx++ {
		for dz := -s.radius; dz <= s.radius; dz++ {
			pos := ChunkPos{X: s.focus.X + dx, Z: s.focus.Z + dz}
			if _, ok := s.sent[pos]; !ok {
				count++
			}
		}
	}
	return count
}

func sqDist(a, b ChunkPos) int {
	dx, dz := a.X-b.X, a.Z-b.Z
	return dx*dx + dz*dz
}

func chebyshev(a, b ChunkPos) int {
	dx, dz := abs(a.X-b.X), abs(a.Z-b.Z)
	if dx > dz {
		return dx
	}
	return dz
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
