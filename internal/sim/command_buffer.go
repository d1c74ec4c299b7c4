package sim

import "sync"

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferRejectMetricKey    = "sim_command_buffer_reject_total"
)

// Rejection reasons reported by Push.
const (
	RejectStaleTick  = "stale_tick"
	RejectFarFuture  = "far_future"
	RejectTickFull   = "tick_full"
	RejectBufferFull = "buffer_full"
)

// CommandBuffer stages commands addressed to ticks the loop has not consumed
// yet. Slots are keyed by target tick so a late command can never leak into a
// later step. It is safe for concurrent producers and a single consumer.
type CommandBuffer struct {
	mu       sync.Mutex
	slots    map[Tick][]Command
	consumed Tick
	total    int
	maxTotal int
	maxTick  int
	horizon  Tick
	metrics  telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// CommandBufferConfig bounds a staging buffer.
type CommandBufferConfig struct {
	// MaxTotal caps commands across all pending ticks.
	MaxTotal int
	// MaxPerTick caps commands staged for a single tick.
	MaxPerTick int
	// Horizon rejects commands addressed further than this many ticks ahead
	// of the current tick.
	Horizon Tick
}

// DefaultCommandBufferConfig returns the bounds used by the server intake.
func DefaultCommandBufferConfig() CommandBufferConfig {
	return CommandBufferConfig{MaxTotal: 256, MaxPerTick: 32, Horizon: 40}
}

// NewCommandBuffer constructs an empty buffer with the provided bounds.
func NewCommandBuffer(cfg CommandBufferConfig, metrics telemetryMetrics) *CommandBuffer {
	if cfg.MaxTotal < 1 {
		cfg.MaxTotal = 1
	}
	if cfg.MaxPerTick < 1 {
		cfg.MaxPerTick = 1
	}
	if cfg.Horizon < 1 {
		cfg.Horizon = 1
	}
	return &CommandBuffer{
		slots:    make(map[Tick][]Command),
		maxTotal: cfg.MaxTotal,
		maxTick:  cfg.MaxPerTick,
		horizon:  cfg.Horizon,
		metrics:  metrics,
	}
}

// Push stages a command for its target tick. A command whose tick has already
// been consumed is rejected outright rather than applied late: applying it to
// a different tick than the client predicted against would guarantee a
// mispredict. Within a pending tick the last write per owner wins, so a
// client resending over the lossy input lane is idempotent.
func (b *CommandBuffer) Push(cmd Command, current Tick) (bool, string) {
	if b == nil {
		return false, RejectBufferFull
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cmd.Tick <= b.consumed || cmd.Tick <= current {
		b.reject(RejectStaleTick)
		return false, RejectStaleTick
	}
	if cmd.Tick > current+b.horizon {
		b.reject(RejectFarFuture)
		return false, RejectFarFuture
	}
	slot := b.slots[cmd.Tick]
	for i, staged := range slot {
		if staged.Owner == cmd.Owner {
			slot[i] = cmd
			return true, ""
		}
	}
	if len(slot) >= b.maxTick {
		b.reject(RejectTickFull)
		return false, RejectTickFull
	}
	if b.total >= b.maxTotal {
		b.reject(RejectBufferFull)
		return false, RejectBufferFull
	}
	b.slots[cmd.Tick] = append(slot, cmd)
	b.total++
	b.storeOccupancyLocked()
	return true, ""
}

// DrainForTick returns every command staged for the given tick and marks that
// tick consumed. Slots at or before the consumed tick are discarded.
func (b *CommandBuffer) DrainForTick(tick Tick) []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.slots[tick]
	for slotTick, slot := range b.slots {
		if slotTick <= tick {
			b.total -= len(slot)
			delete(b.slots, slotTick)
		}
	}
	if tick > b.consumed {
		b.consumed = tick
	}
	b.storeOccupancyLocked()
	return drained
}

// Len reports the number of staged commands across all pending ticks.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *CommandBuffer) reject(reason string) {
	if b.metrics == nil {
		return
	}
	b.metrics.Add(commandBufferRejectMetricKey, 1)
	b.metrics.Add(commandBufferRejectMetricKey+"_"+reason, 1)
}

func (b *CommandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.total))
}
