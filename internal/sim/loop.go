package sim

import (
	"sync"
	"time"

	"voxelrift/internal/telemetry"
)

const (
	loopTickDurationMetricKey = "sim_loop_tick_duration_micros"
	loopCatchupMetricKey      = "sim_loop_catchup_steps_total"
	loopOverrunMetricKey      = "sim_loop_overrun_total"
)

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
}

// LoopTickContext carries per-tick scheduling data into the hooks.
type LoopTickContext struct {
	Tick Tick
	Now  time.Time
}

// LoopStepResult reports the outcome of a single simulation step.
type LoopStepResult struct {
	Tick         Tick
	Now          time.Time
	State        WorldState
	Commands     []Command
	Duration     time.Duration
	Budget       time.Duration
	CatchupSteps int
}

// LoopHooks lets the owner participate in tick sequencing. Collect gathers
// the commands addressed to the tick, Prepare mutates the world on the loop
// goroutine before the step runs, and AfterStep observes the result.
type LoopHooks struct {
	Collect   func(Tick) []Command
	Prepare   func(LoopTickContext, *WorldState)
	AfterStep func(LoopStepResult)
}

// Loop drives the authoritative simulation at a fixed tick rate. All world
// mutation happens on the loop goroutine; outside readers go through State.
type Loop struct {
	clock   *Clock
	hooks   LoopHooks
	config  LoopConfig
	terrain Terrain
	stepCfg StepConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics

	overruns uint64

	mu    sync.RWMutex
	state WorldState
}

// NewLoop constructs a loop over the provided initial world.
func NewLoop(initial WorldState, terrain Terrain, stepCfg StepConfig, cfg LoopConfig, hooks LoopHooks, logger telemetry.Logger, metrics telemetry.Metrics) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.CatchupMaxTicks < 1 {
		cfg.CatchupMaxTicks = 1
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	return &Loop{
		clock:   NewClock(initial.Tick),
		hooks:   hooks,
		config:  cfg,
		terrain: terrain,
		stepCfg: stepCfg,
		logger:  logger,
		metrics: metrics,
		state:   initial,
	}
}

// CurrentTick reports the last completed tick.
func (l *Loop) CurrentTick() Tick {
	if l == nil {
		return 0
	}
	return l.clock.Current()
}

// State returns a deep copy of the latest authoritative world.
func (l *Loop) State() WorldState {
	if l == nil {
		return WorldState{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// Advance executes exactly one simulation step. It is exported so replay
// tooling and tests can drive the loop without the wall clock.
func (l *Loop) Advance(now time.Time) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	tick := l.clock.Advance()
	ctx := LoopTickContext{Tick: tick, Now: now}

	l.mu.Lock()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx, &l.state)
	}
	var commands []Command
	if l.hooks.Collect != nil {
		commands = l.hooks.Collect(tick)
	}
	start := time.Now()
	l.state = Step(l.state, commands, l.terrain, l.stepCfg)
	duration := time.Since(start)
	result := LoopStepResult{
		Tick:     tick,
		Now:      now,
		State:    l.state.Clone(),
		Commands: commands,
		Duration: duration,
	}
	l.mu.Unlock()

	l.metrics.Store(loopTickDurationMetricKey, uint64(duration.Microseconds()))
	return result
}

// Run drives the loop until the stop channel closes. When the process falls
// behind schedule it catches up by running extra whole steps, never partial
// ones, so the tick remains the only unit of simulated time. Catchup is
// clamped to CatchupMaxTicks per wakeup; beyond that the schedule is reset
// and the loss is logged instead of spiraling.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	budget := time.Second / time.Duration(l.config.TickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	next := time.Now().Add(budget)
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			steps := 1
			for !next.Add(budget).After(now) && steps < l.config.CatchupMaxTicks {
				steps++
				next = next.Add(budget)
			}
			if !next.Add(budget).After(now) {
				// Still behind after clamping. Drop the debt.
				l.reportOverrun(now.Sub(next))
				next = now
			}
			next = next.Add(budget)

			for i := 0; i < steps; i++ {
				result := l.Advance(now)
				result.Budget = budget
				result.CatchupSteps = steps - 1
				if result.Duration > budget && l.logger != nil {
					l.logger.Printf("[loop] tick %d overran budget duration=%s budget=%s", result.Tick, result.Duration, budget)
				}
				if l.hooks.AfterStep != nil {
					l.hooks.AfterStep(result)
				}
			}
			if steps > 1 {
				l.metrics.Add(loopCatchupMetricKey, uint64(steps-1))
			}
		}
	}
}

func (l *Loop) reportOverrun(lag time.Duration) {
	l.overruns++
	l.metrics.Add(loopOverrunMetricKey, 1)
	count := l.overruns
	if count&(count-1) == 0 && l.logger != nil {
		l.logger.Printf("[loop] behind schedule lag=%s clamp=%d count=%d", lag, l.config.CatchupMaxTicks, count)
	}
}
