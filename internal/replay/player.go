package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"voxelrift/internal/sim"
)

// Player reads a recorded input log and feeds the commands back through the
// shared step function tick by tick.
type Player struct {
	entries []sim.Command
	index   int
}

// LoadPlayer parses a JSONL input log.
func LoadPlayer(path string) (*Player, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	defer file.Close()

	var entries []sim.Command
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var cmd sim.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		entries = append(entries, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay %s: %w", path, err)
	}
	return &Player{entries: entries}, nil
}

// CommandsForTick returns every recorded command addressed to the tick and
// advances past them. Records from earlier ticks are skipped.
func (p *Player) CommandsForTick(tick sim.Tick) []sim.Command {
	var commands []sim.Command
	for p.index < len(p.entries) {
		entry := p.entries[p.index]
		switch {
		case entry.Tick == tick:
			commands = append(commands, entry)
			p.index++
		case entry.Tick > tick:
			return commands
		default:
			p.index++
		}
	}
	return commands
}

// LastTick reports the highest tick any recorded command targets.
func (p *Player) LastTick() sim.Tick {
	var last sim.Tick
	for _, entry := range p.entries {
		if entry.Tick > last {
			last = entry.Tick
		}
	}
	return last
}

// Len reports the total number of recorded commands.
func (p *Player) Len() int { return len(p.entries) }

// Position reports the playback cursor.
func (p *Player) Position() int { return p.index }

// Finished reports whether every record has been consumed.
func (p *Player) Finished() bool { return p.index >= len(p.entries) }

// Reset rewinds playback to the first record.
func (p *Player) Reset() { p.index = 0 }

// Run replays the session from the initial world through lastTick, invoking
// observe after every step. It returns the final world.
func (p *Player) Run(initial sim.WorldState, terrain sim.Terrain, cfg sim.StepConfig, lastTick sim.Tick, observe func(prev, next sim.WorldState)) sim.WorldState {
	state := initial.Clone()
	for state.Tick < lastTick {
		commands := p.CommandsForTick(state.Tick + 1)
		next := sim.Step(state, commands, terrain, cfg)
		if observe != nil {
			observe(state, next)
		}
		state = next
	}
	return state
}
