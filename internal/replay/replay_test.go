package replay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"voxelrift/internal/sim"
)

func moveCommand(tick sim.Tick, owner sim.EntityID, dx float64) sim.Command {
	return sim.Command{
		Tick:     tick,
		Sequence: uint32(tick),
		Owner:    owner,
		Type:     sim.CommandMove,
		Move:     &sim.MoveIntent{DX: dx},
	}
}

func seedWorld() sim.WorldState {
	world := sim.NewWorldState("replay-test")
	world.Entities[1] = sim.EntityState{ID: 1, X: 0.5, Z: 0.5, Health: 20, MaxHealth: 20, Grounded: true}
	world.Entities[2] = sim.EntityState{ID: 2, X: 4.5, Z: 0.5, Health: 20, MaxHealth: 20, Grounded: true}
	return world
}

func TestInputLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.jsonl")

	logger, err := CreateInputLog(path)
	require.NoError(t, err)
	require.NoError(t, logger.Log(moveCommand(5, 1, 1)))
	require.NoError(t, logger.Log(moveCommand(5, 2, -1)))
	require.NoError(t, logger.Log(moveCommand(6, 1, 0)))
	require.Equal(t, uint64(3), logger.Written())
	require.NoError(t, logger.Close())

	player, err := LoadPlayer(path)
	require.NoError(t, err)
	require.Equal(t, 3, player.Len())
	require.Equal(t, sim.Tick(6), player.LastTick())

	require.Len(t, player.CommandsForTick(5), 2)
	require.Len(t, player.CommandsForTick(6), 1)
	require.True(t, player.Finished())

	player.Reset()
	require.Equal(t, 0, player.Position())
	// Skipping a tick discards its commands rather than leaking them forward.
	require.Empty(t, player.CommandsForTick(6)[1:])
}

func TestEventsBetweenDerivesSpawnsUpdatesDespawns(t *testing.T) {
	prev := seedWorld()
	next := prev.Clone()
	next.Tick = 3

	moved := next.Entities[1]
	moved.X += 1
	next.Entities[1] = moved
	delete(next.Entities, 2)
	next.Entities[3] = sim.EntityState{ID: 3, X: 9}

	events := EventsBetween(prev, next)
	require.Len(t, events, 3)
	require.Equal(t, EventUpdate, events[0].Kind)
	require.Equal(t, sim.EntityID(1), events[0].Entity)
	require.Equal(t, EventSpawn, events[1].Kind)
	require.Equal(t, sim.EntityID(3), events[1].Entity)
	require.Equal(t, EventDespawn, events[2].Kind)
	require.Equal(t, sim.EntityID(2), events[2].Entity)
	for _, event := range events {
		require.Equal(t, sim.Tick(3), event.Tick)
	}
}

func TestReplayReproducesRecordedSession(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "inputs.jsonl")
	eventPath := filepath.Join(dir, "events.jsonl")

	terrain := sim.FlatTerrain{}
	cfg := sim.DefaultStepConfig()

	inputs, err := CreateInputLog(inputPath)
	require.NoError(t, err)
	events, err := CreateEventLog(eventPath)
	require.NoError(t, err)

	commands := []sim.Command{
		moveCommand(2, 1, 1),
		moveCommand(4, 2, -1),
		moveCommand(7, 1, 0),
	}

	state := seedWorld()
	for tick := sim.Tick(1); tick <= 10; tick++ {
		var staged []sim.Command
		for _, cmd := range commands {
			if cmd.Tick == tick {
				staged = append(staged, cmd)
				require.NoError(t, inputs.Log(cmd))
			}
		}
		next := sim.Step(state, staged, terrain, cfg)
		require.NoError(t, events.LogTick(state, next))
		state = next
	}
	require.NoError(t, inputs.Close())
	require.NoError(t, events.Close())

	player, err := LoadPlayer(inputPath)
	require.NoError(t, err)
	validator, err := LoadValidator(eventPath)
	require.NoError(t, err)

	final := player.Run(seedWorld(), terrain, cfg, 10, validator.ValidateTick)
	validator.Finish()

	require.True(t, validator.Valid(), "divergences: %v", validator.Errors())
	require.Equal(t, state, final)
	require.True(t, player.Finished())
}

func TestValidatorFlagsDivergence(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "events.jsonl")

	events, err := CreateEventLog(eventPath)
	require.NoError(t, err)
	require.NoError(t, events.Log(StateEvent{Kind: EventUpdate, Tick: 1, Entity: 1, X: 1}))
	require.NoError(t, events.Log(StateEvent{Kind: EventUpdate, Tick: 2, Entity: 1, X: 2}))
	require.NoError(t, events.Close())

	validator, err := LoadValidator(eventPath)
	require.NoError(t, err)
	validator.ValidateEvent(StateEvent{Kind: EventUpdate, Tick: 1, Entity: 1, X: 1.5})
	validator.Finish()

	require.False(t, validator.Valid())
	require.Len(t, validator.Errors(), 2)
	require.Equal(t, "event mismatch", validator.Errors()[0].Message)
	require.Equal(t, "recorded event missing from replay", validator.Errors()[1].Message)
}
