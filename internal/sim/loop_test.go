package sim

import (
	"testing"
	"time"
)

func TestLoopAdvanceRunsHooksInOrder(t *testing.T) {
	world := NewWorldState("loop")
	world.Entities[1] = EntityState{ID: 1, Health: 20, MaxHealth: 20, Grounded: true}

	var order []string
	hooks := LoopHooks{
		Prepare: func(ctx LoopTickContext, state *WorldState) {
			order = append(order, "prepare")
			if ctx.Tick != 1 {
				t.Fatalf("expected prepare for tick 1, got %d", ctx.Tick)
			}
		},
		Collect: func(tick Tick) []Command {
			order = append(order, "collect")
			return []Command{{Tick: tick, Sequence: 1, Owner: 1, Type: CommandMove, Move: &MoveIntent{DX: 1}}}
		},
	}
	loop := NewLoop(world, FlatTerrain{}, DefaultStepConfig(), LoopConfig{TickRate: 20, CatchupMaxTicks: 4}, hooks, nil, nil)

	result := loop.Advance(time.Unix(0, 0))
	if result.Tick != 1 {
		t.Fatalf("expected tick 1, got %d", result.Tick)
	}
	if len(order) != 2 || order[0] != "prepare" || order[1] != "collect" {
		t.Fatalf("unexpected hook order: %v", order)
	}
	if result.State.Entities[1].X <= 0 {
		t.Fatalf("expected collected command to move the entity, state=%+v", result.State.Entities[1])
	}
	if loop.CurrentTick() != 1 {
		t.Fatalf("expected clock at tick 1, got %d", loop.CurrentTick())
	}
}

func TestLoopStateReturnsDeepCopy(t *testing.T) {
	world := NewWorldState("copy")
	world.Entities[1] = EntityState{ID: 1, Health: 20, MaxHealth: 20}
	loop := NewLoop(world, FlatTerrain{}, DefaultStepConfig(), LoopConfig{}, LoopHooks{}, nil, nil)

	snapshot := loop.State()
	entity := snapshot.Entities[1]
	entity.X = 999
	snapshot.Entities[1] = entity

	if loop.State().Entities[1].X == 999 {
		t.Fatalf("State leaked a shared map")
	}
}

func TestLoopPrepareMutationsAreStepped(t *testing.T) {
	loop := NewLoop(NewWorldState("spawn"), FlatTerrain{}, DefaultStepConfig(), LoopConfig{}, LoopHooks{
		Prepare: func(_ LoopTickContext, state *WorldState) {
			state.Entities[7] = EntityState{ID: 7, Y: 5, Health: 20, MaxHealth: 20}
		},
	}, nil, nil)

	result := loop.Advance(time.Unix(0, 0))
	spawned, ok := result.State.Entities[7]
	if !ok {
		t.Fatalf("expected spawned entity in stepped state")
	}
	if spawned.Y >= 5 {
		t.Fatalf("expected gravity to act on spawned entity, Y=%f", spawned.Y)
	}
}
