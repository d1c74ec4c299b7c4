// Command replay feeds a recorded input log back through the shared step
// function and checks the resulting state events against the recorded
// baseline. A non-zero exit means the simulation diverged.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"voxelrift/internal/replay"
	"voxelrift/internal/sim"
	"voxelrift/internal/world"
)

func main() {
	inputsPath := flag.String("inputs", "", "path to the JSONL input log")
	eventsPath := flag.String("events", "", "path to the JSONL event log")
	seed := flag.String("seed", "voxelrift", "world seed the session ran with")
	entities := flag.Int("entities", 1, "size of the initial entity roster")
	tickRate := flag.Int("tick-rate", sim.DefaultTickRate, "simulation rate the session ran at")
	ticks := flag.Uint64("ticks", 0, "ticks to replay (0 replays through the last recorded command)")
	flag.Parse()

	if *inputsPath == "" || *eventsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	player, err := replay.LoadPlayer(*inputsPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	validator, err := replay.LoadValidator(*eventsPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	terrain := world.NewPerlinProvider(*seed)
	cfg := sim.DefaultStepConfig()
	cfg.TickRate = *tickRate

	initial := sim.NewWorldState(*seed)
	for i := 1; i <= *entities; i++ {
		id := sim.EntityID(i)
		initial.Entities[id] = sim.SpawnEntity(id, terrain)
	}

	last := sim.Tick(*ticks)
	if last == 0 {
		last = player.LastTick()
	}

	final := player.Run(initial, terrain, cfg, last, validator.ValidateTick)
	validator.Finish()

	fmt.Printf("replayed %d commands over %d ticks, validated %d events\n",
		player.Position(), uint64(final.Tick), validator.Validated())

	if !validator.Valid() {
		for _, divergence := range validator.Errors() {
			fmt.Fprintf(os.Stderr, "tick %d: %s\n  expected: %s\n  actual:   %s\n",
				divergence.Tick, divergence.Message, divergence.Expected, divergence.Actual)
		}
		os.Exit(1)
	}
	fmt.Println("replay matches the recording")
}
