package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"voxelrift/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, app.Config{ConfigPath: *configPath}); err != nil {
		log.Fatalf("%v", err)
	}
}
