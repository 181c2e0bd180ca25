// Command rov-swarm runs the ROV swarm headless with the configuration named
// by $ROV_CONFIG (or the default search paths). Use 'rov-sim run' for the
// interactive runner.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/picogrid/rov-simulations/cmd/rov-swarm/simulation"
	"github.com/picogrid/rov-simulations/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	sim := simulation.NewROVSwarmSimulation()
	if err := sim.Configure(map[string]interface{}{"config_file": os.Getenv("ROV_CONFIG")}); err != nil {
		logger.Fatalf("Failed to configure %s: %v", sim.Name(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Simulation failed: %v", err)
	}
}
