package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxelrift/internal/sim"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, sim.DefaultTickRate, cfg.Simulation.TickRate)
	require.Equal(t, 20, cfg.Simulation.TickRate)
}

func TestLoadOverridesDefaults(t *testing.T) {
	doc := []byte(`
listen_addr: ":9090"
simulation:
  tick_rate_hz: 60
  seed: "alpine"
journal:
  keyframe_interval_ticks: 15
  ack_timeout: 1s
prediction:
  epsilon: 0.1
  hard_bound: 2.0
`)
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 60, cfg.Simulation.TickRate)
	require.Equal(t, "alpine", cfg.Simulation.Seed)
	require.Equal(t, 15, cfg.Journal.KeyframeInterval)
	require.Equal(t, time.Second, cfg.Journal.AckTimeout)
	require.Equal(t, 0.1, cfg.Prediction.Epsilon)
	// Untouched sections keep their defaults.
	require.Equal(t, Default().Intake, cfg.Intake)
	require.Equal(t, Default().Chunks, cfg.Chunks)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	doc := []byte("simulation:\n  tick_rate_hz: 0\n")
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "tick_rate_hz")
}

func TestValidateCatchesBadPredictionBounds(t *testing.T) {
	cfg := Default()
	cfg.Prediction.HardBound = cfg.Prediction.Epsilon
	require.Error(t, cfg.Validate())
}
