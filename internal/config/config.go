// Package config loads the server configuration from a YAML file and fills
// in defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxelrift/internal/sim"
	"voxelrift/logging"
)

// Config is the root document. Zero values mean "use the default".
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Simulation SimulationConfig `yaml:"simulation"`
	Journal    JournalConfig    `yaml:"journal"`
	Intake     IntakeConfig     `yaml:"intake"`
	Prediction PredictionConfig `yaml:"prediction"`
	Chunks     ChunkConfig      `yaml:"chunks"`
	Logging    logging.Config   `yaml:"logging"`
}

// SimulationConfig tunes the authoritative tick loop.
type SimulationConfig struct {
	TickRate        int     `yaml:"tick_rate_hz"`
	Seed            string  `yaml:"seed"`
	MoveSpeed       float64 `yaml:"move_speed"`
	CatchupMaxTicks int     `yaml:"catchup_max_ticks"`
}

// JournalConfig tunes keyframe retention and delta fallback.
type JournalConfig struct {
	KeyframeInterval int           `yaml:"keyframe_interval_ticks"`
	Capacity         int           `yaml:"capacity"`
	MaxAge           time.Duration `yaml:"max_age"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
}

// IntakeConfig tunes the shared command buffer.
type IntakeConfig struct {
	MaxTotal   int `yaml:"max_total"`
	MaxPerTick int `yaml:"max_per_tick"`
	Horizon    int `yaml:"horizon_ticks"`
}

// PredictionConfig carries the client-side tunables the server advertises
// on join so both sides agree.
type PredictionConfig struct {
	RingCapacity int           `yaml:"ring_capacity"`
	Epsilon      float64       `yaml:"epsilon"`
	HardBound    float64       `yaml:"hard_bound"`
	InterpWindow time.Duration `yaml:"interp_window"`
}

// ChunkConfig tunes terrain streaming.
type ChunkConfig struct {
	Radius       int `yaml:"radius"`
	SendsPerTick int `yaml:"sends_per_tick"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Simulation: SimulationConfig{
			TickRate:        sim.DefaultTickRate,
			Seed:            "voxelrift",
			MoveSpeed:       4.3,
			CatchupMaxTicks: 4,
		},
		Journal: JournalConfig{
			KeyframeInterval: 30,
			Capacity:         64,
			MaxAge:           10 * time.Second,
			AckTimeout:       3 * time.Second,
		},
		Intake: IntakeConfig{
			MaxTotal:   256,
			MaxPerTick: 32,
			Horizon:    40,
		},
		Prediction: PredictionConfig{
			RingCapacity: 64,
			Epsilon:      0.05,
			HardBound:    1.0,
			InterpWindow: 100 * time.Millisecond,
		},
		Chunks: ChunkConfig{
			Radius:       4,
			SendsPerTick: 6,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Simulation.TickRate <= 0 {
		return fmt.Errorf("simulation.tick_rate_hz must be positive, got %d", c.Simulation.TickRate)
	}
	if c.Journal.KeyframeInterval <= 0 {
		return fmt.Errorf("journal.keyframe_interval_ticks must be positive, got %d", c.Journal.KeyframeInterval)
	}
	if c.Journal.Capacity <= 0 {
		return fmt.Errorf("journal.capacity must be positive, got %d", c.Journal.Capacity)
	}
	if c.Intake.MaxPerTick <= 0 || c.Intake.MaxTotal < c.Intake.MaxPerTick {
		return fmt.Errorf("intake limits invalid: max_total=%d max_per_tick=%d", c.Intake.MaxTotal, c.Intake.MaxPerTick)
	}
	if c.Prediction.Epsilon <= 0 || c.Prediction.HardBound <= c.Prediction.Epsilon {
		return fmt.Errorf("prediction bounds invalid: epsilon=%v hard_bound=%v", c.Prediction.Epsilon, c.Prediction.HardBound)
	}
	if c.Chunks.Radius < 0 {
		return fmt.Errorf("chunks.radius must not be negative, got %d", c.Chunks.Radius)
	}
	return nil
}
