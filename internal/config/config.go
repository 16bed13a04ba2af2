package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cellsim/internal/division"
	"github.com/san-kum/cellsim/internal/genome"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/physics"
	"github.com/san-kum/cellsim/internal/sim"
)

const (
	DefaultDt           = 0.05
	DefaultSteps        = 400
	DefaultRootMass     = 1.0
	DefaultHistoryEvery = 10
)

type Config struct {
	// Genome is a genome file path or the name of a built-in genome.
	Genome   string         `yaml:"genome"`
	Dt       float64        `yaml:"dt"`
	Steps    int            `yaml:"steps"`
	Capacity int            `yaml:"capacity"`
	RootMass float64        `yaml:"root_mass"`
	Roots    []geom.Vec3    `yaml:"roots"`
	Solver   physics.Params `yaml:"solver"`
	Death    DeathConfig    `yaml:"death"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DeathConfig struct {
	Policy    string  `yaml:"policy"`
	Threshold float64 `yaml:"threshold"`
}

type HistoryConfig struct {
	// Path of the SQLite database; empty disables recording.
	Path  string `yaml:"path"`
	Every int    `yaml:"every"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint; empty disables it.
	Addr string `yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Genome:   "default",
		Dt:       DefaultDt,
		Steps:    DefaultSteps,
		RootMass: DefaultRootMass,
		Roots:    []geom.Vec3{{}},
		Solver:   physics.DefaultParams(),
		Death:    DeathConfig{Policy: "none"},
		History:  HistoryConfig{Every: DefaultHistoryEvery},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("dt must be positive, got %v", c.Dt)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.History.Every < 0 {
		return fmt.Errorf("history.every must be non-negative, got %d", c.History.Every)
	}
	if err := c.Solver.Normalize().Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	_, err := division.NewDeathPolicy(c.Death.Policy, c.Death.Threshold)
	return err
}

// LoadGenome resolves Genome as a built-in name first and a file path
// otherwise.
func (c *Config) LoadGenome() (*genome.Genome, error) {
	if c.Genome == "" {
		return genome.Default(), nil
	}
	if g, ok := GetGenome(c.Genome); ok {
		return g, nil
	}
	return genome.ReadFile(c.Genome)
}

// SimConfig converts the file settings into the engine configuration.
func (c *Config) SimConfig(log *slog.Logger) (sim.Config, error) {
	death, err := division.NewDeathPolicy(c.Death.Policy, c.Death.Threshold)
	if err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		Capacity: c.Capacity,
		RootMass: c.RootMass,
		Solver:   c.Solver,
		Death:    death,
		Logger:   log,
	}, nil
}

// NewWorld builds a world from the config and spawns the configured roots.
func (c *Config) NewWorld(log *slog.Logger) (*sim.World, error) {
	gen, err := c.LoadGenome()
	if err != nil {
		return nil, fmt.Errorf("genome: %w", err)
	}
	scfg, err := c.SimConfig(log)
	if err != nil {
		return nil, err
	}
	w, err := sim.New(gen, scfg)
	if err != nil {
		return nil, err
	}
	for _, p := range c.Roots {
		if _, err := w.SpawnRoot(nil, p); err != nil {
			return nil, fmt.Errorf("spawn root at %v: %w", p, err)
		}
	}
	return w, nil
}
